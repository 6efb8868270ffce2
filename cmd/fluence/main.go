package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	fluence "github.com/fluence-lang/fluence"
)

type args struct {
	runPath *string
	timeout *int
	noOpt   *bool
}

func readArgs() *args {
	a := &args{
		runPath: flag.String("run", "", "Path to the Fluence source file to run"),
		timeout: flag.Int("timeout-ms", 0, "Abort execution after this many milliseconds (0: no timeout)"),
		noOpt:   flag.Bool("no-optimize", false, "Disable the peephole optimizer"),
	}
	flag.Parse()
	return a
}

func main() {
	a := readArgs()

	if *a.runPath == "" {
		log.Fatal("Source file not informed (-run)")
	}

	source, err := os.ReadFile(*a.runPath)
	if err != nil {
		log.Fatalf("Can't open input file: %s", err.Error())
	}

	cfg := fluence.NewConfig()
	if *a.noOpt {
		cfg.SetOptimizeBytecode(false)
	}
	if *a.timeout > 0 {
		cfg.SetDefaultTimeout(time.Duration(*a.timeout) * time.Millisecond)
	}

	prog, err := fluence.Compile(cfg, *a.runPath, string(source))
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}

	in := fluence.NewInterpreter(prog, cfg)
	if err := in.RunUntilDone(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}
