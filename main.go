// Package main provides the entry point for rvsim.
// rvsim is a cycle-stepped out-of-order RISC-V processor simulator built on
// Akita.
//
// For the full CLI, use: go run ./cmd/rvsim
package main

import (
	"fmt"
	"os"
)

func main() {
	fmt.Println("rvsim - Out-of-Order RISC-V Processor Simulator")
	fmt.Println("Built on Akita simulation framework")
	fmt.Println("")
	fmt.Println("Usage: rvsim [options] <program.s>")
	fmt.Println("")
	fmt.Println("Options:")
	fmt.Println("  -config      Path to a CPU configuration file (.json, .yaml)")
	fmt.Println("  -max-cycles  Stop after this many cycles")
	fmt.Println("  -emulate     Run the functional emulator")
	fmt.Println("  -break       Comma-separated breakpoint labels or addresses")
	fmt.Println("  -v           Log verbosity")
	fmt.Println("")
	fmt.Println("Run 'go run ./cmd/rvsim' for the full CLI.")
	fmt.Println("Run 'go run ./cmd/benchmark' for the benchmark harness.")

	if len(os.Args) > 1 {
		fmt.Println("\nNote: You provided arguments. Use 'go run ./cmd/rvsim' instead.")
	}
}
