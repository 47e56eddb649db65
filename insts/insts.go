// Package insts provides the RISC-V-like instruction set definitions and the
// text assembler that turns assembly source into decoded instructions.
//
// This package implements:
//   - Static instruction definitions: name, functional-unit class,
//     capability, argument shape and memory access width
//   - Architectural register definitions with ABI aliases
//   - Decoded instruction records with resolved labels
//
// Usage:
//
//	prog, err := insts.Assemble("add x1, x2, x3\n")
//	inst := prog.At(0)
//	fmt.Printf("Op: %v, Args: %v\n", inst.Def.Name, inst.Args)
package insts
