package benchmarks

import (
	"fmt"
	"strings"
)

// GetMicrobenchmarks returns the standard set of microbenchmarks. Each one
// stresses a single part of the machine.
func GetMicrobenchmarks() []Benchmark {
	return []Benchmark{
		independentALU(),
		dependencyChain(),
		memorySequential(),
		storeLoadForwarding(),
		countedLoop(),
		branchHeavy(),
		matrixMultiply2x2(),
		floatingPointMix(),
	}
}

// GetCoreBenchmarks returns a minimal set for quick validation: a loop,
// matrix multiply and branch-heavy code.
func GetCoreBenchmarks() []Benchmark {
	return []Benchmark{
		countedLoop(),
		matrixMultiply2x2(),
		branchHeavy(),
	}
}

// program joins lines into a source file and appends the exit.
func program(lines ...string) string {
	return strings.Join(append(lines, "\tecall", ""), "\n")
}

// 1. Independent ALU - Tests issue width with no dependencies between
// neighbors.
func independentALU() Benchmark {
	regs := []string{"a0", "a1", "a2", "a3", "a4"}
	var lines []string
	for i := 0; i < 20; i++ {
		r := regs[i%len(regs)]
		lines = append(lines, fmt.Sprintf("\taddi %s, %s, 1", r, r))
	}
	return Benchmark{
		Name:         "independent_alu",
		Description:  "20 additions over 5 registers - measures ALU throughput",
		Source:       program(lines...),
		ExpectedExit: 4,
	}
}

// 2. Dependency Chain - Tests latency with back-to-back RAW hazards.
func dependencyChain() Benchmark {
	var lines []string
	for i := 0; i < 20; i++ {
		lines = append(lines, "\taddi a0, a0, 1")
	}
	return Benchmark{
		Name:         "dependency_chain",
		Description:  "20 dependent additions (a0 = a0 + 1) - measures result latency",
		Source:       program(lines...),
		ExpectedExit: 20,
	}
}

// 3. Memory Sequential - Stores a buffer, then reads it back.
func memorySequential() Benchmark {
	lines := []string{".data", "buf: .zero 64", ".text", "\tla a1, buf"}
	for i := 0; i < 8; i++ {
		lines = append(lines,
			fmt.Sprintf("\tli t0, %d", i+1),
			fmt.Sprintf("\tsd t0, %d(a1)", i*8))
	}
	for i := 0; i < 8; i++ {
		lines = append(lines,
			fmt.Sprintf("\tld t1, %d(a1)", i*8),
			"\tadd a0, a0, t1")
	}
	return Benchmark{
		Name:         "memory_sequential",
		Description:  "8 stores then 8 loads over consecutive dwords - measures cache locality",
		Source:       program(lines...),
		ExpectedExit: 36,
	}
}

// 4. Store-Load Forwarding - Every load reads the store right before it.
func storeLoadForwarding() Benchmark {
	lines := []string{".data", "slot: .dword 0", ".text", "\tla a1, slot"}
	for i := 0; i < 10; i++ {
		lines = append(lines,
			fmt.Sprintf("\tli t0, %d", i),
			"\tsd t0, 0(a1)",
			"\tld t1, 0(a1)",
			"\tadd a0, a0, t1")
	}
	return Benchmark{
		Name:         "store_load_forwarding",
		Description:  "10 store/load pairs to one address - measures store buffer bypass",
		Source:       program(lines...),
		ExpectedExit: 45,
	}
}

// 5. Counted Loop - A predictable backward branch.
func countedLoop() Benchmark {
	return Benchmark{
		Name:        "counted_loop",
		Description: "sum of 0..99 in a loop - measures predictor warm-up and steady state",
		Source: program(
			"\tli t0, 0",
			"\tli t1, 100",
			"loop:",
			"\tadd a0, a0, t0",
			"\taddi t0, t0, 1",
			"\tblt t0, t1, loop",
		),
		ExpectedExit: 4950,
	}
}

// 6. Branch Heavy - A data-dependent branch alternating every iteration.
func branchHeavy() Benchmark {
	return Benchmark{
		Name:        "branch_heavy",
		Description: "50 iterations of an alternating if/else - measures misprediction cost",
		Source: program(
			"\tli t0, 0",
			"\tli t1, 50",
			"loop:",
			"\tandi t2, t0, 1",
			"\tbeqz t2, even",
			"\taddi a0, a0, 2",
			"\tj next",
			"even:",
			"\taddi a0, a0, 1",
			"next:",
			"\taddi t0, t0, 1",
			"\tbne t0, t1, loop",
		),
		ExpectedExit: 75,
	}
}

// 7. Matrix Multiply 2x2 - Loads, multiplies and stores.
func matrixMultiply2x2() Benchmark {
	return Benchmark{
		Name:        "matrix_multiply_2x2",
		Description: "2x2 integer matrix multiply - mixes loads, multiplies and stores",
		Source: program(
			".data",
			"a: .dword 1, 2, 3, 4",
			"b: .dword 5, 6, 7, 8",
			"c: .zero 32",
			".text",
			"\tla s0, a",
			"\tld t0, 0(s0)",
			"\tld t1, 8(s0)",
			"\tld t2, 16(s0)",
			"\tld t3, 24(s0)",
			"\tld t4, 32(s0)",
			"\tld t5, 40(s0)",
			"\tld t6, 48(s0)",
			"\tld s1, 56(s0)",
			"\tmul a1, t0, t4",
			"\tmul a2, t1, t6",
			"\tadd a1, a1, a2",
			"\tsd a1, 64(s0)",
			"\tmul a3, t0, t5",
			"\tmul a4, t1, s1",
			"\tadd a3, a3, a4",
			"\tsd a3, 72(s0)",
			"\tmul a5, t2, t4",
			"\tmul a6, t3, t6",
			"\tadd a5, a5, a6",
			"\tsd a5, 80(s0)",
			"\tmul a7, t2, t5",
			"\tmul s2, t3, s1",
			"\tadd a7, a7, s2",
			"\tsd a7, 88(s0)",
			"\tadd a0, a1, a3",
			"\tadd a0, a0, a5",
			"\tadd a0, a0, a7",
		),
		ExpectedExit: 19 + 22 + 43 + 50,
	}
}

// 8. Floating-Point Mix - Adds, multiplies, a divide and a square root.
func floatingPointMix() Benchmark {
	return Benchmark{
		Name:        "fp_mix",
		Description: "double precision add/mul/div/sqrt chain - measures FP unit latency",
		Source: program(
			".data",
			"x: .double 1.5",
			"y: .double 2.5",
			"z: .double 0.5",
			"w: .double 16.0",
			".text",
			"\tla t0, x",
			"\tfld f1, 0(t0)",
			"\tfld f2, 8(t0)",
			"\tfld f3, 16(t0)",
			"\tfld f4, 24(t0)",
			"\tfmul.d f5, f1, f2",
			"\tfadd.d f5, f5, f1",
			"\tfdiv.d f5, f5, f3",
			"\tfsqrt.d f6, f4",
			"\tfadd.d f7, f5, f6",
			"\tfsub.d f7, f7, f3",
			"\tfcvt.w.d a0, f7",
		),
		ExpectedExit: 14,
	}
}
