package emu

import (
	"math"

	"github.com/pkg/errors"

	"github.com/sarchlab/rvsim/insts"
)

// Single-precision values live in the low 32 bits of a register.

func f32(v uint64) float32 { return math.Float32frombits(uint32(v)) }

func f64(v uint64) float64 { return math.Float64frombits(v) }

func fromF32(f float32) uint64 { return uint64(math.Float32bits(f)) }

func fromF64(f float64) uint64 { return math.Float64bits(f) }

func executeFloat(def *insts.Definition, ops Operands) (Result, error) {
	a, b := ops.Src1, ops.Src2
	var v uint64

	switch def.Op {
	case insts.OpFADDS:
		v = fromF32(f32(a) + f32(b))
	case insts.OpFSUBS:
		v = fromF32(f32(a) - f32(b))
	case insts.OpFMULS:
		v = fromF32(f32(a) * f32(b))
	case insts.OpFDIVS:
		v = fromF32(f32(a) / f32(b))
	case insts.OpFSQRTS:
		v = fromF32(float32(math.Sqrt(float64(f32(a)))))
	case insts.OpFMINS:
		v = fromF32(float32(fmin(float64(f32(a)), float64(f32(b)))))
	case insts.OpFMAXS:
		v = fromF32(float32(fmax(float64(f32(a)), float64(f32(b)))))
	case insts.OpFSGNJS:
		v = signInject(a, b, 31, func(x, y uint64) uint64 { return y })
	case insts.OpFSGNJNS:
		v = signInject(a, b, 31, func(x, y uint64) uint64 { return y ^ 1 })
	case insts.OpFSGNJXS:
		v = signInject(a, b, 31, func(x, y uint64) uint64 { return x ^ y })
	case insts.OpFEQS:
		v = boolToU64(f32(a) == f32(b))
	case insts.OpFLTS:
		v = boolToU64(f32(a) < f32(b))
	case insts.OpFLES:
		v = boolToU64(f32(a) <= f32(b))
	case insts.OpFCVTWS:
		v = toInt32(float64(f32(a)))
	case insts.OpFCVTSW:
		v = fromF32(float32(int32(a)))
	case insts.OpFMVXW:
		v = uint64(int64(int32(uint32(a))))
	case insts.OpFMVWX:
		v = uint64(uint32(a))

	case insts.OpFADDD:
		v = fromF64(f64(a) + f64(b))
	case insts.OpFSUBD:
		v = fromF64(f64(a) - f64(b))
	case insts.OpFMULD:
		v = fromF64(f64(a) * f64(b))
	case insts.OpFDIVD:
		v = fromF64(f64(a) / f64(b))
	case insts.OpFSQRTD:
		v = fromF64(math.Sqrt(f64(a)))
	case insts.OpFMIND:
		v = fromF64(fmin(f64(a), f64(b)))
	case insts.OpFMAXD:
		v = fromF64(fmax(f64(a), f64(b)))
	case insts.OpFSGNJD:
		v = signInject(a, b, 63, func(x, y uint64) uint64 { return y })
	case insts.OpFSGNJND:
		v = signInject(a, b, 63, func(x, y uint64) uint64 { return y ^ 1 })
	case insts.OpFSGNJXD:
		v = signInject(a, b, 63, func(x, y uint64) uint64 { return x ^ y })
	case insts.OpFEQD:
		v = boolToU64(f64(a) == f64(b))
	case insts.OpFLTD:
		v = boolToU64(f64(a) < f64(b))
	case insts.OpFLED:
		v = boolToU64(f64(a) <= f64(b))
	case insts.OpFCVTWD:
		v = toInt32(f64(a))
	case insts.OpFCVTDW:
		v = fromF64(float64(int32(a)))
	case insts.OpFCVTSD:
		v = fromF32(float32(f64(a)))
	case insts.OpFCVTDS:
		v = fromF64(float64(f32(a)))
	default:
		return Result{}, errors.Wrapf(ErrUnknownInstruction, "%s", def.Name)
	}
	return Result{Value: v}, nil
}

// fmin returns the smaller operand; a single NaN operand is ignored.
func fmin(x, y float64) float64 {
	switch {
	case math.IsNaN(x):
		return y
	case math.IsNaN(y):
		return x
	}
	return math.Min(x, y)
}

func fmax(x, y float64) float64 {
	switch {
	case math.IsNaN(x):
		return y
	case math.IsNaN(y):
		return x
	}
	return math.Max(x, y)
}

// signInject keeps the magnitude of a and takes the sign bit from pick.
func signInject(a, b uint64, signBit uint, pick func(x, y uint64) uint64) uint64 {
	sa := (a >> signBit) & 1
	sb := (b >> signBit) & 1
	mask := uint64(1) << signBit
	width := ^uint64(0)
	if signBit == 31 {
		width = math.MaxUint32
	}
	return ((a &^ mask) | (pick(sa, sb)&1)<<signBit) & width
}

// toInt32 converts with saturation; NaN converts to MaxInt32. The result is
// sign-extended to 64 bits.
func toInt32(f float64) uint64 {
	switch {
	case math.IsNaN(f) || f >= math.MaxInt32:
		return uint64(int64(math.MaxInt32))
	case f <= math.MinInt32:
		v := int64(math.MinInt32)
		return uint64(v)
	}
	return uint64(int64(int32(f)))
}
