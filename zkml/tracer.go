package zkml

import (
	"fmt"
	"math/big"
)

// TraceStep records one executed instruction and the full destination
// register contents after it ran.
type TraceStep struct {
	PC     int
	Op     OpCode
	Dst    int
	Values []*big.Int
}

// ExecutionTrace is the step-by-step record of one program run on one
// witness. It is proof-sized and transient: the prover consumes it
// immediately and it is never persisted.
type ExecutionTrace struct {
	ProgramDigest [32]byte
	Features      []int64
	Steps         []TraceStep
}

// ProgramOutput is the public result tensor in fixed-point form. It
// accompanies every proof and must match byte-for-byte between proving and
// verification.
type ProgramOutput struct {
	Values []int64 `json:"values"`
	Scale  int64   `json:"scale"`
}

// Trace executes the bytecode program on a concrete witness using exact
// integer arithmetic and returns the trace plus the public output. The
// arithmetic is arbitrary-precision internally, so there is no overflow and
// no floating-point drift: the trace the prover commits to is exactly what
// the circuit recomputes.
//
// A witness whose length is not FeatureCount is rejected before any step
// executes.
func Trace(prog *Program, witness []int64) (*ExecutionTrace, *ProgramOutput, error) {
	if len(witness) != FeatureCount {
		return nil, nil, fmt.Errorf("%w: expected %d features, got %d", ErrInvalidInput, FeatureCount, len(witness))
	}
	for i, v := range witness {
		if v >= InputBound || v < -InputBound {
			return nil, nil, fmt.Errorf("%w: feature %d value %d is outside the 32-bit range", ErrInvalidInput, i, v)
		}
	}

	trace := &ExecutionTrace{
		ProgramDigest: prog.Digest(),
		Features:      append([]int64(nil), witness...),
		Steps:         make([]TraceStep, 0, len(prog.Code)),
	}

	regs := make([][]*big.Int, prog.NumRegs)
	for pc, ins := range prog.Code {
		var out []*big.Int
		switch ins.Op {
		case OpInput:
			out = make([]*big.Int, FeatureCount)
			for i, v := range witness {
				out[i] = big.NewInt(v)
			}
		case OpMatMul:
			x := regs[ins.Src]
			w := prog.Consts[ins.Const]
			out = make([]*big.Int, w.Cols)
			term := new(big.Int)
			for j := 0; j < w.Cols; j++ {
				acc := new(big.Int)
				for i := 0; i < w.Rows; i++ {
					term.SetInt64(w.Data[i*w.Cols+j])
					term.Mul(term, x[i])
					acc.Add(acc, term)
				}
				out[j] = acc
			}
		case OpAdd, OpMul:
			a := regs[ins.Src]
			b := operandB(prog, regs, ins)
			out = make([]*big.Int, len(a))
			for i := range a {
				r := new(big.Int)
				if ins.Op == OpAdd {
					r.Add(a[i], b[i])
				} else {
					r.Mul(a[i], b[i])
				}
				out[i] = r
			}
		case OpReduceSum:
			acc := new(big.Int)
			for _, v := range regs[ins.Src] {
				acc.Add(acc, v)
			}
			out = []*big.Int{acc}
		case OpRelu:
			x := regs[ins.Src]
			out = make([]*big.Int, len(x))
			for i, v := range x {
				if v.Sign() < 0 {
					out[i] = new(big.Int)
				} else {
					out[i] = new(big.Int).Set(v)
				}
			}
		default:
			return nil, nil, fmt.Errorf("%w: pc %d: invalid opcode %d", ErrProving, pc, ins.Op)
		}

		regs[ins.Dst] = out
		trace.Steps = append(trace.Steps, TraceStep{PC: pc, Op: ins.Op, Dst: ins.Dst, Values: out})
	}

	final := regs[prog.OutputReg]
	output := &ProgramOutput{
		Values: make([]int64, len(final)),
		Scale:  prog.Scale,
	}
	for i, v := range final {
		if !v.IsInt64() {
			return nil, nil, fmt.Errorf("%w: output element %d does not fit 64 bits", ErrProving, i)
		}
		output.Values[i] = v.Int64()
	}
	return trace, output, nil
}

// operandB resolves the second element-wise operand: a register or a
// constant-pool tensor.
func operandB(prog *Program, regs [][]*big.Int, ins Instruction) []*big.Int {
	if ins.Src2 >= 0 {
		return regs[ins.Src2]
	}
	c := prog.Consts[ins.Const]
	b := make([]*big.Int, len(c.Data))
	for i, v := range c.Data {
		b[i] = big.NewInt(v)
	}
	return b
}
