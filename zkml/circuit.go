package zkml

import (
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	frmimc "github.com/consensys/gnark-crypto/ecc/bn254/fr/mimc"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/std/hash/mimc"
)

// InferenceCircuit proves one classifier run: "I know a 60-element feature
// vector with MiMC commitment C such that executing the committed bytecode
// program on it yields exactly the public output tensor."
//
// Public inputs, in order: the output tensor, the input commitment, and the
// fixed-point scale. The feature vector stays private; only its commitment
// is revealed.
type InferenceCircuit struct {
	Output          []frontend.Variable `gnark:",public"`
	InputCommitment frontend.Variable   `gnark:",public"`
	Scale           frontend.Variable   `gnark:",public"`
	Features        []frontend.Variable `gnark:",secret"`

	// prog drives constraint generation and is not part of the witness.
	prog *Program
}

// newCircuitTemplate returns the compile-time shape of the circuit for a
// program.
func newCircuitTemplate(prog *Program) *InferenceCircuit {
	return &InferenceCircuit{
		Output:   make([]frontend.Variable, prog.OutputLen),
		Features: make([]frontend.Variable, prog.InputLen),
		prog:     prog,
	}
}

// Define replays the bytecode program over symbolic registers, one
// instruction at a time, and binds the results to the public inputs. This is
// the exact constraint-side mirror of Trace.
func (c *InferenceCircuit) Define(api frontend.API) error {
	prog := c.prog
	if prog == nil {
		return fmt.Errorf("circuit has no program")
	}
	if len(c.Features) != prog.InputLen {
		return fmt.Errorf("feature arity %d, program wants %d", len(c.Features), prog.InputLen)
	}
	if len(c.Output) != prog.OutputLen {
		return fmt.Errorf("output arity %d, program wants %d", len(c.Output), prog.OutputLen)
	}

	regs := make([][]frontend.Variable, prog.NumRegs)
	for _, ins := range prog.Code {
		switch ins.Op {
		case OpInput:
			regs[ins.Dst] = c.Features

		case OpMatMul:
			x := regs[ins.Src]
			w := prog.Consts[ins.Const]
			out := make([]frontend.Variable, w.Cols)
			for j := 0; j < w.Cols; j++ {
				acc := frontend.Variable(0)
				for i := 0; i < w.Rows; i++ {
					acc = api.Add(acc, api.Mul(x[i], big.NewInt(w.Data[i*w.Cols+j])))
				}
				out[j] = acc
			}
			regs[ins.Dst] = out

		case OpAdd, OpMul:
			a := regs[ins.Src]
			b := constraintOperandB(regs, prog, ins)
			out := make([]frontend.Variable, len(a))
			for i := range a {
				if ins.Op == OpAdd {
					out[i] = api.Add(a[i], b[i])
				} else {
					out[i] = api.Mul(a[i], b[i])
				}
			}
			regs[ins.Dst] = out

		case OpReduceSum:
			acc := frontend.Variable(0)
			for _, v := range regs[ins.Src] {
				acc = api.Add(acc, v)
			}
			regs[ins.Dst] = []frontend.Variable{acc}

		case OpRelu:
			x := regs[ins.Src]
			out := make([]frontend.Variable, len(x))
			for i, v := range x {
				out[i] = reluConstraint(api, v, ins.BoundBits)
			}
			regs[ins.Dst] = out

		default:
			return fmt.Errorf("unhandled opcode: %s", ins.Op)
		}
	}

	// Bind the final register to the public output tensor.
	final := regs[prog.OutputReg]
	for i := range final {
		api.AssertIsEqual(c.Output[i], final[i])
	}

	// The scale is a program constant exposed publicly so a claimed output
	// cannot be re-based.
	api.AssertIsEqual(c.Scale, prog.Scale)

	// Bind the private features to their public MiMC commitment.
	h, err := mimc.NewMiMC(api)
	if err != nil {
		return err
	}
	h.Write(c.Features...)
	api.AssertIsEqual(c.InputCommitment, h.Sum())

	return nil
}

// reluConstraint computes max(x, 0) for |x| < 2^(bits-1). The shifted value
// x + 2^(bits-1) is decomposed into bits; the top bit is the sign indicator.
func reluConstraint(api frontend.API, x frontend.Variable, bits int) frontend.Variable {
	offset := new(big.Int).Lsh(big.NewInt(1), uint(bits-1))
	shifted := api.Add(x, offset)
	d := api.ToBinary(shifted, bits)
	nonNegative := d[bits-1]
	return api.Select(nonNegative, x, 0)
}

func constraintOperandB(regs [][]frontend.Variable, prog *Program, ins Instruction) []frontend.Variable {
	if ins.Src2 >= 0 {
		return regs[ins.Src2]
	}
	c := prog.Consts[ins.Const]
	b := make([]frontend.Variable, len(c.Data))
	for i, v := range c.Data {
		b[i] = big.NewInt(v)
	}
	return b
}

// InputCommitment computes, outside the circuit, the same MiMC commitment
// the circuit enforces over the feature vector. Negative features map to
// field elements exactly the way the in-circuit assignment does.
func InputCommitment(features []int64) [32]byte {
	h := frmimc.NewMiMC()
	var e fr.Element
	for _, v := range features {
		e.SetInt64(v)
		b := e.Bytes()
		h.Write(b[:])
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}
