package zkml

import (
	"fmt"
	"math/big"
)

// Decode loads a model file and lowers its graph into the linear bytecode
// program the rest of the pipeline operates on. Decoding is deterministic:
// byte-identical model files yield byte-identical programs.
func Decode(path string) (*Program, error) {
	graph, err := LoadModel(path)
	if err != nil {
		return nil, err
	}
	return decodeGraph(graph)
}

// reg tracks a tensor register during lowering.
type reg struct {
	idx        int
	rows, cols int
}

// lowering carries register-allocation state across nodes.
type lowering struct {
	prog     *Program
	regs     map[string]reg
	constIdx map[string]int
}

func (l *lowering) alloc(name string, rows, cols int, bound *big.Int) reg {
	r := reg{idx: l.prog.NumRegs, rows: rows, cols: cols}
	l.prog.NumRegs++
	l.regs[name] = r
	l.prog.Bounds = append(l.prog.Bounds, bound)
	return r
}

// decodeGraph performs register allocation, operator lowering, and static
// magnitude-bound analysis over a validated graph.
func decodeGraph(g *ModelGraph) (*Program, error) {
	prog := &Program{
		Name:     g.Name,
		Scale:    g.Scale,
		InputLen: FeatureCount,
	}
	l := &lowering{
		prog:     prog,
		regs:     make(map[string]reg),
		constIdx: make(map[string]int, len(g.Initializers)),
	}
	for i, init := range g.Initializers {
		l.constIdx[init.Name] = i
		prog.Consts = append(prog.Consts, Tensor{
			Rows: init.Shape[0],
			Cols: init.Shape[1],
			Data: init.Data,
		})
	}

	// The witness load is an explicit instruction so the execution trace
	// covers every register write, including the first.
	in := l.alloc(g.Input.Name, 1, FeatureCount, big.NewInt(InputBound))
	prog.Code = append(prog.Code, Instruction{
		Op: OpInput, Dst: in.idx, Src: -1, Src2: -1, Const: -1,
		Rows: 1, Cols: FeatureCount,
	})

	for i, node := range g.Nodes {
		ins, err := l.lowerNode(node)
		if err != nil {
			return nil, fmt.Errorf("%w (node %d, op %q)", err, i, node.Op)
		}
		prog.Code = append(prog.Code, ins)
	}

	outReg, ok := l.regs[g.Output.Name]
	if !ok {
		return nil, fmt.Errorf("%w: output tensor %q is never produced", ErrModelLoad, g.Output.Name)
	}
	if last := prog.Code[len(prog.Code)-1]; last.Dst != outReg.idx {
		return nil, fmt.Errorf("%w: output tensor %q must be produced by the final node", ErrModelLoad, g.Output.Name)
	}
	if outReg.rows != 1 {
		return nil, fmt.Errorf("%w: output shape must be [1,n], got [%d,%d]", ErrModelLoad, outReg.rows, outReg.cols)
	}
	prog.OutputReg = outReg.idx
	prog.OutputLen = outReg.cols

	prog.computeDigest()
	return prog, nil
}

func (l *lowering) lowerNode(node ModelNode) (Instruction, error) {
	prog := l.prog

	switch node.Op {
	case "matmul", "gemm":
		if len(node.Inputs) != 2 {
			return Instruction{}, fmt.Errorf("%w: matmul wants 2 inputs, got %d", ErrModelLoad, len(node.Inputs))
		}
		x, ok := l.regs[node.Inputs[0]]
		if !ok {
			return Instruction{}, fmt.Errorf("%w: undefined tensor %q", ErrModelLoad, node.Inputs[0])
		}
		ci, ok := l.constIdx[node.Inputs[1]]
		if !ok {
			return Instruction{}, fmt.Errorf("%w: matmul weight %q must be an initializer", ErrModelLoad, node.Inputs[1])
		}
		w := prog.Consts[ci]
		if x.rows != 1 || x.cols != w.Rows {
			return Instruction{}, fmt.Errorf("%w: matmul shape mismatch [1,%d]x[%d,%d]", ErrModelLoad, x.cols, w.Rows, w.Cols)
		}
		bound := matMulBound(prog.Bounds[x.idx], w)
		dst := l.alloc(node.Output, 1, w.Cols, bound)
		return Instruction{
			Op: OpMatMul, Dst: dst.idx, Src: x.idx, Src2: -1, Const: ci,
			Rows: 1, Cols: w.Cols,
		}, nil

	case "add", "mul":
		if len(node.Inputs) != 2 {
			return Instruction{}, fmt.Errorf("%w: %s wants 2 inputs, got %d", ErrModelLoad, node.Op, len(node.Inputs))
		}
		a, ok := l.regs[node.Inputs[0]]
		if !ok {
			return Instruction{}, fmt.Errorf("%w: first input of %s must be a computed tensor, got %q", ErrModelLoad, node.Op, node.Inputs[0])
		}
		op := OpAdd
		if node.Op == "mul" {
			op = OpMul
		}
		if b, isReg := l.regs[node.Inputs[1]]; isReg {
			if a.rows != b.rows || a.cols != b.cols {
				return Instruction{}, fmt.Errorf("%w: %s shape mismatch", ErrModelLoad, node.Op)
			}
			bound := elementwiseBound(op, prog.Bounds[a.idx], prog.Bounds[b.idx])
			dst := l.alloc(node.Output, a.rows, a.cols, bound)
			return Instruction{
				Op: op, Dst: dst.idx, Src: a.idx, Src2: b.idx, Const: -1,
				Rows: a.rows, Cols: a.cols,
			}, nil
		}
		ci, ok := l.constIdx[node.Inputs[1]]
		if !ok {
			return Instruction{}, fmt.Errorf("%w: undefined tensor %q", ErrModelLoad, node.Inputs[1])
		}
		c := prog.Consts[ci]
		if a.rows != c.Rows || a.cols != c.Cols {
			return Instruction{}, fmt.Errorf("%w: %s shape mismatch with initializer %q", ErrModelLoad, node.Op, node.Inputs[1])
		}
		bound := elementwiseBound(op, prog.Bounds[a.idx], tensorMaxAbs(c))
		dst := l.alloc(node.Output, a.rows, a.cols, bound)
		return Instruction{
			Op: op, Dst: dst.idx, Src: a.idx, Src2: -1, Const: ci,
			Rows: a.rows, Cols: a.cols,
		}, nil

	case "reduce_sum":
		if len(node.Inputs) != 1 {
			return Instruction{}, fmt.Errorf("%w: reduce_sum wants 1 input, got %d", ErrModelLoad, len(node.Inputs))
		}
		x, ok := l.regs[node.Inputs[0]]
		if !ok {
			return Instruction{}, fmt.Errorf("%w: undefined tensor %q", ErrModelLoad, node.Inputs[0])
		}
		bound := new(big.Int).Mul(prog.Bounds[x.idx], big.NewInt(int64(x.rows*x.cols)))
		dst := l.alloc(node.Output, 1, 1, bound)
		return Instruction{
			Op: OpReduceSum, Dst: dst.idx, Src: x.idx, Src2: -1, Const: -1,
			Rows: 1, Cols: 1,
		}, nil

	case "relu":
		if len(node.Inputs) != 1 {
			return Instruction{}, fmt.Errorf("%w: relu wants 1 input, got %d", ErrModelLoad, len(node.Inputs))
		}
		x, ok := l.regs[node.Inputs[0]]
		if !ok {
			return Instruction{}, fmt.Errorf("%w: undefined tensor %q", ErrModelLoad, node.Inputs[0])
		}
		bound := new(big.Int).Set(prog.Bounds[x.idx])
		dst := l.alloc(node.Output, x.rows, x.cols, bound)
		return Instruction{
			Op: OpRelu, Dst: dst.idx, Src: x.idx, Src2: -1, Const: -1,
			Rows: x.rows, Cols: x.cols,
			BoundBits: boundBits(bound),
		}, nil

	default:
		// Sigmoid, Softmax, ZipMap and friends live outside the proof
		// boundary; the classifier is exported without them.
		return Instruction{}, fmt.Errorf("%w: unsupported operator %q", ErrModelLoad, node.Op)
	}
}

// matMulBound returns max_j sum_i |W[i][j]| * inBound.
func matMulBound(inBound *big.Int, w Tensor) *big.Int {
	maxCol := new(big.Int)
	col := new(big.Int)
	abs := new(big.Int)
	for j := 0; j < w.Cols; j++ {
		col.SetInt64(0)
		for i := 0; i < w.Rows; i++ {
			abs.SetInt64(w.Data[i*w.Cols+j])
			col.Add(col, abs.Abs(abs))
		}
		if col.Cmp(maxCol) > 0 {
			maxCol.Set(col)
		}
	}
	return maxCol.Mul(maxCol, inBound)
}

func elementwiseBound(op OpCode, a, b *big.Int) *big.Int {
	out := new(big.Int)
	if op == OpMul {
		return out.Mul(a, b)
	}
	return out.Add(a, b)
}

func tensorMaxAbs(t Tensor) *big.Int {
	max := new(big.Int)
	abs := new(big.Int)
	for _, v := range t.Data {
		abs.SetInt64(v)
		abs.Abs(abs)
		if abs.Cmp(max) > 0 {
			max.Set(abs)
		}
	}
	return max
}

// boundBits returns a width k with |value| < 2^(k-1) for values capped by
// bound, floored at 1. The spare bit keeps the relu shift x + 2^(k-1)
// non-negative and leaves its top bit as the sign indicator.
func boundBits(bound *big.Int) int {
	if bound.Sign() == 0 {
		return 1
	}
	return bound.BitLen() + 1
}
