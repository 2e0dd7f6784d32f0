package zkml

import (
	"crypto/sha256"
	"encoding/binary"
	"math/big"
)

// OpCode identifies one bytecode instruction.
type OpCode uint8

const (
	// OpInput loads the 60-element witness tensor into the destination
	// register.
	OpInput OpCode = iota + 1
	// OpMatMul multiplies the source register [1,n] by the constant-pool
	// matrix [n,m].
	OpMatMul
	// OpAdd adds two tensors element-wise (register + register or
	// register + constant).
	OpAdd
	// OpMul multiplies two tensors element-wise.
	OpMul
	// OpReduceSum sums a [1,n] tensor into [1,1].
	OpReduceSum
	// OpRelu clamps negative elements to zero.
	OpRelu
)

func (op OpCode) String() string {
	switch op {
	case OpInput:
		return "input"
	case OpMatMul:
		return "matmul"
	case OpAdd:
		return "add"
	case OpMul:
		return "mul"
	case OpReduceSum:
		return "reduce_sum"
	case OpRelu:
		return "relu"
	}
	return "invalid"
}

// Tensor is a constant-pool entry: row-major int64 data in fixed-point form.
type Tensor struct {
	Rows, Cols int
	Data       []int64
}

// Instruction is one step of the linear bytecode program. Operands are
// register indices; Const indexes the constant pool. Unused operands are -1.
type Instruction struct {
	Op    OpCode
	Dst   int
	Src   int
	Src2  int
	Const int

	// Rows, Cols describe the destination tensor shape.
	Rows, Cols int

	// BoundBits is set for OpRelu: a width k with |value| < 2^(k-1) for
	// every element reaching this instruction, per static analysis. The
	// extra bit beyond the magnitude bound is the sign slot of the shifted
	// in-circuit binary decomposition.
	BoundBits int
}

// Program is the flat bytecode form of a model graph. It is deterministic
// given the model: the same model file always produces a byte-identical
// program and digest, which is what lets preprocessing, proving, and
// verification agree across processes.
type Program struct {
	Name      string
	Scale     int64
	InputLen  int
	OutputLen int
	NumRegs   int
	OutputReg int
	Consts    []Tensor
	Code      []Instruction

	// Bounds holds the static magnitude bound of each register, indexed by
	// register number. Bounds are exact-arithmetic worst cases assuming every
	// witness element satisfies |x| <= InputBound.
	Bounds []*big.Int

	digest [32]byte
}

// InputBound caps witness element magnitude. Features are 32-bit signed
// integers, so admissible values lie in [-InputBound, InputBound).
const InputBound = int64(1) << 31

// Digest returns the SHA-256 digest of the canonical program encoding. It
// doubles as the recorded seed for commitment setup.
func (p *Program) Digest() [32]byte {
	return p.digest
}

// computeDigest fixes the canonical encoding: every field that affects
// execution semantics is hashed in a fixed order with fixed-width integers.
func (p *Program) computeDigest() {
	h := sha256.New()
	h.Write([]byte("zkml-program-v1"))
	writeU64 := func(v uint64) {
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], v)
		h.Write(buf[:])
	}
	writeI64 := func(v int64) { writeU64(uint64(v)) }

	h.Write([]byte(p.Name))
	writeI64(p.Scale)
	writeU64(uint64(p.InputLen))
	writeU64(uint64(p.OutputLen))
	writeU64(uint64(p.OutputReg))
	writeU64(uint64(len(p.Consts)))
	for _, c := range p.Consts {
		writeU64(uint64(c.Rows))
		writeU64(uint64(c.Cols))
		for _, v := range c.Data {
			writeI64(v)
		}
	}
	writeU64(uint64(len(p.Code)))
	for _, ins := range p.Code {
		h.Write([]byte{byte(ins.Op)})
		writeI64(int64(ins.Dst))
		writeI64(int64(ins.Src))
		writeI64(int64(ins.Src2))
		writeI64(int64(ins.Const))
		writeU64(uint64(ins.Rows))
		writeU64(uint64(ins.Cols))
		writeU64(uint64(ins.BoundBits))
	}
	copy(p.digest[:], h.Sum(nil))
}
