package brain

import "markovbrain/internal/genome"

// Kind selects gate behaviour; it is decoded as the header's second byte mod 6.
type Kind uint8

const (
	Zero Kind = iota
	Copy
	Deterministic
	SimpleConditional
	ComplexConditional
	Programming

	numKinds
)

var kindNames = [numKinds]string{
	Zero:               "zero",
	Copy:               "copy",
	Deterministic:      "deterministic",
	SimpleConditional:  "simpleConditional",
	ComplexConditional: "complexConditional",
	Programming:        "programming",
}

func (k Kind) String() string {
	if k < numKinds {
		return kindNames[k]
	}
	return "unknown"
}

// Kinds lists every gate kind in decode order.
func Kinds() []Kind {
	out := make([]Kind, numKinds)
	for i := range out {
		out[i] = Kind(i)
	}
	return out
}

// Op is the arithmetic selected by a programming gate.
type Op uint8

const (
	OpAdd Op = iota
	OpSub
	OpShl
	OpShr
)

// Gate is one decoded instruction. Fields that do not apply to Kind are zero.
type Gate struct {
	Kind     Kind
	Priority uint8
	RegGroup uint8
	Inputs   []int
	Outputs  []int
	Table    []byte
	Cutoff   uint8
	Op       Op
}

// decodeGate reads the gate whose header starts at start. Every read is
// circular, so headers near the end of the genome borrow bytes from its start.
func decodeGate(g *genome.Genome, start, memLen int) Gate {
	at := func(off int) byte { return g.At(start + off) }
	idx := func(off int) int { return int(at(off)) % memLen }
	indices := func(from, n int) []int {
		out := make([]int, n)
		for k := range out {
			out[k] = idx(from + k)
		}
		return out
	}

	gate := Gate{
		Kind:     Kind(at(1) % byte(numKinds)),
		Priority: at(2),
		RegGroup: at(3) % 16,
	}
	switch gate.Kind {
	case Zero:
		n := int(at(4)%3) + 1
		gate.Outputs = indices(5, n)
	case Copy:
		n := int(at(4)%3) + 1
		gate.Inputs = indices(5, n)
		gate.Outputs = indices(5+n, n)
	case Deterministic:
		nIn := int(at(4)%3) + 1
		nOut := int(at(5)%3) + 1
		gate.Inputs = indices(6, nIn)
		gate.Outputs = indices(6+nIn, nOut)
		tableStart := 6 + nIn + nOut
		gate.Table = make([]byte, (1<<nIn)*nOut)
		for k := range gate.Table {
			gate.Table[k] = at(tableStart + k)
		}
	case SimpleConditional:
		gate.Cutoff = at(4)
		gate.Inputs = indices(5, 3)
		gate.Outputs = indices(8, 1)
	case ComplexConditional:
		gate.Inputs = indices(4, 4)
		gate.Outputs = indices(8, 1)
	case Programming:
		gate.Op = Op(at(4) % 4)
		gate.Inputs = indices(5, 2)
		gate.Outputs = indices(7, 1)
	}
	return gate
}

// Execute applies the gate to mem in place.
func (g *Gate) Execute(mem []byte) {
	switch g.Kind {
	case Zero:
		for _, o := range g.Outputs {
			mem[o] = 0
		}
	case Copy:
		for k, in := range g.Inputs {
			mem[g.Outputs[k]] = mem[in]
		}
	case Deterministic:
		row := 0
		for _, in := range g.Inputs {
			row |= int(mem[in])
		}
		row %= 1 << len(g.Inputs)
		for k, o := range g.Outputs {
			mem[o] |= g.Table[len(g.Outputs)*row+k]
		}
	case SimpleConditional:
		if mem[g.Inputs[0]] <= g.Cutoff {
			mem[g.Outputs[0]] = mem[g.Inputs[1]]
		} else {
			mem[g.Outputs[0]] = mem[g.Inputs[2]]
		}
	case ComplexConditional:
		if mem[g.Inputs[0]] <= mem[g.Inputs[1]] {
			mem[g.Outputs[0]] = mem[g.Inputs[2]]
		} else {
			mem[g.Outputs[0]] = mem[g.Inputs[3]]
		}
	case Programming:
		a, b := uint32(mem[g.Inputs[0]]), uint32(mem[g.Inputs[1]])
		var v uint32
		switch g.Op {
		case OpAdd:
			v = a + b
		case OpSub:
			v = a - b
		case OpShl:
			v = a << (b & 31)
		case OpShr:
			v = a >> (b & 31)
		}
		mem[g.Outputs[0]] = byte(v)
	}
}
