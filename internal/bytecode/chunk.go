package bytecode

import (
	"github.com/xirelogy/go-sable/internal/token"
	"github.com/xirelogy/go-sable/internal/value"
)

// Chunk is a compiled bytecode sequence with its constant pool and the
// prototypes of the function literals it creates.
type Chunk struct {
	Code   []byte
	Consts []value.Value
	Protos []*Prototype
	Spans  []SpanInfo
}

// Prototype represents a compiled function.
type Prototype struct {
	Name        string
	NumParams   int
	NumLocals   int // frame slots to reserve, parameters included
	NumUpvalues int
	Chunk       *Chunk
}

// SpanInfo maps bytecode offsets to source spans (start-inclusive).
type SpanInfo struct {
	Offset int
	Span   token.Span
}

func NewChunk() *Chunk {
	return &Chunk{}
}

// PushOp appends an opcode, recording the source span it came from.
func (c *Chunk) PushOp(op byte, span token.Span) {
	n := len(c.Spans)
	if n == 0 || c.Spans[n-1].Span != span {
		c.Spans = append(c.Spans, SpanInfo{Offset: len(c.Code), Span: span})
	}
	c.Code = append(c.Code, op)
}

func (c *Chunk) PushU8(v byte) {
	c.Code = append(c.Code, v)
}

func (c *Chunk) PushU16(v uint16) {
	c.Code = append(c.Code, byte(v>>8), byte(v))
}

// AddConst appends a constant and returns its pool index.
func (c *Chunk) AddConst(v value.Value) uint16 {
	c.Consts = append(c.Consts, v)
	return uint16(len(c.Consts) - 1)
}

// AddProto appends a function prototype and returns its index.
func (c *Chunk) AddProto(p *Prototype) uint16 {
	c.Protos = append(c.Protos, p)
	return uint16(len(c.Protos) - 1)
}

// PushConst emits OP_CONST for the given value.
func (c *Chunk) PushConst(v value.Value, span token.Span) {
	idx := c.AddConst(v)
	c.PushOp(OP_CONST, span)
	c.PushU16(idx)
}

// EmitJump emits a jump with a placeholder offset and returns the position
// of the operand for later patching.
func (c *Chunk) EmitJump(op byte, span token.Span) int {
	c.PushOp(op, span)
	pos := len(c.Code)
	c.PushU16(0)
	return pos
}

// PatchJump points the placeholder at pos to the current end of the code.
// Jump offsets are relative to the instruction following the operand.
func (c *Chunk) PatchJump(pos int) {
	rel := len(c.Code) - (pos + 2)
	c.Code[pos] = byte(int16(rel) >> 8)
	c.Code[pos+1] = byte(int16(rel))
}

// EmitLoop emits a backward jump to target, which must precede the
// current end of the code.
func (c *Chunk) EmitLoop(target int, span token.Span) {
	c.PushOp(OP_JUMP, span)
	rel := target - (len(c.Code) + 2)
	c.PushU16(uint16(int16(rel)))
}

// SpanForOffset returns the source span of the instruction at offset.
func (c *Chunk) SpanForOffset(offset int) token.Span {
	var span token.Span
	for _, info := range c.Spans {
		if info.Offset > offset {
			break
		}
		span = info.Span
	}
	return span
}
