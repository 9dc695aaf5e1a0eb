package bytecode

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xirelogy/go-sable/internal/value"
)

// Disassembler formats bytecode as a readable assembly-style dump.
type Disassembler struct {
	w       io.Writer
	visited map[*Prototype]bool
	printed bool
}

// NewDisassembler constructs a disassembler that writes to w.
func NewDisassembler(w io.Writer) *Disassembler {
	return &Disassembler{
		w:       w,
		visited: make(map[*Prototype]bool),
	}
}

// DisassemblePrototype emits a readable dump for a prototype and any
// nested prototypes.
func (d *Disassembler) DisassemblePrototype(label string, proto *Prototype) error {
	if proto == nil || proto.Chunk == nil {
		return fmt.Errorf("nil prototype")
	}
	if d.visited[proto] {
		return nil
	}
	d.visited[proto] = true
	d.startSection()
	name := label
	if name == "" {
		name = proto.Name
	}
	if name == "" {
		name = "<anon>"
	}
	fmt.Fprintf(d.w, "func %s (params=%d, locals=%d, upvalues=%d)\n",
		name, proto.NumParams, proto.NumLocals, proto.NumUpvalues)
	if err := d.disassembleChunk(proto.Chunk); err != nil {
		return err
	}
	for idx, child := range proto.Chunk.Protos {
		childName := child.Name
		if childName == "" {
			childName = fmt.Sprintf("<closure@proto:%d>", idx)
		}
		if err := d.DisassemblePrototype(childName, child); err != nil {
			return err
		}
	}
	return nil
}

// PrintNative emits a header for a native (host) function.
func (d *Disassembler) PrintNative(name string) {
	d.startSection()
	if name == "" {
		name = "<native>"
	}
	fmt.Fprintf(d.w, "func %s [native]\n", name)
}

func (d *Disassembler) startSection() {
	if d.printed {
		fmt.Fprintln(d.w)
	}
	d.printed = true
}

func (d *Disassembler) disassembleChunk(chunk *Chunk) error {
	if chunk == nil {
		return fmt.Errorf("nil chunk")
	}
	code := chunk.Code
	for ip := 0; ip < len(code); {
		offset := ip
		op := code[ip]
		ip++
		line := chunk.SpanForOffset(offset).Start.Line
		lineStr := "-"
		if line > 0 {
			lineStr = strconv.Itoa(line)
		}
		operands, err := d.decodeOperands(op, chunk, &ip)
		if err != nil {
			return err
		}
		fmt.Fprintf(d.w, "%04d %4s %-20s", offset, lineStr, opName(op))
		if detail := strings.TrimSpace(operands); detail != "" {
			fmt.Fprintf(d.w, " %s", detail)
		}
		fmt.Fprintln(d.w)
	}
	return nil
}

func (d *Disassembler) decodeOperands(op byte, chunk *Chunk, ip *int) (string, error) {
	code := chunk.Code
	switch op {
	case OP_CONST:
		idx, err := readU16(code, ip)
		if err != nil {
			return "", err
		}
		if int(idx) >= len(chunk.Consts) {
			return "", fmt.Errorf("const index out of range: %d", idx)
		}
		return fmt.Sprintf("%d ; const[%d]=%s", idx, idx, formatConst(chunk.Consts[idx])), nil
	case OP_READ_LOCAL, OP_ASSIGN_LOCAL, OP_READ_POINTER, OP_ASSIGN_POINTER,
		OP_READ_UPVALUE, OP_ASSIGN_UPVALUE,
		OP_DROP, OP_LIST_FROM_VALUES, OP_CALL:
		slot, err := readU8(code, ip)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%d", slot), nil
	case OP_READ_GLOBAL, OP_ASSIGN_GLOBAL:
		slot, err := readU16(code, ip)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%d", slot), nil
	case OP_JUMP, OP_JUMP_IF_FALSE, OP_JUMP_IF_TRUE, OP_JUMP_IF_FALSE_KEEP, OP_ITER_NEXT:
		rel, err := readI16(code, ip)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%+d ; to %04d", rel, *ip+int(rel)), nil
	case OP_CLOSURE:
		idx, err := readU16(code, ip)
		if err != nil {
			return "", err
		}
		if int(idx) >= len(chunk.Protos) {
			return "", fmt.Errorf("prototype index out of range: %d", idx)
		}
		proto := chunk.Protos[idx]
		upvals := make([]string, 0, proto.NumUpvalues)
		for i := 0; i < proto.NumUpvalues; i++ {
			isLocal, err := readU8(code, ip)
			if err != nil {
				return "", err
			}
			slot, err := readU8(code, ip)
			if err != nil {
				return "", err
			}
			if isLocal == 1 {
				upvals = append(upvals, fmt.Sprintf("local %d", slot))
			} else {
				upvals = append(upvals, fmt.Sprintf("upvalue %d", slot))
			}
		}
		operand := fmt.Sprintf("%d ; proto %s", idx, protoName(proto))
		if len(upvals) > 0 {
			operand += " [" + strings.Join(upvals, ", ") + "]"
		}
		return operand, nil
	default:
		return "", nil
	}
}

var opNames = map[byte]string{
	OP_CONST:              "OP_CONST",
	OP_NIL:                "OP_NIL",
	OP_TRUE:               "OP_TRUE",
	OP_FALSE:              "OP_FALSE",
	OP_EMPTY_POINTER:      "OP_EMPTY_POINTER",
	OP_DISCARD:            "OP_DISCARD",
	OP_DROP:               "OP_DROP",
	OP_ADD:                "OP_ADD",
	OP_SUB:                "OP_SUB",
	OP_MULT:               "OP_MULT",
	OP_DIV:                "OP_DIV",
	OP_MODULO:             "OP_MODULO",
	OP_POWER:              "OP_POWER",
	OP_NEGATE:             "OP_NEGATE",
	OP_NOT:                "OP_NOT",
	OP_EQ:                 "OP_EQ",
	OP_NEQ:                "OP_NEQ",
	OP_LT:                 "OP_LT",
	OP_LTE:                "OP_LTE",
	OP_GT:                 "OP_GT",
	OP_GTE:                "OP_GTE",
	OP_READ_LOCAL:         "OP_READ_LOCAL",
	OP_ASSIGN_LOCAL:       "OP_ASSIGN_LOCAL",
	OP_READ_POINTER:       "OP_READ_POINTER",
	OP_ASSIGN_POINTER:     "OP_ASSIGN_POINTER",
	OP_READ_UPVALUE:       "OP_READ_UPVALUE",
	OP_ASSIGN_UPVALUE:     "OP_ASSIGN_UPVALUE",
	OP_READ_GLOBAL:        "OP_READ_GLOBAL",
	OP_ASSIGN_GLOBAL:      "OP_ASSIGN_GLOBAL",
	OP_READ_INDEX:         "OP_READ_INDEX",
	OP_ASSIGN_INDEX:       "OP_ASSIGN_INDEX",
	OP_READ_SLICE:         "OP_READ_SLICE",
	OP_LIST_FROM_VALUES:   "OP_LIST_FROM_VALUES",
	OP_LIST_FROM_SLICE:    "OP_LIST_FROM_SLICE",
	OP_ITER_PREP:          "OP_ITER_PREP",
	OP_ITER_NEXT:          "OP_ITER_NEXT",
	OP_JUMP:               "OP_JUMP",
	OP_JUMP_IF_FALSE:      "OP_JUMP_IF_FALSE",
	OP_JUMP_IF_TRUE:       "OP_JUMP_IF_TRUE",
	OP_JUMP_IF_FALSE_KEEP: "OP_JUMP_IF_FALSE_KEEP",
	OP_CALL:               "OP_CALL",
	OP_RETURN:             "OP_RETURN",
	OP_CLOSURE:            "OP_CLOSURE",
	OP_NOP:                "OP_NOP",
}

func opName(op byte) string {
	if name, ok := opNames[op]; ok {
		return name
	}
	return fmt.Sprintf("OP_0x%02X", op)
}

func protoName(p *Prototype) string {
	if p.Name == "" {
		return "<anon>"
	}
	return p.Name
}

func readU8(code []byte, ip *int) (byte, error) {
	if *ip >= len(code) {
		return 0, fmt.Errorf("unexpected end of bytecode")
	}
	val := code[*ip]
	*ip = *ip + 1
	return val, nil
}

func readU16(code []byte, ip *int) (uint16, error) {
	if *ip+1 >= len(code) {
		return 0, fmt.Errorf("unexpected end of bytecode")
	}
	hi := code[*ip]
	lo := code[*ip+1]
	*ip += 2
	return uint16(hi)<<8 | uint16(lo), nil
}

func readI16(code []byte, ip *int) (int16, error) {
	v, err := readU16(code, ip)
	if err != nil {
		return 0, err
	}
	return int16(v), nil
}

func formatConst(v value.Value) string {
	if v.Kind == value.KindString {
		return strconv.Quote(v.Str)
	}
	return value.Stringify(v)
}
