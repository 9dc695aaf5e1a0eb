package vm

import (
	"github.com/xirelogy/go-sable/internal/bytecode"
	"github.com/xirelogy/go-sable/internal/runtime"
	"github.com/xirelogy/go-sable/internal/token"
	"github.com/xirelogy/go-sable/internal/value"
)

const maxCallDepth = 1024

// Closure pairs a prototype with the cells it captured.
type Closure struct {
	Proto    *bytecode.Prototype
	Upvalues []*value.Cell
}

func (c *Closure) FnName() string { return c.Proto.Name }
func (c *Closure) FnArity() int   { return c.Proto.NumParams }

// frame is one active call. Its locals live on the shared value stack in
// the window starting at rbp; temporaries grow above them.
type frame struct {
	closure *Closure
	ip      int
	rbp     int
	lastOp  int
}

// VM executes compiled scripts. Globals are stored in dense slots laid
// out by the compiler; built-ins are seeded into their slots up front and
// behave like any other global binding.
type VM struct {
	globals     []value.Value
	globalNames []string
	stack       []value.Value
	frames      []frame
}

// New prepares a VM for the given global layout. Slots named in seed
// start with the provided values; all others start nil.
func New(globalNames []string, seed map[string]value.Value) *VM {
	globals := make([]value.Value, len(globalNames))
	for i := range globals {
		globals[i] = value.Nil()
	}
	for i, name := range globalNames {
		if v, ok := seed[name]; ok {
			globals[i] = v
		}
	}
	return &VM{
		globals:     globals,
		globalNames: globalNames,
	}
}

// Global returns the current value of a named global.
func (m *VM) Global(name string) (value.Value, bool) {
	for i, n := range m.globalNames {
		if n == name {
			return m.globals[i], true
		}
	}
	return value.Value{}, false
}

// Run executes the script prototype and returns its output value.
func (m *VM) Run(script *bytecode.Prototype) (value.Value, error) {
	m.stack = m.stack[:0]
	m.frames = m.frames[:0]

	m.frames = append(m.frames, frame{
		closure: &Closure{Proto: script},
		rbp:     0,
	})
	m.reserve(script.NumLocals)
	return m.run()
}

func (m *VM) run() (value.Value, error) {
	for {
		fr := &m.frames[len(m.frames)-1]
		chunk := fr.closure.Proto.Chunk
		code := chunk.Code
		fr.lastOp = fr.ip
		op := code[fr.ip]
		fr.ip++

		switch op {
		case bytecode.OP_CONST:
			idx := m.readU16(fr, code)
			m.push(chunk.Consts[idx])

		case bytecode.OP_NIL:
			m.push(value.Nil())
		case bytecode.OP_TRUE:
			m.push(value.Bool(true))
		case bytecode.OP_FALSE:
			m.push(value.Bool(false))
		case bytecode.OP_EMPTY_POINTER:
			m.push(value.NewCell())
		case bytecode.OP_DISCARD:
			m.pop()
		case bytecode.OP_DROP:
			n := int(m.readU8(fr, code))
			v := m.pop()
			m.stack = m.stack[:len(m.stack)-n]
			m.push(v)

		case bytecode.OP_ADD, bytecode.OP_SUB, bytecode.OP_MULT, bytecode.OP_DIV,
			bytecode.OP_MODULO, bytecode.OP_POWER:
			y := m.pop()
			x := m.pop()
			res, err := binaryOp(op, x, y)
			if err != nil {
				return value.Value{}, m.located(fr, err)
			}
			m.push(res)

		case bytecode.OP_NEGATE:
			res, err := value.Negate(m.pop())
			if err != nil {
				return value.Value{}, m.located(fr, err)
			}
			m.push(res)
		case bytecode.OP_NOT:
			res, _ := value.Not(m.pop())
			m.push(res)

		case bytecode.OP_EQ:
			y := m.pop()
			x := m.pop()
			m.push(value.Bool(value.Equal(x, y)))
		case bytecode.OP_NEQ:
			y := m.pop()
			x := m.pop()
			m.push(value.Bool(!value.Equal(x, y)))
		case bytecode.OP_LT, bytecode.OP_LTE, bytecode.OP_GT, bytecode.OP_GTE:
			y := m.pop()
			x := m.pop()
			cmp, err := value.Compare(x, y)
			if err != nil {
				return value.Value{}, m.located(fr, err)
			}
			m.push(value.Bool(compareResult(op, cmp)))

		case bytecode.OP_READ_LOCAL:
			slot := int(m.readU8(fr, code))
			m.push(m.stack[fr.rbp+slot])
		case bytecode.OP_ASSIGN_LOCAL:
			slot := int(m.readU8(fr, code))
			m.stack[fr.rbp+slot] = m.peek()
		case bytecode.OP_READ_POINTER:
			slot := int(m.readU8(fr, code))
			cell := m.stack[fr.rbp+slot]
			if cell.Kind != value.KindPointer {
				return value.Value{}, m.errorf(fr, "corrupted frame: slot %d is not a pointer", slot)
			}
			m.push(cell.Cell.V)
		case bytecode.OP_ASSIGN_POINTER:
			slot := int(m.readU8(fr, code))
			cell := m.stack[fr.rbp+slot]
			if cell.Kind != value.KindPointer {
				return value.Value{}, m.errorf(fr, "corrupted frame: slot %d is not a pointer", slot)
			}
			cell.Cell.V = value.Deref(m.peek())

		case bytecode.OP_READ_UPVALUE:
			idx := int(m.readU8(fr, code))
			m.push(fr.closure.Upvalues[idx].V)
		case bytecode.OP_ASSIGN_UPVALUE:
			idx := int(m.readU8(fr, code))
			fr.closure.Upvalues[idx].V = value.Deref(m.peek())

		case bytecode.OP_READ_GLOBAL:
			slot := m.readU16(fr, code)
			m.push(m.globals[slot])
		case bytecode.OP_ASSIGN_GLOBAL:
			slot := m.readU16(fr, code)
			m.globals[slot] = value.Deref(m.peek())

		case bytecode.OP_READ_INDEX:
			at := m.pop()
			base := m.pop()
			res, err := value.ReadAtIndex(base, at)
			if err != nil {
				return value.Value{}, m.located(fr, err)
			}
			m.push(res)
		case bytecode.OP_ASSIGN_INDEX:
			v := m.pop()
			at := m.pop()
			base := m.pop()
			if err := value.AssignAtIndex(base, at, v); err != nil {
				return value.Value{}, m.located(fr, err)
			}
			m.push(v)
		case bytecode.OP_READ_SLICE:
			step := m.pop()
			stop := m.pop()
			start := m.pop()
			base := m.pop()
			res, err := value.ReadAtSlice(base, start, stop, step)
			if err != nil {
				return value.Value{}, m.located(fr, err)
			}
			m.push(res)

		case bytecode.OP_LIST_FROM_VALUES:
			n := int(m.readU8(fr, code))
			items := make([]value.Value, n)
			for i := 0; i < n; i++ {
				items[i] = value.Deref(m.stack[len(m.stack)-n+i])
			}
			m.stack = m.stack[:len(m.stack)-n]
			m.push(value.NewList(items))
		case bytecode.OP_LIST_FROM_SLICE:
			step := m.pop()
			stop := m.pop()
			start := m.pop()
			res, err := value.ListFromSlice(start, stop, step)
			if err != nil {
				return value.Value{}, m.located(fr, err)
			}
			m.push(res)

		case bytecode.OP_ITER_PREP:
			coll := value.Deref(m.pop())
			if coll.Kind != value.KindList && coll.Kind != value.KindString {
				return value.Value{}, m.errorf(fr, "Cannot iterate over a %s", value.TypeName(coll))
			}
			m.push(coll)
			m.push(value.Int(0))
		case bytecode.OP_ITER_NEXT:
			rel := m.readI16(fr, code)
			idx := m.stack[len(m.stack)-1]
			coll := m.stack[len(m.stack)-2]
			if int(idx.I) >= iterLen(coll) {
				fr.ip += int(rel)
				continue
			}
			elem, err := value.ReadAtIndex(coll, idx)
			if err != nil {
				return value.Value{}, m.located(fr, err)
			}
			m.stack[len(m.stack)-1] = value.Int(idx.I + 1)
			m.push(elem)

		case bytecode.OP_JUMP:
			rel := m.readI16(fr, code)
			fr.ip += int(rel)
		case bytecode.OP_JUMP_IF_FALSE:
			rel := m.readI16(fr, code)
			if !value.Truthy(m.pop()) {
				fr.ip += int(rel)
			}
		case bytecode.OP_JUMP_IF_TRUE:
			rel := m.readI16(fr, code)
			if value.Truthy(m.pop()) {
				fr.ip += int(rel)
			}
		case bytecode.OP_JUMP_IF_FALSE_KEEP:
			rel := m.readI16(fr, code)
			if !value.Truthy(m.peek()) {
				fr.ip += int(rel)
			}

		case bytecode.OP_CALL:
			argc := int(m.readU8(fr, code))
			if err := m.call(fr, argc); err != nil {
				return value.Value{}, err
			}

		case bytecode.OP_RETURN:
			result := m.pop()
			if len(m.frames) == 1 {
				return result, nil
			}
			m.stack = m.stack[:fr.rbp-1] // drop locals and the callee
			m.frames = m.frames[:len(m.frames)-1]
			m.push(result)

		case bytecode.OP_CLOSURE:
			idx := m.readU16(fr, code)
			proto := chunk.Protos[idx]
			ups := make([]*value.Cell, proto.NumUpvalues)
			for i := range ups {
				isLocal := m.readU8(fr, code)
				slot := int(m.readU8(fr, code))
				if isLocal == 1 {
					cv := m.stack[fr.rbp+slot]
					if cv.Kind != value.KindPointer {
						return value.Value{}, m.errorf(fr, "corrupted frame: slot %d is not a pointer", slot)
					}
					ups[i] = cv.Cell
				} else {
					ups[i] = fr.closure.Upvalues[slot]
				}
			}
			m.push(value.FunctionVal(&Closure{Proto: proto, Upvalues: ups}))

		case bytecode.OP_NOP:

		default:
			return value.Value{}, m.errorf(fr, "unknown opcode 0x%02x", op)
		}
	}
}

// call dispatches a callable with argc arguments already on the stack.
func (m *VM) call(fr *frame, argc int) error {
	calleeIdx := len(m.stack) - argc - 1
	callee := value.Deref(m.stack[calleeIdx])
	if callee.Kind != value.KindFunction {
		return m.errorf(fr, "Cannot call a %s", value.TypeName(callee))
	}

	switch fn := callee.Fn.(type) {
	case *value.Native:
		if argc != fn.Arity {
			return m.errorf(fr, "Function '%s' expected %d arguments but got %d", fn.Name, fn.Arity, argc)
		}
		args := make([]value.Value, argc)
		copy(args, m.stack[len(m.stack)-argc:])
		result, err := fn.Call(args)
		if err != nil {
			return m.located(fr, err)
		}
		m.stack = m.stack[:calleeIdx]
		m.push(result)
		return nil

	case *Closure:
		if argc != fn.Proto.NumParams {
			return m.errorf(fr, "Function '%s' expected %d arguments but got %d",
				callee.Fn.FnName(), fn.Proto.NumParams, argc)
		}
		if len(m.frames) >= maxCallDepth {
			return m.errorf(fr, "Stack overflow.")
		}
		m.frames = append(m.frames, frame{
			closure: fn,
			rbp:     len(m.stack) - argc,
		})
		m.reserve(fn.Proto.NumLocals - fn.Proto.NumParams)
		return nil

	default:
		return m.errorf(fr, "Cannot call a %s", value.TypeName(callee))
	}
}

func (m *VM) push(v value.Value) {
	m.stack = append(m.stack, v)
}

func (m *VM) pop() value.Value {
	v := m.stack[len(m.stack)-1]
	m.stack = m.stack[:len(m.stack)-1]
	return v
}

func (m *VM) peek() value.Value {
	return m.stack[len(m.stack)-1]
}

func (m *VM) reserve(n int) {
	for i := 0; i < n; i++ {
		m.push(value.Nil())
	}
}

func (m *VM) readU8(fr *frame, code []byte) byte {
	v := code[fr.ip]
	fr.ip++
	return v
}

func (m *VM) readU16(fr *frame, code []byte) uint16 {
	v := uint16(code[fr.ip])<<8 | uint16(code[fr.ip+1])
	fr.ip += 2
	return v
}

func (m *VM) readI16(fr *frame, code []byte) int16 {
	return int16(m.readU16(fr, code))
}

func (m *VM) span(fr *frame) token.Span {
	return fr.closure.Proto.Chunk.SpanForOffset(fr.lastOp)
}

func (m *VM) errorf(fr *frame, format string, args ...any) error {
	return runtime.Errorf(m.span(fr), format, args...)
}

func (m *VM) located(fr *frame, err error) error {
	return runtime.Locate(m.span(fr), err)
}

func binaryOp(op byte, x, y value.Value) (value.Value, error) {
	switch op {
	case bytecode.OP_ADD:
		return value.Add(x, y)
	case bytecode.OP_SUB:
		return value.Sub(x, y)
	case bytecode.OP_MULT:
		return value.Mult(x, y)
	case bytecode.OP_DIV:
		return value.Div(x, y)
	case bytecode.OP_MODULO:
		return value.Modulo(x, y)
	default:
		return value.Power(x, y)
	}
}

func compareResult(op byte, cmp int) bool {
	switch op {
	case bytecode.OP_LT:
		return cmp < 0
	case bytecode.OP_LTE:
		return cmp <= 0
	case bytecode.OP_GT:
		return cmp > 0
	default:
		return cmp >= 0
	}
}

func iterLen(coll value.Value) int {
	if coll.Kind == value.KindList {
		return len(coll.List.Items)
	}
	return len(coll.Str)
}
