package bytecode

// OpCode enumerates bytecode operations.
const (
	OP_CONST byte = iota // u16 constant index
	OP_NIL
	OP_TRUE
	OP_FALSE
	OP_EMPTY_POINTER
	OP_DISCARD
	OP_DROP // u8 slots removed below the preserved top value
	_       // reserved

	OP_ADD
	OP_SUB
	OP_MULT
	OP_DIV
	OP_MODULO
	OP_POWER
	OP_NEGATE
	OP_NOT

	OP_EQ
	OP_NEQ
	OP_LT
	OP_LTE
	OP_GT
	OP_GTE
	_ // reserved
	_ // reserved

	OP_READ_LOCAL     // u8 frame slot
	OP_ASSIGN_LOCAL   // u8 frame slot
	OP_READ_POINTER   // u8 frame slot holding a cell
	OP_ASSIGN_POINTER // u8 frame slot holding a cell
	OP_READ_UPVALUE   // u8 upvalue index
	OP_ASSIGN_UPVALUE // u8 upvalue index
	OP_READ_GLOBAL    // u16 global slot
	OP_ASSIGN_GLOBAL  // u16 global slot

	OP_READ_INDEX
	OP_ASSIGN_INDEX
	OP_READ_SLICE
	OP_LIST_FROM_VALUES // u8 element count
	OP_LIST_FROM_SLICE
	OP_ITER_PREP
	OP_ITER_NEXT // i16 relative offset taken when exhausted
	_            // reserved

	OP_JUMP               // i16 relative offset
	OP_JUMP_IF_FALSE      // i16, pops the predicate
	OP_JUMP_IF_TRUE       // i16, pops the predicate
	OP_JUMP_IF_FALSE_KEEP // i16, leaves the predicate on the stack
	_                     // reserved
	_                     // reserved
	_                     // reserved
	_                     // reserved

	OP_CALL    // u8 argument count
	OP_RETURN
	OP_CLOSURE // u16 prototype index, then (isLocal u8, slot u8) pairs
	OP_NOP
)
