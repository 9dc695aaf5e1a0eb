package compiler

// local is a declared name in the current function frame. Captured locals
// hold a heap cell in their slot instead of the value itself.
type local struct {
	name      string
	depth     int
	isPointer bool
}

// loopCtx collects the jump patch points of one enclosing loop.
type loopCtx struct {
	continueTarget int
	breakJumps     []int
}

// addLocal reserves the next frame slot for name. Shadowing declares a
// fresh slot; lookup finds the newest.
func (fc *funcCompiler) addLocal(name string, isPointer bool) (uint8, bool) {
	if len(fc.locals) >= 256 {
		return 0, false
	}
	slot := uint8(len(fc.locals))
	fc.locals = append(fc.locals, local{name: name, depth: fc.scopeDepth, isPointer: isPointer})
	if len(fc.locals) > fc.maxLocals {
		fc.maxLocals = len(fc.locals)
	}
	return slot, true
}

// resolveLocal finds the newest local with the given name.
func (fc *funcCompiler) resolveLocal(name string) (uint8, bool, bool) {
	for i := len(fc.locals) - 1; i >= 0; i-- {
		if fc.locals[i].name == name {
			return uint8(i), fc.locals[i].isPointer, true
		}
	}
	return 0, false, false
}

func (fc *funcCompiler) beginScope() {
	fc.scopeDepth++
}

// endScope forgets the locals of the closing scope. Their slots are
// reused by later siblings; the frame reserves the high-water mark.
func (fc *funcCompiler) endScope() {
	fc.scopeDepth--
	n := len(fc.locals)
	for n > 0 && fc.locals[n-1].depth > fc.scopeDepth {
		n--
	}
	fc.locals = fc.locals[:n]
}

func (fc *funcCompiler) pushLoop(continueTarget int) *loopCtx {
	ctx := &loopCtx{continueTarget: continueTarget}
	fc.loops = append(fc.loops, ctx)
	return ctx
}

func (fc *funcCompiler) popLoop() *loopCtx {
	ctx := fc.loops[len(fc.loops)-1]
	fc.loops = fc.loops[:len(fc.loops)-1]
	return ctx
}

func (fc *funcCompiler) currentLoop() *loopCtx {
	if len(fc.loops) == 0 {
		return nil
	}
	return fc.loops[len(fc.loops)-1]
}
