package interp

import "github.com/xirelogy/go-sable/internal/value"

// Environment is a chain of lexical scopes. Every binding lives in a cell
// so that closures sharing the scope observe assignments.
type Environment struct {
	parent *Environment
	vars   map[string]*value.Cell
}

// NewEnvironment creates a scope nested in parent, or a root scope when
// parent is nil.
func NewEnvironment(parent *Environment) *Environment {
	return &Environment{
		parent: parent,
		vars:   map[string]*value.Cell{},
	}
}

// Define binds name in this scope, shadowing any outer binding.
func (e *Environment) Define(name string, v value.Value) {
	e.vars[name] = &value.Cell{V: value.Deref(v)}
}

// Assign writes the nearest binding of name, reporting whether one exists.
func (e *Environment) Assign(name string, v value.Value) bool {
	for env := e; env != nil; env = env.parent {
		if cell, ok := env.vars[name]; ok {
			cell.V = value.Deref(v)
			return true
		}
	}
	return false
}

// Read resolves the nearest binding of name.
func (e *Environment) Read(name string) (value.Value, bool) {
	for env := e; env != nil; env = env.parent {
		if cell, ok := env.vars[name]; ok {
			return cell.V, true
		}
	}
	return value.Value{}, false
}
