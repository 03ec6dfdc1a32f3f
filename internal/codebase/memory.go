package codebase

import (
	"context"
)

// Memory is an in-memory Codebase, used by tests and as the target shape
// backends build into.
type Memory struct {
	units []*MemoryUnit
}

// NewMemory creates an empty in-memory codebase.
func NewMemory() *Memory {
	return &Memory{}
}

// AddUnit appends a unit and returns it for population.
func (m *Memory) AddUnit(name string, referencesFramework bool) *MemoryUnit {
	u := &MemoryUnit{name: name, refsFramework: referencesFramework}
	m.units = append(m.units, u)
	return u
}

// Units implements Codebase.
func (m *Memory) Units(_ context.Context) ([]Unit, error) {
	units := make([]Unit, len(m.units))
	for i, u := range m.units {
		units[i] = u
	}
	return units, nil
}

// MemoryUnit is one in-memory compilable unit.
type MemoryUnit struct {
	name          string
	refsFramework bool
	decls         []*TypeDecl
	calls         []CallSite
}

// AddDecl appends a type declaration.
func (u *MemoryUnit) AddDecl(decl *TypeDecl) *MemoryUnit {
	u.decls = append(u.decls, decl)
	return u
}

// AddCall appends a call site.
func (u *MemoryUnit) AddCall(call CallSite) *MemoryUnit {
	u.calls = append(u.calls, call)
	return u
}

// Name implements Unit.
func (u *MemoryUnit) Name() string { return u.name }

// ReferencesFramework implements Unit.
func (u *MemoryUnit) ReferencesFramework() bool { return u.refsFramework }

// TypeDecls implements Unit.
func (u *MemoryUnit) TypeDecls() ([]*TypeDecl, error) { return u.decls, nil }

// CallSites implements Unit.
func (u *MemoryUnit) CallSites() ([]CallSite, error) { return u.calls, nil }
