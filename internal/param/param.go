// Package param provides named scalar values that setters read and write.
package param

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"hypersched/internal/storage"
)

var (
	// ErrResolution is returned by Setup when the backing reference cannot
	// be located.
	ErrResolution = errors.New("param resolution failed")
	// ErrBackingUnavailable is returned when a param is read or written
	// before it has been resolved.
	ErrBackingUnavailable = errors.New("param backing unavailable")
)

// Param is a gettable/settable scalar with a stable display name.
type Param interface {
	ReadableName() string
	Setup(ctx context.Context) error
	Value(ctx context.Context) (float64, error)
	SetValue(ctx context.Context, v float64) error
}

// ReadableName strips an output index suffix (":0") from a raw variable name.
func ReadableName(raw string) string {
	idx := strings.LastIndexByte(raw, ':')
	if idx <= 0 || idx == len(raw)-1 {
		return raw
	}
	if _, err := strconv.Atoi(raw[idx+1:]); err != nil {
		return raw
	}
	return raw[:idx]
}

// VarParam is backed by a named variable in a variable store.
type VarParam struct {
	name  string
	store storage.VariableStore

	once     sync.Once
	setupErr error
	varName  string
	resolved bool
}

func NewVarParam(name string, store storage.VariableStore) *VarParam {
	return &VarParam{name: name, store: store}
}

func (p *VarParam) ReadableName() string { return ReadableName(p.name) }

// Setup scans the store's variable list for an exact name match. It runs at
// most once; later calls return the first outcome.
func (p *VarParam) Setup(ctx context.Context) error {
	p.once.Do(func() {
		p.setupErr = p.resolve(ctx)
	})
	return p.setupErr
}

func (p *VarParam) resolve(ctx context.Context) error {
	if p.store == nil {
		return fmt.Errorf("%w: %s has no variable store", ErrResolution, p.name)
	}
	names, err := p.store.ListVariables(ctx)
	if err != nil {
		return fmt.Errorf("list variables: %w", err)
	}
	want := p.ReadableName()
	for _, name := range names {
		if name == want {
			p.varName = name
			p.resolved = true
			return nil
		}
	}
	return fmt.Errorf("%w: %s is not a variable in the store", ErrResolution, want)
}

func (p *VarParam) Value(ctx context.Context) (float64, error) {
	if !p.resolved {
		return 0, fmt.Errorf("%w: %s", ErrBackingUnavailable, p.name)
	}
	v, ok, err := p.store.GetVariable(ctx, p.varName)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("%w: %s disappeared from the store", ErrBackingUnavailable, p.varName)
	}
	return v, nil
}

func (p *VarParam) SetValue(ctx context.Context, v float64) error {
	if !p.resolved {
		return fmt.Errorf("%w: %s", ErrBackingUnavailable, p.name)
	}
	return p.store.SetVariable(ctx, p.varName, v)
}

// FuncParam exposes a host-owned value through a getter/setter pair.
type FuncParam struct {
	name string
	get  func() float64
	set  func(float64)
}

// NewFuncParam wraps get/set closures. An empty readable name falls back
// to attr.
func NewFuncParam(attr, readableName string, get func() float64, set func(float64)) *FuncParam {
	if readableName == "" {
		readableName = attr
	}
	return &FuncParam{name: readableName, get: get, set: set}
}

func (p *FuncParam) ReadableName() string { return p.name }

func (p *FuncParam) Setup(context.Context) error {
	if p.get == nil || p.set == nil {
		return fmt.Errorf("%w: %s requires both getter and setter", ErrResolution, p.name)
	}
	return nil
}

func (p *FuncParam) Value(context.Context) (float64, error) {
	if p.get == nil {
		return 0, fmt.Errorf("%w: %s", ErrBackingUnavailable, p.name)
	}
	return p.get(), nil
}

func (p *FuncParam) SetValue(_ context.Context, v float64) error {
	if p.set == nil {
		return fmt.Errorf("%w: %s", ErrBackingUnavailable, p.name)
	}
	p.set(v)
	return nil
}

// Float64 is a convenience FuncParam over a plain float64 field.
func Float64(name string, ptr *float64) *FuncParam {
	return NewFuncParam(name, "", func() float64 { return *ptr }, func(v float64) { *ptr = v })
}
