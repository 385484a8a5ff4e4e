package vensim

import (
	"errors"
	"fmt"
	"sort"
)

// TimeColumn is the engine-native label of the time index in result tables.
const TimeColumn = "time"

// Control parameter keys.
const (
	keyInitialTime = "initial time"
	keyFinalTime   = "final time"
	keyTimeStep    = "time step"
	keySavePeriod  = "saveper"
	keyTime        = "time"
)

type varKind int

const (
	kindAux varKind = iota
	kindStock
	kindLookup
)

type variable struct {
	key  string
	name string
	kind varKind
	idx  int

	expr  node // aux
	rate  node // stock
	init  node // stock
	table *table

	stockIdx int
}

// Model is a compiled equation set ready to be simulated. A Model is
// immutable and may be run concurrently.
type Model struct {
	vars    map[string]*variable
	ordered []*variable // declaration order, lookups included
	columns []*variable // ordered minus lookups
	stocks  []*variable
}

// Parse compiles the equations of an .mdl artifact.
func Parse(src []byte) (*Model, error) {
	eqs, err := splitEquations(src)
	if err != nil {
		return nil, err
	}

	m := &Model{vars: make(map[string]*variable, len(eqs))}
	for _, eq := range eqs {
		v, err := compileEquation(eq)
		if err != nil {
			return nil, err
		}
		if v.key == keyTime {
			return nil, &ModelError{Variable: v.name, Msg: "TIME is reserved"}
		}
		if prev, dup := m.vars[v.key]; dup {
			return nil, &ModelError{Variable: v.name, Msg: fmt.Sprintf("defined more than once (also as %q)", prev.name)}
		}
		v.idx = len(m.ordered)
		m.vars[v.key] = v
		m.ordered = append(m.ordered, v)
		switch v.kind {
		case kindStock:
			v.stockIdx = len(m.stocks)
			m.stocks = append(m.stocks, v)
			m.columns = append(m.columns, v)
		case kindAux:
			m.columns = append(m.columns, v)
		}
	}

	for _, key := range []string{keyInitialTime, keyFinalTime, keyTimeStep} {
		if v, ok := m.vars[key]; !ok || v.kind != kindAux {
			return nil, &ModelError{Msg: fmt.Sprintf("control parameter %q is missing", key)}
		}
	}
	if err := m.checkReferences(); err != nil {
		return nil, err
	}
	if err := m.checkCycles(); err != nil {
		return nil, err
	}
	return m, nil
}

func compileEquation(eq equation) (*variable, error) {
	v := &variable{key: nameKey(eq.name), name: displayName(eq.name)}
	if v.key == "" {
		return nil, &SyntaxError{Msg: "empty variable name"}
	}
	if eq.lookup {
		tbl, err := parseTableDefinition(eq.rhs)
		if err != nil {
			return nil, withVariable(err, v.name)
		}
		v.kind = kindLookup
		v.table = tbl
		return v, nil
	}

	n, err := parseExpr(eq.rhs)
	if err != nil {
		return nil, withVariable(err, v.name)
	}
	if call, ok := n.(callNode); ok && call.fn == "integ" {
		if len(call.args) != 2 {
			return nil, &ModelError{Variable: v.name, Msg: fmt.Sprintf("INTEG takes 2 arguments, got %d", len(call.args))}
		}
		v.kind = kindStock
		v.rate, v.init = call.args[0], call.args[1]
		if containsInteg(v.rate) || containsInteg(v.init) {
			return nil, &ModelError{Variable: v.name, Msg: "nested INTEG is not supported", Err: ErrUnsupported}
		}
		return v, nil
	}
	if containsInteg(n) {
		return nil, &ModelError{Variable: v.name, Msg: "INTEG must be the outermost function of a stock", Err: ErrUnsupported}
	}
	v.kind = kindAux
	v.expr = n
	return v, nil
}

func withVariable(err error, name string) error {
	var se *SyntaxError
	if errors.As(err, &se) && se.Variable == "" {
		se.Variable = name
	}
	return err
}

func containsInteg(n node) bool {
	switch t := n.(type) {
	case callNode:
		if t.fn == "integ" {
			return true
		}
		for _, a := range t.args {
			if containsInteg(a) {
				return true
			}
		}
	case unaryNode:
		return containsInteg(t.x)
	case binaryNode:
		return containsInteg(t.l) || containsInteg(t.r)
	case withLookupNode:
		return containsInteg(t.input)
	}
	return false
}

// checkReferences verifies every name and function an equation uses
// resolves, and that calls match their callee's arity.
func (m *Model) checkReferences() error {
	for _, v := range m.ordered {
		var roots []node
		switch v.kind {
		case kindAux:
			roots = []node{v.expr}
		case kindStock:
			roots = []node{v.rate, v.init}
		}
		for _, root := range roots {
			if err := m.checkNode(v, root); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *Model) checkNode(owner *variable, n node) error {
	switch t := n.(type) {
	case refNode:
		if t.key == keyTime {
			return nil
		}
		target, ok := m.vars[t.key]
		if !ok {
			return &ModelError{Variable: owner.name, Msg: fmt.Sprintf("reference to undefined variable %q", t.name)}
		}
		if target.kind == kindLookup {
			return &ModelError{Variable: owner.name, Msg: fmt.Sprintf("lookup %q must be called with an argument", t.name)}
		}
	case unaryNode:
		return m.checkNode(owner, t.x)
	case binaryNode:
		if err := m.checkNode(owner, t.l); err != nil {
			return err
		}
		return m.checkNode(owner, t.r)
	case withLookupNode:
		return m.checkNode(owner, t.input)
	case callNode:
		if b, ok := builtins[t.fn]; ok {
			if len(t.args) < b.minArgs || len(t.args) > b.maxArgs {
				return &ModelError{Variable: owner.name, Msg: fmt.Sprintf("%s takes %d arguments, got %d", t.name, b.minArgs, len(t.args))}
			}
		} else if target, ok := m.vars[t.fn]; ok && target.kind == kindLookup {
			if len(t.args) != 1 {
				return &ModelError{Variable: owner.name, Msg: fmt.Sprintf("lookup %q takes 1 argument, got %d", t.name, len(t.args))}
			}
		} else {
			return &ModelError{Variable: owner.name, Msg: fmt.Sprintf("unknown function %q", t.name), Err: ErrUnsupported}
		}
		for _, a := range t.args {
			if err := m.checkNode(owner, a); err != nil {
				return err
			}
		}
	}
	return nil
}

// checkCycles rejects auxiliaries that depend on themselves without an
// intervening stock.
func (m *Model) checkCycles() error {
	state := make([]evalState, len(m.ordered))
	var visit func(v *variable) error
	visit = func(v *variable) error {
		switch state[v.idx] {
		case done:
			return nil
		case visiting:
			return &ModelError{Variable: v.name, Msg: "circular dependency between auxiliaries"}
		}
		state[v.idx] = visiting
		deps := make(map[string]struct{})
		v.expr.refs(deps)
		for key := range deps {
			if dep, ok := m.vars[key]; ok && dep.kind == kindAux {
				if err := visit(dep); err != nil {
					return err
				}
			}
		}
		state[v.idx] = done
		return nil
	}
	for _, v := range m.ordered {
		if v.kind != kindAux {
			continue
		}
		if err := visit(v); err != nil {
			return err
		}
	}
	return nil
}

// Columns lists the reported variable names in declaration order.
func (m *Model) Columns() []string {
	out := make([]string, len(m.columns))
	for i, v := range m.columns {
		out[i] = v.name
	}
	return out
}

// Stocks lists the names of integrated variables, sorted.
func (m *Model) Stocks() []string {
	out := make([]string, len(m.stocks))
	for i, v := range m.stocks {
		out[i] = v.name
	}
	sort.Strings(out)
	return out
}

// lookupVar finds a variable by any spelling of its name.
func (m *Model) lookupVar(name string) (*variable, bool) {
	v, ok := m.vars[nameKey(name)]
	return v, ok
}

func isControl(key string) bool {
	switch key {
	case keyInitialTime, keyFinalTime, keyTimeStep, keySavePeriod:
		return true
	}
	return false
}
