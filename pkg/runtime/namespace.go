package runtime

import (
	"sort"
	"sync"
)

// DefaultNamespace is the namespace new sessions start in.
const DefaultNamespace = "user"

// CoreNamespace holds the builtins, referred into every user namespace.
const CoreNamespace = "slate.core"

// Meta is the metadata carried by a var.
type Meta struct {
	Doc      string
	File     string
	Line     int
	ArgLists [][]string
	Macro    bool
}

// Var is a named slot interned in a namespace.
type Var struct {
	ns   *Namespace
	name string

	mu    sync.RWMutex
	value Value
	meta  Meta
}

// Namespace returns the owning namespace.
func (v *Var) Namespace() *Namespace { return v.ns }

// Name returns the var's name within its namespace.
func (v *Var) Name() string { return v.name }

// Value returns the var's current value.
func (v *Var) Value() Value {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.value
}

// SetValue replaces the var's value.
func (v *Var) SetValue(val Value) {
	v.mu.Lock()
	v.value = val
	v.mu.Unlock()
}

// Meta returns a copy of the var's metadata.
func (v *Var) Meta() Meta {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.meta
}

// SetMeta replaces the var's metadata.
func (v *Var) SetMeta(m Meta) {
	v.mu.Lock()
	v.meta = m
	v.mu.Unlock()
}

// IsMacro reports whether the var holds a macro.
func (v *Var) IsMacro() bool {
	return v.Meta().Macro
}

// IsFn reports whether the var's value is callable.
func (v *Var) IsFn() bool {
	switch v.Value().(type) {
	case *Fn, *Builtin:
		return true
	}
	return false
}

// Namespace is a named scope of vars, with aliases to other namespaces
// and names referred in from elsewhere. Safe for concurrent use.
type Namespace struct {
	name string

	mu      sync.RWMutex
	vars    map[string]*Var
	aliases map[string]*Namespace
	refers  map[string]*Var
}

func newNamespace(name string) *Namespace {
	return &Namespace{
		name:    name,
		vars:    map[string]*Var{},
		aliases: map[string]*Namespace{},
		refers:  map[string]*Var{},
	}
}

// Name returns the namespace name.
func (ns *Namespace) Name() string { return ns.name }

// Intern returns the var named name in this namespace, creating an
// unbound one if it does not exist yet.
func (ns *Namespace) Intern(name string) *Var {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	if v, ok := ns.vars[name]; ok {
		return v
	}
	v := &Var{ns: ns, name: name}
	ns.vars[name] = v
	return v
}

// Lookup finds a var interned directly in this namespace.
func (ns *Namespace) Lookup(name string) (*Var, bool) {
	ns.mu.RLock()
	defer ns.mu.RUnlock()
	v, ok := ns.vars[name]
	return v, ok
}

// LookupReferred finds a var referred into this namespace.
func (ns *Namespace) LookupReferred(name string) (*Var, bool) {
	ns.mu.RLock()
	defer ns.mu.RUnlock()
	v, ok := ns.refers[name]
	return v, ok
}

// AddAlias binds a short local name to another namespace.
func (ns *Namespace) AddAlias(alias string, target *Namespace) {
	ns.mu.Lock()
	ns.aliases[alias] = target
	ns.mu.Unlock()
}

// Alias resolves a local alias to its target namespace.
func (ns *Namespace) Alias(alias string) (*Namespace, bool) {
	ns.mu.RLock()
	defer ns.mu.RUnlock()
	t, ok := ns.aliases[alias]
	return t, ok
}

// Aliases returns a snapshot of the alias table.
func (ns *Namespace) Aliases() map[string]*Namespace {
	ns.mu.RLock()
	defer ns.mu.RUnlock()
	out := make(map[string]*Namespace, len(ns.aliases))
	for k, v := range ns.aliases {
		out[k] = v
	}
	return out
}

// Refer imports a var into this namespace under its own name.
func (ns *Namespace) Refer(v *Var) {
	ns.mu.Lock()
	ns.refers[v.Name()] = v
	ns.mu.Unlock()
}

// ReferAll imports every var currently interned in other.
func (ns *Namespace) ReferAll(other *Namespace) {
	for _, v := range other.Vars() {
		ns.Refer(v)
	}
}

// Vars returns a snapshot of the vars interned in this namespace.
func (ns *Namespace) Vars() map[string]*Var {
	ns.mu.RLock()
	defer ns.mu.RUnlock()
	out := make(map[string]*Var, len(ns.vars))
	for k, v := range ns.vars {
		out[k] = v
	}
	return out
}

// Refers returns a snapshot of the referred vars.
func (ns *Namespace) Refers() map[string]*Var {
	ns.mu.RLock()
	defer ns.mu.RUnlock()
	out := make(map[string]*Var, len(ns.refers))
	for k, v := range ns.refers {
		out[k] = v
	}
	return out
}

// Env is the registry of loaded namespaces. Safe for concurrent use;
// the server's resolver and completion queries read it while
// evaluation writes through the namespace locks.
type Env struct {
	mu         sync.RWMutex
	namespaces map[string]*Namespace
}

// NewEnv creates a registry holding slate.core (with builtins bound)
// and a user namespace referring every core var.
func NewEnv() *Env {
	e := &Env{namespaces: map[string]*Namespace{}}
	core := e.FindOrCreate(CoreNamespace)
	installBuiltins(core)
	user := e.FindOrCreate(DefaultNamespace)
	user.ReferAll(core)
	return e
}

// Find returns the namespace with the given name, if loaded.
func (e *Env) Find(name string) (*Namespace, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ns, ok := e.namespaces[name]
	return ns, ok
}

// FindOrCreate returns the named namespace, creating it when missing.
func (e *Env) FindOrCreate(name string) *Namespace {
	e.mu.Lock()
	defer e.mu.Unlock()
	if ns, ok := e.namespaces[name]; ok {
		return ns
	}
	ns := newNamespace(name)
	e.namespaces[name] = ns
	return ns
}

// Names returns the loaded namespace names, sorted.
func (e *Env) Names() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	names := make([]string, 0, len(e.namespaces))
	for n := range e.namespaces {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// specialForms are the reserved syntactic constructs; they are never
// resolvable names.
var specialForms = map[string]string{
	"def":      "(def name value)",
	"defn":     "(defn name doc? [params] body)",
	"defmacro": "(defmacro name doc? [params] body)",
	"fn":       "(fn [params] body)",
	"if":       "(if test then else?)",
	"do":       "(do exprs...)",
	"let":      "(let [bindings] body)",
	"quote":    "(quote form)",
	"ns":       "(ns name)",
	"in-ns":    "(in-ns name)",
}

// IsSpecialForm reports whether name is a reserved special form.
func IsSpecialForm(name string) bool {
	_, ok := specialForms[name]
	return ok
}

// SpecialFormNames returns the reserved special form names, sorted.
func SpecialFormNames() []string {
	names := make([]string, 0, len(specialForms))
	for n := range specialForms {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
