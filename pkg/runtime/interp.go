package runtime

import (
	"context"
	"io"
)

// Version is the Slate runtime version reported by describe.
const Version = "0.4.2"

// EvalRequest carries one code submission into the evaluator.
type EvalRequest struct {
	// NS is the namespace to start evaluation in. Created if missing.
	NS string

	// Code is the source text; may contain any number of forms.
	Code string

	// Source labels the origin of Code in fault traces, e.g. "<nrepl>"
	// or a file path.
	Source string

	// Out receives printed output. Each print call performs exactly one
	// Write. Nil discards output.
	Out io.Writer
}

// EvalResult is the outcome of a successful evaluation.
type EvalResult struct {
	// Value is the printable form of the last evaluated form.
	Value string

	// NS is the namespace evaluation finished in. Forms like in-ns
	// switch it mid-evaluation and the switch is visible here.
	NS string
}

// Evaluator is the capability the server uses to execute submitted
// code. Errors of type *Fault are user-code faults; the result NS is
// valid even on fault, reflecting where evaluation left the namespace.
type Evaluator interface {
	Evaluate(ctx context.Context, req EvalRequest) (EvalResult, error)
}

// Interp is the tree-walking interpreter over an Env.
type Interp struct {
	env *Env
}

// NewInterp creates an interpreter over env.
func NewInterp(env *Env) *Interp {
	return &Interp{env: env}
}

// Env returns the namespace registry the interpreter evaluates in.
func (in *Interp) Env() *Env { return in.env }

// Evaluate implements Evaluator. Forms are evaluated in order; the
// first fault stops evaluation. The returned EvalResult.NS is always
// meaningful, even alongside a fault.
func (in *Interp) Evaluate(ctx context.Context, req EvalRequest) (EvalResult, error) {
	source := req.Source
	if source == "" {
		source = "<eval>"
	}
	nsName := req.NS
	if nsName == "" {
		nsName = DefaultNamespace
	}
	ec := &evalCtx{
		ctx:    ctx,
		env:    in.env,
		ns:     in.env.FindOrCreate(nsName),
		out:    req.Out,
		source: source,
	}

	forms, err := ReadString(req.Code)
	if err != nil {
		return EvalResult{NS: ec.ns.Name()}, ec.locate(err)
	}

	var last Value
	for _, form := range forms {
		if err := ctx.Err(); err != nil {
			return EvalResult{NS: ec.ns.Name()}, err
		}
		ec.line = form.Line
		last, err = ec.eval(form.Value, nil)
		if err != nil {
			return EvalResult{NS: ec.ns.Name()}, ec.locate(err)
		}
	}
	return EvalResult{Value: PrintString(last), NS: ec.ns.Name()}, nil
}

// evalCtx is the per-call evaluation state.
type evalCtx struct {
	ctx    context.Context
	env    *Env
	ns     *Namespace // current namespace; in-ns and ns mutate this
	out    io.Writer
	source string
	line   int
}

// locate stamps source/line onto faults that don't carry them yet and
// wraps foreign errors as faults.
func (ec *evalCtx) locate(err error) error {
	f, ok := err.(*Fault)
	if !ok {
		f = &Fault{Kind: "Error", Message: err.Error()}
	}
	if f.Source == "" {
		f.Source = ec.source
	}
	if f.Line == 0 {
		f.Line = ec.line
	}
	return f
}

// scope is a lexical binding frame.
type scope struct {
	parent *scope
	vars   map[string]Value
}

func (s *scope) lookup(name string) (Value, bool) {
	for cur := s; cur != nil; cur = cur.parent {
		if v, ok := cur.vars[name]; ok {
			return v, true
		}
	}
	return nil, false
}

func (ec *evalCtx) eval(form Value, sc *scope) (Value, error) {
	switch form := form.(type) {
	case Symbol:
		return ec.evalSymbol(form, sc)
	case List:
		return ec.evalList(form, sc)
	case Vector:
		out := make(Vector, len(form))
		for i, item := range form {
			v, err := ec.eval(item, sc)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	default:
		// Numbers, strings, keywords, booleans, nil self-evaluate.
		return form, nil
	}
}

func (ec *evalCtx) evalSymbol(sym Symbol, sc *scope) (Value, error) {
	nsPart, name := sym.Split()
	if nsPart == "" {
		if v, ok := sc.lookupIn(name); ok {
			return v, nil
		}
		if v, ok := ec.ns.Lookup(name); ok {
			return v.Value(), nil
		}
		if v, ok := ec.ns.LookupReferred(name); ok {
			return v.Value(), nil
		}
	} else {
		if target, ok := ec.resolveNs(nsPart); ok {
			if v, ok := target.Lookup(name); ok {
				return v.Value(), nil
			}
		}
	}
	return nil, NewFault("UnresolvedSymbol", "unable to resolve symbol: %s in this context", sym)
}

// lookupIn is a nil-safe scope lookup.
func (s *scope) lookupIn(name string) (Value, bool) {
	if s == nil {
		return nil, false
	}
	return s.lookup(name)
}

// resolveNs resolves a symbol's namespace segment: alias first, then
// loaded namespace name.
func (ec *evalCtx) resolveNs(nsPart string) (*Namespace, bool) {
	if target, ok := ec.ns.Alias(nsPart); ok {
		return target, true
	}
	return ec.env.Find(nsPart)
}

func (ec *evalCtx) evalList(form List, sc *scope) (Value, error) {
	if len(form) == 0 {
		return form, nil
	}
	if head, ok := form[0].(Symbol); ok {
		if _, name := head.Split(); name == string(head) {
			if fn := specialFormEval[name]; fn != nil {
				return fn(ec, form, sc)
			}
		}
		// Macro call: expand with unevaluated args, then evaluate the
		// expansion in the same scope.
		if mv, ok := ec.lookupMacro(head, sc); ok {
			expanded, err := ec.apply(mv.Value(), string(head), form[1:])
			if err != nil {
				return nil, ec.frame(err, form)
			}
			return ec.eval(expanded, sc)
		}
	}

	fn, err := ec.eval(form[0], sc)
	if err != nil {
		return nil, err
	}
	args := make([]Value, len(form)-1)
	for i, arg := range form[1:] {
		v, err := ec.eval(arg, sc)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	v, err := ec.apply(fn, PrintString(form[0]), args)
	if err != nil {
		return nil, ec.frame(err, form)
	}
	return v, nil
}

// lookupMacro finds a macro var for a call head, unless the name is
// shadowed by a local binding.
func (ec *evalCtx) lookupMacro(head Symbol, sc *scope) (*Var, bool) {
	nsPart, name := head.Split()
	if nsPart == "" {
		if _, shadowed := sc.lookupIn(name); shadowed {
			return nil, false
		}
		if v, ok := ec.ns.Lookup(name); ok && v.IsMacro() {
			return v, true
		}
		if v, ok := ec.ns.LookupReferred(name); ok && v.IsMacro() {
			return v, true
		}
		return nil, false
	}
	if target, ok := ec.resolveNs(nsPart); ok {
		if v, ok := target.Lookup(name); ok && v.IsMacro() {
			return v, true
		}
	}
	return nil, false
}

// frame annotates an unwinding fault with the form being evaluated.
func (ec *evalCtx) frame(err error, form Value) error {
	if f, ok := err.(*Fault); ok {
		f.pushFrame(form)
	}
	return err
}

func (ec *evalCtx) apply(fn Value, name string, args []Value) (Value, error) {
	switch fn := fn.(type) {
	case *Builtin:
		return fn.Fn(ec, args)
	case *Fn:
		return ec.applyFn(fn, args)
	default:
		return nil, NewFault("TypeError", "%s cannot be called as a function", name)
	}
}

func (ec *evalCtx) applyFn(fn *Fn, args []Value) (Value, error) {
	if fn.Rest == "" && len(args) != len(fn.Params) ||
		fn.Rest != "" && len(args) < len(fn.Params) {
		name := fn.Name
		if name == "" {
			name = "fn"
		}
		return nil, NewFault("ArityError", "wrong number of args (%d) passed to %s", len(args), name)
	}
	sc := &scope{parent: fn.scope, vars: make(map[string]Value, len(fn.Params)+1)}
	for i, p := range fn.Params {
		sc.vars[p] = args[i]
	}
	if fn.Rest != "" {
		rest := List{}
		if len(args) > len(fn.Params) {
			rest = List(args[len(fn.Params):])
		}
		sc.vars[fn.Rest] = rest
	}
	var last Value
	var err error
	for _, body := range fn.Body {
		last, err = ec.eval(body, sc)
		if err != nil {
			return nil, err
		}
	}
	return last, nil
}

// specialFormEval maps reserved form names to their evaluation rules.
// Populated in init to avoid an initialization cycle through eval.
var specialFormEval map[string]func(*evalCtx, List, *scope) (Value, error)

func init() {
	specialFormEval = map[string]func(*evalCtx, List, *scope) (Value, error){
		"quote":    evalQuote,
		"if":       evalIf,
		"do":       evalDo,
		"def":      evalDef,
		"defn":     evalDefn,
		"defmacro": evalDefmacro,
		"fn":       evalFn,
		"let":      evalLet,
		"ns":       evalNs,
		"in-ns":    evalInNs,
	}
}

func evalQuote(ec *evalCtx, form List, sc *scope) (Value, error) {
	if len(form) != 2 {
		return nil, NewFault("SyntaxError", "quote expects one argument")
	}
	return form[1], nil
}

func evalIf(ec *evalCtx, form List, sc *scope) (Value, error) {
	if len(form) < 3 || len(form) > 4 {
		return nil, NewFault("SyntaxError", "if expects 2 or 3 arguments")
	}
	cond, err := ec.eval(form[1], sc)
	if err != nil {
		return nil, err
	}
	if Truthy(cond) {
		return ec.eval(form[2], sc)
	}
	if len(form) == 4 {
		return ec.eval(form[3], sc)
	}
	return nil, nil
}

func evalDo(ec *evalCtx, form List, sc *scope) (Value, error) {
	var last Value
	var err error
	for _, f := range form[1:] {
		last, err = ec.eval(f, sc)
		if err != nil {
			return nil, err
		}
	}
	return last, nil
}

func evalDef(ec *evalCtx, form List, sc *scope) (Value, error) {
	if len(form) < 2 || len(form) > 3 {
		return nil, NewFault("SyntaxError", "def expects a name and an optional value")
	}
	name, ok := form[1].(Symbol)
	if !ok {
		return nil, NewFault("SyntaxError", "def name must be a symbol")
	}
	v := ec.ns.Intern(string(name))
	if len(form) == 3 {
		val, err := ec.eval(form[2], sc)
		if err != nil {
			return nil, err
		}
		v.SetValue(val)
	}
	meta := v.Meta()
	meta.File = ec.source
	meta.Line = ec.line
	v.SetMeta(meta)
	return v, nil
}

// parseFnTail parses doc? [params] body... starting at form[at].
func parseFnTail(form List, at int, name string) (doc string, params []string, rest string, body []Value, err error) {
	if at < len(form) {
		if d, ok := form[at].(string); ok {
			doc = d
			at++
		}
	}
	if at >= len(form) {
		return "", nil, "", nil, NewFault("SyntaxError", "%s is missing a parameter vector", name)
	}
	vec, ok := form[at].(Vector)
	if !ok {
		return "", nil, "", nil, NewFault("SyntaxError", "%s parameters must be a vector", name)
	}
	at++
	for i := 0; i < len(vec); i++ {
		p, ok := vec[i].(Symbol)
		if !ok {
			return "", nil, "", nil, NewFault("SyntaxError", "%s parameter is not a symbol", name)
		}
		if p == "&" {
			if i != len(vec)-2 {
				return "", nil, "", nil, NewFault("SyntaxError", "%s has a malformed rest parameter", name)
			}
			r, ok := vec[i+1].(Symbol)
			if !ok {
				return "", nil, "", nil, NewFault("SyntaxError", "%s rest parameter is not a symbol", name)
			}
			rest = string(r)
			break
		}
		params = append(params, string(p))
	}
	return doc, params, rest, form[at:], nil
}

// argList renders the parameter names, including the rest marker, for
// arglist metadata.
func argList(params []string, rest string) []string {
	out := append([]string{}, params...)
	if rest != "" {
		out = append(out, "&", rest)
	}
	return out
}

func evalDefn(ec *evalCtx, form List, sc *scope) (Value, error) {
	return defFn(ec, form, sc, "defn", false)
}

func evalDefmacro(ec *evalCtx, form List, sc *scope) (Value, error) {
	return defFn(ec, form, sc, "defmacro", true)
}

func defFn(ec *evalCtx, form List, sc *scope, what string, macro bool) (Value, error) {
	if len(form) < 3 {
		return nil, NewFault("SyntaxError", "%s expects a name, parameters and a body", what)
	}
	name, ok := form[1].(Symbol)
	if !ok {
		return nil, NewFault("SyntaxError", "%s name must be a symbol", what)
	}
	doc, params, rest, body, err := parseFnTail(form, 2, what)
	if err != nil {
		return nil, err
	}
	fn := &Fn{Name: string(name), Params: params, Rest: rest, Body: body, scope: sc}
	v := ec.ns.Intern(string(name))
	v.SetValue(fn)
	v.SetMeta(Meta{
		Doc:      doc,
		File:     ec.source,
		Line:     ec.line,
		ArgLists: [][]string{argList(params, rest)},
		Macro:    macro,
	})
	return v, nil
}

func evalFn(ec *evalCtx, form List, sc *scope) (Value, error) {
	at := 1
	name := ""
	if at < len(form) {
		if s, ok := form[at].(Symbol); ok {
			name = string(s)
			at++
		}
	}
	_, params, rest, body, err := parseFnTail(form, at, "fn")
	if err != nil {
		return nil, err
	}
	return &Fn{Name: name, Params: params, Rest: rest, Body: body, scope: sc}, nil
}

func evalLet(ec *evalCtx, form List, sc *scope) (Value, error) {
	if len(form) < 2 {
		return nil, NewFault("SyntaxError", "let expects a binding vector")
	}
	bindings, ok := form[1].(Vector)
	if !ok || len(bindings)%2 != 0 {
		return nil, NewFault("SyntaxError", "let bindings must be a vector of name/value pairs")
	}
	inner := &scope{parent: sc, vars: map[string]Value{}}
	for i := 0; i < len(bindings); i += 2 {
		name, ok := bindings[i].(Symbol)
		if !ok {
			return nil, NewFault("SyntaxError", "let binding name must be a symbol")
		}
		val, err := ec.eval(bindings[i+1], inner)
		if err != nil {
			return nil, err
		}
		inner.vars[string(name)] = val
	}
	var last Value
	var err error
	for _, body := range form[2:] {
		last, err = ec.eval(body, inner)
		if err != nil {
			return nil, err
		}
	}
	return last, nil
}

// switchNs moves the evaluation context into name, creating the
// namespace if needed. Fresh namespaces refer slate.core.
func (ec *evalCtx) switchNs(name string) *Namespace {
	_, existed := ec.env.Find(name)
	ns := ec.env.FindOrCreate(name)
	if !existed && name != CoreNamespace {
		if core, ok := ec.env.Find(CoreNamespace); ok {
			ns.ReferAll(core)
		}
	}
	ec.ns = ns
	return ns
}

func evalNs(ec *evalCtx, form List, sc *scope) (Value, error) {
	if len(form) != 2 {
		return nil, NewFault("SyntaxError", "ns expects a name")
	}
	name, ok := form[1].(Symbol)
	if !ok {
		return nil, NewFault("SyntaxError", "ns name must be a symbol")
	}
	ec.switchNs(string(name))
	return nil, nil
}

func evalInNs(ec *evalCtx, form List, sc *scope) (Value, error) {
	if len(form) != 2 {
		return nil, NewFault("SyntaxError", "in-ns expects a name")
	}
	arg, err := ec.eval(form[1], sc)
	if err != nil {
		return nil, err
	}
	name, ok := arg.(Symbol)
	if !ok {
		return nil, NewFault("TypeError", "in-ns expects a symbol, got %s", PrintString(arg))
	}
	ec.switchNs(string(name))
	return nil, nil
}
