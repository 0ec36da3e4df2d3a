package runtime

import (
	"io"
	"strings"
)

// installBuiltins interns the host functions into the core namespace.
func installBuiltins(core *Namespace) {
	def := func(name, doc string, arglists [][]string, fn func(ec *evalCtx, args []Value) (Value, error)) {
		v := core.Intern(name)
		v.SetValue(&Builtin{Name: name, Fn: fn})
		v.SetMeta(Meta{Doc: doc, File: CoreNamespace, ArgLists: arglists})
	}

	variadic := [][]string{{}, {"x"}, {"x", "y"}, {"x", "y", "&", "more"}}
	binary := [][]string{{"x", "y"}}
	unary := [][]string{{"x"}}

	def("+", "Returns the sum of nums. (+) returns 0.", variadic, builtinAdd)
	def("-", "Subtracts the rest from the first num. With one arg, negates it.",
		[][]string{{"x"}, {"x", "y"}, {"x", "y", "&", "more"}}, builtinSub)
	def("*", "Returns the product of nums. (*) returns 1.", variadic, builtinMul)
	def("/", "Divides the first num by the rest. Faults on integer division by zero.",
		[][]string{{"x", "y"}, {"x", "y", "&", "more"}}, builtinDiv)
	def("mod", "Modulus of num and div.", binary, builtinMod)
	def("inc", "Returns a number one greater than num.", unary, builtinInc)
	def("dec", "Returns a number one less than num.", unary, builtinDec)

	def("=", "Returns true when all arguments are equal.", variadic, builtinEq)
	def("<", "Returns true when arguments are in strictly increasing order.", binary, compareFn(func(c int) bool { return c < 0 }))
	def(">", "Returns true when arguments are in strictly decreasing order.", binary, compareFn(func(c int) bool { return c > 0 }))
	def("<=", "Returns true when arguments are in non-decreasing order.", binary, compareFn(func(c int) bool { return c <= 0 }))
	def(">=", "Returns true when arguments are in non-increasing order.", binary, compareFn(func(c int) bool { return c >= 0 }))
	def("not", "Returns true if x is logical false, false otherwise.", unary, builtinNot)
	def("nil?", "Returns true if x is nil.", unary, builtinNilP)

	def("list", "Creates a new list containing the arguments.", [][]string{{"&", "items"}}, builtinList)
	def("vector", "Creates a new vector containing the arguments.", [][]string{{"&", "items"}}, builtinVector)
	def("first", "Returns the first item of a collection, or nil.", [][]string{{"coll"}}, builtinFirst)
	def("rest", "Returns the items after the first as a list.", [][]string{{"coll"}}, builtinRest)
	def("cons", "Returns a new list with x prepended to coll.", [][]string{{"x", "coll"}}, builtinCons)
	def("count", "Returns the number of items in a collection.", [][]string{{"coll"}}, builtinCount)

	def("str", "Concatenates the display form of the arguments into a string.",
		[][]string{{"&", "xs"}}, builtinStr)
	def("print", "Prints the arguments, separated by spaces.", [][]string{{"&", "xs"}}, printFn(false, false))
	def("println", "Prints the arguments followed by a newline.", [][]string{{"&", "xs"}}, printFn(false, true))
	def("pr", "Prints the arguments readably.", [][]string{{"&", "xs"}}, printFn(true, false))
	def("prn", "Prints the arguments readably, followed by a newline.", [][]string{{"&", "xs"}}, printFn(true, true))

	def("alias", "Adds an alias from sym to the namespace named by ns-sym in the current namespace.",
		[][]string{{"sym", "ns-sym"}}, builtinAlias)
	def("refer", "Refers vars from the namespace named by ns-sym into the current namespace. With no names, refers all.",
		[][]string{{"ns-sym", "&", "names"}}, builtinRefer)
	def("all-ns", "Returns a list of the loaded namespace names as symbols.", [][]string{{}}, builtinAllNs)
}

func asNum(v Value) (int64, float64, bool, *Fault) {
	switch v := v.(type) {
	case int64:
		return v, 0, true, nil
	case float64:
		return 0, v, false, nil
	default:
		return 0, 0, false, NewFault("TypeError", "%s is not a number", PrintString(v))
	}
}

type numFold struct {
	i       int64
	f       float64
	isFloat bool
}

func (n *numFold) value() Value {
	if n.isFloat {
		return n.f
	}
	return n.i
}

func (n *numFold) promote() {
	if !n.isFloat {
		n.f = float64(n.i)
		n.isFloat = true
	}
}

func foldNums(args []Value, op func(acc *numFold, i int64, f float64, isInt bool) *Fault) (Value, error) {
	acc := &numFold{}
	for idx, a := range args {
		i, f, isInt, fault := asNum(a)
		if fault != nil {
			return nil, fault
		}
		if idx == 0 {
			if isInt {
				acc.i = i
			} else {
				acc.f = f
				acc.isFloat = true
			}
			continue
		}
		if !isInt {
			acc.promote()
		}
		if err := op(acc, i, f, isInt); err != nil {
			return nil, err
		}
	}
	return acc.value(), nil
}

func builtinAdd(ec *evalCtx, args []Value) (Value, error) {
	acc := &numFold{}
	for _, a := range args {
		i, f, isInt, fault := asNum(a)
		if fault != nil {
			return nil, fault
		}
		if !isInt {
			acc.promote()
		}
		if acc.isFloat {
			if isInt {
				acc.f += float64(i)
			} else {
				acc.f += f
			}
		} else {
			acc.i += i
		}
	}
	return acc.value(), nil
}

func builtinMul(ec *evalCtx, args []Value) (Value, error) {
	acc := &numFold{i: 1}
	for _, a := range args {
		i, f, isInt, fault := asNum(a)
		if fault != nil {
			return nil, fault
		}
		if !isInt {
			acc.promote()
		}
		if acc.isFloat {
			if isInt {
				acc.f *= float64(i)
			} else {
				acc.f *= f
			}
		} else {
			acc.i *= i
		}
	}
	return acc.value(), nil
}

func builtinSub(ec *evalCtx, args []Value) (Value, error) {
	if len(args) == 0 {
		return nil, NewFault("ArityError", "wrong number of args (0) passed to -")
	}
	if len(args) == 1 {
		i, f, isInt, fault := asNum(args[0])
		if fault != nil {
			return nil, fault
		}
		if isInt {
			return -i, nil
		}
		return -f, nil
	}
	return foldNums(args, func(acc *numFold, i int64, f float64, isInt bool) *Fault {
		if acc.isFloat {
			if isInt {
				acc.f -= float64(i)
			} else {
				acc.f -= f
			}
		} else {
			acc.i -= i
		}
		return nil
	})
}

func builtinDiv(ec *evalCtx, args []Value) (Value, error) {
	if len(args) < 2 {
		return nil, NewFault("ArityError", "wrong number of args (%d) passed to /", len(args))
	}
	return foldNums(args, func(acc *numFold, i int64, f float64, isInt bool) *Fault {
		if acc.isFloat {
			d := f
			if isInt {
				d = float64(i)
			}
			if d == 0 {
				return NewFault("ArithmeticError", "divide by zero")
			}
			acc.f /= d
			return nil
		}
		if i == 0 {
			return NewFault("ArithmeticError", "divide by zero")
		}
		if acc.i%i != 0 {
			acc.promote()
			acc.f /= float64(i)
			return nil
		}
		acc.i /= i
		return nil
	})
}

func builtinMod(ec *evalCtx, args []Value) (Value, error) {
	if len(args) != 2 {
		return nil, NewFault("ArityError", "wrong number of args (%d) passed to mod", len(args))
	}
	a, ok1 := args[0].(int64)
	b, ok2 := args[1].(int64)
	if !ok1 || !ok2 {
		return nil, NewFault("TypeError", "mod expects integers")
	}
	if b == 0 {
		return nil, NewFault("ArithmeticError", "divide by zero")
	}
	m := a % b
	if m != 0 && (m < 0) != (b < 0) {
		m += b
	}
	return m, nil
}

func builtinInc(ec *evalCtx, args []Value) (Value, error) {
	if len(args) != 1 {
		return nil, NewFault("ArityError", "wrong number of args (%d) passed to inc", len(args))
	}
	return builtinAdd(ec, []Value{args[0], int64(1)})
}

func builtinDec(ec *evalCtx, args []Value) (Value, error) {
	if len(args) != 1 {
		return nil, NewFault("ArityError", "wrong number of args (%d) passed to dec", len(args))
	}
	return builtinSub(ec, []Value{args[0], int64(1)})
}

func builtinEq(ec *evalCtx, args []Value) (Value, error) {
	for i := 1; i < len(args); i++ {
		if PrintString(args[i-1]) != PrintString(args[i]) {
			return false, nil
		}
	}
	return true, nil
}

func compare(a, b Value) (int, *Fault) {
	ai, af, aInt, fault := asNum(a)
	if fault != nil {
		return 0, fault
	}
	bi, bf, bInt, fault := asNum(b)
	if fault != nil {
		return 0, fault
	}
	if aInt && bInt {
		switch {
		case ai < bi:
			return -1, nil
		case ai > bi:
			return 1, nil
		}
		return 0, nil
	}
	x, y := af, bf
	if aInt {
		x = float64(ai)
	}
	if bInt {
		y = float64(bi)
	}
	switch {
	case x < y:
		return -1, nil
	case x > y:
		return 1, nil
	}
	return 0, nil
}

func compareFn(keep func(int) bool) func(ec *evalCtx, args []Value) (Value, error) {
	return func(ec *evalCtx, args []Value) (Value, error) {
		for i := 1; i < len(args); i++ {
			c, fault := compare(args[i-1], args[i])
			if fault != nil {
				return nil, fault
			}
			if !keep(c) {
				return false, nil
			}
		}
		return true, nil
	}
}

func builtinNot(ec *evalCtx, args []Value) (Value, error) {
	if len(args) != 1 {
		return nil, NewFault("ArityError", "wrong number of args (%d) passed to not", len(args))
	}
	return !Truthy(args[0]), nil
}

func builtinNilP(ec *evalCtx, args []Value) (Value, error) {
	if len(args) != 1 {
		return nil, NewFault("ArityError", "wrong number of args (%d) passed to nil?", len(args))
	}
	return args[0] == nil, nil
}

func builtinList(ec *evalCtx, args []Value) (Value, error) {
	return List(args), nil
}

func builtinVector(ec *evalCtx, args []Value) (Value, error) {
	return Vector(args), nil
}

func asSeq(v Value) ([]Value, bool) {
	switch v := v.(type) {
	case nil:
		return nil, true
	case List:
		return v, true
	case Vector:
		return v, true
	}
	return nil, false
}

func builtinFirst(ec *evalCtx, args []Value) (Value, error) {
	if len(args) != 1 {
		return nil, NewFault("ArityError", "wrong number of args (%d) passed to first", len(args))
	}
	seq, ok := asSeq(args[0])
	if !ok {
		return nil, NewFault("TypeError", "%s is not a collection", PrintString(args[0]))
	}
	if len(seq) == 0 {
		return nil, nil
	}
	return seq[0], nil
}

func builtinRest(ec *evalCtx, args []Value) (Value, error) {
	if len(args) != 1 {
		return nil, NewFault("ArityError", "wrong number of args (%d) passed to rest", len(args))
	}
	seq, ok := asSeq(args[0])
	if !ok {
		return nil, NewFault("TypeError", "%s is not a collection", PrintString(args[0]))
	}
	if len(seq) <= 1 {
		return List{}, nil
	}
	return List(seq[1:]), nil
}

func builtinCons(ec *evalCtx, args []Value) (Value, error) {
	if len(args) != 2 {
		return nil, NewFault("ArityError", "wrong number of args (%d) passed to cons", len(args))
	}
	seq, ok := asSeq(args[1])
	if !ok {
		return nil, NewFault("TypeError", "%s is not a collection", PrintString(args[1]))
	}
	out := make(List, 0, len(seq)+1)
	out = append(out, args[0])
	return append(out, seq...), nil
}

func builtinCount(ec *evalCtx, args []Value) (Value, error) {
	if len(args) != 1 {
		return nil, NewFault("ArityError", "wrong number of args (%d) passed to count", len(args))
	}
	if s, ok := args[0].(string); ok {
		return int64(len(s)), nil
	}
	seq, ok := asSeq(args[0])
	if !ok {
		return nil, NewFault("TypeError", "%s is not a collection", PrintString(args[0]))
	}
	return int64(len(seq)), nil
}

func builtinStr(ec *evalCtx, args []Value) (Value, error) {
	var b strings.Builder
	for _, a := range args {
		if a == nil {
			continue
		}
		b.WriteString(DisplayString(a))
	}
	return b.String(), nil
}

// printFn builds the print family. Each call performs exactly one
// write so callers observing output see one chunk per print call.
func printFn(readable, newline bool) func(ec *evalCtx, args []Value) (Value, error) {
	return func(ec *evalCtx, args []Value) (Value, error) {
		var b strings.Builder
		for i, a := range args {
			if i > 0 {
				b.WriteByte(' ')
			}
			if readable {
				b.WriteString(PrintString(a))
			} else {
				b.WriteString(DisplayString(a))
			}
		}
		if newline {
			b.WriteByte('\n')
		}
		out := ec.out
		if out == nil {
			out = io.Discard
		}
		if _, err := out.Write([]byte(b.String())); err != nil {
			return nil, NewFault("IOError", "write failed: %v", err)
		}
		return nil, nil
	}
}

func builtinAlias(ec *evalCtx, args []Value) (Value, error) {
	if len(args) != 2 {
		return nil, NewFault("ArityError", "wrong number of args (%d) passed to alias", len(args))
	}
	alias, ok1 := args[0].(Symbol)
	target, ok2 := args[1].(Symbol)
	if !ok1 || !ok2 {
		return nil, NewFault("TypeError", "alias expects two symbols")
	}
	targetNs, ok := ec.env.Find(string(target))
	if !ok {
		return nil, NewFault("NamespaceError", "no namespace found for %s", target)
	}
	ec.ns.AddAlias(string(alias), targetNs)
	return nil, nil
}

func builtinRefer(ec *evalCtx, args []Value) (Value, error) {
	if len(args) == 0 {
		return nil, NewFault("ArityError", "wrong number of args (0) passed to refer")
	}
	target, ok := args[0].(Symbol)
	if !ok {
		return nil, NewFault("TypeError", "refer expects a namespace symbol")
	}
	targetNs, ok := ec.env.Find(string(target))
	if !ok {
		return nil, NewFault("NamespaceError", "no namespace found for %s", target)
	}
	if len(args) == 1 {
		ec.ns.ReferAll(targetNs)
		return nil, nil
	}
	for _, a := range args[1:] {
		name, ok := a.(Symbol)
		if !ok {
			return nil, NewFault("TypeError", "refer expects symbols")
		}
		v, ok := targetNs.Lookup(string(name))
		if !ok {
			return nil, NewFault("NamespaceError", "%s does not intern %s", target, name)
		}
		ec.ns.Refer(v)
	}
	return nil, nil
}

func builtinAllNs(ec *evalCtx, args []Value) (Value, error) {
	names := ec.env.Names()
	out := make(List, len(names))
	for i, n := range names {
		out[i] = Symbol(n)
	}
	return out, nil
}
