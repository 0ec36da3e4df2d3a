package nrepl

import (
	"strings"

	"github.com/slatelisp/slate/pkg/runtime"
)

// ResolvedKind tags the variants of a symbol resolution.
type ResolvedKind int

const (
	// KindUnresolvable means the token could not be classified.
	KindUnresolvable ResolvedKind = iota

	// KindKeyword is a keyword literal, possibly namespace-qualified.
	KindKeyword

	// KindSpecialForm is a reserved syntactic construct.
	KindSpecialForm

	// KindVar is a defined var in some namespace.
	KindVar

	// KindOther is a known entity that is neither a var nor a special
	// form (a host reference, for example).
	KindOther
)

// Resolved is the outcome of classifying one identifier token against
// a namespace context. Exactly the field matching Kind is meaningful.
type Resolved struct {
	Kind ResolvedKind

	// Keyword holds the resolved keyword for KindKeyword.
	Keyword runtime.Keyword

	// SpecialForm holds the reserved form name for KindSpecialForm.
	SpecialForm string

	// Var holds the resolved var for KindVar.
	Var *runtime.Var

	// Raw holds the original token for KindOther.
	Raw string

	// Reason describes the failure for KindUnresolvable.
	Reason string
}

// varKind maps a var to the three-way vocabulary used on the wire:
// "macro" for macros, "function" for callable values, "var" otherwise.
func varKind(v *runtime.Var) string {
	if v.IsMacro() {
		return "macro"
	}
	if v.IsFn() {
		return "function"
	}
	return "var"
}

// Resolve classifies token against the namespace named nsName.
//
// Priority: keyword sigil, then reserved special form, then var
// lookup (interned, referred, alias-qualified, fully-qualified), then
// unresolvable. The namespace not existing is not itself an error;
// resolution just runs against an empty context.
func Resolve(env *runtime.Env, nsName, token string) Resolved {
	if token == "" {
		return Resolved{Kind: KindUnresolvable, Reason: "empty symbol"}
	}

	if token[0] == ':' {
		return resolveKeyword(env, nsName, token)
	}

	if runtime.IsSpecialForm(token) {
		return Resolved{Kind: KindSpecialForm, SpecialForm: token}
	}

	if strings.ContainsAny(token, " \t\n\r()[]\"") {
		return Resolved{Kind: KindUnresolvable, Reason: "invalid symbol: " + token}
	}

	ns, _ := env.Find(nsName)
	sym := runtime.Symbol(token)
	nsPart, name := sym.Split()

	if nsPart == "" {
		if ns != nil {
			if v, ok := ns.Lookup(name); ok {
				return Resolved{Kind: KindVar, Var: v}
			}
			if v, ok := ns.LookupReferred(name); ok {
				return Resolved{Kind: KindVar, Var: v}
			}
		}
		return Resolved{Kind: KindUnresolvable, Reason: "unable to resolve symbol: " + token}
	}

	// Alias-qualified first, then fully qualified namespace name.
	var target *runtime.Namespace
	if ns != nil {
		if t, ok := ns.Alias(nsPart); ok {
			target = t
		}
	}
	if target == nil {
		if t, ok := env.Find(nsPart); ok {
			target = t
		}
	}
	if target != nil {
		if v, ok := target.Lookup(name); ok {
			return Resolved{Kind: KindVar, Var: v}
		}
	}
	return Resolved{Kind: KindUnresolvable, Reason: "unable to resolve symbol: " + token}
}

// resolveKeyword handles tokens beginning with the keyword sigil.
// ":name" stays unqualified, ":ns/name" is explicit, "::name"
// qualifies against the current namespace, and "::alias/name" resolves
// the alias segment through the namespace's alias table.
func resolveKeyword(env *runtime.Env, nsName, token string) Resolved {
	body := token[1:]
	if body == "" || body == ":" {
		return Resolved{Kind: KindUnresolvable, Reason: "invalid keyword: " + token}
	}

	if body[0] != ':' {
		return Resolved{Kind: KindKeyword, Keyword: runtime.Keyword(body)}
	}

	// Auto-resolving sigil.
	body = body[1:]
	seg, name := runtime.Symbol(body).Split()
	if seg == "" {
		return Resolved{Kind: KindKeyword, Keyword: runtime.Keyword(nsName + "/" + body)}
	}
	resolved := seg
	if ns, ok := env.Find(nsName); ok {
		if target, ok := ns.Alias(seg); ok {
			resolved = target.Name()
		}
	}
	return Resolved{Kind: KindKeyword, Keyword: runtime.Keyword(resolved + "/" + name)}
}
