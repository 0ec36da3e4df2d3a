package nrepl

import (
	"sort"
	"strings"

	"github.com/slatelisp/slate/pkg/runtime"
)

// Candidate is one completion result. Ns and Type are empty for
// namespace-prefix candidates, which carry display text only.
type Candidate struct {
	Text string
	Ns   string
	Type string
}

// Complete searches the layered naming environment of the namespace
// named nsName for candidates whose display text starts with prefix.
//
// Layers: names interned in the namespace, names referred into it,
// alias/name pairs expanded against each aliased namespace, fully
// qualified ns/name pairs for every loaded namespace, and the loaded
// namespace names themselves (for completing the segment before a /).
// Results are sorted by display text and de-duplicated on (text, ns).
func Complete(env *runtime.Env, nsName, prefix string) []Candidate {
	type key struct{ text, ns string }
	seen := map[key]bool{}
	var out []Candidate

	add := func(text, owner, typ string) {
		if !strings.HasPrefix(text, prefix) {
			return
		}
		k := key{text, owner}
		if seen[k] {
			return
		}
		seen[k] = true
		out = append(out, Candidate{Text: text, Ns: owner, Type: typ})
	}

	if ns, ok := env.Find(nsName); ok {
		for name, v := range ns.Vars() {
			add(name, v.Namespace().Name(), varKind(v))
		}
		for name, v := range ns.Refers() {
			add(name, v.Namespace().Name(), varKind(v))
		}
		for alias, target := range ns.Aliases() {
			for name, v := range target.Vars() {
				add(alias+"/"+name, target.Name(), varKind(v))
			}
		}
	}

	for _, loadedName := range env.Names() {
		loaded, ok := env.Find(loadedName)
		if !ok {
			continue
		}
		for name, v := range loaded.Vars() {
			add(loadedName+"/"+name, loadedName, varKind(v))
		}
		// The namespace name itself, display text only.
		add(loadedName, "", "")
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Text != out[j].Text {
			return out[i].Text < out[j].Text
		}
		return out[i].Ns < out[j].Ns
	})
	return out
}

// wireCandidates renders candidates as response dictionaries.
func wireCandidates(cands []Candidate) []any {
	out := make([]any, len(cands))
	for i, c := range cands {
		m := map[string]any{"candidate": c.Text}
		if c.Ns != "" {
			m["ns"] = c.Ns
		}
		if c.Type != "" {
			m["type"] = c.Type
		}
		out[i] = m
	}
	return out
}
