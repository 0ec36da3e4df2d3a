package nrepl

import (
	"context"
	"sort"
	"testing"

	"github.com/slatelisp/slate/pkg/runtime"
)

func findCandidate(cands []Candidate, text, ns string) (Candidate, bool) {
	for _, c := range cands {
		if c.Text == text && c.Ns == ns {
			return c, true
		}
	}
	return Candidate{}, false
}

func TestCompleteInternedVar(t *testing.T) {
	env := testEnv(t)

	cands := Complete(env, "user", "ab")
	c, ok := findCandidate(cands, "abc", "user")
	if !ok {
		t.Fatalf("completing \"ab\" in user: missing abc candidate, got %v", cands)
	}
	if c.Type != "var" {
		t.Errorf("abc candidate type = %q, want var", c.Type)
	}

	// A namespace that never referenced abc must not see it.
	for _, c := range Complete(env, "lib.util", "ab") {
		if c.Text == "abc" {
			t.Errorf("abc leaked into lib.util completions")
		}
	}
}

func TestCompleteLayers(t *testing.T) {
	env := testEnv(t)

	// Referred name.
	cands := Complete(env, "user", "util-f")
	if c, ok := findCandidate(cands, "util-fn", "lib.util"); !ok || c.Type != "function" {
		t.Errorf("referred util-fn not completed correctly: %v, ok=%v", c, ok)
	}

	// Alias-qualified pair, expanded against the aliased namespace.
	cands = Complete(env, "user", "u/")
	if _, ok := findCandidate(cands, "u/util-fn", "lib.util"); !ok {
		t.Errorf("alias pair u/util-fn missing: %v", cands)
	}
	if _, ok := findCandidate(cands, "u/util-val", "lib.util"); !ok {
		t.Errorf("alias pair u/util-val missing: %v", cands)
	}

	// Fully qualified pair for every loaded namespace.
	cands = Complete(env, "user", "lib.util/util-v")
	if c, ok := findCandidate(cands, "lib.util/util-val", "lib.util"); !ok || c.Type != "var" {
		t.Errorf("fully qualified pair missing or wrong: %v, ok=%v", c, ok)
	}

	// Bare namespace-name prefix, display text only.
	cands = Complete(env, "user", "lib.u")
	c, ok := findCandidate(cands, "lib.util", "")
	if !ok {
		t.Fatalf("namespace prefix candidate missing: %v", cands)
	}
	if c.Type != "" || c.Ns != "" {
		t.Errorf("namespace candidate carries owner/kind: %+v", c)
	}
}

func TestCompleteSortedAndDeduplicated(t *testing.T) {
	env := testEnv(t)

	cands := Complete(env, "user", "")
	if !sort.SliceIsSorted(cands, func(i, j int) bool {
		if cands[i].Text != cands[j].Text {
			return cands[i].Text < cands[j].Text
		}
		return cands[i].Ns < cands[j].Ns
	}) {
		t.Error("candidates not sorted by display text")
	}

	type key struct{ text, ns string }
	seen := map[key]bool{}
	for _, c := range cands {
		k := key{c.Text, c.Ns}
		if seen[k] {
			t.Errorf("duplicate candidate %+v", c)
		}
		seen[k] = true
	}

	// util-fn is both interned in lib.util and referred into user:
	// same display text, same owner, so exactly one entry.
	n := 0
	for _, c := range cands {
		if c.Text == "util-fn" && c.Ns == "lib.util" {
			n++
		}
	}
	if n != 1 {
		t.Errorf("util-fn appears %d times, want 1", n)
	}
}

func TestCompleteAfterEvalDefines(t *testing.T) {
	env := runtime.NewEnv()
	in := runtime.NewInterp(env)
	if _, err := in.Evaluate(context.Background(), runtime.EvalRequest{NS: "user", Code: "(def abc 1)"}); err != nil {
		t.Fatal(err)
	}
	cands := Complete(env, "user", "ab")
	if _, ok := findCandidate(cands, "abc", "user"); !ok {
		t.Errorf("abc not completed after def: %v", cands)
	}
}

func TestCompleteMissingNamespace(t *testing.T) {
	env := testEnv(t)
	// Current namespace label need not exist; only the namespace-name
	// layer can still contribute.
	cands := Complete(env, "no.such.ns", "lib")
	if _, ok := findCandidate(cands, "lib.util", ""); !ok {
		t.Errorf("namespace layer should survive a missing context ns: %v", cands)
	}
}
