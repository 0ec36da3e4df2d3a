package nrepl

import (
	"context"
	"log/slog"
	"reflect"
	"strings"
	"testing"

	"github.com/slatelisp/slate/pkg/runtime"
)

func testDispatcher(t *testing.T, env *runtime.Env) *dispatcher {
	t.Helper()
	if env == nil {
		env = runtime.NewEnv()
	}
	return &dispatcher{
		env:    env,
		eval:   runtime.NewInterp(env),
		logger: slog.Default(),
	}
}

// run dispatches one request and returns the collected responses.
func run(t *testing.T, d *dispatcher, sess *Session, req Message) []Message {
	t.Helper()
	var out []Message
	d.dispatch(context.Background(), sess, req, func(m Message) error {
		out = append(out, m)
		return nil
	})
	if len(out) == 0 {
		t.Fatalf("op %q produced no responses", req.Op())
	}
	return out
}

func status(m Message) []string {
	raw, _ := m["status"].([]string)
	return raw
}

func TestDispatchUnknownOp(t *testing.T) {
	d := testDispatcher(t, nil)
	sess := NewSession()
	out := run(t, d, sess, Message{"op": "frobnicate", "id": int64(9)})
	if len(out) != 1 {
		t.Fatalf("got %d responses, want 1", len(out))
	}
	if !reflect.DeepEqual(status(out[0]), []string{"error", "unknown-op", "done"}) {
		t.Errorf("status = %v", status(out[0]))
	}
	if out[0]["id"] != int64(9) {
		t.Errorf("id = %v, want 9", out[0]["id"])
	}

	// The session is unaffected and the next request works.
	out = run(t, d, sess, Message{"op": "describe", "id": int64(10)})
	if !reflect.DeepEqual(status(out[0]), []string{"done"}) {
		t.Errorf("describe after unknown op failed: %v", out[0])
	}
}

func TestDispatchClone(t *testing.T) {
	d := testDispatcher(t, nil)
	sess := NewSession()
	out := run(t, d, sess, Message{"op": "clone", "id": "c1"})
	if len(out) != 1 {
		t.Fatalf("got %d responses, want 1", len(out))
	}
	id, _ := out[0]["new-session"].(string)
	if id == "" {
		t.Fatal("clone returned no new-session")
	}
	out2 := run(t, d, sess, Message{"op": "clone", "id": "c2"})
	if out2[0]["new-session"] == id {
		t.Error("clone ids must be unique")
	}
	if out[0]["id"] != "c1" {
		t.Errorf("id echo = %v", out[0]["id"])
	}
}

func TestDispatchClose(t *testing.T) {
	d := testDispatcher(t, nil)
	sess := NewSession()
	cloned := run(t, d, sess, Message{"op": "clone"})[0]["new-session"].(string)
	out := run(t, d, sess, Message{"op": "close", "id": int64(1), "session": cloned})
	if !reflect.DeepEqual(status(out[0]), []string{"done"}) {
		t.Errorf("status = %v", status(out[0]))
	}
	if out[0]["session"] != cloned {
		t.Errorf("session echo = %v", out[0]["session"])
	}
}

func TestDispatchDescribe(t *testing.T) {
	d := testDispatcher(t, nil)
	out := run(t, d, NewSession(), Message{"op": "describe", "id": int64(1)})
	resp := out[0]

	ops, ok := resp["ops"].(map[string]any)
	if !ok {
		t.Fatalf("ops missing: %v", resp)
	}
	for _, op := range []string{"clone", "close", "describe", "eval", "load-file", "complete", "info", "eldoc"} {
		if _, ok := ops[op]; !ok {
			t.Errorf("describe does not advertise %q", op)
		}
	}
	versions, ok := resp["versions"].(map[string]any)
	if !ok {
		t.Fatalf("versions missing: %v", resp)
	}
	for _, k := range []string{"slate", "go"} {
		v, ok := versions[k].(map[string]any)
		if !ok || v["version-string"] == "" {
			t.Errorf("versions[%q] malformed: %v", k, versions[k])
		}
	}
}

func TestDispatchEvalSuccess(t *testing.T) {
	d := testDispatcher(t, nil)
	sess := NewSession()
	out := run(t, d, sess, Message{"op": "eval", "id": int64(5), "code": "(+ 1 3)"})

	if len(out) != 2 {
		t.Fatalf("got %d responses, want 2: %v", len(out), out)
	}
	want := Message{"id": int64(5), "ns": "user", "value": "4"}
	if !reflect.DeepEqual(out[0], want) {
		t.Errorf("value response = %v, want %v", out[0], want)
	}
	if out[1]["ns"] != "user" || !reflect.DeepEqual(status(out[1]), []string{"done"}) {
		t.Errorf("terminal response = %v", out[1])
	}
	if got := sess.History(); len(got) != 1 || got[0] != "4" {
		t.Errorf("history = %v, want [4]", got)
	}
}

func TestDispatchEvalHistoryDepth(t *testing.T) {
	d := testDispatcher(t, nil)
	sess := NewSession()
	for _, code := range []string{"1", "2", "3", "4"} {
		run(t, d, sess, Message{"op": "eval", "code": code})
	}
	if got := sess.History(); !reflect.DeepEqual(got, []string{"4", "3", "2"}) {
		t.Errorf("history = %v, want newest-first capped at 3", got)
	}
}

func TestDispatchEvalFault(t *testing.T) {
	d := testDispatcher(t, nil)
	sess := NewSession()
	out := run(t, d, sess, Message{"op": "eval", "id": int64(7), "code": "(/ 1 0)"})

	if len(out) != 3 {
		t.Fatalf("got %d responses, want err/ex/done: %v", len(out), out)
	}
	errText, _ := out[0]["err"].(string)
	if !strings.Contains(errText, "ArithmeticError") {
		t.Errorf("err %q does not name the fault type", errText)
	}
	exText, _ := out[1]["ex"].(string)
	if !strings.Contains(exText, "divide by zero") {
		t.Errorf("ex %q misses the trace", exText)
	}
	if !reflect.DeepEqual(status(out[1]), []string{"eval-error"}) {
		t.Errorf("ex status = %v", status(out[1]))
	}
	if out[1]["ns"] != "user" {
		t.Errorf("ns at fault = %v, want user (unchanged)", out[1]["ns"])
	}
	if !reflect.DeepEqual(status(out[2]), []string{"done"}) {
		t.Errorf("terminal status = %v", status(out[2]))
	}
	if sess.LastFault() == nil || sess.LastFault().Kind != "ArithmeticError" {
		t.Errorf("last fault not recorded: %v", sess.LastFault())
	}
	if len(sess.History()) != 0 {
		t.Errorf("fault must not enter history: %v", sess.History())
	}
}

func TestDispatchEvalOutMessages(t *testing.T) {
	d := testDispatcher(t, nil)
	sess := NewSession()
	out := run(t, d, sess, Message{
		"op": "eval", "id": int64(3),
		"code": `(println "one") (println "two") (+ 1 1)`,
	})

	if len(out) != 4 {
		t.Fatalf("got %d responses, want out/out/value/done: %v", len(out), out)
	}
	if out[0]["out"] != "one\n" || out[1]["out"] != "two\n" {
		t.Errorf("out chunks wrong or coalesced: %v %v", out[0], out[1])
	}
	if out[2]["value"] != "2" {
		t.Errorf("value = %v", out[2]["value"])
	}
}

func TestDispatchEvalNamespaceSwitch(t *testing.T) {
	d := testDispatcher(t, nil)
	sess := NewSession()

	out := run(t, d, sess, Message{"op": "eval", "code": "(in-ns 'scratch)"})
	last := out[len(out)-1]
	if last["ns"] != "scratch" {
		t.Errorf("reported ns = %v, want scratch", last["ns"])
	}
	if sess.NS != "scratch" {
		t.Errorf("session ns = %q, want scratch (persists across requests)", sess.NS)
	}

	// An explicit ns field is only a starting hint.
	out = run(t, d, sess, Message{"op": "eval", "ns": "user", "code": "(ns elsewhere) 1"})
	if out[len(out)-1]["ns"] != "elsewhere" {
		t.Errorf("reported ns = %v, want elsewhere", out[len(out)-1]["ns"])
	}
	if sess.NS != "elsewhere" {
		t.Errorf("session ns = %q, want elsewhere", sess.NS)
	}
}

func TestDispatchEvalNamespacePreservedOnFault(t *testing.T) {
	d := testDispatcher(t, nil)
	sess := NewSession()
	run(t, d, sess, Message{"op": "eval", "code": "(in-ns 'work)"})
	run(t, d, sess, Message{"op": "eval", "code": "(/ 1 0)"})
	if sess.NS != "work" {
		t.Errorf("session ns = %q, want work preserved across fault", sess.NS)
	}
}

func TestDispatchLoadFile(t *testing.T) {
	d := testDispatcher(t, nil)
	sess := NewSession()
	out := run(t, d, sess, Message{
		"op": "load-file", "id": int64(1),
		"file":      "(def loaded 99) loaded",
		"file-name": "init.slt",
		"file-path": "/src/init.slt",
	})
	if out[0]["value"] != "99" {
		t.Fatalf("load-file value = %v: %v", out[0]["value"], out)
	}

	// Faults point at the provided path, not a synthetic label.
	out = run(t, d, sess, Message{
		"op": "load-file", "id": int64(2),
		"file":      "(/ 1 0)",
		"file-path": "/src/boom.slt",
	})
	exText, _ := out[1]["ex"].(string)
	if !strings.Contains(exText, "/src/boom.slt") {
		t.Errorf("trace %q does not reference file-path", exText)
	}
}

func TestDispatchComplete(t *testing.T) {
	env := testEnv(t)
	d := testDispatcher(t, env)
	sess := NewSession()

	out := run(t, d, sess, Message{"op": "complete", "id": int64(1), "prefix": "ab"})
	comps, ok := out[0]["completions"].([]any)
	if !ok {
		t.Fatalf("completions missing: %v", out[0])
	}
	found := false
	for _, raw := range comps {
		c := raw.(map[string]any)
		if c["candidate"] == "abc" && c["ns"] == "user" && c["type"] == "var" {
			found = true
		}
	}
	if !found {
		t.Errorf("candidate {abc user var} missing: %v", comps)
	}

	// symbol is an interchangeable spelling of prefix.
	out = run(t, d, sess, Message{"op": "complete", "id": int64(2), "symbol": "ab"})
	if comps, _ := out[0]["completions"].([]any); len(comps) == 0 {
		t.Error("complete via symbol field returned nothing")
	}

	// Against an unrelated namespace the candidate disappears.
	out = run(t, d, sess, Message{"op": "complete", "id": int64(3), "ns": "lib.util", "prefix": "ab"})
	for _, raw := range out[0]["completions"].([]any) {
		if raw.(map[string]any)["candidate"] == "abc" {
			t.Error("abc completed against unrelated namespace")
		}
	}
}

func TestDispatchInfo(t *testing.T) {
	env := testEnv(t)
	d := testDispatcher(t, env)
	sess := NewSession()

	out := run(t, d, sess, Message{"op": "info", "id": int64(1), "sym": "hello"})
	resp := out[0]
	if resp["ns"] != "user" || resp["name"] != "hello" {
		t.Errorf("info target = %v/%v", resp["ns"], resp["name"])
	}
	if resp["doc"] != "Says hello." {
		t.Errorf("doc = %v", resp["doc"])
	}
	if resp["arglists-str"] != "([name])" {
		t.Errorf("arglists-str = %v", resp["arglists-str"])
	}
	if _, ok := resp["line"].(int64); !ok {
		t.Errorf("line is %T, want int64", resp["line"])
	}

	// Non-var resolutions answer with a bare done.
	out = run(t, d, sess, Message{"op": "info", "id": int64(2), "sym": "no-such-thing"})
	if len(out[0]) != 2 { // id + status
		t.Errorf("bare info response has extra fields: %v", out[0])
	}
	out = run(t, d, sess, Message{"op": "info", "id": int64(3), "symbol": "if"})
	if _, ok := out[0]["name"]; ok {
		t.Errorf("special form leaked var info: %v", out[0])
	}
}

func TestDispatchEldoc(t *testing.T) {
	env := testEnv(t)
	d := testDispatcher(t, env)
	sess := NewSession()

	out := run(t, d, sess, Message{"op": "eldoc", "id": int64(1), "sym": "hello"})
	resp := out[0]
	if resp["type"] != "function" {
		t.Errorf("type = %v, want function", resp["type"])
	}
	eldoc, ok := resp["eldoc"].([]any)
	if !ok || len(eldoc) != 1 {
		t.Fatalf("eldoc = %v", resp["eldoc"])
	}
	if !reflect.DeepEqual(eldoc[0], []string{"name"}) {
		t.Errorf("arity params = %v, want [name]", eldoc[0])
	}

	out = run(t, d, sess, Message{"op": "eldoc", "id": int64(2), "sym": "shout"})
	if out[0]["type"] != "macro" {
		t.Errorf("macro type = %v", out[0]["type"])
	}

	// Builtins advertise one parameter list per arity.
	out = run(t, d, sess, Message{"op": "eldoc", "id": int64(3), "sym": "+"})
	if eldoc, _ := out[0]["eldoc"].([]any); len(eldoc) < 2 {
		t.Errorf("+ should list multiple arities: %v", out[0]["eldoc"])
	}

	out = run(t, d, sess, Message{"op": "eldoc", "id": int64(4), "sym": "absent"})
	if !reflect.DeepEqual(status(out[0]), []string{"done", "no-eldoc"}) {
		t.Errorf("status = %v, want [done no-eldoc]", status(out[0]))
	}
}

func TestDispatchPanicRecovery(t *testing.T) {
	d := testDispatcher(t, nil)
	d.eval = panicEvaluator{}
	sess := NewSession()

	out := run(t, d, sess, Message{"op": "eval", "id": int64(1), "code": "anything"})
	last := out[len(out)-1]
	if !reflect.DeepEqual(status(last), []string{"done"}) {
		t.Errorf("panicking handler must still terminate with done: %v", out)
	}

	// The connection-level contract survives: further requests work.
	d.eval = runtime.NewInterp(d.env)
	out = run(t, d, sess, Message{"op": "eval", "id": int64(2), "code": "(+ 1 1)"})
	if out[0]["value"] != "2" {
		t.Errorf("dispatch broken after panic: %v", out)
	}
}

type panicEvaluator struct{}

func (panicEvaluator) Evaluate(context.Context, runtime.EvalRequest) (runtime.EvalResult, error) {
	panic("boom")
}

func TestDispatchTranscriptRecording(t *testing.T) {
	d := testDispatcher(t, nil)
	store := NewMemoryTranscripts()
	d.transcripts = store
	sess := NewSession()

	run(t, d, sess, Message{"op": "eval", "code": "(+ 1 3)"})
	run(t, d, sess, Message{"op": "eval", "code": "(/ 1 0)"})

	entries := store.Entries(sess.ID)
	if len(entries) != 2 {
		t.Fatalf("got %d transcript entries, want 2", len(entries))
	}
	if entries[0].Value != "4" || entries[0].Err != "" {
		t.Errorf("first entry = %+v", entries[0])
	}
	if entries[1].Err == "" {
		t.Errorf("fault entry misses err: %+v", entries[1])
	}
}
