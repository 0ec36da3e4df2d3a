package nrepl

import (
	"context"
	"fmt"
	"log/slog"
	gorun "runtime"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/slatelisp/slate/pkg/runtime"
)

// statusDone is the terminal status of every normal response sequence.
var statusDone = []string{"done"}

// responder delivers one response message to the client. Handlers call
// it once per message, in order; the connection writes each message to
// the wire immediately.
type responder func(Message) error

// handler runs one op against a session, streaming responses through
// send.
type handler func(d *dispatcher, ctx context.Context, sess *Session, req Message, send responder) error

// opsTable is the fixed verb set. Populated in init to avoid an
// initialization cycle with opDescribe, which iterates the table.
var opsTable map[string]handler

func init() {
	opsTable = map[string]handler{
		"clone":     (*dispatcher).opClone,
		"close":     (*dispatcher).opClose,
		"describe":  (*dispatcher).opDescribe,
		"eval":      (*dispatcher).opEval,
		"load-file": (*dispatcher).opLoadFile,
		"complete":  (*dispatcher).opComplete,
		"info":      (*dispatcher).opInfo,
		"eldoc":     (*dispatcher).opEldoc,
	}
}

// dispatcher maps decoded requests to op handlers.
type dispatcher struct {
	env         *runtime.Env
	eval        runtime.Evaluator
	logger      *slog.Logger
	metrics     *Metrics
	tracer      *dispatchTracer
	transcripts TranscriptStore
}

// dispatch runs one request to completion. Every request produces a
// terminated status sequence: unknown verbs get the error status, and
// a handler panic or internal error is converted into the eval-error
// report shape. No request ever terminates the connection.
func (d *dispatcher) dispatch(ctx context.Context, sess *Session, req Message, send responder) {
	op := req.Op()
	start := time.Now()
	ctx, finish := d.tracer.start(ctx, op, req)

	status := "done"
	defer func() {
		if p := recover(); p != nil {
			status = "panic"
			buf := make([]byte, 4096)
			buf = buf[:gorun.Stack(buf, false)]
			d.logger.Error("op handler panicked", "op", op, "panic", p, "stack", string(buf))
			fault := runtime.NewFault("InternalError", "%v", p)
			d.sendFault(sess, req, fault, send)
			finish(fault)
		}
		d.metrics.observeOp(op, status, time.Since(start))
	}()

	h, ok := opsTable[op]
	if !ok {
		status = "unknown-op"
		resp := response(req, Message{"status": []string{"error", "unknown-op", "done"}})
		if err := send(resp); err != nil {
			d.logger.Debug("write failed", "op", op, "error", err)
		}
		finish(nil)
		return
	}

	if err := h(d, ctx, sess, req, send); err != nil {
		// Handler errors are transport write failures; faults are
		// reported in-band and never surface here.
		status = "write-error"
		d.logger.Debug("response write failed", "op", op, "error", err)
		finish(err)
		return
	}
	finish(nil)
}

func (d *dispatcher) opClone(ctx context.Context, sess *Session, req Message, send responder) error {
	id := sess.Clone()
	return send(response(req, Message{"new-session": id, "status": statusDone}))
}

func (d *dispatcher) opClose(ctx context.Context, sess *Session, req Message, send responder) error {
	if id, ok := req["session"].(string); ok {
		sess.Forget(id)
	}
	return send(response(req, Message{"status": statusDone}))
}

func (d *dispatcher) opDescribe(ctx context.Context, sess *Session, req Message, send responder) error {
	ops := make(map[string]any, len(opsTable))
	for name := range opsTable {
		ops[name] = map[string]any{}
	}
	return send(response(req, Message{
		"ops": ops,
		"versions": map[string]any{
			"slate": map[string]any{"version-string": runtime.Version},
			"go":    map[string]any{"version-string": gorun.Version()},
		},
		"status": statusDone,
	}))
}

func (d *dispatcher) opEval(ctx context.Context, sess *Session, req Message, send responder) error {
	return d.evalCode(ctx, sess, req, req.Str("code"), "<nrepl>", send)
}

func (d *dispatcher) opLoadFile(ctx context.Context, sess *Session, req Message, send responder) error {
	source := req.Str("file-path", "file-name")
	if source == "" {
		source = "<load-file>"
	}
	return d.evalCode(ctx, sess, req, req.Str("file"), source, send)
}

// evalCode is the shared body of eval and load-file.
func (d *dispatcher) evalCode(ctx context.Context, sess *Session, req Message, code, source string, send responder) error {
	if ns := req.Str("ns"); ns != "" {
		// Starting hint only; the namespace reported back reflects
		// wherever evaluation leaves it.
		sess.NS = ns
	}

	var writeErr error
	out := outWriter(func(chunk string) {
		if writeErr == nil {
			writeErr = send(response(req, Message{"out": chunk}))
		}
	})

	res, err := d.eval.Evaluate(ctx, runtime.EvalRequest{
		NS:     sess.NS,
		Code:   code,
		Source: source,
		Out:    out,
	})
	if res.NS != "" {
		sess.NS = res.NS
	}
	if writeErr != nil {
		return writeErr
	}

	if err != nil {
		fault := asFault(err)
		sess.RecordFault(fault)
		d.record(ctx, sess, req.Op(), code, "", fault)
		return d.sendFault(sess, req, fault, send)
	}

	sess.PushHistory(res.Value)
	d.record(ctx, sess, req.Op(), code, res.Value, nil)
	if err := send(response(req, Message{"ns": sess.NS, "value": res.Value})); err != nil {
		return err
	}
	return send(response(req, Message{"ns": sess.NS, "status": statusDone}))
}

// sendFault emits the three-message fault sequence: err summary, ex
// trace with eval-error status, then the terminal done.
func (d *dispatcher) sendFault(sess *Session, req Message, fault *runtime.Fault, send responder) error {
	if err := send(response(req, Message{"err": fault.Summary() + "\n"})); err != nil {
		return err
	}
	if err := send(response(req, Message{
		"ex":     fault.Format(),
		"status": []string{"eval-error"},
		"ns":     sess.NS,
	})); err != nil {
		return err
	}
	return send(response(req, Message{"ns": sess.NS, "status": statusDone}))
}

func (d *dispatcher) opComplete(ctx context.Context, sess *Session, req Message, send responder) error {
	ns := req.Str("ns")
	if ns == "" {
		ns = sess.NS
	}
	query := req.Str("prefix", "symbol")
	cands := Complete(d.env, ns, query)
	return send(response(req, Message{
		"completions": wireCandidates(cands),
		"status":      statusDone,
	}))
}

func (d *dispatcher) opInfo(ctx context.Context, sess *Session, req Message, send responder) error {
	ns := req.Str("ns")
	if ns == "" {
		ns = sess.NS
	}
	r := Resolve(d.env, ns, req.Str("sym", "symbol"))
	if r.Kind != KindVar {
		return send(response(req, Message{"status": statusDone}))
	}
	meta := r.Var.Meta()
	return send(response(req, Message{
		"ns":           r.Var.Namespace().Name(),
		"name":         r.Var.Name(),
		"doc":          meta.Doc,
		"file":         meta.File,
		"line":         int64(meta.Line),
		"arglists-str": arglistsStr(meta.ArgLists),
		"status":       statusDone,
	}))
}

func (d *dispatcher) opEldoc(ctx context.Context, sess *Session, req Message, send responder) error {
	ns := req.Str("ns")
	if ns == "" {
		ns = sess.NS
	}
	r := Resolve(d.env, ns, req.Str("sym", "symbol"))
	if r.Kind != KindVar {
		return send(response(req, Message{"status": []string{"done", "no-eldoc"}}))
	}
	meta := r.Var.Meta()
	typ := "function"
	if meta.Macro {
		typ = "macro"
	}
	eldoc := make([]any, len(meta.ArgLists))
	for i, arglist := range meta.ArgLists {
		eldoc[i] = arglist
	}
	return send(response(req, Message{
		"ns":        r.Var.Namespace().Name(),
		"name":      r.Var.Name(),
		"type":      typ,
		"docstring": meta.Doc,
		"eldoc":     eldoc,
		"status":    statusDone,
	}))
}

// arglistsStr renders arglists the way editors show them:
// "([x] [x y])".
func arglistsStr(arglists [][]string) string {
	if len(arglists) == 0 {
		return ""
	}
	parts := make([]string, len(arglists))
	for i, arglist := range arglists {
		parts[i] = "[" + strings.Join(arglist, " ") + "]"
	}
	return "(" + strings.Join(parts, " ") + ")"
}

// record appends an eval transcript entry when a store is configured.
func (d *dispatcher) record(ctx context.Context, sess *Session, op, code, value string, fault *runtime.Fault) {
	if d.transcripts == nil {
		return
	}
	entry := TranscriptEntry{
		Op:    op,
		NS:    sess.NS,
		Code:  code,
		Value: value,
		Time:  time.Now().UTC(),
	}
	if fault != nil {
		entry.Err = fault.Summary()
	}
	if err := d.transcripts.Append(ctx, sess.ID, entry); err != nil {
		d.logger.Warn("transcript append failed", "session", sess.ID, "error", err)
	}
}

// asFault normalizes evaluator errors: *Fault passes through, anything
// else (a cancelled context, an evaluator bug) is wrapped so the
// client still receives the standard fault report shape.
func asFault(err error) *runtime.Fault {
	if f, ok := err.(*runtime.Fault); ok {
		return f
	}
	return runtime.NewFault("Error", "%v", err)
}

// outWriter adapts a chunk callback to io.Writer, preserving one
// emitted message per write call.
type outWriter func(chunk string)

func (w outWriter) Write(p []byte) (int, error) {
	w(string(p))
	return len(p), nil
}

// tracer attribute helpers shared with trace.go.
func opAttributes(op string, req Message) []attribute.KeyValue {
	attrs := []attribute.KeyValue{attribute.String("nrepl.op", op)}
	if id := req.ID(); id != nil {
		attrs = append(attrs, attribute.String("nrepl.id", fmt.Sprintf("%v", id)))
	}
	return attrs
}
