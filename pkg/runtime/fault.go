package runtime

import (
	"fmt"
	"strings"
)

// Fault is an error raised while reading or evaluating user code. It
// carries enough location data to format a trace pointing into the
// submitted source.
type Fault struct {
	// Kind names the failure class, e.g. "ArithmeticError",
	// "UnresolvedSymbol", "SyntaxError", "ArityError".
	Kind string

	// Message is the human-readable description.
	Message string

	// Source labels where the code came from: "<nrepl>" for remote
	// eval input, or the file path for load-file.
	Source string

	// Line is the 1-based line of the top-level form that faulted, 0
	// when unknown.
	Line int

	// Frames are the forms being evaluated when the fault was raised,
	// innermost first, rendered readably.
	Frames []string
}

// Error implements error with the short summary form.
func (f *Fault) Error() string { return f.Summary() }

// Summary returns the one-line "Kind: message" form used for the err
// response field.
func (f *Fault) Summary() string {
	if f.Kind == "" {
		return f.Message
	}
	return f.Kind + ": " + f.Message
}

// Format renders the full trace text used for the ex response field.
func (f *Fault) Format() string {
	var b strings.Builder
	b.WriteString(f.Summary())
	b.WriteByte('\n')
	source := f.Source
	if source == "" {
		source = "<unknown>"
	}
	fmt.Fprintf(&b, "    at %s:%d\n", source, f.Line)
	for _, frame := range f.Frames {
		fmt.Fprintf(&b, "    in %s\n", frame)
	}
	return b.String()
}

// pushFrame records form on the fault's frame stack as it unwinds.
func (f *Fault) pushFrame(form Value) {
	if len(f.Frames) >= 8 {
		return
	}
	f.Frames = append(f.Frames, PrintString(form))
}

// NewFault builds a fault with no location attached yet.
func NewFault(kind, format string, args ...any) *Fault {
	return &Fault{Kind: kind, Message: fmt.Sprintf(format, args...)}
}
