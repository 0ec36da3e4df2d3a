package nrepl

import (
	"github.com/google/uuid"

	"github.com/slatelisp/slate/pkg/runtime"
)

// historyDepth is how many recent eval values a session remembers.
const historyDepth = 3

// Session is the per-connection evaluation context. It is owned
// exclusively by its connection's handler goroutine and mutated only
// by op handlers running for that connection, so it needs no locking.
// It is discarded when the connection closes.
type Session struct {
	// ID identifies the connection's primary logical session.
	ID string

	// NS is the active namespace label. It is just a label: it may
	// name a namespace that does not exist yet, and is only
	// dereferenced when an evaluation actually needs it.
	NS string

	// history holds the printable forms of the most recent successful
	// eval values, newest first, at most historyDepth entries.
	history []string

	// lastFault is the most recent evaluation fault, if any.
	lastFault *runtime.Fault

	// clones are the logical session ids handed out by the clone op on
	// this connection.
	clones map[string]bool
}

// NewSession creates a fresh session in the default namespace.
func NewSession() *Session {
	return &Session{
		ID:     uuid.NewString(),
		NS:     runtime.DefaultNamespace,
		clones: map[string]bool{},
	}
}

// Clone allocates a new logical session id on this connection.
func (s *Session) Clone() string {
	id := uuid.NewString()
	s.clones[id] = true
	return id
}

// Forget drops a cloned session id. Unknown ids are ignored.
func (s *Session) Forget(id string) {
	delete(s.clones, id)
}

// PushHistory records a successful eval value, evicting the oldest
// entry beyond the history depth.
func (s *Session) PushHistory(value string) {
	s.history = append([]string{value}, s.history...)
	if len(s.history) > historyDepth {
		s.history = s.history[:historyDepth]
	}
}

// History returns the recorded values, newest first.
func (s *Session) History() []string {
	return append([]string{}, s.history...)
}

// RecordFault stores the most recent evaluation fault.
func (s *Session) RecordFault(f *runtime.Fault) {
	s.lastFault = f
}

// LastFault returns the most recent evaluation fault, or nil.
func (s *Session) LastFault() *runtime.Fault {
	return s.lastFault
}
