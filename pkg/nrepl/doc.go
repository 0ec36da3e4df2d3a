// Package nrepl implements the Slate remote evaluation server.
//
// A client opens one TCP connection and exchanges bencode-framed
// dictionaries over it (see package bencode). Each request carries an
// "op" verb and usually an "id"; the server answers with one or more
// response dictionaries echoing the id, ending in a terminal "status".
// Supported verbs: clone, close, describe, eval, load-file, complete,
// info, eldoc.
//
// One connection owns one Session — the mutable evaluation context
// (active namespace, recent values, last fault). Requests on a
// connection are handled strictly sequentially; across connections the
// only shared state is the runtime's namespace registry, which is safe
// for concurrent reads.
//
// The server binds, announces its address through a one-shot Ready
// signal and an optional port file, and shuts down without waiting for
// open connections. An optional HTTP sidecar exposes health, metrics
// and a websocket transport speaking the same protocol.
package nrepl
