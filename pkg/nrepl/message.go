package nrepl

// Message is one protocol dictionary, request or response. Values are
// the bencode kinds: int64, string, []any, map[string]any.
type Message map[string]any

// Op returns the request verb, or "" when absent.
func (m Message) Op() string {
	op, _ := m["op"].(string)
	return op
}

// ID returns the correlation id as received. It may be a string or an
// int64; responses echo it verbatim.
func (m Message) ID() any {
	return m["id"]
}

// Str returns the first non-empty string found under keys. Ops with
// interchangeable field names ("prefix"/"symbol", "sym"/"symbol") pass
// both.
func (m Message) Str(keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// response builds a reply to req: the given fields plus the request's
// id and session echoed when present.
func response(req Message, fields Message) Message {
	resp := make(Message, len(fields)+2)
	for k, v := range fields {
		resp[k] = v
	}
	if id, ok := req["id"]; ok {
		resp["id"] = id
	}
	if sess, ok := req["session"]; ok {
		resp["session"] = sess
	}
	return resp
}
