package nrepl

import (
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/slatelisp/slate/pkg/bencode"
)

func startServerWithSidecar(t *testing.T) (*Server, string) {
	t.Helper()
	config := DefaultConfig()
	config.HTTPAddr = "127.0.0.1:0"
	s, _ := startServer(t, config)
	if s.HTTPAddr() == "" {
		t.Fatal("sidecar address not resolved")
	}
	return s, s.HTTPAddr()
}

func TestSidecarHealthz(t *testing.T) {
	_, addr := startServerWithSidecar(t)

	resp, err := http.Get("http://" + addr + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "ok" {
		t.Errorf("body = %q", body)
	}
}

func TestSidecarMetricsExposition(t *testing.T) {
	s, addr := startServerWithSidecar(t)

	// Generate some traffic so counters exist with non-zero values.
	c := dialClient(t, s.Addr().String())
	c.send(Message{"op": "eval", "id": int64(1), "code": "1"})
	c.recvSeq()

	resp, err := http.Get("http://" + addr + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	text := string(body)
	for _, metric := range []string{
		"slate_nrepl_connections_total",
		"slate_nrepl_ops_total",
		"slate_nrepl_op_duration_seconds",
	} {
		if !strings.Contains(text, metric) {
			t.Errorf("exposition missing %s", metric)
		}
	}
}

// wsClient drives the protocol over the websocket transport. Each
// response arrives as its own binary message.
type wsClient struct {
	t   *testing.T
	ws  *websocket.Conn
	enc *bencode.Encoder
}

func dialWS(t *testing.T, addr string) *wsClient {
	t.Helper()
	ws, _, err := websocket.DefaultDialer.Dial("ws://"+addr+"/nrepl", nil)
	if err != nil {
		t.Fatalf("websocket dial: %v", err)
	}
	t.Cleanup(func() { ws.Close() })
	return &wsClient{t: t, ws: ws, enc: bencode.NewEncoder()}
}

func (c *wsClient) send(m Message) {
	c.t.Helper()
	c.enc.Reset()
	if err := c.enc.AppendValue(map[string]any(m)); err != nil {
		c.t.Fatalf("encode: %v", err)
	}
	if err := c.ws.WriteMessage(websocket.BinaryMessage, c.enc.Bytes()); err != nil {
		c.t.Fatalf("write: %v", err)
	}
}

func (c *wsClient) recvSeq() []Message {
	c.t.Helper()
	c.ws.SetReadDeadline(time.Now().Add(5 * time.Second))
	var seq []Message
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			c.t.Fatalf("read: %v", err)
		}
		raw, rest, derr := bencode.Decode(data, nil)
		if derr != nil || len(rest) != 0 {
			c.t.Fatalf("response framing: err=%v rest=%d", derr, len(rest))
		}
		m := Message(raw.(map[string]any))
		seq = append(seq, m)
		if hasStatus(m, "done") {
			return seq
		}
	}
}

func TestWebSocketTransport(t *testing.T) {
	_, addr := startServerWithSidecar(t)
	c := dialWS(t, addr)

	c.send(Message{"op": "eval", "id": int64(1), "code": "(+ 20 22)"})
	seq := c.recvSeq()
	if seq[0]["value"] != "42" || seq[0]["ns"] != "user" {
		t.Errorf("value response = %v", seq[0])
	}

	// Session state persists across websocket requests too.
	c.send(Message{"op": "eval", "id": int64(2), "code": "(def y 5)"})
	c.recvSeq()
	c.send(Message{"op": "eval", "id": int64(3), "code": "y"})
	if seq := c.recvSeq(); seq[0]["value"] != "5" {
		t.Errorf("definition lost: %v", seq)
	}
}

func TestWebSocketRequestSplitAcrossMessages(t *testing.T) {
	_, addr := startServerWithSidecar(t)
	c := dialWS(t, addr)

	c.enc.Reset()
	if err := c.enc.AppendValue(map[string]any{"op": "eval", "id": int64(1), "code": "(+ 1 2)"}); err != nil {
		t.Fatalf("encode: %v", err)
	}
	frame := c.enc.Bytes()
	half := len(frame) / 2
	for _, part := range [][]byte{frame[:half], frame[half:]} {
		if err := c.ws.WriteMessage(websocket.BinaryMessage, part); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if seq := c.recvSeq(); seq[0]["value"] != "3" {
		t.Errorf("split request mishandled: %v", seq)
	}
}
