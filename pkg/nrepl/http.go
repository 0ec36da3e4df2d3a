package nrepl

import (
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// startHTTP runs the sidecar: health, metrics exposition, and a
// websocket transport speaking the same framed protocol.
func (s *Server) startHTTP() error {
	ln, err := net.Listen("tcp", s.config.HTTPAddr)
	if err != nil {
		return err
	}

	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics",
		promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	r.Get("/nrepl", s.handleWebSocket)

	s.httpSrv = &http.Server{
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.httpAddr = ln.Addr().String()
	s.logger.Info("http sidecar listening", "addr", s.httpAddr)
	go func() {
		if err := s.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http sidecar failed", "error", err)
		}
	}()
	return nil
}

// HTTPAddr returns the sidecar's bound address, or "" when disabled.
// With a ":0" configured address this is the resolved one.
func (s *Server) HTTPAddr() string {
	return s.httpAddr
}

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// The protocol carries no browser credentials and binds to
	// localhost by default, so origins are not restricted.
	CheckOrigin: func(*http.Request) bool { return true },
}

// handleWebSocket runs the session protocol over a websocket. Each
// binary client message is a chunk of the same bencode stream the TCP
// transport carries; the remainder is carried across messages, and
// each response goes out as its own binary message.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	wsConn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	d := &dispatcher{
		env:         s.env,
		eval:        s.eval,
		logger:      s.logger,
		metrics:     s.metrics,
		tracer:      s.tracer,
		transcripts: s.transcripts,
	}
	netConn := &wsNetConn{ws: wsConn}

	// Track like a TCP connection so Shutdown closes it promptly;
	// hijacked sockets are invisible to http.Server.Shutdown.
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		wsConn.Close()
		return
	}
	s.conns[netConn] = struct{}{}
	s.mu.Unlock()
	defer s.forget(netConn)

	c := newConn(netConn, d, s.config.ChunkSize, s.metrics, s.logger)
	s.metrics.connOpened()
	c.serve(r.Context())
}

// wsNetConn adapts a websocket connection to the net.Conn surface the
// connection loop reads and writes. Reads hand back one message per
// call (the loop's remainder logic handles messages carrying partial
// or multiple frames); writes emit one binary message each.
type wsNetConn struct {
	ws      *websocket.Conn
	pending []byte
}

func (w *wsNetConn) Read(p []byte) (int, error) {
	if len(w.pending) == 0 {
		_, data, err := w.ws.ReadMessage()
		if err != nil {
			return 0, err
		}
		w.pending = data
	}
	n := copy(p, w.pending)
	w.pending = w.pending[n:]
	return n, nil
}

func (w *wsNetConn) Write(p []byte) (int, error) {
	if err := w.ws.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (w *wsNetConn) Close() error                  { return w.ws.Close() }
func (w *wsNetConn) LocalAddr() net.Addr           { return w.ws.LocalAddr() }
func (w *wsNetConn) RemoteAddr() net.Addr          { return w.ws.RemoteAddr() }
func (w *wsNetConn) SetDeadline(t time.Time) error { return w.setDeadlines(t) }
func (w *wsNetConn) SetReadDeadline(t time.Time) error {
	return w.ws.SetReadDeadline(t)
}
func (w *wsNetConn) SetWriteDeadline(t time.Time) error {
	return w.ws.SetWriteDeadline(t)
}

func (w *wsNetConn) setDeadlines(t time.Time) error {
	if err := w.ws.SetReadDeadline(t); err != nil {
		return err
	}
	return w.ws.SetWriteDeadline(t)
}
