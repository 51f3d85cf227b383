package jsonrpc

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/ethereum/go-ethereum/log"
	"github.com/gorilla/websocket"
)

// WSServer is the WebSocket listener half of spec §6's "ws_config". Each
// connection accepts a stream of rpcCall frames and writes one rpcResult
// frame per call, in order.
type WSServer struct {
	cfg      ListenConfig
	relay    *Relay
	server   *http.Server
	upgrader websocket.Upgrader
}

// NewWSServer builds a WSServer bound to cfg.Listen.
func NewWSServer(cfg ListenConfig, relay *Relay) *WSServer {
	w := &WSServer{
		cfg:   cfg,
		relay: relay,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return allowedOrigin(cfg.AllowOrigin, r.Header.Get("Origin"))
			},
		},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/", w.handle)
	w.server = &http.Server{Addr: cfg.Listen, Handler: mux}
	return w
}

func allowedOrigin(allowed []string, origin string) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, a := range allowed {
		if a == "*" || a == origin {
			return true
		}
	}
	return false
}

// ListenAndServe runs the WS listener until ctx is cancelled or it fails.
func (w *WSServer) ListenAndServe(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		_ = w.server.Close()
	}()
	log.Info("jsonrpc: ws listener starting", "addr", w.cfg.Listen, "threads", w.cfg.Threads)
	if err := w.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (w *WSServer) handle(rw http.ResponseWriter, r *http.Request) {
	conn, err := w.upgrader.Upgrade(rw, r, nil)
	if err != nil {
		log.Warn("jsonrpc: ws upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	for {
		var call rpcCall
		if err := conn.ReadJSON(&call); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug("jsonrpc: ws connection closed unexpectedly", "err", err)
			}
			return
		}
		resp := w.dispatchFrame(r.Context(), call)
		if err := conn.WriteJSON(resp); err != nil {
			log.Warn("jsonrpc: ws write failed", "err", err)
			return
		}
	}
}

// dispatchFrame adapts dispatchCall's http.ResponseWriter-shaped contract
// to a plain rpcResult value for the WS frame protocol.
func (w *WSServer) dispatchFrame(ctx context.Context, call rpcCall) rpcResult {
	rec := &resultRecorder{}
	dispatchCall(ctx, w.relay, call, rec)
	var out rpcResult
	if rec.body != nil {
		_ = json.Unmarshal(rec.body, &out)
	}
	return out
}

// resultRecorder is a minimal http.ResponseWriter that captures the body
// dispatchCall writes, so the WS path can reuse the same dispatch logic as
// the HTTP path without a real HTTP round trip.
type resultRecorder struct {
	header http.Header
	body   []byte
}

func (r *resultRecorder) Header() http.Header {
	if r.header == nil {
		r.header = make(http.Header)
	}
	return r.header
}

func (r *resultRecorder) Write(b []byte) (int, error) {
	r.body = append(r.body, b...)
	return len(b), nil
}

func (r *resultRecorder) WriteHeader(statusCode int) {}
