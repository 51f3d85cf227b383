package jsonrpc

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/ethereum/go-ethereum/log"
	"github.com/rs/cors"
)

// rpcCall is the decoded jsonrpc request body. Full jsonrpc 2.0 is out of
// scope (Non-goals, spec §1); this front end decodes only a method name and
// raw params, and routes the method names listed in dispatch.go.
type rpcCall struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

// HTTPServer is the HTTP listener half of spec §6's "http_config".
type HTTPServer struct {
	cfg    ListenConfig
	relay  *Relay
	server *http.Server
}

// NewHTTPServer builds an HTTPServer bound to cfg.Listen, wrapped in CORS
// per cfg.AllowOrigin.
func NewHTTPServer(cfg ListenConfig, relay *Relay) *HTTPServer {
	mux := http.NewServeMux()
	h := &HTTPServer{cfg: cfg, relay: relay}
	mux.HandleFunc("/", h.handle)

	handler := cors.New(cors.Options{
		AllowedOrigins: cfg.AllowOrigin,
		AllowedMethods: []string{http.MethodPost},
	}).Handler(mux)

	h.server = &http.Server{Addr: cfg.Listen, Handler: handler}
	return h
}

// ListenAndServe runs the HTTP listener until ctx is cancelled or it fails.
func (h *HTTPServer) ListenAndServe(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		_ = h.server.Close()
	}()
	log.Info("jsonrpc: http listener starting", "addr", h.cfg.Listen, "threads", h.cfg.Threads)
	if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (h *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "only POST is supported", http.StatusMethodNotAllowed)
		return
	}
	var call rpcCall
	if err := json.NewDecoder(r.Body).Decode(&call); err != nil {
		http.Error(w, "malformed request body", http.StatusBadRequest)
		return
	}
	dispatchCall(r.Context(), h.relay, call, w)
}
