package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/shaunagostinho/mechanic-dash/internal/config"
	"github.com/shaunagostinho/mechanic-dash/internal/gauge"
	"github.com/shaunagostinho/mechanic-dash/internal/link"
	"github.com/shaunagostinho/mechanic-dash/internal/record"
	"github.com/shaunagostinho/mechanic-dash/internal/transport"
)

// StatusSource reports the current link status. *link.Machine satisfies it.
type StatusSource interface {
	Status() link.Status
}

// Server pushes channel readings and link status to WebSocket clients and
// serves a small JSON API. It only reads channel state.
type Server struct {
	cfg      *config.Config
	cluster  *gauge.Cluster
	status   StatusSource
	registry *prometheus.Registry
	log      logrus.FieldLogger

	// listPeers backs /api/peers.
	listPeers func() ([]transport.PeerInfo, error)

	clients   map[*wsClient]struct{}
	clientsMu sync.RWMutex

	upgrader websocket.Upgrader
}

type wsClient struct {
	conn   *websocket.Conn
	send   chan []byte
	binary bool // CBOR frames instead of JSON
}

// Frame is the structure sent to all WebSocket clients.
type Frame struct {
	Channels []gauge.Reading `json:"channels,omitempty" cbor:"channels,omitempty"`
	Status   *StatusFrame    `json:"status,omitempty" cbor:"status,omitempty"`
	Stamp    int64           `json:"stamp" cbor:"stamp"` // Unix ms
}

// StatusFrame is the presentation view of a link.Status.
type StatusFrame struct {
	Phase  string        `json:"phase" cbor:"phase"`
	Peer   string        `json:"peer" cbor:"peer"`
	Title  string        `json:"title" cbor:"title"`
	Params *record.Flags `json:"params,omitempty" cbor:"params,omitempty"`
	Error  string        `json:"error,omitempty" cbor:"error,omitempty"`
}

// New creates a new Server. registry may be nil to disable /metrics.
func New(cfg *config.Config, cluster *gauge.Cluster, status StatusSource, registry *prometheus.Registry, log logrus.FieldLogger) *Server {
	return &Server{
		cfg:       cfg,
		cluster:   cluster,
		status:    status,
		registry:  registry,
		log:       log.WithField("component", "server"),
		listPeers: transport.ListPeerDetails,
		clients:   make(map[*wsClient]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// WebSocket endpoint
	mux.HandleFunc("/ws", s.handleWS)

	// JSON API
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/channels", s.handleChannels)
	mux.HandleFunc("/api/peers", s.handlePeers)
	mux.HandleFunc("/api/config", s.handleConfig)

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	if s.registry != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	}
	return mux
}

// Run starts the HTTP server and the broadcast loop.
func (s *Server) Run(ctx context.Context) error {
	go s.broadcastLoop(ctx)

	addr := s.cfg.ServerSettings().ListenAddr
	srv := &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}

	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutCtx)
	}()

	s.log.Infof("listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Warn("websocket upgrade failed")
		return
	}

	client := &wsClient{
		conn:   conn,
		send:   make(chan []byte, 64),
		binary: r.URL.Query().Get("format") == "cbor",
	}

	// Queue the current state before the client becomes visible to the
	// broadcaster so it is always the first frame.
	if data, err := client.encode(s.frame()); err == nil {
		client.send <- data
	}

	s.clientsMu.Lock()
	s.clients[client] = struct{}{}
	total := len(s.clients)
	s.clientsMu.Unlock()

	s.log.Infof("client connected (%d total)", total)

	// Writer goroutine
	go func() {
		defer conn.Close()
		msgType := websocket.TextMessage
		if client.binary {
			msgType = websocket.BinaryMessage
		}
		for msg := range client.send {
			if err := conn.WriteMessage(msgType, msg); err != nil {
				break
			}
		}
	}()

	// Reader goroutine (keep-alive; clients never send anything meaningful)
	go func() {
		defer func() {
			s.clientsMu.Lock()
			delete(s.clients, client)
			total := len(s.clients)
			close(client.send)
			s.clientsMu.Unlock()
			s.log.Infof("client disconnected (%d total)", total)
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.statusFrame())
}

func (s *Server) handleChannels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.cluster.Snapshot())
}

func (s *Server) handlePeers(w http.ResponseWriter, r *http.Request) {
	peers, err := s.listPeers()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, peers)
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		data, err := s.cfg.ToJSON()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(data)

	case http.MethodPost:
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		if err := s.cfg.UpdateFromJSON(body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := s.cfg.Save(); err != nil {
			s.log.WithError(err).Warn("config save failed")
		}
		// Title may have changed
		s.broadcast(Frame{Status: s.statusFrame(), Stamp: time.Now().UnixMilli()})

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// broadcastLoop sends the latest readings and status at the configured rate.
func (s *Server) broadcastLoop(ctx context.Context) {
	hz := s.cfg.ServerSettings().BroadcastHz
	if hz <= 0 {
		hz = 20
	}
	ticker := time.NewTicker(time.Second / time.Duration(hz))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.clientsMu.RLock()
			idle := len(s.clients) == 0
			s.clientsMu.RUnlock()
			if !idle {
				s.broadcast(s.frame())
			}
		}
	}
}

func (s *Server) frame() Frame {
	return Frame{
		Channels: s.cluster.Snapshot(),
		Status:   s.statusFrame(),
		Stamp:    time.Now().UnixMilli(),
	}
}

func (s *Server) statusFrame() *StatusFrame {
	st := s.status.Status()
	f := &StatusFrame{
		Phase:  st.Phase.String(),
		Peer:   st.Peer,
		Title:  st.Title(s.cfg.Title()),
		Params: st.Params,
	}
	if st.Err != nil {
		f.Error = st.Err.Error()
	}
	return f
}

func (s *Server) broadcast(frame Frame) {
	var jsonData, cborData []byte

	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()

	for client := range s.clients {
		var data []byte
		if client.binary {
			if cborData == nil {
				b, err := cbor.Marshal(frame)
				if err != nil {
					continue
				}
				cborData = b
			}
			data = cborData
		} else {
			if jsonData == nil {
				b, err := json.Marshal(frame)
				if err != nil {
					continue
				}
				jsonData = b
			}
			data = jsonData
		}
		select {
		case client.send <- data:
		default:
			// Client too slow, skip
		}
	}
}

func (c *wsClient) encode(frame Frame) ([]byte, error) {
	if c.binary {
		return cbor.Marshal(frame)
	}
	return json.Marshal(frame)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
