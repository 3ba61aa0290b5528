// Package server exposes the auditor over HTTP and a websocket that streams progress.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/xhad/ackaudit/internal/models"
	"github.com/xhad/ackaudit/internal/types"
	"github.com/xhad/ackaudit/pkg/metrics"
	"github.com/xhad/ackaudit/pkg/pipeline"
	"github.com/xhad/ackaudit/pkg/report"
	"github.com/xhad/ackaudit/pkg/sink"
)

// Message types exchanged on the websocket.
const (
	TypeAudit    = "audit"
	TypeFetch    = "fetch"
	TypeStatus   = "status"
	TypeProgress = "progress"
	TypeResult   = "result"
	TypeError    = "error"
)

type Message struct {
	Type    string `json:"type"`
	Content string `json:"content"`
	Data    any    `json:"data,omitempty"`
	// PDF carries the document for audit requests (base64 in JSON).
	PDF []byte `json:"pdf,omitempty"`
}

type Auditor interface {
	Audit(ctx context.Context, doc models.Document, progress func(pipeline.Event)) (*pipeline.Result, error)
}

type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]models.Document, error)
}

type ServerConfig struct {
	Addr        string
	MaxUploadMB int
	// AllowedOrigin restricts websocket origins; empty or "*" allows any.
	AllowedOrigin string
}

type Server struct {
	config   ServerConfig
	auditor  Auditor
	fetcher  Fetcher
	sink     types.Sink
	metrics  *metrics.Metrics
	logger   zerolog.Logger
	upgrader websocket.Upgrader
}

func New(config ServerConfig, auditor Auditor, fetcher Fetcher, out types.Sink, m *metrics.Metrics, logger zerolog.Logger) *Server {
	if config.Addr == "" {
		config.Addr = ":8080"
	}
	if config.MaxUploadMB <= 0 {
		config.MaxUploadMB = 50
	}
	s := &Server{
		config:  config,
		auditor: auditor,
		fetcher: fetcher,
		sink:    out,
		metrics: m,
		logger:  logger.With().Str("component", "server").Logger(),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

func (s *Server) checkOrigin(r *http.Request) bool {
	if s.config.AllowedOrigin == "" || s.config.AllowedOrigin == "*" {
		return true
	}
	return r.Header.Get("Origin") == s.config.AllowedOrigin
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/audit", s.handleAudit)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy","service":"ackaudit"}`))
	})
	if s.metrics != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{}))
	}
	return mux
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.config.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.config.Addr).Msg("starting server")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.logger.Info().Msg("shutting down server")
		return srv.Shutdown(shutdownCtx)
	}
}

// handleAudit accepts a multipart upload in the "file" field and returns the report entry.
func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	limit := int64(s.config.MaxUploadMB) << 20
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, fmt.Sprintf("missing file: %v", err), http.StatusBadRequest)
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to read upload: %v", err), http.StatusBadRequest)
		return
	}

	entry, err := s.audit(r.Context(), models.Document{Name: header.Filename, Bytes: data}, nil)
	w.Header().Set("Content-Type", "application/json")
	if err != nil {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}
	_ = json.NewEncoder(w).Encode(entry)
}

// audit runs one document and stores the annotated copy. A sink failure is logged and
// leaves the entry without an output locator.
func (s *Server) audit(ctx context.Context, doc models.Document, progress func(pipeline.Event)) (report.Entry, error) {
	res, err := s.auditor.Audit(ctx, doc, progress)
	if err != nil {
		return report.Failed(doc.Name, err), err
	}
	location := ""
	if s.sink != nil && res.Highlight.Located > 0 {
		location, err = s.sink.Put(ctx, sink.AnnotatedName(doc.Name), res.Annotated)
		if err != nil {
			s.logger.Error().Err(err).Str("document", doc.Name).Msg("failed to store annotated document")
			location = ""
		}
	}
	return report.FromResult(res, location), nil
}

type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsConn) send(msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(msg)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()
	conn.SetReadLimit(int64(s.config.MaxUploadMB)<<20*2 + 4096)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	wc := &wsConn{conn: conn}

	var wg sync.WaitGroup
	defer wg.Wait()
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug().Err(err).Msg("websocket read ended")
			}
			cancel()
			return
		}

		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			s.sendMessage(wc, TypeError, fmt.Sprintf("invalid message: %v", err), nil)
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			s.handleMessage(ctx, wc, msg)
		}()
	}
}

func (s *Server) handleMessage(ctx context.Context, wc *wsConn, msg Message) {
	switch msg.Type {
	case TypeAudit:
		if len(msg.PDF) == 0 {
			s.sendMessage(wc, TypeError, "audit request without a document", nil)
			return
		}
		s.auditOne(ctx, wc, models.Document{Name: msg.Content, Bytes: msg.PDF})

	case TypeFetch:
		url := strings.TrimSpace(msg.Content)
		if s.fetcher == nil {
			s.sendMessage(wc, TypeError, "fetching is not enabled", nil)
			return
		}
		if !strings.HasPrefix(url, "http") {
			url = "https://" + url
		}
		s.sendMessage(wc, TypeStatus, fmt.Sprintf("Fetching %s", url), nil)
		docs, err := s.fetcher.Fetch(ctx, url)
		if err != nil && len(docs) == 0 {
			s.sendMessage(wc, TypeError, fmt.Sprintf("Failed to fetch URL: %v", err), nil)
			return
		}
		s.sendMessage(wc, TypeStatus, fmt.Sprintf("Fetched %d documents", len(docs)), nil)
		for _, doc := range docs {
			if ctx.Err() != nil {
				return
			}
			s.auditOne(ctx, wc, doc)
		}

	default:
		s.sendMessage(wc, TypeError, fmt.Sprintf("unknown message type %q", msg.Type), nil)
	}
}

func (s *Server) auditOne(ctx context.Context, wc *wsConn, doc models.Document) {
	entry, err := s.audit(ctx, doc, func(e pipeline.Event) {
		s.sendMessage(wc, TypeProgress, e.Message, e)
	})
	if err != nil {
		s.sendMessage(wc, TypeError, err.Error(), entry)
		return
	}
	s.sendMessage(wc, TypeResult, string(entry.Result), entry)
}

func (s *Server) sendMessage(wc *wsConn, msgType, content string, data any) {
	if err := wc.send(Message{Type: msgType, Content: content, Data: data}); err != nil {
		s.logger.Debug().Err(err).Str("type", msgType).Msg("failed to send message")
	}
}
