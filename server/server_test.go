package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/ackaudit/internal/models"
	"github.com/xhad/ackaudit/pkg/highlight"
	"github.com/xhad/ackaudit/pkg/metrics"
	"github.com/xhad/ackaudit/pkg/pipeline"
	"github.com/xhad/ackaudit/server"
)

type fakeAuditor struct{}

func (fakeAuditor) Audit(_ context.Context, doc models.Document, progress func(pipeline.Event)) (*pipeline.Result, error) {
	if progress == nil {
		progress = func(pipeline.Event) {}
	}
	if !bytes.HasPrefix(doc.Bytes, []byte("%PDF")) {
		return nil, errors.New("extraction failed: not a pdf")
	}
	progress(pipeline.Event{DocumentID: "d1", Stage: pipeline.StageExtract, Message: "extracting text"})
	progress(pipeline.Event{DocumentID: "d1", Stage: pipeline.StageDone, Message: "audit complete", Progress: 1})
	return &pipeline.Result{
		DocumentID: "d1",
		Name:       doc.Name,
		Extraction: &models.Extraction{Title: "Imaging"},
		Verdict:    &models.DocumentVerdict{Result: models.VerdictYes, Confidence: 0.9, Verifications: []models.VerificationRecord{}},
		Highlight:  highlight.Stats{Requested: 1, Located: 1, Rects: 1},
		Annotated:  []byte("annotated"),
	}, nil
}

type fakeFetcher struct{}

func (fakeFetcher) Fetch(context.Context, string) ([]models.Document, error) {
	return []models.Document{
		{Name: "a.pdf", Bytes: []byte("%PDF a")},
		{Name: "b.pdf", Bytes: []byte("%PDF b")},
	}, nil
}

type memSink struct {
	mu    sync.Mutex
	names []string
}

func (s *memSink) Put(_ context.Context, name string, _ []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.names = append(s.names, name)
	return "mem://" + name, nil
}

func newServer(t *testing.T) (*httptest.Server, *memSink) {
	t.Helper()
	out := &memSink{}
	s := server.New(server.ServerConfig{}, fakeAuditor{}, fakeFetcher{}, out, metrics.New(), zerolog.Nop())
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return srv, out
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readUntil(t *testing.T, conn *websocket.Conn, types ...string) []server.Message {
	t.Helper()
	var got []server.Message
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		var msg server.Message
		require.NoError(t, conn.ReadJSON(&msg))
		got = append(got, msg)
		for _, ty := range types {
			if msg.Type == ty {
				return got
			}
		}
	}
}

func TestWebSocket_Audit(t *testing.T) {
	srv, out := newServer(t)
	conn := dial(t, srv)

	require.NoError(t, conn.WriteJSON(server.Message{Type: server.TypeAudit, Content: "paper.pdf", PDF: []byte("%PDF-1.7")}))
	msgs := readUntil(t, conn, server.TypeResult, server.TypeError)

	require.Len(t, msgs, 3)
	assert.Equal(t, server.TypeProgress, msgs[0].Type)
	assert.Equal(t, "extracting text", msgs[0].Content)
	last := msgs[2]
	assert.Equal(t, server.TypeResult, last.Type)
	assert.Equal(t, "Yes", last.Content)

	data, ok := last.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "mem://paper_highlighted.pdf", data["output"])
	assert.Equal(t, []string{"paper_highlighted.pdf"}, out.names)
}

func TestWebSocket_Errors(t *testing.T) {
	srv, _ := newServer(t)
	conn := dial(t, srv)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	msgs := readUntil(t, conn, server.TypeError)
	assert.Contains(t, msgs[len(msgs)-1].Content, "invalid message")

	require.NoError(t, conn.WriteJSON(server.Message{Type: "chat"}))
	msgs = readUntil(t, conn, server.TypeError)
	assert.Contains(t, msgs[len(msgs)-1].Content, "unknown message type")

	require.NoError(t, conn.WriteJSON(server.Message{Type: server.TypeAudit, Content: "x.pdf", PDF: []byte("junk")}))
	msgs = readUntil(t, conn, server.TypeError)
	assert.Contains(t, msgs[len(msgs)-1].Content, "not a pdf")
}

func TestWebSocket_Fetch(t *testing.T) {
	srv, out := newServer(t)
	conn := dial(t, srv)

	require.NoError(t, conn.WriteJSON(server.Message{Type: server.TypeFetch, Content: "example.org/papers"}))

	results := 0
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for results < 2 {
		var msg server.Message
		require.NoError(t, conn.ReadJSON(&msg))
		require.NotEqual(t, server.TypeError, msg.Type, msg.Content)
		if msg.Type == server.TypeResult {
			results++
		}
	}
	assert.ElementsMatch(t, []string{"a_highlighted.pdf", "b_highlighted.pdf"}, out.names)
}

func TestHTTP_Audit(t *testing.T) {
	srv, _ := newServer(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "paper.pdf")
	require.NoError(t, err)
	fw.Write([]byte("%PDF-1.7"))
	require.NoError(t, mw.Close())

	resp, err := http.Post(srv.URL+"/audit", mw.FormDataContentType(), &body)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var entry map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&entry))
	assert.Equal(t, "paper.pdf", entry["document"])
	assert.Equal(t, "Yes", entry["result"])

	resp2, err := http.Get(srv.URL + "/audit")
	require.NoError(t, err)
	resp2.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp2.StatusCode)
}

func TestHTTP_HealthAndMetrics(t *testing.T) {
	srv, _ := newServer(t)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "healthy")

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "ackaudit_documents_in_flight")
}
