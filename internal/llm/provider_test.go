package llm

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// capturedRequest guarda el ultimo cuerpo recibido por el servidor fake.
type capturedRequest struct {
	mu   sync.Mutex
	path string
	body []byte
}

func (c *capturedRequest) get() (string, []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.path, c.body
}

// jsonServer responde siempre status y payload, y registra el request.
func jsonServer(t *testing.T, status int, payload any) (*httptest.Server, *capturedRequest) {
	t.Helper()
	captured := &capturedRequest{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		captured.mu.Lock()
		captured.path = r.URL.Path
		captured.body = body
		captured.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(payload)
	}))
	t.Cleanup(server.Close)
	return server, captured
}
