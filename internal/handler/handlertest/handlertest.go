// Package handlertest builds gin routers with token based auth for handler
// tests.
package handlertest

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/lifedrop-api/internal/middleware"
	"github.com/jwalitptl/lifedrop-api/internal/model"
	"github.com/jwalitptl/lifedrop-api/pkg/errors"
)

var setup sync.Once

// Tokens maps bearer tokens to actors.
type Tokens map[string]model.Actor

func (t Tokens) Authenticate(_ context.Context, token string) (model.Actor, error) {
	a, ok := t[token]
	if !ok {
		return model.Actor{}, errors.Unauthorized(stderrors.New("unknown token"))
	}
	return a, nil
}

// Router returns an engine with the /api/v1 group wired through register.
func Router(t *testing.T, tokens Tokens, register func(r *gin.RouterGroup, mw *middleware.AuthMiddleware)) *gin.Engine {
	t.Helper()
	setup.Do(func() {
		gin.SetMode(gin.TestMode)
	})
	require.NoError(t, middleware.RegisterValidators())

	r := gin.New()
	register(r.Group("/api/v1"), middleware.NewAuthMiddleware(tokens))
	return r
}

// Do performs one request. body is JSON encoded unless nil.
func Do(t *testing.T, r http.Handler, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// Envelope is the decoded response body.
type Envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    int               `json:"code"`
		Message string            `json:"message"`
		Fields  map[string]string `json:"fields"`
	} `json:"error"`
}

func Decode(t *testing.T, w *httptest.ResponseRecorder) Envelope {
	t.Helper()
	var env Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return env
}

// Into decodes the envelope's data into dst.
func (e Envelope) Into(t *testing.T, dst interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(e.Data, dst))
}
