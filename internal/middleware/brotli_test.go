package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/andybalholm/brotli"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/assert/v2"
)

func newBrotliRouter(body string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(BrotliWithConfig(BrotliConfig{Quality: 5, MinLength: 64}))
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, body) })
	return r
}

func TestBrotli_CompressesLargeBodies(t *testing.T) {
	body := strings.Repeat("<p>rendered problem</p>", 50)
	r := newBrotliRouter(body)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept-Encoding", "gzip, br")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, w.Header().Get("Content-Encoding"), "br")
	plain, err := io.ReadAll(brotli.NewReader(w.Body))
	assert.Equal(t, err, nil)
	assert.Equal(t, string(plain), body)
}

func TestBrotli_PassesThrough(t *testing.T) {
	cases := []struct {
		name   string
		body   string
		accept string
		extra  map[string]string
	}{
		{"small body", "tiny", "br", nil},
		{"no br support", strings.Repeat("x", 500), "gzip", nil},
		{"event stream", strings.Repeat("x", 500), "br", map[string]string{"Accept": "text/event-stream"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := newBrotliRouter(tc.body)
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("Accept-Encoding", tc.accept)
			for k, v := range tc.extra {
				req.Header.Set(k, v)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, w.Header().Get("Content-Encoding"), "")
			assert.Equal(t, w.Body.String(), tc.body)
		})
	}
}

func TestAcceptsBrotli(t *testing.T) {
	tests := []struct {
		header string
		want   bool
	}{
		{"", false},
		{"gzip, deflate", false},
		{"gzip, br", true},
		{"BR", true},
		{"br;q=0.5, gzip", true},
		{"br;q=0", false},
		{"br; q=0.0, gzip", false},
	}
	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("Accept-Encoding", tt.header)
			assert.Equal(t, acceptsBrotli(req), tt.want)
		})
	}
}
