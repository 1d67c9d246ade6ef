package search

import (
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/waypoint/internal/config"
)

const braveBody = `{"web": {"results": [
	{"url": "https://acme.com/", "title": "Acme"},
	{"url": "", "title": "broken"},
	{"url": "https://en.wikipedia.org/wiki/Acme", "title": "Wiki"},
	{"url": "https://acme.example.org", "title": "Other"}
]}}`

func braveConfig(endpoint string) config.SearchConfig {
	return config.SearchConfig{
		Provider: config.SearchBrave,
		APIKey:   "brave-key",
		Endpoint: endpoint,
		Results:  5,
		Timeout:  5 * time.Second,
	}
}

func encode(t *testing.T, encoding, body string) []byte {
	t.Helper()
	var buf bytes.Buffer
	switch encoding {
	case "gzip":
		zw := gzip.NewWriter(&buf)
		_, err := zw.Write([]byte(body))
		require.NoError(t, err)
		require.NoError(t, zw.Close())
	case "br":
		bw := brotli.NewWriter(&buf)
		_, err := bw.Write([]byte(body))
		require.NoError(t, err)
		require.NoError(t, bw.Close())
	default:
		buf.WriteString(body)
	}
	return buf.Bytes()
}

func TestBraveProvider_Search(t *testing.T) {
	for _, encoding := range []string{"", "gzip", "br"} {
		t.Run("encoding="+encoding, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "brave-key", r.Header.Get("X-Subscription-Token"))
				assert.Equal(t, "application/json", r.Header.Get("Accept"))
				assert.Equal(t, "acme official website", r.URL.Query().Get("q"))
				assert.Equal(t, "2", r.URL.Query().Get("count"))
				assert.Contains(t, r.Header.Get("Accept-Encoding"), "br")

				if encoding != "" {
					w.Header().Set("Content-Encoding", encoding)
				}
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write(encode(t, encoding, braveBody))
			}))
			t.Cleanup(server.Close)

			p, err := NewBraveProvider(braveConfig(server.URL), zaptest.NewLogger(t))
			require.NoError(t, err)

			urls, err := p.Search(context.Background(), "acme official website", 2)
			require.NoError(t, err)
			assert.Equal(t, []string{"https://acme.com/", "https://en.wikipedia.org/wiki/Acme"}, urls)
		})
	}
}

func TestBraveProvider_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"error": "rate limited"}`)
	}))
	t.Cleanup(server.Close)

	p, err := NewBraveProvider(braveConfig(server.URL), zaptest.NewLogger(t))
	require.NoError(t, err)

	_, err = p.Search(context.Background(), "acme", 5)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProviderStatus)
}

func TestBraveProvider_RequiresKey(t *testing.T) {
	cfg := braveConfig("http://unused")
	cfg.APIKey = ""
	_, err := NewBraveProvider(cfg, zaptest.NewLogger(t))
	assert.Error(t, err)
}

func TestBraveProvider_RateLimitHonoursContext(t *testing.T) {
	cfg := braveConfig("http://127.0.0.1:0")
	cfg.RateLimit = 0.001
	p, err := NewBraveProvider(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	// Drain the single burst token.
	require.True(t, p.limiter.Allow())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = p.Search(ctx, "acme", 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limiter")
}

func TestStaticProvider(t *testing.T) {
	p := NewStaticProvider([]string{"https://a.test", "https://b.test", "https://c.test"})

	got, err := p.Search(context.Background(), "ignored", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.test", "https://b.test"}, got)

	got, err = p.Search(context.Background(), "ignored", 0)
	require.NoError(t, err)
	assert.Len(t, got, 3)

	empty, err := NewStaticProvider(nil).Search(context.Background(), "x", 5)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestNew(t *testing.T) {
	logger := zaptest.NewLogger(t)

	p, err := New(config.SearchConfig{Provider: config.SearchStatic}, logger)
	require.NoError(t, err)
	assert.IsType(t, &StaticProvider{}, p)

	p, err = New(braveConfig("http://unused"), logger)
	require.NoError(t, err)
	assert.IsType(t, &BraveProvider{}, p)

	_, err = New(config.SearchConfig{Provider: "altavista"}, logger)
	assert.Error(t, err)
}
