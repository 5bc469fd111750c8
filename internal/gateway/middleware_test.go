package gateway

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compresr/semantic-context/internal/config"
)

func TestClientIP(t *testing.T) {
	proxies, err := config.ParseTrustedProxies([]string{"127.0.0.1", "::1", "10.0.0.0/8"})
	require.NoError(t, err)
	g := &Gateway{proxies: proxies}

	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		want       string
	}{
		{"direct", "203.0.113.7:51234", nil, "203.0.113.7"},
		{"untrusted_forwarded", "203.0.113.7:51234", map[string]string{"X-Forwarded-For": "10.0.0.1"}, "203.0.113.7"},
		{"proxy_forwarded_chain", "127.0.0.1:9000", map[string]string{"X-Forwarded-For": "198.51.100.2, 10.0.0.1"}, "198.51.100.2"},
		{"proxy_real_ip", "[::1]:9000", map[string]string{"X-Real-IP": "198.51.100.9"}, "198.51.100.9"},
		{"proxy_cidr", "10.4.2.1:9000", map[string]string{"X-Forwarded-For": "198.51.100.3"}, "198.51.100.3"},
		{"proxy_mapped_v4", "[::ffff:10.4.2.1]:9000", map[string]string{"X-Forwarded-For": "198.51.100.4"}, "198.51.100.4"},
		{"proxy_no_headers", "127.0.0.1:9000", nil, "127.0.0.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("POST", "/api/contextualizer/process", nil)
			r.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, g.clientIP(r))
		})
	}
}

func TestClientIP_NoTrustedProxies(t *testing.T) {
	g := &Gateway{}
	r := httptest.NewRequest("POST", "/api/contextualizer/process", nil)
	r.RemoteAddr = "127.0.0.1:9000"
	r.Header.Set("X-Forwarded-For", "198.51.100.2")

	assert.Equal(t, "127.0.0.1", g.clientIP(r), "loopback is not trusted unless configured")
}

func TestClientLimiter_Refills(t *testing.T) {
	l := newClientLimiter(2, 10)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	assert.True(t, l.allow("a", now))
	assert.True(t, l.allow("a", now))
	assert.False(t, l.allow("a", now))
	assert.True(t, l.allow("b", now), "budgets are per client")

	assert.True(t, l.allow("a", now.Add(500*time.Millisecond)), "half a second at rate 2 refills one token")
	assert.False(t, l.allow("a", now.Add(500*time.Millisecond)))
}

func TestClientLimiter_Evicts(t *testing.T) {
	l := newClientLimiter(1, 2)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	l.allow("a", now)
	l.allow("b", now.Add(time.Second))
	l.allow("c", now.Add(2*time.Second))
	assert.Len(t, l.clients, 2)
	assert.NotContains(t, l.clients, "a", "least recently seen client evicted at capacity")

	later := now.Add(limiterIdleTTL + time.Minute)
	l.allow("d", later.Add(time.Second))
	l.allow("e", later.Add(2*time.Second))
	assert.Len(t, l.clients, 2)
	assert.Contains(t, l.clients, "d")
	assert.Contains(t, l.clients, "e")
}

func TestAllowOrigin(t *testing.T) {
	g := &Gateway{config: &config.Config{Server: config.ServerConfig{
		CORSOrigins: []string{"http://localhost:5173"},
	}}}
	assert.True(t, g.allowOrigin("http://localhost:5173"))
	assert.False(t, g.allowOrigin("http://127.0.0.1:8080"))
	assert.False(t, g.allowOrigin("https://example.com"))

	g.config.Server.CORSOrigins = []string{"*"}
	assert.True(t, g.allowOrigin("https://example.com"))

	g.config.Server.CORSOrigins = nil
	assert.False(t, g.allowOrigin("http://localhost:5173"))
}
