package resilience

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"explicit", NewTransientError(errors.New("overloaded"), 503), true},
		{"wrapped explicit", fmt.Errorf("places: %w", NewTransientError(errors.New("rate limited"), 429)), true},
		{"plain error", errors.New("detail page has no company name"), false},
		{"connection reset", fmt.Errorf("write tcp: %w", syscall.ECONNRESET), true},
		{"connection refused", fmt.Errorf("dial tcp: %w", syscall.ECONNREFUSED), true},
		{"dns timeout", &net.DNSError{IsTimeout: true, Err: "timeout"}, true},
		{"chrome connection closed", errors.New("page load error net::ERR_CONNECTION_CLOSED"), true},
		{"chrome timed out", errors.New("page load error net::ERR_TIMED_OUT"), true},
		{"chrome empty response", errors.New("net::ERR_EMPTY_RESPONSE"), true},
		{"navigation deadline", errors.New("navigate: context deadline exceeded"), true},
		{"tls handshake", errors.New("TLS handshake timeout"), true},
		{"idle connection", errors.New("http: server closed idle connection"), true},
		{"cancelled", fmt.Errorf("navigate: %w", context.Canceled), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestIsTransientHTTPStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		assert.True(t, IsTransientHTTPStatus(code), "HTTP %d", code)
	}
	for _, code := range []int{200, 301, 400, 401, 403, 404, 410, 422} {
		assert.False(t, IsTransientHTTPStatus(code), "HTTP %d", code)
	}
}

func TestTransientError(t *testing.T) {
	cause := errors.New("upstream unavailable")
	te := NewTransientError(cause, 503)

	assert.ErrorIs(t, te, cause)
	assert.Equal(t, 503, te.StatusCode)
	assert.Equal(t, "upstream unavailable", te.Error())
}
