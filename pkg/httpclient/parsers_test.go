package httpclient

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseOpenAIHeaders(t *testing.T) {
	h := http.Header{}
	h.Set("Retry-After", "5")
	h.Set("x-ratelimit-remaining-requests", "10")
	h.Set("x-ratelimit-remaining-tokens", "1000")

	info := ParseOpenAIHeaders(h)
	assert.Equal(t, 5*time.Second, info.RetryAfter)
	assert.Equal(t, 10, info.RequestsRemaining)
	assert.Equal(t, 1000, info.TokensRemaining)
}

func TestParseAnthropicHeaders(t *testing.T) {
	h := http.Header{}
	h.Set("retry-after", "2")
	h.Set("anthropic-ratelimit-requests-remaining", "4")

	info := ParseAnthropicHeaders(h)
	assert.Equal(t, 2*time.Second, info.RetryAfter)
	assert.Equal(t, 4, info.RequestsRemaining)
}

func TestParseOpenAIHeaders_EmptyWhenAbsent(t *testing.T) {
	info := ParseOpenAIHeaders(http.Header{})
	assert.Zero(t, info.RetryAfter)
	assert.Zero(t, info.RequestsRemaining)
}
