package llm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/magictunnel-core/pkg/mcperr"
)

type scriptedProvider struct {
	calls   int
	errs    []error
	success ChatResponse
}

func (s *scriptedProvider) Model() string { return "scripted" }

func (s *scriptedProvider) Complete(_ context.Context, _ ChatRequest) (ChatResponse, error) {
	idx := s.calls
	s.calls++
	if idx < len(s.errs) {
		return ChatResponse{}, s.errs[idx]
	}
	return s.success, nil
}

func TestWithRetry_RetriesConnectionErrorsThenSucceeds(t *testing.T) {
	inner := &scriptedProvider{
		errs:    []error{mcperr.New(mcperr.KindConnection, "boom", nil)},
		success: ChatResponse{Content: "ok"},
	}
	p := WithRetry(inner)

	resp, err := p.Complete(context.Background(), ChatRequest{})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
	assert.Equal(t, 2, inner.calls)
}

func TestWithRetry_NonRetriableKindFailsImmediately(t *testing.T) {
	inner := &scriptedProvider{
		errs: []error{mcperr.New(mcperr.KindContentFiltered, "blocked", nil)},
	}
	p := WithRetry(inner)

	_, err := p.Complete(context.Background(), ChatRequest{})
	require.Error(t, err)
	assert.Equal(t, 1, inner.calls)
}

func TestWithRetry_GivesUpAfterMaxRetries(t *testing.T) {
	inner := &scriptedProvider{
		errs: []error{
			mcperr.New(mcperr.KindConnection, "1", nil),
			mcperr.New(mcperr.KindConnection, "2", nil),
			mcperr.New(mcperr.KindConnection, "3", nil),
			mcperr.New(mcperr.KindConnection, "4", nil),
		},
	}
	p := WithRetry(inner)

	_, err := p.Complete(context.Background(), ChatRequest{})
	require.Error(t, err)
	assert.Equal(t, maxRetries+1, inner.calls)
}

func TestWithRetry_CancelledContextDuringBackoffReturnsCancelled(t *testing.T) {
	inner := &scriptedProvider{
		errs: []error{mcperr.New(mcperr.KindConnection, "boom", nil)},
	}
	p := WithRetry(inner)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := p.Complete(ctx, ChatRequest{})
	require.Error(t, err)
	assert.Equal(t, mcperr.KindCancelled, mcperr.KindOf(err))
}
