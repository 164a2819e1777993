package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/magictunnel-core/pkg/mcperr"
)

func TestContentFilter_BlocksMatchingPattern(t *testing.T) {
	f, err := NewContentFilter([]string{`(?i)secret-\d+`}, 0)
	require.NoError(t, err)

	err = f.Check(ChatRequest{Messages: []Message{{Role: RoleUser, Content: "my code is secret-42"}}})
	require.Error(t, err)
	assert.Equal(t, mcperr.KindContentFiltered, mcperr.KindOf(err))
}

func TestContentFilter_AllowsCleanText(t *testing.T) {
	f, err := NewContentFilter([]string{`(?i)secret-\d+`}, 0)
	require.NoError(t, err)

	err = f.Check(ChatRequest{Messages: []Message{{Role: RoleUser, Content: "hello world"}}})
	assert.NoError(t, err)
}

func TestContentFilter_ChecksSystemPromptToo(t *testing.T) {
	f, err := NewContentFilter([]string{"forbidden"}, 0)
	require.NoError(t, err)

	err = f.Check(ChatRequest{System: "this is forbidden content"})
	require.Error(t, err)
	assert.Equal(t, mcperr.KindContentFiltered, mcperr.KindOf(err))
}

func TestContentFilter_EnforcesMaxTokens(t *testing.T) {
	f, err := NewContentFilter(nil, 3)
	require.NoError(t, err)

	err = f.Check(ChatRequest{Messages: []Message{{Role: RoleUser, Content: "one two three four five six seven"}}})
	require.Error(t, err)
	assert.Equal(t, mcperr.KindContentFiltered, mcperr.KindOf(err))
}

func TestContentFilter_ZeroMaxTokensDisablesLengthCheck(t *testing.T) {
	f, err := NewContentFilter(nil, 0)
	require.NoError(t, err)

	err = f.Check(ChatRequest{Messages: []Message{{Role: RoleUser, Content: "as long as you like, no limit here at all"}}})
	assert.NoError(t, err)
}

func TestNewContentFilter_InvalidPatternErrors(t *testing.T) {
	_, err := NewContentFilter([]string{"("}, 0)
	assert.Error(t, err)
}
