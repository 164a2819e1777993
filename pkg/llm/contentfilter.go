package llm

import (
	"fmt"
	"sync"

	"github.com/dlclark/regexp2"
	tiktoken "github.com/pkoukk/tiktoken-go"

	"github.com/kadirpekel/magictunnel-core/pkg/mcperr"
)

// ContentFilter enforces spec.md section 4.G's pre-call content policy:
// configured blocked regex patterns and a maximum content length,
// measured in tokens rather than bytes so the limit tracks what the
// provider actually bills and bounds. regexp2 is used instead of the
// standard library's RE2 engine because realistic moderation patterns
// rely on lookaround, which RE2 cannot express.
type ContentFilter struct {
	blocked      []*regexp2.Regexp
	maxTokens    int
	tokenizerEnc string

	encOnce sync.Once
	enc     *tiktoken.Tiktoken
}

// NewContentFilter compiles patterns (Go-regexp2 syntax) and sets
// maxTokens (<=0 disables the length check).
func NewContentFilter(patterns []string, maxTokens int) (*ContentFilter, error) {
	compiled := make([]*regexp2.Regexp, 0, len(patterns))
	for _, pattern := range patterns {
		re, err := regexp2.Compile(pattern, regexp2.None)
		if err != nil {
			return nil, fmt.Errorf("llm: compile blocked pattern %q: %w", pattern, err)
		}
		compiled = append(compiled, re)
	}
	return &ContentFilter{blocked: compiled, maxTokens: maxTokens, tokenizerEnc: "cl100k_base"}, nil
}

// Check scans every message and the system prompt, returning a
// KindContentFiltered error on the first blocked-pattern match or
// length violation.
func (f *ContentFilter) Check(req ChatRequest) error {
	if req.System != "" {
		if err := f.checkText(req.System); err != nil {
			return err
		}
	}
	for _, m := range req.Messages {
		if err := f.checkText(m.Content); err != nil {
			return err
		}
	}
	return nil
}

func (f *ContentFilter) checkText(text string) error {
	for _, re := range f.blocked {
		matched, err := re.MatchString(text)
		if err != nil {
			return mcperr.New(mcperr.KindContentFiltered, "blocked pattern evaluation failed", err)
		}
		if matched {
			return mcperr.New(mcperr.KindContentFiltered, "content matched a blocked pattern", nil)
		}
	}
	if f.maxTokens > 0 {
		if n := f.countTokens(text); n > f.maxTokens {
			return mcperr.New(mcperr.KindContentFiltered,
				fmt.Sprintf("content exceeds max length: %d > %d tokens", n, f.maxTokens), nil)
		}
	}
	return nil
}

func (f *ContentFilter) countTokens(text string) int {
	f.encOnce.Do(func() {
		f.enc, _ = tiktoken.GetEncoding(f.tokenizerEnc)
	})
	if f.enc == nil {
		return 0
	}
	return len(f.enc.Encode(text, nil, nil))
}
