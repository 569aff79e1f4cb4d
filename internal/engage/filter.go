package engage

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/plumekit/plume/internal/setup/config"
	"github.com/plumekit/plume/internal/state"
)

// Reason explains why the filter rejected a comment.
type Reason string

const (
	ReasonNone             Reason = ""
	ReasonAlreadyReplied   Reason = "already_replied"
	ReasonSelfComment      Reason = "self_comment"
	ReasonLowValue         Reason = "low_value"
	ReasonThreadCapReached Reason = "thread_cap_reached"
	ReasonUserCapReached   Reason = "user_cap_reached"
)

// Decision is the outcome of evaluating one candidate comment.
type Decision struct {
	Accepted bool
	Reason   Reason
}

// Filter decides whether a candidate comment deserves a reply. Evaluation is
// deterministic over its inputs and has no side effects, clock or network.
type Filter struct {
	botUserID    string
	perThreadCap int
	perUserCap   int
	lowValue     map[string]struct{}
}

// NewFilter creates a filter from reply configuration.
func NewFilter(cfg *config.Reply, botUserID string) *Filter {
	lowValue := make(map[string]struct{}, len(cfg.LowValuePhrases))
	for _, phrase := range cfg.LowValuePhrases {
		lowValue[strings.ToLower(strings.TrimSpace(phrase))] = struct{}{}
	}

	return &Filter{
		botUserID:    botUserID,
		perThreadCap: cfg.PerThreadCap,
		perUserCap:   cfg.PerUserCap,
		lowValue:     lowValue,
	}
}

// Evaluate runs the rejection rules in precedence order against one comment.
// The first matching rule wins; a comment that matches none is accepted.
func (f *Filter) Evaluate(comment Comment, rec *state.ThreadRecord, replied func(string) bool) Decision {
	if replied(comment.ID) {
		return Decision{Reason: ReasonAlreadyReplied}
	}

	if comment.AuthorID == f.botUserID {
		return Decision{Reason: ReasonSelfComment}
	}

	if f.isLowValue(comment.Text) {
		return Decision{Reason: ReasonLowValue}
	}

	if rec != nil {
		if rec.TotalReplies >= f.perThreadCap {
			return Decision{Reason: ReasonThreadCapReached}
		}

		if rec.RepliesByUser[comment.AuthorID] >= f.perUserCap {
			return Decision{Reason: ReasonUserCapReached}
		}
	}

	return Decision{Accepted: true}
}

// isLowValue reports whether a comment is too short or too generic to answer.
func (f *Filter) isLowValue(text string) bool {
	normalized := strings.ToLower(strings.TrimSpace(text))
	if utf8.RuneCountInString(normalized) < 3 {
		return true
	}

	// Short strings with no letters or digits are emoji or punctuation only.
	if utf8.RuneCountInString(normalized) <= 5 && !containsAlnum(normalized) {
		return true
	}

	if _, ok := f.lowValue[normalized]; ok {
		return true
	}

	return false
}

func containsAlnum(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}

	return false
}
