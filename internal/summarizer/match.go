package summarizer

import (
	"context"
	"fmt"
	"strings"
)

// InterestMatcher decides whether a summary is relevant to a user's
// interest profile, using the currently selected provider with a strict
// yes/no prompt. Any failure or unparseable verdict counts as no match, so
// a flaky provider can never over-flag.
type InterestMatcher struct {
	settings *Settings
}

// NewInterestMatcher creates an InterestMatcher.
func NewInterestMatcher(settings *Settings) *InterestMatcher {
	return &InterestMatcher{settings: settings}
}

// Matches reports whether the summary is relevant to the interests.
func (m *InterestMatcher) Matches(ctx context.Context, summary, interests string) (bool, error) {
	if strings.TrimSpace(interests) == "" {
		return false, nil
	}

	provider, err := m.settings.Provider()
	if err != nil {
		return false, err
	}

	prompt := fmt.Sprintf(`Does the following post summary match any of the reader's interests?

Interests: %s

Summary:
%s

Answer with exactly one word: yes or no.`, interests, summary)

	verdict, _, err := provider.Complete(ctx, prompt)
	if err != nil {
		return false, fmt.Errorf("interest match: %w", err)
	}

	answer := strings.ToLower(strings.TrimSpace(verdict))
	return answer == "yes" || strings.HasPrefix(answer, "yes"), nil
}
