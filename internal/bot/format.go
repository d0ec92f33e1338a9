package bot

import (
	"fmt"
	"strings"

	"digest_bot/internal/auth"
	"digest_bot/internal/model"
	"digest_bot/internal/summarizer"
)

// FormatChannelList formats a user's subscriptions for display.
func FormatChannelList(channels []model.Channel) string {
	if len(channels) == 0 {
		return "You are not subscribed to any channels yet. Use /add <channel> to subscribe."
	}
	var b strings.Builder
	b.WriteString("Your channels:\n")
	for _, ch := range channels {
		fmt.Fprintf(&b, "\n@%s — %s\n", ch.Username, ch.Title)
		if ch.LastCheckedAt != nil {
			fmt.Fprintf(&b, "   last checked %s\n", ch.LastCheckedAt.Format("2006-01-02 15:04 UTC"))
		} else {
			b.WriteString("   not checked yet\n")
		}
	}
	return b.String()
}

// FormatStatus formats the /status reply: login state, active provider and
// the user's interest profile.
func FormatStatus(state auth.State, phone string, opts summarizer.Options, interests string, channels int) string {
	var b strings.Builder
	b.WriteString("Status:\n")
	if phone != "" && state != auth.NotStarted {
		fmt.Fprintf(&b, "Userbot: %s (%s)\n", state, phone)
	} else {
		fmt.Fprintf(&b, "Userbot: %s\n", state)
	}
	fmt.Fprintf(&b, "AI provider: %s", opts.Provider)
	switch opts.Provider {
	case "gemini":
		fmt.Fprintf(&b, " (%s)", opts.GeminiModel)
	case "claude":
		fmt.Fprintf(&b, " (%s)", opts.ClaudeModel)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "Subscriptions: %d\n", channels)
	if interests != "" {
		fmt.Fprintf(&b, "Interests: %s\n", interests)
	} else {
		b.WriteString("Interests: not set\n")
	}
	return b.String()
}
