package digest

import (
	"fmt"
	"strings"

	"digest_bot/internal/model"
)

// salienceMarker is prepended when a summary matches the recipient's
// interest profile.
const salienceMarker = "⭐ "

var markdownV2Escaper = strings.NewReplacer(
	"_", "\\_", "*", "\\*", "[", "\\[", "]", "\\]",
	"(", "\\(", ")", "\\)", "~", "\\~", "`", "\\`",
	">", "\\>", "#", "\\#", "+", "\\+", "-", "\\-",
	"=", "\\=", "|", "\\|", "{", "\\{", "}", "\\}",
	".", "\\.", "!", "\\!",
)

// EscapeMarkdownV2 escapes all characters reserved by Telegram MarkdownV2.
func EscapeMarkdownV2(s string) string {
	return markdownV2Escaper.Replace(s)
}

// PostURL returns the public link to a channel post.
func PostURL(username string, postID int64) string {
	return fmt.Sprintf("https://t.me/%s/%d", username, postID)
}

func channelLabel(channel model.Channel) string {
	if channel.Title != "" {
		return channel.Title
	}
	return "@" + channel.Username
}

// FormatSummary renders the MarkdownV2 delivery message for one summary.
func FormatSummary(channel model.Channel, postID int64, summary string, marked bool) string {
	var b strings.Builder
	if marked {
		b.WriteString(salienceMarker)
	}
	fmt.Fprintf(&b, "*%s*\n\n", EscapeMarkdownV2(channelLabel(channel)))
	b.WriteString(EscapeMarkdownV2(summary))
	fmt.Fprintf(&b, "\n\n[Open post](%s)", PostURL(channel.Username, postID))
	return b.String()
}

// FormatSummaryPlain renders the unformatted fallback used when the
// transport rejects the MarkdownV2 payload.
func FormatSummaryPlain(channel model.Channel, postID int64, summary string, marked bool) string {
	var b strings.Builder
	if marked {
		b.WriteString(salienceMarker)
	}
	fmt.Fprintf(&b, "%s\n\n", channelLabel(channel))
	b.WriteString(summary)
	fmt.Fprintf(&b, "\n\n%s", PostURL(channel.Username, postID))
	return b.String()
}
