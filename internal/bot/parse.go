package bot

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	channelNameRe = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]{3,31}$`)
	phoneRe       = regexp.MustCompile(`^\+\d{7,15}$`)
)

// ParseChannelArg normalizes a channel reference: a bare username, an
// @username, or a t.me link all resolve to the plain username.
func ParseChannelArg(args string) (string, error) {
	name := strings.TrimSpace(args)
	if name == "" {
		return "", fmt.Errorf("channel name is required")
	}

	for _, prefix := range []string{"https://t.me/s/", "https://t.me/", "http://t.me/", "t.me/s/", "t.me/", "@"} {
		if strings.HasPrefix(name, prefix) {
			name = strings.TrimPrefix(name, prefix)
			break
		}
	}
	name = strings.TrimSuffix(name, "/")

	if !channelNameRe.MatchString(name) {
		return "", fmt.Errorf("invalid channel name %q", name)
	}
	return name, nil
}

// ParsePhoneArg validates an international phone number.
func ParsePhoneArg(args string) (string, error) {
	phone := strings.ReplaceAll(strings.TrimSpace(args), " ", "")
	if phone == "" {
		return "", fmt.Errorf("phone number is required")
	}
	if !phoneRe.MatchString(phone) {
		return "", fmt.Errorf("invalid phone number %q, use international format like +15551234567", phone)
	}
	return phone, nil
}
