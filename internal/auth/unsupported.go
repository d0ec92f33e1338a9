package auth

import (
	"context"
	"errors"

	"digest_bot/internal/source"
)

// ErrLoginUnsupported is returned by Unsupported for every login operation.
var ErrLoginUnsupported = errors.New("userbot login is not available in this build")

// Unsupported is the LoginClient used when no userbot transport is compiled
// in. Every operation fails with ErrLoginUnsupported, so the pipeline runs
// on the passive source alone and the login commands report a clear reason.
type Unsupported struct{}

func (Unsupported) StartLogin(context.Context, string) (string, error) {
	return "", ErrLoginUnsupported
}

func (Unsupported) SubmitCode(context.Context, string, string, string) error {
	return ErrLoginUnsupported
}

func (Unsupported) SubmitPassword(context.Context, string) error {
	return ErrLoginUnsupported
}

func (Unsupported) ExportToken(context.Context) (string, error) {
	return "", ErrLoginUnsupported
}

func (Unsupported) Restore(context.Context, string) (source.ChannelClient, error) {
	return nil, ErrLoginUnsupported
}
