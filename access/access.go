// Package access validates that a requested (platform, chat) pair is
// configured and that the caller's secret matches, if one is set.
package access

import "github.com/LivelyChat/api/config"

// Error is a validation failure with the HTTP status it maps to.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string { return e.Message }

var (
	// ErrChatNotFound is returned when no chat matches (platform, chat).
	ErrChatNotFound = &Error{Status: 404, Message: "Chat not found"}
	// ErrInvalidSecret is returned when the chat has a secret configured
	// and the supplied one does not match.
	ErrInvalidSecret = &Error{Status: 403, Message: "Invalid secret"}
)

// StatusCode returns the HTTP status for err, or 500 for errors this
// package did not produce.
func StatusCode(err error) int {
	if e, ok := err.(*Error); ok {
		return e.Status
	}
	return 500
}

// Validate resolves (platform, chat) in cfg and checks secret. An
// unknown platform behaves like an unknown chat. On success the
// returned ChatConfig carries the canonical chat ID. No side effects.
func Validate(cfg *config.Config, platform, chat, secret string) (config.ChatConfig, error) {
	cc, ok := cfg.FindChat(platform, chat)
	if !ok {
		return config.ChatConfig{}, ErrChatNotFound
	}
	if cc.Secret != "" && cc.Secret != secret {
		return config.ChatConfig{}, ErrInvalidSecret
	}
	return cc, nil
}
