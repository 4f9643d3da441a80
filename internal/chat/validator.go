package chat

import (
	"errors"
	"strings"
	"unicode/utf8"
)

// Chat text limits. The byte cap bounds the relayed frame; the rune cap is
// what users see.
const (
	MaxMessageBytes = 4096
	MaxTextChars    = 2000
)

var (
	ErrEmptyMessage = errors.New("chat: message is empty")
	ErrTooLong      = errors.New("chat: message too long")
	ErrInvalidUTF8  = errors.New("chat: message is not valid UTF-8")
)

// ValidateMessage checks chat text before it is buffered and relayed.
func ValidateMessage(text string) error {
	switch {
	case strings.TrimSpace(text) == "":
		return ErrEmptyMessage
	case len(text) > MaxMessageBytes:
		return ErrTooLong
	case !utf8.ValidString(text):
		return ErrInvalidUTF8
	case utf8.RuneCountInString(text) > MaxTextChars:
		return ErrTooLong
	}
	return nil
}
