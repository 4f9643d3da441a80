package chat

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBufferKeepsOrder(t *testing.T) {
	b := NewBuffer(5)
	b.Add(BufferedMessage{From: "a", Text: "hello", Ts: 1})
	b.Add(BufferedMessage{From: "b", Text: "hi", Ts: 2})
	b.Add(BufferedMessage{From: "a", Text: "how are you?", Ts: 3})

	msgs := b.Messages()
	assert.Len(t, msgs, 3)
	assert.Equal(t, "hello", msgs[0].Text)
	assert.Equal(t, "how are you?", msgs[2].Text)
}

func TestBufferWraparound(t *testing.T) {
	b := NewBuffer(5)
	for i := 1; i <= 7; i++ {
		b.Add(BufferedMessage{From: "sender", Text: fmt.Sprintf("msg-%d", i), Ts: int64(i)})
	}

	msgs := b.Messages()
	assert.Len(t, msgs, 5)
	for i, m := range msgs {
		assert.Equal(t, fmt.Sprintf("msg-%d", i+3), m.Text)
	}
	assert.Equal(t, 5, b.Len())
}

func TestBufferEmpty(t *testing.T) {
	b := NewBuffer(0)
	assert.Empty(t, b.Messages())
	assert.Len(t, b.items, DefaultBufferSize)
}

func TestValidateMessage(t *testing.T) {
	assert.NoError(t, ValidateMessage("hi there"))
	assert.ErrorIs(t, ValidateMessage(""), ErrEmptyMessage)
	assert.ErrorIs(t, ValidateMessage(" \n\t"), ErrEmptyMessage)
	assert.ErrorIs(t, ValidateMessage(strings.Repeat("a", MaxMessageBytes+1)), ErrTooLong)
	assert.ErrorIs(t, ValidateMessage(strings.Repeat("é", MaxTextChars+1)), ErrTooLong)
	assert.ErrorIs(t, ValidateMessage("\xff\xfe"), ErrInvalidUTF8)
}
