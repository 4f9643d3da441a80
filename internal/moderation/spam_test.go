package moderation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheckSpam(t *testing.T) {
	tests := []struct {
		name  string
		input string
		term  string
	}{
		{"http url", "check out http://evil.com", "url"},
		{"https url", "visit https://spam.xyz/click", "url"},
		{"www url", "go to www.phishing.net", "url"},
		{"bare domain with path", "visit evil.com/free", "url"},
		{"bare domain .ru path", "go to site.ru/malware", "url"},
		{"intl dashed", "+1-555-123-4567", "phone"},
		{"parenthesized area code", "(555) 123-4567", "phone"},
		{"dotted format", "555.123.4567", "phone"},
		{"in sentence", "call me at 555-123-4567 okay?", "phone"},
		{"repeated o in word", "hellooooooo", "char_flood"},
		{"repeated exclamation", "wow!!!!!", "char_flood"},
		{"exactly 5 repeated chars", "aaaaa", "char_flood"},
		{"buy x3", "buy buy buy", "word_flood"},
		{"case insensitive", "BUY buy Buy", "word_flood"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			term, ok := CheckSpam(tt.input)
			assert.True(t, ok)
			assert.Equal(t, tt.term, term)
		})
	}
}

func TestCheckSpam_CleanMessages(t *testing.T) {
	for _, input := range []string{
		"I have 3 cats",
		"My score is 100",
		"lol that's cool",
		"upgrade to v2.0",
		"pi is about 3.14",
		"see you in 2025",
		"",
		"   ",
		"aaaa",
		"heeeel no",
		"wow!!! that's great!!",
		"yeah yeah whatever",
		"go go",
		"ok. sure. fine.",
		"it costs $5.99",
		"hello\nworld",
	} {
		_, ok := CheckSpam(input)
		assert.False(t, ok, "expected %q to be clean", input)
	}
}

func TestTriage(t *testing.T) {
	log := []LogEntry{
		{SenderID: "reporter", Text: "visit http://mine.com"},
		{SenderID: "accused", Text: "buy buy buy"},
		{SenderID: "accused", Text: "hi"},
		{SenderID: "accused", Text: "go to www.scam.net"},
		{SenderID: "accused", Text: "www.again.org"},
	}

	assert.Equal(t, []string{"url", "word_flood"}, Triage("accused", log))
	assert.Equal(t, []string{"url"}, Triage("reporter", log))
	assert.Empty(t, Triage("nobody", log))
}
