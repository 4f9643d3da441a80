package chat

// DefaultBufferSize is the number of recent messages retained per room.
const DefaultBufferSize = 20

// BufferedMessage is a single chat line kept for report context.
type BufferedMessage struct {
	From string `json:"senderId"` // connection id of the sender
	Text string `json:"text"`
	Ts   int64  `json:"ts"` // unix milliseconds
}

// Buffer is a fixed-size ring of the most recent chat lines. It is not safe
// for concurrent use.
type Buffer struct {
	items []BufferedMessage
	pos   int
	count int
}

// NewBuffer creates a ring holding at most size messages. A non-positive
// size falls back to DefaultBufferSize.
func NewBuffer(size int) *Buffer {
	if size <= 0 {
		size = DefaultBufferSize
	}
	return &Buffer{items: make([]BufferedMessage, size)}
}

// Add appends a message, overwriting the oldest one when full.
func (b *Buffer) Add(msg BufferedMessage) {
	b.items[b.pos] = msg
	b.pos = (b.pos + 1) % len(b.items)
	if b.count < len(b.items) {
		b.count++
	}
}

// Messages returns the retained messages oldest first.
func (b *Buffer) Messages() []BufferedMessage {
	size := len(b.items)
	out := make([]BufferedMessage, b.count)
	start := (b.pos - b.count + size) % size
	for i := 0; i < b.count; i++ {
		out[i] = b.items[(start+i)%size]
	}
	return out
}

// Len returns the number of retained messages.
func (b *Buffer) Len() int { return b.count }
