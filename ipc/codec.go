package ipc

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

// MaxMessageBytes bounds a single wire message. Scenario payloads are small;
// the limit mainly guards the supervisor against a worker spraying garbage on
// its stdout.
const MaxMessageBytes = 4 * 1024 * 1024

// Writer encodes messages as newline-delimited JSON. It is safe for
// concurrent use; the worker writes results and log notices from different
// goroutines.
type Writer struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewWriter creates a Writer on top of w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{enc: json.NewEncoder(w)}
}

// Write encodes a single message followed by a newline.
func (w *Writer) Write(msg Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.enc.Encode(&msg); err != nil {
		return fmt.Errorf("encoding %s message: %w", msg.Type, err)
	}
	return nil
}

// Reader decodes newline-delimited messages from the peer.
type Reader struct {
	scanner *bufio.Scanner
}

// NewReader creates a Reader on top of r.
func NewReader(r io.Reader) *Reader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), MaxMessageBytes)
	return &Reader{scanner: scanner}
}

// Next returns the next message on the channel. It returns io.EOF when the
// peer closed its end, which the supervisor treats as a disconnect.
func (r *Reader) Next() (Message, error) {
	for r.scanner.Scan() {
		line := r.scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var msg Message
		if err := json.Unmarshal(line, &msg); err != nil {
			return Message{}, fmt.Errorf("decoding message: %w", err)
		}
		if msg.Type == "" {
			return Message{}, fmt.Errorf("message without type: %s", truncateLine(line))
		}
		return msg, nil
	}
	if err := r.scanner.Err(); err != nil {
		return Message{}, err
	}
	return Message{}, io.EOF
}

func truncateLine(line []byte) string {
	const max = 200
	if len(line) > max {
		return string(line[:max]) + "..."
	}
	return string(line)
}
