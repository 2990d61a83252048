package worker

import (
	"sync"

	"github.com/acarl005/stripansi"
)

const defaultConsoleTailBytes = 256 * 1024 // kept in memory per scenario

// consoleBuffer keeps only the last N bytes written to it so a representative
// snippet of console output can ride along on the result message without
// retaining a chatty scenario's full output in memory.
type consoleBuffer struct {
	maxBytes int

	mu       sync.Mutex
	total    int64
	contents []byte
	overflow bool
}

func newConsoleBuffer(maxBytes int) *consoleBuffer {
	if maxBytes <= 0 {
		maxBytes = defaultConsoleTailBytes
	}
	return &consoleBuffer{
		maxBytes: maxBytes,
		contents: make([]byte, 0, min(maxBytes, 4096)),
	}
}

func (b *consoleBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.total += int64(len(p))
	b.contents = append(b.contents, p...)
	if len(b.contents) > b.maxBytes {
		b.contents = b.contents[len(b.contents)-b.maxBytes:]
		b.overflow = true
	}
	return len(p), nil
}

// String returns the captured tail with ANSI escape sequences stripped, since
// colored engine output is noise in stored results.
func (b *consoleBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return stripansi.Strip(string(b.contents))
}

func (b *consoleBuffer) TotalBytes() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.total
}

func (b *consoleBuffer) Truncated() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.overflow
}
