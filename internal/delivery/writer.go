package delivery

import (
	"context"
	"fmt"
	"io"
	"sync"

	"chatdigest/pkg/chat"
)

// Writer prints each digest followed by a newline.
type Writer struct {
	name string
	mu   sync.Mutex
	w    io.Writer
}

// NewWriter creates a Writer sender.
func NewWriter(name string, w io.Writer) *Writer {
	return &Writer{name: name, w: w}
}

// Name returns the sender name.
func (w *Writer) Name() string { return w.name }

// Send writes text to the underlying writer.
func (w *Writer) Send(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := fmt.Fprintln(w.w, text); err != nil {
		return chat.WrapTransport("write "+w.name, err)
	}
	return nil
}
