// internal/operator/terminal.go
package operator

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"buttcom/internal/model"
)

// Terminal is an operator sitting at a text console
type Terminal struct {
	reader *bufio.Reader
	out    io.Writer
	mu     sync.Mutex
}

// NewTerminal reads answers from in and writes prompts and responses to out
func NewTerminal(in io.Reader, out io.Writer) *Terminal {
	return &Terminal{
		reader: bufio.NewReader(in),
		out:    out,
	}
}

type answer struct {
	line string
	err  error
}

// Prompt writes message and waits for one line. A closed input yields
// io.EOF; a final line without a newline is still returned.
func (t *Terminal) Prompt(ctx context.Context, message string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, err := io.WriteString(t.out, promptText(message)); err != nil {
		return "", fmt.Errorf("failed to write prompt: %w", err)
	}

	done := make(chan answer, 1)
	go func() {
		line, err := t.reader.ReadString('\n')
		done <- answer{line: line, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case a := <-done:
		switch {
		case a.err == nil, errors.Is(a.err, io.EOF) && a.line != "":
			return strings.TrimSpace(a.line), nil
		case errors.Is(a.err, io.EOF):
			return "", io.EOF
		default:
			return "", fmt.Errorf("failed to read answer: %w", a.err)
		}
	}
}

// Show prints one command and what the device said back
func (t *Terminal) Show(ex model.Exchange) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if ex.Response.Empty() {
		fmt.Fprintf(t.out, "%s -> (no response)\n", ex.Command)
		return
	}
	fmt.Fprintf(t.out, "%s -> %s\n", ex.Command, ex.Response.Text)
}

// promptText puts instructions on their own line and leaves input prompts
// ending in "> " inline
func promptText(message string) string {
	if strings.HasSuffix(message, "> ") {
		return message
	}
	return message + "\n"
}
