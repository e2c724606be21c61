// Package notify delivers a rendered digest to its destination.
package notify

import (
	"context"
	"fmt"
	"io"
	"strings"
)

// Notifier sends one message. Implementations may split a long message into several sends.
type Notifier interface {
	Send(ctx context.Context, text string) error
}

// Stdout writes messages to a writer instead of delivering them. Used for dry runs.
type Stdout struct {
	W io.Writer
}

// NewStdout returns a notifier that prints to w.
func NewStdout(w io.Writer) *Stdout {
	return &Stdout{W: w}
}

// Send writes text followed by a newline.
func (s *Stdout) Send(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := io.WriteString(s.W, strings.TrimRight(text, "\n")+"\n"); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	return nil
}
