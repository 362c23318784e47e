// Package sessiontest provides a virtual clock and a scripted operator for
// exercising sessions without a bench.
package sessiontest

import (
	"context"
	"io"
	"sync"
	"time"

	"buttcom/internal/model"
)

// EventKind tells writes and sleeps apart on a Timeline
type EventKind int

const (
	EventWrite EventKind = iota
	EventSleep
)

// Event is one entry on a Timeline
type Event struct {
	Kind  EventKind
	Data  string
	Delay time.Duration
}

// Timeline records writes and sleeps in the order they happen. Sleep never
// blocks.
type Timeline struct {
	mu     sync.Mutex
	events []Event
}

// Sleep satisfies session.Sleeper
func (tl *Timeline) Sleep(ctx context.Context, d time.Duration) error {
	tl.mu.Lock()
	tl.events = append(tl.events, Event{Kind: EventSleep, Delay: d})
	tl.mu.Unlock()
	return ctx.Err()
}

// RecordWrite can be hooked into a fake port's OnWrite
func (tl *Timeline) RecordWrite(p []byte) {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	tl.events = append(tl.events, Event{Kind: EventWrite, Data: string(p)})
}

// Events returns a copy of the recorded events
func (tl *Timeline) Events() []Event {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	out := make([]Event, len(tl.events))
	copy(out, tl.events)
	return out
}

// Sleeps returns only the recorded delays
func (tl *Timeline) Sleeps() []time.Duration {
	var out []time.Duration
	for _, ev := range tl.Events() {
		if ev.Kind == EventSleep {
			out = append(out, ev.Delay)
		}
	}
	return out
}

// Operator answers prompts from a script and records what it was shown
type Operator struct {
	mu      sync.Mutex
	answers []string
	prompts []string
	shown   []model.Exchange
}

// NewOperator returns an operator that will give answers in order and
// io.EOF once they run out.
func NewOperator(answers ...string) *Operator {
	return &Operator{answers: answers}
}

func (o *Operator) Prompt(ctx context.Context, message string) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", err
	}

	o.prompts = append(o.prompts, message)
	if len(o.answers) == 0 {
		return "", io.EOF
	}
	answer := o.answers[0]
	o.answers = o.answers[1:]
	return answer, nil
}

func (o *Operator) Show(ex model.Exchange) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.shown = append(o.shown, ex)
}

// Prompts returns every prompt message in order
func (o *Operator) Prompts() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.prompts...)
}

// Shown returns every exchange surfaced to the operator
func (o *Operator) Shown() []model.Exchange {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]model.Exchange(nil), o.shown...)
}
