// internal/model/exchange.go
package model

import (
	"time"

	"github.com/google/uuid"
)

// ResponseLine is whatever the device sent back for one read: text up to a
// line terminator, or the bytes that arrived before the read timeout.
type ResponseLine struct {
	Text     string        `json:"text"`
	TimedOut bool          `json:"timed_out"`
	Elapsed  time.Duration `json:"elapsed"`
}

// Empty reports whether nothing was received
func (r ResponseLine) Empty() bool {
	return r.Text == ""
}

// Exchange pairs a command with the response read after it
type Exchange struct {
	Command  Command      `json:"command"`
	Response ResponseLine `json:"response"`
	SentAt   time.Time    `json:"sent_at"`
}

// Transcript is the ordered record of one procedure run. It lives only as
// long as the process.
type Transcript struct {
	SessionID uuid.UUID  `json:"session_id"`
	Procedure Procedure  `json:"procedure"`
	Port      string     `json:"port"`
	Exchanges []Exchange `json:"exchanges"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at"`
}

// NewTranscript creates an empty transcript for a session
func NewTranscript(sessionID uuid.UUID, procedure Procedure, port string) *Transcript {
	return &Transcript{
		SessionID: sessionID,
		Procedure: procedure,
		Port:      port,
		StartedAt: time.Now(),
	}
}

// Add appends an exchange
func (t *Transcript) Add(ex Exchange) {
	t.Exchanges = append(t.Exchanges, ex)
}

// Finish stamps the end time
func (t *Transcript) Finish() {
	now := time.Now()
	t.EndedAt = &now
}

// Commands returns the commands in the order they were exchanged
func (t *Transcript) Commands() []Command {
	cmds := make([]Command, 0, len(t.Exchanges))
	for _, ex := range t.Exchanges {
		cmds = append(cmds, ex.Command)
	}
	return cmds
}
