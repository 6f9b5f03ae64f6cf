// Package notify carries transient user-facing notifications ("toasts").
package notify

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Notifier receives non-blocking notifications for recoverable failures
type Notifier interface {
	Success(msg string)
	Error(msg string)
}

// LogNotifier writes notifications to a logger
type LogNotifier struct {
	log logrus.FieldLogger
}

// NewLogNotifier creates a notifier backed by the given logger
func NewLogNotifier(log logrus.FieldLogger) *LogNotifier {
	return &LogNotifier{log: log.WithField("component", "notify")}
}

func (n *LogNotifier) Success(msg string) { n.log.Info(msg) }
func (n *LogNotifier) Error(msg string)   { n.log.Warn(msg) }

// Level of a recorded notification
type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

// Message is a recorded notification
type Message struct {
	Level Level
	Text  string
}

// Recorder keeps notifications in memory so a UI or test can read them back
type Recorder struct {
	mu       sync.Mutex
	messages []Message
}

func (r *Recorder) Success(msg string) { r.add(LevelSuccess, msg) }
func (r *Recorder) Error(msg string)   { r.add(LevelError, msg) }

func (r *Recorder) add(level Level, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, Message{Level: level, Text: msg})
}

// Messages returns a copy of everything recorded so far
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Message, len(r.messages))
	copy(out, r.messages)
	return out
}

// Errors returns only the error texts
func (r *Recorder) Errors() []string {
	var out []string
	for _, m := range r.Messages() {
		if m.Level == LevelError {
			out = append(out, m.Text)
		}
	}
	return out
}
