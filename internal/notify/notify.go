// Package notify defines the pipeline's outbound event surface: timestamped
// JSON events describing phase changes, voice activity, transcripts and
// command results, plus the Sink abstraction they are delivered through.
//
// Delivery is fire-and-forget: sinks absorb their own failures so that a
// broken UI connection can never stall or corrupt the pipeline.
package notify

import (
	"log/slog"
	"time"
)

// Event types understood by UI clients.
const (
	TypeStatus        = "status"
	TypeVoiceStatus   = "voice_status"
	TypeTranscript    = "transcript"
	TypeCommandResult = "command_result"
)

// Event is one outbound notification. Exactly the fields relevant to Type
// are populated; the rest are omitted from the JSON encoding.
type Event struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`

	// Message accompanies status events.
	Message string `json:"message,omitempty"`

	// Listening accompanies voice_status events.
	Listening *bool `json:"listening,omitempty"`

	// Text accompanies transcript events.
	Text string `json:"text,omitempty"`

	// Command and Result accompany command_result events.
	Command string `json:"command,omitempty"`
	Result  string `json:"result,omitempty"`
}

// Status builds a status event.
func Status(message string) Event {
	return Event{Type: TypeStatus, Timestamp: time.Now(), Message: message}
}

// VoiceStatus builds a voice_status event.
func VoiceStatus(listening bool) Event {
	return Event{Type: TypeVoiceStatus, Timestamp: time.Now(), Listening: &listening}
}

// Transcript builds a transcript event.
func Transcript(text string) Event {
	return Event{Type: TypeTranscript, Timestamp: time.Now(), Text: text}
}

// CommandResult builds a command_result event.
func CommandResult(command, result string) Event {
	return Event{Type: TypeCommandResult, Timestamp: time.Now(), Command: command, Result: result}
}

// Sink receives pipeline events. Notify must never block for long and must
// never fail loudly: delivery problems are the sink's to log and absorb.
type Sink interface {
	Notify(ev Event)
}

// Sinks fans one event out to several sinks in order.
type Sinks []Sink

// Notify delivers ev to every sink.
func (s Sinks) Notify(ev Event) {
	for _, sink := range s {
		sink.Notify(ev)
	}
}

// LogSink writes events to a structured logger. Useful headless, and as the
// always-on fallback alongside the WebSocket server.
type LogSink struct {
	Log *slog.Logger
}

// Notify implements Sink.
func (s *LogSink) Notify(ev Event) {
	log := s.Log
	if log == nil {
		log = slog.Default()
	}
	attrs := []any{"type", ev.Type}
	switch ev.Type {
	case TypeStatus:
		attrs = append(attrs, "message", ev.Message)
	case TypeVoiceStatus:
		if ev.Listening != nil {
			attrs = append(attrs, "listening", *ev.Listening)
		}
	case TypeTranscript:
		attrs = append(attrs, "text", ev.Text)
	case TypeCommandResult:
		attrs = append(attrs, "command", ev.Command, "result", ev.Result)
	}
	log.Info("pipeline event", attrs...)
}

var (
	_ Sink = (Sinks)(nil)
	_ Sink = (*LogSink)(nil)
)
