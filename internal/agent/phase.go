package agent

// Phase is the controller's state machine position. The phase value itself
// is the concurrency guard: wake events are only honoured in
// PhaseMonitoring, which makes overlapping sessions impossible without a
// separate lock.
type Phase int

const (
	// PhaseIdle is the only initial state; the controller returns to it on
	// shutdown.
	PhaseIdle Phase = iota

	// PhaseMonitoring listens for the wake phrase.
	PhaseMonitoring

	// PhaseWakeDetected is the momentary state between accepting a wake
	// event and starting the spoken acknowledgement.
	PhaseWakeDetected

	// PhaseResponding plays the wake acknowledgement.
	PhaseResponding

	// PhaseCommandListening waits for a spoken command under a deadline.
	PhaseCommandListening

	// PhaseProcessing transcribes and executes a captured command.
	PhaseProcessing

	// PhaseError is the cooldown state after a capability failure; it
	// recovers to PhaseMonitoring.
	PhaseError
)

// String returns the snake_case phase name used in logs and notifications.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseMonitoring:
		return "monitoring"
	case PhaseWakeDetected:
		return "wake_detected"
	case PhaseResponding:
		return "responding"
	case PhaseCommandListening:
		return "command_listening"
	case PhaseProcessing:
		return "processing"
	case PhaseError:
		return "error"
	default:
		return "unknown"
	}
}
