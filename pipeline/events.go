package pipeline

// EventType tags one streamed turn event.
type EventType string

const (
	// EventStatus reports a pipeline phase transition.
	EventStatus EventType = "status"
	// EventText carries a run of generated response text.
	EventText EventType = "text"
	// EventMarker carries the inner name of a bracketed marker.
	EventMarker EventType = "marker"
	// EventDone terminates the stream. A stream without it is incomplete.
	EventDone EventType = "done"
)

// Event is one typed item in a streamed turn. Status events name the phase
// and carry a short user-facing message; text and marker events carry
// generated content.
type Event struct {
	Type    EventType `json:"type"`
	Phase   string    `json:"phase,omitempty"`
	Content string    `json:"content,omitempty"`
}

// Pipeline phase names reported through status events.
const (
	PhaseSummarizing = "summarizing"
	PhaseEmbedding   = "embedding"
	PhaseThinking    = "thinking"
	PhaseGenerating  = "generating"
	PhasePersisting  = "persisting"
)

func statusEvent(phase, message string) Event {
	return Event{Type: EventStatus, Phase: phase, Content: message}
}

func textEvent(content string) Event {
	return Event{Type: EventText, Content: content}
}

func markerEvent(name string) Event {
	return Event{Type: EventMarker, Content: name}
}

func doneEvent() Event {
	return Event{Type: EventDone}
}
