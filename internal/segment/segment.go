// Package segment slices a live token stream into text and marker events.
//
// Generated responses embed bracketed markers like "[excited]" that drive
// the consumer's presentation layer. Deltas arrive at arbitrary boundaries,
// so a marker may be split across chunks; the segmenter holds back any
// trailing unmatched "[" until the next delta decides whether it opened a
// marker or was literal text.
package segment

import "strings"

// EventType distinguishes segmenter outputs.
type EventType int

const (
	// Text is a run of plain response text.
	Text EventType = iota
	// Marker is the inner name of a bracketed marker.
	Marker
)

// Event is one parsed segment.
type Event struct {
	Type    EventType
	Content string
}

// maxMarkerLen bounds how much text can be held back waiting for a closing
// bracket; anything longer is treated as literal text.
const maxMarkerLen = 64

// Segmenter is an incremental parser over streamed text deltas.
// Not safe for concurrent use; one segmenter serves one stream.
type Segmenter struct {
	buf strings.Builder
}

// New creates an empty segmenter.
func New() *Segmenter {
	return &Segmenter{}
}

// Push appends one delta and returns every event that is complete so far.
func (s *Segmenter) Push(delta string) []Event {
	s.buf.WriteString(delta)
	buffer := s.buf.String()

	var events []Event
	for {
		open := strings.IndexByte(buffer, '[')
		if open == -1 {
			// No marker can start; everything is text.
			if buffer != "" {
				events = append(events, Event{Type: Text, Content: buffer})
			}
			buffer = ""
			break
		}

		closing := strings.IndexByte(buffer[open:], ']')
		if closing == -1 {
			// Possibly a marker prefix split across deltas: emit the text
			// before the bracket and hold the rest back. Only the last "["
			// can still open a marker; earlier unmatched ones are literal.
			open = strings.LastIndexByte(buffer, '[')
			if len(buffer)-open > maxMarkerLen {
				// Too long to ever be a marker; flush as text.
				events = append(events, Event{Type: Text, Content: buffer})
				buffer = ""
				break
			}
			if open > 0 {
				events = append(events, Event{Type: Text, Content: buffer[:open]})
				buffer = buffer[open:]
			}
			break
		}

		// A "[" inside the candidate restarts it; a marker name never
		// contains a bracket.
		if inner := strings.LastIndexByte(buffer[open:open+closing], '['); inner > 0 {
			open += inner
			closing -= inner
		}

		if open > 0 {
			events = append(events, Event{Type: Text, Content: buffer[:open]})
		}
		events = append(events, Event{Type: Marker, Content: buffer[open+1 : open+closing]})
		buffer = buffer[open+closing+1:]
	}

	s.buf.Reset()
	s.buf.WriteString(buffer)
	return events
}

// Flush returns any held-back text as a final text event. An incomplete
// marker at end of stream is literal text, not an error.
func (s *Segmenter) Flush() []Event {
	remaining := s.buf.String()
	s.buf.Reset()
	if remaining == "" {
		return nil
	}
	return []Event{{Type: Text, Content: remaining}}
}
