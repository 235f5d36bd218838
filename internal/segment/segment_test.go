package segment

import (
	"reflect"
	"strings"
	"testing"
)

func TestPushPlainText(t *testing.T) {
	s := New()
	events := s.Push("hello world")
	want := []Event{{Type: Text, Content: "hello world"}}
	if !reflect.DeepEqual(events, want) {
		t.Fatalf("got %v, want %v", events, want)
	}
	if got := s.Flush(); got != nil {
		t.Fatalf("flush after complete text: got %v, want nil", got)
	}
}

func TestPushMarkerInSingleDelta(t *testing.T) {
	s := New()
	events := s.Push("hi [excited] there")
	want := []Event{
		{Type: Text, Content: "hi "},
		{Type: Marker, Content: "excited"},
		{Type: Text, Content: " there"},
	}
	if !reflect.DeepEqual(events, want) {
		t.Fatalf("got %v, want %v", events, want)
	}
}

func TestMarkerSplitAcrossDeltas(t *testing.T) {
	s := New()

	events := s.Push("hello [")
	want := []Event{{Type: Text, Content: "hello "}}
	if !reflect.DeepEqual(events, want) {
		t.Fatalf("first delta: got %v, want %v", events, want)
	}

	events = s.Push("excited] world")
	want = []Event{
		{Type: Marker, Content: "excited"},
		{Type: Text, Content: " world"},
	}
	if !reflect.DeepEqual(events, want) {
		t.Fatalf("second delta: got %v, want %v", events, want)
	}
}

func TestMarkerSplitMidName(t *testing.T) {
	s := New()
	if events := s.Push("[exc"); events != nil {
		t.Fatalf("partial marker should hold back, got %v", events)
	}
	events := s.Push("ited]")
	want := []Event{{Type: Marker, Content: "excited"}}
	if !reflect.DeepEqual(events, want) {
		t.Fatalf("got %v, want %v", events, want)
	}
}

func TestFlushIncompleteMarkerAsText(t *testing.T) {
	s := New()
	s.Push("goodbye [wav")
	events := s.Flush()
	want := []Event{{Type: Text, Content: "[wav"}}
	if !reflect.DeepEqual(events, want) {
		t.Fatalf("got %v, want %v", events, want)
	}
}

func TestConsecutiveMarkers(t *testing.T) {
	s := New()
	events := s.Push("[a][b]x")
	want := []Event{
		{Type: Marker, Content: "a"},
		{Type: Marker, Content: "b"},
		{Type: Text, Content: "x"},
	}
	if !reflect.DeepEqual(events, want) {
		t.Fatalf("got %v, want %v", events, want)
	}
}

func TestOverlongBracketIsText(t *testing.T) {
	s := New()
	long := "[" + strings.Repeat("a", maxMarkerLen+10)
	events := s.Push(long)
	want := []Event{{Type: Text, Content: long}}
	if !reflect.DeepEqual(events, want) {
		t.Fatalf("got %v, want %v", events, want)
	}
}

func TestNestedBracketRestartsMarker(t *testing.T) {
	s := New()
	events := s.Push("x [a[b] y")
	want := []Event{
		{Type: Text, Content: "x [a"},
		{Type: Marker, Content: "b"},
		{Type: Text, Content: " y"},
	}
	if !reflect.DeepEqual(events, want) {
		t.Fatalf("got %v, want %v", events, want)
	}
}

func TestUnmatchedBracketBeforeSplitMarker(t *testing.T) {
	s := New()

	events := s.Push("see [1] in [notes [wav")
	want := []Event{
		{Type: Text, Content: "see "},
		{Type: Marker, Content: "1"},
		{Type: Text, Content: " in [notes "},
	}
	if !reflect.DeepEqual(events, want) {
		t.Fatalf("first delta: got %v, want %v", events, want)
	}

	events = s.Push("es]")
	want = []Event{{Type: Marker, Content: "waves"}}
	if !reflect.DeepEqual(events, want) {
		t.Fatalf("second delta: got %v, want %v", events, want)
	}
}

func TestSingleByteDeltas(t *testing.T) {
	s := New()
	var got []Event
	for _, r := range "a[b]c" {
		got = append(got, s.Push(string(r))...)
	}
	got = append(got, s.Flush()...)
	want := []Event{
		{Type: Text, Content: "a"},
		{Type: Marker, Content: "b"},
		{Type: Text, Content: "c"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}
