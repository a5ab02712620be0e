package pipeline

import "github.com/mohammad-safakhou/newspulse/models"

// Event is one frame of a streamed answer. The sequence for a successful
// run is zero or one SourcesEvent, zero or more ContentEvents, then
// DoneEvent. An ErrorEvent replaces everything after the point of failure;
// no DoneEvent follows it.
type Event interface{ isEvent() }

// SourcesEvent carries the retrieved citations. It appears only when
// retrieval ran and found something, and always before any content.
type SourcesEvent struct {
	Sources []models.SourceInfo `json:"sources"`
}

// ContentEvent is one fragment of the generated answer.
type ContentEvent struct {
	Content string `json:"content"`
}

// DoneEvent marks a complete answer.
type DoneEvent struct{}

// ErrorEvent reports a mid-stream failure.
type ErrorEvent struct {
	Message string `json:"error"`
}

func (SourcesEvent) isEvent() {}
func (ContentEvent) isEvent() {}
func (DoneEvent) isEvent()    {}
func (ErrorEvent) isEvent()   {}
