package model

import "time"

// EditOrigin distinguishes how a committed edit came to be.
type EditOrigin string

const (
	OriginEdit EditOrigin = "edit"
	OriginUndo EditOrigin = "undo"
)

// EditEvent describes one committed cell change of a document. Events are
// published to the in-process edit feed after commit; they are
// observational and never part of the client broadcast path.
type EditEvent struct {
	Document   string     `json:"document"`
	Cell       string     `json:"cell"`
	Contents   string     `json:"contents"`
	Origin     EditOrigin `json:"origin"`
	OccurredAt int64      `json:"occurred_at"`
}

// NewEditEvent stamps an edit event with the current time.
func NewEditEvent(document, cell, contents string, origin EditOrigin) EditEvent {
	return EditEvent{
		Document:   document,
		Cell:       cell,
		Contents:   contents,
		Origin:     origin,
		OccurredAt: time.Now().UnixNano(),
	}
}
