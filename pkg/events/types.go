// Package events defines the activity events emitted after analytics operations complete.
package events

// ActivityEvent is emitted once an analytics operation has been accepted by the backend.
type ActivityEvent struct {
	Channel   string         `json:"channel"`
	Method    string         `json:"method"`
	CallID    string         `json:"callId,omitempty"`
	Name      string         `json:"name,omitempty"`
	Params    map[string]any `json:"params,omitempty"`
	Timestamp string         `json:"timestamp"`
}
