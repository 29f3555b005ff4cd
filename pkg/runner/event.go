package runner

import "encoding/json"

// event is the wire shape the embedded harness reports through
// __reportEvent. Only the fields relevant to the event's kind are set.
type event struct {
	Kind       string          `json:"kind"`
	Name       string          `json:"name"`
	File       string          `json:"file"`
	DurationMS float64         `json:"duration_ms"`
	Message    string          `json:"message"`
	Expected   json.RawMessage `json:"expected,omitempty"`
	Actual     json.RawMessage `json:"actual,omitempty"`
	Stack      string          `json:"stack,omitempty"`
}

func parseEvent(raw string) (event, error) {
	var e event
	err := json.Unmarshal([]byte(raw), &e)
	return e, err
}

// hasDetails reports whether this event describes a leaf test (as opposed
// to a suite). The embedded harness never emits suite events, but the
// check is kept explicit so the counting rule from spec.md §4.3 has a
// single, visible home rather than being implied by "we never emit
// anything else".
func (e event) hasDetails() bool {
	switch e.Kind {
	case "pass", "fail", "skip":
		return true
	default:
		return false
	}
}
