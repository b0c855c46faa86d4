// Package output decides where a tool result goes: small payloads are
// returned inline, anything large is produced by a background job and
// written to a result file.
package output

import "encoding/json"

// charsPerToken is the rough character-to-token ratio for JSON-heavy
// English text. The divisor is deliberately low so estimates err large:
// a payload on the boundary routes async rather than blowing a context
// window.
const charsPerToken = 4

// EstimateString returns an upper-bound token estimate for s. Always
// rounds up, never returns less than 1 for non-empty input.
func EstimateString(s string) int {
	if len(s) == 0 {
		return 0
	}
	return (len(s) + charsPerToken - 1) / charsPerToken
}

// EstimateJSON returns an upper-bound token estimate for a raw JSON
// payload as it would be rendered to the caller.
func EstimateJSON(raw json.RawMessage) int {
	return EstimateString(string(raw))
}

// WillFit reports whether s fits within limit tokens.
func WillFit(s string, limit int) bool {
	return EstimateString(s) <= limit
}
