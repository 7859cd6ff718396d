package handler

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	"github.com/mulgadc/ec2-scheduler/scheduler/compute"
)

// Action is the requested lifecycle transition.
type Action string

const (
	ActionStart Action = "start"
	ActionStop  Action = "stop"
)

// Valid reports whether a is start or stop.
func (a Action) Valid() bool {
	return a == ActionStart || a == ActionStop
}

// Validation messages
const (
	ErrInvalidAction = `Invalid action. Must be "start" or "stop".`
	ErrNoInstanceIDs = "No instance IDs provided."
)

// ActionRequest is the invocation event.
type ActionRequest struct {
	Action      Action   `json:"action"`
	InstanceIDs []string `json:"instance_ids"`
}

// ActionResponse is the envelope returned to the caller. Body holds a
// JSON-encoded ResponseBody.
type ActionResponse struct {
	StatusCode int    `json:"statusCode"`
	Body       string `json:"body"`
}

// ResponseBody is the decoded form of ActionResponse.Body. Exactly one of
// the success fields or Error is populated.
type ResponseBody struct {
	Message           string                        `json:"message,omitempty"`
	StartingInstances []compute.InstanceStateRecord `json:"starting_instances,omitempty"`
	StoppingInstances []compute.InstanceStateRecord `json:"stopping_instances,omitempty"`
	Error             string                        `json:"error,omitempty"`
}

// Decode unmarshals the envelope body.
func (r ActionResponse) Decode() (ResponseBody, error) {
	var body ResponseBody
	if err := json.Unmarshal([]byte(r.Body), &body); err != nil {
		return body, fmt.Errorf("failed to decode response body: %w", err)
	}
	return body, nil
}

type startedBody struct {
	Message           string                        `json:"message"`
	StartingInstances []compute.InstanceStateRecord `json:"starting_instances"`
}

type stoppedBody struct {
	Message           string                        `json:"message"`
	StoppingInstances []compute.InstanceStateRecord `json:"stopping_instances"`
}

type errorBody struct {
	Error string `json:"error"`
}

// ParseRequest decodes a loosely structured event into an ActionRequest.
// Only the exact keys "action" and "instance_ids" are read; other spellings
// such as "Action" are ignored like any unknown key. Fields of the wrong
// type are left at their zero value so validation rejects them: a
// non-string action reads as missing, as does an instance_ids value that is
// not a list of strings.
func ParseRequest(payload []byte) ActionRequest {
	var raw map[string]json.RawMessage

	var req ActionRequest
	if err := json.Unmarshal(payload, &raw); err != nil {
		return req
	}

	var action string
	if v, ok := raw["action"]; ok && json.Unmarshal(v, &action) == nil {
		req.Action = Action(action)
	}

	var ids []string
	if v, ok := raw["instance_ids"]; ok && json.Unmarshal(v, &ids) == nil {
		req.InstanceIDs = ids
	}

	return req
}

// formatInstanceIDs renders ids the way Python prints a list of strings,
// e.g. ['i-111', 'i-222'] or ["a'b"].
func formatInstanceIDs(ids []string) string {
	quoted := make([]string, len(ids))
	for i, id := range ids {
		quoted[i] = quoteID(id)
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}

// quoteID renders s as Python's repr of a str.
func quoteID(s string) string {
	quote := '\''
	if strings.ContainsRune(s, '\'') && !strings.ContainsRune(s, '"') {
		quote = '"'
	}

	var b strings.Builder
	b.WriteRune(quote)
	for _, r := range s {
		switch {
		case r == '\\' || r == quote:
			b.WriteByte('\\')
			b.WriteRune(r)
		case r == '\n':
			b.WriteString(`\n`)
		case r == '\r':
			b.WriteString(`\r`)
		case r == '\t':
			b.WriteString(`\t`)
		case unicode.IsPrint(r):
			b.WriteRune(r)
		case r <= 0xff:
			fmt.Fprintf(&b, `\x%02x`, r)
		case r <= 0xffff:
			fmt.Fprintf(&b, `\u%04x`, r)
		default:
			fmt.Fprintf(&b, `\U%08x`, r)
		}
	}
	b.WriteRune(quote)
	return b.String()
}
