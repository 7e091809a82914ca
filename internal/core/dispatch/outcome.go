package dispatch

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/argus-beta/fincall/internal/core/tools"
)

// Outcome is the result of one tool call: a success payload, or a
// failure record when Error is set.
type Outcome struct {
	ToolName string
	Payload  any
	Error    string
}

// Failed reports whether the call produced a failure record.
func (o Outcome) Failed() bool { return o.Error != "" }

type failureRecord struct {
	ToolName string `json:"tool_name"`
	Error    string `json:"error"`
}

// MarshalJSON encodes a success as its bare payload and a failure as
// {"tool_name": ..., "error": ...}.
func (o Outcome) MarshalJSON() ([]byte, error) {
	if o.Failed() {
		return json.Marshal(failureRecord{ToolName: o.ToolName, Error: o.Error})
	}
	return json.Marshal(o.Payload)
}

// fallbackMessage stands in for errors whose text is empty, so that a
// failure always carries a non-empty Error.
const fallbackMessage = "invocation failed"

func failure(name string, err error) Outcome {
	msg := ""
	if err != nil {
		msg = strings.TrimSpace(errorMessage(err))
	}
	if msg == "" {
		msg = fallbackMessage
	}
	return Outcome{ToolName: name, Error: msg}
}

// errorMessage keeps the handler's own wording for invocation failures.
func errorMessage(err error) string {
	var inv *tools.InvocationError
	if errors.As(err, &inv) {
		return inv.Message()
	}
	var unknown *tools.UnknownToolError
	if errors.As(err, &unknown) {
		return fmt.Sprintf("unknown tool %q", unknown.Name)
	}
	return err.Error()
}
