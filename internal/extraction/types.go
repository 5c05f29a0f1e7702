// Package extraction extracts structured metadata from item content using an
// external language model, with schema validation and bounded retries.
package extraction

import (
	"encoding/json"
	"strings"
)

// requiredFields are the keys every valid extraction payload must carry,
// present and non-null.
var requiredFields = []string{
	"model_name",
	"primary_task",
	"key_contribution",
	"datasets_used",
	"evaluation_metrics",
	"one_sentence_summary",
}

// Record is a fully populated extraction result.
type Record struct {
	ModelName          string   `json:"model_name"`
	PrimaryTask        string   `json:"primary_task"`
	KeyContribution    string   `json:"key_contribution"`
	DatasetsUsed       []string `json:"datasets_used"`
	EvaluationMetrics  []string `json:"evaluation_metrics"`
	OneSentenceSummary string   `json:"one_sentence_summary"`
}

// ErrorMarker records a terminal extraction failure.
type ErrorMarker struct {
	// Attempts is the number of attempts made before giving up.
	Attempts int `json:"attempts"`

	// LastCause is a human-readable description of the final failure.
	LastCause string `json:"last_cause"`
}

// Result is the outcome of one extraction call: either a complete Record or
// an ErrorMarker, never both and never neither. It is a normal return value;
// terminal failure is not an error.
type Result struct {
	Record *Record
	Marker *ErrorMarker
}

// OK reports whether the extraction succeeded.
func (r Result) OK() bool {
	return r.Record != nil
}

// success wraps a record into a Result.
func success(rec *Record) Result {
	return Result{Record: rec}
}

// failure wraps a terminal failure into a Result.
func failure(attempts int, cause string) Result {
	return Result{Marker: &ErrorMarker{Attempts: attempts, LastCause: cause}}
}

// storedError is the persisted shape of a terminal failure. It keeps the
// "error" key so validity checks on stored info stay a single rule.
type storedError struct {
	Error string `json:"error"`
}

// MarshalInfo serializes a Result for persistence in an item's
// extracted_info field.
func MarshalInfo(r Result) string {
	if r.OK() {
		b, err := json.Marshal(r.Record)
		if err != nil {
			return ""
		}
		return string(b)
	}
	cause := "unknown extraction error"
	if r.Marker != nil {
		cause = r.Marker.LastCause
	}
	b, err := json.Marshal(storedError{Error: cause})
	if err != nil {
		return ""
	}
	return string(b)
}

// ValidInfo reports whether a persisted extracted_info string holds a
// schema-valid record. Absent, empty, error-marker and partial payloads are
// all invalid, which makes them eligible for backfill.
func ValidInfo(raw string) bool {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "{}" {
		return false
	}
	var payload map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return false
	}
	if _, hasErr := payload["error"]; hasErr {
		return false
	}
	return validPayload(payload)
}

// validPayload checks that every required field is present and non-null.
func validPayload(payload map[string]json.RawMessage) bool {
	for _, key := range requiredFields {
		v, ok := payload[key]
		if !ok || string(v) == "null" {
			return false
		}
	}
	return true
}

// parseRecord parses a raw JSON payload into a Record, enforcing the
// required-field invariant. Partial records are rejected, not truncated.
func parseRecord(raw []byte) (*Record, error) {
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, err
	}
	if !validPayload(payload) {
		return nil, errMissingFields
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}
