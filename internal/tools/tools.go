// Package tools executes the function calls the language model emits while
// handling a call: creating and updating call records, filing callback
// tasks, transferring the live call and sending staff notifications.
//
// Every call goes through [Dispatcher.Dispatch], which validates the raw
// JSON arguments against the tool's schema, runs the handler, and returns a
// structured [Result]. Free-text fields that end up in the database pass a
// sensitive-data check first, so identifiers like social security or card
// numbers never reach storage even when a caller volunteers them.
package tools

import (
	"fmt"
	"sort"
	"strings"
)

// Status classifies a handler outcome.
type Status string

const (
	// StatusSuccess means the operation completed fully.
	StatusSuccess Status = "SUCCESS"

	// StatusFailure means nothing was changed.
	StatusFailure Status = "FAILURE"

	// StatusPartial means the primary effect happened but a follow-up step
	// did not, e.g. a callback task exists but its notifications failed.
	StatusPartial Status = "PARTIAL"
)

// Result is the structured outcome of one dispatched tool call.
type Result struct {
	// Status classifies the outcome.
	Status Status

	// Data carries handler-specific result fields, e.g. the created ids.
	Data map[string]any

	// Error describes what went wrong for FAILURE and PARTIAL results.
	Error string

	// ToolName is the dispatched tool.
	ToolName string
}

// LLMResponse renders the result as a short line fed back to the model as
// the tool message content.
func (r Result) LLMResponse() string {
	switch r.Status {
	case StatusSuccess:
		return fmt.Sprintf("%s: success%s", r.ToolName, dataSuffix(r.Data))
	case StatusPartial:
		return fmt.Sprintf("%s: partial%s: %s", r.ToolName, dataSuffix(r.Data), r.Error)
	default:
		return fmt.Sprintf("%s: failure: %s", r.ToolName, r.Error)
	}
}

// dataSuffix renders data as " (k=v, ...)" with sorted keys.
func dataSuffix(data map[string]any) string {
	if len(data) == 0 {
		return ""
	}
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, data[k]))
	}
	return " (" + strings.Join(parts, ", ") + ")"
}

// sensitiveTerms is the denylist applied to free-text fields bound for
// storage or outbound messages. Matching is case-insensitive substring.
var sensitiveTerms = []string{
	"ssn",
	"social_security",
	"dob",
	"date_of_birth",
	"birth_date",
	"birthdate",
	"credit_card",
	"card_number",
	"cvv",
	"expiry",
	"payment",
	"bank_account",
	"routing_number",
	"pin",
	"password",
}

// ContainsSensitive reports the first denylisted term found in value, if
// any. The transcript layer uses it to reject turns carrying identifiers.
func ContainsSensitive(value string) (string, bool) {
	v := strings.ToLower(value)
	for _, term := range sensitiveTerms {
		if strings.Contains(v, term) {
			return term, true
		}
	}
	return "", false
}

// checkSensitive validates one named field against the denylist.
func checkSensitive(field, value string) error {
	if term, found := ContainsSensitive(value); found {
		return fmt.Errorf("field %s contains sensitive data (%s) and was rejected", field, term)
	}
	return nil
}
