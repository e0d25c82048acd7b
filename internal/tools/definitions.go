package tools

import (
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/MrWong99/vocepta/pkg/provider/llm"
)

// Tool names as exposed to the model.
const (
	ToolCreateCallRecord   = "create_call_record"
	ToolUpdateCallRecord   = "update_call_record"
	ToolCreateCallbackTask = "create_callback_task"
	ToolTransferCall       = "transfer_call"
	ToolSendNotification   = "send_notification"
)

// Argument schemas. Enumerated string fields (language, customer_type,
// priority, status, notification_type) are deliberately left as plain
// strings here and parsed case-insensitively by the handlers, which produce
// friendlier corrections for the model than a schema enum violation.
const (
	createCallRecordSchema = `{
		"type": "object",
		"properties": {
			"from_number": {
				"type": "string",
				"description": "Caller phone number, digits with optional leading +, spaces or dashes."
			},
			"language": {
				"type": "string",
				"description": "Caller language: en or es."
			},
			"customer_type": {
				"type": "string",
				"description": "Caller relationship: NEW, EXISTING or UNKNOWN."
			},
			"intent": {
				"type": "string",
				"minLength": 1,
				"maxLength": 1000,
				"description": "Short statement of why the caller is calling. Never include sensitive identifiers."
			},
			"status": {
				"type": "string",
				"description": "Initial call status. Defaults to INIT."
			}
		},
		"required": ["from_number"],
		"additionalProperties": false
	}`

	updateCallRecordSchema = `{
		"type": "object",
		"properties": {
			"call_id": {
				"type": "string",
				"description": "Identifier of the call record to update."
			},
			"language": {
				"type": "string",
				"description": "Caller language: en or es."
			},
			"customer_type": {
				"type": "string",
				"description": "Caller relationship: NEW, EXISTING or UNKNOWN."
			},
			"intent": {
				"type": "string",
				"maxLength": 1000,
				"description": "Updated intent. Never include sensitive identifiers."
			},
			"status": {
				"type": "string",
				"description": "New call status."
			},
			"summary": {
				"type": "string",
				"description": "Wrap-up summary of the call. Never include sensitive identifiers."
			}
		},
		"required": ["call_id"],
		"additionalProperties": false
	}`

	createCallbackTaskSchema = `{
		"type": "object",
		"properties": {
			"call_id": {
				"type": "string",
				"description": "Identifier of the call this callback belongs to."
			},
			"callback_number": {
				"type": "string",
				"description": "Phone number staff should dial back."
			},
			"priority": {
				"type": "string",
				"description": "Task priority: LOW, NORMAL, HIGH or URGENT. Defaults to NORMAL."
			},
			"name": {
				"type": "string",
				"description": "Caller name when known."
			},
			"best_time_window": {
				"type": "string",
				"description": "When the caller prefers to be called back, free text."
			},
			"notes": {
				"type": "string",
				"description": "Extra context for staff. Never include sensitive identifiers."
			}
		},
		"required": ["call_id", "callback_number"],
		"additionalProperties": false
	}`

	transferCallSchema = `{
		"type": "object",
		"properties": {
			"call_id": {
				"type": "string",
				"description": "Identifier of the live call to transfer."
			},
			"target_number": {
				"type": "string",
				"description": "Phone number to transfer to. Provide this or queue_name, not both."
			},
			"queue_name": {
				"type": "string",
				"description": "Named staff queue to transfer to. Provide this or target_number, not both."
			},
			"reason": {
				"type": "string",
				"minLength": 1,
				"description": "Why the call is being transferred."
			}
		},
		"required": ["call_id", "reason"],
		"additionalProperties": false
	}`

	sendNotificationSchema = `{
		"type": "object",
		"properties": {
			"call_id": {
				"type": "string",
				"description": "Identifier of the call this notification relates to."
			},
			"notification_type": {
				"type": "string",
				"description": "Delivery channel: sms or email."
			},
			"recipient": {
				"type": "string",
				"description": "Phone number (sms) or email address (email) to notify."
			},
			"message": {
				"type": "string",
				"minLength": 1,
				"description": "Message text. Never include sensitive identifiers."
			}
		},
		"required": ["call_id", "notification_type", "recipient", "message"],
		"additionalProperties": false
	}`
)

// toolEntry pairs the model-facing definition with its compiled schema.
type toolEntry struct {
	def      llm.ToolDefinition
	compiled *jsonschema.Schema
}

// toolOrder fixes the order Definitions returns, matching the flow a call
// moves through.
var toolOrder = []string{
	ToolCreateCallRecord,
	ToolUpdateCallRecord,
	ToolCreateCallbackTask,
	ToolTransferCall,
	ToolSendNotification,
}

var registry = mustBuildRegistry()

func mustBuildRegistry() map[string]toolEntry {
	specs := []struct {
		name        string
		description string
		schema      string
	}{
		{
			name: ToolCreateCallRecord,
			description: "Create the persistent record for the current call. " +
				"Call this once near the start of the conversation.",
			schema: createCallRecordSchema,
		},
		{
			name: ToolUpdateCallRecord,
			description: "Update fields of an existing call record, such as the caller's " +
				"language, customer type, intent, status or a wrap-up summary.",
			schema: updateCallRecordSchema,
		},
		{
			name: ToolCreateCallbackTask,
			description: "File a callback task so a staff member phones the caller back. " +
				"Use after confirming the callback number and preferred time with the caller.",
			schema: createCallbackTaskSchema,
		},
		{
			name: ToolTransferCall,
			description: "Transfer the live call to a staff phone number or queue. " +
				"Only use when the caller explicitly needs a human right now.",
			schema: transferCallSchema,
		},
		{
			name: ToolSendNotification,
			description: "Send a one-off SMS or email to a staff recipient about this call.",
			schema: sendNotificationSchema,
		},
	}

	out := make(map[string]toolEntry, len(specs))
	for _, s := range specs {
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(s.schema))
		if err != nil {
			panic(fmt.Sprintf("tools: parse %s schema: %v", s.name, err))
		}
		c := jsonschema.NewCompiler()
		url := s.name + ".json"
		if err := c.AddResource(url, doc); err != nil {
			panic(fmt.Sprintf("tools: add %s schema: %v", s.name, err))
		}
		compiled, err := c.Compile(url)
		if err != nil {
			panic(fmt.Sprintf("tools: compile %s schema: %v", s.name, err))
		}
		params, _ := doc.(map[string]any)
		out[s.name] = toolEntry{
			def: llm.ToolDefinition{
				Name:        s.name,
				Description: s.description,
				Parameters:  params,
			},
			compiled: compiled,
		}
	}
	return out
}

// Definitions returns the tool definitions offered to the model, in a
// stable order.
func Definitions() []llm.ToolDefinition {
	defs := make([]llm.ToolDefinition, 0, len(toolOrder))
	for _, name := range toolOrder {
		defs = append(defs, registry[name].def)
	}
	return defs
}
