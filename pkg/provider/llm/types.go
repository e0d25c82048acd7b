package llm

// Role identifies who authored a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message represents a single message in an LLM conversation history.
type Message struct {
	// Role is one of the Role constants.
	Role Role

	// Content is the text content of the message. Empty when the assistant
	// responds exclusively with tool calls.
	Content string

	// Name is an optional participant name.
	Name string

	// ToolCalls contains any tool invocations requested by the assistant.
	ToolCalls []ToolCall

	// ToolCallID is set when Role is RoleTool, identifying which tool call
	// this message responds to.
	ToolCallID string
}

// ToolCall represents a tool invocation requested by the model.
type ToolCall struct {
	// ID is the unique identifier for this tool call (provider-assigned).
	ID string

	// Name is the tool name.
	Name string

	// Arguments is the JSON-encoded arguments string.
	Arguments string
}

// ToolDefinition describes a tool offered to the model.
type ToolDefinition struct {
	// Name is the tool's unique identifier.
	Name string

	// Description explains what the tool does (included in model prompts).
	Description string

	// Parameters is the JSON Schema describing the tool's input parameters.
	Parameters map[string]any
}

// Usage holds token accounting returned by the backend. All counts are in
// the model's native token unit.
type Usage struct {
	// PromptTokens is the number of tokens consumed by the input.
	PromptTokens int

	// CompletionTokens is the number of tokens generated in the response.
	CompletionTokens int

	// TotalTokens is PromptTokens + CompletionTokens.
	TotalTokens int
}

// Add accumulates other into u.
func (u *Usage) Add(other Usage) {
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	u.TotalTokens += other.TotalTokens
}

// FinishReason indicates why generation stopped.
type FinishReason string

const (
	// FinishStop is a natural end of the reply.
	FinishStop FinishReason = "stop"

	// FinishLength means the MaxTokens cap was reached.
	FinishLength FinishReason = "length"

	// FinishToolCalls means the model wants tools executed.
	FinishToolCalls FinishReason = "tool_calls"

	// FinishContentFilter means the vendor suppressed the content.
	FinishContentFilter FinishReason = "content_filter"

	// FinishError means the stream broke before completing.
	FinishError FinishReason = "error"
)

// ParseFinishReason maps a vendor finish-reason string onto the shared enum.
// Unknown non-empty values map to FinishStop; the empty string stays empty
// so streaming callers can distinguish non-final chunks.
func ParseFinishReason(s string) FinishReason {
	switch FinishReason(s) {
	case FinishStop, FinishLength, FinishToolCalls, FinishContentFilter, FinishError:
		return FinishReason(s)
	case "":
		return ""
	default:
		return FinishStop
	}
}

// CompletionRequest carries everything the model needs to produce a
// response. At minimum Messages must be non-empty.
type CompletionRequest struct {
	// Messages is the ordered conversation history. The last message is
	// typically from the user role and drives the response.
	Messages []Message

	// Tools is the set of tool definitions offered to the model.
	Tools []ToolDefinition

	// Temperature controls output randomness in [0.0, 2.0]. Zero requests
	// the provider default.
	Temperature float64

	// MaxTokens caps the number of completion tokens. Zero means the
	// provider default.
	MaxTokens int
}

// CompletionResponse is returned by Complete.
type CompletionResponse struct {
	// Content is the full text of the assistant's reply.
	Content string

	// ToolCalls lists all tool invocations requested by the model. The
	// caller executes them and appends the results to the conversation.
	ToolCalls []ToolCall

	// Usage contains token accounting for this request/response pair.
	Usage Usage

	// FinishReason indicates why generation stopped.
	FinishReason FinishReason

	// Model is the backend model that produced the response.
	Model string
}

// Chunk is a single fragment emitted by a streaming completion. A chunk may
// carry text, a finish signal, assembled tool calls, or any combination.
type Chunk struct {
	// ContentDelta is the incremental text content of this chunk.
	ContentDelta string

	// FinishReason is set on the final chunk. A final chunk whose reason is
	// FinishToolCalls carries the fully assembled ToolCalls list.
	FinishReason FinishReason

	// ToolCalls contains fully assembled tool invocations. Implementations
	// accumulate indexed deltas internally and only populate this on the
	// final chunk.
	ToolCalls []ToolCall
}
