package assistant

// Run status values reported by the remote API.
const (
	StatusQueued         = "queued"
	StatusInProgress     = "in_progress"
	StatusRequiresAction = "requires_action"
	StatusCompleted      = "completed"
	StatusFailed         = "failed"
	StatusCancelled      = "cancelled"
	StatusCancelling     = "cancelling"
	StatusIncomplete     = "incomplete"
	StatusExpired        = "expired"
)

// RunStatus is a snapshot of a run's current state.
type RunStatus struct {
	ID             string          `json:"id"`
	Status         string          `json:"status"`
	RequiredAction *RequiredAction `json:"required_action,omitempty"`
}

// RequiredAction is the remote-signaled pause requesting tool outputs for
// one or more pending tool calls before the run can proceed.
type RequiredAction struct {
	Type              string `json:"type"`
	SubmitToolOutputs struct {
		ToolCalls []ToolCall `json:"tool_calls"`
	} `json:"submit_tool_outputs"`
}

// ToolCall is a single function-style invocation the remote assistant wants
// acknowledged.
type ToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

// ToolOutput acknowledges one pending tool call.
type ToolOutput struct {
	ToolCallID string `json:"tool_call_id"`
	Output     string `json:"output"`
}

// Message is one entry of a thread's message list.
type Message struct {
	ID      string         `json:"id"`
	Role    string         `json:"role"`
	Content []ContentBlock `json:"content"`
}

// ContentBlock is one content element of a message.
type ContentBlock struct {
	Type string `json:"type"`
	Text struct {
		Value string `json:"value"`
	} `json:"text"`
}

// FileObject is one entry of the remote file store listing.
type FileObject struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
}

// RunResult pairs the last captured required-action payload of a run with
// the assistant's final textual response. It is stored verbatim in the
// evaluation action log.
type RunResult struct {
	RequiredAction    *RequiredAction `json:"required_action"`
	AssistantResponse string          `json:"assistant_response"`
}
