package api

type ChatRequest struct {
	// a registry model id from clients; the upstream id once sent to a provider
	Model    string        `json:"model" binding:"required"`
	Messages []ChatMessage `json:"messages" binding:"required,min=1,dive"`

	// number of independent completions to sample
	N           int     `json:"n,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
	TopP        float64 `json:"top_p,omitempty"`
	Seed        int     `json:"seed,omitempty"`
	Stream      bool    `json:"stream,omitempty"`
}

type ChatMessage struct {
	Role    string `json:"role" binding:"required,oneof=user assistant system"`
	Content string `json:"content"`
}

type ChatResponse struct {
	ID      string         `json:"id"`
	Object  string         `json:"object"`
	Created int64          `json:"created"`
	Model   string         `json:"model"`
	Choices []Choice       `json:"choices"`
	Usage   *ResponseUsage `json:"usage,omitempty"`

	Error *ErrorResponse `json:"error,omitempty"`
}

// Texts returns the message content of every choice, in choice order.
func (r *ChatResponse) Texts() []string {
	out := make([]string, 0, len(r.Choices))
	for _, c := range r.Choices {
		if c.Message != nil {
			out = append(out, c.Message.Content)
		}
	}
	return out
}

type Choice struct {
	Index        int          `json:"index"`
	Message      *ChatMessage `json:"message,omitempty"`
	FinishReason string       `json:"finish_reason"`
}

type ResponseUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type ErrorResponse struct {
	Code     interface{}            `json:"code,omitempty"`
	Message  string                 `json:"message"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

func (e *ErrorResponse) Error() string {
	return e.Message
}

type Role string

const (
	User      Role = "user"
	Assistant Role = "assistant"
	System    Role = "system"
	Anonymous Role = "anonymous"
)
