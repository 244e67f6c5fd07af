// Package live relays a browser voice connection to the realtime model and
// dispatches the model's tool calls.
package live

import (
	"context"

	"google.golang.org/genai"
)

// ConnectConfig describes one realtime model session.
type ConnectConfig struct {
	APIKey       string
	Instructions string
	Voice        string
	Tools        *genai.Tool
}

// Model opens realtime sessions.
type Model interface {
	Connect(ctx context.Context, cfg ConnectConfig) (Conn, error)
}

// Conn is an open realtime session. Receive is called from one goroutine;
// the Send methods may be called concurrently with it.
type Conn interface {
	SendAudio(pcm []byte) error
	SendText(text string) error
	SendToolResponses(results []ToolResult) error
	Receive() (*Event, error)
	Close() error
}

// ToolCall is a function call requested by the model.
type ToolCall struct {
	ID   string         `json:"id,omitempty"`
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

// ToolResult answers a ToolCall.
type ToolResult struct {
	ID     string `json:"id,omitempty"`
	Name   string `json:"name"`
	Output string `json:"output"`
}

// Usage is token accounting reported by the model.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Event is one decoded server message.
type Event struct {
	Audio            []byte
	InputTranscript  string
	OutputTranscript string
	ToolCalls        []ToolCall
	TurnComplete     bool
	Interrupted      bool
	Usage            *Usage
}
