package live

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

const (
	inputAudioMIME = "audio/pcm;rate=16000"
	defaultModel   = "gemini-2.0-flash-exp"
)

var errNoAPIKey = errors.New("live: api key is required")

// GenAIModel connects to the Gemini Live API. A client is created per
// session because each session may run on its own user key.
type GenAIModel struct {
	model       string
	temperature float32
}

// NewGenAIModel creates the adapter.
func NewGenAIModel(model string, temperature float32) *GenAIModel {
	if model == "" {
		model = defaultModel
	}
	return &GenAIModel{model: model, temperature: temperature}
}

// Connect implements Model.
func (m *GenAIModel) Connect(ctx context.Context, cfg ConnectConfig) (Conn, error) {
	if cfg.APIKey == "" {
		return nil, errNoAPIKey
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	lc := &genai.LiveConnectConfig{
		ResponseModalities: []genai.Modality{genai.ModalityAudio},
		Temperature:        genai.Ptr(m.temperature),
		SystemInstruction:  genai.NewContentFromText(cfg.Instructions, genai.RoleUser),
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: cfg.Voice},
			},
		},
		InputAudioTranscription:  &genai.AudioTranscriptionConfig{},
		OutputAudioTranscription: &genai.AudioTranscriptionConfig{},
	}
	if cfg.Tools != nil && len(cfg.Tools.FunctionDeclarations) > 0 {
		lc.Tools = []*genai.Tool{cfg.Tools}
	}

	session, err := client.Live.Connect(ctx, m.model, lc)
	if err != nil {
		return nil, fmt.Errorf("connect live model %s: %w", m.model, err)
	}
	return &genaiConn{session: session}, nil
}

type genaiConn struct {
	session *genai.Session
}

func (c *genaiConn) SendAudio(pcm []byte) error {
	return c.session.SendRealtimeInput(genai.LiveRealtimeInput{
		Audio: &genai.Blob{Data: pcm, MIMEType: inputAudioMIME},
	})
}

func (c *genaiConn) SendText(text string) error {
	return c.session.SendClientContent(genai.LiveClientContentInput{
		Turns:        []*genai.Content{genai.NewContentFromText(text, genai.RoleUser)},
		TurnComplete: genai.Ptr(true),
	})
}

func (c *genaiConn) SendToolResponses(results []ToolResult) error {
	responses := make([]*genai.FunctionResponse, 0, len(results))
	for _, r := range results {
		responses = append(responses, &genai.FunctionResponse{
			ID:       r.ID,
			Name:     r.Name,
			Response: map[string]any{"output": r.Output},
		})
	}
	return c.session.SendToolResponse(genai.LiveToolResponseInput{FunctionResponses: responses})
}

func (c *genaiConn) Receive() (*Event, error) {
	msg, err := c.session.Receive()
	if err != nil {
		return nil, err
	}
	return eventFromMessage(msg), nil
}

func (c *genaiConn) Close() error {
	return c.session.Close()
}

func eventFromMessage(msg *genai.LiveServerMessage) *Event {
	ev := &Event{}
	if sc := msg.ServerContent; sc != nil {
		if sc.ModelTurn != nil {
			for _, part := range sc.ModelTurn.Parts {
				if part == nil || part.InlineData == nil {
					continue
				}
				if strings.HasPrefix(part.InlineData.MIMEType, "audio/") {
					ev.Audio = append(ev.Audio, part.InlineData.Data...)
				}
			}
		}
		if sc.InputTranscription != nil {
			ev.InputTranscript = sc.InputTranscription.Text
		}
		if sc.OutputTranscription != nil {
			ev.OutputTranscript = sc.OutputTranscription.Text
		}
		ev.TurnComplete = sc.TurnComplete
		ev.Interrupted = sc.Interrupted
	}
	if tc := msg.ToolCall; tc != nil {
		for _, fc := range tc.FunctionCalls {
			if fc == nil {
				continue
			}
			ev.ToolCalls = append(ev.ToolCalls, ToolCall{ID: fc.ID, Name: fc.Name, Args: fc.Args})
		}
	}
	if um := msg.UsageMetadata; um != nil {
		ev.Usage = &Usage{
			InputTokens:  int(um.PromptTokenCount),
			OutputTokens: int(um.ResponseTokenCount),
		}
	}
	return ev
}
