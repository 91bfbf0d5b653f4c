package gemini

import (
	"fmt"
	"sort"
	"strings"

	"github.com/vango-go/vai-interview/pkg/core/live"
)

// clientMessage is one frame sent to the Live API. Exactly one field is set.
type clientMessage struct {
	Setup         *setupMessage  `json:"setup,omitempty"`
	RealtimeInput *realtimeInput `json:"realtimeInput,omitempty"`
	ClientContent *clientContent `json:"clientContent,omitempty"`
	ToolResponse  *toolResponse  `json:"toolResponse,omitempty"`
}

type setupMessage struct {
	Model                    string            `json:"model"`
	GenerationConfig         *generationConfig `json:"generationConfig,omitempty"`
	SystemInstruction        *content          `json:"systemInstruction,omitempty"`
	Tools                    []tool            `json:"tools,omitempty"`
	InputAudioTranscription  *struct{}         `json:"inputAudioTranscription,omitempty"`
	OutputAudioTranscription *struct{}         `json:"outputAudioTranscription,omitempty"`
}

type generationConfig struct {
	ResponseModalities []string      `json:"responseModalities,omitempty"`
	SpeechConfig       *speechConfig `json:"speechConfig,omitempty"`
}

type speechConfig struct {
	VoiceConfig voiceConfig `json:"voiceConfig"`
}

type voiceConfig struct {
	PrebuiltVoiceConfig prebuiltVoiceConfig `json:"prebuiltVoiceConfig"`
}

type prebuiltVoiceConfig struct {
	VoiceName string `json:"voiceName"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text       string `json:"text,omitempty"`
	Thought    bool   `json:"thought,omitempty"`
	InlineData *blob  `json:"inlineData,omitempty"`
}

type blob struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type tool struct {
	FunctionDeclarations []functionDeclaration `json:"functionDeclarations"`
}

type functionDeclaration struct {
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Parameters  *schema `json:"parameters,omitempty"`
}

type schema struct {
	Type        string             `json:"type"`
	Description string             `json:"description,omitempty"`
	Properties  map[string]*schema `json:"properties,omitempty"`
	Required    []string           `json:"required,omitempty"`
}

type realtimeInput struct {
	Audio *blob `json:"audio,omitempty"`
}

type clientContent struct {
	Turns        []content `json:"turns"`
	TurnComplete bool      `json:"turnComplete"`
}

type toolResponse struct {
	FunctionResponses []functionResponse `json:"functionResponses"`
}

type functionResponse struct {
	ID       string         `json:"id,omitempty"`
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

// buildSetup renders the opening setup frame for cfg.
func buildSetup(model, voice string, cfg live.DuplexConfig) clientMessage {
	setup := &setupMessage{
		Model: modelResource(model),
		GenerationConfig: &generationConfig{
			ResponseModalities: []string{"AUDIO"},
		},
	}
	if v := strings.TrimSpace(cfg.Voice); v != "" {
		voice = v
	}
	if voice != "" {
		setup.GenerationConfig.SpeechConfig = &speechConfig{
			VoiceConfig: voiceConfig{PrebuiltVoiceConfig: prebuiltVoiceConfig{VoiceName: voice}},
		}
	}
	if strings.TrimSpace(cfg.Instructions) != "" {
		setup.SystemInstruction = &content{Parts: []part{{Text: cfg.Instructions}}}
	}
	if len(cfg.Tools) > 0 {
		decls := make([]functionDeclaration, 0, len(cfg.Tools))
		for _, t := range cfg.Tools {
			decls = append(decls, buildFunctionDeclaration(t))
		}
		setup.Tools = []tool{{FunctionDeclarations: decls}}
	}
	if cfg.TranscribeInput {
		setup.InputAudioTranscription = &struct{}{}
	}
	if cfg.TranscribeOutput {
		setup.OutputAudioTranscription = &struct{}{}
	}
	return clientMessage{Setup: setup}
}

func buildFunctionDeclaration(t live.ToolDeclaration) functionDeclaration {
	decl := functionDeclaration{Name: t.Name, Description: t.Description}
	if len(t.Params) == 0 {
		return decl
	}
	props := make(map[string]*schema, len(t.Params))
	for name, desc := range t.Params {
		props[name] = &schema{Type: "STRING", Description: desc}
	}
	required := append([]string(nil), t.Required...)
	sort.Strings(required)
	decl.Parameters = &schema{Type: "OBJECT", Properties: props, Required: required}
	return decl
}

func audioMessage(chunk, mimeType string) clientMessage {
	return clientMessage{RealtimeInput: &realtimeInput{Audio: &blob{MimeType: mimeType, Data: chunk}}}
}

func textMessage(text string) clientMessage {
	return clientMessage{ClientContent: &clientContent{
		Turns:        []content{{Role: "user", Parts: []part{{Text: text}}}},
		TurnComplete: true,
	}}
}

func toolResponseMessage(responses []live.ToolResponse) clientMessage {
	out := make([]functionResponse, 0, len(responses))
	for _, r := range responses {
		resp := r.Response
		if resp == nil {
			resp = map[string]any{}
		}
		out = append(out, functionResponse{ID: r.ID, Name: r.Name, Response: resp})
	}
	return clientMessage{ToolResponse: &toolResponse{FunctionResponses: out}}
}

func modelResource(model string) string {
	model = strings.TrimSpace(model)
	if strings.HasPrefix(model, "models/") {
		return model
	}
	return "models/" + model
}

func audioMIMEType(sampleRate int) string {
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	return fmt.Sprintf("audio/pcm;rate=%d", sampleRate)
}
