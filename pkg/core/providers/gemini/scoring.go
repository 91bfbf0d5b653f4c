package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"github.com/vango-go/vai-interview/pkg/core/report"
)

const scoringInstruction = `You are a senior technical hiring panel. You receive a candidate profile and the full transcript of a voice interview.
Evaluate every question the interviewer asked. Lines marked "[No answer - candidate remained silent]" are unanswered questions and score 1.
Rate each question from 1 to 10 and give the overall rating from 1 to 10. Keep feedback concise and specific.`

// Scorer rates transcripts with a structured-JSON generate call. It
// implements report.Scorer.
type Scorer struct {
	client      *genai.Client
	model       string
	temperature float32
}

var _ report.Scorer = (*Scorer)(nil)

// NewScorer wraps an existing genai client.
func NewScorer(client *genai.Client, model string) *Scorer {
	if strings.TrimSpace(model) == "" {
		model = DefaultScoringModel
	}
	return &Scorer{client: client, model: model, temperature: 0.2}
}

func newGenAIClient(ctx context.Context, apiKey, baseURL string, httpClient *http.Client) (*genai.Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, &Error{Type: ErrAuthentication, Message: "api key is required"}
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      apiKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  httpClient,
		HTTPOptions: genai.HTTPOptions{BaseURL: baseURL},
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return client, nil
}

// Score sends one scoring request and decodes the fixed-schema response.
func (s *Scorer) Score(ctx context.Context, req report.ScoreRequest) (report.Evaluation, error) {
	resp, err := s.client.Models.GenerateContent(ctx, s.model,
		[]*genai.Content{genai.NewContentFromText(buildScoringPrompt(req), genai.RoleUser)},
		&genai.GenerateContentConfig{
			SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: scoringInstruction}}},
			Temperature:       genai.Ptr(s.temperature),
			ResponseMIMEType:  "application/json",
			ResponseSchema:    evaluationSchema(),
		})
	if err != nil {
		return report.Evaluation{}, fromAPIError(err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return report.Evaluation{}, &Error{Type: ErrProvider, Message: "empty scoring response"}
	}
	var eval report.Evaluation
	if err := json.Unmarshal([]byte(text), &eval); err != nil {
		return report.Evaluation{}, &Error{Type: ErrProvider, Message: "decode scoring response: " + err.Error()}
	}
	return eval.Normalize(), nil
}

func buildScoringPrompt(req report.ScoreRequest) string {
	c := req.Candidate
	language := strings.TrimSpace(c.Language)
	if language == "" {
		language = "English"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Candidate: %s\n", strings.TrimSpace(c.Name))
	fmt.Fprintf(&b, "Role: %s\n", strings.TrimSpace(c.Role))
	if exp := strings.TrimSpace(c.Experience); exp != "" {
		fmt.Fprintf(&b, "Experience: %s\n", exp)
	}
	if len(c.Skills) > 0 {
		fmt.Fprintf(&b, "Skills: %s\n", strings.Join(c.Skills, ", "))
	}
	if jc := strings.TrimSpace(c.JobContext); jc != "" {
		fmt.Fprintf(&b, "Job context:\n%s\n", jc)
	}
	fmt.Fprintf(&b, "Interview language: %s\n", language)
	b.WriteString("\nTranscript:\n")
	b.WriteString(req.Transcript)
	b.WriteString("\n")
	return b.String()
}

func evaluationSchema() *genai.Schema {
	rating := func(desc string) *genai.Schema {
		return &genai.Schema{
			Type:        genai.TypeInteger,
			Description: desc,
			Minimum:     genai.Ptr(1.0),
			Maximum:     genai.Ptr(10.0),
		}
	}
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"rating":   rating("Overall rating from 1 to 10."),
			"feedback": {Type: genai.TypeString, Description: "Overall feedback for the candidate."},
			"questions": {
				Type: genai.TypeArray,
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"question":               {Type: genai.TypeString},
						"candidateAnswerSummary": {Type: genai.TypeString},
						"rating":                 rating("Rating for this answer from 1 to 10."),
						"feedback":               {Type: genai.TypeString},
					},
					Required:         []string{"question", "candidateAnswerSummary", "rating", "feedback"},
					PropertyOrdering: []string{"question", "candidateAnswerSummary", "rating", "feedback"},
				},
			},
		},
		Required:         []string{"rating", "feedback", "questions"},
		PropertyOrdering: []string{"rating", "feedback", "questions"},
	}
}
