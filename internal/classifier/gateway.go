package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/spec-kit/maintenance-dispatch/internal/config"
)

// Result is the validated classification output.
type Result struct {
	Category string
	Urgency  int
}

// ClassificationError wraps any failure of the classification call: model
// transport errors, malformed output, or out-of-range urgency. The gateway
// performs no retries; retry policy belongs to the workflow controller.
type ClassificationError struct {
	Reason string
	Err    error
}

func (e *ClassificationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("classification failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("classification failed: %s", e.Reason)
}

func (e *ClassificationError) Unwrap() error {
	return e.Err
}

// Classifier classifies a free-text maintenance description into a category
// and an urgency level 1-5.
type Classifier interface {
	Classify(ctx context.Context, description string) (Result, error)
}

const promptTemplate = `You are a property maintenance triage assistant.
Classify the following maintenance request into a trade category (for example
plumbing, electrical, hvac, appliance, carpentry, pest control, general) and
an urgency level from 1 (cosmetic, can wait) to 5 (emergency, safety hazard).

Maintenance request:
%s

Respond with JSON only: {"category": "<category>", "urgency": <1-5>}`

// Gateway calls the Gemini API with a strict JSON response schema.
type Gateway struct {
	client  *genai.Client
	model   string
	timeout time.Duration
}

// NewGateway creates the gateway. The API key comes from the process
// environment via config.
func NewGateway(ctx context.Context, cfg config.ClassifierConfig) (*Gateway, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("classifier API key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &Gateway{
		client:  client,
		model:   cfg.Model,
		timeout: cfg.Timeout(),
	}, nil
}

// Classify runs one classification round trip.
func (g *Gateway) Classify(ctx context.Context, description string) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	prompt := fmt.Sprintf(promptTemplate, description)
	response, err := g.client.Models.GenerateContent(ctx,
		g.model,
		genai.Text(prompt),
		&genai.GenerateContentConfig{
			ResponseMIMEType: "application/json",
			ResponseSchema: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"category": {Type: genai.TypeString},
					"urgency":  {Type: genai.TypeInteger},
				},
				Required: []string{"category", "urgency"},
			},
		},
	)
	if err != nil {
		return Result{}, &ClassificationError{Reason: "model call failed", Err: err}
	}

	return ParseOutput(response.Text())
}

// ParseOutput validates the raw model text against the output contract.
func ParseOutput(raw string) (Result, error) {
	var payload struct {
		Category *string  `json:"category"`
		Urgency  *float64 `json:"urgency"`
	}
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return Result{}, &ClassificationError{Reason: "malformed response", Err: err}
	}
	if payload.Category == nil || payload.Urgency == nil {
		return Result{}, &ClassificationError{Reason: "malformed response"}
	}
	category := strings.ToLower(strings.TrimSpace(*payload.Category))
	if category == "" {
		return Result{}, &ClassificationError{Reason: "malformed response"}
	}
	urgency := *payload.Urgency
	if urgency != math.Trunc(urgency) || urgency < 1 || urgency > 5 {
		return Result{}, &ClassificationError{Reason: "urgency out of range"}
	}
	return Result{Category: category, Urgency: int(urgency)}, nil
}
