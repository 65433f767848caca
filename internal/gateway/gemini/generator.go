// Package gemini runs gateway prompts against Google's Gemini models.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"zenbudget/internal/gateway"
)

var ErrEmptyAnswer = errors.New("model returned no candidates")

// Generator implements gateway.Generator with the genai client.
type Generator struct {
	client *genai.Client
	pro    string
	flash  string
}

func New(ctx context.Context, apiKey, proModel, flashModel string) (*Generator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is not set")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create Gemini client: %w", err)
	}
	return &Generator{client: client, pro: proModel, flash: flashModel}, nil
}

func (g *Generator) Close() error {
	return g.client.Close()
}

// ModelName returns the configured model for a tier.
func (g *Generator) ModelName(t gateway.ModelTier) string {
	if t == gateway.TierFlash {
		return g.flash
	}
	return g.pro
}

func (g *Generator) Generate(ctx context.Context, req gateway.GenerateRequest) (string, error) {
	model := g.client.GenerativeModel(g.ModelName(req.Tier))
	if req.SystemInstruction != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.SystemInstruction)}}
	}
	if req.Schema != nil {
		model.ResponseMIMEType = "application/json"
		model.ResponseSchema = toSchema(req.Schema)
	}

	resp, err := model.GenerateContent(ctx, genai.Text(req.Prompt))
	if err != nil {
		return "", fmt.Errorf("generate with %s: %w", g.ModelName(req.Tier), err)
	}
	return responseText(resp)
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", ErrEmptyAnswer
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			b.WriteString(string(txt))
		}
	}
	return b.String(), nil
}

func toSchema(s *gateway.Schema) *genai.Schema {
	if s == nil {
		return nil
	}
	out := &genai.Schema{
		Type:        toType(s.Type),
		Description: s.Description,
		Enum:        s.Enum,
		Required:    s.Required,
		Items:       toSchema(s.Items),
	}
	if len(s.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for name, p := range s.Properties {
			out.Properties[name] = toSchema(p)
		}
	}
	return out
}

func toType(t gateway.SchemaType) genai.Type {
	switch t {
	case gateway.TypeObject:
		return genai.TypeObject
	case gateway.TypeArray:
		return genai.TypeArray
	case gateway.TypeNumber:
		return genai.TypeNumber
	case gateway.TypeString:
		return genai.TypeString
	default:
		return genai.TypeUnspecified
	}
}
