package gateway

import "context"

// ModelTier selects between the reasoning model and the fast model.
type ModelTier int

const (
	TierPro ModelTier = iota
	TierFlash
)

func (t ModelTier) String() string {
	if t == TierFlash {
		return "flash"
	}
	return "pro"
}

type SchemaType string

const (
	TypeObject SchemaType = "object"
	TypeArray  SchemaType = "array"
	TypeString SchemaType = "string"
	TypeNumber SchemaType = "number"
)

// Schema describes the JSON shape a structured answer must have.
type Schema struct {
	Type        SchemaType
	Description string
	Enum        []string
	Items       *Schema
	Properties  map[string]*Schema
	Required    []string
}

// GenerateRequest is one prompt for a language model. A non-nil Schema asks
// for a JSON answer of that shape.
type GenerateRequest struct {
	Tier              ModelTier
	Prompt            string
	SystemInstruction string
	Schema            *Schema
}

// Generator produces the text answer of a model for a prompt.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}
