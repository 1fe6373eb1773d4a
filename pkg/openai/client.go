// Package openai wraps the official openai-go SDK behind the narrow surface
// the extraction engine needs: plain text generation and JSON-schema
// constrained structured output via the Responses API.
package openai

import (
	"context"
	"encoding/json"

	oai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/responses"
	"github.com/rotisserie/eris"
)

// Client defines the OpenAI API operations used by the engine.
type Client interface {
	CreateText(ctx context.Context, req TextRequest) (*TextResponse, error)
	CreateStructured(ctx context.Context, req StructuredRequest) (json.RawMessage, error)
}

// TextRequest is a plain generation request.
type TextRequest struct {
	Model        string
	Instructions string
	Prompt       string
}

// TextResponse carries the generated text and its token accounting.
type TextResponse struct {
	Text  string
	Usage TokenUsage
}

// TokenUsage reports token consumption for a response.
type TokenUsage struct {
	InputTokens  int64
	OutputTokens int64
}

// StructuredRequest constrains output to a JSON schema.
type StructuredRequest struct {
	Model        string
	Instructions string
	Prompt       string
	SchemaName   string
	Schema       map[string]any
}

// sdkClient implements Client using openai-go.
type sdkClient struct {
	client oai.Client
}

// NewClient creates a new OpenAI client backed by the SDK.
func NewClient(apiKey string) Client {
	return &sdkClient{
		client: oai.NewClient(
			option.WithAPIKey(apiKey),
		),
	}
}

func (c *sdkClient) CreateText(ctx context.Context, req TextRequest) (*TextResponse, error) {
	params := responses.ResponseNewParams{
		Model: req.Model,
		Input: responses.ResponseNewParamsInputUnion{
			OfString: oai.String(req.Prompt),
		},
	}
	if req.Instructions != "" {
		params.Instructions = oai.String(req.Instructions)
	}

	resp, err := c.client.Responses.New(ctx, params)
	if err != nil {
		return nil, eris.Wrap(err, "openai: create response")
	}
	return &TextResponse{
		Text: resp.OutputText(),
		Usage: TokenUsage{
			InputTokens:  resp.Usage.InputTokens,
			OutputTokens: resp.Usage.OutputTokens,
		},
	}, nil
}

func (c *sdkClient) CreateStructured(ctx context.Context, req StructuredRequest) (json.RawMessage, error) {
	params := responses.ResponseNewParams{
		Model: req.Model,
		Input: responses.ResponseNewParamsInputUnion{
			OfString: oai.String(req.Prompt),
		},
		Text: responses.ResponseTextConfigParam{
			Format: responses.ResponseFormatTextConfigParamOfJSONSchema(req.SchemaName, req.Schema),
		},
	}
	if req.Instructions != "" {
		params.Instructions = oai.String(req.Instructions)
	}

	resp, err := c.client.Responses.New(ctx, params)
	if err != nil {
		return nil, eris.Wrap(err, "openai: create structured response")
	}

	out := resp.OutputText()
	if out == "" {
		return nil, eris.New("openai: empty structured response")
	}
	if !json.Valid([]byte(out)) {
		return nil, eris.New("openai: structured response is not valid JSON")
	}
	return json.RawMessage(out), nil
}
