// SPDX-License-Identifier: AGPL-3.0-or-later

package agent

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/bartekus/toolforge/internal/model"
)

// Gemini authors installation scripts through the Gemini API.
type Gemini struct {
	modelName string
	client    *genai.Client
}

// NewGemini creates an authoring agent backed by the given model.
func NewGemini(ctx context.Context, apiKey, modelName string) (*Gemini, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}
	return &Gemini{modelName: modelName, client: client}, nil
}

// Generate asks the model for the script envelope. The call has no local
// timeout: the API client's own deadline contract bounds it, and the
// orchestrator's admission gate bounds how many are in flight.
func (g *Gemini) Generate(ctx context.Context, spec model.ToolSpec, docs Docs) (*Result, error) {
	contents := []*genai.Content{
		{Role: "user", Parts: []*genai.Part{{Text: userPrompt(spec)}}},
	}
	config := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: systemPrompt(docs)}}},
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.modelName, contents, config)
	if err != nil {
		return nil, fmt.Errorf("generating script for %s: %w", spec.ID(), err)
	}
	return ParseEnvelope(resp.Text())
}
