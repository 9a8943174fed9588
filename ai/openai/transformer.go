// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package openai

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/poiesic/notebase/ai"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

const transformAttempts = 3

// ErrEmptyInsight is returned when the model produced no usable text.
var ErrEmptyInsight = errors.New("model returned an empty insight")

// Transformer implements ai.Transformer using OpenAI-compatible chat APIs.
type Transformer struct {
	client      llms.Model
	temperature float64
	logger      *slog.Logger
}

// insight is the JSON envelope the model is asked to answer with.
type insight struct {
	Content string `json:"content"`
}

// newTransformer is an internal constructor that returns the concrete type.
func newTransformer(config *ai.Config) (*Transformer, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	client, err := openai.New(
		openai.WithBaseURL(config.TransformHost),
		openai.WithToken(config.APIToken),
		openai.WithModel(config.TransformModel),
	)
	if err != nil {
		return nil, err
	}

	return &Transformer{
		client:      client,
		temperature: config.Temperature,
		logger:      slog.Default().With("component", "openai-transformer"),
	}, nil
}

// NewTransformer creates a new transformer using the provided configuration.
//
// Returns ai.Transformer interface to enforce abstraction.
func NewTransformer(config *ai.Config) (ai.Transformer, error) {
	return newTransformer(config)
}

// Transform asks the model for an insight over req.Content.
// Malformed JSON answers are retried; a model error is returned at once.
func (t *Transformer) Transform(ctx context.Context, req ai.TransformRequest) (string, error) {
	content := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, buildSystemPrompt(req)),
		llms.TextParts(llms.ChatMessageTypeHuman, req.Content),
	}

	var lastErr error
	for attempt := range transformAttempts {
		response, err := t.client.GenerateContent(ctx, content,
			llms.WithTemperature(t.temperature), llms.WithJSONMode())
		if err != nil {
			t.logger.Error("failed to generate content", "attempt", attempt+1, "err", err)
			return "", err
		}
		if len(response.Choices) < 1 {
			return "", ErrEmptyInsight
		}

		text, err := parseInsight(response.Choices[0].Content)
		if err != nil {
			lastErr = err
			t.logger.Warn("error parsing transformation response", "attempt", attempt+1, "err", err)
			continue
		}
		t.logger.Debug("generated insight", "length", len(text))
		return text, nil
	}

	t.logger.Error("failed to parse transformation response after retries", "err", lastErr)
	return "", lastErr
}

// parseInsight extracts the insight text from a model answer.
func parseInsight(raw string) (string, error) {
	var out insight
	if err := json.Unmarshal([]byte(repairJSON(stripCodeFences(raw))), &out); err != nil {
		return "", err
	}
	if out.Content == "" {
		return "", ErrEmptyInsight
	}
	return out.Content, nil
}
