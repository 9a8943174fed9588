package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/poiesic/notebase/ai"
	"github.com/poiesic/notebase/core"
	"github.com/poiesic/notebase/queue"
	"github.com/poiesic/notebase/storage"
)

// EmbedResult is the stored result of an embedding job.
type EmbedResult struct {
	ID      string `json:"id"`
	Outcome string `json:"outcome"`
}

// TransformationResult is the stored result of a run_transformation job.
type TransformationResult struct {
	InsightID string `json:"insight_id"`
	Embedding string `json:"embedding"`
}

// RegisterCommands installs the embedding and transformation handlers.
// Embedding jobs run through direct. run_transformation writes the insight to
// repo and embeds it through active, the executor the application runs with.
// A nil transformer leaves run_transformation unregistered.
func RegisterCommands(registry *queue.Registry, direct *Direct, repo storage.Repository, transformer ai.Transformer, active Executor) error {
	if direct == nil || repo == nil {
		return ErrRepositoryRequired
	}
	if active == nil {
		active = direct
	}

	handlers := map[string]queue.Handler{
		CommandEmbedNote: func(ctx context.Context, raw json.RawMessage) (any, error) {
			var args embedNoteArgs
			if err := decodeArgs(raw, &args); err != nil {
				return nil, err
			}
			return runEmbed(ctx, args.NoteID, direct.EmbedNote)
		},
		CommandEmbedSource: func(ctx context.Context, raw json.RawMessage) (any, error) {
			var args embedSourceArgs
			if err := decodeArgs(raw, &args); err != nil {
				return nil, err
			}
			return runEmbed(ctx, args.SourceID, direct.EmbedSource)
		},
		CommandEmbedInsight: func(ctx context.Context, raw json.RawMessage) (any, error) {
			var args embedInsightArgs
			if err := decodeArgs(raw, &args); err != nil {
				return nil, err
			}
			return runEmbed(ctx, args.InsightID, direct.EmbedInsight)
		},
	}
	if transformer != nil {
		t := &transformationRunner{repo: repo, transformer: transformer, executor: active}
		handlers[CommandRunTransformation] = t.handle
	}

	for name, h := range handlers {
		if err := registry.Register(Namespace, name, h); err != nil {
			return err
		}
	}
	return nil
}

func decodeArgs(raw json.RawMessage, v any) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("invalid job arguments: %w", err)
	}
	return nil
}

func runEmbed(ctx context.Context, id string, embed func(context.Context, string) (string, error)) (any, error) {
	if id == "" {
		return nil, fmt.Errorf("invalid job arguments: missing id")
	}
	outcome, err := embed(ctx, id)
	if err != nil {
		return nil, err
	}
	if outcome == OutcomeFailed {
		return nil, fmt.Errorf("%w: %s", ErrEmbeddingFailed, id)
	}
	return EmbedResult{ID: id, Outcome: outcome}, nil
}

type transformationRunner struct {
	repo        storage.Repository
	transformer ai.Transformer
	executor    Executor
}

// handle applies a transformation to a source and stores the output as an insight.
func (t *transformationRunner) handle(ctx context.Context, raw json.RawMessage) (any, error) {
	var args runTransformationArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	if args.SourceID == "" || args.TransformationID == "" {
		return nil, fmt.Errorf("invalid job arguments: source_id and transformation_id are required")
	}

	source, err := t.repo.Get(ctx, core.TableSource, args.SourceID)
	if err != nil {
		return nil, err
	}
	content := source.String("full_text")
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("%w: %s", ErrNothingToTransform, args.SourceID)
	}
	transformation, err := t.repo.Get(ctx, core.TableTransformation, args.TransformationID)
	if err != nil {
		return nil, err
	}

	instructions := ""
	prompts, err := t.repo.SingletonGet(ctx, storage.SingletonNamespace+core.IDSeparator+core.TableDefaultPrompts)
	switch {
	case err == nil:
		instructions = prompts.String("transformation_instructions")
	case !errors.Is(err, storage.ErrNotFound):
		return nil, err
	}

	output, err := t.transformer.Transform(ctx, ai.TransformRequest{
		Prompt:       transformation.String("prompt"),
		Instructions: instructions,
		Content:      content,
	})
	if err != nil {
		return nil, fmt.Errorf("running transformation %s: %w", args.TransformationID, err)
	}

	insightType := transformation.String("title")
	if insightType == "" {
		insightType = transformation.String("name")
	}
	insight, err := t.repo.Create(ctx, core.TableSourceInsight, core.Record{
		"source":       args.SourceID,
		"insight_type": insightType,
		"content":      output,
	})
	if err != nil {
		return nil, err
	}

	handle, err := t.executor.EmbedInsight(ctx, insight.ID())
	if err != nil {
		return nil, err
	}
	return TransformationResult{InsightID: insight.ID(), Embedding: handle}, nil
}
