// Package mock provides test double implementations of AI service interfaces.
//
// The mocks run without any model server and behave deterministically:
//
//   - MockEmbedder: unit vectors derived from an FNV hash of the text
//   - MockTransformer: echoes the prompt and the first line of content
//   - MockProvider: aggregates both
//
// Behavior can be replaced through the exported function fields:
//
//	emb := mock.NewMockEmbedder()
//	emb.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
//	    return nil, errors.New("offline")
//	}
//	count := emb.CallCount()
package mock
