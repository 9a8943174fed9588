package ai

import "strings"

// TransformRequest is one transformation applied to one piece of content.
type TransformRequest struct {
	// Prompt is the transformation's own prompt, e.g. "Summarize the key points".
	Prompt string

	// Instructions are the shared instructions prepended to every transformation.
	// Optional.
	Instructions string

	// Content is the source text being transformed.
	Content string
}

// SystemPrompt joins the shared instructions and the transformation prompt.
func (r TransformRequest) SystemPrompt() string {
	parts := make([]string, 0, 2)
	if s := strings.TrimSpace(r.Instructions); s != "" {
		parts = append(parts, s)
	}
	if s := strings.TrimSpace(r.Prompt); s != "" {
		parts = append(parts, s)
	}
	return strings.Join(parts, "\n\n")
}
