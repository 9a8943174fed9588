package openai

import (
	"fmt"

	"github.com/poiesic/notebase/ai"
)

const insightResponseSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "content": {"type": "string"}
  },
  "required": ["content"],
  "additionalProperties": false
}`

const transformPromptTemplate = `%s

The user message holds the content to transform. Write the result in Markdown.

Output ONLY valid JSON which complies with the schema given below. Do not include any preamble,
explanation, greeting, or acknowledgment. Put the whole result in the "content" string:

%s`

// buildSystemPrompt wraps the transformation prompt with the output contract.
func buildSystemPrompt(req ai.TransformRequest) string {
	return fmt.Sprintf(transformPromptTemplate, req.SystemPrompt(), insightResponseSchema)
}
