package goals

import "github.com/abhisek/companion/internal/llm"

// VerdictSchema defines the JSON schema for goal completion verdicts.
var VerdictSchema = &llm.Schema{
	Name:        "goal-completion",
	Description: "Judgement of whether a student has met a learning goal",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"is_complete": map[string]any{
				"type":        "boolean",
				"description": "True when the evidence shows the target outcome has been reached",
			},
			"estimated_progress": map[string]any{
				"type":        "integer",
				"minimum":     0,
				"maximum":     100,
				"description": "Estimated progress toward the goal, 0-100",
			},
			"reasoning": map[string]any{
				"type":        "string",
				"description": "Brief explanation of the judgement",
			},
			"remaining_gaps": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "string"},
				"description": "Areas the student still needs to work on",
			},
		},
		"required":             []any{"is_complete", "estimated_progress", "reasoning", "remaining_gaps"},
		"additionalProperties": false,
	},
}
