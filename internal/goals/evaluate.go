package goals

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/template"

	"github.com/abhisek/companion/internal/learning"
	"github.com/abhisek/companion/internal/llm"
	"github.com/abhisek/companion/internal/store"
)

var (
	// ErrEvaluationUnavailable means the evaluator could not be reached or
	// did not answer in time.
	ErrEvaluationUnavailable = errors.New("goal evaluation unavailable")

	// ErrMalformedVerdict means the evaluator answered with something that
	// is not a usable verdict.
	ErrMalformedVerdict = errors.New("malformed goal verdict")
)

// Verdict is the evaluator's judgement.
type Verdict struct {
	IsComplete        bool     `json:"is_complete"`
	EstimatedProgress int      `json:"estimated_progress"`
	Reasoning         string   `json:"reasoning"`
	RemainingGaps     []string `json:"remaining_gaps"`
}

// Evaluation is a verdict together with its effect on the goal.
type Evaluation struct {
	Verdict
	GoalID        string `json:"goal_id"`
	Progress      int    `json:"progress_percentage"`
	Completed     bool   `json:"completed"`
	JustCompleted bool   `json:"just_completed"`
}

type verdictOutput struct {
	IsComplete        *bool    `json:"is_complete"`
	EstimatedProgress *int     `json:"estimated_progress"`
	Reasoning         *string  `json:"reasoning"`
	RemainingGaps     []string `json:"remaining_gaps"`
}

// EvaluateCompletion asks the language model whether the goal is met and
// applies the verdict. On any failure the stored goal is left as it was.
func (e *Engine) EvaluateCompletion(ctx context.Context, goalID string) (*Evaluation, error) {
	g, err := e.goals.Goal(ctx, goalID)
	if err != nil {
		return nil, fmt.Errorf("load goal: %w", err)
	}
	if e.provider == nil {
		return nil, fmt.Errorf("%w: no language model configured", ErrEvaluationUnavailable)
	}

	ev, err := e.Evidence(ctx, *g)
	if err != nil {
		return nil, err
	}
	v, err := e.judge(ctx, ev)
	if err != nil {
		e.metrics.CollaboratorError("llm")
		e.log.Warn("goal evaluation failed", "goal_id", g.ID, "error", err)
		return nil, err
	}

	out := &Evaluation{Verdict: *v, GoalID: g.ID, Progress: g.ProgressPercentage}
	if g.Status == learning.GoalCompleted {
		out.Completed = true
		return out, nil
	}

	now := e.Now()
	if v.IsComplete {
		won, err := e.complete(ctx, *g, 100, now)
		if err != nil {
			return nil, err
		}
		out.Progress = 100
		out.Completed = true
		out.JustCompleted = won
		return out, nil
	}

	progress := v.EstimatedProgress
	if e.cfg.MonotonicProgress && progress < g.ProgressPercentage {
		progress = g.ProgressPercentage
	}
	if progress != g.ProgressPercentage {
		err := e.goals.UpdateProgress(ctx, g.ID, progress, now)
		if errors.Is(err, store.ErrGoalCompleted) {
			if out.Progress, err = e.settled(ctx, g.ID); err != nil {
				return nil, err
			}
			out.Completed = true
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("store progress: %w", err)
		}
	}
	out.Progress = progress
	return out, nil
}

func (e *Engine) judge(ctx context.Context, ev Evidence) (*Verdict, error) {
	ctx = llm.WithPurpose(ctx, llm.PurposeGoalCompletion)
	if e.cfg.EvaluationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.EvaluationTimeout)
		defer cancel()
	}

	prompt, err := buildEvaluationMessage(ev)
	if err != nil {
		return nil, fmt.Errorf("build evaluation prompt: %w", err)
	}

	resp, err := e.provider.Generate(ctx, llm.Request{
		System:      evaluationSystemPrompt,
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: prompt}},
		Schema:      VerdictSchema,
		MaxTokens:   e.cfg.EvaluationMaxTokens,
		Temperature: e.cfg.EvaluationTemperature,
	})
	if err != nil {
		var invalid *llm.ErrInvalidResponse
		var truncated *llm.ErrMaxTokensExceeded
		if errors.As(err, &invalid) || errors.As(err, &truncated) {
			return nil, fmt.Errorf("%w: %w", ErrMalformedVerdict, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrEvaluationUnavailable, err)
	}
	return parseVerdict(resp.Content)
}

func parseVerdict(raw json.RawMessage) (*Verdict, error) {
	var out verdictOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedVerdict, err)
	}
	if out.IsComplete == nil || out.EstimatedProgress == nil {
		return nil, fmt.Errorf("%w: missing is_complete or estimated_progress", ErrMalformedVerdict)
	}
	if p := *out.EstimatedProgress; p < 0 || p > 100 {
		return nil, fmt.Errorf("%w: estimated_progress %d out of range", ErrMalformedVerdict, p)
	}
	v := &Verdict{
		IsComplete:        *out.IsComplete,
		EstimatedProgress: *out.EstimatedProgress,
		RemainingGaps:     out.RemainingGaps,
	}
	if out.Reasoning != nil {
		v.Reasoning = *out.Reasoning
	}
	return v, nil
}

const evaluationSystemPrompt = `You evaluate whether a student has completed a learning goal. Judge only from the evidence given. A goal is complete when the target outcome is demonstrated, not merely when sessions were attended. Keep reasoning to one or two sentences.`

var evaluationUserTemplate = template.Must(template.New("evaluation").Funcs(template.FuncMap{
	"json": toJSON,
	"join": strings.Join,
}).Parse(`Evaluate if a student has completed their learning goal:

Goal: {{.Goal.Title}}
Description: {{.Goal.Description}}
Target Outcome: {{.Goal.TargetOutcome}}
Subject: {{.Goal.Subject}}

Practice Statistics:
{{json .Practice}}

Recent Session Summaries:
{{join .Summaries "\n"}}

Learning Profile:
{{json .Profile}}

Milestones Completed: {{.MilestonesCompleted}}
`))

func buildEvaluationMessage(ev Evidence) (string, error) {
	var buf bytes.Buffer
	if err := evaluationUserTemplate.Execute(&buf, ev); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// toJSON renders v, with nil rendered as an empty object.
func toJSON(v any) (string, error) {
	switch t := v.(type) {
	case *PracticeStats:
		if t == nil {
			return "{}", nil
		}
	case *ProfileSummary:
		if t == nil {
			return "{}", nil
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
