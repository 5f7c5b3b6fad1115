package engine

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/abhisek/companion/internal/nudge"
)

// SweepConfig sizes the batch engagement run.
type SweepConfig struct {
	Workers  int `yaml:"workers"`
	PageSize int `yaml:"page_size"`

	// A goal completed between FollowUpAfter and FollowUpWithin ago, with
	// no goal created since, earns a follow-up nudge.
	FollowUpAfter  time.Duration `yaml:"follow_up_after"`
	FollowUpWithin time.Duration `yaml:"follow_up_within"`
}

// DefaultSweepConfig returns the production sizing.
func DefaultSweepConfig() SweepConfig {
	return SweepConfig{
		Workers:        8,
		PageSize:       200,
		FollowUpAfter:  3 * 24 * time.Hour,
		FollowUpWithin: 7 * 24 * time.Hour,
	}
}

// Validate checks the sizing.
func (c SweepConfig) Validate() error {
	if c.Workers < 1 || c.PageSize < 1 {
		return fmt.Errorf("sweep: workers and page_size must be positive")
	}
	if c.FollowUpAfter <= 0 || c.FollowUpWithin <= c.FollowUpAfter {
		return fmt.Errorf("sweep: follow-up window must satisfy 0 < after < within")
	}
	return nil
}

// SweepReport summarises one sweep.
type SweepReport struct {
	Evaluated  int           `json:"evaluated"`
	Sent       int           `json:"sent"`
	Duplicates int           `json:"duplicates"`
	FollowUps  int           `json:"follow_ups"`
	Failed     int           `json:"failed"`
	Took       time.Duration `json:"took"`
}

type sweepCounters struct {
	evaluated, sent, duplicates, followUps, failed atomic.Int64
}

func (c *sweepCounters) outcome(o nudge.Outcome) {
	switch o {
	case nudge.OutcomeSent:
		c.sent.Add(1)
	case nudge.OutcomeDuplicate:
		c.duplicates.Add(1)
	}
}

// Sweep evaluates every student for a nudge and a goal follow-up. A failure
// for one student is logged and counted but never stops the others. Only a
// failure to list students, or cancellation, fails the sweep.
func (e *Engine) Sweep(ctx context.Context) (SweepReport, error) {
	start := e.Now()
	log := e.deps.Log.With("run", "sweep")

	var c sweepCounters
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.sweep.Workers)

	var after string
	var listErr error
	for {
		ids, err := e.deps.Students.StudentIDs(gctx, after, e.sweep.PageSize)
		if err != nil {
			listErr = fmt.Errorf("list students: %w", err)
			break
		}
		for _, id := range ids {
			g.Go(func() error {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				c.evaluated.Add(1)
				if err := e.sweepStudent(gctx, id, &c); err != nil {
					c.failed.Add(1)
					log.Warn("student evaluation failed", "student_id", id, "error", err)
				}
				return nil
			})
		}
		if len(ids) < e.sweep.PageSize {
			break
		}
		after = ids[len(ids)-1]
	}

	waitErr := g.Wait()
	r := SweepReport{
		Evaluated:  int(c.evaluated.Load()),
		Sent:       int(c.sent.Load()),
		Duplicates: int(c.duplicates.Load()),
		FollowUps:  int(c.followUps.Load()),
		Failed:     int(c.failed.Load()),
		Took:       e.Now().Sub(start),
	}
	e.deps.Metrics.SweepFinished(r.Evaluated, r.Failed, r.Took)
	log.Info("sweep finished", "evaluated", r.Evaluated, "sent", r.Sent, "duplicates", r.Duplicates,
		"follow_ups", r.FollowUps, "failed", r.Failed, "took", r.Took)

	if listErr != nil {
		return r, listErr
	}
	if waitErr != nil {
		return r, waitErr
	}
	return r, ctx.Err()
}

func (e *Engine) sweepStudent(ctx context.Context, studentID string, c *sweepCounters) error {
	d, err := e.EvaluateNudge(ctx, studentID, true)
	if err != nil {
		return fmt.Errorf("nudge: %w", err)
	}
	c.outcome(d.Outcome)

	o, err := e.FollowUp(ctx, studentID)
	if err != nil {
		return fmt.Errorf("follow-up: %w", err)
	}
	if o == nudge.OutcomeSent {
		c.followUps.Add(1)
	}
	return nil
}
