package nudge

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/abhisek/companion/internal/learning"
	"github.com/abhisek/companion/internal/logger"
	"github.com/abhisek/companion/internal/metrics"
	"github.com/abhisek/companion/internal/platform"
)

// Config configures nudge delivery.
type Config struct {
	// Window is how long a sent nudge type blocks another of the same type.
	Window time.Duration `yaml:"window"`
}

// DefaultConfig returns the three-day de-dup window.
func DefaultConfig() Config {
	return Config{Window: 3 * 24 * time.Hour}
}

// Outcome reports what Dispatch did.
type Outcome string

const (
	OutcomeSent      Outcome = "sent"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeFailed    Outcome = "failed"
)

// Sender delivers notifications.
type Sender interface {
	SendNotification(ctx context.Context, n platform.Notification) error
}

// Recorder persists sent nudges.
type Recorder interface {
	Record(ctx context.Context, n *learning.Nudge) error
}

// Dispatcher sends nudges through the platform, at most once per type per
// window.
type Dispatcher struct {
	ledger   Ledger
	sender   Sender
	recorder Recorder
	metrics  metrics.Sink
	log      *logger.Logger

	// Now is the clock; tests replace it.
	Now func() time.Time
}

// NewDispatcher wires a Dispatcher. sink and log may be nil.
func NewDispatcher(ledger Ledger, sender Sender, recorder Recorder, sink metrics.Sink, log *logger.Logger) *Dispatcher {
	if sink == nil {
		sink = metrics.Nop{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Dispatcher{
		ledger:   ledger,
		sender:   sender,
		recorder: recorder,
		metrics:  sink,
		log:      log,
		Now:      time.Now,
	}
}

// Dispatch claims the ledger slot, sends, and records. A failed send
// releases the claim so a later run may retry.
func (d *Dispatcher) Dispatch(ctx context.Context, student learning.Student, c Content) (Outcome, error) {
	now := d.Now()
	ok, err := d.ledger.Claim(ctx, student.ID, c.Type, now)
	if err != nil {
		d.metrics.NudgeDispatched(string(c.Type), string(OutcomeFailed))
		return OutcomeFailed, fmt.Errorf("claim nudge: %w", err)
	}
	if !ok {
		d.log.Debug("nudge suppressed", "student_id", student.ID, "type", c.Type)
		d.metrics.NudgeDispatched(string(c.Type), string(OutcomeDuplicate))
		return OutcomeDuplicate, nil
	}

	if err := d.send(ctx, student, c); err != nil {
		if rerr := d.ledger.Release(ctx, student.ID, c.Type); rerr != nil {
			d.log.Warn("release nudge claim", "student_id", student.ID, "type", c.Type, "error", rerr)
		}
		d.metrics.NudgeDispatched(string(c.Type), string(OutcomeFailed))
		d.metrics.CollaboratorError("platform")
		return OutcomeFailed, err
	}

	d.record(ctx, student, c, now)
	d.metrics.NudgeDispatched(string(c.Type), string(OutcomeSent))
	d.log.Info("nudge sent", "student_id", student.ID, "type", c.Type)
	return OutcomeSent, nil
}

// Notify sends c without consulting the ledger. Used for one-off messages
// such as goal celebrations.
func (d *Dispatcher) Notify(ctx context.Context, student learning.Student, c Content) error {
	if err := d.send(ctx, student, c); err != nil {
		d.metrics.CollaboratorError("platform")
		return err
	}
	d.record(ctx, student, c, d.Now())
	return nil
}

func (d *Dispatcher) send(ctx context.Context, student learning.Student, c Content) error {
	data := map[string]any{
		"cta":        c.CTA,
		"cta_action": c.CTAAction,
	}
	if len(c.CTAData) > 0 {
		data["cta_data"] = c.CTAData
	}
	recipient := student.ExternalID
	if recipient == "" {
		recipient = student.ID
	}
	err := d.sender.SendNotification(ctx, platform.Notification{
		StudentID: recipient,
		Type:      string(c.Type),
		Title:     c.Title,
		Message:   c.Message,
		Data:      data,
	})
	if err != nil {
		return fmt.Errorf("send %s nudge: %w", c.Type, err)
	}
	return nil
}

// record is best-effort: the nudge already went out.
func (d *Dispatcher) record(ctx context.Context, student learning.Student, c Content, at time.Time) {
	n := &learning.Nudge{
		ID:        uuid.NewString(),
		StudentID: student.ID,
		Type:      string(c.Type),
		Title:     c.Title,
		Message:   c.Message,
		Payload:   c.Payload(),
		CreatedAt: at,
	}
	if err := d.recorder.Record(ctx, n); err != nil {
		d.log.Error("record nudge", "student_id", student.ID, "type", c.Type, "error", err)
	}
}
