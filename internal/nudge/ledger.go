package nudge

import (
	"context"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"

	"github.com/abhisek/companion/internal/engagement"
)

// Ledger decides whether a nudge of a type may go to a student now.
// A successful Claim reserves the slot for the ledger's window.
type Ledger interface {
	Claim(ctx context.Context, studentID string, t engagement.NudgeType, now time.Time) (bool, error)
	Release(ctx context.Context, studentID string, t engagement.NudgeType) error
}

// History is the persisted record of sent nudges.
type History interface {
	LastSent(ctx context.Context, studentID, nudgeType string) (time.Time, bool, error)
}

// StoreLedger consults the persisted nudge history. It never reserves
// anything itself; the dispatcher's record of the send is the reservation.
type StoreLedger struct {
	history History
	window  time.Duration
}

// NewStoreLedger returns a ledger over h.
func NewStoreLedger(h History, window time.Duration) *StoreLedger {
	return &StoreLedger{history: h, window: window}
}

func (l *StoreLedger) Claim(ctx context.Context, studentID string, t engagement.NudgeType, now time.Time) (bool, error) {
	last, ok, err := l.history.LastSent(ctx, studentID, string(t))
	if err != nil {
		return false, fmt.Errorf("nudge history: %w", err)
	}
	if !ok {
		return true, nil
	}
	return !last.After(now.Add(-l.window)), nil
}

func (l *StoreLedger) Release(context.Context, string, engagement.NudgeType) error { return nil }

// MemoryLedger reserves claims in process memory.
type MemoryLedger struct {
	c      *gocache.Cache
	window time.Duration
}

// NewMemoryLedger returns a ledger whose claims expire after window.
func NewMemoryLedger(window time.Duration) *MemoryLedger {
	return &MemoryLedger{c: gocache.New(window, window), window: window}
}

func (l *MemoryLedger) Claim(_ context.Context, studentID string, t engagement.NudgeType, now time.Time) (bool, error) {
	if err := l.c.Add(ledgerKey(studentID, t), now, l.window); err != nil {
		return false, nil
	}
	return true, nil
}

func (l *MemoryLedger) Release(_ context.Context, studentID string, t engagement.NudgeType) error {
	l.c.Delete(ledgerKey(studentID, t))
	return nil
}

// RedisLedger reserves claims in Redis so replicas share them.
type RedisLedger struct {
	client *redis.Client
	window time.Duration
}

// NewRedisLedger returns a ledger over client.
func NewRedisLedger(client *redis.Client, window time.Duration) *RedisLedger {
	return &RedisLedger{client: client, window: window}
}

func (l *RedisLedger) Claim(ctx context.Context, studentID string, t engagement.NudgeType, now time.Time) (bool, error) {
	ok, err := l.client.SetNX(ctx, ledgerKey(studentID, t), now.Unix(), l.window).Result()
	if err != nil {
		return false, fmt.Errorf("redis claim: %w", err)
	}
	return ok, nil
}

func (l *RedisLedger) Release(ctx context.Context, studentID string, t engagement.NudgeType) error {
	if err := l.client.Del(ctx, ledgerKey(studentID, t)).Err(); err != nil {
		return fmt.Errorf("redis release: %w", err)
	}
	return nil
}

func ledgerKey(studentID string, t engagement.NudgeType) string {
	return "companion:nudge:" + studentID + ":" + string(t)
}

// Chain claims through every ledger in order. If a later ledger refuses or
// fails, the earlier claims are released.
func Chain(ledgers ...Ledger) Ledger {
	return chain(ledgers)
}

type chain []Ledger

func (c chain) Claim(ctx context.Context, studentID string, t engagement.NudgeType, now time.Time) (bool, error) {
	for i, l := range c {
		ok, err := l.Claim(ctx, studentID, t, now)
		if err != nil || !ok {
			for j := i - 1; j >= 0; j-- {
				_ = c[j].Release(ctx, studentID, t)
			}
			return false, err
		}
	}
	return true, nil
}

func (c chain) Release(ctx context.Context, studentID string, t engagement.NudgeType) error {
	var first error
	for _, l := range c {
		if err := l.Release(ctx, studentID, t); err != nil && first == nil {
			first = err
		}
	}
	return first
}
