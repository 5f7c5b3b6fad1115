// Package platform talks to the tutoring platform that delivers
// notifications and owns tutor availability and bookings.
package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/abhisek/companion/internal/logger"
)

// Config configures the platform client.
type Config struct {
	BaseURL string `yaml:"base_url"`
	// APIKey is only read from the environment.
	APIKey string `yaml:"-"`

	// Timeout bounds a single request. Default: 10s.
	Timeout time.Duration `yaml:"timeout"`

	// RatePerSecond and Burst shape outbound traffic. Default: 10/s, burst 20.
	RatePerSecond float64 `yaml:"rate_per_second"`
	Burst         int     `yaml:"burst"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		BaseURL:       "https://api.nerdy.com",
		Timeout:       10 * time.Second,
		RatePerSecond: 10,
		Burst:         20,
	}
}

// APIError is returned for non-2xx platform responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("platform returned %d: %s", e.StatusCode, e.Body)
}

// Client is a small JSON client for the platform API.
type Client struct {
	base    *url.URL
	apiKey  string
	http    *http.Client
	limiter *rate.Limiter
	log     *logger.Logger
}

// New creates a Client. A nil httpClient uses one with cfg.Timeout.
func New(cfg Config, httpClient *http.Client, log *logger.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("platform base URL is required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse platform URL: %w", err)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if log == nil {
		log = logger.Nop()
	}
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Client{
		base:    base,
		apiKey:  cfg.APIKey,
		http:    httpClient,
		limiter: rate.NewLimiter(limit, burst),
		log:     log,
	}, nil
}

// Slot is a bookable time with one tutor.
type Slot struct {
	StartsAt        time.Time `json:"datetime"`
	DurationMinutes int       `json:"duration"`
}

// Tutor is an available tutor as reported by the platform.
type Tutor struct {
	ID        string   `json:"id"`
	FirstName string   `json:"first_name"`
	LastName  string   `json:"last_name"`
	Subjects  []string `json:"subjects,omitempty"`
	Rating    float64  `json:"rating,omitempty"`
	Slots     []Slot   `json:"available_slots"`
}

// Name returns the tutor's display name.
func (t Tutor) Name() string {
	return strings.TrimSpace(t.FirstName + " " + t.LastName)
}

// AvailableTutors lists tutors free for subject around at.
func (c *Client) AvailableTutors(ctx context.Context, subject string, at time.Time, minutes int) ([]Tutor, error) {
	q := url.Values{}
	q.Set("subject", subject)
	q.Set("datetime", at.UTC().Format(time.RFC3339))
	q.Set("duration", strconv.Itoa(minutes))

	var out struct {
		Tutors []Tutor `json:"tutors"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/tutors/availability", q, nil, &out); err != nil {
		return nil, err
	}
	return out.Tutors, nil
}

// BookingRequest asks the platform to book a tutor.
type BookingRequest struct {
	StudentID   string    `json:"student_id"`
	TutorID     string    `json:"tutor_id"`
	Subject     string    `json:"subject"`
	ScheduledAt time.Time `json:"scheduled_at"`
	Notes       string    `json:"notes,omitempty"`
}

// Booking is the platform's confirmation.
type Booking struct {
	ID          string    `json:"id"`
	TutorID     string    `json:"tutor_id"`
	ScheduledAt time.Time `json:"scheduled_at"`
	Status      string    `json:"status,omitempty"`
}

// CreateBooking books a session.
func (c *Client) CreateBooking(ctx context.Context, req BookingRequest) (*Booking, error) {
	var b Booking
	if err := c.do(ctx, http.MethodPost, "/api/v1/bookings", nil, req, &b); err != nil {
		return nil, err
	}
	if b.ID == "" {
		return nil, fmt.Errorf("platform booking response has no id")
	}
	return &b, nil
}

// Notification is a message delivered to a student.
type Notification struct {
	StudentID string         `json:"student_id"`
	Type      string         `json:"notification_type"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data,omitempty"`
}

// SendNotification delivers n.
func (c *Client) SendNotification(ctx context.Context, n Notification) error {
	return c.do(ctx, http.MethodPost, "/api/v1/notifications", nil, n, nil)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("platform rate limit: %w", err)
	}

	u := c.base.JoinPath(path)
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var r io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s body: %w", path, err)
		}
		r = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), r)
	if err != nil {
		return fmt.Errorf("build %s request: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	c.log.Debug("platform request", "method", method, "path", path,
		"status", resp.StatusCode, "latency_ms", time.Since(start).Milliseconds())

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
