// Package escalation decides when an AI tutoring conversation should be
// handed to a human tutor and assembles the context the tutor receives.
package escalation

import (
	"fmt"
	"regexp"
	"time"
)

// Config holds the detection thresholds and pattern lists. Thresholds are
// match counts, not probabilities.
type Config struct {
	// RecentMessages is how many of the latest messages per role the
	// signals inspect.
	RecentMessages int `yaml:"recent_messages"`

	// MinUserMessages is the conversation length below which repeated
	// confusion cannot fire.
	MinUserMessages     int     `yaml:"min_user_messages"`
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
	RepeatThreshold     int     `yaml:"repeat_threshold"`

	FrustrationThreshold int `yaml:"frustration_threshold"`
	HedgingThreshold     int `yaml:"hedging_threshold"`

	BaseDifficulty         int `yaml:"base_difficulty"`
	DifficultyPerIndicator int `yaml:"difficulty_per_indicator"`
	// ComplexityGap is how far estimated difficulty must exceed the
	// student's proficiency.
	ComplexityGap int `yaml:"complexity_gap"`

	MaxStruggles        int `yaml:"max_struggles"`
	FocusFromStruggles  int `yaml:"focus_from_struggles"`
	FocusFromWeaknesses int `yaml:"focus_from_weaknesses"`
	MaxFocusAreas       int `yaml:"max_focus_areas"`

	SummaryMessages  int           `yaml:"summary_messages"`
	SummaryTruncate  int           `yaml:"summary_truncate"`
	SummaryMaxTokens int           `yaml:"summary_max_tokens"`
	SummaryTimeout   time.Duration `yaml:"summary_timeout"`
	SummaryCacheTTL  time.Duration `yaml:"summary_cache_ttl"`

	FrustrationPatterns []string `yaml:"frustration_patterns"`
	HedgingPatterns     []string `yaml:"hedging_patterns"`
	AdvancedPatterns    []string `yaml:"advanced_patterns"`
	// TopicPattern extracts a question topic from a lowercased user
	// message; the second capture group is the topic.
	TopicPattern string `yaml:"topic_pattern"`
}

// DefaultConfig returns the production thresholds and patterns.
func DefaultConfig() Config {
	return Config{
		RecentMessages:      5,
		MinUserMessages:     3,
		SimilarityThreshold: 0.5,
		RepeatThreshold:     3,

		FrustrationThreshold: 2,
		HedgingThreshold:     3,

		BaseDifficulty:         5,
		DifficultyPerIndicator: 2,
		ComplexityGap:          3,

		MaxStruggles:        5,
		FocusFromStruggles:  3,
		FocusFromWeaknesses: 2,
		MaxFocusAreas:       5,

		SummaryMessages:  10,
		SummaryTruncate:  200,
		SummaryMaxTokens: 150,
		SummaryTimeout:   15 * time.Second,
		SummaryCacheTTL:  30 * time.Minute,

		FrustrationPatterns: []string{
			`(?i)i don't (understand|get it)`,
			`(?i)this (doesn't|does not) make sense`,
			`(?i)i('m| am) (so )?(confused|lost|frustrated)`,
			`(?i)can you explain (again|differently)`,
			`(?i)i give up`,
			`(?i)this is (too )?hard`,
			`(?i)help me`,
			`\?{2,}`,
			`!{2,}`,
		},
		HedgingPatterns: []string{
			`(?i)i('m| am) not (entirely )?sure`,
			`(?i)this (might|may) be`,
			`(?i)i think`,
			`(?i)it's possible that`,
			`(?i)you (should|might want to) (ask|consult|check with)`,
		},
		AdvancedPatterns: []string{
			`(?i)theorem|proof|derive|integral|differential`,
			`(?i)synthesis|analysis|evaluate|critique`,
			`(?i)advanced|complex|challenging`,
		},
		TopicPattern: `\b(how|what|why|when|where|explain|help with)\s+(.+?)[?.]`,
	}
}

// Validate checks ranges and compiles every pattern.
func (c Config) Validate() error {
	if c.RecentMessages <= 0 || c.SummaryMessages <= 0 {
		return fmt.Errorf("escalation: message windows must be positive")
	}
	if c.SimilarityThreshold < 0 || c.SimilarityThreshold > 1 {
		return fmt.Errorf("escalation: similarity_threshold %.2f outside [0,1]", c.SimilarityThreshold)
	}
	if c.RepeatThreshold <= 0 || c.FrustrationThreshold <= 0 || c.HedgingThreshold <= 0 {
		return fmt.Errorf("escalation: trigger thresholds must be positive")
	}
	if c.MaxFocusAreas <= 0 {
		return fmt.Errorf("escalation: max_focus_areas must be positive")
	}
	_, err := c.compile()
	return err
}

type patterns struct {
	frustration []*regexp.Regexp
	hedging     []*regexp.Regexp
	advanced    []*regexp.Regexp
	topic       *regexp.Regexp
}

func (c Config) compile() (patterns, error) {
	var p patterns
	var err error
	if p.frustration, err = compileAll("frustration", c.FrustrationPatterns); err != nil {
		return p, err
	}
	if p.hedging, err = compileAll("hedging", c.HedgingPatterns); err != nil {
		return p, err
	}
	if p.advanced, err = compileAll("advanced", c.AdvancedPatterns); err != nil {
		return p, err
	}
	if p.topic, err = regexp.Compile(c.TopicPattern); err != nil {
		return p, fmt.Errorf("escalation: topic pattern: %w", err)
	}
	if p.topic.NumSubexp() < 2 {
		return p, fmt.Errorf("escalation: topic pattern needs two capture groups")
	}
	return p, nil
}

func compileAll(kind string, exprs []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(exprs))
	for _, e := range exprs {
		re, err := regexp.Compile(e)
		if err != nil {
			return nil, fmt.Errorf("escalation: %s pattern %q: %w", kind, e, err)
		}
		out = append(out, re)
	}
	return out, nil
}
