package escalation

import (
	"context"
	"math"
	"regexp"
	"slices"
	"strings"

	"github.com/abhisek/companion/internal/learning"
	"github.com/abhisek/companion/internal/logger"
	"github.com/abhisek/companion/internal/metrics"
)

// Reason names why a conversation escalates.
type Reason string

const (
	ReasonRepeatedConfusion Reason = "repeated_confusion"
	ReasonFrustration       Reason = "student_frustration"
	ReasonComplexTopic      Reason = "complex_topic"
	ReasonAILimitations     Reason = "ai_limitations"
)

// Urgency ranks how soon a tutor should step in.
type Urgency string

const (
	UrgencyLow    Urgency = "low"
	UrgencyMedium Urgency = "medium"
	UrgencyHigh   Urgency = "high"
)

// Signals is the evidence gathered from one conversation.
type Signals struct {
	RepeatedConfusion bool `json:"repeated_confusion"`
	Frustration       bool `json:"frustration_detected"`
	TopicTooComplex   bool `json:"topic_too_complex"`
	AIStruggling      bool `json:"ai_struggling"`

	RepeatCount      int `json:"repeat_count"`
	FrustrationCount int `json:"frustration_count"`
	HedgingCount     int `json:"hedging_count"`
	// TopicDifficulty is 0 when no profile exists for the subject.
	TopicDifficulty int `json:"topic_difficulty"`
}

// Any reports whether at least one signal fired.
func (s Signals) Any() bool {
	return s.RepeatedConfusion || s.Frustration || s.TopicTooComplex || s.AIStruggling
}

// Reasons lists the fired signals in a fixed order.
func (s Signals) Reasons() []Reason {
	var out []Reason
	if s.RepeatedConfusion {
		out = append(out, ReasonRepeatedConfusion)
	}
	if s.Frustration {
		out = append(out, ReasonFrustration)
	}
	if s.TopicTooComplex {
		out = append(out, ReasonComplexTopic)
	}
	if s.AIStruggling {
		out = append(out, ReasonAILimitations)
	}
	return out
}

// Urgency is high when the student is both frustrated and repeating
// themselves, medium for either alone.
func (s Signals) Urgency() Urgency {
	switch {
	case s.Frustration && s.RepeatedConfusion:
		return UrgencyHigh
	case s.Frustration || s.RepeatedConfusion:
		return UrgencyMedium
	}
	return UrgencyLow
}

// Context is handed to the tutor along with a handoff.
type Context struct {
	ConversationID string   `json:"conversation_id"`
	StudentID      string   `json:"student_id"`
	Subject        string   `json:"subject"`
	Reasons        []Reason `json:"reasons"`
	Urgency        Urgency  `json:"urgency"`
	// Summary is empty when the summarizer failed.
	Summary    string   `json:"conversation_summary"`
	Struggles  []string `json:"student_struggles"`
	FocusAreas []string `json:"recommended_session_focus"`
}

// Summarizer condenses a conversation for a tutor.
type Summarizer interface {
	Summarize(ctx context.Context, conv learning.Conversation) (string, error)
}

// Detector evaluates conversations. Detection is pure; only BuildContext
// calls out to the summarizer.
type Detector struct {
	cfg        Config
	p          patterns
	summarizer Summarizer
	metrics    metrics.Sink
	log        *logger.Logger
}

// NewDetector compiles cfg. summarizer may be nil, in which case summaries
// are always empty.
func NewDetector(cfg Config, summarizer Summarizer, sink metrics.Sink, log *logger.Logger) (*Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	p, err := cfg.compile()
	if err != nil {
		return nil, err
	}
	if sink == nil {
		sink = metrics.Nop{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Detector{cfg: cfg, p: p, summarizer: summarizer, metrics: sink, log: log}, nil
}

// Detect gathers every signal. profile is the student's profile for the
// conversation subject and may be nil.
func (d *Detector) Detect(conv learning.Conversation, profile *learning.LearningProfile) Signals {
	var s Signals

	if conv.CountByRole(learning.RoleUser) >= d.cfg.MinUserMessages {
		s.RepeatCount = d.repeatCount(conv.LastByRole(learning.RoleUser, d.cfg.RecentMessages))
		s.RepeatedConfusion = s.RepeatCount >= d.cfg.RepeatThreshold
	}

	s.FrustrationCount = countMatching(conv.LastByRole(learning.RoleUser, d.cfg.RecentMessages), d.p.frustration)
	s.Frustration = s.FrustrationCount >= d.cfg.FrustrationThreshold

	if profile != nil {
		s.TopicDifficulty = d.topicDifficulty(conv.Last(d.cfg.RecentMessages))
		s.TopicTooComplex = s.TopicDifficulty-profile.ProficiencyLevel >= d.cfg.ComplexityGap
	}

	s.HedgingCount = countMatching(conv.LastByRole(learning.RoleAssistant, d.cfg.RecentMessages), d.p.hedging)
	s.AIStruggling = s.HedgingCount >= d.cfg.HedgingThreshold

	return s
}

// ShouldEscalate reports whether any signal fires.
func (d *Detector) ShouldEscalate(conv learning.Conversation, profile *learning.LearningProfile) bool {
	return d.Detect(conv, profile).Any()
}

// Reasons lists why conv escalates; empty when it does not.
func (d *Detector) Reasons(conv learning.Conversation, profile *learning.LearningProfile) []Reason {
	return d.Detect(conv, profile).Reasons()
}

// BuildContext assembles the tutor context. A summarizer failure leaves
// Summary empty and is otherwise ignored.
func (d *Detector) BuildContext(ctx context.Context, conv learning.Conversation, profile *learning.LearningProfile) Context {
	s := d.Detect(conv, profile)
	struggles := d.Struggles(conv)

	out := Context{
		ConversationID: conv.ID,
		StudentID:      conv.StudentID,
		Subject:        conv.Subject,
		Reasons:        s.Reasons(),
		Urgency:        s.Urgency(),
		Struggles:      struggles,
		FocusAreas:     d.FocusAreas(struggles, profile),
	}

	if d.summarizer != nil {
		summary, err := d.summarizer.Summarize(ctx, conv)
		if err != nil {
			d.log.Warn("conversation summary unavailable", "conversation_id", conv.ID, "error", err)
			d.metrics.CollaboratorError("llm")
		} else {
			out.Summary = summary
		}
	}
	return out
}

// repeatCount turns the number of similar message pairs into an
// approximate count of repeated questions.
func (d *Detector) repeatCount(msgs []learning.Message) int {
	if len(msgs) < 2 {
		return 0
	}
	sets := make([]map[string]struct{}, len(msgs))
	for i, m := range msgs {
		sets[i] = wordSet(m.Content)
	}
	pairs := 0
	for i := 0; i < len(sets); i++ {
		for j := i + 1; j < len(sets); j++ {
			if jaccard(sets[i], sets[j]) > d.cfg.SimilarityThreshold {
				pairs++
			}
		}
	}
	return int(math.Ceil(float64(pairs)/2)) + 1
}

var nonWord = regexp.MustCompile(`\W+`)

func wordSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range nonWord.Split(strings.ToLower(text), -1) {
		if w != "" {
			set[w] = struct{}{}
		}
	}
	return set
}

func jaccard(a, b map[string]struct{}) float64 {
	inter := 0
	for w := range a {
		if _, ok := b[w]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// countMatching counts messages matching at least one pattern.
func countMatching(msgs []learning.Message, res []*regexp.Regexp) int {
	n := 0
	for _, m := range msgs {
		for _, re := range res {
			if re.MatchString(m.Content) {
				n++
				break
			}
		}
	}
	return n
}

func (d *Detector) topicDifficulty(msgs []learning.Message) int {
	parts := make([]string, len(msgs))
	for i, m := range msgs {
		parts[i] = m.Content
	}
	text := strings.Join(parts, " ")

	indicators := 0
	for _, re := range d.p.advanced {
		if re.MatchString(text) {
			indicators++
		}
	}
	return d.cfg.BaseDifficulty + indicators*d.cfg.DifficultyPerIndicator
}

// Struggles returns the most frequent question topics across the student's
// messages, most frequent first. Ties keep first-seen order.
func (d *Detector) Struggles(conv learning.Conversation) []string {
	counts := map[string]int{}
	var order []string
	for _, m := range conv.Messages {
		if m.Role != learning.RoleUser {
			continue
		}
		for _, match := range d.p.topic.FindAllStringSubmatch(strings.ToLower(m.Content), -1) {
			topic := strings.TrimSpace(match[2])
			if topic == "" {
				continue
			}
			if counts[topic] == 0 {
				order = append(order, topic)
			}
			counts[topic]++
		}
	}
	slices.SortStableFunc(order, func(a, b string) int {
		return counts[b] - counts[a]
	})
	if len(order) > d.cfg.MaxStruggles {
		order = order[:d.cfg.MaxStruggles]
	}
	return order
}

// FocusAreas merges the top struggles with the profile's weaknesses,
// de-duplicated and capped.
func (d *Detector) FocusAreas(struggles []string, profile *learning.LearningProfile) []string {
	var areas []string
	areas = append(areas, head(struggles, d.cfg.FocusFromStruggles)...)
	if profile != nil {
		areas = append(areas, head(profile.Weaknesses, d.cfg.FocusFromWeaknesses)...)
	}

	seen := make(map[string]bool, len(areas))
	out := make([]string, 0, len(areas))
	for _, a := range areas {
		if seen[a] {
			continue
		}
		seen[a] = true
		out = append(out, a)
	}
	return head(out, d.cfg.MaxFocusAreas)
}

func head(s []string, n int) []string {
	if n < 0 {
		n = 0
	}
	if len(s) > n {
		return s[:n]
	}
	return s
}
