package goals

import (
	"fmt"
	"math"
)

// Signal is one piece of evidence about goal progress. The set of signal
// types is closed; blending handles each one explicitly.
type Signal interface {
	signal()
}

// SessionAnalysis is the analysis of a just-completed tutoring session.
type SessionAnalysis struct {
	// ComprehensionScore is 0-10.
	ComprehensionScore int
}

// PracticeResult is a just-completed practice session.
type PracticeResult struct {
	Correct int
	Total   int
}

// HistoricalAccuracy is the trailing average accuracy across the goal
// subject's practice sessions.
type HistoricalAccuracy struct {
	// Average is a fraction in [0,1].
	Average  float64
	Sessions int
}

// SessionAttendance counts tutoring sessions in the goal subject since the
// goal was created.
type SessionAttendance struct {
	Count int
}

func (SessionAnalysis) signal()    {}
func (PracticeResult) signal()     {}
func (HistoricalAccuracy) signal() {}
func (SessionAttendance) signal()  {}

// score converts a signal to a 0-100 progress estimate. The bool is false
// when the signal carries no evidence and must be left out of the blend.
func (c Config) score(s Signal) (int, bool) {
	switch s := s.(type) {
	case SessionAnalysis:
		return clamp(s.ComprehensionScore * 10), true
	case PracticeResult:
		if s.Total <= 0 {
			return 0, false
		}
		return clamp(percent(float64(s.Correct) / float64(s.Total))), true
	case HistoricalAccuracy:
		if s.Sessions <= 0 {
			return 0, false
		}
		return clamp(percent(s.Average)), true
	case SessionAttendance:
		if s.Count <= 0 {
			return 0, false
		}
		return clamp(min(s.Count*c.SessionWeight, c.SessionCap)), true
	default:
		panic(fmt.Sprintf("goals: unhandled signal %T", s))
	}
}

// Blend averages the applicable signals, flooring the mean. ok is false when
// none apply.
func (c Config) Blend(signals ...Signal) (progress int, ok bool) {
	sum, n := 0, 0
	for _, s := range signals {
		if v, applies := c.score(s); applies {
			sum += v
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return sum / n, true
}

func percent(f float64) int {
	return int(math.Round(f * 100))
}

func clamp(v int) int {
	return max(0, min(100, v))
}
