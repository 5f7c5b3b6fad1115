package app

import (
	"context"
	"fmt"
	"time"

	"github.com/abhisek/companion/internal/learning"
	"github.com/abhisek/companion/internal/store"
)

// SeedResult names the demo rows Seed created.
type SeedResult struct {
	Students      map[string]string `json:"students"`
	GoalID        string            `json:"goal_id"`
	Conversation  string            `json:"conversation_id"`
	PracticeCount int               `json:"practice_sessions"`
}

// Seed writes a small demo population as of now: a new student with one
// session, a lapsed student, and an active chemistry student with a goal
// near completion and a conversation that should escalate.
func Seed(ctx context.Context, st *store.Store, now time.Time) (*SeedResult, error) {
	day := 24 * time.Hour
	res := &SeedResult{Students: map[string]string{}}
	acts := st.Activity()

	students := []*learning.Student{
		{ExternalID: "nerdy-maya", Name: "Maya", EnrolledAt: now.Add(-10 * day)},
		{ExternalID: "nerdy-leo", Name: "Leo", EnrolledAt: now.Add(-120 * day)},
		{ExternalID: "nerdy-ava", Name: "Ava", EnrolledAt: now.Add(-60 * day)},
	}
	for _, s := range students {
		if err := acts.CreateStudent(ctx, s); err != nil {
			return nil, err
		}
		res.Students[s.Name] = s.ID
	}
	maya, leo, ava := students[0], students[1], students[2]

	sessions := []*learning.TutoringSession{
		{StudentID: maya.ID, Subject: "algebra", CreatedAt: now.Add(-8 * day)},
		{StudentID: leo.ID, Subject: "biology", CreatedAt: now.Add(-21 * day)},
		{StudentID: ava.ID, Subject: "chemistry", Summary: "Balanced redox equations with support.", CreatedAt: now.Add(-12 * day)},
		{StudentID: ava.ID, Subject: "chemistry", Summary: "Limiting reagents; needed hints on mole ratios.", CreatedAt: now.Add(-5 * day)},
	}
	for _, s := range sessions {
		if err := acts.RecordTutoringSession(ctx, s); err != nil {
			return nil, err
		}
	}

	goal := &learning.LearningGoal{
		StudentID:     ava.ID,
		Subject:       "chemistry",
		Title:         "Ace stoichiometry",
		Description:   "Solve multi-step stoichiometry problems without hints.",
		TargetOutcome: "90% accuracy on mixed practice sets",
		Status:        learning.GoalActive,
		Milestones: []learning.Milestone{
			{ID: "m1", Title: "Mole conversions", Completed: true},
			{ID: "m2", Title: "Limiting reagents", Completed: false},
		},
		CreatedAt: now.Add(-20 * day),
	}
	if err := st.Goals().Create(ctx, goal); err != nil {
		return nil, err
	}
	res.GoalID = goal.ID

	for i, correct := range []int{8, 9, 8, 9, 9} {
		p := &learning.PracticeSession{
			StudentID:      ava.ID,
			GoalID:         goal.ID,
			Subject:        "chemistry",
			CorrectAnswers: correct,
			TotalProblems:  10,
			CreatedAt:      now.Add(-time.Duration(15-3*i) * day),
		}
		if err := acts.RecordPracticeSession(ctx, p); err != nil {
			return nil, err
		}
		res.PracticeCount++
	}

	profile := &learning.LearningProfile{
		StudentID:        ava.ID,
		Subject:          "chemistry",
		ProficiencyLevel: 4,
		Strengths:        []string{"unit conversions"},
		Weaknesses:       []string{"limiting reagents", "percent yield"},
	}
	if err := st.Profiles().Upsert(ctx, profile); err != nil {
		return nil, err
	}

	conv := &learning.Conversation{StudentID: ava.ID, Subject: "chemistry", CreatedAt: now.Add(-time.Hour)}
	if err := st.Conversations().Create(ctx, conv); err != nil {
		return nil, err
	}
	res.Conversation = conv.ID

	msgs := []struct {
		role    learning.Role
		content string
	}{
		{learning.RoleUser, "How do I find the limiting reagent?"},
		{learning.RoleAssistant, "Compare the mole ratio of each reactant to the balanced equation."},
		{learning.RoleUser, "I don't understand how to find the limiting reagent??"},
		{learning.RoleAssistant, "I think it helps to convert grams to moles first."},
		{learning.RoleUser, "I'm so confused, how do I find the limiting reagent?"},
	}
	for i, m := range msgs {
		msg := &learning.Message{Role: m.role, Content: m.content, CreatedAt: conv.CreatedAt.Add(time.Duration(i+1) * time.Minute)}
		if err := st.Conversations().AppendMessage(ctx, conv.ID, msg); err != nil {
			return nil, fmt.Errorf("seed message %d: %w", i, err)
		}
	}
	return res, nil
}
