// Package subjects maps a completed subject to the subjects a student should
// consider next.
package subjects

// Recommendation is one entry of the recommendation table.
type Recommendation struct {
	// Subject is the normalized key the entry was found under. Empty for the
	// fallback entry.
	Subject      string
	NextSubjects []string
	// Message is shown alongside the suggestions. "{subject}" is replaced
	// with the completed subject as the caller supplied it.
	Message       string
	PriorityOrder []string
}

// fallback is returned for subjects missing from the table.
var fallback = Recommendation{
	NextSubjects:  []string{"study_skills", "test_prep", "writing"},
	Message:       "Congratulations on completing {subject}! Here are some ways to continue learning.",
	PriorityOrder: []string{"study_skills", "test_prep"},
}

var table = []Recommendation{
	{
		Subject:       "sat_prep",
		NextSubjects:  []string{"college_essays", "study_skills", "ap_courses", "act_prep"},
		Message:       "Great job completing SAT prep! Many students find success continuing with college application support.",
		PriorityOrder: []string{"college_essays", "ap_courses", "study_skills"},
	},
	{
		Subject:       "act_prep",
		NextSubjects:  []string{"college_essays", "study_skills", "sat_prep", "ap_courses"},
		Message:       "ACT prep complete! Consider getting help with college essays or AP courses.",
		PriorityOrder: []string{"college_essays", "ap_courses"},
	},
	{
		Subject:       "chemistry",
		NextSubjects:  []string{"physics", "biology", "ap_chemistry", "organic_chemistry"},
		Message:       "Chemistry mastered! Physics and biology are natural next steps for STEM success.",
		PriorityOrder: []string{"physics", "ap_chemistry", "biology"},
	},
	{
		Subject:       "physics",
		NextSubjects:  []string{"ap_physics", "chemistry", "calculus", "engineering_prep"},
		Message:       "Physics complete! Consider AP Physics or strengthen your calculus foundation.",
		PriorityOrder: []string{"ap_physics", "calculus"},
	},
	{
		Subject:       "algebra",
		NextSubjects:  []string{"geometry", "algebra_2", "pre_calculus", "trigonometry"},
		Message:       "Algebra mastered! You're ready to tackle geometry or move to Algebra 2.",
		PriorityOrder: []string{"geometry", "algebra_2"},
	},
	{
		Subject:       "geometry",
		NextSubjects:  []string{"algebra_2", "trigonometry", "pre_calculus"},
		Message:       "Geometry complete! Algebra 2 or trigonometry is your next math milestone.",
		PriorityOrder: []string{"algebra_2", "trigonometry"},
	},
	{
		Subject:       "calculus",
		NextSubjects:  []string{"ap_calculus", "statistics", "linear_algebra", "physics"},
		Message:       "Calculus done! AP Calculus or statistics will strengthen your math foundation.",
		PriorityOrder: []string{"ap_calculus", "statistics"},
	},
	{
		Subject:       "biology",
		NextSubjects:  []string{"chemistry", "ap_biology", "anatomy", "environmental_science"},
		Message:       "Biology mastered! Chemistry pairs perfectly, or dive deeper with AP Biology.",
		PriorityOrder: []string{"chemistry", "ap_biology"},
	},
	{
		Subject:       "english",
		NextSubjects:  []string{"ap_english", "creative_writing", "sat_reading", "literature"},
		Message:       "English skills strong! Consider AP English or focus on SAT reading.",
		PriorityOrder: []string{"ap_english", "sat_reading"},
	},
	{
		Subject:       "spanish",
		NextSubjects:  []string{"ap_spanish", "spanish_literature", "french", "latin"},
		Message:       "¡Muy bien! Ready for AP Spanish or explore another language?",
		PriorityOrder: []string{"ap_spanish", "french"},
	},
}
