package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/abhisek/companion/internal/goals"
	"github.com/abhisek/companion/internal/subjects"
)

var goalCmd = &cobra.Command{
	Use:   "goal",
	Short: "Track learning goal progress",
}

var goalProgressCmd = &cobra.Command{
	Use:   "progress <goal-id>",
	Short: "Recompute goal progress from new evidence and history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f := cmd.Flags()
		var signals []goals.Signal
		if f.Changed("comprehension") {
			v, _ := f.GetInt("comprehension")
			if v < 0 || v > 10 {
				return fmt.Errorf("--comprehension must be 0-10, got %d", v)
			}
			signals = append(signals, goals.SessionAnalysis{ComprehensionScore: v})
		}
		if f.Changed("correct") || f.Changed("total") {
			correct, _ := f.GetInt("correct")
			total, _ := f.GetInt("total")
			if total <= 0 || correct < 0 || correct > total {
				return errors.New("--correct and --total must satisfy 0 <= correct <= total, total > 0")
			}
			signals = append(signals, goals.PracticeResult{Correct: correct, Total: total})
		}

		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		u, err := a.Engine.UpdateGoalProgress(cmd.Context(), args[0], signals...)
		if err != nil {
			return err
		}
		return printJSON(u)
	},
}

var goalEvaluateCmd = &cobra.Command{
	Use:   "evaluate <goal-id>",
	Short: "Ask the language model whether the goal is complete",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		ev, err := a.Engine.EvaluateGoalCompletion(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(ev)
	},
}

var recommendCmd = &cobra.Command{
	Use:   "recommend <subject>",
	Short: "Show the subjects to suggest after completing one",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r := subjects.Lookup(args[0])
		fmt.Println(r.Message)
		for _, s := range r.NextSubjects {
			fmt.Printf("  - %s\n", subjects.Humanize(s))
		}
		return nil
	},
}

func init() {
	goalProgressCmd.Flags().Int("comprehension", 0, "Comprehension score (0-10) from a just-finished session")
	goalProgressCmd.Flags().Int("correct", 0, "Correct answers in a just-finished practice session")
	goalProgressCmd.Flags().Int("total", 0, "Problems in a just-finished practice session")

	goalCmd.AddCommand(goalProgressCmd)
	goalCmd.AddCommand(goalEvaluateCmd)
}
