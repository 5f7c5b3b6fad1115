package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var engagementCmd = &cobra.Command{
	Use:   "engagement <student-id>",
	Short: "Score a student's engagement and show which nudge rules fire",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		r, err := a.Engine.ComputeEngagement(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(r)
	},
}

var nudgeCmd = &cobra.Command{
	Use:   "nudge <student-id>",
	Short: "Preview the recommended nudge, or send it with --send",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		send, _ := cmd.Flags().GetBool("send")

		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		d, err := a.Engine.EvaluateNudge(cmd.Context(), args[0], send)
		if err != nil {
			return err
		}
		if !d.Needed {
			fmt.Println("No nudge needed.")
			return nil
		}
		return printJSON(d)
	},
}

var followupCmd = &cobra.Command{
	Use:   "followup <student-id>",
	Short: "Send the next-subject follow-up for a recently completed goal",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		out, err := a.Engine.FollowUp(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if out == "" {
			fmt.Println("No follow-up due.")
			return nil
		}
		fmt.Println(out)
		return nil
	},
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Evaluate every student once and send due nudges",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		r, err := a.Engine.Sweep(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(r)
	},
}

func init() {
	nudgeCmd.Flags().Bool("send", false, "Dispatch the nudge through the platform")
}
