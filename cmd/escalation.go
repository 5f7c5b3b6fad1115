package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var escalationCmd = &cobra.Command{
	Use:   "escalation <conversation-id>",
	Short: "Check whether a conversation should go to a human tutor",
	Long: "Runs the escalation rules over a conversation. With --suggest, an " +
		"escalated conversation gets tutor options and an offer message appended.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		suggest, _ := cmd.Flags().GetBool("suggest")

		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		r, err := a.Engine.CheckEscalation(cmd.Context(), args[0], suggest)
		if err != nil {
			return err
		}
		return printJSON(r)
	},
}

var bookCmd = &cobra.Command{
	Use:   "book <conversation-id>",
	Short: "Book a human tutor session for a conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		atFlag, _ := cmd.Flags().GetString("at")
		tutor, _ := cmd.Flags().GetString("tutor")

		at, err := time.Parse(time.RFC3339, atFlag)
		if err != nil {
			return fmt.Errorf("invalid --at %q: want RFC 3339, e.g. 2026-05-04T16:00:00Z", atFlag)
		}

		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		h, err := a.Engine.Book(cmd.Context(), args[0], tutor, at)
		if err != nil {
			return err
		}
		return printJSON(h)
	},
}

func init() {
	escalationCmd.Flags().Bool("suggest", false, "Offer tutors when the conversation escalates")

	bookCmd.Flags().String("at", "", "Session start time (RFC 3339)")
	bookCmd.Flags().String("tutor", "", "Tutor id; defaults to the first available tutor")
	_ = bookCmd.MarkFlagRequired("at")
}
