package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/abhisek/companion/internal/app"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load a small demo population into the database",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		res, err := app.Seed(cmd.Context(), s, time.Now())
		if err != nil {
			return err
		}
		return printJSON(res)
	},
}
