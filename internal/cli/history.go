package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history <player-uuid>",
	Short: "Show past releases for a player",
	Long:  "Reads pearl history straight from the database; the server does not need to be running.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("player: %w", err)
		}

		db, err := openDB()
		if err != nil {
			return fmt.Errorf("open db: %w", err)
		}
		defer db.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		entries, err := db.History(ctx, id, historyLimit)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No releases recorded.")
			return nil
		}
		for i, e := range entries {
			fmt.Fprintf(cmd.OutOrStdout(), "%d. [%s] freed: %s (held by %s since %s)\n",
				i+1,
				e.FreedAt.Local().Format(time.DateTime),
				e.Pearl.FreeReason,
				e.Pearl.KillerName,
				e.Pearl.CreatedAt.Local().Format(time.DateTime),
			)
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Maximum number of entries")
}
