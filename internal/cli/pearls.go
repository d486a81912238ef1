package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/Maxopoly/ExilePearl/internal/engine"
	"github.com/Maxopoly/ExilePearl/internal/hooks"
	"github.com/Maxopoly/ExilePearl/internal/pearl"
)

// newClient is swapped in tests.
var newClient = hooks.NewClient

var (
	listPrefix string
	freeReason string
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List active pearls",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "/api/pearls"
		if listPrefix != "" {
			path += "?" + url.Values{"prefix": {listPrefix}}.Encode()
		}
		data, err := newClient().Get(path)
		if err != nil {
			return err
		}

		var resp struct {
			Pearls []pearl.Pearl `json:"pearls"`
		}
		if err := json.Unmarshal(data, &resp); err != nil {
			return fmt.Errorf("decode pearls: %w", err)
		}
		if len(resp.Pearls) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No active pearls.")
			return nil
		}
		for _, p := range resp.Pearls {
			printPearl(cmd.OutOrStdout(), p)
		}
		return nil
	},
}

var showCmd = &cobra.Command{
	Use:   "show <player>",
	Short: "Show the pearl holding a player (uuid or name)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := newClient().Get("/api/pearls/" + url.PathEscape(args[0]))
		if err != nil {
			return err
		}
		var p pearl.Pearl
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("decode pearl: %w", err)
		}
		printPearl(cmd.OutOrStdout(), p)
		return nil
	},
}

var exileCmd = &cobra.Command{
	Use:   "exile <exiled-uuid> <killer-uuid>",
	Short: "Exile a player",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		exiled, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("exiled player: %w", err)
		}
		killer, err := uuid.Parse(args[1])
		if err != nil {
			return fmt.Errorf("killer: %w", err)
		}

		body, _ := json.Marshal(map[string]uuid.UUID{"exiled_id": exiled, "killer_id": killer})
		data, err := newClient().Post("/api/pearls", body)
		if err != nil {
			return err
		}
		var p pearl.Pearl
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("decode pearl: %w", err)
		}
		printPearl(cmd.OutOrStdout(), p)
		return nil
	},
}

var freeCmd = &cobra.Command{
	Use:   "free <player>",
	Short: "Free an exiled player (uuid or name)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, ok := pearl.ParseFreeReason(freeReason); !ok {
			return fmt.Errorf("unknown reason %q", freeReason)
		}
		path := "/api/pearls/" + url.PathEscape(args[0]) + "?" + url.Values{"reason": {freeReason}}.Encode()
		if _, err := newClient().Delete(path); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Freed %s (%s)\n", args[0], freeReason)
		return nil
	},
}

var decayCmd = &cobra.Command{
	Use:   "decay",
	Short: "Run one decay pass now",
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := newClient().Post("/api/decay", nil)
		if err != nil {
			return err
		}
		var report engine.DecayReport
		if err := json.Unmarshal(data, &report); err != nil {
			return fmt.Errorf("decode report: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Decayed %d pearls, freed %d\n", report.Decayed, report.Freed)
		return nil
	},
}

func printPearl(w io.Writer, p pearl.Pearl) {
	fmt.Fprintf(w, "%s (%s)\n", p.PlayerName, p.PlayerID)
	fmt.Fprintf(w, "   held by %s, health %d, since %s\n", p.KillerName, p.Health, p.CreatedAt.Local().Format(time.DateTime))
}

func init() {
	listCmd.Flags().StringVarP(&listPrefix, "prefix", "p", "", "Only pearls whose player name starts with prefix")
	freeCmd.Flags().StringVarP(&freeReason, "reason", "r", string(pearl.FreeReasonForceFreed), "Release reason")
}
