package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/Maxopoly/ExilePearl/internal/hooks"
)

var hookCmd = &cobra.Command{
	Use:   "hook",
	Short: "Handle game server events read from stdin",
}

func hookRun(event string) func(*cobra.Command, []string) {
	return func(cmd *cobra.Command, args []string) {
		hooks.Handle(event, os.Stdin)
	}
}

var hookKillCmd = &cobra.Command{
	Use:   "kill",
	Short: "Exile a player killed by another",
	Run:   hookRun("kill"),
}

var hookJoinCmd = &cobra.Command{
	Use:   "join",
	Short: "Record a joining player and report their exile status",
	Run:   hookRun("join"),
}

var hookDestroyCmd = &cobra.Command{
	Use:   "destroy",
	Short: "Free a player whose pearl was destroyed",
	Run:   hookRun("destroy"),
}

func init() {
	hookCmd.AddCommand(hookKillCmd)
	hookCmd.AddCommand(hookJoinCmd)
	hookCmd.AddCommand(hookDestroyCmd)
}
