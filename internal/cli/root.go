package cli

import (
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "exilepearl",
	Short: "Exile registry for game servers",
	Long:  "ExilePearl binds defeated players to pearls, decays them over time and releases them when a pearl is destroyed or exhausted.",
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to exilepearl.toml (env EXILEPEARL_CONFIG)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(hookCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(exileCmd)
	rootCmd.AddCommand(freeCmd)
	rootCmd.AddCommand(decayCmd)
	rootCmd.AddCommand(historyCmd)
}
