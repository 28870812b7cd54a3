// Package commands implements the muttd CLI.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/marmos91/muttd/internal/config"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:   "muttd",
	Short: "muttd - telemetry ingestion daemon",
	Long: `muttd ingests syslog datagrams and SNMP traps over UDP, matches them
against alert rules, enriches them with reverse-DNS device metadata, and
persists them to a relational store with periodic archival of aged rows.

Use "muttd start" to run the daemon.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command. Called once from
// main.main.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default: "+config.DefaultConfigPath+")")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(startCmd)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// GetConfigFile returns the config file path from the global flag.
func GetConfigFile() string {
	return cfgFile
}
