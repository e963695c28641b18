// Package commands implements the xtouch-gw CLI: start the gateway, print
// version information, and run a hardware-free diagnostic pass.
package commands

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	// Global flags.
	cfgFile string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "xtouch-gw",
	Short: "xtouch-gw - real-time bridge between a motorized control surface and desktop apps",
	Long: `xtouch-gw is a real-time bidirectional gateway between a motorized MIDI
control surface and a set of desktop applications: it decodes surface
input into logical control events, dispatches them to per-app drivers,
and routes driver feedback back to the surface's faders, LEDs, and rings
without motor chatter or feedback echo.

Use "xtouch-gw [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main(); it only needs to happen
// once to rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

// GetRootCmd returns the root command for testing purposes.
func GetRootCmd() *cobra.Command {
	return rootCmd
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $XDG_CONFIG_HOME/xtouch-gw/config.yaml)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(doctorCmd)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// GetConfigFile returns the config file path from the global flag,
// falling back to the default XDG location if unset.
func GetConfigFile() string {
	if cfgFile != "" {
		return cfgFile
	}
	return defaultConfigPath()
}

// defaultConfigPath returns $XDG_CONFIG_HOME/xtouch-gw/config.yaml, or
// $HOME/.config/xtouch-gw/config.yaml if XDG_CONFIG_HOME is unset.
func defaultConfigPath() string {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "config.yaml"
		}
		base = home + "/.config"
	}
	return base + "/xtouch-gw/config.yaml"
}

// PrintErr prints an error message to stderr.
func PrintErr(format string, args ...any) {
	rootCmd.PrintErrf(format+"\n", args...)
}

// Exit prints an error and exits with code 1.
func Exit(format string, args ...any) {
	PrintErr(format, args...)
	os.Exit(1)
}
