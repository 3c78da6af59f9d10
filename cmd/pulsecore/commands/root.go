package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "pulsecore",
		Short: "PulseCore - hardware monitor overlay and taskbar strip",
		Long: `PulseCore shows live hardware telemetry in a floating overlay window and
an optional taskbar strip, with themable backgrounds.

Features:
  • Overlay, taskbar and toolkit windows kept in sync through shared storage
  • Background compositor with crop, blur and liquid-glass effects
  • Up to three saved themes
  • Fullscreen auto-hide for the taskbar strip
  • Configuration export and two-phase import
  • REST API and websocket event endpoint`,
		SilenceUsage: true,
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/pulsecore/config.yaml)")
	rootCmd.PersistentFlags().Int("port", 0, "server port (default is 8080)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("data-dir", "", "directory for the settings database")
	rootCmd.PersistentFlags().String("event-url", "", "event endpoint of the running main window")

	viper.BindPFlag("server_port", rootCmd.PersistentFlags().Lookup("port"))
	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("data_dir", rootCmd.PersistentFlags().Lookup("data-dir"))
	viper.BindPFlag("event_url", rootCmd.PersistentFlags().Lookup("event-url"))
	viper.SetEnvPrefix("PULSECORE")
	viper.AutomaticEnv()
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// GetConfigFile returns the config file path
func GetConfigFile() string {
	return cfgFile
}
