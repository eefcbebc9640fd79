package main

import (
	"fmt"
	"os"

	"github.com/cuemby/charmed-norris/pkg/config"
	"github.com/cuemby/charmed-norris/pkg/log"
	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// Flags shared by every command
var (
	settingsFile string
	flagSettings = config.DefaultSettings()

	// settings is resolved once per invocation before any command runs
	settings config.Settings
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorMsg("Error: %v", err))
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "norris-operator",
	Short: "Operator for the charmed-norris joke service",
	Long: `norris-operator wires the norris joke service into the platform's
lifecycle events. Each event renders the desired service layer from charm
config, compares it with the plan the workload's process supervisor runs,
and restarts the service only when they differ.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		s, err := loadSettings(cmd)
		if err != nil {
			return err
		}
		settings = s
		log.Init(log.Config{
			Level:      log.ParseLevel(s.LogLevel),
			JSONOutput: s.LogJSON,
		})
		return nil
	},
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"norris-operator version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&settingsFile, "settings", "", "Operator settings file (YAML)")
	flags.StringVar(&flagSettings.AppName, "app-name", flagSettings.AppName, "Application name sent to the ingress provider")
	flags.StringVar(&flagSettings.UnitName, "unit", flagSettings.UnitName, "Unit name")
	flags.StringVar(&flagSettings.Backend, "backend", flagSettings.Backend, "Process supervisor backend (pebble|local)")
	flags.StringVar(&flagSettings.Socket, "socket", flagSettings.Socket, "Pebble API socket")
	flags.StringVar(&flagSettings.DataDir, "data-dir", flagSettings.DataDir, "Directory for operator state")
	flags.StringVar(&flagSettings.SchemaFile, "schema", flagSettings.SchemaFile, "Charm config schema (config.yaml); built-in when empty")
	flags.StringVar(&flagSettings.ValuesFile, "values", flagSettings.ValuesFile, "Charm config values file (YAML)")
	flags.StringVar(&flagSettings.LogLevel, "log-level", flagSettings.LogLevel, "Log level (debug|info|warn|error)")
	flags.BoolVar(&flagSettings.LogJSON, "log-json", flagSettings.LogJSON, "Log as JSON")

	rootCmd.AddCommand(dispatchCmd)
	rootCmd.AddCommand(renderCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(agentCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadSettings reads the settings file and applies explicitly set flags on top
func loadSettings(cmd *cobra.Command) (config.Settings, error) {
	s, err := config.LoadSettings(settingsFile)
	if err != nil {
		return s, err
	}

	flags := cmd.Flags()
	override := func(name string, dst *string, v string) {
		if flags.Changed(name) {
			*dst = v
		}
	}
	override("app-name", &s.AppName, flagSettings.AppName)
	override("unit", &s.UnitName, flagSettings.UnitName)
	override("backend", &s.Backend, flagSettings.Backend)
	override("socket", &s.Socket, flagSettings.Socket)
	override("data-dir", &s.DataDir, flagSettings.DataDir)
	override("schema", &s.SchemaFile, flagSettings.SchemaFile)
	override("values", &s.ValuesFile, flagSettings.ValuesFile)
	override("log-level", &s.LogLevel, flagSettings.LogLevel)
	if flags.Changed("log-json") {
		s.LogJSON = flagSettings.LogJSON
	}
	if flags.Changed("metrics-addr") {
		s.MetricsAddr = flagSettings.MetricsAddr
	}
	if flags.Changed("poll-interval") {
		s.PollInterval = flagSettings.PollInterval
	}
	if flags.Changed("workload-url") {
		s.WorkloadURL = flagSettings.WorkloadURL
	}

	return s, s.Validate()
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Print(keyValues("",
			kv("version", Version),
			kv("commit", Commit),
			kv("built", BuildTime),
		))
	},
}
