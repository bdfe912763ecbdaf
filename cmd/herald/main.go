package main

import (
	"fmt"
	"os"

	"github.com/cuemby/herald/pkg/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "herald",
	Short: "Herald - event subscriptions for unmanned-systems components",
	Long: `Herald runs the event service of a component: peers subscribe to
its queries and receive the responses periodically or on change, and it
subscribes to the queries of other components the same way.

Packets travel over UDP between components identified by
subsystem.node.component.instance addresses.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	// Set version template
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Herald version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	flags := rootCmd.PersistentFlags()
	flags.StringP("config", "c", "", "Config file (default: ./herald.yaml or /etc/herald/herald.yaml)")
	flags.String("address", "", "Component address, subsystem.node.component.instance")
	flags.String("listen", "", "UDP listen address (host:port)")
	flags.String("data-dir", "", "Directory holding the subscription journal")
	flags.String("log-level", "", "Log level (debug, info, warn, error)")
	flags.Bool("log-json", false, "Output logs in JSON format")
	flags.String("metrics-addr", "", "Address of the health and metrics endpoint")

	// Add subcommands
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(subscribeCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(cancelCmd)
	rootCmd.AddCommand(journalCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("Herald version %s\nCommit: %s\nBuilt: %s\n", Version, Commit, BuildTime)
	},
}

// loadConfig loads the configuration named by --config with the persistent
// flags applied on top
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	return config.Load(path, cmd.Flags())
}

// printYAML writes v to stdout as YAML
func printYAML(v any) error {
	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode output: %v", err)
	}
	return enc.Close()
}
