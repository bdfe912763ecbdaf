package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cuemby/herald/pkg/config"
	"github.com/cuemby/herald/pkg/storage"
	"github.com/cuemby/herald/pkg/types"
	"github.com/spf13/cobra"
)

// Journal commands
var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Inspect the subscription journal",
	Long: `The journal records every subscription this component holds so that
serve can renew them after a restart. It is read while serve is stopped;
the database is locked while serve runs.`,
}

var journalListCmd = &cobra.Command{
	Use:   "list",
	Short: "List journaled subscriptions",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openJournal(cmd)
		if err != nil {
			return err
		}
		defer store.Close()

		subs, err := store.ListSubscriptions()
		if err != nil {
			return err
		}
		views := make([]subscriptionView, 0, len(subs))
		for _, s := range subs {
			views = append(views, subscriptionView{
				Key:       s.Key(),
				Provider:  s.Provider.String(),
				EventID:   s.EventID,
				Payload:   s.Setup.PayloadType.String(),
				Kind:      s.Setup.Kind.String(),
				Rate:      s.Setup.RequestedRate,
				CreatedAt: s.CreatedAt,
				UpdatedAt: s.UpdatedAt,
			})
		}
		return printYAML(views)
	},
}

var journalPeersCmd = &cobra.Command{
	Use:   "peers",
	Short: "List the saved peer table",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openJournal(cmd)
		if err != nil {
			return err
		}
		defer store.Close()

		peers, err := store.ListPeers()
		if err != nil {
			return err
		}
		return printYAML(peers)
	},
}

var journalForgetCmd = &cobra.Command{
	Use:   "forget KEY",
	Short: "Remove a subscription from the journal",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openJournal(cmd)
		if err != nil {
			return err
		}
		defer store.Close()

		if _, err := store.GetSubscription(args[0]); err != nil {
			return fmt.Errorf("%s: %v", args[0], err)
		}
		if err := store.DeleteSubscription(args[0]); err != nil {
			return err
		}
		fmt.Printf("✓ Removed %s\n", args[0])
		return nil
	},
}

func init() {
	journalCmd.AddCommand(journalListCmd)
	journalCmd.AddCommand(journalPeersCmd)
	journalCmd.AddCommand(journalForgetCmd)
}

// subscriptionView is the printed form of a journal entry
type subscriptionView struct {
	Key       string    `yaml:"key"`
	Provider  string    `yaml:"provider"`
	EventID   uint8     `yaml:"event_id"`
	Payload   string    `yaml:"payload_type"`
	Kind      string    `yaml:"kind"`
	Rate      *float64  `yaml:"requested_rate,omitempty"`
	CreatedAt time.Time `yaml:"created_at"`
	UpdatedAt time.Time `yaml:"updated_at"`
}

// openJournal opens the journal of the configured data directory. Only
// data_dir matters here, so an incomplete configuration is tolerated.
func openJournal(cmd *cobra.Command) (*storage.BoltStore, error) {
	dataDir := config.Default().DataDir
	if cfg, err := loadConfig(cmd); err == nil {
		dataDir = cfg.DataDir
	}
	if flag, _ := cmd.Flags().GetString("data-dir"); flag != "" {
		dataDir = flag
	}

	if _, err := os.Stat(filepath.Join(dataDir, storage.DatabaseFile)); err != nil {
		return nil, fmt.Errorf("no journal in %s", dataDir)
	}
	return storage.NewBoltStore(dataDir)
}

// Config commands
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init [PATH]",
	Short: "Write a configuration file with default values",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "herald.yaml"
		if len(args) == 1 {
			path = args[0]
		}
		force, _ := cmd.Flags().GetBool("force")
		if _, err := os.Stat(path); err == nil && !force {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}

		cfg := config.Default()
		if addr, _ := cmd.Flags().GetString("address"); addr != "" {
			if err := cfg.Address.UnmarshalText([]byte(addr)); err != nil {
				return err
			}
		}
		if err := cfg.Write(path); err != nil {
			return err
		}
		fmt.Printf("✓ Wrote %s\n", path)
		if cfg.Address == (types.Address{}) {
			fmt.Println("  Set address before running serve.")
		}
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		return printYAML(cfg)
	},
}

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configInitCmd.Flags().Bool("force", false, "Overwrite an existing file")
}
