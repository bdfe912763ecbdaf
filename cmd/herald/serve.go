package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuemby/herald/pkg/api"
	"github.com/cuemby/herald/pkg/config"
	"github.com/cuemby/herald/pkg/event"
	"github.com/cuemby/herald/pkg/events"
	"github.com/cuemby/herald/pkg/log"
	"github.com/cuemby/herald/pkg/manager"
	"github.com/cuemby/herald/pkg/metrics"
	"github.com/cuemby/herald/pkg/node"
	"github.com/cuemby/herald/pkg/storage"
	"github.com/cuemby/herald/pkg/transport"
	"github.com/cuemby/herald/pkg/types"
	"github.com/cuemby/herald/pkg/wire"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the event service of this component",
	Long: `Run the event service until interrupted.

The component answers event requests for the queries it serves (QueryTime
by default), renews the subscriptions recorded in its journal, and cancels
everything toward its peers when it stops.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().Bool("watch", false, "Print event notices as they happen")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	log.Init(log.Config{
		Level:      log.ParseLevel(cfg.Log.Level),
		JSONOutput: cfg.Log.JSON,
	})
	metrics.SetVersion(Version)
	logger := log.WithAddress(cfg.Address)

	udp, err := transport.ListenUDP(transport.UDPConfig{
		Listen:    cfg.Listen,
		SendRate:  cfg.Transport.SendRate,
		SendBurst: cfg.Transport.SendBurst,
	})
	if err != nil {
		return err
	}

	store, err := storage.NewBoltStore(cfg.DataDir)
	if err != nil {
		_ = udp.Close()
		return err
	}
	defer store.Close()

	peers, err := addPeers(udp, store, cfg.Peers)
	if err != nil {
		_ = udp.Close()
		return err
	}

	n, err := node.New(&node.Config{
		Address:           cfg.Address,
		Conn:              udp,
		Store:             store,
		Peers:             peers,
		RequestTimeout:    cfg.Timing.RequestTimeout,
		HeartbeatInterval: cfg.Timing.HeartbeatInterval,
		PeerTimeout:       cfg.Timing.PeerTimeout,
		SweepInterval:     cfg.Timing.SweepInterval,
		SchedulerTick:     cfg.Timing.SchedulerTick,
	})
	if err != nil {
		_ = udp.Close()
		return fmt.Errorf("failed to create node: %v", err)
	}
	defer n.Close()

	n.RegisterSource(
		manager.Payload{Query: wire.CodeQueryTime, Periodic: true, ChangeBased: true},
		func(context.Context, *event.Event) (wire.Message, error) {
			return &wire.ReportTime{Time: time.Now()}, nil
		},
	)

	if watch, _ := cmd.Flags().GetBool("watch"); watch {
		sub := n.Broker().Subscribe()
		defer n.Broker().Unsubscribe(sub)
		go printNotices(sub)
	}

	var hs *api.HealthServer
	if cfg.Metrics.Enabled {
		hs = api.NewHealthServer(n, Version)
		go func() {
			if err := hs.Start(cfg.Metrics.Addr); err != nil {
				logger.Error().Err(err).Msg("Status server failed")
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runErr := make(chan error, 1)
	go func() { runErr <- n.Run(ctx) }()

	go func() {
		renewed, err := n.Resubscribe(ctx)
		if err != nil {
			logger.Warn().Err(err).Msg("Journal replay incomplete")
			return
		}
		if renewed > 0 {
			logger.Info().Int("subscriptions", renewed).Msg("Journal replayed")
		}
	}()

	fmt.Printf("Herald %s serving %s on %s\n", Version, cfg.Address, udp.LocalAddr())
	if hs != nil {
		fmt.Printf("  Health and metrics: http://%s\n", cfg.Metrics.Addr)
	}
	fmt.Println("Press Ctrl+C to stop.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case <-sigCh:
		fmt.Println("\nShutting down...")
	case err := <-runErr:
		if hs != nil {
			_ = hs.Shutdown(context.Background())
		}
		return err
	}

	shutdownCtx, stop := context.WithTimeout(ctx, 2*cfg.Timing.RequestTimeout)
	if err := n.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("Some cancels were not delivered")
	}
	stop()

	if err := savePeers(udp, store); err != nil {
		logger.Warn().Err(err).Msg("Failed to save peer table")
	}

	cancel()
	err = <-runErr
	if hs != nil {
		_ = hs.Shutdown(context.Background())
	}

	fmt.Println("✓ Shutdown complete")
	return err
}

// addPeers seeds the UDP peer table from the journal and then from the
// configuration, which wins. The configured addresses are returned as the
// heartbeat targets.
func addPeers(udp *transport.UDP, store storage.Store, configured []config.PeerConfig) ([]types.Address, error) {
	stored, err := store.ListPeers()
	if err != nil {
		return nil, fmt.Errorf("failed to read peer table: %v", err)
	}
	for _, p := range stored {
		if err := udp.AddPeer(p.Address, p.Endpoint); err != nil {
			log.Logger.Warn().Err(err).Stringer("peer", p.Address).Msg("Ignoring stored peer")
		}
	}

	peers := make([]types.Address, 0, len(configured))
	for _, p := range configured {
		if err := udp.AddPeer(p.Address, p.Endpoint); err != nil {
			return nil, fmt.Errorf("peer %s: %v", p.Address, err)
		}
		peers = append(peers, p.Address)
	}
	return peers, nil
}

// savePeers records the learned peer table so the next start can reach
// journaled providers before they speak first
func savePeers(udp *transport.UDP, store storage.Store) error {
	now := time.Now()
	for _, addr := range udp.Peers() {
		endpoint, ok := udp.Endpoint(addr)
		if !ok {
			continue
		}
		if err := store.PutPeer(&storage.Peer{Address: addr, Endpoint: endpoint, LastSeen: now}); err != nil {
			return err
		}
	}
	return nil
}

func printNotices(sub events.Subscriber) {
	for notice := range sub {
		fmt.Printf("%s  %-24s %s", notice.Timestamp.Format(time.RFC3339), notice.Type, notice.Message)
		if key, ok := notice.Metadata["event"]; ok {
			fmt.Printf("  [%s]", key)
		}
		fmt.Println()
	}
}
