package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuemby/herald/pkg/config"
	"github.com/cuemby/herald/pkg/event"
	"github.com/cuemby/herald/pkg/log"
	"github.com/cuemby/herald/pkg/node"
	"github.com/cuemby/herald/pkg/transport"
	"github.com/cuemby/herald/pkg/types"
	"github.com/cuemby/herald/pkg/wire"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// client is a short-lived node used by the one-shot commands. It binds an
// ephemeral port unless --listen is given and knows a single provider.
type client struct {
	cfg    *config.Config
	udp    *transport.UDP
	node   *node.Node
	cancel context.CancelFunc
	done   chan error
}

func dial(cmd *cobra.Command, provider types.Address) (*client, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if !cmd.Flags().Changed("listen") {
		cfg.Listen = "0.0.0.0:0"
	}

	log.Init(log.Config{
		Level:      log.ParseLevel(cfg.Log.Level),
		JSONOutput: cfg.Log.JSON,
		Output:     os.Stderr,
	})

	udp, err := transport.ListenUDP(transport.UDPConfig{
		Listen:    cfg.Listen,
		SendRate:  cfg.Transport.SendRate,
		SendBurst: cfg.Transport.SendBurst,
	})
	if err != nil {
		return nil, err
	}

	endpoint, _ := cmd.Flags().GetString("endpoint")
	if err := udp.AddPeer(provider, endpoint); err != nil {
		_ = udp.Close()
		return nil, fmt.Errorf("invalid endpoint: %v", err)
	}

	n, err := node.New(&node.Config{
		Address:        cfg.Address,
		Conn:           udp,
		RequestTimeout: cfg.Timing.RequestTimeout,
		PeerTimeout:    cfg.Timing.PeerTimeout,
		SweepInterval:  cfg.Timing.SweepInterval,
		SchedulerTick:  cfg.Timing.SchedulerTick,
	})
	if err != nil {
		_ = udp.Close()
		return nil, fmt.Errorf("failed to create node: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &client{cfg: cfg, udp: udp, node: n, cancel: cancel, done: make(chan error, 1)}
	go func() { c.done <- n.Run(ctx) }()
	return c, nil
}

// requestContext bounds one exchange with the provider
func (c *client) requestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 2*c.cfg.Timing.RequestTimeout)
}

func (c *client) close() error {
	c.cancel()
	err := <-c.done
	if cerr := c.node.Close(); err == nil {
		err = cerr
	}
	return err
}

func addEndpointFlag(cmd *cobra.Command) {
	cmd.Flags().String("endpoint", "", "UDP endpoint (host:port) of the provider")
	_ = cmd.MarkFlagRequired("endpoint")
}

// Subscribe command

var subscribeCmd = &cobra.Command{
	Use:   "subscribe PROVIDER --endpoint HOST:PORT",
	Short: "Subscribe to an event and print its notifications",
	Long: `Subscribe to an event of the provider component and print each
notification as YAML. The subscription is canceled on exit.

Examples:
  # Current time of 2.1.1.1 ten times a second, five notifications
  herald subscribe 2.1.1.1 --endpoint 10.0.0.2:3794 --address 1.1.9.1 --rate 10

  # Every change until interrupted
  herald subscribe 2.1.1.1 --endpoint 10.0.0.2:3794 --kind every-change --count 0`,
	Args: cobra.ExactArgs(1),
	RunE: runSubscribe,
}

func init() {
	addEndpointFlag(subscribeCmd)
	addSetupFlags(subscribeCmd.Flags())
	subscribeCmd.Flags().Int("count", 5, "Notifications to print before canceling, 0 for no limit")
}

func addSetupFlags(flags *pflag.FlagSet) {
	flags.String("payload", "QueryTime", "Query whose response is delivered (name or code)")
	flags.String("kind", "periodic", "Event kind")
	flags.Float64("rate", 1, "Requested rate in Hz for periodic kinds")
	flags.Float64("min-rate", 0, "Lowest acceptable rate in Hz")
	flags.String("boundary", "", "Trigger comparison for change-based kinds")
	flags.Uint8("limit-field", 0, "Payload field the trigger compares")
	flags.Float64("lower", 0, "Lower limit of the trigger")
	flags.Float64("upper", 0, "Upper limit of the trigger")
	flags.Float64("state", 0, "State value of the trigger")
}

// setupFromFlags builds the requested event setup. Optional fields are
// present only when their flag was given.
func setupFromFlags(flags *pflag.FlagSet) (wire.EventSetup, error) {
	var setup wire.EventSetup

	payload, _ := flags.GetString("payload")
	code, err := wire.ParseCode(payload)
	if err != nil {
		return setup, err
	}
	setup.PayloadType = code

	kindName, _ := flags.GetString("kind")
	kind, err := types.ParseEventKind(kindName)
	if err != nil {
		return setup, err
	}
	setup.Kind = kind

	if kind.IsPeriodic() || flags.Changed("rate") {
		r, _ := flags.GetFloat64("rate")
		setup.RequestedRate = &r
	}
	if flags.Changed("min-rate") {
		r, _ := flags.GetFloat64("min-rate")
		setup.MinimumRate = &r
	}

	if flags.Changed("boundary") {
		name, _ := flags.GetString("boundary")
		b, err := types.ParseBoundaryType(name)
		if err != nil {
			return setup, err
		}
		setup.Conditions.Boundary = &b
	}
	if flags.Changed("limit-field") {
		v, _ := flags.GetUint8("limit-field")
		setup.Conditions.LimitField = &v
	}
	for name, dst := range map[string]**float64{
		"lower": &setup.Conditions.LowerLimit,
		"upper": &setup.Conditions.UpperLimit,
		"state": &setup.Conditions.State,
	} {
		if flags.Changed(name) {
			v, _ := flags.GetFloat64(name)
			*dst = &v
		}
	}
	return setup, nil
}

// notificationView is the printed form of a notification
type notificationView struct {
	Event      string    `yaml:"event"`
	Sequence   uint8     `yaml:"sequence"`
	Missed     int       `yaml:"missed,omitempty"`
	ReceivedAt time.Time `yaml:"received_at"`
	Payload    any       `yaml:"payload"`
}

func runSubscribe(cmd *cobra.Command, args []string) error {
	provider, err := types.ParseAddress(args[0])
	if err != nil {
		return err
	}
	setup, err := setupFromFlags(cmd.Flags())
	if err != nil {
		return err
	}
	count, _ := cmd.Flags().GetInt("count")

	c, err := dial(cmd, provider)
	if err != nil {
		return err
	}
	defer c.close()

	notes := make(chan node.Notification, 64)
	c.node.OnNotification(func(note node.Notification) {
		select {
		case notes <- note:
		default:
		}
	})

	ctx, stop := c.requestContext()
	e, err := c.node.Subscribe(ctx, provider, setup)
	stop()
	if err != nil {
		return fmt.Errorf("subscription failed: %v", err)
	}
	fmt.Fprintf(os.Stderr, "Subscribed to %s (%s at %.2f Hz)\n", e.Key(), e.Kind, e.Rate)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	printed := 0
loop:
	for count == 0 || printed < count {
		select {
		case note := <-notes:
			view := notificationView{
				Event:      note.Key.String(),
				Sequence:   note.Sequence,
				Missed:     note.Missed,
				ReceivedAt: note.ReceivedAt,
				Payload:    note.Payload,
			}
			if err := printYAML([]notificationView{view}); err != nil {
				return err
			}
			printed++
		case <-sigCh:
			break loop
		}
	}

	ctx, stop = c.requestContext()
	defer stop()
	if err := c.node.Cancel(ctx, e.Key()); err != nil {
		return fmt.Errorf("failed to cancel %s: %v", e.Key(), err)
	}
	fmt.Fprintf(os.Stderr, "Canceled %s\n", e.Key())
	return nil
}

// Query command

var queryCmd = &cobra.Command{
	Use:   "query PROVIDER --endpoint HOST:PORT",
	Short: "List the events a provider produces",
	Args:  cobra.ExactArgs(1),
	RunE:  runQuery,
}

func init() {
	addEndpointFlag(queryCmd)
	queryCmd.Flags().String("payload", "", "Only events of this query (name or code)")
	queryCmd.Flags().String("kind", "", "Only events of this kind")
	queryCmd.Flags().Uint8("id", 0, "Only the event with this id")
}

// reportView is the printed form of one reported event
type reportView struct {
	Key         string            `yaml:"key"`
	EventID     uint8             `yaml:"event_id"`
	PayloadType string            `yaml:"payload_type"`
	Kind        string            `yaml:"kind"`
	Conditions  *types.Conditions `yaml:"conditions,omitempty"`
	Template    bool              `yaml:"template,omitempty"`
}

func runQuery(cmd *cobra.Command, args []string) error {
	provider, err := types.ParseAddress(args[0])
	if err != nil {
		return err
	}

	q := &wire.QueryEvents{}
	if payload, _ := cmd.Flags().GetString("payload"); payload != "" {
		code, err := wire.ParseCode(payload)
		if err != nil {
			return err
		}
		q.PayloadType = &code
	}
	if name, _ := cmd.Flags().GetString("kind"); name != "" {
		kind, err := types.ParseEventKind(name)
		if err != nil {
			return err
		}
		q.Kind = &kind
	}
	if cmd.Flags().Changed("id") {
		id, _ := cmd.Flags().GetUint8("id")
		q.EventID = &id
	}

	c, err := dial(cmd, provider)
	if err != nil {
		return err
	}
	defer c.close()

	ctx, stop := c.requestContext()
	defer stop()
	report, err := c.node.Query(ctx, provider, q)
	if err != nil {
		return fmt.Errorf("query failed: %v", err)
	}

	return printYAML(reportViews(provider, report.Events))
}

func reportViews(provider types.Address, reports []wire.EventReport) []reportView {
	views := make([]reportView, 0, len(reports))
	for _, r := range reports {
		e := event.FromReport(r, provider)
		views = append(views, reportView{
			Key:         e.Key().String(),
			EventID:     e.ID,
			PayloadType: e.PayloadType.String(),
			Kind:        e.Kind.String(),
			Conditions:  e.Conditions,
			Template:    e.Template != nil,
		})
	}
	return views
}

// Cancel command

var cancelCmd = &cobra.Command{
	Use:   "cancel PROVIDER --endpoint HOST:PORT --payload CODE --id ID",
	Short: "Cancel a subscription held at a provider",
	Long: `Send a cancel request for an event id to the provider. This is the
way to release a subscription left behind by a component that stopped
without canceling.`,
	Args: cobra.ExactArgs(1),
	RunE: runCancel,
}

func init() {
	addEndpointFlag(cancelCmd)
	cancelCmd.Flags().String("payload", "QueryTime", "Query of the event (name or code)")
	cancelCmd.Flags().Uint8("id", 0, "Event id")
	_ = cancelCmd.MarkFlagRequired("id")
}

func runCancel(cmd *cobra.Command, args []string) error {
	provider, err := types.ParseAddress(args[0])
	if err != nil {
		return err
	}
	payload, _ := cmd.Flags().GetString("payload")
	code, err := wire.ParseCode(payload)
	if err != nil {
		return err
	}
	id, _ := cmd.Flags().GetUint8("id")

	c, err := dial(cmd, provider)
	if err != nil {
		return err
	}
	defer c.close()

	req := &wire.CancelEvent{PayloadType: &code, EventID: &id}
	packet, err := wire.Marshal(provider, c.cfg.Address, req)
	if err != nil {
		return err
	}

	ctx, stop := c.requestContext()
	defer stop()
	header := wire.Header{Code: wire.CodeCancelEvent, Destination: provider, Source: c.cfg.Address}
	reply, err := c.udp.SendAndWait(ctx, packet,
		transport.ReplyTo(header, wire.CodeConfirmEventRequest, wire.CodeRejectEventRequest))
	if err != nil {
		return fmt.Errorf("no answer from %s: %v", provider, err)
	}

	msg, err := reply.Decode(wire.DefaultRegistry)
	if err != nil {
		return err
	}
	switch m := msg.(type) {
	case *wire.ConfirmEventRequest:
		fmt.Printf("✓ Canceled %s event %d at %s\n", m.PayloadType, m.EventID, provider)
		return nil
	case *wire.RejectEventRequest:
		return fmt.Errorf("cancel rejected: %s", m.ResponseCode)
	default:
		return fmt.Errorf("unexpected reply %s", reply.Code)
	}
}
