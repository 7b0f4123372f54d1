// Command electiond runs one topic-scoped leader-election node: a serf
// gossip agent for membership, a gRPC transport for vote/heartbeat RPCs,
// and the election core gluing the two together.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hashicorp/serf/serf"
	"github.com/spf13/cobra"

	"github.com/sidecus/raftelect/pkg/clustergossip"
	"github.com/sidecus/raftelect/pkg/clustergrpc"
	"github.com/sidecus/raftelect/pkg/election"
	"github.com/sidecus/raftelect/pkg/util"
)

type options struct {
	topic             string
	nodeID            string
	rpcBind           string
	gossipBind        string
	joinAddrs         []string
	electionTimeout   time.Duration
	heartbeatInterval time.Duration
	voteTimeout       time.Duration
	logLevel          int
}

func main() {
	opts := &options{}

	root := &cobra.Command{
		Use:   "electiond",
		Short: "Run a per-topic leader-election node",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts)
		},
	}

	flags := root.Flags()
	flags.StringVar(&opts.topic, "topic", "default", "election topic this node participates in")
	flags.StringVar(&opts.nodeID, "node-id", "", "cluster-unique node id (defaults to rpc-bind)")
	flags.StringVar(&opts.rpcBind, "rpc-bind", "127.0.0.1:7946", "address the gRPC election transport listens on")
	flags.StringVar(&opts.gossipBind, "gossip-bind", "127.0.0.1:7373", "address the serf gossip agent listens on")
	flags.StringSliceVar(&opts.joinAddrs, "join", nil, "gossip addresses of existing cluster members to join")
	flags.DurationVar(&opts.electionTimeout, "election-timeout", 150*time.Millisecond, "base follower/candidate election timeout")
	flags.DurationVar(&opts.heartbeatInterval, "heartbeat-interval", 30*time.Millisecond, "leader heartbeat period")
	flags.DurationVar(&opts.voteTimeout, "vote-timeout", 150*time.Millisecond, "candidate vote-round deadline")
	flags.IntVar(&opts.logLevel, "log-level", util.LevelInfo, "log verbosity: 1=error 2=warning 3=info 4=trace")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := root.ExecuteContext(ctx); err != nil {
		util.WriteError("electiond: %s\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts *options) error {
	util.SetLogLevel(opts.logLevel)

	if opts.nodeID == "" {
		opts.nodeID = opts.rpcBind
	}

	transport := clustergrpc.NewTransport(opts.rpcBind)
	if err := transport.Start(); err != nil {
		return fmt.Errorf("starting rpc transport: %w", err)
	}
	defer transport.Stop()

	gossip, err := startGossip(opts)
	if err != nil {
		return fmt.Errorf("starting gossip agent: %w", err)
	}
	defer func() {
		if err := gossip.Leave(); err != nil {
			util.WriteWarning("electiond: leaving gossip cluster: %s\n", err)
		}
		_ = gossip.Shutdown()
	}()

	membership, err := clustergossip.NewAdapter(gossip, election.NodeID(opts.nodeID), opts.rpcBind)
	if err != nil {
		return fmt.Errorf("wiring membership adapter: %w", err)
	}

	cluster := &compositeCluster{
		MessagingHandle:  transport,
		MembershipHandle: membership,
	}

	cfg := election.Config{
		ElectionTimeout:   opts.electionTimeout,
		HeartbeatInterval: opts.heartbeatInterval,
		VoteTimeout:       opts.voteTimeout,
	}

	driver, err := election.NewDriver(cluster, election.Topic(opts.topic), cfg)
	if err != nil {
		return fmt.Errorf("creating election driver: %w", err)
	}

	if err := driver.Start(ctx); err != nil {
		return fmt.Errorf("starting election driver: %w", err)
	}
	defer driver.Shutdown()

	go logEvents(opts.nodeID, driver.Listen())

	util.WriteInfo("electiond: node %s joined topic %q, rpc=%s gossip=%s\n", opts.nodeID, opts.topic, opts.rpcBind, opts.gossipBind)

	<-ctx.Done()
	util.WriteInfo("electiond: shutting down node %s\n", opts.nodeID)
	return nil
}

// compositeCluster composes an independently-swappable messaging
// transport and membership adapter into one election.ClusterHandle, per
// SPEC_FULL.md §8.
type compositeCluster struct {
	election.MessagingHandle
	election.MembershipHandle
}

func startGossip(opts *options) (*serf.Serf, error) {
	conf := serf.DefaultConfig()
	conf.NodeName = opts.nodeID
	conf.MemberlistConfig.BindAddr, conf.MemberlistConfig.BindPort = splitHostPort(opts.gossipBind)

	node, err := serf.Create(conf)
	if err != nil {
		return nil, err
	}

	if len(opts.joinAddrs) > 0 {
		if _, err := node.Join(opts.joinAddrs, true); err != nil {
			util.WriteWarning("electiond: joining existing cluster: %s\n", err)
		}
	}

	return node, nil
}

func splitHostPort(addr string) (string, int) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return addr, 7373
	}
	port := 7373
	fmt.Sscanf(portStr, "%d", &port)
	return host, port
}

func logEvents(nodeID string, events <-chan election.Event) {
	for e := range events {
		leader := string(e.Leader)
		if leader == "" {
			leader = "(unknown)"
		}
		util.WriteInfo("electiond: node %s topic event %s term=%d leader=%s\n", nodeID, e.Kind, e.Term, leader)
	}
}
