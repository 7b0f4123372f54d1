package election

import (
	"context"
	"sync"
	"testing"
	"time"
)

// registry is a shared directory of routedClusters keyed by address, so a
// handful of in-process Driver instances can exchange real messages
// without any network or gossip layer.
type registry struct {
	mu    sync.Mutex
	nodes map[string]*routedCluster
}

func newRegistry() *registry {
	return &registry{nodes: map[string]*routedCluster{}}
}

// routedCluster mirrors clustergrpc.Transport's correlation-id routing
// (§ pkg/clustergrpc/transport.go) over an in-memory registry instead of
// gRPC, so driver tests can exercise the exact same request/reply
// protocol the real transport implements.
type routedCluster struct {
	*fakeCluster
	registry *registry
	inbound  chan Message

	mu      sync.Mutex
	pending map[string]chan Message
}

func newRoutedCluster(reg *registry, id NodeID, addr string) *routedCluster {
	rc := &routedCluster{
		fakeCluster: newFakeCluster(id, addr),
		registry:    reg,
		inbound:     make(chan Message, 32),
		pending:     map[string]chan Message{},
	}
	reg.mu.Lock()
	reg.nodes[addr] = rc
	reg.mu.Unlock()
	return rc
}

func (rc *routedCluster) Listen(ctx context.Context) (<-chan Message, error) {
	return rc.inbound, nil
}

// Send delivers msg to the node at addr: if that node has a pending
// RequestResponse call waiting on msg's correlation id, it's routed there
// as a reply; otherwise it's pushed onto the target's inbound channel as a
// fresh request.
func (rc *routedCluster) Send(ctx context.Context, addr string, msg Message) error {
	rc.registry.mu.Lock()
	target, ok := rc.registry.nodes[addr]
	rc.registry.mu.Unlock()
	if !ok {
		return nil
	}

	target.mu.Lock()
	replyCh, isReply := target.pending[msg.CorrelationID]
	target.mu.Unlock()

	if isReply {
		select {
		case replyCh <- msg:
		default:
		}
		return nil
	}

	select {
	case target.inbound <- msg:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

func (rc *routedCluster) RequestResponse(ctx context.Context, addr string, msg Message) (Message, error) {
	replyCh := make(chan Message, 1)

	rc.mu.Lock()
	rc.pending[msg.CorrelationID] = replyCh
	rc.mu.Unlock()
	defer func() {
		rc.mu.Lock()
		delete(rc.pending, msg.CorrelationID)
		rc.mu.Unlock()
	}()

	if err := rc.Send(ctx, addr, msg); err != nil {
		return Message{}, err
	}

	select {
	case reply := <-replyCh:
		return reply, nil
	case <-ctx.Done():
		return Message{}, ctx.Err()
	}
}

func fastTestConfig() Config {
	return Config{
		ElectionTimeout:   15 * time.Millisecond,
		HeartbeatInterval: 3 * time.Millisecond,
		VoteTimeout:       30 * time.Millisecond,
	}
}

// buildCluster wires n fully-connected routedClusters, each already
// knowing about every other as a peer tagged for topic - equivalent to a
// converged gossip membership view, which is what tagDiscovery assumes
// (§4.5 churn tolerance refers to future changes, not a cold start).
func buildCluster(n int, topic Topic) []*routedCluster {
	reg := newRegistry()
	nodes := make([]*routedCluster, n)
	for i := 0; i < n; i++ {
		id := NodeID(string(rune('a' + i)))
		addr := string(id) + ":0"
		nodes[i] = newRoutedCluster(reg, id, addr)
	}

	for i, node := range nodes {
		for j, peer := range nodes {
			if i == j {
				continue
			}
			node.members = append(node.members, Member{ID: peer.id, Address: peer.addr})
			node.tags[string(peer.id)] = map[string]string{string(topic): membershipTagValue}
		}
	}
	return nodes
}

func startDrivers(t *testing.T, ctx context.Context, nodes []*routedCluster, topic Topic, cfg Config) []*Driver {
	t.Helper()
	drivers := make([]*Driver, len(nodes))
	for i, n := range nodes {
		d, err := NewDriver(n, topic, cfg)
		if err != nil {
			t.Fatalf("NewDriver failed: %s", err)
		}
		if err := d.Start(ctx); err != nil {
			t.Fatalf("Start failed: %s", err)
		}
		drivers[i] = d
	}
	return drivers
}

func waitForLeader(t *testing.T, drivers []*Driver, timeout time.Duration) *Driver {
	t.Helper()
	deadline := time.After(timeout)
	ticker := time.NewTicker(2 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for a leader to be elected")
			return nil
		case <-ticker.C:
			for _, d := range drivers {
				if d.CurrentRole() == Leader {
					return d
				}
			}
		}
	}
}

func TestDriverSingleNodeBecomesLeaderOfEmptyPeerSet(t *testing.T) {
	nodes := buildCluster(1, "orders")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	drivers := startDrivers(t, ctx, nodes, "orders", fastTestConfig())
	defer drivers[0].Shutdown()

	waitForLeader(t, drivers, time.Second)
}

func TestDriverThreeNodeClusterElectsExactlyOneLeader(t *testing.T) {
	nodes := buildCluster(3, "orders")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	drivers := startDrivers(t, ctx, nodes, "orders", fastTestConfig())
	defer func() {
		for _, d := range drivers {
			d.Shutdown()
		}
	}()

	leader := waitForLeader(t, drivers, 2*time.Second)

	// Give the cluster a few heartbeat intervals to settle, then check
	// exactly one leader exists (§4.1 invariant 1 - election safety).
	time.Sleep(30 * time.Millisecond)
	leaderCount := 0
	for _, d := range drivers {
		if d.CurrentRole() == Leader {
			leaderCount++
		}
	}
	if leaderCount != 1 {
		t.Errorf("expected exactly one leader, found %d", leaderCount)
	}
	if leader.CurrentRole() != Leader {
		t.Error("previously elected leader is no longer leader")
	}
}

func TestDriverFollowersRecognizeLeaderViaHeartbeats(t *testing.T) {
	nodes := buildCluster(3, "orders")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	drivers := startDrivers(t, ctx, nodes, "orders", fastTestConfig())
	defer func() {
		for _, d := range drivers {
			d.Shutdown()
		}
	}()

	leader := waitForLeader(t, drivers, 2*time.Second)
	leaderID := leader.localID()

	deadline := time.After(time.Second)
	ticker := time.NewTicker(2 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for followers to learn the leader")
			return
		case <-ticker.C:
			allKnow := true
			for _, d := range drivers {
				view := d.LeaderView()
				if !view.Known || view.Leader != leaderID {
					allKnow = false
				}
			}
			if allKnow {
				return
			}
		}
	}
}

func TestDriverEventsAreReportedInOrder(t *testing.T) {
	nodes := buildCluster(1, "orders")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	drivers := startDrivers(t, ctx, nodes, "orders", fastTestConfig())
	defer drivers[0].Shutdown()

	events := drivers[0].Listen()

	var kinds []EventKind
	deadline := time.After(time.Second)
	for len(kinds) < 2 {
		select {
		case e := <-events:
			kinds = append(kinds, e.Kind)
		case <-deadline:
			t.Fatalf("timed out waiting for events, got %v so far", kinds)
		}
	}

	if kinds[0] != BecameCandidate || kinds[1] != BecameLeader {
		t.Errorf("expected [BecameCandidate, BecameLeader], got %v", kinds)
	}
}
