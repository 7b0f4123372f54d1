package election

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sidecus/raftelect/pkg/util"
)

// subscriberBufferSize bounds each external subscriber's event channel.
const subscriberBufferSize = 8

// errUnexpectedPayload is returned internally when a reply's payload isn't
// the type we asked for; treated like any other transient RPC failure.
var errUnexpectedPayload = errors.New("election: unexpected reply payload type")

// ErrClusterUnavailable is returned by Start when the cluster collaborator
// can't be reached - the only fatal failure mode in this package (§7).
var ErrClusterUnavailable = errors.New("election: cluster collaborator unavailable")

// Driver glues the state machine to the cluster (§4.3). One Driver exists
// per (node, topic) pair.
type Driver struct {
	cluster   ClusterHandle
	topic     Topic
	cfg       Config
	sm        *StateMachine
	discovery PeerDiscovery

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	subMu       sync.Mutex
	subscribers []chan Event
}

// NewDriver creates a driver for one (node, topic) pair. The state machine
// and discovery adapter are created here and destroyed at Shutdown, per
// §3's ownership rule.
func NewDriver(cluster ClusterHandle, topic Topic, cfg Config) (*Driver, error) {
	if cluster == nil {
		util.Panicln("election: NewDriver called with nil cluster handle")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("election: invalid config: %w", err)
	}

	d := &Driver{
		cluster:   cluster,
		topic:     topic,
		cfg:       cfg,
		sm:        NewStateMachine(cluster.LocalMemberID(), 0, cfg),
		discovery: NewPeerDiscovery(cluster, topic),
	}
	d.sm.SetHeartbeatTickHandler(d.sendHeartbeats)

	return d, nil
}

// Start subscribes to inbound cluster messages, advertises this node as a
// member of the election topic, and enters Follower (§4.3).
func (d *Driver) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	d.ctx = runCtx
	d.cancel = cancel

	msgs, err := d.cluster.Listen(runCtx)
	if err != nil {
		cancel()
		return fmt.Errorf("%w: %s", ErrClusterUnavailable, err)
	}

	if err := d.cluster.UpdateMetadataProperty(runCtx, string(d.topic), membershipTagValue); err != nil {
		cancel()
		return fmt.Errorf("%w: publishing membership tag: %s", ErrClusterUnavailable, err)
	}

	d.wg.Add(2)
	go d.dispatchLoop(runCtx, msgs)
	go d.fanoutLoop(runCtx)

	d.sm.Arm()

	util.WriteInfo("election: node %s started for topic %q\n", d.cluster.LocalMemberID(), d.topic)
	return nil
}

// Shutdown stops timers, unsubscribes from inbound messages, and closes
// subscriber channels. In-flight RPCs are allowed to complete or be
// abandoned without effect on state (§4.3, §5).
func (d *Driver) Shutdown() {
	if d.cancel != nil {
		d.cancel()
	}
	d.sm.Disarm()
	d.wg.Wait()

	d.subMu.Lock()
	for _, ch := range d.subscribers {
		close(ch)
	}
	d.subscribers = nil
	d.subMu.Unlock()
}

// CurrentRole returns the node's current role.
func (d *Driver) CurrentRole() Role {
	return d.sm.Role()
}

// LeaderView returns a snapshot of what's known about leadership.
func (d *Driver) LeaderView() LeaderView {
	return d.sm.LeaderView()
}

// Listen returns a stream of ElectionEvents. Subscribers hold weak views:
// their presence or absence never affects progress, and a slow subscriber
// has events dropped rather than blocking the election loop (§3, §5).
func (d *Driver) Listen() <-chan Event {
	ch := make(chan Event, subscriberBufferSize)
	d.subMu.Lock()
	d.subscribers = append(d.subscribers, ch)
	d.subMu.Unlock()
	return ch
}

func (d *Driver) localID() NodeID {
	return d.cluster.LocalMemberID()
}

// dispatchLoop fans inbound messages out to goroutines, fire-and-forget
// from the driver's perspective (§4.3).
func (d *Driver) dispatchLoop(ctx context.Context, msgs <-chan Message) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			go d.dispatch(ctx, msg)
		}
	}
}

// dispatch classifies one inbound message by its topic-scoped qualifier
// and handles it; anything else is ignored (§4.3).
func (d *Driver) dispatch(ctx context.Context, msg Message) {
	switch {
	case IsVote(d.topic, msg.Qualifier):
		d.handleVoteRequest(ctx, msg)
	case IsHeartbeat(d.topic, msg.Qualifier):
		d.handleHeartbeatRequest(ctx, msg)
	}
}

// handleVoteRequest implements §4.3's vote dispatch rule.
func (d *Driver) handleVoteRequest(ctx context.Context, msg Message) {
	req, ok := msg.Payload.(VoteRequest)
	if !ok {
		return
	}

	// If currently Candidate or Leader and the request carries a higher
	// term, step down to Follower at that term before evaluating the
	// grant (§4.3, invariant 5). A VoteRequest carries only a term, so the
	// leader is left unknown until a heartbeat for that term arrives.
	if req.Term > d.sm.Term() && d.sm.Role() != Follower {
		_ = d.sm.BecomeFollower(req.Term, "")
	}

	granted := d.sm.GrantVote(req.Term)
	resp := VoteResponse{Granted: granted, MemberID: d.localID()}
	reply := NewVoteResponseMessage(d.topic, d.cluster.LocalAddress(), msg.CorrelationID, resp)

	if err := d.cluster.Send(ctx, msg.SenderAddress, reply); err != nil {
		util.WriteTrace("election: failed to send vote reply to %s: %s\n", msg.SenderAddress, err)
	}
}

// handleHeartbeatRequest implements §4.3's heartbeat dispatch rule.
func (d *Driver) handleHeartbeatRequest(ctx context.Context, msg Message) {
	req, ok := msg.Payload.(HeartbeatRequest)
	if !ok {
		return
	}

	d.sm.Heartbeat(req.LeaderID, req.Term)

	resp := HeartbeatResponse{MemberID: d.localID(), Term: d.sm.Term()}
	reply := NewHeartbeatResponseMessage(d.topic, d.cluster.LocalAddress(), msg.CorrelationID, resp)

	if err := d.cluster.Send(ctx, msg.SenderAddress, reply); err != nil {
		util.WriteTrace("election: failed to send heartbeat reply to %s: %s\n", msg.SenderAddress, err)
	}
}

// fanoutLoop is the single consumer of the state machine's event pipe. It
// reacts to role-entry events that require driver-level work (starting an
// election round) and republishes every event to external subscribers in
// the exact order transitions occurred (§5 Ordering guarantees).
func (d *Driver) fanoutLoop(ctx context.Context) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-d.sm.Events():
			if !ok {
				return
			}
			if e.Kind == BecameCandidate {
				go d.runElection(ctx, e.Term)
			}
			d.broadcast(e)
		}
	}
}

// broadcast fans e out to every current subscriber, dropping (with a
// logged warning) rather than blocking on a slow one (§5).
func (d *Driver) broadcast(e Event) {
	d.subMu.Lock()
	subs := make([]chan Event, len(d.subscribers))
	copy(subs, d.subscribers)
	d.subMu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- e:
		default:
			util.WriteWarning("election: dropping %s event for a slow subscriber\n", e.Kind)
		}
	}
}
