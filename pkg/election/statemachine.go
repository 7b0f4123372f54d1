package election

import (
	"errors"
	"sync"
	"time"

	"github.com/sidecus/raftelect/pkg/util"
)

// eventBufferSize bounds the state machine's internal event pipe. The
// driver drains it continuously; the bound only matters if the driver's
// fan-out goroutine is itself stuck, in which case we'd rather drop than
// stall role transitions.
const eventBufferSize = 16

// ErrInvalidTransition names a transition requested from a role that
// doesn't support it. No StateMachine method returns it: BecomeLeader
// reports that case (e.g. BecomeLeader from Follower) by returning false.
var ErrInvalidTransition = errors.New("election: invalid role transition")

// ErrStaleTerm is returned when a caller tries to move the term backwards.
var ErrStaleTerm = errors.New("election: term may not move backwards")

// Config holds the three timing knobs the election core needs (§4.2, §6).
type Config struct {
	// ElectionTimeout is the base follower/candidate timeout; the actual
	// armed duration is drawn uniformly from [ElectionTimeout, 2*ElectionTimeout).
	ElectionTimeout time.Duration

	// HeartbeatInterval is the leader's heartbeat period. Should be at
	// least an order of magnitude smaller than ElectionTimeout.
	HeartbeatInterval time.Duration

	// VoteTimeout is the candidate's per-round deadline for collecting a
	// majority.
	VoteTimeout time.Duration
}

// Validate checks the configured durations are sane and logs a warning if
// HeartbeatInterval isn't comfortably smaller than ElectionTimeout.
func (c Config) Validate() error {
	if c.ElectionTimeout <= 0 {
		return errors.New("election: ElectionTimeout must be positive")
	}
	if c.HeartbeatInterval <= 0 {
		return errors.New("election: HeartbeatInterval must be positive")
	}
	if c.VoteTimeout <= 0 {
		return errors.New("election: VoteTimeout must be positive")
	}
	if c.HeartbeatInterval*10 > c.ElectionTimeout {
		util.WriteWarning("election: HeartbeatInterval %s is not comfortably smaller than ElectionTimeout %s\n", c.HeartbeatInterval, c.ElectionTimeout)
	}
	return nil
}

// StateMachine holds role, term, and known-leader for one (node, topic)
// pair, and owns the election/heartbeat timers. All mutation is serialized
// on mu; critical sections are O(1) - no network I/O is ever done while
// holding it (§4.2, §5).
type StateMachine struct {
	mu sync.Mutex

	cfg     Config
	localID NodeID

	role        Role
	term        termRegister
	knownLeader NodeID
	hasLeader   bool

	// followerEventTerm is the term of the last published BecameFollower
	// event, used to satisfy the
	// "repeated becomeFollower(T) with the same T produces at most one
	// event" law without tracking full event history.
	followerEventTerm Term
	haveFollowerEvent bool

	votes map[NodeID]bool

	electionGen  uint64
	heartbeatGen uint64

	// onHeartbeatTick is invoked (off the state machine's lock) whenever
	// the heartbeat-send timer fires while Leader. It is not a role-entry
	// event - heartbeats tick many times per term without a transition.
	onHeartbeatTick func()

	events chan Event
}

// NewStateMachine creates a state machine for localID, starting at
// Follower and the given initial term (0, or a term recovered by the
// hosting driver at start - §4.2).
func NewStateMachine(localID NodeID, initialTerm Term, cfg Config) *StateMachine {
	sm := &StateMachine{
		cfg:     cfg,
		localID: localID,
		role:    Follower,
		events:  make(chan Event, eventBufferSize),
	}
	sm.term.UpdateTo(initialTerm)
	return sm
}

// SetHeartbeatTickHandler registers the callback invoked on every
// heartbeat-send timer tick while Leader. Must be called before Arm.
func (sm *StateMachine) SetHeartbeatTickHandler(fn func()) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.onHeartbeatTick = fn
}

// Events returns the state machine's raw event pipe. It is meant to be
// drained exactly once, by the owning driver's fan-out goroutine (§3
// Ownership & lifecycle: the broadcast channel itself is owned by the
// driver, not the state machine).
func (sm *StateMachine) Events() <-chan Event {
	return sm.events
}

// Arm starts the state machine's timers. Call once, from the driver's
// Start().
func (sm *StateMachine) Arm() {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.armElectionTimerLocked()
}

// Disarm stops both timers. Any already-fired-but-not-yet-processed timer
// callbacks become no-ops via the generation check.
func (sm *StateMachine) Disarm() {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.stopElectionTimerLocked()
	sm.stopHeartbeatTimerLocked()
}

// Role returns the current role.
func (sm *StateMachine) Role() Role {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.role
}

// Term returns the current term.
func (sm *StateMachine) Term() Term {
	return sm.term.Current()
}

// LeaderView returns a snapshot of what's known about leadership.
func (sm *StateMachine) LeaderView() LeaderView {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return LeaderView{Self: sm.localID, Leader: sm.knownLeader, Known: sm.hasLeader}
}

// publish emits an event, dropping it with a logged warning if the buffer
// is full rather than blocking the caller (§5 Shared resources).
func (sm *StateMachine) publish(e Event) {
	select {
	case sm.events <- e:
	default:
		util.WriteWarning("election: dropping %s event for term %d, event buffer full\n", e.Kind, e.Term)
	}
}

// BecomeCandidate transitions Follower/Candidate -> Candidate, incrementing
// the term for a new election (§4.2). Returns the new term.
func (sm *StateMachine) BecomeCandidate() Term {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	newTerm := sm.term.Next()
	sm.role = Candidate
	sm.knownLeader = ""
	sm.hasLeader = false
	sm.votes = map[NodeID]bool{sm.localID: true}
	sm.stopHeartbeatTimerLocked()
	sm.armElectionTimerLocked()

	sm.publish(Event{Kind: BecameCandidate, Term: newTerm})
	return newTerm
}

// RecordVote records a granted vote from voterID for the given term, and
// reports the number of granted votes collected so far for that term (the
// caller - the driver's vote round - decides what counts as a majority,
// since it alone knows the current peer set size).
func (sm *StateMachine) RecordVote(voterID NodeID, term Term) (count int, stillCandidate bool) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.role != Candidate || term != sm.term.Current() {
		return 0, false
	}

	if sm.votes == nil {
		sm.votes = map[NodeID]bool{}
	}
	sm.votes[voterID] = true
	return len(sm.votes), true
}

// BecomeLeader transitions Candidate -> Leader for the given term. It
// fails (returns false) if the node is no longer Candidate for that term -
// e.g. a higher-term message arrived while the vote round was in flight
// (§4.3 step 6: "the round is cancelled if the state machine leaves
// Candidate for any other reason").
func (sm *StateMachine) BecomeLeader(term Term) bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.role != Candidate || term != sm.term.Current() {
		return false
	}

	sm.role = Leader
	sm.knownLeader = sm.localID
	sm.hasLeader = true
	sm.stopElectionTimerLocked()
	sm.armHeartbeatTimerLocked()

	sm.publish(Event{Kind: BecameLeader, Term: term, Leader: sm.localID})
	return true
}

// BecomeFollower transitions Any -> Follower, per §4.2's "Any -> Follower:
// becomeFollower(t) called with t >= currentTerm". Returns ErrStaleTerm if
// t is behind the current term.
func (sm *StateMachine) BecomeFollower(term Term, leaderID NodeID) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if term < sm.term.Current() {
		return ErrStaleTerm
	}

	sm.term.UpdateTo(term)
	sm.enterFollowerLocked(term, leaderID)
	return nil
}

// enterFollowerLocked performs the actual Follower entry. Caller holds mu.
func (sm *StateMachine) enterFollowerLocked(term Term, leaderID NodeID) {
	emit := sm.role != Follower || !sm.haveFollowerEvent || sm.followerEventTerm != term

	sm.role = Follower
	sm.knownLeader = leaderID
	sm.hasLeader = leaderID != ""
	sm.stopHeartbeatTimerLocked()
	sm.armElectionTimerLocked()

	if emit {
		sm.followerEventTerm = term
		sm.haveFollowerEvent = true
		sm.publish(Event{Kind: BecameFollower, Term: term, Leader: leaderID})
	}
}

// Heartbeat processes an inbound heartbeat from peerID at peerTerm,
// implementing §4.2's three-way branch exactly.
func (sm *StateMachine) Heartbeat(peerID NodeID, peerTerm Term) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	cur := sm.term.Current()
	switch {
	case peerTerm > cur:
		sm.term.UpdateTo(peerTerm)
		sm.enterFollowerLocked(peerTerm, peerID)
	case peerTerm == cur:
		switch sm.role {
		case Candidate:
			sm.enterFollowerLocked(cur, peerID)
		case Follower:
			sm.knownLeader = peerID
			sm.hasLeader = true
			sm.armElectionTimerLocked()
		case Leader:
			// A same-term heartbeat from someone else while we're leader
			// shouldn't happen under election safety; ignore defensively.
		}
	default:
		// peerTerm < cur: stale, ignore (§7 StaleTerm).
	}
}

// ObserveTerm folds a peer's term into ours without being a full heartbeat
// or vote request. If peerTerm is strictly greater, we step down to
// Follower and treat peerID as a potential leader for that term until a
// real heartbeat tells us otherwise - see §9 open question 1 and
// DESIGN.md for why the source node, not just the term, is trusted here.
// Returns true if this caused a step-down.
func (sm *StateMachine) ObserveTerm(peerID NodeID, peerTerm Term) bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if peerTerm <= sm.term.Current() {
		return false
	}

	sm.term.UpdateTo(peerTerm)
	sm.enterFollowerLocked(peerTerm, peerID)
	return true
}

// GrantVote reports whether a vote should be granted for reqTerm under the
// current role/term, per §4.3's dispatch rule: granted = (reqTerm >
// currentTerm) AND (role == Follower). It does not itself mutate state;
// the driver is responsible for transitioning Candidate -> Follower at
// reqTerm first when needed (§4.3), then calling this.
func (sm *StateMachine) GrantVote(reqTerm Term) bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return reqTerm > sm.term.Current() && sm.role == Follower
}
