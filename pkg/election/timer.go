package election

import (
	"math/rand"
	"time"
)

// randomElectionTimeout draws a timeout uniformly from [base, 2*base) to
// desynchronize followers and avoid split votes (Raft §5.2).
func randomElectionTimeout(base time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	return base + time.Duration(rand.Int63n(int64(base)))
}

// armElectionTimerLocked (re)arms the election timer with a freshly drawn
// random timeout. Caller must hold sm.mu.
//
// Cancellation uses a generation counter rather than Timer.Stop()+drain:
// every arm/stop bumps the generation, and a fired timer checks its
// captured generation against the current one before acting. This avoids
// the classic race where Stop() returns false because the timer already
// fired concurrently with the drain.
func (sm *StateMachine) armElectionTimerLocked() {
	sm.electionGen++
	gen := sm.electionGen
	d := randomElectionTimeout(sm.cfg.ElectionTimeout)
	time.AfterFunc(d, func() { sm.onElectionTimerFire(gen) })
}

// stopElectionTimerLocked invalidates any pending election timer fire.
// Caller must hold sm.mu.
func (sm *StateMachine) stopElectionTimerLocked() {
	sm.electionGen++
}

// onElectionTimerFire runs when an election timer fires. It is a no-op if
// the timer has since been re-armed/stopped (stale generation) or the node
// is a Leader (which doesn't use the election timer).
func (sm *StateMachine) onElectionTimerFire(gen uint64) {
	sm.mu.Lock()
	stale := gen != sm.electionGen
	isLeader := sm.role == Leader
	sm.mu.Unlock()

	if stale || isLeader {
		return
	}

	// Follower -> Candidate, or Candidate -> Candidate (restart with a new
	// term): both are driven by the same timeout per §4.2.
	sm.BecomeCandidate()
}

// armHeartbeatTimerLocked (re)arms the heartbeat-send timer for one
// heartbeatIntervalMs tick. Caller must hold sm.mu.
func (sm *StateMachine) armHeartbeatTimerLocked() {
	sm.heartbeatGen++
	gen := sm.heartbeatGen
	time.AfterFunc(sm.cfg.HeartbeatInterval, func() { sm.onHeartbeatTimerFire(gen) })
}

// stopHeartbeatTimerLocked invalidates any pending heartbeat timer fire.
// Caller must hold sm.mu.
func (sm *StateMachine) stopHeartbeatTimerLocked() {
	sm.heartbeatGen++
}

// onHeartbeatTimerFire runs when the heartbeat-send timer fires. It
// re-arms itself for the next tick (while still Leader) and notifies the
// driver via onHeartbeatTick, which is expected to fan out heartbeats
// without blocking.
func (sm *StateMachine) onHeartbeatTimerFire(gen uint64) {
	sm.mu.Lock()
	if gen != sm.heartbeatGen || sm.role != Leader {
		sm.mu.Unlock()
		return
	}
	sm.armHeartbeatTimerLocked()
	tick := sm.onHeartbeatTick
	sm.mu.Unlock()

	if tick != nil {
		tick()
	}
}
