package election

import (
	"context"
	"sync"

	"github.com/sidecus/raftelect/pkg/util"
)

// majorityCount returns the number of YES votes (including self) needed
// for a quorum out of totalNodes participants - §9 open question 3,
// decided here as floor(totalNodes/2)+1, matching classic Raft majority
// and documented in DESIGN.md.
func majorityCount(totalNodes int) int {
	return totalNodes/2 + 1
}

// voteResult is the outcome of one peer's vote RPC.
type voteResult struct {
	resp VoteResponse
	err  error
}

// runElection runs one candidate vote-collection round for term, per
// §4.3's "Candidate election round". It is invoked whenever the state
// machine publishes BecameCandidate.
func (d *Driver) runElection(ctx context.Context, term Term) {
	roundCtx, cancel := context.WithTimeout(ctx, d.cfg.VoteTimeout)
	defer cancel()

	peers := d.discovery.FindPeers()
	if len(peers) == 0 {
		// Trivial majority of one (§4.3 step 2, §7 PeerSetEmpty).
		if d.sm.BecomeLeader(term) {
			util.WriteInfo("election: node %s became leader of topic %q at term %d (no peers)\n", d.localID(), d.topic, term)
		}
		return
	}

	req := VoteRequest{Term: term}
	results := make(chan voteResult, len(peers))

	for _, p := range peers {
		go func(p Member) {
			msg := NewVoteRequestMessage(d.topic, d.cluster.LocalAddress(), req)
			reply, err := d.cluster.RequestResponse(roundCtx, p.Address, msg)
			if err != nil {
				results <- voteResult{err: err}
				return
			}
			resp, ok := reply.Payload.(VoteResponse)
			if !ok {
				results <- voteResult{err: errUnexpectedPayload}
				return
			}
			results <- voteResult{resp: resp}
		}(p)
	}

	need := majorityCount(len(peers) + 1)

	for i := 0; i < len(peers); i++ {
		select {
		case <-roundCtx.Done():
			d.concedeElection(term)
			return
		case r := <-results:
			if r.err != nil {
				util.WriteTrace("election: vote request failed: %s\n", r.err)
				continue
			}
			if !r.resp.Granted {
				continue
			}

			count, stillCandidate := d.sm.RecordVote(r.resp.MemberID, term)
			if !stillCandidate {
				// The round was cancelled by a concurrent state change
				// (§4.3 step 6); nothing more to do.
				return
			}
			if count >= need {
				if d.sm.BecomeLeader(term) {
					util.WriteInfo("election: node %s became leader of topic %q at term %d (%d/%d votes)\n", d.localID(), d.topic, term, count, len(peers)+1)
				}
				return
			}
		}
	}

	// Exhausted all replies without reaching a majority before the round
	// deadline expired on its own terms.
	d.concedeElection(term)
}

// concedeElection steps down to Follower if we're still the candidate for
// term - the round may have already been resolved by a concurrent
// heartbeat or higher-term observation, in which case this is a no-op
// (BecomeFollower would reject a stale/lower term, and the role check
// inside the state machine already guards the common cases).
func (d *Driver) concedeElection(term Term) {
	if d.sm.Role() == Candidate && d.sm.Term() == term {
		_ = d.sm.BecomeFollower(term, "")
		util.WriteInfo("election: node %s lost election for topic %q at term %d, reverting to follower\n", d.localID(), d.topic, term)
	}
}

// sendHeartbeats runs one leader heartbeat round, driven by the state
// machine's heartbeat-send timer (§4.3 "Leader heartbeat round").
func (d *Driver) sendHeartbeats() {
	if d.sm.Role() != Leader {
		return
	}
	term := d.sm.Term()

	peers := d.discovery.FindPeers()
	if len(peers) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(d.ctx, d.cfg.ElectionTimeout)
	defer cancel()

	req := HeartbeatRequest{Term: term, LeaderID: d.localID()}

	var wg sync.WaitGroup
	wg.Add(len(peers))
	for _, p := range peers {
		go func(p Member) {
			defer wg.Done()
			msg := NewHeartbeatRequestMessage(d.topic, d.cluster.LocalAddress(), req)
			reply, err := d.cluster.RequestResponse(ctx, p.Address, msg)
			if err != nil {
				// Best-effort: a non-responding peer is silently
				// tolerated (§4.3, §7 TransientRpcFailure).
				util.WriteTrace("election: heartbeat to %s failed: %s\n", p.Address, err)
				return
			}
			resp, ok := reply.Payload.(HeartbeatResponse)
			if !ok {
				return
			}
			// §9 open question 4: we decide a passive higher-term
			// observation on a heartbeat reply also steps the leader
			// down immediately, rather than waiting for a future
			// heartbeat/vote to do it - see DESIGN.md.
			d.sm.ObserveTerm(resp.MemberID, resp.Term)
		}(p)
	}
	wg.Wait()
}
