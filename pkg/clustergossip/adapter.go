// Package clustergossip is a hashicorp/serf-backed implementation of
// election.MembershipHandle. It treats serf's member tags as the gossiped
// metadata map the election core reads peer topic membership from.
package clustergossip

import (
	"context"
	"fmt"

	"github.com/hashicorp/serf/serf"
	"github.com/sidecus/raftelect/pkg/election"
	"github.com/sidecus/raftelect/pkg/util"
)

// rpcAddrTag is the serf tag key a node publishes its gRPC transport
// address under, so peers discovered via gossip know where to dial them -
// serf's own Member.Addr is the gossip port, not the RPC one.
const rpcAddrTag = "rpc-addr"

// Adapter wraps a live *serf.Serf agent as an election.MembershipHandle.
type Adapter struct {
	node    *serf.Serf
	localID election.NodeID
}

var _ election.MembershipHandle = (*Adapter)(nil)

// NewAdapter wraps an already-joined serf.Serf instance. rpcAddr is this
// node's clustergrpc.Transport.LocalAddress(), published immediately as
// the rpcAddrTag so FindPeers can resolve dialable addresses for new
// members as soon as they're seen.
func NewAdapter(node *serf.Serf, localID election.NodeID, rpcAddr string) (*Adapter, error) {
	a := &Adapter{node: node, localID: localID}

	tags := copyTags(node.LocalMember().Tags)
	tags[rpcAddrTag] = rpcAddr
	if err := node.SetTags(tags); err != nil {
		return nil, fmt.Errorf("clustergossip: publishing rpc address tag: %w", err)
	}

	return a, nil
}

// LocalMemberID returns this node's cluster-unique id.
func (a *Adapter) LocalMemberID() election.NodeID {
	return a.localID
}

// OtherMembers returns every other alive serf member, translated into
// election.Member using each peer's gossiped rpc-addr tag.
func (a *Adapter) OtherMembers() []election.Member {
	local := a.node.LocalMember()

	var members []election.Member
	for _, m := range a.node.Members() {
		if m.Name == local.Name {
			continue
		}
		if m.Status != serf.StatusAlive {
			continue
		}

		addr := m.Tags[rpcAddrTag]
		if addr == "" {
			// Peer hasn't published its RPC address yet; skip it until
			// its next gossip update carries the tag (§4.5 churn
			// tolerance - callers must handle peers appearing/disappearing
			// between FindPeers calls).
			util.WriteTrace("clustergossip: member %s has no rpc-addr tag yet, skipping\n", m.Name)
			continue
		}

		members = append(members, election.Member{
			ID:      election.NodeID(m.Name),
			Address: addr,
		})
	}
	return members
}

// Metadata returns the gossiped tags for m, looked up by member name.
func (a *Adapter) Metadata(m election.Member) map[string]string {
	for _, sm := range a.node.Members() {
		if sm.Name == string(m.ID) {
			return copyTags(sm.Tags)
		}
	}
	return nil
}

// UpdateMetadataProperty merges key/value into this node's published tags
// and re-broadcasts them via serf's gossip layer.
func (a *Adapter) UpdateMetadataProperty(ctx context.Context, key, value string) error {
	tags := copyTags(a.node.LocalMember().Tags)
	tags[key] = value
	if err := a.node.SetTags(tags); err != nil {
		return fmt.Errorf("clustergossip: updating tag %q: %w", key, err)
	}
	return nil
}

func copyTags(src map[string]string) map[string]string {
	dst := make(map[string]string, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
