package election

// membershipTagValue is the metadata value peers publish to register
// themselves as participants of a given topic's election group (§4.3
// start(), §4.5).
const membershipTagValue = "leader-election"

// PeerDiscovery returns the current set of remote members participating in
// one election topic (§4.5).
type PeerDiscovery interface {
	FindPeers() []Member
}

// tagDiscovery implements PeerDiscovery by filtering a ClusterHandle's
// membership list against its gossiped metadata. It is the default,
// generic adapter: it works against any ClusterHandle implementation,
// gossip-backed or not, since membership/metadata are already abstracted
// behind the handle (§4.5 "returns all remote cluster members whose
// gossiped metadata contains an entry topic -> leader-election").
type tagDiscovery struct {
	cluster ClusterHandle
	topic   Topic
}

// NewPeerDiscovery builds the default tag-filtering peer discovery adapter.
func NewPeerDiscovery(cluster ClusterHandle, topic Topic) PeerDiscovery {
	return &tagDiscovery{cluster: cluster, topic: topic}
}

// FindPeers recomputes the peer set on every call - no caching, callers
// must tolerate churn between calls within a single election round (§4.5).
func (d *tagDiscovery) FindPeers() []Member {
	var peers []Member
	for _, m := range d.cluster.OtherMembers() {
		tags := d.cluster.Metadata(m)
		if tags[string(d.topic)] == membershipTagValue {
			peers = append(peers, m)
		}
	}
	return peers
}
