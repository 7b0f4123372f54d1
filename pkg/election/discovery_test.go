package election

import (
	"context"
	"testing"
)

// fakeCluster is a minimal in-memory ClusterHandle used across this
// package's tests - it never does real I/O, only tracks members/tags and
// optionally routes messages to other fakeClusters via a shared registry.
type fakeCluster struct {
	id      NodeID
	addr    string
	members []Member
	tags    map[string]map[string]string // member id -> tags
}

func newFakeCluster(id NodeID, addr string) *fakeCluster {
	return &fakeCluster{
		id:   id,
		addr: addr,
		tags: map[string]map[string]string{},
	}
}

func (f *fakeCluster) LocalAddress() string { return f.addr }

func (f *fakeCluster) Listen(ctx context.Context) (<-chan Message, error) {
	ch := make(chan Message)
	return ch, nil
}

func (f *fakeCluster) Send(ctx context.Context, addr string, msg Message) error {
	return nil
}

func (f *fakeCluster) RequestResponse(ctx context.Context, addr string, msg Message) (Message, error) {
	return Message{}, nil
}

func (f *fakeCluster) LocalMemberID() NodeID { return f.id }

func (f *fakeCluster) OtherMembers() []Member { return f.members }

func (f *fakeCluster) Metadata(m Member) map[string]string {
	return f.tags[string(m.ID)]
}

func (f *fakeCluster) UpdateMetadataProperty(ctx context.Context, key, value string) error {
	self := f.tags[string(f.id)]
	if self == nil {
		self = map[string]string{}
		f.tags[string(f.id)] = self
	}
	self[key] = value
	return nil
}

var _ ClusterHandle = (*fakeCluster)(nil)

func TestTagDiscoveryFiltersByTopicTag(t *testing.T) {
	cluster := newFakeCluster("self", "self:1")
	cluster.members = []Member{
		{ID: "peer1", Address: "peer1:1"},
		{ID: "peer2", Address: "peer2:1"},
		{ID: "peer3", Address: "peer3:1"},
	}
	cluster.tags["peer1"] = map[string]string{"orders": membershipTagValue}
	cluster.tags["peer2"] = map[string]string{"shipments": membershipTagValue}
	cluster.tags["peer3"] = map[string]string{"orders": "something-else"}

	discovery := NewPeerDiscovery(cluster, Topic("orders"))
	peers := discovery.FindPeers()

	if len(peers) != 1 || peers[0].ID != "peer1" {
		t.Errorf("expected only peer1 to match the orders topic tag, got %+v", peers)
	}
}

func TestTagDiscoveryReturnsEmptyWithNoPeers(t *testing.T) {
	cluster := newFakeCluster("self", "self:1")
	discovery := NewPeerDiscovery(cluster, Topic("orders"))

	if peers := discovery.FindPeers(); len(peers) != 0 {
		t.Errorf("expected no peers, got %+v", peers)
	}
}
