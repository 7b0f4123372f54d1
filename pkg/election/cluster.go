package election

import "context"

// MessagingHandle is the transport half of ClusterHandle: everything
// needed to exchange topic-scoped messages with a specific address. A
// concrete transport (e.g. gRPC) implements this without knowing anything
// about cluster membership.
type MessagingHandle interface {
	// LocalAddress returns the address other members use to reach this node.
	LocalAddress() string

	// Listen returns a channel of all inbound transport messages.
	Listen(ctx context.Context) (<-chan Message, error)

	// Send delivers msg to addr without waiting for a reply.
	Send(ctx context.Context, addr string, msg Message) error

	// RequestResponse delivers msg to addr and waits for the correlated
	// reply, or ctx expiring.
	RequestResponse(ctx context.Context, addr string, msg Message) (Message, error)
}

// MembershipHandle is the gossip/membership half of ClusterHandle. A
// concrete membership layer (e.g. a serf-backed adapter) implements this
// without knowing anything about message transport.
type MembershipHandle interface {
	// LocalMemberID returns this node's cluster-unique id.
	LocalMemberID() NodeID

	// OtherMembers returns the current set of remote cluster members, with
	// no caching - callers must tolerate churn between calls (§4.5).
	OtherMembers() []Member

	// Metadata returns the gossiped metadata tags for a member.
	Metadata(m Member) map[string]string

	// UpdateMetadataProperty advertises a gossip metadata key/value so peers
	// can discover this node as a group member.
	UpdateMetadataProperty(ctx context.Context, key, value string) error
}

// ClusterHandle is the complete set of capabilities the election core
// consumes from the owning cluster (§6). It is the only dependency the
// core has on the outside world; everything else (transport,
// serialization, the gossip protocol itself) lives behind it. Concrete
// implementations typically compose a MessagingHandle and a
// MembershipHandle rather than implementing this directly.
type ClusterHandle interface {
	MessagingHandle
	MembershipHandle
}
