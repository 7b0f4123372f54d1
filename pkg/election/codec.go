package election

import (
	"strings"

	"github.com/google/uuid"
)

// Qualifier suffixes. The qualifier namespace is part of the external
// interface (§4.4, §6) and must stay stable across versions.
const (
	voteSuffix      = "/vote"
	heartbeatSuffix = "/heartbeat"
)

// voteQualifier returns the topic-scoped qualifier for vote messages.
func voteQualifier(topic Topic) string {
	return string(topic) + voteSuffix
}

// heartbeatQualifier returns the topic-scoped qualifier for heartbeat
// messages.
func heartbeatQualifier(topic Topic) string {
	return string(topic) + heartbeatSuffix
}

// IsVote reports whether qualifier q is a vote qualifier for topic.
func IsVote(topic Topic, q string) bool {
	return q == voteQualifier(topic)
}

// IsHeartbeat reports whether qualifier q is a heartbeat qualifier for
// topic.
func IsHeartbeat(topic Topic, q string) bool {
	return q == heartbeatQualifier(topic)
}

// TopicFromQualifier recovers the topic a qualifier was built for, e.g.
// "orders/vote" -> "orders". Returns false if q doesn't look like one of
// our qualifiers.
func TopicFromQualifier(q string) (Topic, bool) {
	for _, suffix := range []string{voteSuffix, heartbeatSuffix} {
		if strings.HasSuffix(q, suffix) {
			return Topic(strings.TrimSuffix(q, suffix)), true
		}
	}
	return "", false
}

// newCorrelationID returns a fresh correlation id for an outbound request.
func newCorrelationID() string {
	return uuid.NewString()
}

// NewVoteRequestMessage builds a transport message carrying a VoteRequest.
func NewVoteRequestMessage(topic Topic, senderAddr string, req VoteRequest) Message {
	return Message{
		Qualifier:     voteQualifier(topic),
		SenderAddress: senderAddr,
		CorrelationID: newCorrelationID(),
		Payload:       req,
	}
}

// NewVoteResponseMessage builds a reply message carrying a VoteResponse,
// preserving the correlation id of the request it answers.
func NewVoteResponseMessage(topic Topic, senderAddr, correlationID string, resp VoteResponse) Message {
	return Message{
		Qualifier:     voteQualifier(topic),
		SenderAddress: senderAddr,
		CorrelationID: correlationID,
		Payload:       resp,
	}
}

// NewHeartbeatRequestMessage builds a transport message carrying a
// HeartbeatRequest.
func NewHeartbeatRequestMessage(topic Topic, senderAddr string, req HeartbeatRequest) Message {
	return Message{
		Qualifier:     heartbeatQualifier(topic),
		SenderAddress: senderAddr,
		CorrelationID: newCorrelationID(),
		Payload:       req,
	}
}

// NewHeartbeatResponseMessage builds a reply message carrying a
// HeartbeatResponse, preserving the correlation id of the request it
// answers.
func NewHeartbeatResponseMessage(topic Topic, senderAddr, correlationID string, resp HeartbeatResponse) Message {
	return Message{
		Qualifier:     heartbeatQualifier(topic),
		SenderAddress: senderAddr,
		CorrelationID: correlationID,
		Payload:       resp,
	}
}
