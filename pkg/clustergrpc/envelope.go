// Package clustergrpc is a gRPC-backed implementation of
// election.MessagingHandle. It exchanges the election core's four wire
// payloads (VoteRequest/Response, HeartbeatRequest/Response) by wrapping a
// JSON-encoded envelope in a single protobuf well-known type
// (wrapperspb.BytesValue). Full .proto-generated client/server stubs, as
// the teacher's pb packages were, aren't attempted here - see DESIGN.md
// for why.
package clustergrpc

import (
	"encoding/json"
	"fmt"

	"github.com/sidecus/raftelect/pkg/election"
)

// payload kinds recorded in the envelope so decodeMessage knows which
// concrete election type to unmarshal Payload into.
const (
	kindVoteRequest       = "vote-request"
	kindVoteResponse      = "vote-response"
	kindHeartbeatRequest  = "heartbeat-request"
	kindHeartbeatResponse = "heartbeat-response"
)

// wireEnvelope is the JSON shape shipped inside the gRPC BytesValue.
type wireEnvelope struct {
	Qualifier     string          `json:"qualifier"`
	SenderAddress string          `json:"senderAddress"`
	CorrelationID string          `json:"correlationId"`
	Kind          string          `json:"kind"`
	Payload       json.RawMessage `json:"payload"`
}

// encodeMessage serializes an election.Message to the bytes carried by the
// gRPC Deliver RPC.
func encodeMessage(msg election.Message) ([]byte, error) {
	var kind string
	switch msg.Payload.(type) {
	case election.VoteRequest:
		kind = kindVoteRequest
	case election.VoteResponse:
		kind = kindVoteResponse
	case election.HeartbeatRequest:
		kind = kindHeartbeatRequest
	case election.HeartbeatResponse:
		kind = kindHeartbeatResponse
	default:
		return nil, fmt.Errorf("clustergrpc: unsupported payload type %T", msg.Payload)
	}

	payloadBytes, err := json.Marshal(msg.Payload)
	if err != nil {
		return nil, fmt.Errorf("clustergrpc: marshaling payload: %w", err)
	}

	env := wireEnvelope{
		Qualifier:     msg.Qualifier,
		SenderAddress: msg.SenderAddress,
		CorrelationID: msg.CorrelationID,
		Kind:          kind,
		Payload:       payloadBytes,
	}

	return json.Marshal(env)
}

// decodeMessage is the inverse of encodeMessage.
func decodeMessage(data []byte) (election.Message, error) {
	var env wireEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return election.Message{}, fmt.Errorf("clustergrpc: unmarshaling envelope: %w", err)
	}

	var payload interface{}
	switch env.Kind {
	case kindVoteRequest:
		var p election.VoteRequest
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return election.Message{}, err
		}
		payload = p
	case kindVoteResponse:
		var p election.VoteResponse
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return election.Message{}, err
		}
		payload = p
	case kindHeartbeatRequest:
		var p election.HeartbeatRequest
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return election.Message{}, err
		}
		payload = p
	case kindHeartbeatResponse:
		var p election.HeartbeatResponse
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return election.Message{}, err
		}
		payload = p
	default:
		return election.Message{}, fmt.Errorf("clustergrpc: unknown payload kind %q", env.Kind)
	}

	return election.Message{
		Qualifier:     env.Qualifier,
		SenderAddress: env.SenderAddress,
		CorrelationID: env.CorrelationID,
		Payload:       payload,
	}, nil
}
