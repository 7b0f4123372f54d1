package clustergrpc

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/sidecus/raftelect/pkg/election"
	"github.com/sidecus/raftelect/pkg/util"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// inboundBufferSize bounds the channel Listen hands back; a slow consumer
// backs up gRPC delivery rather than dropping messages silently, matching
// the teacher's fail-loud preference for its own RPC server loops.
const inboundBufferSize = 64

// Transport is a gRPC-backed election.MessagingHandle. Every inbound or
// outbound message, request or reply alike, rides the same one-RPC
// "Deliver" service; replies are routed back to a waiting RequestResponse
// caller purely by matching Message.CorrelationID, since there's no
// protoc-generated per-RPC pairing available here.
type Transport struct {
	bindAddr string
	server   *grpc.Server
	listener net.Listener

	inbound chan election.Message

	mu       sync.Mutex
	pending  map[string]chan election.Message
	conns    map[string]*grpc.ClientConn
	closed   bool
}

var _ election.MessagingHandle = (*Transport)(nil)
var _ electionTransportServer = (*Transport)(nil)

// NewTransport creates a Transport that will listen on bindAddr once
// Start is called. bindAddr doubles as the LocalAddress peers use to dial
// back (§6 "MessagingHandle").
func NewTransport(bindAddr string) *Transport {
	return &Transport{
		bindAddr: bindAddr,
		inbound:  make(chan election.Message, inboundBufferSize),
		pending:  make(map[string]chan election.Message),
		conns:    make(map[string]*grpc.ClientConn),
	}
}

// LocalAddress returns the address this transport listens on.
func (t *Transport) LocalAddress() string {
	return t.bindAddr
}

// Start opens the listening socket and begins serving Deliver RPCs in the
// background. It must be called before Listen/Send/RequestResponse are
// useful.
func (t *Transport) Start() error {
	lis, err := net.Listen("tcp", t.bindAddr)
	if err != nil {
		return fmt.Errorf("clustergrpc: listening on %s: %w", t.bindAddr, err)
	}
	t.listener = lis

	t.server = grpc.NewServer()
	t.server.RegisterService(&electionTransportServiceDesc, t)

	go func() {
		if err := t.server.Serve(lis); err != nil {
			util.WriteTrace("clustergrpc: server stopped: %s\n", err)
		}
	}()

	util.WriteInfo("clustergrpc: transport listening on %s\n", t.bindAddr)
	return nil
}

// Stop tears down the gRPC server and every outbound client connection.
func (t *Transport) Stop() {
	if t.server != nil {
		t.server.GracefulStop()
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	for _, cc := range t.conns {
		_ = cc.Close()
	}
	close(t.inbound)
}

// Listen returns the channel of inbound messages that weren't claimed by a
// pending RequestResponse call - i.e. fresh requests from peers.
func (t *Transport) Listen(ctx context.Context) (<-chan election.Message, error) {
	return t.inbound, nil
}

// clientFor returns (creating if necessary) the client connection for addr.
func (t *Transport) clientFor(addr string) (*electionTransportClient, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, fmt.Errorf("clustergrpc: transport closed")
	}

	cc, ok := t.conns[addr]
	if !ok {
		var err error
		cc, err = grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			return nil, fmt.Errorf("clustergrpc: dialing %s: %w", addr, err)
		}
		t.conns[addr] = cc
	}

	return newElectionTransportClient(cc), nil
}

// Send delivers msg to addr without waiting for a correlated reply.
func (t *Transport) Send(ctx context.Context, addr string, msg election.Message) error {
	client, err := t.clientFor(addr)
	if err != nil {
		return err
	}

	body, err := encodeMessage(msg)
	if err != nil {
		return err
	}

	_, err = client.Deliver(ctx, wrapperspb.Bytes(body))
	return err
}

// RequestResponse delivers msg to addr and blocks for the reply carrying
// the same CorrelationID, or until ctx expires.
func (t *Transport) RequestResponse(ctx context.Context, addr string, msg election.Message) (election.Message, error) {
	replyCh := make(chan election.Message, 1)

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return election.Message{}, fmt.Errorf("clustergrpc: transport closed")
	}
	t.pending[msg.CorrelationID] = replyCh
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		delete(t.pending, msg.CorrelationID)
		t.mu.Unlock()
	}()

	if err := t.Send(ctx, addr, msg); err != nil {
		return election.Message{}, err
	}

	select {
	case <-ctx.Done():
		return election.Message{}, ctx.Err()
	case reply := <-replyCh:
		return reply, nil
	}
}

// Deliver is the gRPC server-side handler backing the single "Deliver"
// RPC (§ service.go). Every message, request or reply, arrives here;
// replies matching a pending CorrelationID are routed to the waiting
// RequestResponse caller, everything else is pushed to the inbound
// channel for the driver's dispatch loop.
func (t *Transport) Deliver(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	msg, err := decodeMessage(in.GetValue())
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	replyCh, isReply := t.pending[msg.CorrelationID]
	closed := t.closed
	t.mu.Unlock()

	if closed {
		return wrapperspb.Bytes(nil), nil
	}

	if isReply {
		select {
		case replyCh <- msg:
		default:
			util.WriteTrace("clustergrpc: dropping reply for correlation id %s, caller no longer waiting\n", msg.CorrelationID)
		}
		return wrapperspb.Bytes(nil), nil
	}

	select {
	case t.inbound <- msg:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	return wrapperspb.Bytes(nil), nil
}
