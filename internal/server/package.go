package server

import (
	"net"
	"sync/atomic"
	"time"
)

// Queue names used in logs and metrics
const (
	queueInbound  = "inbound"
	queueOutbound = "outbound"
)

// Drop reasons used in logs and metrics
const (
	dropMalformed    = "malformed"
	dropMissingField = "missing_field"
	dropPeerLimit    = "peer_limit"
	dropHandlerError = "handler_error"
	dropEncodeError  = "encode_error"
	dropSendError    = "send_error"
	dropShutdown     = "shutdown"
)

// Package is one datagram payload paired with the peer it came from or
// is addressed to
type Package struct {
	Payload    []byte
	Peer       net.Addr
	ReceivedAt time.Time
}

// counters are shared by the workers and read by Statistics
type counters struct {
	packagesReceived   atomic.Uint64
	packagesDispatched atomic.Uint64
	packagesSent       atomic.Uint64
	packagesDropped    atomic.Uint64
	receiveErrors      atomic.Uint64
	decodeErrors       atomic.Uint64
	handlerErrors      atomic.Uint64
	sendErrors         atomic.Uint64
}
