package server

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/skypro1111/udp-request-server/internal/config"
	"github.com/skypro1111/udp-request-server/internal/metrics"
	"github.com/skypro1111/udp-request-server/internal/protocol"
	"github.com/skypro1111/udp-request-server/internal/queue"
)

// notifyTimeout bounds how long shutdown waits to queue one close notice
const notifyTimeout = 100 * time.Millisecond

// State is the lifecycle state of the server
type State int

const (
	StateCreated State = iota
	StateRunning
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// BindError is returned by Start when the UDP socket cannot be bound
type BindError struct {
	Address string
	Err     error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("failed binding %s: %v", e.Address, e.Err)
}

func (e *BindError) Unwrap() error {
	return e.Err
}

// UDPServer owns the socket, both queues, the peer registry and the worker
// goroutines, and drives their startup and shutdown
type UDPServer struct {
	conn    *net.UDPConn
	config  *config.ServerConfig
	logger  *slog.Logger
	handler Handler
	storage io.Closer
	metrics *metrics.Metrics

	inbound  *queue.Queue[Package]
	outbound *queue.Queue[Package]
	peers    *PeerRegistry
	counters counters

	receiveWorker  *worker
	sendWorker     *worker
	dispatchWorker *worker
	sweepWorker    *worker

	// Lifecycle
	state     State
	startTime time.Time
	stopped   chan struct{}
	mu        sync.Mutex
}

// NewUDPServer creates a new UDP server instance. storage may be nil; when
// set it is closed once the workers have stopped. A nil m registers metrics
// on a private registry.
func NewUDPServer(cfg *config.ServerConfig, logger *slog.Logger, handler Handler, storage io.Closer, m *metrics.Metrics) *UDPServer {
	if m == nil {
		m = metrics.NewMetrics(prometheus.NewRegistry())
	}

	return &UDPServer{
		config:         cfg,
		logger:         logger,
		handler:        handler,
		storage:        storage,
		metrics:        m,
		inbound:        queue.New[Package](cfg.QueueSize),
		outbound:       queue.New[Package](cfg.QueueSize),
		peers:          NewPeerRegistry(cfg.MaxHosts),
		receiveWorker:  newWorker("receiver"),
		sendWorker:     newWorker("sender"),
		dispatchWorker: newWorker("dispatcher"),
		sweepWorker:    newWorker("peer_sweeper"),
		state:          StateCreated,
		stopped:        make(chan struct{}),
	}
}

// Start binds the socket and launches the workers. A bind failure returns
// a *BindError and leaves nothing running.
func (s *UDPServer) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateCreated {
		return fmt.Errorf("server cannot be started in state %s", s.state)
	}

	address := s.config.Address()
	addr, err := net.ResolveUDPAddr("udp", address)
	if err != nil {
		return &BindError{Address: address, Err: err}
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return &BindError{Address: address, Err: err}
	}
	s.conn = conn

	ctx := context.Background()

	s.receiveWorker.start(ctx, (&receiver{
		conn:           conn,
		inbound:        s.inbound,
		maxPackageSize: s.config.MaxPackageSize,
		timeout:        s.config.GetReceiveTimeoutDuration(),
		logger:         s.logger.With(slog.String("worker", s.receiveWorker.name)),
		metrics:        s.metrics,
		counters:       &s.counters,
	}).run)

	s.sendWorker.start(ctx, (&sender{
		conn:     conn,
		outbound: s.outbound,
		logger:   s.logger.With(slog.String("worker", s.sendWorker.name)),
		metrics:  s.metrics,
		counters: &s.counters,
	}).run)

	s.dispatchWorker.start(ctx, (&dispatcher{
		inbound:  s.inbound,
		outbound: s.outbound,
		handler:  s.handler,
		peers:    s.peers,
		logger:   s.logger.With(slog.String("worker", s.dispatchWorker.name)),
		metrics:  s.metrics,
		counters: &s.counters,
	}).run)

	if s.config.PeerTimeout > 0 {
		s.sweepWorker.start(ctx, s.sweepPeers)
	}

	s.state = StateRunning
	s.startTime = time.Now()

	s.logger.Info("UDP server started",
		slog.String("address", conn.LocalAddr().String()),
		slog.Int("max_hosts", s.config.MaxHosts),
		slog.Int("max_package_size", s.config.MaxPackageSize),
		slog.Int("queue_size", s.inbound.Cap()),
	)

	return nil
}

// Stop shuts the server down. It is safe to call more than once and from
// several goroutines; later callers wait for the first shutdown to finish.
// Workers that do not stop within the join timeout are logged and
// abandoned. The returned error comes from closing the storage handle.
func (s *UDPServer) Stop() error {
	s.mu.Lock()
	switch s.state {
	case StateCreated:
		s.state = StateStopped
		close(s.stopped)
		s.mu.Unlock()
		return s.closeStorage()
	case StateStopping:
		s.mu.Unlock()
		<-s.stopped
		return nil
	case StateStopped:
		s.mu.Unlock()
		return nil
	}
	s.state = StateStopping
	s.mu.Unlock()

	s.logger.Info("Stopping UDP server...")

	// No new requests reach the handler past this point
	s.stopWorker(s.dispatchWorker)

	s.notifyPeers()

	// Wake a pending read instead of waiting for its deadline
	if err := s.conn.SetReadDeadline(time.Now()); err != nil {
		s.logger.Warn("Failed to interrupt pending read", slog.String("error", err.Error()))
	}
	s.stopWorker(s.receiveWorker)
	s.stopWorker(s.sendWorker)
	s.stopWorker(s.sweepWorker)

	if err := s.conn.Close(); err != nil {
		s.logger.Warn("Error closing UDP connection", slog.String("error", err.Error()))
	}

	storageErr := s.closeStorage()

	s.mu.Lock()
	s.state = StateStopped
	close(s.stopped)
	s.mu.Unlock()

	stats := s.Statistics()
	s.logger.Info("UDP server stopped",
		slog.Uint64("packages_received", stats.PackagesReceived),
		slog.Uint64("packages_dispatched", stats.PackagesDispatched),
		slog.Uint64("packages_sent", stats.PackagesSent),
		slog.Uint64("packages_dropped", stats.PackagesDropped),
	)

	return storageErr
}

// stopWorker stops w with a bounded join and logs the outcome
func (s *UDPServer) stopWorker(w *worker) {
	if w.State() == WorkerIdle {
		return
	}

	timeout := s.config.GetJoinTimeoutDuration()
	s.logger.Info("Stopping worker", slog.String("worker", w.name))

	if !w.stop(timeout) {
		s.metrics.RecordJoinTimeout(w.name)
		s.logger.Error("Worker cannot be stopped, abandoning it",
			slog.String("worker", w.name),
			slog.Duration("join_timeout", timeout),
		)
		return
	}

	s.logger.Info("Worker stopped", slog.String("worker", w.name))
}

// notifyPeers queues a close notice for every known peer. Delivery is best
// effort: a notice that cannot be queued in time is skipped.
func (s *UDPServer) notifyPeers() {
	addrs := s.peers.Addrs()
	if len(addrs) == 0 {
		return
	}

	s.logger.Info("Sending information to clients about closing server", slog.Int("peers", len(addrs)))

	notice, err := protocol.Encode(protocol.Message{
		protocol.FieldRequestType: protocol.RequestTypeServerClosing,
	})
	if err != nil {
		s.logger.Error("Failed to encode close notice", slog.String("error", err.Error()))
		return
	}

	for _, addr := range addrs {
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		err := s.outbound.Push(ctx, Package{Payload: notice, Peer: addr, ReceivedAt: time.Now()})
		cancel()
		if err != nil {
			s.logger.Warn("Could not queue close notice", slog.String("remote_addr", addr.String()))
		}
	}
}

// sweepPeers periodically evicts peers idle for longer than the peer timeout
func (s *UDPServer) sweepPeers(ctx context.Context) {
	timeout := s.config.GetPeerTimeoutDuration()
	ticker := time.NewTicker(timeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			for _, peer := range s.peers.EvictIdle(timeout, now) {
				s.logger.Info("Evicted idle peer",
					slog.String("peer_id", peer.ID),
					slog.String("remote_addr", peer.Address),
					slog.Time("last_seen", peer.LastSeen),
				)
			}
			s.metrics.SetActivePeers(s.peers.Count())
		}
	}
}

func (s *UDPServer) closeStorage() error {
	if s.storage == nil {
		return nil
	}

	if err := s.storage.Close(); err != nil {
		s.logger.Error("Failed to close storage", slog.String("error", err.Error()))
		return fmt.Errorf("failed to close storage: %w", err)
	}
	return nil
}

// State returns the current lifecycle state
func (s *UDPServer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// WorkerStates returns the state of every worker keyed by name
func (s *UDPServer) WorkerStates() map[string]WorkerState {
	return map[string]WorkerState{
		s.receiveWorker.name:  s.receiveWorker.State(),
		s.sendWorker.name:     s.sendWorker.State(),
		s.dispatchWorker.name: s.dispatchWorker.State(),
		s.sweepWorker.name:    s.sweepWorker.State(),
	}
}

// LocalAddr returns the bound socket address, or nil before Start
func (s *UDPServer) LocalAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return nil
	}
	return s.conn.LocalAddr()
}

// Peers returns the peer registry
func (s *UDPServer) Peers() *PeerRegistry {
	return s.peers
}

// Uptime returns how long the server has been running
func (s *UDPServer) Uptime() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.startTime.IsZero() {
		return 0
	}
	return time.Since(s.startTime)
}

// Statistics returns current server statistics
func (s *UDPServer) Statistics() ServerStatistics {
	return ServerStatistics{
		State:              s.State().String(),
		PackagesReceived:   s.counters.packagesReceived.Load(),
		PackagesDispatched: s.counters.packagesDispatched.Load(),
		PackagesSent:       s.counters.packagesSent.Load(),
		PackagesDropped:    s.counters.packagesDropped.Load(),
		ReceiveErrors:      s.counters.receiveErrors.Load(),
		DecodeErrors:       s.counters.decodeErrors.Load(),
		HandlerErrors:      s.counters.handlerErrors.Load(),
		SendErrors:         s.counters.sendErrors.Load(),
		ActivePeers:        uint64(s.peers.Count()),
		InboundQueueSize:   uint64(s.inbound.Len()),
		OutboundQueueSize:  uint64(s.outbound.Len()),
		QueueCapacity:      uint64(s.inbound.Cap()),
	}
}

// ServerStatistics represents server performance metrics
type ServerStatistics struct {
	State              string `json:"state"`
	PackagesReceived   uint64 `json:"packages_received"`
	PackagesDispatched uint64 `json:"packages_dispatched"`
	PackagesSent       uint64 `json:"packages_sent"`
	PackagesDropped    uint64 `json:"packages_dropped"`
	ReceiveErrors      uint64 `json:"receive_errors"`
	DecodeErrors       uint64 `json:"decode_errors"`
	HandlerErrors      uint64 `json:"handler_errors"`
	SendErrors         uint64 `json:"send_errors"`
	ActivePeers        uint64 `json:"active_peers"`
	InboundQueueSize   uint64 `json:"inbound_queue_size"`
	OutboundQueueSize  uint64 `json:"outbound_queue_size"`
	QueueCapacity      uint64 `json:"queue_capacity"`
}
