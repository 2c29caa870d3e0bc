package server

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/skypro1111/udp-request-server/internal/metrics"
	"github.com/skypro1111/udp-request-server/internal/protocol"
	"github.com/skypro1111/udp-request-server/internal/queue"
)

// Handler processes one decoded request. A nil response means nothing is
// sent back. Errors are logged by the dispatcher and produce no response.
type Handler interface {
	Handle(ctx context.Context, requestType string, msg protocol.Message) (any, error)
}

// HandlerFunc adapts a function to the Handler interface
type HandlerFunc func(ctx context.Context, requestType string, msg protocol.Message) (any, error)

// Handle calls f
func (f HandlerFunc) Handle(ctx context.Context, requestType string, msg protocol.Message) (any, error) {
	return f(ctx, requestType, msg)
}

// dispatcher drains the inbound queue, runs the handler and queues the
// encoded responses for the original peer. The handler runs synchronously,
// so a slow handler stalls the whole pipeline.
type dispatcher struct {
	inbound  *queue.Queue[Package]
	outbound *queue.Queue[Package]
	handler  Handler
	peers    *PeerRegistry
	logger   *slog.Logger
	metrics  *metrics.Metrics
	counters *counters
}

func (d *dispatcher) run(ctx context.Context) {
	d.logger.Info("Dispatcher started")
	defer d.logger.Info("Dispatcher stopped")

	for {
		pkg, err := d.inbound.Pop(ctx)
		if err != nil {
			return
		}
		d.metrics.SetQueueSize(queueInbound, d.inbound.Len())
		d.dispatch(ctx, pkg)
	}
}

// dispatch handles a single package. Every failure is contained here.
func (d *dispatcher) dispatch(ctx context.Context, pkg Package) {
	msg, err := protocol.Decode(pkg.Payload)
	if err != nil {
		reason := dropMalformed
		if errors.Is(err, protocol.ErrMissingField) {
			reason = dropMissingField
		}
		d.counters.decodeErrors.Add(1)
		d.counters.packagesDropped.Add(1)
		d.metrics.RecordDecodeError(reason)
		d.metrics.RecordPackageDropped(reason)
		d.logger.Warn("Dropping malformed package",
			slog.String("remote_addr", pkg.Peer.String()),
			slog.Int("package_size", len(pkg.Payload)),
			slog.String("error", err.Error()),
		)
		return
	}

	requestType, _ := msg.RequestType()

	peer, admitted := d.peers.Touch(pkg.Peer, time.Now())
	d.metrics.SetActivePeers(d.peers.Count())
	if !admitted {
		d.counters.packagesDropped.Add(1)
		d.metrics.RecordPeerRejected()
		d.metrics.RecordPackageDropped(dropPeerLimit)
		d.logger.Warn("Peer limit reached, dropping request from new peer",
			slog.String("remote_addr", pkg.Peer.String()),
			slog.String("request_type", requestType),
		)
		return
	}

	d.counters.packagesDispatched.Add(1)

	start := time.Now()
	response, err := d.handler.Handle(ctx, requestType, msg)
	d.metrics.RecordRequest(requestType, time.Since(start).Seconds(), err != nil)

	if err != nil {
		d.counters.handlerErrors.Add(1)
		d.counters.packagesDropped.Add(1)
		d.metrics.RecordPackageDropped(dropHandlerError)
		d.logger.Error("Handler failed",
			slog.String("remote_addr", pkg.Peer.String()),
			slog.String("peer_id", peer.ID),
			slog.String("request_type", requestType),
			slog.String("error", err.Error()),
		)
		return
	}

	if response == nil {
		d.logger.Debug("Request handled without response",
			slog.String("peer_id", peer.ID),
			slog.String("request_type", requestType),
		)
		return
	}

	data, err := protocol.Encode(response)
	if err != nil {
		d.counters.packagesDropped.Add(1)
		d.metrics.RecordPackageDropped(dropEncodeError)
		d.logger.Error("Failed to encode response",
			slog.String("peer_id", peer.ID),
			slog.String("request_type", requestType),
			slog.String("error", err.Error()),
		)
		return
	}

	out := Package{
		Payload:    data,
		Peer:       pkg.Peer,
		ReceivedAt: pkg.ReceivedAt,
	}
	if err := d.outbound.Push(ctx, out); err != nil {
		d.counters.packagesDropped.Add(1)
		d.metrics.RecordPackageDropped(dropShutdown)
		d.logger.Warn("Dropping response during shutdown",
			slog.String("peer_id", peer.ID),
			slog.String("request_type", requestType),
		)
		return
	}
	d.metrics.SetQueueSize(queueOutbound, d.outbound.Len())

	d.logger.Debug("Request dispatched",
		slog.String("peer_id", peer.ID),
		slog.String("request_type", requestType),
		slog.Int("response_size", len(data)),
	)
}
