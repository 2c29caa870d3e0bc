package server

import (
	"context"
	"log/slog"
	"net"

	"github.com/skypro1111/udp-request-server/internal/metrics"
	"github.com/skypro1111/udp-request-server/internal/queue"
)

// sender writes packages from the outbound queue to the socket. Each
// package gets a single write attempt.
type sender struct {
	conn     net.PacketConn
	outbound *queue.Queue[Package]
	logger   *slog.Logger
	metrics  *metrics.Metrics
	counters *counters
}

// run blocks on the outbound queue until cancelled, then flushes what is
// already queued before returning
func (s *sender) run(ctx context.Context) {
	s.logger.Info("Send worker started")
	defer s.logger.Info("Send worker stopped")

	for {
		pkg, err := s.outbound.Pop(ctx)
		if err != nil {
			s.flush()
			return
		}
		s.send(pkg)
	}
}

func (s *sender) flush() {
	flushed := 0
	for {
		pkg, ok := s.outbound.TryPop()
		if !ok {
			break
		}
		s.send(pkg)
		flushed++
	}

	if flushed > 0 {
		s.logger.Info("Flushed outbound queue", slog.Int("packages", flushed))
	}
}

func (s *sender) send(pkg Package) {
	s.metrics.SetQueueSize(queueOutbound, s.outbound.Len())

	if _, err := s.conn.WriteTo(pkg.Payload, pkg.Peer); err != nil {
		s.counters.sendErrors.Add(1)
		s.counters.packagesDropped.Add(1)
		s.metrics.RecordSendError()
		s.metrics.RecordPackageDropped(dropSendError)
		s.logger.Error("Failed to send package",
			slog.String("remote_addr", pkg.Peer.String()),
			slog.Int("package_size", len(pkg.Payload)),
			slog.String("error", err.Error()),
		)
		return
	}

	s.counters.packagesSent.Add(1)
	s.metrics.RecordPackageSent()
}
