package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"time"

	"github.com/skypro1111/udp-request-server/internal/metrics"
	"github.com/skypro1111/udp-request-server/internal/queue"
)

// receiver reads datagrams from the socket and pushes them onto the inbound
// queue without decoding them
type receiver struct {
	conn           net.PacketConn
	inbound        *queue.Queue[Package]
	maxPackageSize int
	timeout        time.Duration
	logger         *slog.Logger
	metrics        *metrics.Metrics
	counters       *counters
}

// run is the receive loop. A full inbound queue blocks it, which throttles
// how fast datagrams are taken off the socket.
func (r *receiver) run(ctx context.Context) {
	r.logger.Info("Receive worker started", slog.Duration("timeout", r.timeout))
	defer r.logger.Info("Receive worker stopped")

	buffer := make([]byte, r.maxPackageSize)

	for {
		if ctx.Err() != nil {
			return
		}

		// Bound the read so cancellation is observed within one timeout window
		if err := r.conn.SetReadDeadline(time.Now().Add(r.timeout)); err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			r.logger.Error("Failed to set read deadline", slog.String("error", err.Error()))
			continue
		}

		n, remoteAddr, err := r.conn.ReadFrom(buffer)
		if err != nil {
			if ctx.Err() != nil {
				return
			}

			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}

			if errors.Is(err, net.ErrClosed) {
				r.logger.Warn("Socket closed, receive worker exiting")
				return
			}

			r.counters.receiveErrors.Add(1)
			r.metrics.RecordReceiveError()
			r.logger.Error("Error receiving data from clients", slog.String("error", err.Error()))
			continue
		}

		r.counters.packagesReceived.Add(1)
		r.metrics.RecordPackageReceived()

		// Copy out of the reused read buffer
		payload := make([]byte, n)
		copy(payload, buffer[:n])

		pkg := Package{
			Payload:    payload,
			Peer:       remoteAddr,
			ReceivedAt: time.Now(),
		}

		if err := r.inbound.Push(ctx, pkg); err != nil {
			r.counters.packagesDropped.Add(1)
			r.metrics.RecordPackageDropped(dropShutdown)
			r.logger.Warn("Dropping received package during shutdown",
				slog.String("remote_addr", remoteAddr.String()),
				slog.Int("package_size", n),
			)
			return
		}
		r.metrics.SetQueueSize(queueInbound, r.inbound.Len())
	}
}
