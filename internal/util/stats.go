package util

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/pterm/pterm"
)

// ──────────────────────────────────────────────────────────────────────────────
// Global stats singleton
// ──────────────────────────────────────────────────────────────────────────────

// Stats is the process-wide session/event/media counter.
var Stats = &stats{}

type stats struct {
	TotalSessions  atomic.Int64 // cumulative count of signaling sessions since process start
	ClosedSessions atomic.Int64 // cumulative count of closed signaling sessions
	EventsRelayed  atomic.Int64 // events forwarded to at least one recipient
	EventsDropped  atomic.Int64 // events dropped on a full session queue
	BytesSent      atomic.Int64 // media payload bytes written to local tracks
	BytesRecv      atomic.Int64 // media payload bytes read from remote tracks
}

func (s *stats) AddSession()    { s.TotalSessions.Add(1) }
func (s *stats) RemoveSession() { s.ClosedSessions.Add(1) }
func (s *stats) AddRelayed()    { s.EventsRelayed.Add(1) }
func (s *stats) AddDropped()    { s.EventsDropped.Add(1) }
func (s *stats) AddSent(n int)  { s.BytesSent.Add(int64(n)) }
func (s *stats) AddRecv(n int)  { s.BytesRecv.Add(int64(n)) }

// ──────────────────────────────────────────────────────────────────────────────
// Periodic reporter
// ──────────────────────────────────────────────────────────────────────────────

const reportInterval = 10 * time.Second

// StartStatsReporter launches a goroutine that logs statistics every 10
// seconds when anything changed. It stops when ctx is cancelled.
func StartStatsReporter(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(reportInterval)
		defer ticker.Stop()

		var prev snapshot
		for {
			select {
			case <-ticker.C:
				cur := Stats.snapshot()
				if line, ok := formatDelta(prev, cur, reportInterval.Seconds()); ok {
					pterm.DefaultLogger.Info(line)
				}
				prev = cur

			case <-ctx.Done():
				return
			}
		}
	}()
}

type snapshot struct {
	opened, closed, relayed, dropped, sent, recv int64
}

func (s *stats) snapshot() snapshot {
	return snapshot{
		opened:  s.TotalSessions.Load(),
		closed:  s.ClosedSessions.Load(),
		relayed: s.EventsRelayed.Load(),
		dropped: s.EventsDropped.Load(),
		sent:    s.BytesSent.Load(),
		recv:    s.BytesRecv.Load(),
	}
}

// formatDelta renders the change between two snapshots. It reports false when
// nothing noteworthy happened in the interval.
func formatDelta(prev, cur snapshot, seconds float64) (string, bool) {
	inS := float64(cur.recv-prev.recv) / seconds
	outS := float64(cur.sent-prev.sent) / seconds
	opened := cur.opened - prev.opened
	closed := cur.closed - prev.closed
	relayed := cur.relayed - prev.relayed
	dropped := cur.dropped - prev.dropped

	if opened == 0 && closed == 0 && relayed == 0 && dropped == 0 && inS <= 10 && outS <= 10 {
		return "", false
	}

	return fmt.Sprintf("In: %s/s | Out: %s/s | Sessions: %2d↑ %2d↓ | Events: %d relayed, %d dropped",
		formatBytes(inS),
		formatBytes(outS),
		opened,
		closed,
		relayed,
		dropped,
	), true
}

// byteUnits defines the units for formatting byte counts in a human-readable way.
var byteUnits = []string{"B", "KiB", "MiB", "GiB", "TiB", "PiB"}

// formatBytes formats a byte count into a fixed-width (8 chars) string,
// for example: "99.0   B", " 1.5 KiB", "98.9 GiB".
func formatBytes(b float64) string {
	unitIdx := 0

	// to prevent "100.0 KiB", which is 9 chars
	for b > 99 && unitIdx < 5 {
		b /= 1024
		unitIdx++
	}

	return fmt.Sprintf("%4.1f %3s", b, byteUnits[unitIdx])
}
