// Package stats tracks cumulative dispatcher traffic and stream counts,
// and periodically reports them through logx.
package stats

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/quaylabs/adbmux/internal/logx"
)

// Counters is the process-wide (or per-dispatcher, if the caller wants
// isolation) traffic/stream counter set.
type Counters struct {
	StreamsOpened atomic.Int64
	StreamsClosed atomic.Int64
	BytesSent     atomic.Int64
	BytesRecv     atomic.Int64
}

// New returns a fresh, zeroed Counters.
func New() *Counters { return &Counters{} }

func (c *Counters) AddStreamOpened() { c.StreamsOpened.Add(1) }
func (c *Counters) AddStreamClosed() { c.StreamsClosed.Add(1) }
func (c *Counters) AddSent(n int)    { c.BytesSent.Add(int64(n)) }
func (c *Counters) AddRecv(n int)    { c.BytesRecv.Add(int64(n)) }

// StartReporter launches a goroutine that logs traffic/stream deltas
// every interval, stopping when ctx is cancelled.
func (c *Counters) StartReporter(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		var prevSent, prevRecv, prevOpened, prevClosed int64
		for {
			select {
			case <-ticker.C:
				opened := c.StreamsOpened.Load()
				closed := c.StreamsClosed.Load()
				sent := c.BytesSent.Load()
				recv := c.BytesRecv.Load()

				dOpened := opened - prevOpened
				dClosed := closed - prevClosed
				dSent := sent - prevSent
				dRecv := recv - prevRecv

				if dOpened > 0 || dClosed > 0 || dSent > 0 || dRecv > 0 {
					logx.Infof("%s", formatDelta(dSent, dRecv, dOpened, dClosed))
				}

				prevSent, prevRecv, prevOpened, prevClosed = sent, recv, opened, closed

			case <-ctx.Done():
				return
			}
		}
	}()
}

var byteUnits = []string{"B", "KiB", "MiB", "GiB", "TiB", "PiB"}

func formatBytes(b float64) string {
	unitIdx := 0
	for b > 99 && unitIdx < len(byteUnits)-1 {
		b /= 1024
		unitIdx++
	}
	return fmt.Sprintf("%4.1f %3s", b, byteUnits[unitIdx])
}

func formatDelta(sent, recv, opened, closed int64) string {
	return fmt.Sprintf("sent %s | recv %s | streams %d opened / %d closed",
		formatBytes(float64(sent)), formatBytes(float64(recv)), opened, closed)
}
