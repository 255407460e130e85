// Package pipeline implements the Pipeline Controller (spec.md §4.8):
// the single-threaded cooperative loop that drives Frame Reader → Ping
// Extractor → Ping Ring → Sounding Filter → MB1 Codec → (Publish ‖ Log
// ‖ TRN Orchestrator → Publish), per spec.md §2's data flow and §5's
// concurrency model.
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/log"

	"github.com/sixy6e/mbtrnpp"
	"github.com/sixy6e/mbtrnpp/archive"
	"github.com/sixy6e/mbtrnpp/decode"
	"github.com/sixy6e/mbtrnpp/encode"
	"github.com/sixy6e/mbtrnpp/publish"
	"github.com/sixy6e/mbtrnpp/trn"
)

// defaultPublishPollTimeout bounds how long one cycle's Publish Server
// poll may block waiting for peer traffic when Controller.PublishPollTimeout
// is unset; it must stay small relative to the Frame Reader's own read
// timeout so polling peers never starves ping processing.
const defaultPublishPollTimeout = 5 * time.Millisecond

// Controller owns the top-level cycle. Every field it touches
// (Ring, Orchestrator's estimator, archive Backend) is exercised only
// from the Run goroutine, satisfying spec.md §5's single-writer rule.
type Controller struct {
	Source     decode.FrameSource
	Normalize  decode.Normalizer
	Extractor  *decode.Extractor
	Ring       *mbtrn.PingRing
	Filter     mbtrn.FilterParams

	MB1Publisher  *publish.Server
	TRNUPublisher *publish.Server
	TRNServer     *publish.Server
	Archive       archive.Backend
	Orchestrator  *trn.Orchestrator

	Stats              *mbtrn.Stats
	Delay              time.Duration
	PublishPollTimeout time.Duration

	cycle uint32
}

// Run drives the controller loop until ctx is cancelled or the input
// is exhausted (file source) or suffers a hard, unrecoverable error.
// Shutdown is polled between iterations, never mid-call, so shutdown
// latency is bounded by one adapter read timeout (spec.md §5).
func (c *Controller) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		done, err := c.step()
		if err != nil {
			return err
		}
		if done {
			return nil
		}

		if c.Delay > 0 {
			time.Sleep(c.Delay)
		}
	}
}

// step runs one controller iteration, returning done=true only on a
// clean end of input (file source exhausted).
func (c *Controller) step() (done bool, err error) {
	c.pollPublishServers()

	rec, err := c.Source.ReadRecord()
	if err != nil {
		return c.handleReadError(err)
	}

	if rec.Type != decode.MRZ && rec.Type != decode.MWC {
		return false, nil
	}

	norm, err := c.Normalize(rec)
	if err != nil {
		c.Stats.Count(mbtrn.InputMalformed)
		log.Warn("normalize failed, skipping record", "type", rec.Type, "err", err)
		return false, nil
	}

	ping := c.Extractor.Extract(norm)
	c.Stats.PingsRead.Add(1)
	c.Stats.SoundingsRead.Add(uint64(ping.Beams))

	processSlot, ready := c.Ring.Push(ping)
	if !ready {
		return false, nil
	}

	c.cycle++
	c.processPing(processSlot)
	return false, nil
}

// pollPublishServers gives every configured Publish Server instance
// one control-plane exchange and one heartbeat sweep per cycle, on the
// controller thread alongside the Frame Reader poll, so peer
// subscribe/heartbeat/request-reply traffic never needs its own
// goroutine (spec.md §4.6, §5).
func (c *Controller) pollPublishServers() {
	timeout := c.PublishPollTimeout
	if timeout <= 0 {
		timeout = defaultPublishPollTimeout
	}

	for _, srv := range [...]*publish.Server{c.MB1Publisher, c.TRNUPublisher, c.TRNServer} {
		if srv == nil {
			continue
		}
		if err := srv.Poll(timeout); err != nil {
			log.Warn("publish server poll failed", "server", srv.Name, "err", err)
		}
		if expired := srv.Sweep(); len(expired) > 0 {
			log.Debug("publish server swept expired peers", "server", srv.Name, "peers", expired)
		}
	}
}

// handleReadError applies spec.md §7's recovery policy for Frame
// Reader errors. Only a genuinely unclassified error on a
// non-reconnectable (file) source is treated as fatal.
func (c *Controller) handleReadError(err error) (done bool, fatal error) {
	switch {
	case errors.Is(err, decode.ErrWouldBlock):
		return false, nil
	case errors.Is(err, decode.ErrDisconnected):
		c.Stats.Count(mbtrn.InputDisconnected)
		if rc, ok := c.Source.(decode.Reconnectable); ok {
			if rerr := rc.Reconnect(); rerr != nil {
				log.Warn("reconnect failed, will retry next cycle", "err", rerr)
			}
		}
		return false, nil
	case errors.Is(err, decode.ErrEndOfStream):
		return true, nil
	case errors.Is(err, decode.ErrMalformed):
		c.Stats.Count(mbtrn.InputMalformed)
		return false, nil
	default:
		if _, reconnectable := c.Source.(decode.Reconnectable); reconnectable {
			log.Warn("input adapter error, continuing", "err", err)
			return false, nil
		}
		return false, err
	}
}

// processPing runs the Sounding Filter, MB1 Codec, and the three
// fan-out paths (publish, tee log, TRN) for one process-slot ping.
func (c *Controller) processPing(ping *mbtrn.Ping) {
	selected := mbtrn.Apply(c.Ring.Window(), ping, c.Filter)
	c.countFilterOutcome(ping, selected)

	mb1Bytes := encode.EncodeMB1(ping, selected)
	c.Stats.MB1Emitted.Add(1)

	if c.MB1Publisher != nil {
		c.MB1Publisher.Publish(mb1Bytes)
	}
	if c.Archive != nil {
		if err := c.Archive.Append(archive.Record{
			Kind: archive.MB1Record, PingNumber: ping.Number,
			ArrivedAt: ping.Timestamp.UnixNano(), Payload: mb1Bytes,
		}); err != nil {
			c.Stats.Count(mbtrn.LogWriteFail)
			log.Warn("tee log append failed", "err", err)
		}
	}

	if c.Orchestrator == nil {
		return
	}
	mb1View, err := encode.DecodeMB1(mb1Bytes)
	if err != nil {
		// encode/decode are each other's inverse by construction; reaching
		// here means a codec defect, not an input condition.
		log.Error("mb1 self-decode failed", "err", err)
		return
	}

	update, err := c.Orchestrator.Process(mb1View, ping.Gains.TransmitGain, c.cycle, ping.Number)
	if err != nil {
		c.Stats.Count(mbtrn.EstimatorFail)
		log.Warn("trn estimator update failed", "err", err)
		return
	}
	if update == nil {
		return
	}

	c.Stats.TRNUpdates.Add(1)
	if c.TRNUPublisher != nil {
		c.TRNUPublisher.Publish(encode.EncodeTRNU(*update))
	}
	if c.Archive != nil {
		if err := c.Archive.Append(archive.Record{
			Kind: archive.TRNURecord, PingNumber: ping.Number,
			ArrivedAt: time.Now().UnixNano(), Payload: encode.EncodeTRNU(*update),
		}); err != nil {
			c.Stats.Count(mbtrn.LogWriteFail)
			log.Warn("tee log append failed", "err", err)
		}
	}
}

// countFilterOutcome tallies the per-beam filter disposition for the
// periodic statistics output (spec.md §7).
func (c *Controller) countFilterOutcome(ping *mbtrn.Ping, selected []int) {
	c.Stats.SoundingsValid.Add(uint64(len(selected)))
	for i := 0; i < ping.Beams; i++ {
		switch {
		case ping.Soundings[i].Flag == mbtrn.Null:
			c.Stats.SoundingsNull.Add(1)
		case ping.Soundings[i].Flag == mbtrn.FlaggedSonar:
			c.Stats.SoundingsFlagged.Add(1)
		case ping.FilterFlags[i] == mbtrn.FlaggedFilter:
			c.Stats.SoundingsTrimmed.Add(1)
		}
	}
}
