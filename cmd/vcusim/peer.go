package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/notnil/vcucan/canbus"
	"github.com/notnil/vcucan/codec"
	"github.com/notnil/vcucan/internal/config"
)

// Peer payload layout: a rolling counter and the peer's uptime in tenths of
// a second.
var (
	peerCounter = codec.Field[uint8]{Start: 0, End: 0}
	peerUptime  = codec.Field[uint16]{Start: 1, End: 2, Precision: 0.1}
)

// peer is a simulated remote node on the loopback bus. It transmits every
// inbound identifier once per period and consumes whatever the VCU sends.
type peer struct {
	bus       canbus.Bus
	ids       []uint32
	period    time.Duration
	stopAfter time.Duration
	logger    *slog.Logger

	counter  uint8
	received uint64
	silent   bool
}

func newPeer(bus canbus.Bus, ids []uint32, cfg config.PeerConfig, logger *slog.Logger) *peer {
	return &peer{
		bus:       bus,
		ids:       ids,
		period:    cfg.Period,
		stopAfter: cfg.StopAfter,
		logger:    logger,
	}
}

func (p *peer) run(ctx context.Context) error {
	ticker := time.NewTicker(p.period)
	defer ticker.Stop()
	start := time.Now()
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("vcusim peer stopped", "received", p.received)
			return nil
		case <-ticker.C:
			p.step(time.Since(start))
		}
	}
}

// step sends one round of frames (unless silenced) and drains the VCU's
// transmissions.
func (p *peer) step(uptime time.Duration) {
	if p.stopAfter > 0 && uptime > p.stopAfter {
		if !p.silent {
			p.silent = true
			p.logger.Info("vcusim peer went silent", "after", p.stopAfter)
		}
	} else {
		p.counter++
		var data [8]byte
		peerCounter.Set(&data, p.counter)
		peerUptime.SetFloat(&data, uptime.Seconds())
		for _, id := range p.ids {
			if err := p.bus.Send(canbus.NewFrame(id, 3, data)); err != nil {
				p.logger.Warn("vcusim peer send failed", "id", id, "error", err)
			}
		}
	}

	for {
		f, ok, err := p.bus.TryReceive()
		if err != nil {
			p.logger.Warn("vcusim peer receive failed", "error", err)
			return
		}
		if !ok {
			return
		}
		p.received++
		p.logger.Debug("vcusim peer got frame", "frame", f.String())
	}
}
