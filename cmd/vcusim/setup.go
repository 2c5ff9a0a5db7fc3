package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/notnil/vcucan"
	"github.com/notnil/vcucan/canbus"
	"github.com/notnil/vcucan/internal/config"
)

// registerMailboxes allocates the mailboxes described by cfg and registers
// them. Storage lives as long as the registry keeps pointers into it.
func registerMailboxes(reg *vcucan.Registry, cfg *config.Config, logger *slog.Logger) error {
	for i, in := range cfg.Inbound {
		lo, hi := in.Range()
		if lo == hi {
			if _, dup := reg.Inbox(lo); dup {
				logger.Debug("vcusim duplicate inbound id ignored", "id", lo)
				continue
			}
			if err := reg.AddInbox(lo, new(vcucan.Inbox), in.Timeout); err != nil {
				return fmt.Errorf("inbound[%d]: %w", i, err)
			}
			continue
		}
		boxes := make([]vcucan.Inbox, hi-lo+1)
		if err := reg.AddInboxRange(lo, hi, boxes, in.Timeout); err != nil {
			return fmt.Errorf("inbound[%d]: %w", i, err)
		}
	}

	for i, out := range cfg.Outbound {
		lo, hi := out.Range()
		if lo == hi {
			if _, dup := reg.Outbox(lo); dup {
				logger.Debug("vcusim duplicate outbound id ignored", "id", lo)
				continue
			}
			box := new(vcucan.Outbox)
			box.Set(out.Data)
			if err := reg.AddOutbox(lo, out.Period, box); err != nil {
				return fmt.Errorf("outbound[%d]: %w", i, err)
			}
			continue
		}
		boxes := make([]vcucan.Outbox, hi-lo+1)
		for k := range boxes {
			boxes[k].Set(out.Data)
		}
		if err := reg.AddOutboxRange(lo, hi, out.Period, boxes); err != nil {
			return fmt.Errorf("outbound[%d]: %w", i, err)
		}
	}
	return nil
}

// inboundIDs lists every configured inbound identifier.
func inboundIDs(cfg *config.Config) []uint32 {
	var ids []uint32
	for _, in := range cfg.Inbound {
		lo, hi := in.Range()
		for id := lo; ; id++ {
			ids = append(ids, id)
			if id == hi {
				break
			}
		}
	}
	return ids
}

// openBus builds the driver's transport: the raw bus, then the optional CBOR
// recorder, then the optional frame logger. The returned closer releases
// everything openBus opened.
func openBus(cfg *config.Config, loop *canbus.LoopbackBus, logger *slog.Logger) (canbus.Bus, io.Closer, error) {
	var (
		bus canbus.Bus
		err error
	)
	switch cfg.Bus.Kind {
	case "socketcan":
		bus, err = dialSocketCAN(cfg.Bus.Iface, inboundIDs(cfg), logger)
		if err != nil {
			return nil, nil, err
		}
	default:
		bus = loop.OpenQueue(cfg.Bus.QueueLen)
	}

	closers := closerList{bus}
	if cfg.Bus.Record != "" {
		f, err := os.Create(cfg.Bus.Record)
		if err != nil {
			_ = closers.Close()
			return nil, nil, fmt.Errorf("create trace: %w", err)
		}
		rec := canbus.NewRecordingBus(bus, canbus.NewTraceWriter(f))
		closers = append(closers, f, closerFunc(rec.TraceErr))
		bus = rec
		logger.Info("vcusim recording trace", "path", cfg.Bus.Record)
	}
	if cfg.Bus.LogFrames {
		bus = canbus.NewLoggedBus(bus, logger, slog.LevelDebug, canbus.LogAll)
	}
	return bus, closers, nil
}

func dialSocketCAN(iface string, ids []uint32, logger *slog.Logger) (canbus.Bus, error) {
	up, err := canbus.IsInterfaceUp(iface)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", iface, err)
	}
	if !up {
		logger.Info("vcusim bringing interface up", "iface", iface)
		if err := canbus.SetInterfaceUp(iface); err != nil {
			return nil, canbus.RequireRootOrCapNetAdmin(fmt.Errorf("bring up %s: %w", iface, err))
		}
	}
	return canbus.DialSocketCAN(iface, canbus.WithReceiveIDs(ids...))
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// closerList closes in reverse order and returns the first error.
type closerList []io.Closer

func (c closerList) Close() error {
	var first error
	for i := len(c) - 1; i >= 0; i-- {
		if err := c[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
