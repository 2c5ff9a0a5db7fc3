package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/notnil/vcucan"
	"github.com/notnil/vcucan/canbus"
	"github.com/notnil/vcucan/fault"
	"github.com/notnil/vcucan/internal/config"
	"github.com/notnil/vcucan/internal/observability"
	"github.com/notnil/vcucan/internal/status"
)

func newRunCmd(cfgPath *string) *cobra.Command {
	var duration time.Duration
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the driver loop",
		Long: `Run registers the configured mailboxes and ticks the driver until
interrupted (or for --duration). On a loopback bus a simulated peer
transmits the inbound identifiers.

Examples:
  vcusim run
  vcusim run -c vcusim.yaml --duration 5s`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			zl, err := observability.SetupLogger(cfg.Log)
			if err != nil {
				return fmt.Errorf("setup logger: %w", err)
			}
			defer func() { _ = zl.Sync() }()
			logger := observability.Slog(zl)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if duration > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, duration)
				defer cancel()
			}
			return run(ctx, cfg, logger)
		},
	}
	cmd.Flags().DurationVar(&duration, "duration", 0, "Stop after this long (0 runs until interrupted)")
	return cmd
}

// run wires the simulator together and blocks until ctx is done or a
// component fails.
func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	loop := canbus.NewLoopbackBus()
	defer loop.Close()

	bus, closer, err := openBus(cfg, loop, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := closer.Close(); err != nil {
			logger.Warn("vcusim close bus", "error", err)
		}
	}()

	reg := vcucan.NewRegistry()
	if err := registerMailboxes(reg, cfg, logger); err != nil {
		return err
	}

	var (
		faults fault.Vector
		mu     sync.Mutex
	)
	drv := vcucan.NewDriver(reg, bus,
		vcucan.WithLogger(logger),
		vcucan.WithFaultSink(&faults),
		vcucan.WithErrorPolicy(cfg.Policy()),
		vcucan.WithLocker(&mu),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := drv.Run(gctx, cfg.TickInterval, func(err error) {
			logger.Debug("vcusim tick error", "error", err)
		})
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil
		}
		return err
	})

	if cfg.Status.Listen != "" {
		srv := &http.Server{
			Addr:              cfg.Status.Listen,
			Handler:           status.NewRouter(status.NewHandler(drv, &faults, &mu, logger)),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			logger.Info("vcusim status listening", "addr", cfg.Status.Listen)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("status server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if cfg.Peer.Enable && cfg.Bus.Kind == "loopback" {
		p := newPeer(loop.OpenQueue(cfg.Bus.QueueLen), inboundIDs(cfg), cfg.Peer, logger)
		g.Go(func() error { return p.run(gctx) })
	}

	logger.Info("vcusim started",
		"bus", cfg.Bus.Kind,
		"tick", cfg.TickInterval,
		"policy", cfg.Policy().String(),
		"inbound", len(reg.InboxIDs()),
		"outbound", len(reg.OutboxIDs()),
	)
	err = g.Wait()

	mu.Lock()
	st := drv.Stats()
	mu.Unlock()
	logger.Info("vcusim stopped",
		"ticks", st.Ticks,
		"received", st.Received,
		"dropped", st.Dropped,
		"transmitted", st.Transmitted,
		"tx_errors", st.TxErrors,
		"rx_errors", st.RxErrors,
		"timeouts", st.Timeouts,
		"faults", faults.Bits().String(),
	)
	return err
}
