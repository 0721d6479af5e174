package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/xprocd/xproc"
)

type command struct {
	flags *GlobalFlags
	out   io.Writer
}

// loadConfig reads the config file when one was given.
func (c *command) loadConfig() (*xproc.FileConfig, error) {
	if c.flags.ConfigPath == "" {
		return nil, nil
	}
	return xproc.LoadConfig(c.flags.ConfigPath)
}

// controlRoot resolves the control root: a root from the config file wins
// over the flag default.
func (c *command) controlRoot(cfg *xproc.FileConfig) string {
	if cfg != nil && cfg.Root != "" {
		return cfg.Root
	}
	return c.flags.Root
}

// buildSupervisor assembles the supervisor with the ambient pieces the
// config asks for: logger, global env, launch-history store.
func (c *command) buildSupervisor(cfg *xproc.FileConfig) (*xproc.Supervisor, xproc.HistoryStore, error) {
	opts := []xproc.Option{}
	var hist xproc.HistoryStore
	if cfg != nil {
		opts = append(opts, xproc.WithLogger(cfg.Log.New()))
		if len(cfg.Env) > 0 {
			opts = append(opts, xproc.WithGlobalEnv(cfg.Env))
		}
		if cfg.StoreDSN != "" {
			st, err := xproc.NewHistoryStore(cfg.StoreDSN)
			if err != nil {
				return nil, nil, fmt.Errorf("opening history store: %w", err)
			}
			if err := st.EnsureSchema(context.Background()); err != nil {
				_ = st.Close()
				return nil, nil, fmt.Errorf("preparing history store: %w", err)
			}
			hist = st
			opts = append(opts, xproc.WithStore(st))
		}
	}
	sup, err := xproc.New(c.controlRoot(cfg), opts...)
	if err != nil {
		if hist != nil {
			_ = hist.Close()
		}
		return nil, nil, err
	}
	return sup, hist, nil
}

// Ensure launches one or all configured processes and waits for readiness.
func (c *command) Ensure(f EnsureFlags) error {
	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	if cfg == nil {
		return fmt.Errorf("ensure requires --config")
	}
	sup, hist, err := c.buildSupervisor(cfg)
	if err != nil {
		return err
	}
	if hist != nil {
		defer func() { _ = hist.Close() }()
	}

	defs := cfg.Processes
	if f.Name != "" {
		d, ok := cfg.Find(f.Name)
		if !ok {
			return fmt.Errorf("process %q not defined in config", f.Name)
		}
		defs = []xproc.ProcDef{d}
	}
	for _, d := range defs {
		def := d
		factory := func(sc xproc.StrategyContext) (xproc.Strategy, error) {
			return def.Starter(), nil
		}
		pid, logPath, err := sup.Ensure(context.Background(), def.Name, factory, f.Restart)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(c.out, "%d %s %s\n", pid, def.Name, logPath)
	}
	return nil
}

// List prints one line per tracked entry.
func (c *command) List() error {
	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	sup, hist, err := c.buildSupervisor(cfg)
	if err != nil {
		return err
	}
	if hist != nil {
		defer func() { _ = hist.Close() }()
	}
	rows, err := sup.StatusAll()
	if err != nil {
		return err
	}
	for _, r := range rows {
		_, _ = fmt.Fprintln(c.out, renderStatus(r))
	}
	return nil
}

// Terminate stops one or all tracked entries, printing an outcome line per
// entry. It errors unless at least one process was actually terminated.
func (c *command) Terminate(f TerminateFlags) error {
	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	sup, hist, err := c.buildSupervisor(cfg)
	if err != nil {
		return err
	}
	if hist != nil {
		defer func() { _ = hist.Close() }()
	}

	if f.Name != "" {
		res, err := sup.Terminate(context.Background(), f.Name)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintln(c.out, renderOutcome(f.Name, res))
		if res != xproc.TermTerminated {
			return fmt.Errorf("%s was not terminated", f.Name)
		}
		return nil
	}

	sum, err := sup.TerminateAll(context.Background())
	if err != nil {
		return err
	}
	for _, e := range sum.Entries {
		_, _ = fmt.Fprintln(c.out, renderOutcome(e.Name, e.Result))
	}
	if !sum.Terminated() {
		return fmt.Errorf("no tracked process terminated")
	}
	return nil
}

// Serve runs the HTTP control surface until interrupted. Tracked processes
// are left running on shutdown.
func (c *command) Serve(f ServeFlags) error {
	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	sup, hist, err := c.buildSupervisor(cfg)
	if err != nil {
		return err
	}
	if hist != nil {
		defer func() { _ = hist.Close() }()
	}

	mux := http.NewServeMux()
	mux.Handle("/", xproc.NewHTTPHandler(f.BasePath, sup, hist))
	if f.Metrics {
		if err := xproc.RegisterMetrics(prometheus.DefaultRegisterer); err != nil {
			return err
		}
		mux.Handle("/metrics", xproc.MetricsHandler())
	}
	srv := &http.Server{
		Addr:              f.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case s := <-sig:
		_, _ = fmt.Fprintf(c.out, "received %s, shutting down\n", s)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	}
}

func renderStatus(r xproc.StatusRow) string {
	live := "DEAD"
	if r.Live {
		live = "LIVE"
	}
	return fmt.Sprintf("%d %s %s %s", r.PID, r.Name, live, r.LogPath)
}

func renderOutcome(name string, res xproc.TermResult) string {
	switch res {
	case xproc.TermTerminated:
		return fmt.Sprintf("TERMINATED %s", name)
	case xproc.TermNoOp:
		return fmt.Sprintf("NO PROCESS FOUND for %s", name)
	default:
		return fmt.Sprintf("FAILED TO TERMINATE %s", name)
	}
}
