// Command manager runs the messip central manager: the control-port
// name service and buffered-send broker, plus an HTTP introspection
// endpoint.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"

	"github.com/osingla/messip/internal/manager"
	"github.com/osingla/messip/messip"
)

var (
	flagPort     int
	flagHTTPPort int
	flagListen   string
	flagLogDir   string
	flagLockFile string
	flagLogLevel = newLevelValue(slog.LevelInfo)
)

// levelValue adapts slog.Level to pflag.Value so --log-level accepts
// the same names slog itself logs ("DEBUG", "INFO", "WARN", "ERROR").
type levelValue struct{ level *slog.Level }

func newLevelValue(def slog.Level) *levelValue {
	l := def
	return &levelValue{level: &l}
}

func (v *levelValue) String() string { return v.level.String() }
func (v *levelValue) Type() string   { return "level" }
func (v *levelValue) Set(s string) error {
	return v.level.UnmarshalText([]byte(s))
}

func main() {
	root := &cobra.Command{
		Use:   "manager",
		Short: "messip central manager",
		RunE:  run,
	}
	flags := root.Flags()
	flags.IntVarP(&flagPort, "port", "p", 0, "control port (0: resolve from config/default)")
	flags.IntVarP(&flagHTTPPort, "http-port", "H", 0, "HTTP introspection port (0: resolve from config/default)")
	flags.StringVarP(&flagLogDir, "log-dir", "l", "", "optional log directory, one flock-serialized file per day (empty: console only)")
	flags.StringVar(&flagListen, "listen", "0.0.0.0", "listen address")
	flags.StringVar(&flagLockFile, "lock-file", "/var/run/messip-manager.lock", "advisory lock file preventing a second instance")
	flags.VarP(flagLogLevel, "log-level", "v", "log level: DEBUG, INFO, WARN, or ERROR")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	handler := slog.Handler(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: *flagLogLevel.level}))
	if flagLogDir != "" {
		if err := os.MkdirAll(flagLogDir, 0o755); err != nil {
			return fmt.Errorf("creating log directory: %w", err)
		}
		handler = manager.NewTeeHandler(handler, manager.NewDailyLogHandler(flagLogDir, "messip_mgr"))
	}
	logger := messip.NewLogger("manager", handler)
	manager.SetLogger(logger)

	unlock, err := acquireLock(flagLockFile)
	if err != nil {
		return fmt.Errorf("another manager instance appears to be running: %w", err)
	}
	defer unlock()

	port := messip.ResolvePort(flagPort)
	httpPort := messip.ResolveHTTPPort(flagHTTPPort)

	srv, err := manager.NewServer(net.JoinHostPort(flagListen, strconv.Itoa(port)))
	if err != nil {
		return fmt.Errorf("binding control port: %w", err)
	}
	logger.Info("control port bound", "addr", srv.Addr().String())

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	httpSrv := &http.Server{
		Addr:    net.JoinHostPort(flagListen, strconv.Itoa(httpPort)),
		Handler: manager.NewHTTPHandler(srv.Registry),
	}
	go func() {
		logger.Info("http introspection listening", "addr", httpSrv.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server stopped", "err", err)
		}
	}()

	go func() {
		manager.WatchSignals(ctx, srv.Registry)
		cancel()
	}()

	err = srv.Serve(ctx)
	_ = httpSrv.Close()
	return err
}

// acquireLock takes an advisory exclusive flock on path, creating it
// if necessary, so a second manager can't silently split-brain the
// registry. The returned func releases it.
func acquireLock(path string) (func(), error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		_ = f.Close()
		return nil, err
	}
	return func() {
		_ = unix.Flock(int(f.Fd()), unix.LOCK_UN)
		_ = f.Close()
	}, nil
}
