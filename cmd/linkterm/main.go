// LinkTerm: interactive terminal for a serial, BLE or WebSocket link to an embedded device.
// Shows incoming lines, sends typed commands, streams held keys and runs link diagnostics.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"LinkTerm/internal/config"
	"LinkTerm/internal/console"
	"LinkTerm/internal/core"
	"LinkTerm/internal/fault"
	"LinkTerm/internal/model"
	"LinkTerm/internal/store"
	"LinkTerm/internal/util"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfgPath := flag.String("c", "", "config file (default ./linkterm.yaml or ./config/linkterm.yaml)")
	transport := flag.String("transport", "", "link transport: serial, ble, websocket, loopback")
	port := flag.String("port", "", "serial port (asks when empty)")
	baud := flag.Int("baud", 0, "serial baud rate")
	url := flag.String("url", "", "websocket URL")
	dump := flag.Bool("dump-config", false, "print the effective configuration and exit")
	history := flag.Int("history", 0, "print the last N diagnostic runs and exit")
	flag.Parse()

	loader, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return 2
	}
	overrides := map[string]any{}
	if *transport != "" {
		overrides["link.transport"] = *transport
	}
	if *port != "" {
		overrides["serial.port"] = *port
	}
	if *baud > 0 {
		overrides["serial.baud_rate"] = *baud
	}
	if *url != "" {
		overrides["websocket.url"] = *url
	}
	for k, v := range overrides {
		if err := loader.Set(k, v); err != nil {
			fmt.Fprintf(os.Stderr, "config: %v\n", err)
			return 2
		}
	}
	cfg := loader.Get()

	if *dump {
		out, err := config.Dump(cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "config: %v\n", err)
			return 2
		}
		fmt.Print(out)
		return 0
	}

	if *history > 0 {
		return printHistory(cfg.Store, *history)
	}

	logger, err := util.SetupLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		return 2
	}
	defer util.Sync()
	sessionID := uuid.NewString()
	logger = logger.With(zap.String("session", sessionID))
	logger.Info("linkterm starting", zap.String("config", loader.File()), zap.String("transport", cfg.Link.Transport))

	input, out, err := console.NewTerminal("> ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "console: %v\n", err)
		return 1
	}
	defer input.Close()
	display := console.NewDisplay(out, cfg.Display)
	printBanner(display, cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sys := core.NewSystem(cfg, display, input, logger)
	if cfg.Store.Enabled {
		st, err := store.Open(cfg.Store.Path)
		if err != nil {
			// history is optional; keep going without it
			logger.Warn("store unavailable", zap.Error(err))
		} else {
			defer st.Close()
			sys.UseStore(st, sessionID)
		}
	}
	defer func() {
		if cerr := sys.Close(); cerr != nil {
			logger.Warn("close link", zap.Error(cerr))
		}
	}()

	ok, err := sys.Connect(ctx)
	if err != nil {
		display.Failure("Cannot connect: %v", err)
		logger.Error("connect failed", zap.Error(err))
		if fault.IsFatal(err) {
			return 1
		}
		return 0
	}
	if !ok {
		display.Notice("No device selected.")
		return 0
	}

	loader.Watch(sys.ApplyConfig, func(err error) {
		logger.Warn("config reload rejected", zap.Error(err))
		display.Failure("Config reload rejected: %v", err)
	})

	if err := sys.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		display.Failure("Session ended: %v", err)
		logger.Error("session failed", zap.Error(err))
		return 1
	}
	display.Notice("Bye.")
	return 0
}

func printBanner(d *console.Display, cfg *model.Config) {
	d.Clear()
	d.Success("LinkTerm")
	d.Notice("transport: %s, read timeout: %s", cfg.Link.Transport, cfg.Link.ReadTimeout)
}

func printHistory(cfg model.StoreConfig, n int) int {
	st, err := store.Open(cfg.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "store: %v\n", err)
		return 1
	}
	defer st.Close()
	recs, err := st.History(n)
	if err != nil {
		fmt.Fprintf(os.Stderr, "store: %v\n", err)
		return 1
	}
	for _, r := range recs {
		ts := r.Time.Format("2006-01-02 15:04:05")
		switch {
		case r.Error != "":
			fmt.Printf("%s  %-7s  %-28s  error: %s\n", ts, r.Kind, r.Link, r.Error)
		case r.Kind == "latency" && r.NoData:
			fmt.Printf("%s  %-7s  %-28s  no data (0/%d)\n", ts, r.Kind, r.Link, r.Iterations)
		case r.Kind == "latency":
			fmt.Printf("%s  %-7s  %-28s  %d/%d  mean %.3f ms  min %.3f  max %.3f\n",
				ts, r.Kind, r.Link, r.Valid, r.Iterations, r.MeanMs, r.MinMs, r.MaxMs)
		default:
			fmt.Printf("%s  %-7s  %-28s  %d bytes in %s  %.3f Mbps\n", ts, r.Kind, r.Link, r.Bytes, r.Elapsed, r.Mbps)
		}
	}
	return 0
}
