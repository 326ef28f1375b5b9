// Firmware simulator: answers like the peripheral on a serial device so LinkTerm can be
// exercised without hardware. With -pair it creates a socat virtual serial pair first;
// point LinkTerm at the host side.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"LinkTerm/internal/device"
	"LinkTerm/internal/model"
	"LinkTerm/internal/util"
)

func main() {
	if err := run(); err != nil {
		util.Error("linksim: %v", err)
		util.Sync()
		log.Fatalf("linksim: %v", err)
	}
}

func run() error {
	dev := flag.String("dev", "/tmp/linkterm-dev", "serial device the simulator serves")
	baud := flag.Int("baud", 115200, "baud rate")
	pair := flag.String("pair", "", "create a socat pty pair and link the host side at this path (e.g. /tmp/linkterm-host)")
	delay := flag.Duration("delay", 2*time.Millisecond, "reply delay")
	heartbeat := flag.Duration("heartbeat", time.Second, "heartbeat interval (0 disables)")
	ack := flag.Bool("ack", false, "acknowledge throughput payloads")
	silent := flag.Bool("silent", false, "never reply (timeout testing)")
	level := flag.String("log-level", "info", "log level")
	flag.Parse()

	logger, err := util.SetupLogger(model.LogConfig{Level: *level, Format: "console", Output: "stderr"})
	if err != nil {
		return fmt.Errorf("setup logger: %w", err)
	}
	defer util.Sync()

	if *pair != "" {
		socat := util.NewSocatManager()
		defer socat.Cleanup()
		if err := socat.CreatePair(*dev, *pair, 5*time.Second); err != nil {
			return fmt.Errorf("create virtual serial pair: %w", err)
		}
		util.Info("connect LinkTerm to %s", *pair)
	}

	port, err := device.NewSerialDevice(*dev, *baud)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := port.Close(); cerr != nil {
			util.Error("warning: close serial err: %v", cerr)
		}
	}()

	cfg := device.DefaultSimulatorConfig()
	cfg.ReplyDelay = *delay
	cfg.Heartbeat = *heartbeat
	cfg.Ack = *ack
	cfg.Silent = *silent
	sim := device.NewSimulator("linksim", port, cfg, logger)

	stop := make(chan struct{})
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigs
		close(stop)
	}()

	logger.Info("simulator serving", zap.String("port", port.Name()))
	return sim.StartSimulation(stop)
}
