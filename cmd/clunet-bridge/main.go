// Command clunet-bridge runs only the TCP/DNS-SD bridge in front of a
// physical CLUNET station, for machines that want to sniff or inject frames
// without running the full clunetd daemon loop themselves.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/pflag"

	clunet "github.com/clunet-go/clunet"
	"github.com/clunet-go/clunet/bridge"
	"github.com/clunet-go/clunet/config"
	"github.com/clunet-go/clunet/hal/gpiocdev"
)

var (
	configPath = pflag.StringP("config", "c", "/etc/clunetd.yaml", "Path to the clunetd YAML config file")
	listenAddr = pflag.StringP("listen", "l", "", "Override the config's bridge.listen_addr")
	help       = pflag.BoolP("help", "h", false, "Display help text")
)

func main() {
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: clunet-bridge [options]\n\n")
		pflag.PrintDefaults()
	}
	pflag.Parse()
	if *help {
		pflag.Usage()
		return
	}

	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("clunet-bridge: loading config: %w", err)
	}
	addr := cfg.Bridge.ListenAddr
	if *listenAddr != "" {
		addr = *listenAddr
	}
	if addr == "" {
		addr = ":4470"
	}

	logger := log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: true})

	chip := cfg.Line.Chip
	if chip == "" {
		discovered, err := gpiocdev.DiscoverChip()
		if err != nil {
			return fmt.Errorf("clunet-bridge: discovering gpio chip: %w", err)
		}
		chip = discovered
	}

	opener := gpiocdev.Open(chip, cfg.Line.Line)
	station, err := clunet.NewStation(opener, clunet.Config{
		DeviceID:       cfg.Device.ID,
		DeviceName:     cfg.Device.Name,
		BitPeriodTicks: cfg.Device.BitTicks,
		SendBufferSize: cfg.Buffers.SendSize,
		ReadBufferSize: cfg.Buffers.ReadSize,
		Logger:         logger,
	})
	if err != nil {
		return fmt.Errorf("clunet-bridge: opening line: %w", err)
	}
	station.Init()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	br := bridge.New(station, logger)
	if cfg.Bridge.Advertise {
		if _, port, err := splitPort(addr); err == nil {
			if err := bridge.Advertise(ctx, logger, cfg.Bridge.ServiceName, port); err != nil {
				logger.Warn("dns-sd advertise failed", "err", err)
			}
		}
	}

	logger.Info("clunet-bridge running", "addr", addr)
	return br.Serve(ctx, addr)
}

func splitPort(addr string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, err
	}
	return host, port, nil
}
