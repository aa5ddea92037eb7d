// Command clunetd runs a single CLUNET station against a Linux GPIO
// character-device line, optionally tracing every sniffed frame to disk and
// exposing a TCP bridge for remote tools (§9 supplement 1, 6).
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
	"github.com/clunet-go/clunet/trace"
)

var (
	configPath = pflag.StringP("config", "c", "/etc/clunetd.yaml", "Path to the clunetd YAML config file")
	help       = pflag.BoolP("help", "h", false, "Display help text")
)

func main() {
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: clunetd [options]\n\n")
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
		return fmt.Errorf("clunetd: loading config: %w", err)
	}

	logger := log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: true})
	if cfg.Log.Level != "" {
		if lvl, err := log.ParseLevel(cfg.Log.Level); err == nil {
			logger.SetLevel(lvl)
		}
	}
	if cfg.Log.JSON {
		logger.SetFormatter(log.JSONFormatter)
	}

	chip := cfg.Line.Chip
	if chip == "" {
		discovered, err := gpiocdev.DiscoverChip()
		if err != nil {
			return fmt.Errorf("clunetd: discovering gpio chip: %w", err)
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
		return fmt.Errorf("clunetd: opening line: %w", err)
	}

	if cfg.Trace.Path != "" {
		rec, err := trace.New(cfg.Trace.Path)
		if err != nil {
			return fmt.Errorf("clunetd: opening trace: %w", err)
		}
		defer rec.Close()
		station.SetOnDataReceivedSniff(func(src, dst, command uint8, payload []byte) {
			if err := rec.Record(src, dst, command, payload); err != nil {
				logger.Warn("trace write failed", "err", err)
			}
		})
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if cfg.Bridge.ListenAddr != "" {
		br := bridge.New(station, logger)
		go func() {
			if err := br.Serve(ctx, cfg.Bridge.ListenAddr); err != nil {
				logger.Error("bridge stopped", "err", err)
			}
		}()
		if cfg.Bridge.Advertise {
			name := cfg.Bridge.ServiceName
			if name == "" {
				name = fmt.Sprintf("clunetd-%d", cfg.Device.ID)
			}
			_, port, err := splitPort(cfg.Bridge.ListenAddr)
			if err == nil {
				if err := bridge.Advertise(ctx, logger, name, port); err != nil {
					logger.Warn("dns-sd advertise failed", "err", err)
				}
			}
		}
	}

	station.Init()
	logger.Info("clunetd running", "device_id", cfg.Device.ID, "chip", chip, "line", cfg.Line.Line)

	<-ctx.Done()
	logger.Info("shutting down")
	return nil
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
