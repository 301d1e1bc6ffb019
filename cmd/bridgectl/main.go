// Command bridgectl hosts a configurable fleet of workerapi.Worker-backed
// control bridges behind a supervisor, with flag parsing, logger bring-up,
// signal-driven graceful shutdown, and an HTTP status surface.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/ethan/mediabridge/pkg/config"
	"github.com/ethan/mediabridge/pkg/httpapi"
	"github.com/ethan/mediabridge/pkg/localendpoint"
	"github.com/ethan/mediabridge/pkg/logger"
	"github.com/ethan/mediabridge/pkg/message"
	"github.com/ethan/mediabridge/pkg/refworker"
	"github.com/ethan/mediabridge/pkg/supervisor"
	"github.com/ethan/mediabridge/pkg/workerapi"
	"github.com/ethan/mediabridge/pkg/workerapi/fakeworker"
)

func main() {
	fs := flag.NewFlagSet("bridgectl", flag.ExitOnError)
	logFlags := logger.RegisterFlags(fs)
	envPath := fs.String("env", ".env", "path to a .env-style config file")
	bridgeIDs := fs.String("bridges", "bridge-0", "comma-separated list of bridge IDs to supervise")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Control-bridge fleet host\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
		logger.PrintUsageExamples()
	}

	if err := fs.Parse(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error parsing flags: %v\n", err)
		os.Exit(1)
	}

	logConfig, err := logFlags.ToConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error configuring logger: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Close()
	logger.SetDefault(log)

	log.Info("starting bridgectl", "log_config", logFlags.String())

	cfg, err := config.Load(*envPath)
	if err != nil {
		log.Warn("failed to load config file, using defaults", "path", *envPath, "error", err)
		cfg = config.Default()
	}
	log.Info("configuration loaded", "listen_addr", cfg.ListenAddr, "worker_backend", cfg.WorkerBackend, "qpm", cfg.QPM)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	newWorker := func(bridgeID string) workerapi.Worker {
		switch cfg.WorkerBackend {
		case config.BackendWebRTC:
			return refworker.New(log.With("bridge_id", bridgeID))
		default:
			w := fakeworker.New()
			w.AutoComplete = true
			return w
		}
	}

	newCallbacks := func(bridgeID string) localendpoint.Callbacks {
		bl := log.With("bridge_id", bridgeID)
		return localendpoint.Callbacks{
			PreviewFrame: func(img []byte) {
				bl.DebugEvents("preview frame delivered", "size", len(img))
			},
			OutputFrame: func(img []byte) {
				bl.DebugEvents("output frame delivered", "size", len(img))
			},
			AudioIntensityChanged: func(level int) {
				bl.DebugEvents("audio intensity changed", "level", level)
			},
			StatusReady: func(status message.WorkerStatus) {
				bl.Info("status ready",
					"can_transmit_audio", status.CanTransmitAudio,
					"can_transmit_video", status.CanTransmitVideo,
					"stopped", status.Stopped,
					"finished", status.Finished,
					"error", status.Error,
					"error_code", status.ErrorCode)
			},
		}
	}

	newStartConfig := func(bridgeID string) (message.DevicesConfig, message.CodecsConfig) {
		return message.DevicesConfig{
				AudioOutID:     "default",
				AudioInID:      "default",
				VideoInID:      bridgeID,
				AudioOutVolume: 100,
				AudioInVolume:  100,
			}, message.CodecsConfig{
				UseLocalAudioParams: true,
				LocalAudioParams:    message.CodecParams{Name: "Opus", ClockRate: 48000},
				UseLocalVideoParams: true,
				LocalVideoParams:    message.CodecParams{Name: "H264", ClockRate: 90000},
			}
	}

	supCfg := supervisor.DefaultConfig()
	supCfg.QPM = cfg.QPM
	sup := supervisor.New(supCfg, newWorker, newCallbacks, newStartConfig, log.With("component", "supervisor"))
	sup.Start()

	ids := parseBridgeIDs(*bridgeIDs)
	if err := sup.StartBridges(ctx, ids); err != nil && ctx.Err() == nil {
		log.Error("failed to start bridges", "error", err)
		os.Exit(1)
	}

	status := httpapi.NewServer(sup, log.With("component", "httpapi"))
	if err := status.Start(cfg.ListenAddr); err != nil {
		log.Error("failed to start status server", "error", err)
		os.Exit(1)
	}

	log.Info("bridgectl ready", "bridges", ids, "listen_addr", cfg.ListenAddr)

	<-ctx.Done()

	log.Info("shutting down")
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	if err := status.Stop(stopCtx); err != nil {
		log.Error("error stopping status server", "error", err)
	}
	if err := sup.Stop(); err != nil {
		log.Error("error stopping supervisor", "error", err)
	}

	log.Info("graceful shutdown complete")
}

func parseBridgeIDs(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for i, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			p = "bridge-" + strconv.Itoa(i)
		}
		out = append(out, p)
	}
	return out
}
