package logger_test

import (
	"fmt"
	"os"

	"github.com/ethan/mediabridge/pkg/logger"
)

// Example showing basic logger usage
func ExampleLogger_basic() {
	cfg := logger.NewConfig()
	cfg.Level = logger.LevelInfo
	cfg.Format = logger.FormatText

	log, err := logger.New(cfg)
	if err != nil {
		panic(err)
	}
	defer log.Close()

	log.Info("bridge started", "version", "1.0.0")
	log.Warn("deprecated command used", "kind", "update_devices")
	log.Error("worker failed to start", "error", "backend unavailable")
}

// Example showing debug category usage
func ExampleLogger_categories() {
	cfg := logger.NewConfig()
	cfg.Level = logger.LevelDebug
	cfg.EnableCategory(logger.DebugState)
	cfg.EnableCategory(logger.DebugQueue)

	log, err := logger.New(cfg)
	if err != nil {
		panic(err)
	}
	defer log.Close()

	log.DebugStateTransition("idle", "busy", "start")
	log.DebugQueueDepth("frame", 3, false)

	log.DebugState("command posted", "kind", "start")
	log.DebugQueue("drain scheduled", "pending", true)
}

// Example showing command-line flags integration
func ExampleFlags() {
	// In main.go:
	// import (
	//     "flag"
	//     "github.com/ethan/mediabridge/pkg/logger"
	// )
	//
	// fs := flag.NewFlagSet("bridgectl", flag.ExitOnError)
	// logFlags := logger.RegisterFlags(fs)
	// fs.Parse(os.Args[1:])
	//
	// logConfig, _ := logFlags.ToConfig()
	// log, _ := logger.New(logConfig)
	// defer log.Close()

	fmt.Println("See cmd/bridgectl/main.go for complete example")
}

// Example showing JSON format output
func ExampleLogger_json() {
	cfg := logger.NewConfig()
	cfg.Level = logger.LevelInfo
	cfg.Format = logger.FormatJSON
	cfg.OutputFile = "app.json"

	log, err := logger.New(cfg)
	if err != nil {
		panic(err)
	}
	defer log.Close()
	defer os.Remove("app.json")

	log.Info("bridge attached",
		"bridge_id", "12345",
		"worker_backend", "fake",
		"duration_ms", 250)

	// Output will be in JSON format:
	// {"time":"...","level":"INFO","msg":"bridge attached","bridge_id":"12345","worker_backend":"fake","duration_ms":250}
}

// Example showing conditional debug logging
func ExampleLogger_conditional() {
	cfg := logger.NewConfig()
	cfg.EnableCategory(logger.DebugQueue)

	log, err := logger.New(cfg)
	if err != nil {
		panic(err)
	}
	defer log.Close()

	// This will only execute if DebugQueue is enabled
	image := make([]byte, 1024)
	log.DebugQueue("frame coalesced", "kind", "preview", "size", len(image))

	// Category methods automatically check if enabled
	log.DebugState("command dispatched", "kind", "status")
}
