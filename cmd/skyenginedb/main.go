// Command skyenginedb is the process entry point: load config, open the GNS
// event log, build the DML engine and the fractal task manager, and block
// until a shutdown signal arrives.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/skyenginedb/skyengine/pkg/config"
	"github.com/skyenginedb/skyengine/pkg/engine/ddl"
	"github.com/skyenginedb/skyengine/pkg/engine/dml"
	"github.com/skyenginedb/skyengine/pkg/fractal"
)

func nowEpochNanos() uint64 {
	return uint64(time.Now().UnixNano())
}

func main() {
	cfg := config.LoadConfigOrDefault()

	ddlEngine, err := ddl.Open(cfg.Storage.DataRoot, cfg.Server.ServerVersion, cfg.Server.DriverVersion, nowEpochNanos)
	if err != nil {
		log.Fatal("failed to open GNS event log: ", err)
	}
	defer ddlEngine.Close()

	dmlEngine := dml.NewEngine(ddlEngine.GNS, cfg.Storage.DataRoot, cfg.Server.ServerVersion, cfg.Server.DriverVersion, nowEpochNanos)
	defer dmlEngine.Close()

	windowInterval, maxDeltaSize, highPriorityBuffer, standardBuffer := cfg.Fractal.ToFractalManagerFields()
	manager := fractal.New(fractal.Config{
		WindowInterval:     windowInterval,
		MaxDeltaSize:       maxDeltaSize,
		HighPriorityBuffer: highPriorityBuffer,
		StandardBuffer:     standardBuffer,
	}, dmlEngine.WriteBatchHandler)
	dmlEngine.Fractal = manager
	manager.Start()

	log.Printf("skyenginedb started (configured address %s is not served; data_root=%s)", cfg.ListenAddress(), cfg.Storage.DataRoot)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	log.Println("shutting down")
	manager.Shutdown()
}
