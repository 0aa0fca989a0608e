package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
)

var (
	serverURL = flag.String("server", "ws://localhost:8080/", "Central system WebSocket URL")
	vendor    = flag.String("vendor", "MicroOcpp", "chargePointVendor for BootNotification")
	model     = flag.String("model", "MicroOcpp Simulator", "chargePointModel for BootNotification")
	idTag     = flag.String("idtag", "12345", "idTag used for Authorize and transactions")
	connector = flag.Int("connector", 1, "connector used for the charging scenario")
	meterStart = flag.Int("meter-start", 0, "meterStart value for StartTransaction")
	scenario  = flag.Bool("scenario", false, "run a full boot/authorize/charge/stop scenario and exit")
	heartbeat = flag.Duration("heartbeat", 0, "heartbeat period (0 disables periodic heartbeats)")
	verbose   = flag.Bool("verbose", false, "enable verbose logging")
)

func main() {
	flag.Parse()

	var logger *zap.Logger
	var err error
	if *verbose {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	sim := NewSimulator(&SimulatorConfig{
		ServerURL:  *serverURL,
		Vendor:     *vendor,
		Model:      *model,
		IdTag:      *idTag,
		Connector:  *connector,
		MeterStart: *meterStart,
		Heartbeat:  *heartbeat,
	}, logger)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\nShutting down simulator...")
		sim.Stop()
		os.Exit(0)
	}()

	if err := sim.Connect(); err != nil {
		logger.Fatal("Failed to connect to central system", zap.Error(err))
	}

	if *scenario {
		if err := sim.RunScenario(); err != nil {
			logger.Fatal("Scenario failed", zap.Error(err))
		}
		sim.Stop()
		return
	}

	sim.Run()
}
