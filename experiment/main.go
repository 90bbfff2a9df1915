package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"microsim-control-core/utils"
)

func main() {
	var (
		iface    = flag.String("iface", "vcan0", "SocketCAN interface name")
		mapPath  = flag.String("map", "config/can/sim_map.csv", "Path to the signal map CSV")
		scenPath = flag.String("scenario", "experiment/scenarios/freeway_idm.json", "Scenario JSON file")
		runs     = flag.Int("runs", 1, "Number of back-to-back runs")
		seed     = flag.Int64("seed", 1, "Base seed for actuation noise")
		emitPath = flag.String("emissions", "", "Optional sqlite path for emission records")
		report   = flag.String("report", "", "Optional HTML path for the speed report")
		logLevel = flag.String("log", "info", "trace|debug|info|warn|error|critical")
	)
	flag.Parse()

	log, err := utils.NewFileLogger("experiment.log", utils.ParseLevel(*logLevel), true)
	if err != nil {
		fmt.Fprintln(os.Stderr, "ERROR: cannot open experiment.log:", err)
		os.Exit(1)
	}
	defer log.Close()

	cfg := RunnerConfig{
		Interface:      *iface,
		MapPath:        *mapPath,
		ScenarioPath:   *scenPath,
		EmissionDBPath: *emitPath,
		ReportPath:     *report,
		Runs:           *runs,
		Seed:           *seed,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runner, err := NewRunner(ctx, cfg, log)
	if err != nil {
		log.Critical("Startup failed: %v", err)
		os.Exit(1)
	}
	defer runner.Close()

	sum, err := runner.Run(ctx)
	if err != nil && err != context.Canceled {
		log.Critical("Run failed: %v", err)
		os.Exit(1)
	}

	fmt.Printf("Speed (m/s): %.2f (avg), %.2f (std)\n", sum.AvgSpeed, sum.StdSpeed)
	fmt.Printf("Return: %.2f (avg), %.2f (std)\n", sum.AvgReturn, sum.StdReturn)
	fmt.Printf("Throughput (out/in): %.2f (avg)\n", sum.Throughput)
}
