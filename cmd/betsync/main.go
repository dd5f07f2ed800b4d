package main

import (
	"fmt"
	"os"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/BetSync/internal/pkg/config"
	"github.com/ManuelReschke/BetSync/internal/pkg/env"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	env.SetupEnvFile()
	env.Export(config.EnvPrefix)
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	log.SetLevel(logLevel(cfg.LogLevel))

	command, args := os.Args[1], os.Args[2:]
	switch command {
	case "serve":
		err = runServe(cfg)
	case "worker":
		err = runWorker(cfg)
	case "sync":
		err = runSync(cfg, args)
	case "status":
		err = runStatus(cfg, args)
	case "estimate":
		err = runEstimate(cfg, args)
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "%s failed: %v\n", command, err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: betsync <command> [options]")
	fmt.Println("")
	fmt.Println("Commands:")
	fmt.Println("  serve                Start the HTTP API, the queue workers and the scheduler")
	fmt.Println("  worker               Start the queue workers only")
	fmt.Println("  sync [options]       Sync bets for a date range")
	fmt.Println("      --start-date     First day (YYYY-MM-DD), default --days-back days ago")
	fmt.Println("      --end-date       Last day (YYYY-MM-DD), default the first day")
	fmt.Println("      --channel        Restrict to one channel")
	fmt.Println("      --days-back      Day to sync when --start-date is omitted (default 1, yesterday)")
	fmt.Println("      --chunk-size     Override the configured chunk size")
	fmt.Println("      --background     Queue the sync instead of running it here")
	fmt.Println("  status <jobId>       Show the status of a background sync")
	fmt.Println("      --watch          Poll every 2 seconds until the job finishes")
	fmt.Println("  estimate [options]   Estimate the records a sync would write (same date options as sync)")
}

// logLevel maps a configured level onto the fiber logger
func logLevel(level string) log.Level {
	switch level {
	case "debug":
		return log.LevelDebug
	case "warn":
		return log.LevelWarn
	case "error":
		return log.LevelError
	default:
		return log.LevelInfo
	}
}
