package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"kvbench/client/kvserver"
	"kvbench/client/logger"
	"kvbench/control/constants"
)

// Standalone build of benchctl serve, for hosts that only need the reference server.
func main() {
	listen := flag.String("listen", constants.DEFAULT_LISTEN_ADDR, "Address to listen on")
	logFile := flag.String("log-file", "", "Also write the log to this file")
	logLevel := flag.String("log-level", constants.DEFAULT_LOG_LEVEL, "Log level: debug, info, warn or error")
	flag.Parse()

	level, err := logger.ParseLevel(*logLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log, err := logger.NewLogger(*logFile, level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := kvserver.Run(ctx, *listen, log); err != nil {
		log.Errorw("Failed to serve", "error", err)
		log.Close()
		os.Exit(1)
	}
}
