package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"kvbench/client/kvserver"
	"kvbench/client/logger"
	"kvbench/control/constants"

	"github.com/spf13/cobra"
)

var serveFlags struct {
	listen   string
	logFile  string
	logLevel string
}

var ServeCmd = &cobra.Command{
	Use:         "serve [flags]",
	Short:       "Run the in-memory reference server",
	Long:        "Serve the batch protocol from an in-memory key set so benchctl run can be tried without a delegation server",
	Args:        cobra.NoArgs,
	Annotations: map[string]string{skipConfigLoad: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		level, err := logger.ParseLevel(serveFlags.logLevel)
		if err != nil {
			return err
		}
		log, err := logger.NewLogger(serveFlags.logFile, level)
		if err != nil {
			return fmt.Errorf("failed to create logger: %w", err)
		}
		defer log.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return kvserver.Run(ctx, serveFlags.listen, log)
	},
}

func init() {
	ServeCmd.Flags().StringVar(&serveFlags.listen, "listen", constants.DEFAULT_LISTEN_ADDR, "Address to listen on")
	ServeCmd.Flags().StringVar(&serveFlags.logFile, "log-file", "", "Also write the log to this file")
	ServeCmd.Flags().StringVar(&serveFlags.logLevel, "log-level", constants.DEFAULT_LOG_LEVEL, "Log level: debug, info, warn or error")
}
