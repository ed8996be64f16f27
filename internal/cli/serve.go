package cli

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/octa-computer/transfer-manager/internal/api"
	"github.com/octa-computer/transfer-manager/internal/config"
	"github.com/octa-computer/transfer-manager/internal/logging"
	"github.com/octa-computer/transfer-manager/internal/server"
	"github.com/octa-computer/transfer-manager/internal/transfer"
	"github.com/octa-computer/transfer-manager/internal/version"
)

var serveConsoleLog bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the transfer daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}

		log := logging.New(logging.Config{
			LogFile: cfg.LogFile,
			Console: serveConsoleLog,
			Level:   cfg.LogLevel,
		})
		log.Info().
			Str("version", version.Version).
			Str("r2_endpoint", cfg.R2Endpoint).
			Str("farm_host", cfg.FarmHost).
			Msg("transfer manager starting")

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		manager := transfer.NewManager(transfer.Deps{
			R2:  api.NewR2Client(cfg.R2Endpoint, log),
			QM:  api.NewQueueManagerClient(log),
			Log: log,
		})
		manager.Start()
		defer manager.Shutdown()

		srv := server.New(cfg, manager, log)
		return srv.Run(ctx)
	},
}

func init() {
	serveCmd.Flags().BoolVar(&serveConsoleLog, "console-log", false, "also log to stderr")
}
