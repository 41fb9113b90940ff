package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/neel-jay/claudeUIMCP/pkg/config"
	"github.com/neel-jay/claudeUIMCP/pkg/engine"
	"github.com/neel-jay/claudeUIMCP/pkg/logging"
)

var (
	serveConfig    string
	serveHost      string
	servePort      int
	serveLogLevel  string
	serveLogFormat string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the control-plane server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		log, err := logging.New(logging.Config{
			Level:  logging.ParseLevel(cfg.Logging.Level),
			Format: logging.ParseFormat(cfg.Logging.Format),
			File:   cfg.Logging.File,
		})
		if err != nil {
			return fmt.Errorf("configure logging: %w", err)
		}

		srv, err := engine.NewServer(cfg,
			engine.WithLogger(log),
			engine.WithVersion(Version),
		)
		if err != nil {
			return err
		}
		if err := srv.Start(); err != nil {
			return err
		}
		fmt.Printf("mcpd listening on %s\n", srv.Addr())

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig

		log.Info("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Stop(ctx)
	},
}

func loadConfig() (*config.Config, error) {
	var cfg *config.Config
	if serveConfig != "" {
		loaded, err := config.Load(serveConfig)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		cfg = config.Default()
	}

	if serveHost != "" {
		cfg.Server.Host = serveHost
	}
	if servePort != 0 {
		cfg.Server.Port = servePort
	}
	if serveLogLevel != "" {
		cfg.Logging.Level = serveLogLevel
	}
	if serveLogFormat != "" {
		cfg.Logging.Format = serveLogFormat
	}
	return cfg, nil
}

func init() {
	serveCmd.Flags().StringVarP(&serveConfig, "config", "c", "", "Path to a YAML or JSON config file")
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Listen address (overrides config)")
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Listen port (overrides config)")
	serveCmd.Flags().StringVar(&serveLogLevel, "log-level", "", "Log level: debug, info, warn, error")
	serveCmd.Flags().StringVar(&serveLogFormat, "log-format", "", "Log format: text or json")
	rootCmd.AddCommand(serveCmd)
}
