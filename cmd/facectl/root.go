package main

import (
	"fmt"
	"os"

	"face-attendance-go/config"
	"face-attendance-go/internal/app"
	"face-attendance-go/internal/logger"
	"face-attendance-go/internal/util/timezone"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "facectl",
	Short: "Manage the face recognition attendance roster from the command line",
	Long: `facectl registers reference faces, bulk-imports a photo directory into
the gallery and runs recognition on local images or videos against the same
database and models the server uses.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to the YAML config file (default $ATTENDANCE_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level")
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
	if configPath == "" {
		configPath = os.Getenv("ATTENDANCE_CONFIG")
	}
}

// buildApp loads the configuration and wires the application. Background
// services are not started.
func buildApp() (*app.App, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	cfg.Log.Level = logLevel
	cfg.Log.File = ""
	if _, err := logger.Init(cfg.Log); err != nil {
		return nil, err
	}
	timezone.Initialize()
	return app.Build(cfg)
}
