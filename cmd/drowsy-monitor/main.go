package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"drowsy-monitor/internal/config"
	"drowsy-monitor/internal/core"
	"drowsy-monitor/internal/hardware"
	"drowsy-monitor/internal/logger"
	"drowsy-monitor/internal/messaging"
	"drowsy-monitor/internal/storage"
)

var (
	configPath  string
	logLevel    string
	redisHost   string
	redisPort   int
	noRedis     bool
	journalPath string

	rootCmd = &cobra.Command{
		Use:   "drowsy-monitor",
		Short: "Driver drowsiness monitor for buzzer, LED, LCD and push button.",
		Long: `Turns per-frame perception signals into latched driver alerts, tracks
Active/Paused monitoring from a push button, measures rest breaks and reports
them to Redis and a local journal.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return run(ctx, cfg)
		},
	}
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	flags.StringVar(&logLevel, "log", "", "log level (none, error, warn, info, debug or 0-4)")
	flags.StringVar(&journalPath, "journal", "", "path to the break journal database")

	rootCmd.Flags().StringVar(&redisHost, "redis-host", "", "Redis host")
	rootCmd.Flags().IntVar(&redisPort, "redis-port", 0, "Redis port")
	rootCmd.Flags().BoolVar(&noRedis, "no-redis", false, "run without Redis")

	rootCmd.AddCommand(breaksCmd)
}

// loadConfig reads the config file and applies flags that were set.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("log") {
		cfg.LogLevel = logLevel
	}
	if flags.Changed("journal") {
		cfg.Journal.Path = journalPath
	}
	if flags.Changed("redis-host") {
		cfg.Redis.Host = redisHost
	}
	if flags.Changed("redis-port") {
		cfg.Redis.Port = redisPort
	}
	if flags.Changed("no-redis") {
		cfg.Redis.Disabled = noRedis
	}

	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) *logger.Logger {
	level, _ := logger.ParseLevel(cfg.LogLevel)
	return logger.NewConsole(level)
}

func run(ctx context.Context, cfg *config.Config) error {
	l := newLogger(cfg)
	defer l.Sync()

	l.Infof("Starting drowsy-monitor...")

	deps := core.Deps{
		Hardware: hardware.NewGPIO(hardware.Pins{
			Chip:   cfg.GPIO.Chip,
			Buzzer: cfg.GPIO.Buzzer,
			LED:    cfg.GPIO.LED,
			Button: cfg.GPIO.Button,
		}, l),
	}

	lcd, err := hardware.OpenLCD(cfg.LCD.Bus, cfg.LCD.Address, cfg.LCD.Cols, cfg.LCD.Rows, l)
	if err != nil {
		l.Warnf("LCD unavailable, screen output goes to the log: %v", err)
		deps.Display = &logDisplay{logger: l.WithTag("Screen")}
	} else {
		deps.Display = lcd
	}

	journal, err := storage.Open(cfg.Journal.Path, l)
	if err != nil {
		l.Warnf("Break journal unavailable: %v", err)
	} else {
		deps.Journal = journal
	}

	if !cfg.Redis.Disabled {
		redis := messaging.NewRedisClient(cfg.Redis.Host, cfg.Redis.Port, l, messaging.Callbacks{})
		deps.Messaging = redis
		if journal != nil {
			journal.SetLocationProvider(redis)
		}
	}

	system := core.NewDrowsinessSystem(cfg, deps, l)
	if err := system.Start(); err != nil {
		system.Shutdown()
		return fmt.Errorf("failed to start system: %w", err)
	}

	err = system.Run(ctx)
	system.Shutdown()
	l.Infof("Shutdown complete")
	return err
}

// logDisplay stands in for a missing LCD.
type logDisplay struct {
	logger *logger.Logger
}

func (d *logDisplay) Write(lines []string) error {
	d.logger.Infof("%s", strings.Join(lines, " | "))
	return nil
}

func (d *logDisplay) Close() error { return nil }
