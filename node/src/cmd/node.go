package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/sajjad-MoBe/kvserver/node/src/internal/config"
	"github.com/sajjad-MoBe/kvserver/node/src/internal/shared"
)

var (
	configPath string
	flagValues = config.Default()
)

var startNodeCmd = &cobra.Command{
	Use:          "start",
	Short:        "Start the key-value server",
	SilenceUsage: true,
	RunE:         runNode,
}

func init() {
	f := startNodeCmd.Flags()
	f.StringVar(&configPath, "config", os.Getenv(config.EnvConfigFile), "Path to a YAML config file")
	f.StringVarP(&flagValues.Address, "address", "a", flagValues.Address, "Address for the server to listen on")
	f.StringVar(&flagValues.StorePath, "store-path", flagValues.StorePath, "Snapshot file")
	f.BoolVar(&flagValues.Persistence, "persistence", flagValues.Persistence, "Write a snapshot after every mutation")
	f.StringVar(&flagValues.SnapshotPolicy, "snapshot-policy", flagValues.SnapshotPolicy, "What to do with an unreadable snapshot: fail or empty")
	f.StringVar(&flagValues.Protocol, "protocol", flagValues.Protocol, "Wire protocol: text or json")
	f.StringVar(&flagValues.LogLevel, "log-level", flagValues.LogLevel, "Log level: debug, info, warn or error")
	f.StringVar(&flagValues.LogFormat, "log-format", flagValues.LogFormat, "Log format: console or json")
	f.IntVar(&flagValues.ReadBufferSize, "read-buffer-size", flagValues.ReadBufferSize, "Bytes read from a connection at a time")
	f.IntVar(&flagValues.MaxFrameSize, "max-frame-size", flagValues.MaxFrameSize, "Longest accepted request line in bytes")
	f.DurationVar(&flagValues.IdleTimeout, "idle-timeout", flagValues.IdleTimeout, "Close connections idle for this long (0 disables)")
	f.DurationVar(&flagValues.ShutdownTimeout, "shutdown-timeout", flagValues.ShutdownTimeout, "How long to wait for connections on shutdown")
	f.StringVar(&flagValues.AdminAddress, "admin-address", flagValues.AdminAddress, "Address of the admin HTTP server (empty disables)")
	f.StringVar(&flagValues.GRPCHealthAddress, "grpc-health-address", flagValues.GRPCHealthAddress, "Address of the gRPC health server (empty disables)")
	f.StringVar(&flagValues.JaegerEndpoint, "jaeger-endpoint", flagValues.JaegerEndpoint, "Jaeger collector endpoint (empty disables export)")
}

func runNode(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	applyFlags(cmd.Flags(), &cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	level, _ := shared.ParseLogLevel(cfg.LogLevel)
	logger, err := shared.NewLogger(level, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer logger.Sync()

	node, err := NewNode(cfg, logger)
	if err != nil {
		logger.Error("failed to start", zap.Error(err))
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return node.Run(ctx)
}

// applyFlags copies explicitly set flags over cfg, so flags win over the
// config file and the environment.
func applyFlags(flags *pflag.FlagSet, cfg *config.Config) {
	flags.Visit(func(f *pflag.Flag) {
		switch f.Name {
		case "address":
			cfg.Address = flagValues.Address
		case "store-path":
			cfg.StorePath = flagValues.StorePath
		case "persistence":
			cfg.Persistence = flagValues.Persistence
		case "snapshot-policy":
			cfg.SnapshotPolicy = flagValues.SnapshotPolicy
		case "protocol":
			cfg.Protocol = flagValues.Protocol
		case "log-level":
			cfg.LogLevel = flagValues.LogLevel
		case "log-format":
			cfg.LogFormat = flagValues.LogFormat
		case "read-buffer-size":
			cfg.ReadBufferSize = flagValues.ReadBufferSize
		case "max-frame-size":
			cfg.MaxFrameSize = flagValues.MaxFrameSize
		case "idle-timeout":
			cfg.IdleTimeout = flagValues.IdleTimeout
		case "shutdown-timeout":
			cfg.ShutdownTimeout = flagValues.ShutdownTimeout
		case "admin-address":
			cfg.AdminAddress = flagValues.AdminAddress
		case "grpc-health-address":
			cfg.GRPCHealthAddress = flagValues.GRPCHealthAddress
		case "jaeger-endpoint":
			cfg.JaegerEndpoint = flagValues.JaegerEndpoint
		}
	})
}
