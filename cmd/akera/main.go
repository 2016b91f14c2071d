package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/ajitpratap0/akera-connector/pkg/config"
	"github.com/ajitpratap0/akera-connector/pkg/connector/akera"
	"github.com/ajitpratap0/akera-connector/pkg/connector/registry"
	"github.com/ajitpratap0/akera-connector/pkg/logger"
	"github.com/ajitpratap0/akera-connector/pkg/observability"

	// Import all backends to register them
	_ "github.com/ajitpratap0/akera-connector/pkg/backends/memory"
	_ "github.com/ajitpratap0/akera-connector/pkg/backends/mongodb"
	_ "github.com/ajitpratap0/akera-connector/pkg/backends/mysql"
	_ "github.com/ajitpratap0/akera-connector/pkg/backends/postgres"
)

var version = akera.Version

// cli holds the state shared by every command
type cli struct {
	v *viper.Viper

	configFile  string
	modelsFile  string
	metricsAddr string
	trace       bool
	timeout     time.Duration
	logLevel    string

	log *zap.Logger
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	c := &cli{v: viper.New()}

	root := &cobra.Command{
		Use:   "akera",
		Short: "akera - query and discover akera application servers",
		Long: `akera runs ORM style queries and schema discovery against an akera
application server through the akera connector.

Connection settings come from a YAML file (--config), from flags, or from
AKERA_* environment variables, in increasing order of precedence.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.setup()
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return c.teardown()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&c.configFile, "config", "c", "", "Path to a connector YAML configuration file")
	flags.StringVarP(&c.modelsFile, "models", "m", "", "Path to a YAML file of model definitions")
	flags.StringVar(&c.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9090")
	flags.BoolVar(&c.trace, "trace", false, "Print OpenTelemetry spans to stderr")
	flags.DurationVar(&c.timeout, "timeout", 30*time.Second, "Timeout of the whole command")
	flags.StringVar(&c.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")

	flags.String("name", akera.DefaultName, "Connector name used in logs and metrics")
	flags.String("backend", config.DefaultBackend, "Backend reaching the server: "+fmt.Sprint(registry.ListBackends()))
	flags.String("host", config.DefaultHost, "Application server host")
	flags.Int("port", config.DefaultPort, "Application server port")
	flags.Bool("use-ssl", false, "Connect with TLS")
	flags.String("database", "", "Database selected on every connection")
	flags.String("user", "", "User name")
	flags.String("password", "", "Password")
	flags.Int("pool-size", 0, "Connection pool size, 0 for unbounded")
	flags.Duration("pool-timeout", 0, "How long to wait for a busy pool, 0 to wait for the command timeout")
	flags.Bool("debug", false, "Log every vendor query at debug level")

	bind := map[string]string{
		config.KeyName:            "name",
		config.KeyBackend:         "backend",
		config.KeyHost:            "host",
		config.KeyPort:            "port",
		config.KeyUseSSL:          "use-ssl",
		config.KeyDatabase:        "database",
		config.KeyUser:            "user",
		config.KeyPassword:        "password",
		config.KeyConnectPoolSize: "pool-size",
		config.KeyConnectTimeout:  "pool-timeout",
		config.KeyDebug:           "debug",
	}
	for key, flag := range bind {
		_ = c.v.BindPFlag(key, flags.Lookup(flag))
	}
	c.v.SetEnvPrefix("AKERA")
	c.v.AutomaticEnv()

	root.AddCommand(
		newVersionCommand(),
		newBackendsCommand(),
		newPingCommand(c),
		newFindCommand(c),
		newCountCommand(c),
		newDiscoverCommand(c),
	)
	return root
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "akera connector v%s\n", version)
			fmt.Fprintf(out, "Go version: %s\n", runtime.Version())
			fmt.Fprintf(out, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}

func newBackendsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "backends",
		Short: "List available backends",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			for _, name := range registry.ListBackends() {
				info, err := registry.Info(name)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "  - %-10s %s (%s)\n", name, info.Description, info.Library)
			}
			return nil
		},
	}
}

// setup initializes logging, metrics and tracing
func (c *cli) setup() error {
	if err := logger.Init(logger.Config{
		Level:       c.logLevel,
		Encoding:    "console",
		OutputPaths: []string{"stderr"},
	}); err != nil {
		return err
	}
	c.log = logger.Get().With(zap.String("component", "akera-cli"))

	if c.metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		srv := &http.Server{Addr: c.metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				c.log.Warn("metrics server stopped", zap.Error(err))
			}
		}()
		c.log.Info("serving metrics", zap.String("addr", c.metricsAddr))
	}

	if c.trace {
		tc := observability.DefaultTracingConfig()
		tc.ServiceVersion = version
		tc.Writer = os.Stderr
		tc.Synchronous = true
		if _, err := observability.InitTracing(tc); err != nil {
			return err
		}
	}
	return nil
}

func (c *cli) teardown() error {
	if c.trace {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := observability.Shutdown(ctx); err != nil {
			return err
		}
	}
	_ = logger.Sync()
	return nil
}

// loadConfig layers the config file, flags and environment
func (c *cli) loadConfig() (*config.ConnectorConfig, error) {
	cfg := config.NewConnectorConfig(akera.DefaultName)
	if c.configFile != "" {
		if err := config.Load(c.configFile, cfg); err != nil {
			return nil, err
		}
	}
	if err := config.Apply(cfg, c.v); err != nil {
		return nil, err
	}
	if c.trace {
		cfg.Observability.EnableTracing = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// connect builds and connects a connector, and loads the model file
func (c *cli) connect(ctx context.Context) (*akera.Connector, error) {
	cfg, err := c.loadConfig()
	if err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}

	dialer, err := registry.CreateDialer(cfg.Backend, cfg)
	if err != nil {
		return nil, err
	}
	conn, err := akera.New(cfg, dialer, akera.WithLogger(c.log.With(zap.String("connector", cfg.Name))))
	if err != nil {
		return nil, err
	}
	if err := conn.Connect(ctx); err != nil {
		_ = conn.Close(ctx)
		return nil, err
	}

	if c.modelsFile != "" {
		defs, err := loadModels(c.modelsFile)
		if err != nil {
			_ = conn.Close(ctx)
			return nil, err
		}
		for _, def := range defs {
			if err := conn.Define(def); err != nil {
				_ = conn.Close(ctx)
				return nil, fmt.Errorf("model %s: %w", def.Name, err)
			}
		}
	}

	c.log.Debug("connected",
		zap.String("backend", cfg.Backend),
		zap.String("address", cfg.Connection.Address()))
	return conn, nil
}

// run connects, calls fn and closes the connector within the command timeout
func (c *cli) run(cmd *cobra.Command, fn func(ctx context.Context, conn *akera.Connector) error) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), c.timeout)
	defer cancel()

	conn, err := c.connect(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := conn.Close(ctx); err != nil {
			c.log.Warn("failed to close connector", zap.Error(err))
		}
	}()

	return fn(ctx, conn)
}
