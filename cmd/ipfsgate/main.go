// Command ipfsgate runs the S3-compatible gateway in front of a
// content-addressed storage node.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/ipfsgate/ipfsgate/internal/cas"
	"github.com/ipfsgate/ipfsgate/internal/config"
	"github.com/ipfsgate/ipfsgate/internal/handlers"
	"github.com/ipfsgate/ipfsgate/internal/index"
	"github.com/ipfsgate/ipfsgate/internal/logging"
	"github.com/ipfsgate/ipfsgate/internal/metrics"
	"github.com/ipfsgate/ipfsgate/internal/multipart"
	"github.com/ipfsgate/ipfsgate/internal/server"
	"github.com/ipfsgate/ipfsgate/internal/uid"
)

// shutdownGrace is how long in-flight requests get after SIGINT/SIGTERM.
const shutdownGrace = 3 * time.Second

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "ipfsgate",
		Short:         "S3-compatible gateway backed by a content-addressed storage node",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath, cmd.Flags())
			if err != nil {
				return err
			}
			return run(cfg)
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML configuration file")
	addConfigFlags(root.Flags())

	root.AddCommand(newConfigCommand(&configPath))
	root.AddCommand(newCredentialsCommand())
	return root
}

// addConfigFlags declares the flag overrides for the run and config commands.
func addConfigFlags(flags *pflag.FlagSet) {
	flags.String("bind", "", "address to expose the service on")
	flags.Int("port", 0, "TCP port to expose the service on")
	flags.String("database-path", "", "location of the SQLite metadata index")
	flags.String("rpc-address", "", "storage node RPC endpoint")
	flags.String("gateway", "", "public gateway used for redirect responses")
	flags.String("mode", "", "GetObject mode: proxy, redirect, or auto")
	flags.String("folder-prefix", "", "root folder on the storage node's mutable namespace")
	flags.String("ip-extraction", "", "client IP source: connect-info, rightmost-x-forwarded-for, or x-real-ip")
	flags.Int("concurrent-multipart-upload", 0, "maximum in-memory multipart uploads")
	flags.String("log-level", "", "log level: debug, info, warn, or error")
	flags.String("log-format", "", "log format: text or json")
}

// loadConfig layers flag overrides on top of the file and environment.
func loadConfig(path string, flags *pflag.FlagSet) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	setStr := func(name string, dst *string) {
		if flags.Changed(name) {
			*dst, _ = flags.GetString(name)
		}
	}
	setStr("bind", &cfg.Bind)
	setStr("database-path", &cfg.DatabasePath)
	setStr("rpc-address", &cfg.RPCAddress)
	setStr("gateway", &cfg.Gateway)
	setStr("folder-prefix", &cfg.FolderPrefix)
	setStr("ip-extraction", &cfg.IPExtraction)
	setStr("log-level", &cfg.LogLevel)
	setStr("log-format", &cfg.LogFormat)

	if flags.Changed("port") {
		cfg.Port, _ = flags.GetInt("port")
	}
	if flags.Changed("concurrent-multipart-upload") {
		cfg.ConcurrentMultipartUpload, _ = flags.GetInt("concurrent-multipart-upload")
	}
	if flags.Changed("mode") {
		s, _ := flags.GetString("mode")
		mode, err := config.ParseMode(s)
		if err != nil {
			return nil, err
		}
		cfg.Mode = mode
	}

	return cfg, cfg.Validate()
}

// newConfigCommand dumps the effective configuration with secrets redacted.
func newConfigCommand(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration (secrets redacted)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath, cmd.Flags())
			if err != nil {
				return err
			}
			logging.Setup(cfg.LogLevel, cfg.LogFormat, os.Stdout)
			slog.Info("effective configuration", "config", cfg)
			return nil
		},
	}
	addConfigFlags(cmd.Flags())
	return cmd
}

// newCredentialsCommand generates a fresh credential pair in the form the
// environment variables expect.
func newCredentialsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "credentials",
		Short: "Generate a random access/secret key pair",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("AUTH_ACCESS_KEY=%s\n", uid.AccessKey())
			fmt.Printf("AUTH_SECRET_KEY=%s\n", uid.SecretKey())
		},
	}
}

func run(cfg *config.Config) error {
	logging.Setup(cfg.LogLevel, cfg.LogFormat, os.Stderr)
	logger := slog.Default()

	if cfg.Auth == nil {
		logger.Warn("running without authentication; all endpoints are open")
	}

	store, err := index.NewSQLiteStore(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer store.Close()

	var username, password string
	if cfg.RPCCredentials != nil {
		username = cfg.RPCCredentials.Username
		password = cfg.RPCCredentials.Password
	}
	casClient := cas.New(cfg.RPCAddress, username, password)

	uploads := multipart.NewRegistry(cfg.ConcurrentMultipartUpload)

	h, err := handlers.New(cfg, logger, store, casClient, uploads)
	if err != nil {
		return err
	}

	metrics.Register()
	srv := server.New(cfg, logger, h)

	ln, err := server.Listen(cfg.Bind, cfg.Port)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
		ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("shutdown did not complete cleanly", "error", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
