package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/cuemby/s3block/pkg/config"
	"github.com/cuemby/s3block/pkg/keylock"
	"github.com/cuemby/s3block/pkg/log"
	"github.com/cuemby/s3block/pkg/metrics"
	"github.com/cuemby/s3block/pkg/nbd"
	"github.com/cuemby/s3block/pkg/session"
)

var (
	// Version information (set via ldflags during build)
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "s3blockd",
	Short:   "s3blockd - present an object-storage bucket as a network block device",
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("s3blockd version %s\nCommit: %s\n", Version, Commit))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")

	addConfigFlags(rootCmd.PersistentFlags())

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(checkConfigCmd)
}

func addConfigFlags(flags *pflag.FlagSet) {
	flags.String("access-key", "", "Object-store access key (optional; ambient credentials used if empty)")
	flags.String("secret-key", "", "Object-store secret key")
	flags.String("session-token", "", "Object-store session token")
	flags.String("endpoint-url", "", "Override the object-store service endpoint")
	flags.String("bucket", "", "Bucket name (required)")
	flags.String("key", "", "Single object name (single-object mode) or key prefix (multi-object mode) (required)")
	flags.String("size", "", "Virtual disk size, e.g. 64K, 1M, 2G (multi-object mode only)")
	flags.String("object-size", "", "Per-block size, same form as size (multi-object mode only)")
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the NBD host and serve the configured disk",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("listen", "127.0.0.1:10809", "Address for the NBD host to listen on")
	serveCmd.Flags().String("metrics-addr", "127.0.0.1:9090", "Address for the Prometheus /metrics endpoint")
	serveCmd.Flags().String("export-name", "", "NBD export name")
}

var checkConfigCmd = &cobra.Command{
	Use:   "check-config",
	Short: "Validate configuration without starting the server",
	RunE:  runCheckConfig,
}

func buildConfig(cmd *cobra.Command) (*config.Config, error) {
	b := config.NewBuilder()
	for _, key := range []string{
		"access-key", "secret-key", "session-token", "endpoint-url",
		"bucket", "key", "size", "object-size",
	} {
		value, err := cmd.Flags().GetString(key)
		if err != nil {
			return nil, err
		}
		if value != "" {
			b.Set(key, value)
		}
	}
	return b.Complete()
}

func runCheckConfig(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}
	mode := "multi-object (writable)"
	if cfg.Mode == config.ModeSingleObject {
		mode = "single-object (read-only)"
	}
	fmt.Printf("bucket=%s key=%s mode=%s\n", cfg.Bucket, cfg.Key, mode)
	if cfg.Mode == config.ModeMultiObject {
		fmt.Printf("size=%d object-size=%d\n", cfg.Size, cfg.ObjectSize)
	}
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	listen, _ := cmd.Flags().GetString("listen")
	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
	exportName, _ := cmd.Flags().GetString("export-name")

	locks := keylock.New()

	collector := metrics.NewCollector(locks)
	collector.Start()
	defer collector.Stop()

	metrics.SetVersion(Version)
	metrics.RegisterComponent("objectstore", true, "")
	metrics.RegisterComponent("nbd", false, "not yet listening")

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/health", metrics.HealthHandler())
	mux.HandleFunc("/ready", metrics.ReadyHandler())
	mux.HandleFunc("/live", metrics.LivenessHandler())
	go func() {
		log.Info(fmt.Sprintf("metrics listening on %s", metricsAddr))
		if err := http.ListenAndServe(metricsAddr, mux); err != nil {
			log.Errorf("metrics server: %v", err)
		}
	}()

	srv := nbd.NewServer(exportName, func(ctx context.Context) (*session.Session, error) {
		return session.Open(ctx, cfg, locks)
	})

	errCh := make(chan error, 1)
	go func() {
		metrics.RegisterComponent("nbd", true, "")
		errCh <- srv.Start(listen)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		log.Info(fmt.Sprintf("received signal %v, shutting down", sig))
		srv.Stop()
		return nil
	}
}
