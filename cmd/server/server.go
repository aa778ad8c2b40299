package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/stephnangue/edgegate/config"
	"github.com/stephnangue/edgegate/core"
	"github.com/stephnangue/edgegate/helper"
	gwhttp "github.com/stephnangue/edgegate/http"
	"github.com/stephnangue/edgegate/listener"
	"github.com/stephnangue/edgegate/listener/api"
	log "github.com/stephnangue/edgegate/logger"
	"github.com/stephnangue/edgegate/metrics"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	subsystemCore     = "core"
	subsystemListener = "listener"

	metricsService = "edgegate"
)

var (
	configPath string

	ServerCmd = &cobra.Command{
		Use:   "server",
		Short: "Start the edge gateway",
		Long: `
Usage: edgegate server [options]

  Start the gateway with a configuration file:

      $ edgegate server --config=/etc/edgegate/edgegate.hcl

  The server runs until it receives SIGINT or SIGTERM, then stops accepting
  connections and drains in-flight requests.
  `,
		RunE: run,
	}
)

func init() {
	ServerCmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to configuration file (e.g., path/to/edgegate.hcl)")
}

func run(cmd *cobra.Command, args []string) error {
	if configPath == "" {
		return fmt.Errorf("config file path is required. Use -c or --config flag")
	}
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s", configPath)
	}

	conf, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Logs stay buffered until the banner is printed.
	logger := buildGatedLogger(conf)

	registry, err := metrics.New(metricsService, 0, 0)
	if err != nil {
		return fmt.Errorf("failed to set up metrics: %w", err)
	}

	gw, err := core.NewCore(&core.CoreConfig{
		RawConfig: conf,
		Logger:    logger.WithSubsystem(subsystemCore),
		Metrics:   registry,
	})
	if err != nil {
		return fmt.Errorf("error initializing core: %w", err)
	}

	apiConf, err := conf.GetApiListener()
	if err != nil {
		return err
	}
	handler := gwhttp.Handler(&gwhttp.HandlerProperties{
		Core:              gw,
		Logger:            logger,
		CORS:              conf.CORS,
		TrustForwardedFor: apiConf.TrustForwardedFor,
	})

	lns, err := initListeners(handler, conf, logger)
	if err != nil {
		return err
	}

	printBanner(cmd.OutOrStdout(), conf, gw)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gw.Start(ctx)

	var wg sync.WaitGroup
	errChan := make(chan error, len(lns))
	for _, ln := range lns {
		wg.Go(func() {
			if err := ln.Start(ctx); err != nil {
				errChan <- fmt.Errorf("%s listener at %s: %w", ln.Type(), ln.Addr(), err)
			}
		})
	}

	fmt.Fprintf(cmd.OutOrStdout(), "\n==> Edgegate started! Log data will stream in below:\n")
	if err := logger.OpenGate(); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "failed to flush startup logs: %v\n", err)
	}

	var runErrs []error
	select {
	case err := <-errChan:
		runErrs = append(runErrs, err)
		logger.Error("listener failed, shutting down", log.Err(err))
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}
	stop()

	// Listeners drain on ctx cancellation; Stop is a no-op for those
	// already stopped.
	for _, ln := range lns {
		if err := ln.Stop(); err != nil {
			runErrs = append(runErrs, fmt.Errorf("failed to stop %s listener at %s: %w", ln.Type(), ln.Addr(), err))
		}
	}
	wg.Wait()
	close(errChan)
	for err := range errChan {
		runErrs = append(runErrs, err)
	}

	if err := gw.Shutdown(); err != nil {
		runErrs = append(runErrs, fmt.Errorf("core shutdown failed: %w", err))
	}

	if len(runErrs) > 0 {
		err := errors.Join(runErrs...)
		logger.Error("shutdown completed with errors", log.Err(err), log.Int("error_count", len(runErrs)))
		return err
	}
	logger.Info("server shutdown completed")
	return nil
}

func buildGatedLogger(conf *config.Config) *log.GatedLogger {
	logConfig := &log.Config{
		Level:   log.ParseLevel(conf.LogLevel),
		Format:  log.ParseFormat(conf.LogFormat),
		Outputs: []io.Writer{os.Stdout},
	}
	if conf.LogFile != "" {
		fileConfig := log.DefaultFileConfig(conf.LogFile)
		fileConfig.MaxSize = conf.LogRotateMegabytes
		if conf.LogRotateMaxFiles > 0 {
			fileConfig.MaxBackups = conf.LogRotateMaxFiles
		}
		logConfig.File = fileConfig
	}

	return log.NewGatedLogger(logConfig, log.GatedWriterConfig{
		Underlying:    os.Stdout,
		InitialState:  log.GateClosed,
		MaxBufferSize: 10 * 1024 * 1024,
	})
}

func initListeners(handler http.Handler, conf *config.Config, logger *log.GatedLogger) ([]listener.Listener, error) {
	lns := make([]listener.Listener, 0, len(conf.Listeners))
	for _, lnConfig := range conf.Listeners {
		ln, err := api.NewApiListener(api.ApiListenerConfig{
			Logger:            logger.WithSubsystem(subsystemListener + "." + lnConfig.Name),
			Address:           lnConfig.Address,
			ReadHeaderTimeout: lnConfig.ReadHeaderTimeout,
			IdleTimeout:       lnConfig.IdleTimeout,
			DrainTimeout:      conf.Shutdown.DrainTimeout,
		}, handler)
		if err != nil {
			return nil, fmt.Errorf("error initializing listener %q: %w", lnConfig.Name, err)
		}
		lns = append(lns, ln)
	}
	return lns, nil
}

func printBanner(w io.Writer, conf *config.Config, gw *core.Core) {
	info := map[string]string{
		"log level":     conf.LogLevel,
		"log format":    conf.LogFormat,
		"routes":        strconv.Itoa(len(gw.Routes().Routes())),
		"services":      strings.Join(gw.Routes().Services(), ", "),
		"resolver":      conf.ServiceResolver.Kind,
		"rate limiting": strconv.FormatBool(gw.RateLimitEnabled()),
		"cors":          strconv.FormatBool(conf.CORS.IsEnabled()),
		"drain timeout": helper.FormatTTL(conf.Shutdown.DrainTimeout),
		"token ttl":     helper.FormatTTL(conf.Token.TTL),
		"guest ttl":     helper.FormatTTL(conf.GuestSession.TTL),
	}
	if conf.LogFile != "" {
		info["log file"] = conf.LogFile
	}
	if prefix := gw.AuthLoginPrefix(); prefix != "" {
		info["auth login prefix"] = prefix
	}
	if gw.RequestTimeout() > 0 {
		info["request timeout"] = helper.FormatTTL(gw.RequestTimeout())
	}
	for _, ln := range conf.Listeners {
		info["listener "+ln.Name] = ln.Address
	}

	keys := make([]string, 0, len(info))
	for k := range info {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fmt.Fprintf(w, "\n==> Edgegate configuration:\n\n")
	titleCaser := cases.Title(language.English, cases.NoLower)
	for _, k := range keys {
		fmt.Fprintf(w, "%24s: %s\n", titleCaser.String(k), info[k])
	}
}
