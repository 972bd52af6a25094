package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	sbf "github.com/mattkeenan/smallblockforensics/pkg"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "sbfserve: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var configPath, listen, debug string
	var verbose int
	var overrides []string

	fs := pflag.NewFlagSet("sbfserve", pflag.ContinueOnError)
	fs.StringVarP(&configPath, "config", "c", sbf.DefaultConfigPath(), "configuration file")
	fs.StringVarP(&listen, "listen", "l", "", "listen address (default from [server] listen)")
	fs.CountVarP(&verbose, "verbose", "v", "verbose output (repeat for more)")
	fs.StringVar(&debug, "debug", "", "comma separated debug flags")
	fs.StringArrayVar(&overrides, "set", nil, "override a config value, key:value (repeatable)")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := sbf.LoadConfig(configPath)
	if err != nil {
		return err
	}
	if err := cfg.ApplyOverrides(overrides); err != nil {
		return err
	}
	sbf.ApplyVerboseConfig(cfg.GetVerboseConfig(), verbose, debug)

	engineCfg, err := cfg.EngineConfig()
	if err != nil {
		return err
	}
	engineCfg.Logger = sbf.Logger()

	if listen == "" {
		listen = cfg.GetServerConfig().Listen
		if port := os.Getenv("SBF_PORT"); port != "" {
			listen = ":" + port
		}
	}

	server := NewServer(WithLogger(sbf.Logger()), WithEngineConfig(engineCfg))
	httpServer := &http.Server{
		Addr:              listen,
		Handler:           server,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		sbf.Logger().WithField("listen", listen).Info("sbfserve listening")
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	sbf.Logger().Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
