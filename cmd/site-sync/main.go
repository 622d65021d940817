package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/hanamal24/site-sync/pkg/config"
	applog "github.com/hanamal24/site-sync/pkg/log"
)

// version is overridden at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "sync":
		runSync(os.Args[2:])
	case "watch":
		runWatch(os.Args[2:])
	case "validate":
		runValidate(os.Args[2:])
	case "list-datasets":
		runListDatasets(os.Args[2:])
	case "check":
		runCheck(os.Args[2:])
	case "audit":
		runAudit(os.Args[2:])
	case "prune":
		runPrune(os.Args[2:])
	case "serve":
		runServe(os.Args[2:])
	case "mcp-server":
		runMcpServer(os.Args[2:])
	case "version":
		fmt.Printf("site-sync %s\n", version)
	case "-h", "--help", "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	printUsageTo(os.Stdout)
}

// printUsageTo writes usage information to the provided writer.
func printUsageTo(w io.Writer) {
	fmt.Fprintln(w, `site-sync - Airtable to static site sync with local image storage

Usage:
  site-sync <command> [options]

Commands:
  sync           Fetch datasets, localize images and write data files
  watch          Re-run sync on an interval
  validate       Validate configuration file
  list-datasets  List configured datasets and their tables
  check          Check that registry source URLs are still reachable
  audit          Scan the built site for remote or missing images
  prune          Remove unreferenced image files and stale registry entries
  serve          Serve the built site, the lead endpoint and metrics
  mcp-server     Start MCP server for AI tool integration
  version        Show version info

Run 'site-sync <command> -h' for command-specific help.`)
}

// commonFlags registers the flags every command shares
func commonFlags(fs *flag.FlagSet) (configFile, envFile, logLevel *string) {
	configFile = fs.String("config", "site-sync.yaml", "Path to config file")
	envFile = fs.String("env", ".env", "Dotenv file with secrets (skipped if missing)")
	logLevel = fs.String("loglevel", "info", "Log level (debug, info, warn, error, fatal)")
	return configFile, envFile, logLevel
}

// loadConfig reads the config file, overlays the environment and applies
// defaults. A missing config file is allowed: defaults plus environment
// describe a complete setup.
func loadConfig(path, envFile string) (*config.AppConfig, []string, error) {
	if err := config.LoadEnv(envFile); err != nil {
		return nil, nil, err
	}

	var cfg config.AppConfig
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, nil, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.ApplyEnv()
	warnings, err := cfg.Validate()
	if err != nil {
		return nil, warnings, err
	}
	return &cfg, warnings, nil
}

// setupLogger creates a configured logrus.Logger writing to w
func setupLogger(levelStr string, w io.Writer) *logrus.Logger {
	log := applog.NewLogger(levelStr)
	log.SetOutput(w)
	return log
}

// loadAndValidateConfig loads the config and logs warnings, exiting on error
func loadAndValidateConfig(configFile, envFile string, log *logrus.Logger) *config.AppConfig {
	log.Infof("Loading configuration from %s", configFile)
	appCfg, warnings, err := loadConfig(configFile, envFile)
	for _, w := range warnings {
		log.Warn(w)
	}
	if err != nil {
		log.Fatalf("Config error: %v", err)
	}
	return appCfg
}

// signalContext returns a context cancelled on SIGINT/SIGTERM. A second
// signal, or a stalled shutdown, forces exit.
func signalContext(parent context.Context, log *logrus.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Errorf("PANIC in signal handler: %v", r)
			}
		}()
		select {
		case sig := <-sigChan:
			log.Warnf("Received signal: %v. Initiating graceful shutdown...", sig)
			cancel()
		case <-ctx.Done():
			return
		}

		select {
		case sig := <-sigChan:
			log.Warnf("Received second signal: %v. Forcing exit.", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			log.Warn("Graceful shutdown period exceeded after signal. Forcing exit.")
			os.Exit(1)
		}
	}()

	return ctx, func() {
		signal.Stop(sigChan)
		cancel()
	}
}

// splitList parses a comma-separated flag value
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// logAppConfig logs the effective configuration
func logAppConfig(appCfg *config.AppConfig, log *logrus.Logger) {
	log.Infof("Config: DataDir:%s, OutputDir:%s, ImagesDir:%s, PublicPrefix:%s",
		appCfg.DataDir, appCfg.OutputDir, appCfg.Images.Dir, appCfg.Images.PublicPrefix)
	log.Infof("Config Images: Workers:%d, MaxReqPerHost:%d, MaxSize:%d bytes, Timeout:%v, MaxRedirects:%d",
		appCfg.Images.NumWorkers, appCfg.Images.MaxRequestsPerHost, appCfg.Images.MaxImageSizeBytes,
		appCfg.Images.RequestTimeout, appCfg.Images.MaxRedirects)
	log.Infof("Config Retries: Max:%d, InitialDelay:%v, MaxDelay:%v",
		appCfg.Images.MaxRetries, appCfg.Images.InitialRetryDelay, appCfg.Images.MaxRetryDelay)
	log.Infof("Config Registry: Backend:%s, Path:%s", appCfg.Registry.Backend, registryLocation(appCfg))
	log.Infof("Config Airtable: Base:%s, Token set:%t, Datasets:%v",
		appCfg.Airtable.BaseID, appCfg.Airtable.Token != "", appCfg.Datasets())
}

func registryLocation(appCfg *config.AppConfig) string {
	if appCfg.Registry.Backend == config.RegistryBackendBadger {
		return appCfg.Registry.BadgerDir
	}
	return filepath.Clean(appCfg.Registry.Path)
}
