// Command directoryd runs the menmos coordinator: it parses the
// CLI surface spec.md reserves for the core (--cfg, --handoff, log
// flags), wires C1-C6 together, and serves until a signal or a
// storage failure stops it. Everything else — HTTP framing details,
// storage-node process, FUSE client, DNS/ACME, web UI — is a separate
// binary.
package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/menmos/menmos/pkg/bitmap"
	"github.com/menmos/menmos/pkg/config"
	"github.com/menmos/menmos/pkg/coordinator"
	"github.com/menmos/menmos/pkg/credential"
	"github.com/menmos/menmos/pkg/log"
	"github.com/menmos/menmos/pkg/metrics"
	"github.com/menmos/menmos/pkg/router"
	"github.com/menmos/menmos/pkg/store"
)

// Exit codes per spec.md §6.
const (
	exitClean       = 0
	exitConfigError = 2
	exitStorageFail = 3
)

var (
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitConfigError)
	}
}

var rootCmd = &cobra.Command{
	Use:     "directoryd",
	Short:   "menmos coordinator: metadata, facet index, and blob placement",
	Version: Version,
	RunE:    runServe,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("directoryd version %s (%s)\n", Version, Commit))

	rootCmd.Flags().String("cfg", "", "path to the coordinator's YAML tunables file (required)")
	rootCmd.Flags().String("handoff", "", "path to a handoff file left by a prior supervised instance, if any")
	rootCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.Flags().Bool("log-json", false, "emit logs as JSON")
}

func runServe(cmd *cobra.Command, args []string) error {
	logLevel, _ := cmd.Flags().GetString("log-level")
	logJSON, _ := cmd.Flags().GetBool("log-json")
	log.Init(log.Config{Level: log.Level(logLevel), JSONOutput: logJSON})

	cfgPath, _ := cmd.Flags().GetString("cfg")
	if cfgPath == "" {
		fmt.Fprintln(os.Stderr, "--cfg is required")
		os.Exit(exitConfigError)
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading config: %v\n", err)
		os.Exit(exitConfigError)
	}
	if _, err := decodeClusterKey(cfg.ClusterKeyHex); err != nil {
		fmt.Fprintf(os.Stderr, "loading config: %v\n", err)
		os.Exit(exitConfigError)
	}

	handoffPath, _ := cmd.Flags().GetString("handoff")
	if handoffPath != "" {
		if _, err := os.Stat(handoffPath); err == nil {
			log.Logger.Info().Str("handoff", handoffPath).Msg("resuming from supervised handoff")
		}
	}

	st, idx, rtr, cred, err := bootstrap(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "starting coordinator: %v\n", err)
		os.Exit(exitStorageFail)
	}

	srv := coordinator.New(cfg, st, idx, rtr, cred)
	collector := metrics.NewCollector(st, rtr)
	collector.Start()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(cfg.ListenAddr)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			fmt.Fprintf(os.Stderr, "coordinator stopped: %v\n", err)
			os.Exit(exitStorageFail)
		}
	case <-sigCh:
		log.Logger.Info().Msg("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		collector.Stop()
		if err := srv.Shutdown(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "graceful shutdown failed: %v\n", err)
			os.Exit(exitStorageFail)
		}
		if err := st.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "closing store: %v\n", err)
			os.Exit(exitStorageFail)
		}
	}

	os.Exit(exitClean)
	return nil
}

func bootstrap(cfg *config.Config) (*store.Store, *bitmap.Index, *router.Router, *credential.Service, error) {
	st, err := store.New(cfg.DataDir)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("opening store: %w", err)
	}

	idx := bitmap.New()
	if err := st.Recover(idx); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("recovering index: %w", err)
	}

	rtr, err := router.New(st, router.Options{
		LivenessWindow:     cfg.LivenessWindow,
		RebalanceInterval:  cfg.RebalanceInterval,
		RebalanceThreshold: cfg.RebalanceThreshold,
	})
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("starting router: %w", err)
	}

	key, err := decodeClusterKey(cfg.ClusterKeyHex)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("decoding cluster key: %w", err)
	}
	cred, err := credential.New(key, st, cfg.SessionTTL, cfg.GrantTTL)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("starting credential service: %w", err)
	}

	return st, idx, rtr, cred, nil
}

func decodeClusterKey(hexKey string) ([]byte, error) {
	if hexKey == "" {
		return nil, fmt.Errorf("cluster_key is required in the config file")
	}
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("cluster_key must be hex-encoded: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("cluster_key must decode to 32 bytes, got %d", len(key))
	}
	return key, nil
}
