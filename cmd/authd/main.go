package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/adamscao/cspmauth/internal/api"
	"github.com/adamscao/cspmauth/internal/config"
	"github.com/adamscao/cspmauth/internal/flow"
	"github.com/adamscao/cspmauth/internal/logging"
	"github.com/adamscao/cspmauth/internal/session"
	"github.com/adamscao/cspmauth/internal/store"
	"github.com/adamscao/cspmauth/internal/totp"
)

var (
	// Version information (set via ldflags)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	configPath := flag.String("config", "/etc/cspm/config.yaml", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("CSPM Identity Auth Core\n")
		fmt.Printf("Version:    %s\n", Version)
		fmt.Printf("Commit:     %s\n", Commit)
		fmt.Printf("Build Time: %s\n", BuildTime)
		os.Exit(0)
	}

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	log.Info().Str("version", Version).Str("commit", Commit).Msg("starting auth core")

	encKey, err := cfg.EncryptionKey()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid encryption key")
	}

	local := store.NewLocalStore(cfg.Storage.Dir, encKey)
	remote := store.NewRemoteStore(cfg.Backend.BaseURL, cfg.ProbeTimeout())
	repo := store.NewRepository(remote, local, log)

	// The mode decision is made exactly once, here, and injected
	// everywhere else.
	probeCtx, cancel := context.WithTimeout(context.Background(), cfg.ProbeTimeout())
	mode := repo.Probe(probeCtx)
	cancel()
	log.Info().Str("mode", mode.String()).Msg("identity repository mode resolved")

	sessions := session.NewManager(cfg.Storage.Dir, encKey, log)
	if sess, err := sessions.Restore(); err != nil {
		log.Warn().Err(err).Msg("failed to restore prior session")
	} else if sess != nil {
		log.Info().Str("email", sess.Identity.Email).Msg("resumed prior session")
	}

	engine := totp.NewEngine(cfg.TOTP.Issuer)
	fl := flow.New(repo, engine, sessions, log)

	server := api.NewServer(cfg, fl, sessions, repo, log)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Info().Str("addr", cfg.Server.ListenAddr).Msg("HTTP server listening")
		if err := server.Run(); err != nil {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	<-quit
	log.Info().Msg("shutting down")
}
