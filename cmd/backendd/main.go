package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/adamscao/cspmauth/internal/backendapi"
	"github.com/adamscao/cspmauth/internal/config"
	"github.com/adamscao/cspmauth/internal/db"
	"github.com/adamscao/cspmauth/internal/db/repository"
	"github.com/adamscao/cspmauth/internal/logging"
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
		fmt.Printf("CSPM Identity Backend\n")
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
	log.Info().Str("version", Version).Str("commit", Commit).Msg("starting identity backend")

	log.Info().Str("path", cfg.Database.Path).Msg("opening database")
	database, err := db.New(cfg.Database.Path)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	defer database.Close()

	if err := db.RunMigrations(database); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}

	identityRepo := repository.NewIdentityRepository(database.DB)
	auditRepo := repository.NewAuditRepository(database.DB)

	server := backendapi.NewServer(cfg, identityRepo, auditRepo, log)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Info().Str("addr", cfg.Backend.ListenAddr).Msg("HTTP server listening")
		if err := server.Run(); err != nil {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	<-quit
	log.Info().Msg("shutting down")
	database.Close()
}
