package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/w3a11y/artisan-wordpress-sub001/internal/alttext"
	"github.com/w3a11y/artisan-wordpress-sub001/internal/artisan"
	"github.com/w3a11y/artisan-wordpress-sub001/internal/describer"
	"github.com/w3a11y/artisan-wordpress-sub001/internal/gemini"
	"github.com/w3a11y/artisan-wordpress-sub001/internal/nonce"
	"github.com/w3a11y/artisan-wordpress-sub001/internal/page"
	"github.com/w3a11y/artisan-wordpress-sub001/internal/server"
	"github.com/w3a11y/artisan-wordpress-sub001/internal/settings"
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the batch and generation endpoints",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Listen address (overrides W3A11Y_LISTEN_ADDR)",
			},
		},
		Action: serve,
	}
}

func serve(c *cli.Context) error {
	cfg, log, err := setup(c)
	if err != nil {
		return err
	}
	if c.IsSet("addr") {
		cfg.ListenAddr = c.String("addr")
	}
	if err := cfg.ValidateServer(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	database, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}

	desc, err := describer.FromConfig(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to create describer: %v", err)
	}

	registry, err := openRegistry(cfg)
	if err != nil {
		return fmt.Errorf("failed to connect run registry: %v", err)
	}
	defer registry.Close()

	proc, err := alttext.NewProcessor(database, store, desc, registry, alttext.Config{
		MaxBatchSize: cfg.MaxBatchSize,
		Workers:      cfg.BatchWorkers,
		LockTTL:      cfg.RequestTimeout + time.Minute,
	}, log)
	if err != nil {
		return err
	}
	defer proc.Close()

	provider := settings.NewProvider(database, log)
	nonces := nonce.NewManager(cfg.NonceSecret, cfg.NonceLifetime)

	deps := server.Deps{
		AltText:  alttext.NewHandler(proc),
		Renderer: page.NewRenderer(provider, proc, nonces, cfg.PublicURL),
		Settings: provider,
		Nonces:   nonces,
	}
	if len(cfg.GeminiAPIKeys) > 0 {
		client, err := gemini.New(ctx, cfg.GeminiAPIKeys, log)
		if err != nil {
			return fmt.Errorf("failed to create gemini client: %v", err)
		}
		deps.Artisan = artisan.NewHandler(artisan.NewGenerator(client, cfg.GeminiImageModel, database, store, log), provider)
	} else {
		log.Warn("GEMINI_API_KEYS not set, image generation is disabled")
	}

	log.WithFields(logrus.Fields{
		"describer": desc.Name(),
		"storage":   store.Name(),
		"redis":     cfg.UseRedis(),
	}).Info("Components ready")

	return server.New(server.Config{
		Addr:           cfg.ListenAddr,
		AdminToken:     cfg.AdminToken,
		RequestTimeout: cfg.RequestTimeout,
	}, deps, log).Run(ctx)
}
