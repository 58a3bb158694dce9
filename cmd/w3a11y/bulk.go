package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/eiannone/keyboard"
	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/w3a11y/artisan-wordpress-sub001/internal/bulk"
	"github.com/w3a11y/artisan-wordpress-sub001/pkg/models"
	"github.com/w3a11y/artisan-wordpress-sub001/pkg/utils"
)

func bulkCommand() *cli.Command {
	return &cli.Command{
		Name:  "bulk",
		Usage: "Generate alt text for the media library in batches (q or Esc cancels)",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "server",
				Usage: "Base URL of the server (defaults to W3A11Y_PUBLIC_URL)",
			},
			&cli.StringFlag{
				Name:  "token",
				Usage: "Admin token (defaults to W3A11Y_ADMIN_TOKEN)",
			},
			&cli.IntFlag{
				Name:  "batch-size",
				Usage: "Images per batch (defaults to the alttext_batch_size setting)",
			},
			&cli.IntFlag{
				Name:  "delay",
				Usage: "Milliseconds between batches (defaults to the alttext_batch_delay setting)",
			},
			&cli.StringFlag{
				Name:  "language",
				Usage: "Alt text language code",
			},
			&cli.IntFlag{
				Name:  "max-length",
				Usage: "Maximum alt text length in characters",
			},
			&cli.StringFlag{
				Name:  "instructions",
				Usage: "Custom instructions for the AI",
			},
			&cli.BoolFlag{
				Name:  "overwrite",
				Usage: "Regenerate alt text that already exists",
			},
			&cli.BoolFlag{
				Name:  "only-attached",
				Usage: "Process only images attached to a post",
			},
			&cli.BoolFlag{
				Name:  "skip-processed",
				Usage: "Skip images a previous run already handled",
			},
			&cli.Int64SliceFlag{
				Name:  "id",
				Usage: "Process only these image ids",
			},
		},
		Action: runBulk,
	}
}

// bulkOptions applies the command line on top of the defaults served by the page config
func bulkOptions(c *cli.Context, defaults models.ProcessingOptions) models.ProcessingOptions {
	opts := defaults
	if c.IsSet("language") {
		opts.Language = c.String("language")
	}
	if c.IsSet("max-length") {
		opts.MaxLength = c.Int("max-length")
	}
	if c.IsSet("instructions") {
		opts.CustomInstructions = c.String("instructions")
	}
	opts.OverwriteExisting = c.Bool("overwrite")
	opts.OnlyAttached = c.Bool("only-attached")
	opts.SkipProcessed = c.Bool("skip-processed")
	if ids := c.Int64Slice("id"); len(ids) > 0 {
		opts.Selection = models.SelectionSelected
		opts.ImageIDs = ids
	}
	return opts
}

func runBulk(c *cli.Context) error {
	cfg, log, err := setup(c)
	if err != nil {
		return err
	}
	serverURL := cfg.PublicURL
	if c.IsSet("server") {
		serverURL = c.String("server")
	}
	token := cfg.AdminToken
	if c.IsSet("token") {
		token = c.String("token")
	}

	pageCfg, err := bulk.FetchConfig(c.Context, serverURL, token, cfg.RequestTimeout)
	if err != nil {
		return err
	}

	batch := models.BatchConfig{BatchSize: pageCfg.BatchSize, BatchDelayMS: pageCfg.BatchDelayMS}
	if c.IsSet("batch-size") {
		batch.BatchSize = c.Int("batch-size")
	}
	if c.IsSet("delay") {
		batch.BatchDelayMS = c.Int("delay")
	}
	opts := bulkOptions(c, pageCfg.Defaults)

	fmt.Printf("Images: %s, with alt text: %d%%, missing: %s\n",
		utils.FormatCount(pageCfg.Stats.TotalImages), pageCfg.WithAltPercentage, utils.FormatCount(pageCfg.Stats.MissingAltText))

	client := bulk.NewHTTPClient(pageCfg.EndpointURL, pageCfg.Nonce, cfg.RequestTimeout)
	ctrl := bulk.NewController(client,
		bulk.WithLogger(log),
		bulk.WithObserver(bulk.NewBarObserver(os.Stdout, pageCfg.Strings)),
		bulk.WithObserver(bulk.NewLogObserver(log)),
	)

	run, err := ctrl.Start(c.Context, opts, batch)
	if err != nil {
		return err
	}
	fmt.Println("Press q or Esc to cancel")

	stopKeys := watchCancel(run, log)
	result := run.Wait(context.Background())
	stopKeys()

	bulk.PrintResult(os.Stdout, result, pageCfg.Strings)
	if result.NeedsReload() {
		color.Yellow("Fetch a fresh nonce by running the command again.")
	}
	if result.Status == models.RunStatusError {
		return cli.Exit("", 1)
	}
	return nil
}

// watchCancel cancels run on q, Esc, Ctrl+C or SIGINT. The returned function
// releases the terminal.
func watchCancel(run *bulk.Run, log logrus.FieldLogger) func() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	keys, err := keyboard.GetKeys(10)
	opened := err == nil
	if !opened {
		// not a terminal; signals still cancel
		log.WithError(err).Debug("Keyboard unavailable")
	}

	go func() {
		for {
			select {
			case <-run.Done():
				return
			case <-sigCh:
				run.Cancel()
				return
			case ev, ok := <-keys:
				if !ok {
					keys = nil
					continue
				}
				if ev.Err != nil {
					continue
				}
				if ev.Rune == 'q' || ev.Rune == 'Q' || ev.Key == keyboard.KeyEsc || ev.Key == keyboard.KeyCtrlC {
					run.Cancel()
					return
				}
			}
		}
	}()

	return func() {
		signal.Stop(sigCh)
		if opened {
			_ = keyboard.Close()
		}
	}
}
