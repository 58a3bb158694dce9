package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/w3a11y/artisan-wordpress-sub001/internal/config"
	"github.com/w3a11y/artisan-wordpress-sub001/internal/db"
	"github.com/w3a11y/artisan-wordpress-sub001/internal/logger"
	"github.com/w3a11y/artisan-wordpress-sub001/internal/media"
	"github.com/w3a11y/artisan-wordpress-sub001/internal/nonce"
	"github.com/w3a11y/artisan-wordpress-sub001/internal/page"
	"github.com/w3a11y/artisan-wordpress-sub001/internal/report"
	"github.com/w3a11y/artisan-wordpress-sub001/internal/runs"
	"github.com/w3a11y/artisan-wordpress-sub001/internal/settings"
	"github.com/w3a11y/artisan-wordpress-sub001/internal/storage"
	"github.com/w3a11y/artisan-wordpress-sub001/pkg/models"
	"github.com/w3a11y/artisan-wordpress-sub001/pkg/utils"
	"github.com/w3a11y/artisan-wordpress-sub001/pkg/version"
)

func main() {
	cli.VersionFlag = &cli.BoolFlag{
		Name:    "version",
		Aliases: []string{"v"},
		Usage:   "print the version",
	}

	app := &cli.App{
		Name:                 "w3a11y",
		Usage:                "Bulk alt text generation and AI image generation for a media library",
		Version:              version.Version,
		EnableBashCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "db",
				Usage: "Path to the media database (overrides W3A11Y_DB_PATH)",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "version",
				Usage: "Print detailed version information",
				Action: func(c *cli.Context) error {
					fmt.Printf("Version:    %s\n", version.Version)
					fmt.Printf("Git commit: %s\n", version.GitCommit)
					fmt.Printf("Built:      %s\n", version.BuildTime)
					return nil
				},
			},
			{
				Name:  "scan",
				Usage: "Register the images of a directory, optionally uploading them",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "source",
						Usage:    "Source directory path",
						Required: true,
					},
					&cli.BoolFlag{
						Name:  "upload",
						Usage: "Upload every image to the media store before registering it",
					},
					&cli.IntFlag{
						Name:  "workers",
						Usage: "Number of parallel workers for uploading files",
						Value: 16,
					},
					&cli.IntFlag{
						Name:  "batch",
						Usage: "Batch size for registering images",
						Value: 100,
					},
				},
				Action: scanDirectory,
			},
			{
				Name:  "import",
				Usage: "Import existing attachments from CSV",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "csv",
						Usage:    "Path to CSV file (id, object_key, parent_id, alt_text[, title])",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "source",
						Usage: "Directory holding the files; rows without a file are reported missing",
					},
					&cli.IntFlag{
						Name:  "batch",
						Usage: "Batch size for processing",
						Value: 1000,
					},
				},
				Action: importCSV,
			},
			{
				Name:  "status",
				Usage: "Show alt text coverage of the media library",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "missing-only",
						Usage: "Count only images without alt text",
					},
					&cli.BoolFlag{
						Name:  "only-attached",
						Usage: "Count only images attached to a post",
					},
				},
				Action: showStatus,
			},
			{
				Name:  "settings",
				Usage: "Read or change the alt text and generation settings",
				Subcommands: []*cli.Command{
					{
						Name:   "get",
						Usage:  "Print every setting",
						Action: getSettings,
					},
					{
						Name:      "set",
						Usage:     "Change settings",
						ArgsUsage: "key=value [key=value...]",
						Action:    setSettings,
					},
				},
			},
			{
				Name:  "config",
				Usage: "Print the bulk run configuration as JSON",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "endpoint",
						Usage: "Public base URL of the server (overrides W3A11Y_PUBLIC_URL)",
					},
					&cli.StringFlag{
						Name:  "session",
						Usage: "Session the nonce is bound to",
						Value: "admin",
					},
					&cli.BoolFlag{
						Name:  "artisan",
						Usage: "Print the image generation configuration instead",
					},
				},
				Action: printConfig,
			},
			serveCommand(),
			bulkCommand(),
			generateCommand(),
			{
				Name:  "export",
				Usage: "Write a spreadsheet report of images, alt text and runs",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "out",
						Usage:    "Output .xlsx file",
						Required: true,
					},
					&cli.IntFlag{
						Name:  "runs",
						Usage: "Number of recent runs to include",
						Value: 50,
					},
				},
				Action: exportReport,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// setup loads the environment configuration, applies global flags and builds the logger
func setup(c *cli.Context) (*config.Config, *logrus.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if path := c.String("db"); path != "" {
		cfg.DBPath = path
	}
	return cfg, logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, File: cfg.LogFile}), nil
}

func openDB(cfg *config.Config) (*db.DB, error) {
	database, err := db.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %v", err)
	}
	return database, nil
}

// openStore returns the MinIO bucket when configured, else the local media directory
func openStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	if cfg.UseMinio() {
		store, err := storage.NewMinio(storage.MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			Bucket:    cfg.MinioBucket,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Secure:    cfg.MinioSecure,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create minio client: %v", err)
		}
		if err := store.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		return store, nil
	}
	if cfg.MediaDir == "" {
		return nil, fmt.Errorf("either MINIO_ENDPOINT or W3A11Y_MEDIA_DIR is required")
	}
	return storage.NewLocal(cfg.MediaDir)
}

func openRegistry(cfg *config.Config) (runs.Registry, error) {
	if !cfg.UseRedis() {
		return runs.NewMemory(), nil
	}
	return runs.NewRedis(runs.RedisConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
}

// dbStats exposes the database statistics to the page renderer
type dbStats struct {
	*db.DB
}

func (d dbStats) Stats(ctx context.Context, filter models.StatsFilter) (models.ImageStatistics, error) {
	return d.GetImageStats(ctx, filter)
}

func scanDirectory(c *cli.Context) error {
	cfg, log, err := setup(c)
	if err != nil {
		return err
	}
	database, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	var store storage.Store
	if c.Bool("upload") {
		if store, err = openStore(c.Context, cfg); err != nil {
			return err
		}
	}

	scannerConfig := media.ScannerConfig{
		NumWorkers: c.Int("workers"),
		BatchSize:  c.Int("batch"),
		Upload:     c.Bool("upload"),
		Progress:   os.Stdout,
	}
	scanner, err := media.NewScanner(database, store, &scannerConfig, log)
	if err != nil {
		return fmt.Errorf("failed to create scanner: %v", err)
	}

	sum, err := scanner.Scan(c.Context, c.String("source"))
	if err != nil {
		return fmt.Errorf("failed to scan directory: %v", err)
	}

	fmt.Printf("\nScan Summary:\n")
	fmt.Printf("- Images found: %s (Size: %s)\n", utils.FormatCount(sum.Found), utils.FormatSize(sum.FoundSize))
	if scannerConfig.Upload {
		fmt.Printf("- Uploaded to %s: %s\n", store.Name(), utils.FormatCount(sum.Uploaded))
		fmt.Printf("- Failed uploads: %s\n", utils.FormatCount(sum.Failed))
	}
	fmt.Printf("- Registered: %s\n", utils.FormatCount(sum.Registered))
	fmt.Printf("- Took: %s\n", utils.FormatDuration(sum.Elapsed))
	return nil
}

func importCSV(c *cli.Context) error {
	cfg, log, err := setup(c)
	if err != nil {
		return err
	}
	database, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	importer := media.NewImporter(database, c.String("source"), c.Int("batch"), log)
	sum, err := importer.ImportFile(c.Context, c.String("csv"))
	if err != nil {
		return err
	}

	fmt.Printf("\nImport Summary:\n")
	fmt.Printf("- Successfully imported: %s images in %d batches\n", utils.FormatCount(sum.Imported), sum.Batches)
	fmt.Printf("- Missing files: %d\n", len(sum.Missing))
	if len(sum.Missing) > 0 {
		fmt.Printf("  ids: %s\n", strings.Join(sum.Missing, ", "))
	}
	return nil
}

func showStatus(c *cli.Context) error {
	cfg, _, err := setup(c)
	if err != nil {
		return err
	}
	database, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	stats, err := database.GetImageStats(c.Context, models.StatsFilter{
		MissingAltOnly: c.Bool("missing-only"),
		OnlyAttached:   c.Bool("only-attached"),
	})
	if err != nil {
		return fmt.Errorf("failed to get stats: %v", err)
	}

	fmt.Printf("Database: %s\n", cfg.DBPath)
	fmt.Printf("Total Images: %s\n", utils.FormatCount(stats.TotalImages))
	fmt.Printf("With Alt Text: %s (%d%%)\n", utils.FormatCount(stats.WithAltText), stats.WithAltPercentage())
	missing := fmt.Sprintf("Missing Alt Text: %s (%d%%)", utils.FormatCount(stats.MissingAltText), stats.MissingPercentage)
	if stats.MissingAltText > 0 {
		color.Yellow(missing)
	} else {
		color.Green(missing)
	}
	return nil
}

func getSettings(c *cli.Context) error {
	cfg, log, err := setup(c)
	if err != nil {
		return err
	}
	database, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	current, err := settings.NewProvider(database, log).Load(c.Context)
	if err != nil {
		return err
	}
	values := current.Values()
	for _, key := range settings.Keys {
		fmt.Printf("%-28s %s\n", key, values[key])
	}
	return nil
}

func setSettings(c *cli.Context) error {
	if c.NArg() == 0 {
		return fmt.Errorf("at least one key=value pair is required")
	}
	values := make(map[string]string, c.NArg())
	for _, arg := range c.Args().Slice() {
		key, value, ok := strings.Cut(arg, "=")
		if !ok {
			return fmt.Errorf("invalid argument %q: expected key=value", arg)
		}
		values[strings.TrimSpace(key)] = value
	}

	cfg, log, err := setup(c)
	if err != nil {
		return err
	}
	database, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	if _, err := settings.NewProvider(database, log).Update(c.Context, values); err != nil {
		return err
	}
	fmt.Printf("Updated %d setting(s)\n", len(values))
	return nil
}

func printConfig(c *cli.Context) error {
	cfg, log, err := setup(c)
	if err != nil {
		return err
	}
	database, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	var nonces *nonce.Manager
	if cfg.NonceSecret != "" {
		nonces = nonce.NewManager(cfg.NonceSecret, cfg.NonceLifetime)
	}
	endpoint := cfg.PublicURL
	if c.IsSet("endpoint") {
		endpoint = c.String("endpoint")
	}
	renderer := page.NewRenderer(settings.NewProvider(database, log), dbStats{database}, nonces, endpoint)

	var out any
	if c.Bool("artisan") {
		out, err = renderer.ArtisanConfig(c.Context, c.String("session"))
	} else {
		out, err = renderer.BulkConfig(c.Context, c.String("session"), models.StatsFilter{})
	}
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func exportReport(c *cli.Context) error {
	cfg, _, err := setup(c)
	if err != nil {
		return err
	}
	database, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	file, err := os.Create(c.String("out"))
	if err != nil {
		return fmt.Errorf("failed to create report file: %v", err)
	}
	if err := report.Write(c.Context, database, file, c.Int("runs")); err != nil {
		file.Close()
		return fmt.Errorf("failed to write report: %v", err)
	}
	if err := file.Close(); err != nil {
		return err
	}

	fmt.Printf("Report written to %s\n", c.String("out"))
	return nil
}
