package main

import (
	"encoding/base64"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"

	"github.com/w3a11y/artisan-wordpress-sub001/internal/artisan"
	"github.com/w3a11y/artisan-wordpress-sub001/internal/gemini"
	"github.com/w3a11y/artisan-wordpress-sub001/internal/settings"
	"github.com/w3a11y/artisan-wordpress-sub001/internal/storage"
	"github.com/w3a11y/artisan-wordpress-sub001/pkg/utils"
)

func generateCommand() *cli.Command {
	return &cli.Command{
		Name:  "generate",
		Usage: "Generate an image and add it to the media library",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "prompt",
				Usage:    "What the image should show",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "title",
				Usage: "Media title (defaults to the start of the prompt)",
			},
			&cli.StringFlag{
				Name:  "aspect-ratio",
				Usage: "Aspect ratio such as 16:9 (defaults to the default_aspect_ratio setting)",
			},
			&cli.StringFlag{
				Name:  "resolution",
				Usage: "Resolution tier: 1K, 2K or 4K",
			},
			&cli.StringFlag{
				Name:  "style",
				Usage: "Visual style (defaults to the default_style setting)",
			},
			&cli.BoolFlag{
				Name:  "optimize",
				Usage: "Convert the result before storing it",
			},
			&cli.StringFlag{
				Name:  "format",
				Usage: "Output format when optimizing: webp, jpeg or png",
			},
			&cli.IntFlag{
				Name:  "quality",
				Usage: "Output quality when optimizing (1-100)",
			},
			&cli.BoolFlag{
				Name:  "grounding",
				Usage: "Let the model ground the image with web search",
			},
			&cli.Int64Flag{
				Name:  "source-id",
				Usage: "Edit this media image instead of generating from scratch",
			},
			&cli.StringSliceFlag{
				Name:  "reference",
				Usage: "Reference image as kind:path or kind:#id, kind is object, human or style",
			},
		},
		Action: generateImage,
	}
}

// parseReference reads kind:path (a local file) or kind:#id (a media image)
func parseReference(arg string) (artisan.Reference, error) {
	kind, target, ok := strings.Cut(arg, ":")
	if !ok || target == "" {
		return artisan.Reference{}, fmt.Errorf("invalid reference %q: expected kind:path or kind:#id", arg)
	}
	ref := artisan.Reference{Kind: kind}
	if id, isID := strings.CutPrefix(target, "#"); isID {
		n, err := strconv.ParseInt(id, 10, 64)
		if err != nil || n <= 0 {
			return artisan.Reference{}, fmt.Errorf("invalid reference id %q", id)
		}
		ref.ImageID = n
		return ref, nil
	}

	data, err := os.ReadFile(target)
	if err != nil {
		return artisan.Reference{}, fmt.Errorf("failed to read reference: %v", err)
	}
	ref.Data = base64.StdEncoding.EncodeToString(data)
	ref.MimeType = storage.ContentType(target)
	return ref, nil
}

func generateImage(c *cli.Context) error {
	cfg, log, err := setup(c)
	if err != nil {
		return err
	}
	if len(cfg.GeminiAPIKeys) == 0 {
		return fmt.Errorf("GEMINI_API_KEYS is required for image generation")
	}

	sel := artisan.Selection{
		Prompt:        c.String("prompt"),
		Title:         c.String("title"),
		AspectRatio:   c.String("aspect-ratio"),
		Resolution:    c.String("resolution"),
		Style:         c.String("style"),
		Optimize:      c.Bool("optimize"),
		OutputFormat:  c.String("format"),
		Quality:       c.Int("quality"),
		Grounding:     c.Bool("grounding"),
		SourceImageID: c.Int64("source-id"),
	}
	for _, arg := range c.StringSlice("reference") {
		ref, err := parseReference(arg)
		if err != nil {
			return err
		}
		sel.References = append(sel.References, ref)
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
	req, err := artisan.Assemble(sel, artisan.Defaults{AspectRatio: current.DefaultAspectRatio, Style: current.DefaultStyle})
	if err != nil {
		return err
	}

	store, err := openStore(c.Context, cfg)
	if err != nil {
		return err
	}
	client, err := gemini.New(c.Context, cfg.GeminiAPIKeys, log)
	if err != nil {
		return fmt.Errorf("failed to create gemini client: %v", err)
	}

	fmt.Printf("Generating %s %s image (%dx%d, %s)...\n",
		req.Resolution, req.AspectRatio, req.Dimensions.Width, req.Dimensions.Height, req.Style)
	result, err := artisan.NewGenerator(client, cfg.GeminiImageModel, database, store, log).Generate(c.Context, req)
	if err != nil {
		return err
	}

	color.Green("Image %d stored as %s", result.ImageID, result.ObjectKey)
	fmt.Printf("Size: %dx%d, %s (%s)\n", result.Width, result.Height, utils.FormatSize(result.Size), result.MimeType)
	if result.Text != "" {
		fmt.Printf("Model said: %s\n", result.Text)
	}
	return nil
}
