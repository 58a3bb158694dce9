package artisan

import (
	"context"
	"encoding/base64"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"google.golang.org/genai"

	"github.com/w3a11y/artisan-wordpress-sub001/internal/apperrors"
	"github.com/w3a11y/artisan-wordpress-sub001/internal/gemini"
	"github.com/w3a11y/artisan-wordpress-sub001/internal/storage"
	"github.com/w3a11y/artisan-wordpress-sub001/pkg/models"
)

type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Repository is the media database as seen by the generator
type Repository interface {
	GetImage(ctx context.Context, id int64) (*models.MediaImage, error)
	AddImage(ctx context.Context, img models.MediaImage) (int64, error)
}

// Result describes a stored generated image
type Result struct {
	ImageID   int64  `json:"image_id"`
	ObjectKey string `json:"object_key"`
	MimeType  string `json:"mime_type"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Size      int64  `json:"size"`
	// Text is whatever the model said next to the image
	Text string `json:"text,omitempty"`
}

// Generator turns a GenerationRequest into a stored media image
type Generator struct {
	client contentGenerator
	model  string
	repo   Repository
	media  storage.Store
	log    logrus.FieldLogger
	now    func() time.Time
}

func NewGenerator(client *gemini.Client, model string, repo Repository, media storage.Store, log logrus.FieldLogger) *Generator {
	return &Generator{
		client: client,
		model:  model,
		repo:   repo,
		media:  media,
		log:    log,
		now:    time.Now,
	}
}

func (g *Generator) Generate(ctx context.Context, req GenerationRequest) (*Result, error) {
	const op = "artisan.generate"
	log := g.log.WithFields(logrus.Fields{"aspect_ratio": req.AspectRatio, "resolution": req.Resolution, "style": req.Style})

	images, err := g.loadImages(ctx, req)
	if err != nil {
		return nil, err
	}

	parts := []*genai.Part{genai.NewPartFromText(promptText(req))}
	for _, img := range images {
		parts = append(parts, genai.NewPartFromBytes(img.data, img.mimeType))
	}

	config := &genai.GenerateContentConfig{
		ResponseModalities: []string{"TEXT", "IMAGE"},
		ImageConfig: &genai.ImageConfig{
			AspectRatio: req.AspectRatio,
		},
	}
	if req.Grounding {
		config.Tools = []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}}
	}

	log.WithField("inputs", len(images)).Info("Generating image")
	started := g.now()
	resp, err := g.client.GenerateContent(ctx, g.model, []*genai.Content{{Role: genai.RoleUser, Parts: parts}}, config)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindNetwork, op, "image generation failed", err)
	}

	data, mimeType, ok := gemini.InlineImage(resp)
	if !ok {
		return nil, apperrors.New(apperrors.KindBatch, op, "the model returned no image")
	}

	decoded, err := decode(data)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindBatch, op, "the model returned an unreadable image", err)
	}
	scaled := resize(decoded, req.Dimensions)

	format, quality := models.FormatPNG, 0
	if req.Output != nil {
		format, quality = req.Output.Format, req.Output.Quality
	}
	if req.Output != nil || scaled != decoded || mimeType == "" {
		data, mimeType, err = encode(scaled, format, quality)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.KindInternal, op, "failed to convert image", err)
		}
	}

	key := g.objectKey(mimeType)
	meta := map[string]string{
		"generator":    g.model,
		"aspect-ratio": req.AspectRatio,
		"style":        req.Style,
	}
	if err := g.media.Put(ctx, key, data, mimeType, meta); err != nil {
		return nil, apperrors.Wrap(apperrors.KindStorage, op, "failed to store generated image", err)
	}

	title := req.Title
	if title == "" {
		title = titleFromPrompt(req.Prompt)
	}
	id, err := g.repo.AddImage(ctx, models.MediaImage{
		ObjectKey: key,
		Title:     title,
		MimeType:  mimeType,
		Size:      int64(len(data)),
	})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindStorage, op, "failed to register generated image", err)
	}

	log.WithFields(logrus.Fields{
		"image_id": id,
		"key":      key,
		"took":     g.now().Sub(started).Round(time.Millisecond),
	}).Info("Image generated")

	return &Result{
		ImageID:   id,
		ObjectKey: key,
		MimeType:  mimeType,
		Width:     scaled.Bounds().Dx(),
		Height:    scaled.Bounds().Dy(),
		Size:      int64(len(data)),
		Text:      strings.TrimSpace(gemini.Text(resp)),
	}, nil
}

type inputImage struct {
	data     []byte
	mimeType string
}

// loadImages fetches the source image first, then the references in order
func (g *Generator) loadImages(ctx context.Context, req GenerationRequest) ([]inputImage, error) {
	refs := req.References
	if req.SourceImageID != 0 {
		refs = append([]Reference{{ImageID: req.SourceImageID}}, refs...)
	}
	images := make([]inputImage, len(refs))

	eg, ctx := errgroup.WithContext(ctx)
	for i, ref := range refs {
		eg.Go(func() error {
			img, err := g.loadReference(ctx, ref)
			if err != nil {
				return err
			}
			images[i] = img
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return images, nil
}

func (g *Generator) loadReference(ctx context.Context, ref Reference) (inputImage, error) {
	const op = "artisan.reference"

	if ref.Data != "" {
		data, err := base64.StdEncoding.DecodeString(stripDataURL(ref.Data))
		if err != nil {
			return inputImage{}, apperrors.Validation(op, "reference data is not valid base64")
		}
		mimeType := ref.MimeType
		if mimeType == "" {
			mimeType = "image/png"
		}
		return inputImage{data: data, mimeType: mimeType}, nil
	}

	img, err := g.repo.GetImage(ctx, ref.ImageID)
	if err != nil {
		return inputImage{}, err
	}
	data, contentType, err := g.media.Get(ctx, img.ObjectKey)
	if err != nil {
		return inputImage{}, err
	}
	if img.MimeType != "" {
		contentType = img.MimeType
	}
	return inputImage{data: data, mimeType: contentType}, nil
}

func (g *Generator) objectKey(mimeType string) string {
	now := g.now().UTC()
	return path.Join("artisan", now.Format("2006"), now.Format("01"), uuid.NewString()+extension(mimeType))
}

// stripDataURL drops a "data:image/png;base64," prefix
func stripDataURL(s string) string {
	if strings.HasPrefix(s, "data:") {
		if i := strings.Index(s, ","); i >= 0 {
			return s[i+1:]
		}
	}
	return s
}

func titleFromPrompt(prompt string) string {
	words := strings.Fields(prompt)
	if len(words) > 8 {
		words = words[:8]
	}
	return fmt.Sprintf("Generated: %s", strings.Join(words, " "))
}
