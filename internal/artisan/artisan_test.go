package artisan

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/w3a11y/artisan-wordpress-sub001/internal/apperrors"
	"github.com/w3a11y/artisan-wordpress-sub001/internal/db"
	"github.com/w3a11y/artisan-wordpress-sub001/internal/logger"
	"github.com/w3a11y/artisan-wordpress-sub001/internal/settings"
	"github.com/w3a11y/artisan-wordpress-sub001/internal/storage"
	"github.com/w3a11y/artisan-wordpress-sub001/pkg/models"
)

func refs(kind string, n int) []Reference {
	out := make([]Reference, n)
	for i := range out {
		out[i] = Reference{Kind: kind, Data: "aGVsbG8="}
	}
	return out
}

func TestAssembleDefaults(t *testing.T) {
	req, err := Assemble(Selection{Prompt: "  a red bicycle  "}, Defaults{AspectRatio: "16:9", Style: "anime"})
	require.NoError(t, err)

	assert.Equal(t, "a red bicycle", req.Prompt)
	assert.Equal(t, "16:9", req.AspectRatio)
	assert.Equal(t, models.Resolution1K, req.Resolution)
	assert.Equal(t, models.Dimensions{Width: 1344, Height: 768}, req.Dimensions)
	assert.Equal(t, "anime", req.Style)
	assert.Nil(t, req.Output)
	assert.False(t, req.Grounding)
}

func TestAssembleOutputOnlyWhenOptimizing(t *testing.T) {
	sel := Selection{Prompt: "cat", OutputFormat: "jpeg", Quality: 70}

	req, err := Assemble(sel, Defaults{})
	require.NoError(t, err)
	assert.Nil(t, req.Output)

	sel.Optimize = true
	req, err = Assemble(sel, Defaults{})
	require.NoError(t, err)
	require.NotNil(t, req.Output)
	assert.Equal(t, Output{Format: models.FormatJPEG, Quality: 70}, *req.Output)

	req, err = Assemble(Selection{Prompt: "cat", Optimize: true}, Defaults{})
	require.NoError(t, err)
	assert.Equal(t, Output{Format: models.DefaultFormat, Quality: models.DefaultQuality}, *req.Output)
}

func TestAssembleResolutionTiers(t *testing.T) {
	req, err := Assemble(Selection{Prompt: "x", AspectRatio: "3:2", Resolution: "4k"}, Defaults{})
	require.NoError(t, err)
	assert.Equal(t, models.Resolution4K, req.Resolution)
	assert.Equal(t, models.Dimensions{Width: 4992, Height: 3328}, req.Dimensions)
}

func TestAssembleReferenceCaps(t *testing.T) {
	tests := []struct {
		name    string
		refs    []Reference
		wantErr bool
	}{
		{"none", nil, false},
		{"six objects and five humans", append(refs(models.ReferenceObject, 6), refs(models.ReferenceHuman, 5)...), false},
		{"seven objects", refs(models.ReferenceObject, 7), true},
		{"six humans", refs(models.ReferenceHuman, 6), true},
		{"fourteen total", append(refs(models.ReferenceObject, 7), refs(models.ReferenceHuman, 7)...), true},
		{"thirteen with style references", append(append(refs(models.ReferenceObject, 6), refs(models.ReferenceHuman, 5)...), refs(models.ReferenceStyle, 2)...), false},
		{"unknown kind", []Reference{{Kind: "animal", Data: "aGVsbG8="}}, true},
		{"no source", []Reference{{Kind: models.ReferenceObject}}, true},
		{"both sources", []Reference{{Kind: models.ReferenceObject, Data: "aGVsbG8=", ImageID: 3}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Assemble(Selection{Prompt: "x", References: tt.refs}, Defaults{})
			if tt.wantErr {
				assert.True(t, apperrors.IsKind(err, apperrors.KindValidation), "got %v", err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestAssembleTotalReferenceCap(t *testing.T) {
	all := append(append(refs(models.ReferenceObject, 6), refs(models.ReferenceHuman, 5)...), refs(models.ReferenceStyle, 3)...)
	_, err := Assemble(Selection{Prompt: "x", References: all}, Defaults{})
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindValidation))
	assert.Equal(t, "at most 13 reference images are allowed", apperrors.Message(err))
}

func TestAssembleRejectsUnknownValues(t *testing.T) {
	tests := []struct {
		name string
		sel  Selection
	}{
		{"empty prompt", Selection{Prompt: "   "}},
		{"aspect ratio", Selection{Prompt: "x", AspectRatio: "7:3"}},
		{"resolution", Selection{Prompt: "x", Resolution: "8K"}},
		{"style", Selection{Prompt: "x", Style: "vaporwave"}},
		{"format", Selection{Prompt: "x", Optimize: true, OutputFormat: "gif"}},
		{"quality", Selection{Prompt: "x", Optimize: true, Quality: 101}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Assemble(tt.sel, Defaults{})
			assert.True(t, apperrors.IsKind(err, apperrors.KindValidation), "got %v", err)
		})
	}
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

type fakeModel struct {
	mu       sync.Mutex
	image    []byte
	err      error
	contents []*genai.Content
	config   *genai.GenerateContentConfig
}

func (f *fakeModel) GenerateContent(_ context.Context, _ string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.contents, f.config = contents, config
	if f.err != nil {
		return nil, f.err
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{
				genai.NewPartFromText("Here is your image."),
				genai.NewPartFromBytes(f.image, "image/png"),
			}},
		}},
	}, nil
}

type generatorFixture struct {
	gen   *Generator
	model *fakeModel
	db    *db.DB
	media *storage.Local
}

func newGenerator(t *testing.T, out []byte) *generatorFixture {
	t.Helper()
	database, err := db.New(filepath.Join(t.TempDir(), "media.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	media, err := storage.NewLocal(t.TempDir())
	require.NoError(t, err)

	model := &fakeModel{image: out}
	gen := &Generator{
		client: model,
		model:  "test-image-model",
		repo:   database,
		media:  media,
		log:    logger.Discard(),
		now:    func() time.Time { return time.Date(2025, 3, 9, 12, 0, 0, 0, time.UTC) },
	}
	return &generatorFixture{gen: gen, model: model, db: database, media: media}
}

func TestGenerateStoresAndRegistersImage(t *testing.T) {
	f := newGenerator(t, pngBytes(t, 32, 32))
	ctx := context.Background()

	req, err := Assemble(Selection{Prompt: "a lighthouse at dusk", Optimize: true, OutputFormat: "jpeg", Quality: 80}, Defaults{})
	require.NoError(t, err)

	res, err := f.gen.Generate(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, "image/jpeg", res.MimeType)
	assert.Equal(t, 1024, res.Width)
	assert.Equal(t, 1024, res.Height)
	assert.True(t, strings.HasPrefix(res.ObjectKey, "artisan/2025/03/"), res.ObjectKey)
	assert.True(t, strings.HasSuffix(res.ObjectKey, ".jpg"), res.ObjectKey)
	assert.Equal(t, "Here is your image.", res.Text)

	data, _, err := f.media.Get(ctx, res.ObjectKey)
	require.NoError(t, err)
	assert.Equal(t, res.Size, int64(len(data)))
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 1024, cfg.Width)

	img, err := f.db.GetImage(ctx, res.ImageID)
	require.NoError(t, err)
	assert.Equal(t, res.ObjectKey, img.ObjectKey)
	assert.Equal(t, "Generated: a lighthouse at dusk", img.Title)
	assert.False(t, img.HasAltText())

	assert.Equal(t, "1:1", f.model.config.ImageConfig.AspectRatio)
	assert.Empty(t, f.model.config.Tools)
}

func TestGenerateKeepsMatchingImageAsIs(t *testing.T) {
	out := pngBytes(t, 1024, 1024)
	f := newGenerator(t, out)

	req, err := Assemble(Selection{Prompt: "x", Title: "Logo"}, Defaults{})
	require.NoError(t, err)
	res, err := f.gen.Generate(context.Background(), req)
	require.NoError(t, err)

	data, _, err := f.media.Get(context.Background(), res.ObjectKey)
	require.NoError(t, err)
	assert.Equal(t, out, data)
	assert.Equal(t, "image/png", res.MimeType)
}

func TestGenerateSendsSourceAndReferences(t *testing.T) {
	f := newGenerator(t, pngBytes(t, 16, 16))
	ctx := context.Background()

	require.NoError(t, f.media.Put(ctx, "2024/source.png", pngBytes(t, 8, 8), "image/png", nil))
	id, err := f.db.AddImage(ctx, models.MediaImage{ObjectKey: "2024/source.png", Title: "source", MimeType: "image/png"})
	require.NoError(t, err)

	inline := base64.StdEncoding.EncodeToString([]byte("ref-bytes"))
	req, err := Assemble(Selection{
		Prompt:        "add a hat",
		Grounding:     true,
		SourceImageID: id,
		References: []Reference{
			{Kind: models.ReferenceObject, Data: "data:image/jpeg;base64," + inline, MimeType: "image/jpeg"},
		},
	}, Defaults{})
	require.NoError(t, err)

	_, err = f.gen.Generate(ctx, req)
	require.NoError(t, err)

	parts := f.model.contents[0].Parts
	require.Len(t, parts, 3)
	assert.Contains(t, parts[0].Text, "Edit the first attached image")
	assert.Equal(t, "image/png", parts[1].InlineData.MIMEType)
	assert.Equal(t, []byte("ref-bytes"), parts[2].InlineData.Data)
	require.Len(t, f.model.config.Tools, 1)
	assert.NotNil(t, f.model.config.Tools[0].GoogleSearch)
}

func TestGenerateFailures(t *testing.T) {
	ctx := context.Background()

	f := newGenerator(t, nil)
	f.model.err = errors.New("upstream unavailable")
	req, err := Assemble(Selection{Prompt: "x"}, Defaults{})
	require.NoError(t, err)
	_, err = f.gen.Generate(ctx, req)
	assert.True(t, apperrors.IsKind(err, apperrors.KindNetwork), "got %v", err)

	f = newGenerator(t, nil)
	_, err = f.gen.Generate(ctx, req)
	assert.True(t, apperrors.IsKind(err, apperrors.KindBatch), "got %v", err)

	f = newGenerator(t, pngBytes(t, 4, 4))
	req.SourceImageID = 404
	_, err = f.gen.Generate(ctx, req)
	assert.True(t, apperrors.IsKind(err, apperrors.KindNotFound), "got %v", err)
}

type staticSettings settings.Settings

func (s staticSettings) Load(context.Context) (settings.Settings, error) {
	return settings.Settings(s), nil
}

func TestHandlerGenerate(t *testing.T) {
	f := newGenerator(t, pngBytes(t, 16, 16))
	s := settings.Defaults()
	s.DefaultAspectRatio = "9:16"
	h := NewHandler(f.gen, staticSettings(s))

	rec := httptest.NewRecorder()
	h.Generate(rec, httptest.NewRequest(http.MethodPost, "/api/artisan/generate", strings.NewReader(`{"prompt":"tall tower"}`)))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"width":768`)
	assert.Contains(t, rec.Body.String(), `"height":1344`)

	rec = httptest.NewRecorder()
	h.Generate(rec, httptest.NewRequest(http.MethodPost, "/api/artisan/generate", strings.NewReader(`{"prompt":"x","style":"vaporwave"}`)))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}
