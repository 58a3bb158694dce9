package media

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/w3a11y/artisan-wordpress-sub001/internal/storage"
	"github.com/w3a11y/artisan-wordpress-sub001/pkg/models"
)

// ImportSummary reports the outcome of an attachment import
type ImportSummary struct {
	Imported int64
	// Missing lists the ids of rows whose file is not under the source directory
	Missing []string
	Batches int
}

// Importer loads existing attachments from a CSV export with the columns
// id, object_key, parent_id, alt_text and an optional title
type Importer struct {
	repo      Repository
	sourceDir string
	batchSize int
	log       logrus.FieldLogger
}

// NewImporter builds an importer. When sourceDir is set, rows whose file is
// missing below it are skipped.
func NewImporter(repo Repository, sourceDir string, batchSize int, log logrus.FieldLogger) *Importer {
	if batchSize <= 0 {
		batchSize = 1000
	}
	return &Importer{repo: repo, sourceDir: sourceDir, batchSize: batchSize, log: log}
}

// ImportFile imports the CSV file at csvPath
func (im *Importer) ImportFile(ctx context.Context, csvPath string) (ImportSummary, error) {
	file, err := os.Open(csvPath)
	if err != nil {
		return ImportSummary{}, fmt.Errorf("error opening CSV file: %v", err)
	}
	defer file.Close()
	return im.Import(ctx, file)
}

// Import reads attachments from r and saves them in batches
func (im *Importer) Import(ctx context.Context, r io.Reader) (ImportSummary, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	// skip header row
	if _, err := reader.Read(); err != nil {
		return ImportSummary{}, fmt.Errorf("error reading CSV header: %v", err)
	}

	var sum ImportSummary
	batch := make([]models.MediaImage, 0, im.batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := im.repo.SaveImagesBatch(ctx, batch); err != nil {
			return fmt.Errorf("failed to save batch %d: %w", sum.Batches+1, err)
		}
		sum.Imported += int64(len(batch))
		sum.Batches++
		im.log.WithFields(logrus.Fields{"batch": sum.Batches, "imported": sum.Imported}).Debug("Saved import batch")
		batch = batch[:0]
		return nil
	}

	for lineNum := 2; ; lineNum++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return sum, fmt.Errorf("error reading CSV line %d: %v", lineNum, err)
		}
		if len(record) < 2 {
			return sum, fmt.Errorf("invalid CSV format at line %d: expected at least 2 columns", lineNum)
		}

		img, err := parseRecord(record)
		if err != nil {
			return sum, fmt.Errorf("invalid CSV line %d: %v", lineNum, err)
		}
		if !storage.IsImage(img.ObjectKey) {
			continue
		}
		if im.sourceDir != "" {
			if _, err := os.Stat(filepath.Join(im.sourceDir, filepath.FromSlash(strings.TrimSpace(record[1])))); os.IsNotExist(err) {
				sum.Missing = append(sum.Missing, strings.TrimSpace(record[0]))
				continue
			}
		}

		batch = append(batch, img)
		if len(batch) >= im.batchSize {
			if err := flush(); err != nil {
				return sum, err
			}
		}
	}
	if err := flush(); err != nil {
		return sum, err
	}

	if len(sum.Missing) > 0 {
		im.log.WithField("missing", len(sum.Missing)).Warn("Some attachments have no file")
	}
	return sum, nil
}

func parseRecord(record []string) (models.MediaImage, error) {
	field := func(i int) string {
		if i < len(record) {
			return strings.TrimSpace(record[i])
		}
		return ""
	}

	key := storage.ObjectKey(field(1))
	if key == "" {
		return models.MediaImage{}, fmt.Errorf("object_key is empty")
	}
	var parent int64
	if v := field(2); v != "" {
		p, err := strconv.ParseInt(v, 10, 64)
		if err != nil || p < 0 {
			return models.MediaImage{}, fmt.Errorf("parent_id %q is not a valid id", v)
		}
		parent = p
	}
	t := field(4)
	if t == "" {
		t = title(path.Base(field(1)))
	}

	return models.MediaImage{
		ObjectKey: key,
		Title:     t,
		MimeType:  storage.ContentType(key),
		ParentID:  parent,
		AltText:   field(3),
	}, nil
}
