// Package alttext is the server side of bulk alt text runs: it opens runs,
// processes one batch per request and honours cancellation.
package alttext

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"github.com/sirupsen/logrus"

	"github.com/w3a11y/artisan-wordpress-sub001/internal/apperrors"
	"github.com/w3a11y/artisan-wordpress-sub001/internal/db"
	"github.com/w3a11y/artisan-wordpress-sub001/internal/describer"
	"github.com/w3a11y/artisan-wordpress-sub001/internal/runs"
	"github.com/w3a11y/artisan-wordpress-sub001/internal/storage"
	"github.com/w3a11y/artisan-wordpress-sub001/internal/validation"
	"github.com/w3a11y/artisan-wordpress-sub001/pkg/models"
)

// Repository is the media database as seen by the processor
type Repository interface {
	GetImageStats(ctx context.Context, filter models.StatsFilter) (models.ImageStatistics, error)
	CountEligible(ctx context.Context, e db.Eligibility) (int64, error)
	SelectEligible(ctx context.Context, e db.Eligibility, limit int) ([]models.MediaImage, error)
	MarkGenerated(ctx context.Context, id int64, altText, runID string) error
	MarkFailed(ctx context.Context, id int64, runID string) error
	SaveRun(ctx context.Context, run models.RunRecord) error
}

// Config tunes the processor
type Config struct {
	MaxBatchSize int
	Workers      int
	// LockTTL bounds how long a crashed batch can block its run
	LockTTL time.Duration
}

// Processor runs alt text batches
type Processor struct {
	repo      Repository
	media     storage.Store
	describer describer.Describer
	runs      runs.Registry
	pool      *ants.Pool
	cfg       Config
	log       logrus.FieldLogger
}

func NewProcessor(repo Repository, media storage.Store, d describer.Describer, registry runs.Registry, cfg Config, log logrus.FieldLogger) (*Processor, error) {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 10 * time.Minute
	}

	pool, err := ants.NewPool(cfg.Workers, ants.WithOptions(ants.Options{
		Nonblocking:    false,
		ExpiryDuration: 10 * time.Second,
		PanicHandler: func(p any) {
			log.WithField("panic", p).Error("Describe task panicked")
		},
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to create worker pool: %v", err)
	}

	return &Processor{
		repo:      repo,
		media:     media,
		describer: d,
		runs:      registry,
		pool:      pool,
		cfg:       cfg,
		log:       log,
	}, nil
}

// Close releases the worker pool
func (p *Processor) Close() {
	p.pool.Release()
}

// Stats returns alt text coverage of the library
func (p *Processor) Stats(ctx context.Context, filter models.StatsFilter) (models.ImageStatistics, error) {
	stats, err := p.repo.GetImageStats(ctx, filter)
	if err != nil {
		return models.ImageStatistics{}, apperrors.Wrap(apperrors.KindStorage, "alttext.stats", "failed to count images", err)
	}
	return stats, nil
}

// StartRun validates the options, counts the eligible images and opens a run
func (p *Processor) StartRun(ctx context.Context, req models.StartRunRequest) (models.StartRunResponse, error) {
	if err := validation.ProcessingOptions(req.Options); err != nil {
		return models.StartRunResponse{}, err
	}
	if req.BatchSize != 0 {
		if err := p.checkBatchSize(req.BatchSize); err != nil {
			return models.StartRunResponse{}, err
		}
	}

	runID := uuid.NewString()
	total, err := p.repo.CountEligible(ctx, db.Eligibility{Options: req.Options, RunID: runID})
	if err != nil {
		return models.StartRunResponse{}, apperrors.Wrap(apperrors.KindStorage, "alttext.start", "failed to count eligible images", err)
	}

	status := models.RunStatusRunning
	if total == 0 {
		status = models.RunStatusCompleted
	}
	run := models.RunRecord{
		ID:      runID,
		Status:  status,
		Total:   total,
		Options: req.Options,
	}
	if err := p.runs.Create(ctx, run); err != nil {
		return models.StartRunResponse{}, err
	}
	p.saveHistory(ctx, run)

	p.log.WithFields(logrus.Fields{
		"run_id": runID,
		"total":  total,
	}).Info("Bulk run started")

	return models.StartRunResponse{Success: true, RunID: runID, Total: total}, nil
}

func (p *Processor) checkBatchSize(n int) error {
	if n < 1 {
		return apperrors.Validation("alttext.batch", "batch_size must be at least 1")
	}
	if p.cfg.MaxBatchSize > 0 && n > p.cfg.MaxBatchSize {
		return apperrors.Validation("alttext.batch", "batch_size must be at most %d", p.cfg.MaxBatchSize)
	}
	return nil
}

// outcome of one image of a batch
type outcome struct {
	image   models.MediaImage
	altText string
	err     error
}

// ProcessBatch handles up to req.BatchSize eligible images of the run.
// Images that cannot be described are marked failed; a failure of the AI
// service or of storage fails the whole batch and ends the run with an error.
func (p *Processor) ProcessBatch(ctx context.Context, runID string, req models.BatchRequest) (models.BatchResponse, error) {
	const op = "alttext.batch"

	if req.RunID != "" && req.RunID != runID {
		return models.BatchResponse{}, apperrors.Validation(op, "run_id does not match the url")
	}
	if err := p.checkBatchSize(req.BatchSize); err != nil {
		return models.BatchResponse{}, err
	}
	if err := validation.ProcessingOptions(req.Options); err != nil {
		return models.BatchResponse{}, err
	}

	run, err := p.runs.Get(ctx, runID)
	if err != nil {
		return models.BatchResponse{}, err
	}
	switch run.Status {
	case models.RunStatusCancelled:
		return models.BatchResponse{}, apperrors.New(apperrors.KindConflict, op, "run was cancelled")
	case models.RunStatusCompleted, models.RunStatusError:
		return models.BatchResponse{}, apperrors.New(apperrors.KindConflict, op, fmt.Sprintf("run already %s", run.Status))
	}

	token, locked, err := p.runs.TryLockBatch(ctx, runID, p.cfg.LockTTL)
	if err != nil {
		return models.BatchResponse{}, err
	}
	if !locked {
		return models.BatchResponse{}, apperrors.New(apperrors.KindConflict, op, "another batch of this run is in progress")
	}
	defer func() {
		if err := p.runs.UnlockBatch(context.WithoutCancel(ctx), runID, token); err != nil {
			p.log.WithError(err).WithField("run_id", runID).Warn("Failed to release batch lock")
		}
	}()

	log := p.log.WithField("run_id", runID)
	eligibility := db.Eligibility{Options: run.Options, RunID: runID}

	images, err := p.repo.SelectEligible(ctx, eligibility, req.BatchSize)
	if err != nil {
		return models.BatchResponse{}, apperrors.Wrap(apperrors.KindStorage, op, "failed to select images", err)
	}

	outcomes := p.describeAll(ctx, images, run.Options)

	resp := models.BatchResponse{Success: true}
	var batchErr error
	for _, o := range outcomes {
		if o.err != nil && isBatchFailure(o.err) {
			// the image stays eligible for a later run
			if batchErr == nil {
				batchErr = o.err
			}
			continue
		}
		if o.err != nil {
			log.WithError(o.err).WithField("image_id", o.image.ID).Warn("Alt text generation failed for image")
			if err := p.repo.MarkFailed(ctx, o.image.ID, runID); err != nil {
				return models.BatchResponse{}, apperrors.Wrap(apperrors.KindStorage, op, "failed to record image failure", err)
			}
			resp.Failed++
			resp.Processed++
			resp.Results = append(resp.Results, models.BatchResult{ImageID: o.image.ID, Error: apperrors.Message(o.err)})
			continue
		}
		if err := p.repo.MarkGenerated(ctx, o.image.ID, o.altText, runID); err != nil {
			return models.BatchResponse{}, apperrors.Wrap(apperrors.KindStorage, op, "failed to save alt text", err)
		}
		resp.Processed++
		resp.Results = append(resp.Results, models.BatchResult{ImageID: o.image.ID, AltText: o.altText})
	}

	run, err = p.runs.AddProgress(ctx, runID, resp.Processed, resp.Failed)
	if err != nil {
		return models.BatchResponse{}, err
	}

	if batchErr != nil {
		p.finish(ctx, run, models.RunStatusError)
		log.WithError(batchErr).Error("Batch failed")
		return models.BatchResponse{}, apperrors.Wrap(apperrors.KindBatch, op, "alt text service failed", batchErr)
	}

	remaining, err := p.repo.CountEligible(ctx, eligibility)
	if err != nil {
		return models.BatchResponse{}, apperrors.Wrap(apperrors.KindStorage, op, "failed to count remaining images", err)
	}

	resp.TotalProcessed = run.Processed
	resp.Remaining = remaining
	resp.HasMore = remaining > 0
	if !resp.HasMore {
		p.finish(ctx, run, models.RunStatusCompleted)
	}

	log.WithFields(logrus.Fields{
		"processed":       resp.Processed,
		"failed":          resp.Failed,
		"total_processed": resp.TotalProcessed,
		"remaining":       resp.Remaining,
	}).Info("Batch processed")

	return resp, nil
}

// describeAll fetches and describes images concurrently on the worker pool.
// Results keep the order of images.
func (p *Processor) describeAll(ctx context.Context, images []models.MediaImage, opts models.ProcessingOptions) []outcome {
	outcomes := make([]outcome, len(images))
	var wg sync.WaitGroup

	for i, img := range images {
		wg.Add(1)
		idx, img := i, img

		task := func() {
			defer wg.Done()
			text, err := p.describe(ctx, img, opts)
			outcomes[idx] = outcome{image: img, altText: text, err: err}
		}
		if err := p.pool.Submit(task); err != nil {
			wg.Done()
			outcomes[idx] = outcome{image: img, err: apperrors.Wrap(apperrors.KindBatch, "alttext.describe", "worker pool unavailable", err)}
		}
	}
	wg.Wait()

	return outcomes
}

func (p *Processor) describe(ctx context.Context, img models.MediaImage, opts models.ProcessingOptions) (string, error) {
	data, contentType, err := p.media.Get(ctx, img.ObjectKey)
	if err != nil {
		return "", err
	}
	if img.MimeType != "" {
		contentType = img.MimeType
	}

	text, err := p.describer.Describe(ctx, describer.Image{Data: data, MimeType: contentType}, describer.Prompt{
		Language:           opts.Language,
		MaxLength:          opts.MaxLength,
		CustomInstructions: opts.CustomInstructions,
		Title:              img.Title,
	})
	if err != nil {
		if describer.IsServiceFailure(err) {
			return "", apperrors.Wrap(apperrors.KindBatch, "alttext.describe", "alt text service unavailable", err)
		}
		return "", apperrors.Wrap(apperrors.KindValidation, "alttext.describe", "image could not be described", err)
	}
	return text, nil
}

// isBatchFailure separates service and storage outages from problems with a
// single image
func isBatchFailure(err error) bool {
	switch apperrors.KindOf(err) {
	case apperrors.KindBatch, apperrors.KindStorage, apperrors.KindNetwork:
		return true
	}
	return false
}

// CancelRun marks the run cancelled. Batches requested afterwards are
// rejected; a batch already in progress finishes.
func (p *Processor) CancelRun(ctx context.Context, runID string) (models.RunRecord, error) {
	run, err := p.runs.Get(ctx, runID)
	if err != nil {
		return models.RunRecord{}, err
	}
	if models.IsTerminal(run.Status) {
		return run, nil
	}
	if err := p.runs.SetStatus(ctx, runID, models.RunStatusCancelled); err != nil {
		return models.RunRecord{}, err
	}
	run.Status = models.RunStatusCancelled
	p.saveHistory(ctx, run)

	p.log.WithField("run_id", runID).Info("Bulk run cancelled")
	return run, nil
}

// GetRun returns the run record
func (p *Processor) GetRun(ctx context.Context, runID string) (models.RunRecord, error) {
	return p.runs.Get(ctx, runID)
}

func (p *Processor) finish(ctx context.Context, run models.RunRecord, status string) {
	// a cancel that raced with this batch wins
	if current, err := p.runs.Get(ctx, run.ID); err == nil && current.Status == models.RunStatusCancelled {
		return
	}
	if err := p.runs.SetStatus(ctx, run.ID, status); err != nil {
		p.log.WithError(err).WithField("run_id", run.ID).Warn("Failed to update run status")
		return
	}
	run.Status = status
	p.saveHistory(ctx, run)
}

func (p *Processor) saveHistory(ctx context.Context, run models.RunRecord) {
	if err := p.repo.SaveRun(ctx, run); err != nil {
		p.log.WithError(err).WithField("run_id", run.ID).Warn("Failed to save run history")
	}
}
