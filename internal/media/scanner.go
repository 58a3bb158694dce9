// Package media fills the media library: it scans a directory of images,
// optionally uploads them to object storage, and imports attachment lists.
package media

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cheggaaa/pb/v3"
	"github.com/sirupsen/logrus"

	"github.com/w3a11y/artisan-wordpress-sub001/internal/storage"
	"github.com/w3a11y/artisan-wordpress-sub001/pkg/models"
	"github.com/w3a11y/artisan-wordpress-sub001/pkg/utils"
)

// Repository is where discovered images are registered
type Repository interface {
	SaveImagesBatch(ctx context.Context, images []models.MediaImage) error
}

// ScannerConfig holds configuration for the scanner
type ScannerConfig struct {
	NumWorkers int
	BatchSize  int
	// Upload copies every image to the store before registering it
	Upload bool
	// Progress receives worker bars and the progress line; nil keeps quiet
	Progress io.Writer
}

// DefaultScannerConfig returns default scanner configuration
func DefaultScannerConfig() ScannerConfig {
	return ScannerConfig{
		NumWorkers: 8,
		BatchSize:  100,
	}
}

// Summary reports the outcome of a scan
type Summary struct {
	Found      int64
	FoundSize  int64
	Uploaded   int64
	Failed     int64
	Registered int64
	Elapsed    time.Duration
}

// Scanner registers the images of a directory
type Scanner struct {
	repo  Repository
	store storage.Store
	cfg   ScannerConfig
	log   logrus.FieldLogger
}

// NewScanner builds a scanner. store may be nil when cfg.Upload is off.
func NewScanner(repo Repository, store storage.Store, cfg *ScannerConfig, log logrus.FieldLogger) (*Scanner, error) {
	if cfg == nil {
		def := DefaultScannerConfig()
		cfg = &def
	}
	if cfg.NumWorkers < 1 {
		cfg.NumWorkers = 1
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 100
	}
	if cfg.Upload && store == nil {
		return nil, fmt.Errorf("upload requested without a storage backend")
	}
	return &Scanner{repo: repo, store: store, cfg: *cfg, log: log}, nil
}

type file struct {
	path string
	key  string
	size int64
}

// workerProgress tracks progress for a single upload worker
type workerProgress struct {
	id  int
	bar *pb.ProgressBar
}

func newWorkerProgress(id int, totalFiles int64, out io.Writer) *workerProgress {
	bar := pb.New64(totalFiles)
	bar.SetWriter(out)
	bar.SetTemplateString(`Worker {{string . "id"}} {{counters . }} {{bar . }} {{percent . }} {{speed . }}`)
	bar.Set("id", fmt.Sprintf("%d", id))
	return &workerProgress{id: id, bar: bar}
}

type scanProgress struct {
	sync.Mutex
	totalFiles    int64
	totalSize     int64
	uploadedFiles int64
	uploadedSize  int64
	failedFiles   int64
	startTime     time.Time
}

func (p *scanProgress) update(size int64, failed bool) {
	p.Lock()
	defer p.Unlock()
	if failed {
		p.failedFiles++
		return
	}
	p.uploadedFiles++
	p.uploadedSize += size
}

func (p *scanProgress) print(w io.Writer) {
	if w == nil {
		return
	}
	p.Lock()
	defer p.Unlock()

	elapsed := time.Since(p.startTime)
	var speed float64
	if elapsed > 0 {
		speed = float64(p.uploadedSize) / elapsed.Seconds()
	}
	fmt.Fprintf(w, "\rProgress: %d/%d files - %s/%s | Speed: %s/s | Failed: %d | Time Elapsed: %s",
		p.uploadedFiles,
		p.totalFiles,
		utils.FormatSize(p.uploadedSize),
		utils.FormatSize(p.totalSize),
		utils.FormatSize(int64(speed)),
		p.failedFiles,
		utils.FormatDuration(elapsed),
	)
}

// Scan walks root, uploads images when configured, and registers them in batches
func (s *Scanner) Scan(ctx context.Context, root string) (Summary, error) {
	started := time.Now()
	files, err := collect(root)
	if err != nil {
		return Summary{}, err
	}

	sum := Summary{Found: int64(len(files))}
	for _, f := range files {
		sum.FoundSize += f.size
	}
	s.log.WithFields(logrus.Fields{
		"root":  root,
		"files": sum.Found,
		"size":  utils.FormatSize(sum.FoundSize),
	}).Info("Scanned media directory")

	ready := files
	if s.cfg.Upload {
		ready, err = s.upload(ctx, files, &sum)
		if err != nil {
			return sum, err
		}
	}

	for start := 0; start < len(ready); start += s.cfg.BatchSize {
		end := min(start+s.cfg.BatchSize, len(ready))
		batch := make([]models.MediaImage, 0, end-start)
		for _, f := range ready[start:end] {
			batch = append(batch, models.MediaImage{
				ObjectKey: f.key,
				Title:     title(f.path),
				MimeType:  storage.ContentType(f.key),
				Size:      f.size,
			})
		}
		if err := s.repo.SaveImagesBatch(ctx, batch); err != nil {
			return sum, fmt.Errorf("failed to register images: %w", err)
		}
		sum.Registered += int64(len(batch))
	}

	sum.Elapsed = time.Since(started)
	return sum, nil
}

func collect(root string) ([]file, error) {
	var files []file
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !storage.IsImage(p) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		files = append(files, file{path: p, key: storage.ObjectKey(filepath.ToSlash(rel)), size: info.Size()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", root, err)
	}
	return files, nil
}

// upload copies files to the store on NumWorkers goroutines and returns the
// files that made it
func (s *Scanner) upload(ctx context.Context, files []file, sum *Summary) ([]file, error) {
	jobs := make(chan file, s.cfg.NumWorkers)
	progress := &scanProgress{totalFiles: int64(len(files)), totalSize: sum.FoundSize, startTime: time.Now()}

	var (
		mu       sync.Mutex
		uploaded []file
		wg       sync.WaitGroup
	)

	filesPerWorker := len(files) / s.cfg.NumWorkers
	if filesPerWorker == 0 {
		filesPerWorker = 1
	}
	workers := make([]*workerProgress, s.cfg.NumWorkers)
	for i := range workers {
		if s.cfg.Progress != nil {
			workers[i] = newWorkerProgress(i, int64(filesPerWorker), s.cfg.Progress)
			workers[i].bar.Start()
		}
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for job := range jobs {
				meta := map[string]string{"path": job.key}
				size, err := s.store.PutFile(ctx, job.key, job.path, storage.ContentType(job.key), meta)
				if err == nil && size != job.size {
					err = fmt.Errorf("size mismatch: expected %d bytes, stored %d", job.size, size)
				}
				if err != nil {
					s.log.WithError(err).WithFields(logrus.Fields{
						"worker": id,
						"path":   job.path,
						"key":    job.key,
					}).Warn("Failed to upload image")
					progress.update(job.size, true)
					continue
				}

				mu.Lock()
				uploaded = append(uploaded, job)
				mu.Unlock()
				progress.update(job.size, false)
				if workers[id] != nil {
					workers[id].bar.Increment()
				}
				progress.print(s.cfg.Progress)
			}
		}(i)
	}

	var cancelled error
	for _, f := range files {
		select {
		case jobs <- f:
		case <-ctx.Done():
			cancelled = ctx.Err()
		}
		if cancelled != nil {
			break
		}
	}
	close(jobs)
	wg.Wait()

	for _, w := range workers {
		if w != nil {
			w.bar.Finish()
		}
	}
	if s.cfg.Progress != nil {
		fmt.Fprintln(s.cfg.Progress)
	}

	sum.Uploaded = progress.uploadedFiles
	sum.Failed = progress.failedFiles
	s.log.WithFields(logrus.Fields{
		"uploaded": sum.Uploaded,
		"failed":   sum.Failed,
		"size":     utils.FormatSize(progress.uploadedSize),
		"store":    s.store.Name(),
	}).Info("Upload finished")

	return uploaded, cancelled
}

func title(path string) string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return strings.NewReplacer("-", " ", "_", " ").Replace(base)
}
