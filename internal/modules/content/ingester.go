package content

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/mikey-austin/screener/internal/dcp"
	"github.com/mikey-austin/screener/pkg/screener"
)

// ProgressFunc receives the cumulative transfer position.
type ProgressFunc func(done, total int64)

// Transfer downloads a remote package directory.
type Transfer interface {
	// Download fetches remotePath into a directory below dest and returns
	// that directory.
	Download(ctx context.Context, conn screener.ConnectionDetails, remotePath, dest string, progress ProgressFunc) (string, error)
}

// Parser turns a downloaded directory into a package.
type Parser interface {
	Parse(dir string) (*dcp.Package, error)
}

// IngesterConfig configures the worker.
type IngesterConfig struct {
	// DownloadTimeout bounds a single download. Zero means no limit.
	DownloadTimeout time.Duration
}

// Ingester is the single background worker draining the ingest queue.
type Ingester struct {
	log      *zap.Logger
	svc      *Service
	transfer Transfer
	parser   Parser
	config   IngesterConfig
}

// NewIngester builds the worker for svc.
func NewIngester(log *zap.Logger, svc *Service, transfer Transfer, parser Parser, cfg IngesterConfig) (*Ingester, error) {
	if svc == nil {
		return nil, errors.New("content service required")
	}
	if transfer == nil {
		return nil, errors.New("transfer required")
	}
	if parser == nil {
		parser = dcp.Parser{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Ingester{log: log, svc: svc, transfer: transfer, parser: parser, config: cfg}, nil
}

// Run processes jobs one at a time until ctx is done.
func (i *Ingester) Run(ctx context.Context) error {
	for {
		id, job, err := i.svc.queue.Get(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}
		i.process(ctx, id, job)
	}
}

func (i *Ingester) process(ctx context.Context, id string, job Job) {
	log := i.log.With(zap.String("ingest_uuid", id), zap.String("dcp_path", job.DCPPath))
	svc := i.svc
	svc.notifier.IngestState(svc.begin(id, job.DCPPath))
	log.Info("ingest started")

	cpls, err := i.ingest(ctx, log, id, job)
	if err != nil {
		svc.notifier.IngestState(svc.finish(id, job.DCPPath, nil, err))
		log.Error("ingest failed", zap.Error(err))
		return
	}
	svc.notifier.IngestState(svc.finish(id, job.DCPPath, cpls, nil))
	log.Info("ingest complete", zap.Strings("cpl_uuids", cpls))
}

func (i *Ingester) ingest(ctx context.Context, log *zap.Logger, id string, job Job) ([]string, error) {
	svc := i.svc
	tracker := newProgressTracker(func(percent int, done, total int64) {
		svc.history.SetProgress(id, percent)
		svc.notifier.IngestProgress(screener.IngestProgressEvent{
			IngestUUID: id,
			DCPPath:    job.DCPPath,
			Progress:   percent,
			Downloaded: done,
			Total:      total,
			TS:         svc.now().Unix(),
		})
		if percent%10 == 0 {
			log.Info("download progress",
				zap.Int("percent", percent),
				zap.String("downloaded", humanize.Bytes(uint64(done))),
				zap.String("total", humanize.Bytes(uint64(total))))
		}
	})

	dlCtx := ctx
	if i.config.DownloadTimeout > 0 {
		var cancel context.CancelFunc
		dlCtx, cancel = context.WithTimeout(ctx, i.config.DownloadTimeout)
		defer cancel()
	}
	if err := os.MkdirAll(svc.config.IncomingPath, 0o755); err != nil {
		return nil, fmt.Errorf("create incoming dir: %w", err)
	}
	dir, err := i.transfer.Download(dlCtx, job.Connection, job.DCPPath, svc.config.IncomingPath, tracker.Update)
	if dir != "" {
		defer func() {
			if err := os.RemoveAll(dir); err != nil {
				log.Warn("remove incoming package", zap.String("dir", dir), zap.Error(err))
			}
		}()
	}
	if err != nil {
		return nil, fmt.Errorf("download: %w", err)
	}

	pkg, err := i.parser.Parse(dir)
	if err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}

	r := repackager{
		assetsPath: svc.config.AssetsPath,
		ingestPath: svc.config.IngestPath,
		exists:     svc.store.Has,
		now:        svc.now,
	}
	titles, err := r.repackage(pkg)
	if err != nil {
		return nil, err
	}
	if err := os.RemoveAll(pkg.Dir); err != nil {
		log.Warn("remove incoming package", zap.String("dir", pkg.Dir), zap.Error(err))
	}

	published := svc.store.Publish(titles...)
	skipped := len(pkg.CPLs) - len(published)
	if skipped > 0 {
		log.Info("compositions already in store", zap.Int("skipped", skipped))
	}
	cpls := make([]string, 0, len(pkg.CPLs))
	for _, cpl := range pkg.CPLs {
		cpls = append(cpls, cpl.ID)
	}
	return cpls, nil
}
