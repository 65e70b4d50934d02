// Package service orchestrates a full export run: fetch the binary log,
// run the adaptive exporter, record the run, and publish the JSON views.
package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/alloctrace/internal/binindex"
	"github.com/alloctrace/internal/export"
	"github.com/alloctrace/internal/repository"
	"github.com/alloctrace/internal/storage"
	"github.com/alloctrace/pkg/config"
	"github.com/alloctrace/pkg/errors"
	"github.com/alloctrace/pkg/model"
	"github.com/alloctrace/pkg/utils"
)

// RunRequest describes one export invocation.
type RunRequest struct {
	// SourcePath is a local binary log path. Exactly one of SourcePath
	// and SourceKey must be set.
	SourcePath string

	// SourceKey is an object storage key to fetch the log from.
	SourceKey string

	// BaseName names the output files; empty derives it from the log
	// file name.
	BaseName string

	// Types restricts the exported views; empty exports all five.
	Types []string

	// Publish uploads the view files to object storage after the export.
	Publish bool

	// Force runs the export even when a completed run already exists for
	// the same log content.
	Force bool
}

// RunReport is the outcome of one export run.
type RunReport struct {
	RunUUID string
	// Skipped is set when an up-to-date completed run already covered
	// this log content and Force was not given.
	Skipped       bool
	PreviousRun   string
	Stats         *export.MultiExportStats
	PublishedKeys []string
}

// ExportService wires the exporter, run history, and storage together.
type ExportService struct {
	config   *config.Config
	logger   utils.Logger
	db       *repository.Database
	storage  storage.Storage
	exporter *export.AdaptiveExporter
}

// New creates an uninitialized service.
func New(cfg *config.Config, logger utils.Logger) *ExportService {
	if logger == nil {
		logger = utils.NewDefaultLogger(utils.LevelInfo, nil)
	}
	return &ExportService{config: cfg, logger: logger}
}

// Initialize connects the database and storage and builds the exporter.
func (s *ExportService) Initialize() error {
	s.logger.Info("connecting to database (%s)", s.config.Database.Type)
	db, err := repository.NewDatabase(&s.config.Database)
	if err != nil {
		return err
	}
	s.db = db

	s.logger.Info("initializing storage (%s)", s.config.Storage.Type)
	store, err := storage.New(&s.config.Storage)
	if err != nil {
		db.Close()
		return err
	}
	s.storage = store

	exporter, err := export.NewAdaptiveExporter(&s.config.Export, s.logger)
	if err != nil {
		db.Close()
		return err
	}
	s.exporter = exporter
	return nil
}

// Close releases the database connection.
func (s *ExportService) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Runs exposes run history for CLI listing.
func (s *ExportService) Runs() repository.RunRepository {
	return s.db.Runs
}

// Run executes one export end to end.
func (s *ExportService) Run(ctx context.Context, req *RunRequest) (*RunReport, error) {
	ctx, span := otel.Tracer("alloctrace").Start(ctx, "export.run")
	defer span.End()

	logPath, cleanup, err := s.resolveSource(ctx, req)
	if err != nil {
		return nil, err
	}
	if cleanup != nil {
		defer cleanup()
	}

	types, err := parseTypes(req.Types)
	if err != nil {
		return nil, err
	}

	baseName := req.BaseName
	if baseName == "" {
		baseName = strings.TrimSuffix(filepath.Base(logPath), filepath.Ext(logPath))
	}

	hash, err := binindex.ContentHash(logPath)
	if err != nil {
		return nil, err
	}
	contentHash := fmt.Sprintf("%016x", hash)
	span.SetAttributes(
		attribute.String("log.path", logPath),
		attribute.String("log.content_hash", contentHash),
	)

	if !req.Force {
		previous, err := s.db.Runs.FindCompletedRunForSource(ctx, contentHash)
		if err != nil {
			return nil, err
		}
		if previous != nil {
			s.logger.Info("skipping export: run %s already covers content %s", previous.RunUUID, contentHash)
			return &RunReport{Skipped: true, PreviousRun: previous.RunUUID}, nil
		}
	}

	info, err := os.Stat(logPath)
	if err != nil {
		return nil, errors.Wrap(errors.CodeIOError, "failed to stat log file "+logPath, err)
	}

	run := &model.ExportRun{
		RunUUID:     uuid.NewString(),
		SourcePath:  logPath,
		ContentHash: contentHash,
		FileSize:    info.Size(),
		Status:      model.RunStatusRunning,
	}
	if err := s.db.Runs.CreateRun(ctx, run); err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("run.uuid", run.RunUUID))

	stats, err := s.exporter.Export(ctx, logPath, baseName, types)
	if err != nil {
		if failErr := s.db.Runs.FailRun(ctx, run.RunUUID, err.Error()); failErr != nil {
			s.logger.Warn("failed to record run failure for %s: %v", run.RunUUID, failErr)
		}
		return nil, err
	}

	run.Strategy = stats.StrategyName
	run.TotalRecords = stats.RecordsProcessed
	run.TypeCounts = stats.TypeCounts()
	run.DurationMs = stats.TotalDuration.Milliseconds()
	if err := s.db.Runs.CompleteRun(ctx, run.RunUUID, run); err != nil {
		return nil, err
	}

	report := &RunReport{RunUUID: run.RunUUID, Stats: stats}
	if req.Publish {
		paths := make([]string, 0, len(stats.PerType))
		for _, ts := range stats.PerType {
			paths = append(paths, ts.OutputPath)
		}
		keys, err := storage.PublishExports(ctx, s.storage, run.RunUUID, paths)
		if err != nil {
			return report, err
		}
		report.PublishedKeys = keys
		s.logger.Info("published %d view files for run %s", len(keys), run.RunUUID)
	}
	return report, nil
}

// resolveSource returns a local path to the log, downloading it from
// storage when the request names a key.
func (s *ExportService) resolveSource(ctx context.Context, req *RunRequest) (string, func(), error) {
	switch {
	case req.SourcePath != "" && req.SourceKey != "":
		return "", nil, errors.New(errors.CodeInvalidInput, "source path and source key are mutually exclusive")
	case req.SourcePath != "":
		return req.SourcePath, nil, nil
	case req.SourceKey != "":
		dir, err := os.MkdirTemp("", "alloctrace-fetch-")
		if err != nil {
			return "", nil, errors.Wrap(errors.CodeIOError, "failed to create staging directory", err)
		}
		local := filepath.Join(dir, filepath.Base(req.SourceKey))
		if err := s.storage.DownloadFile(ctx, req.SourceKey, local); err != nil {
			os.RemoveAll(dir)
			return "", nil, err
		}
		return local, func() { os.RemoveAll(dir) }, nil
	default:
		return "", nil, errors.New(errors.CodeInvalidInput, "either a source path or a source key is required")
	}
}

func parseTypes(names []string) ([]export.JsonType, error) {
	if len(names) == 0 {
		return nil, nil
	}
	types := make([]export.JsonType, 0, len(names))
	for _, name := range names {
		t, err := export.ParseJsonType(name)
		if err != nil {
			return nil, err
		}
		types = append(types, t)
	}
	return types, nil
}
