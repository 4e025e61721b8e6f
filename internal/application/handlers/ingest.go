package handlers

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/ersonp/lore-state/internal/domain/services"
)

// IngestHandler feeds narrative files through the extraction pipeline.
type IngestHandler struct {
	pipeline    *services.ExtractionPipeline
	reader      *services.Reader
	segmentSize int
	logger      *zap.Logger
}

// NewIngestHandler creates a new ingest handler. A segmentSize below 1 uses
// services.DefaultSegmentSize.
func NewIngestHandler(pipeline *services.ExtractionPipeline, reader *services.Reader, segmentSize int, logger *zap.Logger) *IngestHandler {
	if segmentSize < 1 {
		segmentSize = services.DefaultSegmentSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IngestHandler{
		pipeline:    pipeline,
		reader:      reader,
		segmentSize: segmentSize,
		logger:      logger,
	}
}

// IngestOptions controls ingestion behavior.
type IngestOptions struct {
	// Cycle of the first segment. Zero uses the game's current cycle.
	Cycle int
	// Advance gives every segment after the first its own cycle.
	Advance bool
	// Hints select the extraction subtasks. The zero value runs only the
	// summary subtask.
	Hints       services.Hints
	LocationRef string
	// DryRun extracts without applying anything.
	DryRun bool
}

// SegmentResult is the outcome of one segment.
type SegmentResult struct {
	Index  int                      `json:"index"`
	Cycle  int                      `json:"cycle"`
	Result *services.PipelineResult `json:"result,omitempty"`
	Err    error                    `json:"-"`
}

// IngestResult contains the result of ingesting one file.
type IngestResult struct {
	FilePath    string              `json:"file_path"`
	Segments    []*SegmentResult    `json:"segments"`
	Stats       services.ApplyStats `json:"stats"`
	ItemErrors  int                 `json:"item_errors"`
	FailedTasks int                 `json:"failed_subtasks"`
	LastCycle   int                 `json:"last_cycle"`
}

// Failed returns the segments that could not be extracted or applied.
func (r *IngestResult) Failed() []*SegmentResult {
	var failed []*SegmentResult
	for _, s := range r.Segments {
		if s.Err != nil {
			failed = append(failed, s)
		}
	}
	return failed
}

// IngestBatchResult contains the result of batch ingestion.
type IngestBatchResult struct {
	TotalFiles    int
	TotalSegments int
	FileResults   []*IngestResult
	Errors        []error
}

// HandleWithOptions splits a file into segments and ingests them in order.
// A failing segment is recorded and the next one still runs. progressFn, if
// not nil, is called before each segment.
func (h *IngestHandler) HandleWithOptions(ctx context.Context, gameID, filePath string, opts IngestOptions, progressFn func(index int)) (*IngestResult, error) {
	absPath, err := filepath.Abs(filePath)
	if err != nil {
		return nil, fmt.Errorf("resolving path: %w", err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("accessing file: %w", err)
	}

	if info.IsDir() {
		return nil, fmt.Errorf("path is a directory, not a file: %s", absPath)
	}

	cycle := opts.Cycle
	if cycle == 0 {
		game, err := h.reader.Game(ctx, gameID)
		if err != nil {
			return nil, err
		}
		cycle = max(game.CurrentCycle, 1)
	}

	file, err := os.Open(absPath)
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	defer file.Close()

	result := &IngestResult{FilePath: absPath}
	index := 0
	err = services.ScanSegments(file, h.segmentSize, func(segment string) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if progressFn != nil {
			progressFn(index)
		}

		seg := h.ingestSegment(ctx, gameID, segment, cycle, opts)
		seg.Index = index
		result.add(seg)

		index++
		if opts.Advance {
			cycle++
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", absPath, err)
	}

	if len(result.Segments) == 0 {
		return nil, fmt.Errorf("no narrative text in %s", absPath)
	}
	return result, nil
}

func (h *IngestHandler) ingestSegment(ctx context.Context, gameID, text string, cycle int, opts IngestOptions) *SegmentResult {
	in := &services.PipelineInput{
		GameID:      gameID,
		Narrative:   text,
		Hints:       opts.Hints,
		Cycle:       cycle,
		LocationRef: opts.LocationRef,
	}

	var (
		res *services.PipelineResult
		err error
	)
	if opts.DryRun {
		res, err = h.pipeline.Extract(ctx, in)
	} else {
		res, err = h.pipeline.Ingest(ctx, in)
	}
	if err != nil {
		h.logger.Warn("segment not ingested",
			zap.String("game_id", gameID),
			zap.Int("cycle", cycle),
			zap.Error(err))
	}
	return &SegmentResult{Cycle: cycle, Result: res, Err: err}
}

func (r *IngestResult) add(seg *SegmentResult) {
	r.Segments = append(r.Segments, seg)
	r.LastCycle = seg.Cycle
	if seg.Result == nil {
		return
	}
	r.FailedTasks += len(seg.Result.Errors)
	if applied := seg.Result.Applied; applied != nil {
		r.Stats.Add(&applied.Stats)
		r.ItemErrors += len(applied.Errors)
	}
}

// HandleDirectory ingests all matching files in a directory, in lexical
// order, continuing the cycle count from one file to the next.
func (h *IngestHandler) HandleDirectory(ctx context.Context, gameID, dirPath, pattern string, recursive bool, opts IngestOptions, progressFn func(file string)) (*IngestBatchResult, error) {
	absPath, err := filepath.Abs(dirPath)
	if err != nil {
		return nil, fmt.Errorf("resolving path: %w", err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("accessing path: %w", err)
	}

	if !info.IsDir() {
		return nil, fmt.Errorf("path is not a directory: %s", absPath)
	}

	files, err := h.findFiles(absPath, pattern, recursive)
	if err != nil {
		return nil, fmt.Errorf("finding files: %w", err)
	}

	if len(files) == 0 {
		return nil, fmt.Errorf("no files matching pattern %q found in %s", pattern, absPath)
	}

	result := &IngestBatchResult{
		FileResults: make([]*IngestResult, 0, len(files)),
	}

	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if progressFn != nil {
			progressFn(file)
		}

		fileResult, err := h.HandleWithOptions(ctx, gameID, file, opts, nil)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Errorf("%s: %w", file, err))
			continue
		}

		result.FileResults = append(result.FileResults, fileResult)
		result.TotalFiles++
		result.TotalSegments += len(fileResult.Segments)
		if opts.Advance && fileResult.LastCycle > 0 {
			opts.Cycle = fileResult.LastCycle + 1
		}
	}

	return result, nil
}

// findFiles finds all files matching the pattern in the directory.
func (h *IngestHandler) findFiles(dirPath string, pattern string, recursive bool) ([]string, error) {
	if _, err := filepath.Match(pattern, ""); err != nil {
		return nil, err
	}

	var files []string

	walkFn := func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if info.IsDir() {
			if !recursive && path != dirPath {
				return filepath.SkipDir
			}
			return nil
		}

		matched, err := filepath.Match(pattern, info.Name())
		if err != nil {
			return err
		}

		if matched {
			files = append(files, path)
		}

		return nil
	}

	if err := filepath.Walk(dirPath, walkFn); err != nil {
		return nil, err
	}

	return files, nil
}

// IsDirectory checks if the given path is a directory.
func IsDirectory(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}

// IsGlobPattern checks if the path contains glob characters.
func IsGlobPattern(path string) bool {
	return strings.ContainsAny(path, "*?[")
}

// ErrNothingIngested is returned when every segment of a file failed.
var ErrNothingIngested = errors.New("no segment could be ingested")

// Err returns ErrNothingIngested when every segment failed, joined with the
// segment errors.
func (r *IngestResult) Err() error {
	failed := r.Failed()
	if len(failed) == 0 || len(failed) < len(r.Segments) {
		return nil
	}
	errs := []error{ErrNothingIngested}
	for _, s := range failed {
		errs = append(errs, fmt.Errorf("segment %d: %w", s.Index, s.Err))
	}
	return errors.Join(errs...)
}
