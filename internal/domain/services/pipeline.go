package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ersonp/lore-state/internal/domain/entities"
	"github.com/ersonp/lore-state/internal/domain/ports"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultMaxConcurrency bounds the subtasks running at once in a phase.
	DefaultMaxConcurrency = 4

	fallbackSummaryLength = 200
)

// Hints tell the pipeline which kinds of change a segment likely contains.
type Hints struct {
	EntityMentions     bool `json:"entity_mentions"`
	RelationshipChange bool `json:"relationship_change"`
	StateChange        bool `json:"state_change"`
	CommitmentProgress bool `json:"commitment_progress"`
	EventScheduling    bool `json:"event_scheduling"`
}

// Any reports whether any hint is set.
func (h Hints) Any() bool {
	return h.EntityMentions || h.RelationshipChange || h.StateChange ||
		h.CommitmentProgress || h.EventScheduling
}

// AllHints enables every subtask.
func AllHints() Hints {
	return Hints{
		EntityMentions:     true,
		RelationshipChange: true,
		StateChange:        true,
		CommitmentProgress: true,
		EventScheduling:    true,
	}
}

// PipelineInput is one narrative segment and the scene it happens in.
type PipelineInput struct {
	GameID      string
	Narrative   string
	Hints       Hints
	Cycle       int
	LocationRef string
	NPCsPresent []string
	// KnownEntities is loaded from the store when nil.
	KnownEntities []string
}

// SubtaskError records a subtask that failed and was left out of the merge.
type SubtaskError struct {
	Subtask Subtask `json:"subtask"`
	Phase   int     `json:"phase"`
	Err     error   `json:"-"`
}

func (e *SubtaskError) Error() string {
	return fmt.Sprintf("phase %d %s: %v", e.Phase, e.Subtask, e.Err)
}

func (e *SubtaskError) Unwrap() error {
	return e.Err
}

// PipelineResult is the merged payload and what went wrong producing it.
type PipelineResult struct {
	Payload  entities.ExtractionPayload `json:"payload"`
	Errors   []*SubtaskError            `json:"errors,omitempty"`
	FastPath bool                       `json:"fast_path"`
	// Applied is set by Ingest.
	Applied *ApplyResult `json:"applied,omitempty"`
}

// ExtractionPipeline turns narrative text into an extraction payload by
// running independent extractor subtasks in two phases and merging their
// partial results.
type ExtractionPipeline struct {
	llm            ports.TextGenerator
	reader         *Reader
	populator      *Populator
	maxConcurrency int
	logger         *zap.Logger
}

// NewExtractionPipeline creates a new ExtractionPipeline. populator may be nil
// when only Extract is used.
func NewExtractionPipeline(llm ports.TextGenerator, reader *Reader, populator *Populator, maxConcurrency int, logger *zap.Logger) *ExtractionPipeline {
	if maxConcurrency < 1 {
		maxConcurrency = DefaultMaxConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExtractionPipeline{
		llm:            llm,
		reader:         reader,
		populator:      populator,
		maxConcurrency: maxConcurrency,
		logger:         logger,
	}
}

// Extract runs the subtasks over one segment and returns the merged payload.
// A failing subtask is logged and excluded; Extract fails only when the
// segment is empty, the known entities cannot be loaded, or every subtask
// failed.
func (p *ExtractionPipeline) Extract(ctx context.Context, in *PipelineInput) (*PipelineResult, error) {
	if strings.TrimSpace(in.Narrative) == "" {
		return nil, errors.New("narrative is empty")
	}
	known := in.KnownEntities
	if known == nil && p.reader != nil && in.GameID != "" {
		names, err := p.reader.KnownEntityNames(ctx, in.GameID)
		if err != nil {
			return nil, err
		}
		known = names
	}

	result := &PipelineResult{}
	var parts []Partial
	ran := 0

	if !in.Hints.Any() {
		result.FastPath = true
		got, errs := p.runPhase(ctx, 1, []Subtask{SubtaskSummary}, in, known, nil)
		parts = append(parts, got...)
		result.Errors = append(result.Errors, errs...)
		ran = 1
	} else {
		phase1 := phaseOneTasks(in.Hints)
		got, errs := p.runPhase(ctx, 1, phase1, in, known, nil)
		parts = append(parts, got...)
		result.Errors = append(result.Errors, errs...)

		interim := Merge(entities.ExtractionPayload{}, got...)
		enriched := enrichKnown(known, interim)
		objects := objectHints(enriched, interim)

		phase2 := phaseTwoTasks(in.Hints, len(objects) > 0)
		got, errs = p.runPhase(ctx, 2, phase2, in, enriched, objects)
		parts = append(parts, got...)
		result.Errors = append(result.Errors, errs...)
		ran = len(phase1) + len(phase2)
	}

	if len(result.Errors) == ran {
		errs := make([]error, len(result.Errors))
		for i, e := range result.Errors {
			errs[i] = e
		}
		return nil, fmt.Errorf("every extraction subtask failed: %w", errors.Join(errs...))
	}

	payload := Merge(entities.ExtractionPayload{}, parts...)
	if payload.CurrentLocationRef == "" {
		payload.CurrentLocationRef = in.LocationRef
	}
	if len(payload.KeyNPCsPresent) == 0 {
		payload.KeyNPCsPresent = in.NPCsPresent
	}
	if strings.TrimSpace(payload.SegmentSummary) == "" {
		payload.SegmentSummary = Truncate(strings.TrimSpace(in.Narrative), fallbackSummaryLength)
	}
	payload.StampCycle(in.Cycle)
	result.Payload = payload

	p.logger.Info("extraction finished",
		zap.String("game_id", in.GameID),
		zap.Int("cycle", in.Cycle),
		zap.Bool("fast_path", result.FastPath),
		zap.Int("subtasks", ran),
		zap.Int("failed", len(result.Errors)),
		zap.Int("facts", len(payload.Facts)),
		zap.Int("entities_created", len(payload.EntitiesCreated)))
	return result, nil
}

// Ingest extracts a segment and applies the payload to the game. A zero
// cycle uses the game's current cycle.
func (p *ExtractionPipeline) Ingest(ctx context.Context, in *PipelineInput) (*PipelineResult, error) {
	if p.populator == nil {
		return nil, errors.New("ingest requires a populator")
	}
	if in.Cycle == 0 {
		if p.reader == nil {
			return nil, fmt.Errorf("%w: no cycle given", entities.ErrInvalidCycle)
		}
		game, err := p.reader.Game(ctx, in.GameID)
		if err != nil {
			return nil, err
		}
		in.Cycle = max(game.CurrentCycle, worldCycle)
	}

	result, err := p.Extract(ctx, in)
	if err != nil {
		return nil, err
	}
	applied, err := p.populator.ApplyExtraction(ctx, in.GameID, &result.Payload)
	if err != nil {
		return nil, fmt.Errorf("applying extraction: %w", err)
	}
	result.Applied = applied
	return result, nil
}

func phaseOneTasks(h Hints) []Subtask {
	tasks := []Subtask{SubtaskSummary}
	if h.StateChange {
		tasks = append(tasks, SubtaskProtagonistState)
	}
	if h.EntityMentions {
		tasks = append(tasks, SubtaskEntities)
	}
	return tasks
}

func phaseTwoTasks(h Hints, objects bool) []Subtask {
	var tasks []Subtask
	if objects {
		tasks = append(tasks, SubtaskObjects)
	}
	tasks = append(tasks, SubtaskFacts)
	if h.RelationshipChange || h.EntityMentions {
		tasks = append(tasks, SubtaskRelations)
	}
	if h.CommitmentProgress || h.EventScheduling {
		tasks = append(tasks, SubtaskCommitments)
	}
	return tasks
}

// runPhase runs the tasks concurrently and waits for all of them. Results
// come back in task order; failed tasks are reported, never propagated.
func (p *ExtractionPipeline) runPhase(ctx context.Context, phase int, tasks []Subtask, in *PipelineInput, known, objects []string) ([]Partial, []*SubtaskError) {
	parts := make([]Partial, len(tasks))
	errs := make([]error, len(tasks))

	var g errgroup.Group
	g.SetLimit(p.maxConcurrency)
	for i, task := range tasks {
		g.Go(func() error {
			parts[i], errs[i] = p.runSubtask(ctx, task, in, known, objects)
			return nil
		})
	}
	_ = g.Wait()

	var (
		ok     []Partial
		failed []*SubtaskError
	)
	for i, task := range tasks {
		if errs[i] != nil {
			p.logger.Warn("extraction subtask failed",
				zap.String("game_id", in.GameID),
				zap.Int("cycle", in.Cycle),
				zap.Int("phase", phase),
				zap.String("subtask", string(task)),
				zap.Error(errs[i]))
			failed = append(failed, &SubtaskError{Subtask: task, Phase: phase, Err: errs[i]})
			continue
		}
		ok = append(ok, parts[i])
	}
	return ok, failed
}

func (p *ExtractionPipeline) runSubtask(ctx context.Context, task Subtask, in *PipelineInput, known, objects []string) (Partial, error) {
	raw, err := p.llm.Generate(ctx, subtaskRequest(task, in, known, objects))
	if err != nil {
		return nil, fmt.Errorf("generating: %w", err)
	}
	return DecodePartial(task, raw)
}

// enrichKnown adds the names of entities created in phase 1 to the known
// list, keeping it free of duplicates.
func enrichKnown(known []string, interim entities.ExtractionPayload) []string {
	seen := make(map[string]bool, len(known))
	out := make([]string, 0, len(known)+len(interim.EntitiesCreated))
	add := func(name string) {
		key := entities.NormalizeName(name)
		if key == "" || seen[key] {
			return
		}
		seen[key] = true
		out = append(out, strings.TrimSpace(name))
	}
	for _, name := range known {
		add(name)
	}
	for _, e := range interim.EntitiesCreated {
		add(e.Name)
	}
	for _, c := range interim.InventoryChanges {
		if c.NewObject != nil {
			add(c.NewObject.Name)
		}
	}
	return out
}

// objectHints returns the objects acquired in phase 1 that nothing describes
// yet: acquisitions of an unknown object_ref without a new_object.
func objectHints(known []string, interim entities.ExtractionPayload) []string {
	seen := make(map[string]bool, len(known))
	for _, name := range known {
		seen[entities.NormalizeName(name)] = true
	}
	var out []string
	for _, c := range interim.InventoryChanges {
		if entities.InventoryAction(strings.ToLower(c.Action)) != entities.InventoryAcquire || c.NewObject != nil {
			continue
		}
		key := entities.NormalizeName(c.ObjectRef)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, strings.TrimSpace(c.ObjectRef))
	}
	return out
}
