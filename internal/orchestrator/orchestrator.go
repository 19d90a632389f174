// Package orchestrator resolves execute requests to entity snapshots, runs
// the target submodule with a buffered per-run logger, and persists the
// result envelope plus its approval rows.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/entityscope/urlcurator/internal/curation"
	"github.com/entityscope/urlcurator/internal/events"
	"github.com/entityscope/urlcurator/internal/metrics"
	"github.com/entityscope/urlcurator/internal/snapshot"
	"github.com/entityscope/urlcurator/internal/store"
	"github.com/entityscope/urlcurator/internal/submodule"
)

// Input-shape errors surfaced to the HTTP boundary as client failures.
var (
	ErrUnknownSubmodule = errors.New("unknown submodule")
	ErrAmbiguousInput   = errors.New("request must supply exactly one input mode")
	ErrNoEntities       = errors.New("no entities resolvable from request")
)

// ExecuteRequest is one submodule invocation.
type ExecuteRequest struct {
	SubmoduleType string
	SubmoduleName string

	// Mode (a): Entities plus ProjectID creates a run and snapshots.
	// Mode (b): Entities alone runs in preview, persisting nothing.
	// Mode (c): RunID plus EntityIDs loads stored snapshots.
	Entities  []curation.Entity
	ProjectID string
	RunID     string
	EntityIDs []string

	// URLs feeds validation submodules directly; when absent the candidate
	// set of RunID is loaded from the store.
	URLs []curation.URLCandidate

	Config map[string]any
}

// ExecuteResponse reports the outcome of one invocation.
type ExecuteResponse struct {
	SubmoduleRun curation.SubmoduleRun `json:"submodule_run"`
	Preview      bool                  `json:"preview"`
	RunID        string                `json:"run_id,omitempty"`
	EntityIDs    []string              `json:"entity_ids,omitempty"`
}

// Orchestrator wires the registry, store, fetch engine, and event channel
// behind a single Execute entrypoint.
type Orchestrator struct {
	registry  *submodule.Registry
	store     store.Store
	fetcher   curation.Fetcher
	archiver  *snapshot.Archiver
	publisher events.Publisher
	topic     string
	clock     curation.Clock
	ids       curation.IDGenerator
	logger    *zap.Logger
}

// New builds an Orchestrator. publisher and archiver may be nil.
func New(
	registry *submodule.Registry,
	st store.Store,
	fetcher curation.Fetcher,
	archiver *snapshot.Archiver,
	publisher events.Publisher,
	topic string,
	clock curation.Clock,
	ids curation.IDGenerator,
	logger *zap.Logger,
) *Orchestrator {
	return &Orchestrator{
		registry:  registry,
		store:     st,
		fetcher:   fetcher,
		archiver:  archiver,
		publisher: publisher,
		topic:     topic,
		clock:     clock,
		ids:       ids,
		logger:    logger,
	}
}

// Execute resolves the request's entities, runs the submodule, and persists
// the outcome unless the request is a preview. A panicking or erroring
// submodule produces a failed run record, never an unhandled error.
func (o *Orchestrator) Execute(ctx context.Context, req ExecuteRequest) (ExecuteResponse, error) {
	entities, runID, preview, err := o.resolveEntities(ctx, req)
	if err != nil {
		return ExecuteResponse{}, err
	}

	submoduleRunID, err := o.ids.NewID()
	if err != nil {
		return ExecuteResponse{}, fmt.Errorf("generate run id: %w", err)
	}

	runLogger := curation.NewRunLogger(o.logger.With(
		zap.String("submodule_run_id", submoduleRunID),
		zap.String("submodule", req.SubmoduleType+"/"+req.SubmoduleName),
	))
	wrappedFetcher := snapshot.WrapFetcher(o.fetcher, o.archiver, submoduleRunID)
	mctx := submodule.Context{
		Logger:  runLogger,
		Store:   o.store,
		Fetcher: wrappedFetcher,
	}

	rec := curation.SubmoduleRun{
		ID:            submoduleRunID,
		RunID:         runID,
		SubmoduleType: req.SubmoduleType,
		SubmoduleName: req.SubmoduleName,
		EntityIDs:     entityIDs(entities),
		Config:        req.Config,
		Status:        curation.RunStatusRunning,
		CreatedAt:     o.clock.Now(),
	}
	o.emit(ctx, rec, events.KindSubmoduleStart, 0)

	started := time.Now()
	envelope, execErr := o.invoke(ctx, req, entities, mctx)
	rec.DurationMS = time.Since(started).Milliseconds()
	rec.Logs = runLogger.Lines()

	if execErr != nil {
		if errors.Is(execErr, ErrUnknownSubmodule) {
			return ExecuteResponse{}, execErr
		}
		rec.Status = curation.RunStatusFailed
		rec.Error = execErr.Error()
	} else {
		rec.Status = curation.RunStatusCompleted
		rec.Results = envelope
		rec.ResultCount = len(envelope.Items)
		if sf, ok := wrappedFetcher.(*snapshot.Fetcher); ok {
			if uris := sf.Archived(); len(uris) > 0 {
				if rec.Results.Metadata == nil {
					rec.Results.Metadata = map[string]any{}
				}
				rec.Results.Metadata["snapshots"] = uris
			}
		}
	}

	metrics.ObserveSubmoduleRun(req.SubmoduleType, req.SubmoduleName, string(rec.Status), time.Since(started))
	if req.SubmoduleType == string(submodule.TypeDiscovery) {
		metrics.ObserveDiscoveredURLs(req.SubmoduleName, rec.ResultCount)
	}

	if !preview {
		if err := o.persist(ctx, &rec); err != nil {
			return ExecuteResponse{}, err
		}
	}

	o.emit(ctx, rec, events.KindSubmoduleComplete, rec.ResultCount)
	return ExecuteResponse{
		SubmoduleRun: rec,
		Preview:      preview,
		RunID:        runID,
		EntityIDs:    entityIDs(entities),
	}, nil
}

// resolveEntities applies the three input modes in priority order and
// rejects requests matching none (or an ambiguous mix).
func (o *Orchestrator) resolveEntities(ctx context.Context, req ExecuteRequest) ([]curation.Entity, string, bool, error) {
	hasEntities := len(req.Entities) > 0
	hasProject := req.ProjectID != ""
	hasRun := req.RunID != ""

	switch {
	case hasEntities && hasProject && !hasRun:
		runID, err := o.ids.NewID()
		if err != nil {
			return nil, "", false, fmt.Errorf("generate run id: %w", err)
		}
		entities := make([]curation.Entity, len(req.Entities))
		copy(entities, req.Entities)
		for i := range entities {
			if entities[i].ID == "" {
				id, err := o.ids.NewID()
				if err != nil {
					return nil, "", false, fmt.Errorf("generate entity id: %w", err)
				}
				entities[i].ID = id
			}
		}
		run := curation.Run{ID: runID, ProjectID: req.ProjectID, CreatedAt: o.clock.Now()}
		if err := o.store.CreateRun(ctx, run); err != nil {
			return nil, "", false, fmt.Errorf("create run: %w", err)
		}
		if err := o.store.CreateEntities(ctx, runID, entities); err != nil {
			return nil, "", false, fmt.Errorf("create entity snapshots: %w", err)
		}
		return entities, runID, false, nil

	case hasEntities && !hasProject && !hasRun:
		entities := make([]curation.Entity, len(req.Entities))
		copy(entities, req.Entities)
		for i := range entities {
			if entities[i].ID == "" {
				id, err := o.ids.NewID()
				if err != nil {
					return nil, "", false, fmt.Errorf("generate entity id: %w", err)
				}
				entities[i].ID = id
			}
		}
		return entities, "", true, nil

	case !hasEntities && hasRun:
		entities, err := o.store.GetEntities(ctx, req.RunID, req.EntityIDs)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrRelationMissing) {
				return nil, "", false, fmt.Errorf("%w: run %s has no matching entities", ErrNoEntities, req.RunID)
			}
			return nil, "", false, fmt.Errorf("load entity snapshots: %w", err)
		}
		return entities, req.RunID, false, nil

	case hasEntities && hasRun:
		return nil, "", false, ErrAmbiguousInput

	default:
		return nil, "", false, ErrNoEntities
	}
}

// invoke dispatches to the discovery or validation module, converting a
// panic inside execute into an error.
func (o *Orchestrator) invoke(ctx context.Context, req ExecuteRequest, entities []curation.Entity, mctx submodule.Context) (envelope curation.Envelope, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("submodule panicked: %v", r)
			o.logger.Error("submodule panic",
				zap.String("submodule", req.SubmoduleType+"/"+req.SubmoduleName),
				zap.Any("panic", r),
			)
		}
	}()

	switch submodule.Type(req.SubmoduleType) {
	case submodule.TypeDiscovery:
		mod := o.registry.LoadDiscovery(req.SubmoduleName)
		if mod == nil {
			return curation.Envelope{}, fmt.Errorf("%w: discovery/%s", ErrUnknownSubmodule, req.SubmoduleName)
		}
		result, execErr := mod.Execute(ctx, entities, req.Config, mctx)
		if execErr != nil {
			return curation.Envelope{}, execErr
		}
		return curation.Envelope{Items: result.Candidates, Errors: result.Errors}, nil

	case submodule.TypeValidation:
		mod := o.registry.LoadValidation(req.SubmoduleName)
		if mod == nil {
			return curation.Envelope{}, fmt.Errorf("%w: validation/%s", ErrUnknownSubmodule, req.SubmoduleName)
		}
		urls := req.URLs
		if len(urls) == 0 && req.RunID != "" {
			var loadErr error
			urls, loadErr = o.store.ListCandidateURLs(ctx, req.RunID)
			if loadErr != nil {
				return curation.Envelope{}, fmt.Errorf("load candidate urls: %w", loadErr)
			}
		}
		result, execErr := mod.Execute(ctx, urls, req.Config, mctx)
		if execErr != nil {
			return curation.Envelope{}, execErr
		}
		stats := result.Stats
		return curation.Envelope{Items: result.Valid, Invalid: result.Invalid, Stats: &stats}, nil

	default:
		return curation.Envelope{}, fmt.Errorf("%w: type %s", ErrUnknownSubmodule, req.SubmoduleType)
	}
}

// persist writes the run record and one pending approval row per flattened
// result. A missing approvals relation degrades to a structured warning.
func (o *Orchestrator) persist(ctx context.Context, rec *curation.SubmoduleRun) error {
	if err := o.store.CreateSubmoduleRun(ctx, *rec); err != nil {
		return fmt.Errorf("persist submodule run: %w", err)
	}
	if rec.Status != curation.RunStatusCompleted || len(rec.Results.Items) == 0 {
		return nil
	}

	rows := make([]curation.ResultApproval, 0, len(rec.Results.Items))
	for i, item := range rec.Results.Items {
		rows = append(rows, curation.ResultApproval{
			SubmoduleRunID: rec.ID,
			ResultIndex:    i,
			ResultURL:      item.URL,
			ResultEntityID: item.EntityID,
			Status:         curation.ApprovalPending,
		})
	}
	if err := o.store.CreateApprovals(ctx, rows); err != nil {
		if errors.Is(err, store.ErrRelationMissing) {
			o.logger.Warn("approvals relation missing, run stored without approval rows",
				zap.String("submodule_run_id", rec.ID),
			)
			return nil
		}
		return fmt.Errorf("create approval rows: %w", err)
	}
	return nil
}

// emit publishes a lifecycle event; failures are logged and swallowed.
func (o *Orchestrator) emit(ctx context.Context, rec curation.SubmoduleRun, kind string, count int) {
	if o.publisher == nil || o.topic == "" {
		return
	}
	event := events.Event{
		Kind:           kind,
		SubmoduleRunID: rec.ID,
		RunID:          rec.RunID,
		SubmoduleType:  rec.SubmoduleType,
		SubmoduleName:  rec.SubmoduleName,
		Status:         string(rec.Status),
		ResultCount:    count,
		OccurredAt:     o.clock.Now(),
	}
	if _, err := o.publisher.Publish(ctx, o.topic, event); err != nil {
		o.logger.Warn("lifecycle event publish failed",
			zap.String("kind", kind),
			zap.String("submodule_run_id", rec.ID),
			zap.Error(err),
		)
	}
}

func entityIDs(entities []curation.Entity) []string {
	ids := make([]string, 0, len(entities))
	for _, e := range entities {
		ids = append(ids, e.ID)
	}
	return ids
}
