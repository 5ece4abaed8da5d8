// Package pipeline implements the Pipeline Controller: the per-email
// state machine (FETCHED -> ... -> VALIDATED), bounded concurrency via
// a worker pool of size W, cancellation, and the daemon loop (spec
// §4.10). Grounded on the teacher's internal/pool/goroutine_pool.go
// for bounded concurrency and cmd/agentflow/main.go's daemon-loop
// shape.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/limmutable/collabiq/internal/classify"
	"github.com/limmutable/collabiq/internal/ctxkeys"
	"github.com/limmutable/collabiq/internal/dlq"
	"github.com/limmutable/collabiq/internal/linker"
	"github.com/limmutable/collabiq/internal/normalize"
	"github.com/limmutable/collabiq/internal/orchestrator"
	"github.com/limmutable/collabiq/internal/persistence"
	"github.com/limmutable/collabiq/internal/ports"
	"github.com/limmutable/collabiq/internal/types"
	"github.com/limmutable/collabiq/internal/xerrors"
)

// Config configures one Controller.
type Config struct {
	Workers     int    // W, default 4
	QueueSize   int
	DataRoot    string
	DatabaseID  string // KB database id
	GroupQuery  string // mail source filter string
	FetchLimit  int
	OnDuplicate ports.OnDuplicate
}

// DefaultConfig returns spec §4.10's small default worker count.
func DefaultConfig() Config {
	return Config{Workers: 4, QueueSize: 64, FetchLimit: 50, OnDuplicate: ports.OnDuplicateUpdate}
}

// Controller runs the per-email pipeline.
type Controller struct {
	cfg    Config
	logger *zap.Logger

	mail    ports.MailSource
	kb      ports.KnowledgeBase
	orch    *orchestrator.Orchestrator
	linker  *linker.Linker
	classifier *classify.Classifier
	dlq     *dlq.Store

	mu      sync.Mutex
	halted  bool
}

// New constructs a Controller.
func New(cfg Config, mail ports.MailSource, kb ports.KnowledgeBase, orch *orchestrator.Orchestrator, l *linker.Linker, c *classify.Classifier, d *dlq.Store, logger *zap.Logger) *Controller {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	return &Controller{cfg: cfg, logger: logger, mail: mail, kb: kb, orch: orch, linker: l, classifier: c, dlq: d}
}

// RunOnce fetches up to cfg.FetchLimit new messages, processes them
// through the bounded worker pool, and returns the finalized
// RunRecord. A Critical failure during processing halts the cycle
// (controller.halted=true): no further messages are submitted to the
// pool (ones already queued still run) and the run is finalized with
// status fatal, but RunOnce itself still returns normally; the daemon
// loop checks Halted() before scheduling the next cycle.
func (c *Controller) RunOnce(ctx context.Context) (*types.RunRecord, error) {
	run := &types.RunRecord{RunID: runID(), StartedAt: time.Now(), Status: types.RunRunning}

	messages, err := c.mail.ListNew(ctx, c.cfg.GroupQuery, c.cfg.FetchLimit)
	if err != nil {
		run.Status = types.RunFatal
		run.Errors = append(run.Errors, types.ErrorRecord{
			Stage: "fetch", Severity: xerrors.SeverityFor(xerrors.ClassOf(err), "fetch"),
			Message: err.Error(), OccurredAt: time.Now(),
		})
		c.finalize(run)
		return run, err
	}
	run.Counters.Received = len(messages)

	pool := newWorkerPool(c.cfg.Workers, c.cfg.QueueSize, c.logger)
	var mu sync.Mutex

	for _, raw := range messages {
		if c.Halted() {
			break
		}
		raw := raw
		emailCtx := ctxkeys.WithRunID(ctxkeys.WithEmailID(ctx, raw.ID), run.RunID)
		submitErr := pool.Submit(emailCtx, func(ctx context.Context) {
			outcome := c.processEmail(ctx, raw)
			mu.Lock()
			applyOutcome(run, outcome)
			mu.Unlock()
		})
		if submitErr != nil {
			mu.Lock()
			run.Counters.Failed++
			mu.Unlock()
		}
	}

	pool.CloseAndWait()
	if c.Halted() {
		run.Status = types.RunFatal
	}
	c.finalize(run)
	return run, nil
}

// RunDaemon wakes every interval, runs one cycle, and repeats until
// ctx is cancelled or the controller halts on a Critical failure. It
// never returns an error on halt; callers inspect Halted().
func (c *Controller) RunDaemon(ctx context.Context, interval time.Duration) {
	for {
		if c.Halted() {
			c.logger.Error("daemon halted after critical failure; not fetching further messages")
			return
		}
		if _, err := c.RunOnce(ctx); err != nil {
			c.logger.Error("run cycle failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
	}
}

// Halted reports whether a Critical failure has stopped new fetches.
func (c *Controller) Halted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.halted
}

func (c *Controller) halt() {
	c.mu.Lock()
	c.halted = true
	c.mu.Unlock()
}

type outcome struct {
	state    types.EmailState
	errRec   *types.ErrorRecord
}

func applyOutcome(run *types.RunRecord, o outcome) {
	switch o.state {
	case types.StateValidated:
		run.Counters.Processed++
	case types.StateSkipped:
		run.Counters.Skipped++
	default:
		run.Counters.Failed++
	}
	if o.errRec != nil {
		run.Errors = append(run.Errors, *o.errRec)
	}
}

// ProcessOne runs a single RawMessage through the full state machine,
// returning its terminal EmailState. Used by the `email process` and
// `errors retry` CLI commands to exercise one message outside of a
// full RunOnce cycle.
func (c *Controller) ProcessOne(ctx context.Context, raw types.RawMessage) (types.EmailState, error) {
	o := c.processEmail(ctx, raw)
	var err error
	if o.errRec != nil {
		err = fmt.Errorf("%s: %s", o.errRec.Stage, o.errRec.Message)
	}
	return o.state, err
}

// processEmail runs one RawMessage through the full state machine.
func (c *Controller) processEmail(ctx context.Context, raw types.RawMessage) outcome {
	if c.dlq.IsProcessed(raw.ID) && c.cfg.OnDuplicate == ports.OnDuplicateSkip {
		return outcome{state: types.StateSkipped}
	}

	cleaned := normalize.Clean(raw)
	if cleaned.IsEmpty {
		return outcome{state: types.StateSkipped}
	}

	entities, err := c.orch.Extract(ctx, cleaned.Body, raw.ID)
	if err != nil {
		return c.fail(ctx, raw.ID, "extract", err, mustJSON(cleaned))
	}

	candidates, err := c.companyCandidates(ctx)
	if err != nil {
		return c.fail(ctx, raw.ID, "link", err, mustJSON(entities))
	}

	var companyQuery string
	if entities.Startup != nil {
		companyQuery = *entities.Startup
	}
	match := c.linker.MatchCompany(companyQuery, candidates)

	var company types.CompanyRecord
	switch match.Decision {
	case types.DecisionAutoCreate:
		company = linker.NewCompanyFor(companyQuery)
		rec, cerr := c.kb.CreateRecord(ctx, c.cfg.DatabaseID, map[string]any{
			"name": company.Name, "is_affiliate": false, "is_portfolio": false, "source": "auto",
		})
		if cerr != nil {
			return c.fail(ctx, raw.ID, "link", cerr, mustJSON(entities))
		}
		company.ID = rec.ID
	case types.DecisionAmbiguous:
		// Manual review required; the email is not written
		// automatically per spec §4.8/§4.10.
		return outcome{state: types.StateSkipped}
	case types.DecisionMatch:
		if match.MatchedID != nil {
			company.ID = *match.MatchedID
		}
		if match.MatchedName != nil {
			company.Name = *match.MatchedName
		}
	}

	classification, err := c.classifier.Classify(ctx, cleaned.Body, raw.ID, company.Hint())
	if err != nil {
		return c.fail(ctx, raw.ID, "classify", err, mustJSON(entities))
	}

	payload := writePayload(raw.ID, entities, classification, company)
	record, err := c.kb.UpsertRecord(ctx, c.cfg.DatabaseID, raw.ID, payload, c.cfg.OnDuplicate)
	if err != nil {
		return c.fail(ctx, raw.ID, "write", err, mustJSON(payload))
	}
	if err := c.dlq.MarkProcessed(raw.ID); err != nil {
		c.logger.Warn("failed to persist processed index", zap.Error(err))
	}

	if err := c.validate(ctx, record, payload); err != nil {
		rec := &types.ErrorRecord{
			EmailID: raw.ID, Stage: "validate", Severity: types.SeverityHigh,
			Message: err.Error(), OccurredAt: time.Now(),
		}
		_ = c.dlq.Append(raw.ID, "validate", mustJSON(payload), types.DLQErrorInfo{
			Type: types.ClassPermanent, Message: err.Error(),
		}, types.SeverityHigh)
		return outcome{state: types.StateFailed, errRec: rec}
	}

	return outcome{state: types.StateValidated}
}

// validate re-reads the written record and asserts the five core
// fields round-trip, per spec §4.10.
func (c *Controller) validate(_ context.Context, record ports.Record, payload map[string]any) error {
	for _, field := range []string{"person", "startup", "partner", "details", "date"} {
		want, wantOk := payload[field]
		got, gotOk := record.Properties[field]
		if wantOk != gotOk {
			return fmt.Errorf("field %q presence mismatch on round-trip", field)
		}
		if wantOk && want != got {
			return fmt.Errorf("field %q value mismatch on round-trip", field)
		}
	}
	return nil
}

// fail classifies err, writes an ErrorRecord, routes terminal failures
// to the DLQ, and halts the controller on Critical classifications.
func (c *Controller) fail(_ context.Context, emailID, stage string, err error, payload []byte) outcome {
	class := xerrors.ClassOf(err)
	severity := xerrors.SeverityFor(class, stage)

	if class == types.ClassCritical {
		c.halt()
	}

	_ = c.dlq.Append(emailID, stage, payload, types.DLQErrorInfo{
		Type: class, Message: err.Error(), RetryCount: 0,
	}, severity)

	return outcome{
		state: types.StateFailed,
		errRec: &types.ErrorRecord{
			EmailID: emailID, Stage: stage, Severity: severity,
			Message: err.Error(), OccurredAt: time.Now(),
		},
	}
}

func (c *Controller) finalize(run *types.RunRecord) {
	now := time.Now()
	run.EndedAt = &now
	if run.Status == types.RunRunning {
		run.Status = types.RunOK
	}
	path := fmt.Sprintf("%s/runs/%s.json", c.cfg.DataRoot, run.RunID)
	if err := persistence.WriteJSON(path, run); err != nil {
		c.logger.Warn("failed to persist run record", zap.Error(err))
	}
}

// companyCandidatesLimit bounds how many existing KB rows are pulled
// per email for fuzzy matching; large knowledge bases still only need
// the linker to consider a workable candidate pool, not the full table.
const companyCandidatesLimit = 200

// companyCandidates lists the known company rows from the KB and
// shapes them into the linker's Candidate pool, so MatchCompany can
// actually reach its match/ambiguous decisions instead of always
// auto-creating.
func (c *Controller) companyCandidates(ctx context.Context) ([]linker.Candidate, error) {
	records, err := c.kb.ListRecords(ctx, c.cfg.DatabaseID, nil, companyCandidatesLimit)
	if err != nil {
		return nil, err
	}
	candidates := make([]linker.Candidate, 0, len(records))
	for _, r := range records {
		name, _ := r.Properties["name"].(string)
		if name == "" {
			continue
		}
		candidates = append(candidates, linker.Candidate{ID: r.ID, Name: name})
	}
	return candidates, nil
}

func writePayload(emailID string, e types.ExtractedEntities, cl types.Classification, company types.CompanyRecord) map[string]any {
	payload := map[string]any{
		"email_id": emailID,
		"type":     cl.Type,
		"intensity": string(cl.Intensity),
		"summary":  cl.Summary,
	}
	if e.Person != nil {
		payload["person"] = *e.Person
	}
	if e.Startup != nil {
		payload["startup"] = *e.Startup
	}
	if e.Partner != nil {
		payload["partner"] = *e.Partner
	}
	if e.Details != nil {
		payload["details"] = *e.Details
	}
	if e.Date != nil {
		payload["date"] = *e.Date
	}
	if company.ID != "" {
		payload["company_id"] = company.ID
	}
	return payload
}

func mustJSON(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		return []byte(`{}`)
	}
	return b
}

func runID() string {
	return time.Now().UTC().Format("20060102T150405.000Z") + "-" + uuid.NewString()[:8]
}
