package wizard

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/KaramelBytes/stagewise/internal/analysis"
	"github.com/KaramelBytes/stagewise/internal/ingest"
	"github.com/KaramelBytes/stagewise/internal/logging"
	"github.com/KaramelBytes/stagewise/internal/metrics"
	"github.com/KaramelBytes/stagewise/internal/results"
)

var (
	// ErrSubmissionPending rejects edits and a second Next while an analysis is in flight.
	ErrSubmissionPending = errors.New("an analysis submission is already in progress")
	// ErrNoSubmission is returned by Cancel when nothing is in flight.
	ErrNoSubmission = errors.New("no analysis submission in progress")
)

// Options wires a Controller to its collaborators.
type Options struct {
	Service analysis.Service
	Logger  *zap.Logger
	Metrics *metrics.Metrics
	Ingest  ingest.Options
	// SubmitTimeout bounds one analysis submission; zero means no limit.
	SubmitTimeout time.Duration
}

// Controller owns the StageState of one wizard session. At most one
// analysis submission runs at a time; its result is committed only if the
// session has not moved since it started.
type Controller struct {
	id      string
	service analysis.Service
	logger  *zap.Logger
	metrics *metrics.Metrics
	ingest  ingest.Options
	timeout time.Duration

	mu         sync.Mutex
	state      StageState
	upload     *ingest.Upload
	pending    *submission
	generation uint64
	progress   Progress
	lastError  string
	updatedAt  time.Time
	inflight   sync.WaitGroup
}

type submission struct {
	gen     uint64
	cancel  context.CancelFunc
	done    chan struct{}
	started time.Time
}

// View is a read-only snapshot for presentation.
type View struct {
	ID              string                 `json:"id"`
	State           StageState             `json:"state"`
	CanAdvance      bool                   `json:"canAdvance"`
	Reason          string                 `json:"reason,omitempty"`
	HeadersDeferred bool                   `json:"headersDeferred"`
	Pending         bool                   `json:"pending"`
	Progress        Progress               `json:"progress"`
	LastError       string                 `json:"lastError,omitempty"`
	Cells           []ingest.HeaderCell    `json:"cells,omitempty"`
	Profile         []ingest.ColumnProfile `json:"profile,omitempty"`
	Options         []FamilyOption         `json:"options,omitempty"`
	UpdatedAt       time.Time              `json:"updatedAt"`
}

// NewController returns a controller at the Upload stage.
func NewController(id string, opt Options) *Controller {
	if opt.Ingest == (ingest.Options{}) {
		opt.Ingest = ingest.DefaultOptions()
	}
	if opt.Service == nil {
		opt.Service = analysis.NewPlaceholder(0)
	}
	return &Controller{
		id:        id,
		service:   opt.Service,
		logger:    logging.OrNop(opt.Logger).With(zap.String("session", id)),
		metrics:   opt.Metrics,
		ingest:    opt.Ingest,
		timeout:   opt.SubmitTimeout,
		state:     NewState(),
		updatedAt: time.Now(),
	}
}

// ID returns the session id.
func (c *Controller) ID() string { return c.id }

// View returns a snapshot of the current state.
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewLocked()
}

func (c *Controller) viewLocked() View {
	v := View{
		ID:              c.id,
		State:           c.state.Clone(),
		HeadersDeferred: c.state.HeadersDeferred(),
		Pending:         c.pending != nil,
		Progress:        c.progress,
		LastError:       c.lastError,
		UpdatedAt:       c.updatedAt,
	}
	if c.state.Stage != StageViewResults {
		v.CanAdvance, v.Reason = CanAdvance(c.state, c.state.Stage)
		if v.Pending {
			v.CanAdvance, v.Reason = false, ErrSubmissionPending.Error()
		}
	}
	if c.upload != nil && c.state.Stage <= StageSelectColumns {
		v.Cells = append([]ingest.HeaderCell{}, c.upload.Cells...)
		v.Profile = append([]ingest.ColumnProfile{}, c.upload.Profile...)
	}
	if c.state.Stage == StageConfigure {
		v.Options = Catalog()
	}
	return v
}

// State returns a copy of the current StageState.
func (c *Controller) State() StageState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Clone()
}

// UpdatedAt is the time of the last state change.
func (c *Controller) UpdatedAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.updatedAt
}

func (c *Controller) touch() { c.updatedAt = time.Now() }

// Upload ingests a file at the Upload stage. A failed ingest leaves the
// state untouched. The file is read before the lock is taken.
func (c *Controller) Upload(name string, r io.Reader) (*ingest.Upload, error) {
	if err := c.requireStage(StageUpload); err != nil {
		return nil, err
	}
	format, ferr := ingest.ClassifyFormat(name)
	if ferr != nil {
		format = "unknown"
	}
	up, err := ingest.Ingest(name, r, c.ingest)
	if err != nil {
		var ie *ingest.IngestError
		outcome := "error"
		if errors.As(err, &ie) {
			outcome = string(ie.Kind)
		}
		c.metrics.Ingest(string(format), outcome)
		c.logger.Info("upload rejected", zap.String("file", name), zap.Error(err))
		return nil, err
	}
	c.metrics.Ingest(string(up.Format), "ok")

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Stage != StageUpload {
		return nil, ErrWrongStage
	}
	c.state = ApplyUpload(c.state, up)
	c.upload = up
	c.lastError = ""
	c.touch()
	c.logger.Debug("file accepted",
		zap.String("file", up.FileName),
		zap.String("format", string(up.Format)),
		zap.Int("headers", len(up.Headers)))
	return up, nil
}

func (c *Controller) requireStage(st Stage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.editableLocked(st)
}

func (c *Controller) editableLocked(st Stage) error {
	if c.pending != nil {
		return ErrSubmissionPending
	}
	if c.state.Stage != st {
		return fmt.Errorf("%w: at %s, need %s", ErrWrongStage, c.state.Stage, st)
	}
	return nil
}

// SelectColumns replaces the selection. Columns outside a known header list
// are rejected rather than dropped; an empty selection is accepted and
// blocks advancing.
func (c *Controller) SelectColumns(cols []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.editableLocked(StageSelectColumns); err != nil {
		return err
	}
	next := WithSelection(c.state, cols)
	if len(next.SelectedColumns) > 0 {
		if err := validateSelection(next, StageSelectColumns); err != nil {
			return err
		}
	}
	c.state = next
	c.touch()
	return nil
}

// Configure replaces the whole configuration after validating it.
func (c *Controller) Configure(cfg MLConfiguration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.editableLocked(StageConfigure); err != nil {
		return err
	}
	if field, reason := cfg.Check(); reason != "" {
		return invalid(StageConfigure, field, reason)
	}
	c.state = WithConfig(c.state, cfg)
	c.touch()
	return nil
}

// SetFamily switches the analysis family, resetting the algorithm to the
// family default.
func (c *Controller) SetFamily(kind Family) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.editableLocked(StageConfigure); err != nil {
		return err
	}
	f, ok := familyOption(kind)
	if !ok {
		return invalid(StageConfigure, "mlType", fmt.Sprintf("unknown analysis type %q", kind))
	}
	if !f.Available {
		return invalid(StageConfigure, "mlType", fmt.Sprintf("%s is not available yet", kind))
	}
	cur := DefaultConfig()
	if c.state.Config != nil {
		cur = *c.state.Config
	}
	c.state = WithConfig(c.state, SwitchFamily(cur, kind))
	c.touch()
	return nil
}

// Next advances one stage. From Configure it starts the analysis
// submission in the background and returns immediately; the stage moves
// to ViewResults only when a successful response has been committed.
func (c *Controller) Next() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending != nil {
		return ErrSubmissionPending
	}
	if err := Validate(c.state, c.state.Stage); err != nil {
		return err
	}
	if c.state.Stage == StageConfigure {
		return c.submitLocked()
	}
	next, err := Advance(c.state, Input{})
	if err != nil {
		return err
	}
	c.metrics.Transition(c.state.Stage.String(), next.Stage.String(), "forward")
	c.state = next
	c.touch()
	return nil
}

// Back retreats one stage. A pending submission is cancelled first and its
// response, if it still arrives, is discarded.
func (c *Controller) Back() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.abortLocked("back")
	prev := Retreat(c.state)
	if prev.Stage != c.state.Stage {
		c.metrics.Transition(c.state.Stage.String(), prev.Stage.String(), "back")
	}
	c.state = prev
	c.lastError = ""
	c.touch()
	return nil
}

// Cancel aborts the pending submission and stays at Configure.
func (c *Controller) Cancel() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending == nil {
		return ErrNoSubmission
	}
	c.abortLocked("cancel")
	c.touch()
	return nil
}

// Restart discards all state and returns to Upload.
func (c *Controller) Restart() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.abortLocked("restart")
	if c.state.Stage != StageUpload {
		c.metrics.Transition(c.state.Stage.String(), StageUpload.String(), "restart")
	}
	c.state = NewState()
	c.upload = nil
	c.lastError = ""
	c.touch()
}

// Hydrate replaces the state with one rebuilt from a stage transport
// payload. File bytes are not part of the transport, so a hydrated session
// cannot submit an analysis until a file is uploaded again.
func (c *Controller) Hydrate(s StageState) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending != nil {
		return ErrSubmissionPending
	}
	if !s.Stage.Valid() {
		return fmt.Errorf("%w: %d", ErrWrongStage, int(s.Stage))
	}
	c.state = s.Clone()
	c.upload = nil
	c.progress = Progress{}
	c.lastError = ""
	c.touch()
	return nil
}

// Download renders one artifact of the committed results.
func (c *Controller) Download(name string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Stage != StageViewResults || c.state.Results == nil {
		return "", fmt.Errorf("%w: no results to download", ErrWrongStage)
	}
	return results.Artifact(c.state.Results, name)
}

// Wait blocks until the pending submission, if any, has finished.
func (c *Controller) Wait(ctx context.Context) error {
	c.mu.Lock()
	p := c.pending
	c.mu.Unlock()
	if p == nil {
		return nil
	}
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close cancels any pending submission and waits for background work,
// including cancelled submissions whose service call has not returned yet.
func (c *Controller) Close(ctx context.Context) error {
	c.mu.Lock()
	c.abortLocked("close")
	c.mu.Unlock()
	done := make(chan struct{})
	go func() {
		c.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// abortLocked cancels the pending submission. Bumping the generation makes
// any late response from it a no-op.
func (c *Controller) abortLocked(reason string) {
	if c.pending == nil {
		return
	}
	c.generation++
	c.pending.cancel()
	c.logger.Info("analysis submission aborted", zap.String("reason", reason))
	c.pending = nil
	c.progress = Progress{}
}

func (c *Controller) submitLocked() error {
	if c.upload == nil || len(c.upload.Data) == 0 {
		return invalid(StageConfigure, "file", "the uploaded file is not available; restart and upload it again")
	}
	cfg := c.state.Config.Clone()
	req := analysis.Request{
		FileName: c.upload.FileName,
		Data:     c.upload.Data,
		Family:   string(cfg.Kind),
		Params:   RequestParams(c.state),
	}

	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if c.timeout > 0 {
		ctx, cancel = context.WithTimeout(context.Background(), c.timeout)
	} else {
		ctx, cancel = context.WithCancel(context.Background())
	}
	c.generation++
	sub := &submission{gen: c.generation, cancel: cancel, done: make(chan struct{}), started: time.Now()}
	c.pending = sub
	c.progress = Progress{}
	c.lastError = ""
	c.touch()
	c.logger.Info("analysis submitted",
		zap.String("family", req.Family),
		zap.String("algorithm", req.Params.Algorithm),
		zap.Strings("columns", req.Params.SelectedColumns))

	c.inflight.Add(1)
	go c.run(ctx, sub, req)
	return nil
}

func (c *Controller) run(ctx context.Context, sub *submission, req analysis.Request) {
	defer c.inflight.Done()
	defer close(sub.done)
	defer sub.cancel()

	raw, err := c.service.Analyze(ctx, req, func(p int) { c.report(sub, p) })
	var res results.NormalizedResult
	if err == nil {
		res = results.Normalize(req.Family, raw)
		c.report(sub, progressNormalized)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	elapsed := time.Since(sub.started)
	if c.pending != sub || c.generation != sub.gen {
		c.logger.Info("discarding analysis response for an abandoned submission", zap.Duration("elapsed", elapsed), zap.Error(err))
		c.metrics.Submission("discarded", elapsed)
		return
	}
	c.pending = nil
	if err != nil {
		c.progress = Progress{}
		c.lastError = analysis.UserMessage(err)
		c.touch()
		c.logger.Error("analysis failed", zap.Duration("elapsed", elapsed), zap.Error(err))
		c.metrics.Submission("failed", elapsed)
		return
	}
	for _, w := range res.Warnings {
		c.logger.Warn("analysis result entry skipped", zap.String("detail", w))
	}
	next, aerr := Advance(c.state, Input{Results: &res})
	if aerr != nil {
		c.progress = Progress{}
		c.lastError = "Analysis results could not be applied."
		c.touch()
		c.logger.Error("committing analysis results", zap.Error(aerr))
		c.metrics.Submission("failed", elapsed)
		return
	}
	c.progress = c.progress.Advance(progressCommitted)
	c.metrics.Submission("succeeded", elapsed)
	c.metrics.Transition(c.state.Stage.String(), next.Stage.String(), "forward")
	c.state = next
	c.touch()
	c.logger.Info("analysis committed",
		zap.Duration("elapsed", elapsed),
		zap.Int("topics", len(res.Topics)),
		zap.Int("points", len(res.ClusterPoints)))
}

func (c *Controller) report(sub *submission, p int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending != sub {
		return
	}
	c.progress = c.progress.Advance(p)
}

// RequestParams builds the analysis parameters from the state's
// configuration and a fresh snapshot of the selection.
func RequestParams(s StageState) analysis.Params {
	p := analysis.Params{SelectedColumns: cloneStrings(s.SelectedColumns)}
	if s.Config == nil {
		return p
	}
	p.Algorithm = s.Config.Algorithm
	switch s.Config.Kind {
	case FamilyClustering:
		p.NumClusters = clonePtr(s.Config.NumClusters)
	case FamilyRegression:
		if s.Config.Algorithm == AlgorithmPolynomial {
			p.PolynomialDegree = clonePtr(s.Config.PolynomialDegree)
		}
	}
	return p
}
