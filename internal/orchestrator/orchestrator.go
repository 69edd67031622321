package orchestrator

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/foxseedlab/localscribe/internal/audio"
	"github.com/foxseedlab/localscribe/internal/convert"
	"github.com/foxseedlab/localscribe/internal/metrics"
	"github.com/foxseedlab/localscribe/internal/repository"
	"github.com/foxseedlab/localscribe/internal/transcriber"
	"github.com/foxseedlab/localscribe/internal/webhook"
	"github.com/google/uuid"
)

const sideEffectTimeout = 15 * time.Second

type Converter interface {
	Convert(ctx context.Context, src io.Reader, displayName string) (string, error)
	Remove(path string) error
	Sweep(olderThan time.Duration) (int, error)
}

type Options struct {
	Converter Converter
	Engine    transcriber.Engine
	Mode      transcriber.Mode
	Retention time.Duration
	Language  string

	Repository  repository.RunRepository
	Webhook     webhook.Sender
	Metrics     *metrics.Metrics
	HistorySize int
	Now         func() time.Time
}

type residentModel struct {
	variant string
	handle  transcriber.Handle
}

// Orchestrator drives one transcription at a time through the stage machine.
type Orchestrator struct {
	converter Converter
	engine    transcriber.Engine
	retention time.Duration
	language  string
	repo      repository.RunRepository
	webhook   webhook.Sender
	metrics   *metrics.Metrics
	history   *History
	now       func() time.Time

	current atomic.Pointer[Stage]

	mu          sync.Mutex
	mode        transcriber.Mode
	closed      bool
	running     bool
	runID       string
	stageSince  time.Time
	watchers    map[int]chan Stage
	nextWatcher int

	modelMu sync.Mutex
	model   *residentModel
}

func New(opts Options) *Orchestrator {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	mode := opts.Mode
	if mode == "" {
		mode = transcriber.ModeFast
	}
	o := &Orchestrator{
		converter: opts.Converter,
		engine:    opts.Engine,
		retention: opts.Retention,
		language:  opts.Language,
		repo:      opts.Repository,
		webhook:   opts.Webhook,
		metrics:   opts.Metrics,
		history:   NewHistory(opts.HistorySize),
		now:       now,
		mode:      mode,
		watchers:  make(map[int]chan Stage),
	}
	var idle Stage = Idle{}
	o.current.Store(&idle)
	o.stageSince = now()
	o.history.Publish(StageEvent{Timestamp: o.stageSince.UTC(), Stage: Describe(idle)})
	return o
}

func (o *Orchestrator) Current() Stage {
	return *o.current.Load()
}

func (o *Orchestrator) History(sinceSeq int64) []StageEvent {
	return o.history.Since(sinceSeq)
}

func (o *Orchestrator) RunEvents(runID string) []StageEvent {
	return o.history.Run(runID)
}

func (o *Orchestrator) Mode() transcriber.Mode {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.mode
}

// SetMode applies to runs started afterwards. A resident model of the old
// variant is swapped out lazily on the next load.
func (o *Orchestrator) SetMode(mode transcriber.Mode) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.mode != mode {
		slog.Info("transcription mode changed", "from", o.mode, "to", mode)
	}
	o.mode = mode
}

// Watch delivers the current stage and every later one. Slow readers only
// see the most recent stage.
func (o *Orchestrator) Watch() (<-chan Stage, func()) {
	o.mu.Lock()
	defer o.mu.Unlock()

	ch := make(chan Stage, 1)
	ch <- o.Current()
	id := o.nextWatcher
	o.nextWatcher++
	o.watchers[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			o.mu.Lock()
			defer o.mu.Unlock()
			delete(o.watchers, id)
		})
	}
	return ch, cancel
}

func (o *Orchestrator) Reset() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	cur := o.Current()
	switch {
	case cur.Kind() == KindIdle:
		return nil
	case isTerminal(cur):
		o.setLocked(Idle{})
		o.runID = ""
		return nil
	}
	return ErrNotResettable
}

// Run transcribes one file. It is rejected with ErrBusy unless the stage is Idle.
func (o *Orchestrator) Run(ctx context.Context, src Source) (Completed, error) {
	runID := uuid.NewString()
	displayName := src.DisplayName()
	startedAt := o.now()

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return Completed{}, ErrClosed
	}
	if o.Current().Kind() != KindIdle {
		o.mu.Unlock()
		if o.metrics != nil {
			o.metrics.RecordRejected()
		}
		return Completed{}, ErrBusy
	}
	o.runID = runID
	o.running = true
	variant := o.mode.Variant()
	o.setLocked(ReceivingFile{DisplayName: displayName})
	o.mu.Unlock()
	defer o.endRun()

	slog.Info("transcription run started", "run_id", runID, "display_name", displayName, "variant", variant)

	rec := runRecord{id: runID, displayName: displayName, variant: variant, startedAt: startedAt}

	reader, err := src.Open(ctx)
	if err != nil {
		return Completed{}, o.fail(rec, KindReceivingFile, wrapKind(ErrSourceUnavailable, err))
	}

	o.set(ConvertingAudio{})
	wavPath, err := o.converter.Convert(ctx, reader, displayName)
	if cerr := reader.Close(); cerr != nil {
		slog.Warn("failed to close source", "run_id", runID, "error", cerr)
	}
	if err != nil {
		return Completed{}, o.fail(rec, KindConvertingAudio, wrapKind(convert.ErrConversionFailed, err))
	}
	defer func() {
		if err := o.converter.Remove(wavPath); err != nil {
			slog.Warn("failed to remove converted audio", "run_id", runID, "path", wavPath, "error", err)
		}
	}()

	normalized, err := audio.ReadWAVFile(wavPath)
	if err != nil {
		return Completed{}, o.fail(rec, KindConvertingAudio, wrapKind(convert.ErrConversionFailed, err))
	}
	rec.audioSeconds = normalized.Duration().Seconds()

	o.set(LoadingModel{Variant: variant})
	handle, err := o.ensureModel(ctx, variant)
	if err != nil {
		return Completed{}, o.fail(rec, KindLoadingModel, wrapKind(transcriber.ErrModelLoadFailed, err))
	}

	o.set(Transcribing{})
	text, err := o.engine.Transcribe(ctx, handle, normalized)
	if err != nil {
		return Completed{}, o.fail(rec, KindTranscribing, wrapKind(transcriber.ErrInferenceFailed, err))
	}

	if err := o.converter.Remove(wavPath); err != nil {
		slog.Warn("failed to remove converted audio", "run_id", runID, "path", wavPath, "error", err)
	}

	elapsed := o.now().Sub(startedAt)
	done := Completed{Text: text, ElapsedMs: max(elapsed.Milliseconds(), 0)}
	o.set(done)
	slog.Info("transcription run completed", "run_id", runID, "elapsed_ms", done.ElapsedMs, "audio_seconds", rec.audioSeconds, "characters", len(text))

	o.sweep()
	o.finish(rec, done, nil)
	return done, nil
}

// Close releases the resident model, or leaves that to the active run if
// one is in flight. Runs started afterwards fail with ErrClosed.
func (o *Orchestrator) Close() error {
	o.mu.Lock()
	o.closed = true
	running := o.running
	o.mu.Unlock()

	if running {
		return nil
	}
	return o.releaseModel()
}

func (o *Orchestrator) endRun() {
	o.mu.Lock()
	o.running = false
	closed := o.closed
	o.mu.Unlock()

	if closed {
		if err := o.releaseModel(); err != nil {
			slog.Warn("failed to release model after close", "error", err)
		}
	}
}

func (o *Orchestrator) releaseModel() error {
	o.modelMu.Lock()
	defer o.modelMu.Unlock()
	if o.model == nil {
		return nil
	}
	err := o.engine.Release(o.model.handle)
	o.model = nil
	return err
}

func (o *Orchestrator) isClosed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}

func (o *Orchestrator) ensureModel(ctx context.Context, variant string) (transcriber.Handle, error) {
	o.modelMu.Lock()
	defer o.modelMu.Unlock()

	if o.isClosed() {
		return nil, ErrClosed
	}
	if o.model != nil && o.model.variant == variant {
		if o.metrics != nil {
			o.metrics.RecordModelLoad(variant, true)
		}
		return o.model.handle, nil
	}
	if o.model != nil {
		slog.Info("releasing resident model", "variant", o.model.variant)
		if err := o.engine.Release(o.model.handle); err != nil {
			slog.Warn("failed to release model", "variant", o.model.variant, "error", err)
		}
		o.model = nil
	}

	slog.Info("loading model", "engine", o.engine.Name(), "variant", variant)
	handle, err := o.engine.LoadModel(ctx, variant)
	if err != nil {
		return nil, err
	}
	o.model = &residentModel{variant: variant, handle: handle}
	if o.metrics != nil {
		o.metrics.RecordModelLoad(variant, false)
	}
	return handle, nil
}

func (o *Orchestrator) fail(rec runRecord, failed StageKind, cause error) error {
	kind := ErrorKind(cause)
	stage := Error{Message: userMessage(kind), Cause: cause, FailedStage: failed}
	o.set(stage)
	slog.Error("transcription run failed", "run_id", rec.id, "failed_stage", failed, "error_kind", kind, "error", cause)
	o.finish(rec, Completed{}, &stage)
	return cause
}

func (o *Orchestrator) set(s Stage) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.setLocked(s)
}

func (o *Orchestrator) setLocked(s Stage) {
	now := o.now()
	prev := o.Current()
	if o.metrics != nil {
		o.metrics.ObserveStage(string(prev.Kind()), now.Sub(o.stageSince).Seconds())
		o.metrics.RecordStage(string(s.Kind()))
	}
	o.stageSince = now
	o.current.Store(&s)
	o.history.Publish(StageEvent{Timestamp: now.UTC(), RunID: o.runID, Stage: Describe(s)})

	for _, ch := range o.watchers {
		select {
		case <-ch:
		default:
		}
		ch <- s
	}
}

func (o *Orchestrator) sweep() {
	if o.retention <= 0 {
		return
	}
	n, err := o.converter.Sweep(o.retention)
	if err != nil {
		slog.Warn("scratch sweep incomplete", "removed", n, "error", err)
	}
	if n > 0 {
		slog.Info("removed stale scratch files", "count", n)
		if o.metrics != nil {
			o.metrics.RecordSwept(n)
		}
	}
}

type runRecord struct {
	id           string
	displayName  string
	variant      string
	audioSeconds float64
	startedAt    time.Time
}

// finish persists the run and notifies the webhook. Failures here are logged
// and never change the stage.
func (o *Orchestrator) finish(rec runRecord, done Completed, failure *Error) {
	ctx, cancel := context.WithTimeout(context.Background(), sideEffectTimeout)
	defer cancel()

	finishedAt := o.now()
	engineName := o.engine.Name()
	status := repository.RunStatusCompleted
	in := repository.SaveRunInput{
		ID:           rec.id,
		DisplayName:  rec.displayName,
		Engine:       engineName,
		Variant:      rec.variant,
		Transcript:   done.Text,
		AudioSeconds: rec.audioSeconds,
		ElapsedMs:    done.ElapsedMs,
		StartedAt:    rec.startedAt,
		FinishedAt:   finishedAt,
	}
	if failure != nil {
		status = repository.RunStatusFailed
		in.FailedStage = string(failure.FailedStage)
		in.ErrorKind = ErrorKind(failure.Cause)
		in.ErrorMessage = failure.Cause.Error()
		in.ElapsedMs = max(finishedAt.Sub(rec.startedAt).Milliseconds(), 0)
	}
	in.Status = status

	if o.metrics != nil {
		o.metrics.RecordRun(string(status), engineName, finishedAt.Sub(rec.startedAt).Seconds(), rec.audioSeconds)
	}

	if o.repo != nil {
		if _, err := o.repo.SaveRun(ctx, in); err != nil {
			slog.Error("failed to save run", "run_id", rec.id, "error", err)
		}
	}

	if failure == nil && o.webhook != nil {
		payload := webhook.TranscriptWebhookPayload{
			RunID:        rec.id,
			DisplayName:  rec.displayName,
			Engine:       engineName,
			Variant:      rec.variant,
			Language:     o.language,
			Transcript:   done.Text,
			AudioSeconds: rec.audioSeconds,
			ElapsedMs:    done.ElapsedMs,
			CompletedAt:  finishedAt.UTC(),
		}
		if err := o.webhook.SendTranscript(ctx, payload); err != nil {
			slog.Error("failed to send transcript webhook", "run_id", rec.id, "error", err)
		}
	}
}

func (o *Orchestrator) LastError() (Error, bool) {
	e, ok := o.Current().(Error)
	return e, ok
}
