package debounce

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/archive-debouncer/internal/archive"
	"github.com/JakeFAU/archive-debouncer/internal/progress"
)

// GracePeriod is the fixed wait between accepting a submission and archiving.
const GracePeriod = 10 * time.Minute

// Errors returned by Submit.
var (
	ErrUnauthorized  = errors.New("unauthorized: password mismatch")
	ErrMisconfigured = errors.New("no archive password configured")
	ErrClosed        = errors.New("debouncer closed")
)

// Config controls Debouncer behavior.
type Config struct {
	// Secret is the shared password every submission must present. An empty
	// Secret rejects every submission with ErrMisconfigured.
	Secret string
}

type job struct {
	sub   archive.Submission
	timer archive.Timer
}

// Debouncer accepts submissions and runs only the latest one after the
// grace period.
type Debouncer struct {
	cfg      Config
	archiver archive.Archiver
	recorder archive.Recorder
	clock    archive.Clock
	ids      archive.IDGenerator
	emitter  progress.Emitter
	logger   *zap.Logger

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu      sync.Mutex
	current uint64
	next    uint64
	jobs    map[uint64]job
	closed  bool
}

// New constructs a Debouncer. A nil emitter or logger disables that output.
func New(
	cfg Config,
	archiver archive.Archiver,
	recorder archive.Recorder,
	clock archive.Clock,
	ids archive.IDGenerator,
	emitter progress.Emitter,
	logger *zap.Logger,
) *Debouncer {
	if emitter == nil {
		emitter = progress.NopEmitter{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Debouncer{
		cfg:      cfg,
		archiver: archiver,
		recorder: recorder,
		clock:    clock,
		ids:      ids,
		emitter:  emitter,
		logger:   logger,
		baseCtx:  ctx,
		cancel:   cancel,
		jobs:     make(map[uint64]job),
	}
}

// Submit validates credential and, on success, makes target the current
// submission, superseding any earlier one. It returns as soon as the delayed
// action is scheduled.
func (d *Debouncer) Submit(target, credential string) (archive.Submission, error) {
	d.recorder.Appendf("Received archive request for '%s'", target)
	if d.cfg.Secret == "" {
		d.recorder.Append("No ARCHIVE_PASSWORD set in environment. Rejecting request.")
		return archive.Submission{}, ErrMisconfigured
	}
	if subtle.ConstantTimeCompare([]byte(credential), []byte(d.cfg.Secret)) != 1 {
		d.recorder.Append("Password mismatch for archive request.")
		return archive.Submission{}, ErrUnauthorized
	}
	id, err := d.ids.NewID()
	if err != nil {
		return archive.Submission{}, fmt.Errorf("generate submission id: %w", err)
	}

	sub, prev, err := d.accept(id, target)
	if err != nil {
		return archive.Submission{}, err
	}

	if prev != nil {
		d.recorder.Append("Cancelling previous archive job due to new request.")
		d.emit(*prev, progress.StageSuperseded, 0)
	}
	d.recorder.Appendf("Started new archive job for: %s", sub.Target)
	d.recorder.Appendf("Waiting %s before archiving...", HumanDuration(GracePeriod))
	d.emit(sub, progress.StageSubmitted, 0)
	d.logger.Info("submission accepted",
		zap.String("submission_id", sub.ID),
		zap.Uint64("token", sub.Token),
		zap.String("target", sub.Target),
	)
	return sub, nil
}

// accept is the supersession point: it issues the next token, makes it
// current and schedules the delayed action, all under the lock. It returns
// the submission that was current before, if any.
func (d *Debouncer) accept(id, target string) (archive.Submission, *archive.Submission, error) {
	now := d.clock.Now()

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return archive.Submission{}, nil, ErrClosed
	}

	var prev *archive.Submission
	if p, ok := d.lookup(d.current); ok {
		prev = &p
	}
	d.next++
	sub := archive.Submission{ID: id, Target: target, Token: d.next, AcceptedAt: now}
	d.current = sub.Token

	d.wg.Add(1)
	timer := d.clock.AfterFunc(GracePeriod, func() { d.fire(sub) })
	d.jobs[sub.Token] = job{sub: sub, timer: timer}
	return sub, prev, nil
}

// lookup finds the submission for token among scheduled or running jobs.
// Callers must hold d.mu.
func (d *Debouncer) lookup(token uint64) (archive.Submission, bool) {
	if token == 0 {
		return archive.Submission{}, false
	}
	j, ok := d.jobs[token]
	return j.sub, ok
}

// fire is the delayed action body.
func (d *Debouncer) fire(sub archive.Submission) {
	defer d.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("archive job panicked", zap.String("submission_id", sub.ID), zap.Any("panic", r))
			d.recorder.Appendf("Archive job for %s aborted: %v", sub.Target, r)
			d.release(sub.Token)
			d.emit(sub, progress.StageFailed, 0)
		}
	}()

	current, closed := d.claim(sub.Token)
	switch {
	case closed:
		d.recorder.Appendf("Archive job for %s abandoned: server shutting down.", sub.Target)
		d.emit(sub, progress.StageStale, 0)
		return
	case !current:
		d.recorder.Appendf("Detected newer archive request. Cancelling archive job for: %s", sub.Target)
		d.emit(sub, progress.StageStale, 0)
		return
	}

	d.emit(sub, progress.StageArchiveStart, 0)
	start := time.Now()
	ok := d.archiver.Archive(d.baseCtx, sub.Target)
	dur := time.Since(start)

	if ok {
		d.recorder.Append("Archiving process completed successfully.")
	} else {
		d.recorder.Append("Archiving process failed.")
	}
	d.release(sub.Token)
	if ok {
		d.emit(sub, progress.StageArchived, dur)
	} else {
		d.emit(sub, progress.StageFailed, dur)
	}
}

// claim reports whether token is still current at fire-time. The job stays
// registered while it runs so a newer submission can name it as superseded.
func (d *Debouncer) claim(token uint64) (current, closed bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		delete(d.jobs, token)
		return false, true
	}
	if d.current != token {
		delete(d.jobs, token)
		return false, false
	}
	return true, false
}

// release is the compare-and-clear run after the archival call.
func (d *Debouncer) release(token uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.jobs, token)
	if d.current == token {
		d.current = 0
	}
}

// Pending reports whether a submission is current (scheduled or running).
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current != 0
}

// Current returns the current submission, if any.
func (d *Debouncer) Current() (archive.Submission, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lookup(d.current)
}

// Close rejects further submissions, stops timers that have not fired,
// cancels the context handed to in-flight archival calls and waits for
// running actions to return or ctx to end.
func (d *Debouncer) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		for token, j := range d.jobs {
			if j.timer.Stop() {
				delete(d.jobs, token)
				d.wg.Done()
			}
		}
		d.current = 0
	}
	d.mu.Unlock()
	d.cancel()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for archive jobs: %w", ctx.Err())
	}
}

func (d *Debouncer) emit(sub archive.Submission, stage progress.Stage, dur time.Duration) {
	d.emitter.Emit(progress.Event{
		SubmissionID: sub.ID,
		Token:        sub.Token,
		Target:       sub.Target,
		AcceptedAt:   sub.AcceptedAt,
		TS:           d.clock.Now(),
		Stage:        stage,
		Dur:          dur,
	})
}

// HumanDuration renders whole minutes the way the status page phrases them.
func HumanDuration(d time.Duration) string {
	if d%time.Minute == 0 {
		m := int(d / time.Minute)
		if m == 1 {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", m)
	}
	return d.String()
}
