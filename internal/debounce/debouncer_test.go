package debounce

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/archive-debouncer/internal/eventlog"
	"github.com/JakeFAU/archive-debouncer/internal/progress"
)

const secret = "s3cr3t"

type harness struct {
	clock    *fakeClock
	archiver *fakeArchiver
	log      *eventlog.Log
	events   *recordingEmitter
	d        *Debouncer
}

func newHarness(t *testing.T, secretValue string, archiver *fakeArchiver) *harness {
	t.Helper()
	clock := newFakeClock()
	log := eventlog.New(0, clock, zap.NewNop())
	events := &recordingEmitter{}
	d := New(Config{Secret: secretValue}, archiver, log, clock, &seqIDs{}, events, zap.NewNop())
	t.Cleanup(func() {
		require.NoError(t, d.Close(context.Background()))
	})
	return &harness{clock: clock, archiver: archiver, log: log, events: events, d: d}
}

func (h *harness) logContains(substr string) bool {
	return h.countLines(substr) > 0
}

func (h *harness) countLines(substr string) int {
	n := 0
	for _, line := range h.log.Snapshot() {
		if strings.Contains(line, substr) {
			n++
		}
	}
	return n
}

func TestSubmitSingleArchivesAfterGracePeriod(t *testing.T) {
	t.Parallel()

	h := newHarness(t, secret, newFakeArchiver(true))
	sub, err := h.d.Submit("http://a.com", secret)
	require.NoError(t, err)
	require.Equal(t, uint64(1), sub.Token)
	require.Equal(t, "sub-1", sub.ID)
	require.True(t, h.d.Pending())
	require.True(t, h.logContains("Started new archive job for: http://a.com"))
	require.True(t, h.logContains("Waiting 10 minutes before archiving..."))

	h.clock.Advance(GracePeriod - time.Second)
	require.Empty(t, h.archiver.Calls(), "action must not fire before the grace period")

	h.clock.Advance(time.Second)
	require.Equal(t, []string{"http://a.com"}, h.archiver.Calls())
	require.True(t, h.logContains("Archiving process completed successfully."))
	require.False(t, h.d.Pending())
	require.Equal(t,
		[]progress.Stage{progress.StageSubmitted, progress.StageArchiveStart, progress.StageArchived},
		h.events.Stages(sub.Token),
	)
}

func TestSubmitFailureIsLogged(t *testing.T) {
	t.Parallel()

	h := newHarness(t, secret, newFakeArchiver(false))
	sub, err := h.d.Submit("http://a.com", secret)
	require.NoError(t, err)

	h.clock.Advance(GracePeriod)
	require.Len(t, h.archiver.Calls(), 1)
	require.True(t, h.logContains("Archiving process failed."))
	require.False(t, h.d.Pending())
	require.Contains(t, h.events.Stages(sub.Token), progress.StageFailed)
}

func TestNewerSubmissionSupersedesPending(t *testing.T) {
	t.Parallel()

	h := newHarness(t, secret, newFakeArchiver(true))
	first, err := h.d.Submit("http://a.com", secret)
	require.NoError(t, err)

	h.clock.Advance(5 * time.Minute)
	second, err := h.d.Submit("http://b.com", secret)
	require.NoError(t, err)
	require.Greater(t, second.Token, first.Token)
	require.True(t, h.logContains("Cancelling previous archive job due to new request."))

	h.clock.Advance(5 * time.Minute)
	require.Empty(t, h.archiver.Calls(), "superseded action must not archive")
	require.True(t, h.logContains("Detected newer archive request. Cancelling archive job for: http://a.com"))
	require.True(t, h.d.Pending(), "stale action must not clear the newer token")

	h.clock.Advance(5 * time.Minute)
	require.Equal(t, []string{"http://b.com"}, h.archiver.Calls())
	require.False(t, h.d.Pending())
	require.Equal(t,
		[]progress.Stage{progress.StageSubmitted, progress.StageSuperseded, progress.StageStale},
		h.events.Stages(first.Token),
	)
}

// Scenario: two submissions inside one grace period yield one cancellation
// line for the first target and exactly one archive attempt for the second.
func TestScenarioTwoSubmissionsWithinGracePeriod(t *testing.T) {
	t.Parallel()

	h := newHarness(t, secret, newFakeArchiver(true))
	_, err := h.d.Submit("http://a.com", secret)
	require.NoError(t, err)
	h.clock.Advance(time.Minute)
	_, err = h.d.Submit("http://b.com", secret)
	require.NoError(t, err)

	h.clock.Advance(GracePeriod)

	require.Equal(t, 1, h.countLines("Cancelling archive job for: http://a.com"))
	require.Equal(t, []string{"http://b.com"}, h.archiver.Calls())
}

func TestBurstOfSubmissionsArchivesOnlyLast(t *testing.T) {
	t.Parallel()

	h := newHarness(t, secret, newFakeArchiver(true))
	var last string
	for i := 0; i < 20; i++ {
		last = "http://example.com/" + string(rune('a'+i))
		_, err := h.d.Submit(last, secret)
		require.NoError(t, err)
		h.clock.Advance(10 * time.Second)
	}

	h.clock.Advance(GracePeriod)
	require.Equal(t, []string{last}, h.archiver.Calls())
	require.Equal(t, 19, h.countLines("Detected newer archive request."))
}

func TestConcurrentSubmissionsArchiveExactlyOnce(t *testing.T) {
	t.Parallel()

	h := newHarness(t, secret, newFakeArchiver(true))
	var wg sync.WaitGroup
	errs := make(chan error, 32)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := h.d.Submit("http://concurrent.example/"+string(rune('A'+i)), secret)
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	current, ok := h.d.Current()
	require.True(t, ok)
	require.Equal(t, uint64(32), current.Token)

	h.clock.Advance(GracePeriod)
	require.Equal(t, []string{current.Target}, h.archiver.Calls())
}

func TestSupersededWhileArchivingKeepsNewerToken(t *testing.T) {
	t.Parallel()

	archiver := newBlockingArchiver(true)
	h := newHarness(t, secret, archiver)
	_, err := h.d.Submit("http://a.com", secret)
	require.NoError(t, err)

	fired := make(chan struct{})
	go func() {
		defer close(fired)
		h.clock.Advance(GracePeriod)
	}()
	require.Equal(t, "http://a.com", <-archiver.started)

	second, err := h.d.Submit("http://b.com", secret)
	require.NoError(t, err)
	require.True(t, h.logContains("Cancelling previous archive job due to new request."))

	archiver.release <- struct{}{}
	<-fired

	current, ok := h.d.Current()
	require.True(t, ok, "late-finishing job must not clear the newer token")
	require.Equal(t, second.Token, current.Token)

	go func() { archiver.release <- struct{}{} }()
	h.clock.Advance(GracePeriod)
	require.Equal(t, []string{"http://a.com", "http://b.com"}, archiver.Calls())
	require.False(t, h.d.Pending())
}

func TestSubmitWrongCredential(t *testing.T) {
	t.Parallel()

	h := newHarness(t, secret, newFakeArchiver(true))
	_, err := h.d.Submit("x", "wrong")
	require.ErrorIs(t, err, ErrUnauthorized)
	require.False(t, h.d.Pending())
	require.True(t, h.logContains("Password mismatch for archive request."))

	h.clock.Advance(2 * GracePeriod)
	require.Empty(t, h.archiver.Calls())
	require.Empty(t, h.clock.timers, "no delayed action may be scheduled")
}

func TestWrongCredentialDoesNotDisturbPending(t *testing.T) {
	t.Parallel()

	h := newHarness(t, secret, newFakeArchiver(true))
	sub, err := h.d.Submit("http://a.com", secret)
	require.NoError(t, err)
	_, err = h.d.Submit("http://evil.com", "guess")
	require.ErrorIs(t, err, ErrUnauthorized)

	current, ok := h.d.Current()
	require.True(t, ok)
	require.Equal(t, sub.Token, current.Token)

	h.clock.Advance(GracePeriod)
	require.Equal(t, []string{"http://a.com"}, h.archiver.Calls())
}

func TestSubmitWithoutSecretIsMisconfigured(t *testing.T) {
	t.Parallel()

	h := newHarness(t, "", newFakeArchiver(true))
	for _, cred := range []string{"", "anything", secret} {
		_, err := h.d.Submit("http://a.com", cred)
		require.ErrorIs(t, err, ErrMisconfigured)
	}
	h.clock.Advance(2 * GracePeriod)
	require.Empty(t, h.archiver.Calls())
	require.False(t, h.d.Pending())
	require.Equal(t, 3, h.countLines("No ARCHIVE_PASSWORD set in environment."))
}

func TestSubmitIDGeneratorFailure(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	log := eventlog.New(0, clock, nil)
	d := New(Config{Secret: secret}, newFakeArchiver(true), log, clock, failingIDs{}, nil, nil)
	_, err := d.Submit("http://a.com", secret)
	require.ErrorContains(t, err, "generate submission id")
	require.False(t, d.Pending())
}

func TestCloseStopsPendingAndRejectsSubmissions(t *testing.T) {
	t.Parallel()

	h := newHarness(t, secret, newFakeArchiver(true))
	_, err := h.d.Submit("http://a.com", secret)
	require.NoError(t, err)

	require.NoError(t, h.d.Close(context.Background()))
	require.False(t, h.d.Pending())

	_, err = h.d.Submit("http://b.com", secret)
	require.ErrorIs(t, err, ErrClosed)

	h.clock.Advance(GracePeriod)
	require.Empty(t, h.archiver.Calls())
}

func TestCloseCancelsInFlightArchive(t *testing.T) {
	t.Parallel()

	archiver := newBlockingArchiver(true)
	h := newHarness(t, secret, archiver)
	_, err := h.d.Submit("http://a.com", secret)
	require.NoError(t, err)

	fired := make(chan struct{})
	go func() {
		defer close(fired)
		h.clock.Advance(GracePeriod)
	}()
	<-archiver.started

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, h.d.Close(ctx))
	<-fired
	require.True(t, h.logContains("Archiving process failed."))
}

func TestCloseHonorsContextDeadline(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	log := eventlog.New(0, clock, nil)
	d := New(Config{Secret: secret}, newFakeArchiver(true), log, clock, &seqIDs{}, nil, nil)

	d.wg.Add(1) // simulate an action that never returns
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, d.Close(ctx), context.Canceled)
	d.wg.Done()
}

func TestPanickingArchiverIsContained(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	log := eventlog.New(0, clock, nil)
	events := &recordingEmitter{}
	d := New(Config{Secret: secret}, panicArchiver{}, log, clock, &seqIDs{}, events, nil)
	sub, err := d.Submit("http://a.com", secret)
	require.NoError(t, err)

	require.NotPanics(t, func() { clock.Advance(GracePeriod) })
	require.False(t, d.Pending())
	require.Contains(t, events.Stages(sub.Token), progress.StageFailed)
	require.NoError(t, d.Close(context.Background()))
}

func TestHumanDuration(t *testing.T) {
	t.Parallel()

	require.Equal(t, "10 minutes", HumanDuration(GracePeriod))
	require.Equal(t, "1 minute", HumanDuration(time.Minute))
	require.Equal(t, "1m30s", HumanDuration(90*time.Second))
}
