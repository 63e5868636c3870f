package playback

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gapless/internal/app/prefetch"
	"gapless/internal/domain/track"
)

type fakeSink struct {
	mu      sync.Mutex
	events  chan SinkEvent
	playing bool
	plays   []string
	pauses  int
	resumes int
	stops   int
	playErr error
}

func newFakeSink() *fakeSink {
	return &fakeSink{events: make(chan SinkEvent, 10)}
}

func (s *fakeSink) Play(h *track.StreamHandle, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.playErr != nil {
		return s.playErr
	}
	s.playing = true
	s.plays = append(s.plays, h.MediaURL)
	return nil
}

func (s *fakeSink) Pause() error  { s.mu.Lock(); defer s.mu.Unlock(); s.pauses++; return nil }
func (s *fakeSink) Resume() error { s.mu.Lock(); defer s.mu.Unlock(); s.resumes++; return nil }

func (s *fakeSink) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.playing = false
	s.stops++
	return nil
}

func (s *fakeSink) Events() <-chan SinkEvent { return s.events }

// end simulates the current track playing to completion.
func (s *fakeSink) end() {
	s.events <- SinkEvent{Type: SinkTrackEnded}
}

func (s *fakeSink) playedURLs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.plays))
	copy(out, s.plays)
	return out
}

type scriptedEnricher struct {
	mu       sync.Mutex
	latency  map[int]time.Duration
	errQueue map[int][]error
	failAll  map[int]error
	calls    map[int]int
	releases atomic.Int32
}

func newScriptedEnricher() *scriptedEnricher {
	return &scriptedEnricher{
		latency:  make(map[int]time.Duration),
		errQueue: make(map[int][]error),
		failAll:  make(map[int]error),
		calls:    make(map[int]int),
	}
}

func (e *scriptedEnricher) Enrich(ctx context.Context, stub track.Stub) (*track.Enriched, error) {
	e.mu.Lock()
	e.calls[stub.Index]++
	var err error
	if q := e.errQueue[stub.Index]; len(q) > 0 {
		err = q[0]
		e.errQueue[stub.Index] = q[1:]
	} else if fa := e.failAll[stub.Index]; fa != nil {
		err = fa
	}
	lat := e.latency[stub.Index]
	e.mu.Unlock()

	if lat > 0 {
		select {
		case <-time.After(lat):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}

	handle := track.NewStreamHandle(fmt.Sprintf("https://cdn.example/%d", stub.Index), "opus",
		time.Now().Add(time.Hour), func() { e.releases.Add(1) })
	return &track.Enriched{Stub: stub, Stream: handle, Duration: 8 * time.Second}, nil
}

func (e *scriptedEnricher) callCount(index int) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls[index]
}

func queueOf(n int) []track.Stub {
	stubs := make([]track.Stub, n)
	for i := range stubs {
		stubs[i] = track.Stub{Index: i, Platform: track.PlatformYTMusic, SourceID: fmt.Sprintf("v%d", i), Title: fmt.Sprintf("Track %d", i), Artist: "Band"}
	}
	return stubs
}

func waitEvent(t *testing.T, ch <-chan Event, want EventType) Event {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case ev := <-ch:
			if ev.Type == want {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", want)
		}
	}
}

func newTestController(e Enricher, sink Sink, delay time.Duration) *Controller {
	sched := prefetch.New(e, delay)
	return NewController(Config{GraceWait: 100 * time.Millisecond, MaxConsecutiveFailures: 3}, sink, e, sched)
}

func TestController_PlaysQueueInOrder(t *testing.T) {
	e := newScriptedEnricher()
	sink := newFakeSink()
	c := newTestController(e, sink, 5*time.Millisecond)
	defer c.Close()

	require.NoError(t, c.Start(queueOf(3)))

	for i := 0; i < 3; i++ {
		ev := waitEvent(t, c.Events(), EventTrackChanged)
		require.NotNil(t, ev.Stub)
		assert.Equal(t, i, ev.Stub.Index)
		sink.end()
	}
	waitEvent(t, c.Events(), EventQueueEmpty)

	assert.Equal(t, []string{
		"https://cdn.example/0",
		"https://cdn.example/1",
		"https://cdn.example/2",
	}, sink.playedURLs())
	assert.Equal(t, StateStopped, c.GetState())
}

func TestController_ReadyPrefetchConsumedWithoutSecondEnrich(t *testing.T) {
	e := newScriptedEnricher()
	sink := newFakeSink()
	c := newTestController(e, sink, 5*time.Millisecond)
	defer c.Close()

	require.NoError(t, c.Start(queueOf(2)))
	waitEvent(t, c.Events(), EventTrackChanged)

	// Let the prefetch for track 1 finish before the track ends.
	require.Eventually(t, func() bool { return e.callCount(1) == 1 }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	sink.end()
	ev := waitEvent(t, c.Events(), EventTrackChanged)
	assert.Equal(t, 1, ev.Stub.Index)
	// The prefetched result was handed off; no synchronous re-enrichment.
	assert.Equal(t, 1, e.callCount(1))
}

func TestController_GraceWaitCoversNearlyDonePrefetch(t *testing.T) {
	e := newScriptedEnricher()
	e.latency[1] = 50 * time.Millisecond
	sink := newFakeSink()
	c := newTestController(e, sink, 5*time.Millisecond)
	defer c.Close()

	require.NoError(t, c.Start(queueOf(2)))
	waitEvent(t, c.Events(), EventTrackChanged)

	// End the track while the prefetch is still running; the grace wait
	// (100ms) outlasts the remaining enrichment (50ms).
	require.Eventually(t, func() bool { return e.callCount(1) == 1 }, 2*time.Second, time.Millisecond)
	sink.end()

	ev := waitEvent(t, c.Events(), EventTrackChanged)
	assert.Equal(t, 1, ev.Stub.Index)
	assert.Equal(t, 1, e.callCount(1))
}

func TestController_GraceElapsedFallsBackToSync(t *testing.T) {
	e := newScriptedEnricher()
	e.latency[1] = 5 * time.Second // far beyond the grace wait
	sink := newFakeSink()
	sched := prefetch.New(e, 5*time.Millisecond)
	c := NewController(Config{GraceWait: 30 * time.Millisecond, MaxConsecutiveFailures: 3}, sink, e, sched)
	defer c.Close()

	require.NoError(t, c.Start(queueOf(2)))
	waitEvent(t, c.Events(), EventTrackChanged)

	require.Eventually(t, func() bool { return e.callCount(1) == 1 }, 2*time.Second, time.Millisecond)

	// Drop the latency so the synchronous fallback is quick.
	e.mu.Lock()
	e.latency[1] = 0
	e.mu.Unlock()

	sink.end()
	ev := waitEvent(t, c.Events(), EventTrackChanged)
	assert.Equal(t, 1, ev.Stub.Index)
	// First call was the cancelled prefetch, second the sync fallback.
	assert.Equal(t, 2, e.callCount(1))
}

func TestController_FailedPrefetchRetriedSynchronously(t *testing.T) {
	e := newScriptedEnricher()
	e.errQueue[1] = []error{errors.New("all platforms exhausted")}
	sink := newFakeSink()
	c := newTestController(e, sink, 5*time.Millisecond)
	defer c.Close()

	require.NoError(t, c.Start(queueOf(2)))
	waitEvent(t, c.Events(), EventTrackChanged)

	// Wait for the prefetch to settle as failed.
	require.Eventually(t, func() bool { return e.callCount(1) == 1 }, 2*time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	sink.end()
	ev := waitEvent(t, c.Events(), EventTrackChanged)
	assert.Equal(t, 1, ev.Stub.Index)
	assert.Equal(t, 2, e.callCount(1))
}

func TestController_QueueDegradedAfterConsecutiveFailures(t *testing.T) {
	e := newScriptedEnricher()
	for i := 1; i <= 3; i++ {
		e.failAll[i] = errors.New("unplayable")
	}
	sink := newFakeSink()
	c := newTestController(e, sink, time.Millisecond)
	defer c.Close()

	require.NoError(t, c.Start(queueOf(5)))
	waitEvent(t, c.Events(), EventTrackChanged)
	sink.end()

	waitEvent(t, c.Events(), EventQueueDegraded)
	assert.Equal(t, StateStopped, c.GetState())
	// The run of three failures stopped playback before track 4.
	assert.Equal(t, 0, e.callCount(4))
}

func TestController_SkipKeepsValidPrefetch(t *testing.T) {
	e := newScriptedEnricher()
	sink := newFakeSink()
	c := newTestController(e, sink, 5*time.Millisecond)
	defer c.Close()

	require.NoError(t, c.Start(queueOf(3)))
	waitEvent(t, c.Events(), EventTrackChanged)

	require.Eventually(t, func() bool { return e.callCount(1) == 1 }, 2*time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	require.NoError(t, c.Skip())
	waitEvent(t, c.Events(), EventTrackSkipped)
	ev := waitEvent(t, c.Events(), EventTrackChanged)
	assert.Equal(t, 1, ev.Stub.Index)
	// The armed prefetch targeted exactly the track the skip landed on.
	assert.Equal(t, 1, e.callCount(1))
}

func TestController_PauseDoesNotDelayPrefetch(t *testing.T) {
	e := newScriptedEnricher()
	sink := newFakeSink()
	c := newTestController(e, sink, 30*time.Millisecond)
	defer c.Close()

	require.NoError(t, c.Start(queueOf(2)))
	waitEvent(t, c.Events(), EventTrackChanged)
	require.NoError(t, c.Pause())
	assert.Equal(t, StatePaused, c.GetState())

	// The delay runs on the wall clock; being paused changes nothing.
	require.Eventually(t, func() bool { return e.callCount(1) == 1 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, c.Resume())
	assert.Equal(t, StatePlaying, c.GetState())
	assert.Equal(t, 1, sink.pauses)
	assert.Equal(t, 1, sink.resumes)
}

func TestController_PauseResumeStateErrors(t *testing.T) {
	e := newScriptedEnricher()
	sink := newFakeSink()
	c := newTestController(e, sink, time.Millisecond)
	defer c.Close()

	assert.ErrorIs(t, c.Pause(), ErrNoTrack)
	assert.ErrorIs(t, c.Resume(), ErrNoTrack)
	assert.ErrorIs(t, c.Skip(), ErrNoTrack)

	require.NoError(t, c.Start(queueOf(1)))
	waitEvent(t, c.Events(), EventTrackChanged)

	assert.ErrorIs(t, c.Resume(), ErrNotPaused)
	require.NoError(t, c.Pause())
	assert.ErrorIs(t, c.Pause(), ErrNotPlaying)
}

func TestController_StopReleasesEverything(t *testing.T) {
	e := newScriptedEnricher()
	sink := newFakeSink()
	c := newTestController(e, sink, 5*time.Millisecond)
	defer c.Close()

	require.NoError(t, c.Start(queueOf(3)))
	waitEvent(t, c.Events(), EventTrackChanged)

	// Let the prefetch for track 1 become ready, then stop.
	require.Eventually(t, func() bool { return e.callCount(1) == 1 }, 2*time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	require.NoError(t, c.Stop())
	assert.Equal(t, StateStopped, c.GetState())

	// Current track's stream and the unconsumed prefetch were released.
	assert.Eventually(t, func() bool { return e.releases.Load() == 2 }, 2*time.Second, 5*time.Millisecond)

	// No further enrichment after stop.
	calls := e.callCount(2)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, calls, e.callCount(2))
}

// gatedPrefetcher blocks the first Schedule call so a concurrent Stop
// can contend for the controller lock while the slot is being armed.
type gatedPrefetcher struct {
	*prefetch.Scheduler
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedPrefetcher) Schedule(stub track.Stub) {
	g.once.Do(func() {
		close(g.entered)
		<-g.release
	})
	g.Scheduler.Schedule(stub)
}

func TestController_StopDuringAdvanceLeavesNoArmedPrefetch(t *testing.T) {
	e := newScriptedEnricher()
	sink := newFakeSink()
	sched := prefetch.New(e, 20*time.Millisecond)
	gate := &gatedPrefetcher{Scheduler: sched, entered: make(chan struct{}), release: make(chan struct{})}
	c := NewController(Config{GraceWait: 100 * time.Millisecond, MaxConsecutiveFailures: 3}, sink, e, gate)
	defer c.Close()

	require.NoError(t, c.Start(queueOf(2)))

	select {
	case <-gate.entered:
	case <-time.After(3 * time.Second):
		t.Fatal("prefetch was never armed")
	}

	// Stop contends for the controller lock while the slot is armed
	// under it; once it gets through, no slot may survive.
	stopped := make(chan error, 1)
	go func() { stopped <- c.Stop() }()
	time.Sleep(10 * time.Millisecond)
	close(gate.release)
	require.NoError(t, <-stopped)
	assert.Equal(t, StateStopped, c.GetState())

	// Well past the slot delay; the cancelled slot never enriched.
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 0, e.callCount(1))
}

func TestController_DelayedSlotSkipsGraceWait(t *testing.T) {
	e := newScriptedEnricher()
	sink := newFakeSink()
	sched := prefetch.New(e, 300*time.Millisecond)
	c := NewController(Config{GraceWait: 250 * time.Millisecond, MaxConsecutiveFailures: 3}, sink, e, sched)
	defer c.Close()

	require.NoError(t, c.Start(queueOf(2)))
	waitEvent(t, c.Events(), EventTrackChanged)

	// End the track while the slot is still waiting out its delay. The
	// delay outlasts the grace, so the fallback must not wait at all.
	sink.end()
	start := time.Now()
	ev := waitEvent(t, c.Events(), EventTrackChanged)
	assert.Equal(t, 1, ev.Stub.Index)
	assert.Less(t, time.Since(start), 150*time.Millisecond)
	// The delay timer was cancelled before its enrichment ever started,
	// so the synchronous path made the only call.
	assert.Equal(t, 1, e.callCount(1))
}

func TestController_StartWithEmptyQueue(t *testing.T) {
	e := newScriptedEnricher()
	sink := newFakeSink()
	c := newTestController(e, sink, time.Millisecond)
	defer c.Close()

	err := c.Start(nil)
	assert.ErrorIs(t, err, ErrQueueEmpty)
	waitEvent(t, c.Events(), EventQueueEmpty)
	assert.Equal(t, StateIdle, c.GetState())
}

func TestController_StartReplacesQueueWholesale(t *testing.T) {
	e := newScriptedEnricher()
	sink := newFakeSink()
	c := newTestController(e, sink, 5*time.Millisecond)
	defer c.Close()

	require.NoError(t, c.Start(queueOf(3)))
	waitEvent(t, c.Events(), EventTrackChanged)

	second := queueOf(2)
	for i := range second {
		second[i].SourceID = fmt.Sprintf("w%d", i)
	}
	require.NoError(t, c.Start(second))

	ev := waitEvent(t, c.Events(), EventTrackChanged)
	assert.Equal(t, 0, ev.Stub.Index)
	assert.Equal(t, "w0", ev.Stub.SourceID)
	assert.Equal(t, 2, c.GetQueueSize())
}
