package breakerbox

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"golang.org/x/sync/errgroup"
)

var errBoom = errors.New("boom")

type BreakerSuite struct {
	suite.Suite
	clock *fakeClock
}

func TestBreakerSuite(t *testing.T) {
	suite.Run(t, new(BreakerSuite))
}

func (s *BreakerSuite) SetupTest() {
	s.clock = newFakeClock()
}

// config returns a baseline configuration driven by the suite clock.
func (s *BreakerSuite) config() Config[string] {
	return Config[string]{
		Name:           "test",
		ErrorThreshold: 0,
		ErrorWindow:    time.Second,
		ResetAfter:     30 * time.Second,
		MinSamples:     1,
		Clock:          s.clock,
	}
}

func (s *BreakerSuite) TestNewBreaker_Defaults() {
	b, err := NewBreaker[string](Func[string](func(ctx context.Context) (string, error) {
		return "ok", nil
	}), Config[string]{})
	s.Require().NoError(err)

	s.Equal(DefaultErrorWindow, b.cfg.ErrorWindow)
	s.Equal(DefaultResetAfter, b.cfg.ResetAfter)
	s.Equal(DefaultMinSamples, b.cfg.MinSamples)
	s.Equal(StateClosed, b.State())
}

func (s *BreakerSuite) TestNewBreaker_DefaultResetAfterTracksWindow() {
	b, err := NewBreaker[string](Func[string](func(ctx context.Context) (string, error) {
		return "ok", nil
	}), Config[string]{ErrorWindow: time.Minute})
	s.Require().NoError(err)

	s.Equal(time.Minute, b.cfg.ResetAfter)
}

func (s *BreakerSuite) TestNewBreaker_Validation() {
	ok := Func[string](func(ctx context.Context) (string, error) { return "", nil })

	tests := []struct {
		name  string
		main  Caller[string]
		cfg   Config[string]
		field string
	}{
		{"nil operation", nil, Config[string]{}, "main"},
		{"negative threshold", ok, Config[string]{ErrorThreshold: -0.1}, "ErrorThreshold"},
		{"threshold above one", ok, Config[string]{ErrorThreshold: 1.1}, "ErrorThreshold"},
		{"short window", ok, Config[string]{ErrorWindow: 500 * time.Millisecond}, "ErrorWindow"},
		{"short reset", ok, Config[string]{ResetAfter: 500 * time.Millisecond}, "ResetAfter"},
		{"reset below window", ok, Config[string]{ErrorWindow: 5 * time.Second, ResetAfter: 2 * time.Second}, "ResetAfter"},
		{"negative samples", ok, Config[string]{MinSamples: -1}, "MinSamples"},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			_, err := NewBreaker(tt.main, tt.cfg)
			var cfgErr *ConfigError
			s.Require().ErrorAs(err, &cfgErr)
			s.Equal(tt.field, cfgErr.Field)
		})
	}
}

// Fast-open: threshold 0 with a single sample opens on the first failure,
// moves to half-open after ResetAfter, and closes on a successful probe.
func (s *BreakerSuite) TestFastOpenAndRecovery() {
	fail := true
	b, err := NewBreaker[string](Func[string](func(ctx context.Context) (string, error) {
		if fail {
			return "", errBoom
		}
		return "ok", nil
	}), s.config())
	s.Require().NoError(err)

	_, err = b.Call(context.Background())
	s.Require().ErrorIs(err, errBoom)
	s.Equal(StateOpen, b.State())
	s.Equal(errBoom, b.LastError())

	// Rejected without invoking the operation while open.
	fail = false
	_, err = b.Call(context.Background())
	s.Require().True(IsCircuitOpen(err))
	s.Require().ErrorIs(err, errBoom)

	s.clock.Advance(30 * time.Second)
	s.Equal(StateHalfOpen, b.State())

	out, err := b.Call(context.Background())
	s.Require().NoError(err)
	s.Equal("ok", out)
	s.Equal(StateClosed, b.State())
	s.Nil(b.LastError())
}

// Threshold math: the comparison is strict, so a rate exactly at the
// threshold keeps the circuit closed.
func (s *BreakerSuite) TestThresholdComparisonIsStrict() {
	fail := false
	cfg := s.config()
	cfg.ErrorThreshold = 0.5
	cfg.ErrorWindow = 10 * time.Second
	cfg.MinSamples = 6

	b, err := NewBreaker[string](Func[string](func(ctx context.Context) (string, error) {
		if fail {
			return "", errBoom
		}
		return "ok", nil
	}), cfg)
	s.Require().NoError(err)

	fail = true
	for i := 0; i < 3; i++ {
		_, _ = b.Call(context.Background())
	}
	fail = false
	for i := 0; i < 3; i++ {
		_, _ = b.Call(context.Background())
	}

	s.Equal(0.5, b.FailureRate())
	s.Equal(StateClosed, b.State())

	fail = true
	_, err = b.Call(context.Background())
	s.Require().ErrorIs(err, errBoom)

	// 4 of 7 settled calls failed: 0.57 > 0.5.
	s.Equal(StateOpen, b.State())
}

func (s *BreakerSuite) TestMinSamplesGateHoldsCircuitClosed() {
	cfg := s.config()
	cfg.MinSamples = 3

	b, err := NewBreaker[string](Func[string](func(ctx context.Context) (string, error) {
		return "", errBoom
	}), cfg)
	s.Require().NoError(err)

	for i := 0; i < 2; i++ {
		_, _ = b.Call(context.Background())
		s.Equal(StateClosed, b.State())
		s.Zero(b.FailureRate())
	}

	_, _ = b.Call(context.Background())
	s.Equal(StateOpen, b.State())
}

// Single-flight probe: with three concurrent callers in half-open, exactly
// one reaches the operation and the others are rejected as if open.
func (s *BreakerSuite) TestHalfOpenSingleFlightProbe() {
	var invocations atomic.Int64
	var probing atomic.Bool
	release := make(chan struct{})

	b, err := NewBreaker[string](Func[string](func(ctx context.Context) (string, error) {
		invocations.Add(1)
		if probing.Load() {
			<-release
			return "recovered", nil
		}
		return "", errBoom
	}), s.config())
	s.Require().NoError(err)

	// Trip the circuit, then age it into half-open.
	_, _ = b.Call(context.Background())
	s.Require().Equal(StateOpen, b.State())
	invocations.Store(0)
	s.clock.Advance(30 * time.Second)
	s.Require().Equal(StateHalfOpen, b.State())

	probing.Store(true)
	results := make(chan error, 1)
	go func() {
		_, err := b.Call(context.Background())
		results <- err
	}()

	// Wait for the probe to take the slot.
	s.Require().Eventually(func() bool {
		return invocations.Load() == 1
	}, time.Second, time.Millisecond)

	// Concurrent callers while the probe is outstanding short-circuit.
	var g errgroup.Group
	for i := 0; i < 2; i++ {
		g.Go(func() error {
			_, err := b.Call(context.Background())
			if !IsCircuitOpen(err) {
				return err
			}
			return nil
		})
	}
	s.Require().NoError(g.Wait())
	s.Equal(int64(1), invocations.Load())

	close(release)
	s.Require().NoError(<-results)
	s.Equal(StateClosed, b.State())
}

// A failing probe reopens the circuit with no threshold re-check: the
// window is empty in half-open, so any rate-based check would pass.
func (s *BreakerSuite) TestProbeFailureReopensUnconditionally() {
	probeErr := errors.New("still down")
	ret := errBoom

	b, err := NewBreaker[string](Func[string](func(ctx context.Context) (string, error) {
		return "", ret
	}), s.config())
	s.Require().NoError(err)

	_, _ = b.Call(context.Background())
	s.Require().Equal(StateOpen, b.State())

	s.clock.Advance(30 * time.Second)
	s.Require().Equal(StateHalfOpen, b.State())

	ret = probeErr
	_, err = b.Call(context.Background())
	s.Require().ErrorIs(err, probeErr)
	s.Equal(StateOpen, b.State())
	s.Equal(probeErr, b.LastError())

	// Reset timer re-armed: still open just before, half-open right after.
	s.clock.Advance(29 * time.Second)
	s.Equal(StateOpen, b.State())
	s.clock.Advance(time.Second)
	s.Equal(StateHalfOpen, b.State())
}

// A probe error classified as not-a-failure is rethrown, leaves the state
// half-open, and frees the probe slot.
func (s *BreakerSuite) TestProbeNonFailureKeepsHalfOpen() {
	benign := errors.New("caller cancelled")
	fail := true

	cfg := s.config()
	cfg.IsFailure = func(err error) bool { return !errors.Is(err, benign) }
	b, err := NewBreaker[string](Func[string](func(ctx context.Context) (string, error) {
		if fail {
			return "", errBoom
		}
		return "", benign
	}), cfg)
	s.Require().NoError(err)

	_, _ = b.Call(context.Background())
	s.clock.Advance(30 * time.Second)
	s.Require().Equal(StateHalfOpen, b.State())

	fail = false
	_, err = b.Call(context.Background())
	s.Require().ErrorIs(err, benign)
	s.Equal(StateHalfOpen, b.State())

	// The slot is free: the next caller becomes the probe.
	_, err = b.Call(context.Background())
	s.Require().ErrorIs(err, benign)
}

func (s *BreakerSuite) TestNonFailureErrorsExcludedFromAccounting() {
	benign := errors.New("not a failure")

	cfg := s.config()
	cfg.IsFailure = func(err error) bool { return !errors.Is(err, benign) }
	b, err := NewBreaker[string](Func[string](func(ctx context.Context) (string, error) {
		return "", benign
	}), cfg)
	s.Require().NoError(err)

	for i := 0; i < 5; i++ {
		_, err := b.Call(context.Background())
		s.Require().ErrorIs(err, benign)
	}

	s.Equal(StateClosed, b.State())
	s.Zero(b.FailureRate())
}

func (s *BreakerSuite) TestFallbackOnFailureWhileClosed() {
	cfg := s.config()
	cfg.Fallback = func(ctx context.Context, cause error) (string, error) {
		s.Require().ErrorIs(cause, errBoom)
		return "fallback", nil
	}

	b, err := NewBreaker[string](Func[string](func(ctx context.Context) (string, error) {
		return "", errBoom
	}), cfg)
	s.Require().NoError(err)

	out, err := b.Call(context.Background())
	s.Require().NoError(err)
	s.Equal("fallback", out)

	// The failure still counted: circuit is open, fallback serves next call.
	s.Equal(StateOpen, b.State())
	out, err = b.Call(context.Background())
	s.Require().NoError(err)
	s.Equal("fallback", out)
}

func (s *BreakerSuite) TestFallbackReceivesShortCircuitError() {
	fail := true
	cfg := s.config()
	cfg.Fallback = func(ctx context.Context, cause error) (string, error) {
		if IsCircuitOpen(cause) {
			return "open-fallback", nil
		}
		return "fail-fallback", nil
	}

	b, err := NewBreaker[string](Func[string](func(ctx context.Context) (string, error) {
		if fail {
			return "", errBoom
		}
		return "ok", nil
	}), cfg)
	s.Require().NoError(err)

	out, _ := b.Call(context.Background())
	s.Equal("fail-fallback", out)

	out, _ = b.Call(context.Background())
	s.Equal("open-fallback", out)
}

func (s *BreakerSuite) TestLifecycleHooks() {
	var events []string
	fail := true

	cfg := s.config()
	cfg.OnOpen = func(cause error) {
		s.Require().ErrorIs(cause, errBoom)
		events = append(events, "open")
	}
	cfg.OnHalfOpen = func() { events = append(events, "half-open") }
	cfg.OnClose = func() { events = append(events, "close") }

	b, err := NewBreaker[string](Func[string](func(ctx context.Context) (string, error) {
		if fail {
			return "", errBoom
		}
		return "ok", nil
	}), cfg)
	s.Require().NoError(err)

	_, _ = b.Call(context.Background())
	s.clock.Advance(30 * time.Second)
	b.State()
	fail = false
	_, _ = b.Call(context.Background())

	s.Equal([]string{"open", "half-open", "close"}, events)
}

func (s *BreakerSuite) TestClose_PermanentRejection() {
	b, err := NewBreaker[string](Func[string](func(ctx context.Context) (string, error) {
		return "ok", nil
	}), s.config())
	s.Require().NoError(err)

	s.Require().NoError(b.Close())

	_, err = b.Call(context.Background())
	s.Require().True(IsDisposed(err))
	s.Equal(StateOpen, b.State())

	// Idempotent: a second close leaves the same terminal condition.
	s.Require().NoError(b.Close())
	_, err = b.Call(context.Background())
	s.Require().True(IsDisposed(err))
}

func (s *BreakerSuite) TestCloseWithReason() {
	b, err := NewBreaker[string](Func[string](func(ctx context.Context) (string, error) {
		return "ok", nil
	}), s.config())
	s.Require().NoError(err)

	s.Require().NoError(b.CloseWithReason("shutting down"))

	_, err = b.Call(context.Background())
	var disposed *DisposedError
	s.Require().ErrorAs(err, &disposed)
	s.Equal("shutting down", disposed.Reason)
}

// An in-flight call settling after disposal must not touch accounting.
func (s *BreakerSuite) TestClose_InFlightOutcomeIgnored() {
	started := make(chan struct{})
	release := make(chan struct{})

	b, err := NewBreaker[string](Func[string](func(ctx context.Context) (string, error) {
		close(started)
		<-release
		return "", errBoom
	}), s.config())
	s.Require().NoError(err)

	results := make(chan error, 1)
	go func() {
		_, err := b.Call(context.Background())
		results <- err
	}()

	<-started
	s.Require().NoError(b.Close())
	close(release)

	// The operation's own error is still delivered to its caller.
	s.Require().ErrorIs(<-results, errBoom)
	s.Zero(b.FailureRate())
}

func (s *BreakerSuite) TestClose_CascadesToInnerCloser() {
	inner := &closableOp{}
	b, err := NewBreaker[string](inner, s.config())
	s.Require().NoError(err)

	s.Require().NoError(b.Close())
	s.Equal(1, inner.closed)
}

// Concurrent closed-state traffic: many callers, no lost settlements.
func (s *BreakerSuite) TestConcurrentCallsWhileClosed() {
	cfg := s.config()
	cfg.ErrorThreshold = 1 // never opens; exercising accounting only
	cfg.MinSamples = 1

	var invocations atomic.Int64
	b, err := NewBreaker[string](Func[string](func(ctx context.Context) (string, error) {
		invocations.Add(1)
		return "ok", nil
	}), cfg)
	s.Require().NoError(err)

	var g errgroup.Group
	for i := 0; i < 50; i++ {
		g.Go(func() error {
			_, err := b.Call(context.Background())
			return err
		})
	}
	s.Require().NoError(g.Wait())
	s.Equal(int64(50), invocations.Load())
	s.Zero(b.FailureRate())
}

// closableOp records cascaded disposal.
type closableOp struct {
	closed int
}

func (c *closableOp) Call(ctx context.Context) (string, error) {
	return "ok", nil
}

func (c *closableOp) Close() error {
	c.closed++
	return nil
}
