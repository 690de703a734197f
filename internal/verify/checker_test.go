// internal/verify/checker_test.go
//
// Unit-tests for the debounced uniqueness checker.
//
// Context
// -------
// Timers are replaced by a manual fake so debounce behaviour is asserted
// without sleeping.  Lookups are fakes that either answer at once or block on
// a per-value channel, letting the tests deliver responses out of order.
//
// Run: go test ./internal/verify -v

package verify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"
)

// -----------------------------------------------------------------------------
// Fakes
// -----------------------------------------------------------------------------

type fakeTimer struct {
	mu        *sync.Mutex
	f         func()
	fired     bool
	cancelled bool
}

func (t *fakeTimer) Cancel() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.fired || t.cancelled {
		return false
	}
	t.cancelled = true
	return true
}

type fakeTimers struct {
	mu     sync.Mutex
	timers []*fakeTimer
	wg     sync.WaitGroup
}

func (ft *fakeTimers) after(_ time.Duration, f func()) Timer {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	t := &fakeTimer{mu: &ft.mu, f: f}
	ft.timers = append(ft.timers, t)
	return t
}

// live counts timers neither fired nor cancelled.
func (ft *fakeTimers) live() int {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	n := 0
	for _, t := range ft.timers {
		if !t.fired && !t.cancelled {
			n++
		}
	}
	return n
}

// fireAll runs every live timer on its own goroutine.
func (ft *fakeTimers) fireAll() {
	ft.mu.Lock()
	var due []*fakeTimer
	for _, t := range ft.timers {
		if !t.fired && !t.cancelled {
			t.fired = true
			due = append(due, t)
		}
	}
	ft.mu.Unlock()
	for _, t := range due {
		ft.wg.Add(1)
		go func(f func()) {
			defer ft.wg.Done()
			f()
		}(t.f)
	}
}

type recordingLookup struct {
	mu     sync.Mutex
	calls  []string
	exists map[string]bool
	err    error
}

func (l *recordingLookup) Exists(_ context.Context, _ string, value string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, value)
	return l.exists[value], l.err
}

func (l *recordingLookup) Calls() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

type statusErr int

func (s statusErr) Error() string   { return fmt.Sprintf("http %d", int(s)) }
func (s statusErr) StatusCode() int { return int(s) }

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(time.Millisecond)
	}
}

// -----------------------------------------------------------------------------
// Tests
// -----------------------------------------------------------------------------

func TestChecker_DebounceCollapsesBurst(t *testing.T) {
	ft := &fakeTimers{}
	lk := &recordingLookup{}
	c := New(lk, Options{AfterFunc: ft.after})
	defer c.Close()

	for _, v := range []string{"a", "ad", "ada", "ada@", "ada@example.com"} {
		if res := c.Schedule(Request{Field: "email", Value: v}); res.Status != StatusPending {
			t.Fatalf("Schedule(%q) status = %v, want pending", v, res.Status)
		}
	}
	if n := ft.live(); n != 1 {
		t.Fatalf("live timers = %d, want 1", n)
	}
	if !c.Pending() {
		t.Fatal("Pending() = false while verifying")
	}

	ft.fireAll()
	ft.wg.Wait()

	calls := lk.Calls()
	if len(calls) != 1 || calls[0] != "ada@example.com" {
		t.Fatalf("lookup calls = %v, want exactly the final value", calls)
	}
	if got := c.Status("email"); got.Status != StatusAvailable {
		t.Fatalf("status = %v, want available", got.Status)
	}
}

func TestChecker_StaleResponseSuppressed(t *testing.T) {
	ft := &fakeTimers{}
	release := map[string]chan struct{}{"x": make(chan struct{}), "y": make(chan struct{})}
	started := make(chan string, 2)
	lk := LookupFunc(func(ctx context.Context, _ string, value string) (bool, error) {
		started <- value
		<-release[value]
		return value == "x", nil // x would read as taken, y as available
	})
	c := New(lk, Options{AfterFunc: ft.after})
	defer c.Close()

	c.Schedule(Request{Field: "email", Value: "x"})
	ft.fireAll()
	if v := <-started; v != "x" {
		t.Fatalf("first lookup = %q", v)
	}

	c.Schedule(Request{Field: "email", Value: "y"})
	ft.fireAll()
	if v := <-started; v != "y" {
		t.Fatalf("second lookup = %q", v)
	}

	close(release["y"])
	waitFor(t, func() bool { return c.Status("email").Status == StatusAvailable })

	close(release["x"]) // older answer arrives last
	ft.wg.Wait()

	got := c.Status("email")
	if got.Status != StatusAvailable || got.Value != "y" {
		t.Fatalf("committed result = %+v, want y/available", got)
	}
}

func TestChecker_ForbiddenValueIsLocalConflict(t *testing.T) {
	ft := &fakeTimers{}
	lk := &recordingLookup{}
	c := New(lk, Options{AfterFunc: ft.after})
	defer c.Close()

	res := c.Schedule(Request{Field: "login_email", Value: " Ada@Example.com", Forbidden: "ada@example.com", Message: "Use another login"})
	if res.Status != StatusTaken || res.Message != "Use another login" || res.Remote {
		t.Fatalf("result = %+v, want local taken", res)
	}
	if ft.live() != 0 || len(lk.Calls()) != 0 {
		t.Fatalf("network or timer used: timers=%d calls=%v", ft.live(), lk.Calls())
	}
}

func TestChecker_UnchangedValueSkipsLookup(t *testing.T) {
	ft := &fakeTimers{}
	lk := &recordingLookup{}
	c := New(lk, Options{AfterFunc: ft.after})
	defer c.Close()

	c.Schedule(Request{Field: "email", Value: "new@example.com", Original: "old@example.com"})
	res := c.Schedule(Request{Field: "email", Value: "old@example.com", Original: "old@example.com"})
	if res.Status != StatusAvailable {
		t.Fatalf("status = %v, want available", res.Status)
	}
	if ft.live() != 0 {
		t.Fatalf("earlier timer not cancelled")
	}
	ft.fireAll()
	ft.wg.Wait()
	if len(lk.Calls()) != 0 {
		t.Fatalf("lookup called: %v", lk.Calls())
	}
}

func TestChecker_Interpret(t *testing.T) {
	cases := []struct {
		name   string
		exists bool
		err    error
		want   Status
	}{
		{"exists", true, nil, StatusTaken},
		{"free", false, nil, StatusAvailable},
		{"409", false, statusErr(http.StatusConflict), StatusTaken},
		{"400", false, statusErr(http.StatusBadRequest), StatusTaken},
		{"404", false, fmt.Errorf("wrapped: %w", statusErr(http.StatusNotFound)), StatusAvailable},
		{"500", false, statusErr(http.StatusInternalServerError), StatusError},
		{"transport", false, errors.New("connection refused"), StatusError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := interpret(Request{Field: "email", Value: "v"}, tc.exists, tc.err)
			if got.Status != tc.want {
				t.Fatalf("status = %v, want %v", got.Status, tc.want)
			}
			if got.Status == StatusError && got.Message != MsgRetry {
				t.Fatalf("error message = %q", got.Message)
			}
		})
	}
}

func TestChecker_TimeoutReportsError(t *testing.T) {
	lk := LookupFunc(func(ctx context.Context, _, _ string) (bool, error) {
		<-ctx.Done()
		return false, ctx.Err()
	})
	c := New(lk, Options{Timeout: 20 * time.Millisecond})
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	res, err := c.Ensure(ctx, Request{Field: "email", Value: "slow@example.com"})
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if res.Status != StatusError {
		t.Fatalf("status = %v, want error", res.Status)
	}
}

func TestChecker_EnsureFiresPendingTimerAndReuses(t *testing.T) {
	ft := &fakeTimers{}
	lk := &recordingLookup{exists: map[string]bool{"dup@example.com": true}}
	c := New(lk, Options{AfterFunc: ft.after})
	defer c.Close()

	req := Request{Field: "email", Value: "dup@example.com"}
	c.Schedule(req)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	res, err := c.Ensure(ctx, req)
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if res.Status != StatusTaken || res.Message != MsgTaken {
		t.Fatalf("result = %+v", res)
	}
	if _, err := c.Ensure(ctx, req); err != nil {
		t.Fatalf("second Ensure: %v", err)
	}
	if n := len(lk.Calls()); n != 1 {
		t.Fatalf("lookup calls = %d, want 1 (settled result reused)", n)
	}
}

func TestChecker_EnsureRetriesAfterError(t *testing.T) {
	lk := &recordingLookup{err: statusErr(http.StatusBadGateway)}
	c := New(lk, Options{})
	defer c.Close()

	ctx := context.Background()
	req := Request{Field: "email", Value: "a@example.com"}
	if res, _ := c.Ensure(ctx, req); res.Status != StatusError {
		t.Fatalf("first status = %v", res.Status)
	}
	lk.mu.Lock()
	lk.err = nil
	lk.mu.Unlock()
	if res, _ := c.Ensure(ctx, req); res.Status != StatusAvailable {
		t.Fatalf("retry status = %v", res.Status)
	}
	if n := len(lk.Calls()); n != 2 {
		t.Fatalf("lookup calls = %d, want 2", n)
	}
}

func TestChecker_ForgetDropsInFlight(t *testing.T) {
	ft := &fakeTimers{}
	release := make(chan struct{})
	lk := LookupFunc(func(context.Context, string, string) (bool, error) {
		<-release
		return true, nil
	})
	c := New(lk, Options{AfterFunc: ft.after})
	defer c.Close()

	var mu sync.Mutex
	var seen []Status
	c.OnResult(func(r Result) {
		mu.Lock()
		seen = append(seen, r.Status)
		mu.Unlock()
	})

	c.Schedule(Request{Field: "email", Value: "gone@example.com"})
	ft.fireAll()
	c.Forget("email")
	close(release)
	ft.wg.Wait()

	if got := c.Status("email"); got.Status != StatusUnknown {
		t.Fatalf("status after Forget = %v", got.Status)
	}
	mu.Lock()
	defer mu.Unlock()
	for _, s := range seen {
		if s == StatusTaken {
			t.Fatalf("listener saw a result committed after Forget: %v", seen)
		}
	}
}

func TestChecker_WaitUnknownField(t *testing.T) {
	c := New(&recordingLookup{}, Options{})
	defer c.Close()
	res, err := c.Wait(context.Background(), "nope")
	if err != nil || res.Status != StatusUnknown {
		t.Fatalf("Wait = %+v, %v", res, err)
	}
}

func TestChecker_EnsureIgnoresResultForOtherValue(t *testing.T) {
	ft := &fakeTimers{}
	gate := make(chan struct{})
	started := make(chan string, 4)
	lk := LookupFunc(func(_ context.Context, _ string, value string) (bool, error) {
		started <- value
		if value == "a@x.com" {
			<-gate
			return true, nil
		}
		return false, nil
	})
	c := New(lk, Options{AfterFunc: ft.after})
	defer c.Close()

	type outcome struct {
		res Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		res, err := c.Ensure(ctx, Request{Field: "email", Value: "a@x.com"})
		done <- outcome{res, err}
	}()
	if v := <-started; v != "a@x.com" {
		t.Fatalf("first lookup = %q", v)
	}

	c.Schedule(Request{Field: "email", Value: "b@x.com"})
	ft.fireAll()
	waitFor(t, func() bool {
		r := c.Status("email")
		return r.Value == "b@x.com" && r.Status == StatusAvailable
	})
	close(gate)

	got := <-done
	if got.err != nil {
		t.Fatalf("Ensure: %v", got.err)
	}
	if got.res.Value != "a@x.com" || got.res.Status != StatusTaken {
		t.Fatalf("Ensure result = %+v, want a@x.com/taken", got.res)
	}
}
