// internal/verify/checker.go
//
// CRM forms – debounced uniqueness checker.
//
// Context
//   Fields such as a lead email or a contact login email must not already
//   exist in the backend.  Checking on every keystroke would flood the API
//   and, worse, let an old response overwrite a newer one.  The Checker
//   collapses bursts of input into one lookup per pause and only ever
//   commits the result of the most recently issued check for a field.
//
// Workflow
//   •  Schedule resolves trivial cases locally (unchanged value, forbidden
//      value), otherwise cancels the field's pending timer, bumps the field
//      sequence, marks it Pending, and arms a new debounce timer.
//   •  When the timer fires, one Lookup runs under an explicit timeout.  The
//      result is committed only if its sequence is still current.
//   •  Wait blocks until the current check settles.  Ensure is the submit
//      path: reuse a settled result for the same value, or check right now.
//   •  Listeners run after every committed change, outside the lock.  They
//      may observe changes out of order and should re-read Status.
//
// Notes
//   •  “Cancellation” is logical suppression.  A superseded request may still
//      complete; its answer is dropped and counted.
//   •  Two spaces after periods, Oxford comma.
//
//------------------------------------------------------------------------------

package verify

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/yanizio/adept-crm/internal/metrics"
)

// -----------------------------------------------------------------------------
// Types
// -----------------------------------------------------------------------------

// Status is the state of a field's uniqueness check.
type Status int

const (
	StatusUnknown   Status = iota // never checked, or check failed to complete
	StatusPending                 // verifying; submission must wait
	StatusAvailable               // value may be used
	StatusTaken                   // value conflicts with an existing record
	StatusError                   // lookup failed; retry
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusAvailable:
		return "available"
	case StatusTaken:
		return "taken"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Default messages surfaced on the field.
const (
	MsgVerifying = "Verifying availability…"
	MsgTaken     = "This email is already in use. Please use a different email."
	MsgRetry     = "Could not verify availability. Please try again."
)

// Request describes one check.
type Request struct {
	Field     string
	Value     string
	Original  string // pre-edit value; equal means nothing to check
	Forbidden string // value the field may never take, e.g. the contact email
	Message   string // conflict message; MsgTaken when empty
}

// Result is the committed outcome of the field's latest check.
type Result struct {
	Field   string
	Value   string
	Status  Status
	Message string // user-facing text for Pending, Taken, and Error
	Seq     uint64
	Remote  bool // true when the outcome came from a Lookup
}

// Lookup is the remote read the checker performs.
type Lookup interface {
	Exists(ctx context.Context, field, value string) (bool, error)
}

// LookupFunc adapts a function to Lookup.
type LookupFunc func(ctx context.Context, field, value string) (bool, error)

// Exists implements Lookup.
func (f LookupFunc) Exists(ctx context.Context, field, value string) (bool, error) {
	return f(ctx, field, value)
}

// Options tunes a Checker.  Zero fields take defaults.
type Options struct {
	Delay     time.Duration // debounce window, default 800ms
	Timeout   time.Duration // per-lookup timeout, default 5s
	AfterFunc AfterFunc     // timer source, default StdAfterFunc
	Logger    *zap.SugaredLogger
}

const (
	DefaultDelay   = 800 * time.Millisecond
	DefaultTimeout = 5 * time.Second
)

// -----------------------------------------------------------------------------
// Checker
// -----------------------------------------------------------------------------

// Checker is safe for concurrent use.  Construct with New; Close disposes
// every timer.
type Checker struct {
	lookup  Lookup
	delay   time.Duration
	timeout time.Duration
	after   AfterFunc
	log     *zap.SugaredLogger

	base   context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	slots     map[string]*slot
	listeners []func(Result)
	closed    bool
}

type slot struct {
	seq     uint64
	req     Request
	timer   Timer
	result  Result
	settled chan struct{}
	done    bool
}

// New returns a Checker backed by lookup.
func New(lookup Lookup, opts Options) *Checker {
	if opts.Delay <= 0 {
		opts.Delay = DefaultDelay
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.AfterFunc == nil {
		opts.AfterFunc = StdAfterFunc
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}
	base, cancel := context.WithCancel(context.Background())
	return &Checker{
		lookup:  lookup,
		delay:   opts.Delay,
		timeout: opts.Timeout,
		after:   opts.AfterFunc,
		log:     opts.Logger,
		base:    base,
		cancel:  cancel,
		slots:   make(map[string]*slot),
	}
}

// OnResult registers fn to run after every committed status change.
func (c *Checker) OnResult(fn func(Result)) {
	c.mu.Lock()
	c.listeners = append(c.listeners, fn)
	c.mu.Unlock()
}

// Schedule starts a debounced check and returns the field's new status,
// Pending unless the request was resolved locally.
func (c *Checker) Schedule(req Request) Result {
	return c.start(req, c.delay)
}

// Status returns the field's latest committed result.
func (c *Checker) Status(field string) Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.slots[field]; ok {
		return s.result
	}
	return Result{Field: field, Status: StatusUnknown}
}

// Pending reports whether any field is still verifying.
func (c *Checker) Pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range c.slots {
		if s.result.Status == StatusPending {
			return true
		}
	}
	return false
}

// Wait blocks until the field's current check settles or ctx ends.  A field
// that was never scheduled returns StatusUnknown immediately.
func (c *Checker) Wait(ctx context.Context, field string) (Result, error) {
	for {
		c.mu.Lock()
		s, ok := c.slots[field]
		if !ok {
			c.mu.Unlock()
			return Result{Field: field, Status: StatusUnknown}, nil
		}
		if s.done {
			res := s.result
			c.mu.Unlock()
			return res, nil
		}
		ch, res := s.settled, s.result
		c.mu.Unlock()

		select {
		case <-ch:
			// settled or superseded; re-read
		case <-ctx.Done():
			return res, ctx.Err()
		}
	}
}

// Ensure returns a settled result for req.Value.  A pending or settled check
// for the same request is reused, except a failed one, which is retried.
// Pending debounce timers fire immediately.  When a check for another value
// supersedes it meanwhile, req is checked again.
func (c *Checker) Ensure(ctx context.Context, req Request) (Result, error) {
	for {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return Result{Field: req.Field, Value: req.Value, Status: StatusUnknown}, nil
		}
		s, ok := c.slots[req.Field]
		reuse := ok && s.req.Value == req.Value && s.req.Original == req.Original &&
			s.req.Forbidden == req.Forbidden && s.result.Status != StatusError &&
			s.result.Status != StatusUnknown
		if reuse && s.timer != nil && s.timer.Cancel() {
			s.timer = nil
			seq, r := s.seq, s.req
			go c.fire(r, seq)
		}
		c.mu.Unlock()

		if !reuse {
			c.start(req, 0)
		}
		res, err := c.Wait(ctx, req.Field)
		if err != nil {
			return res, err
		}
		if res.Field == req.Field && res.Value == req.Value && res.Status != StatusPending {
			return res, nil
		}
		c.log.Debugw("uniqueness check superseded during ensure", "field", req.Field)
	}
}

// Forget cancels and drops the field's check.  In-flight answers are
// discarded on arrival.
func (c *Checker) Forget(field string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.slots[field]; ok {
		c.retire(s)
		delete(c.slots, field)
	}
}

// Close cancels every timer and in-flight lookup.  Later calls to Schedule
// are ignored.
func (c *Checker) Close() {
	c.mu.Lock()
	for field, s := range c.slots {
		c.retire(s)
		delete(c.slots, field)
	}
	c.closed = true
	c.mu.Unlock()
	c.cancel()
}

// -----------------------------------------------------------------------------
// Internals
// -----------------------------------------------------------------------------

func (c *Checker) start(req Request, delay time.Duration) Result {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return Result{Field: req.Field, Value: req.Value, Status: StatusUnknown}
	}

	s, ok := c.slots[req.Field]
	if !ok {
		s = &slot{}
		c.slots[req.Field] = s
	} else {
		c.retire(s)
	}
	s.seq++
	s.req = req
	s.settled = make(chan struct{})
	s.done = false

	if res, local := resolveLocally(req); local {
		res.Seq = s.seq
		c.settle(s, res)
		c.mu.Unlock()
		metrics.UniqueChecksTotal.WithLabelValues("local").Inc()
		c.notify(res)
		return res
	}

	s.result = Result{
		Field:   req.Field,
		Value:   req.Value,
		Status:  StatusPending,
		Message: MsgVerifying,
		Seq:     s.seq,
	}
	seq := s.seq
	if delay <= 0 {
		go c.fire(req, seq)
	} else {
		s.timer = c.after(delay, func() { c.fire(req, seq) })
	}
	res := s.result
	c.mu.Unlock()

	c.notify(res)
	return res
}

// retire cancels s's timer and wakes anyone waiting on the old sequence.
// Caller holds c.mu.
func (c *Checker) retire(s *slot) {
	if s.timer != nil {
		s.timer.Cancel()
		s.timer = nil
	}
	if !s.done && s.settled != nil {
		close(s.settled)
		s.done = true
	}
	s.seq++ // answers for any older sequence are now stale
}

// settle commits res to s.  Caller holds c.mu.
func (c *Checker) settle(s *slot, res Result) {
	s.result = res
	s.timer = nil
	if !s.done {
		close(s.settled)
		s.done = true
	}
}

func (c *Checker) fire(req Request, seq uint64) {
	if !c.current(req.Field, seq) {
		return
	}

	ctx, cancel := context.WithTimeout(c.base, c.timeout)
	exists, err := c.lookup.Exists(ctx, req.Field, req.Value)
	cancel()

	res := interpret(req, exists, err)
	res.Seq = seq
	res.Remote = true

	c.mu.Lock()
	s, ok := c.slots[req.Field]
	if !ok || s.seq != seq {
		c.mu.Unlock()
		metrics.UniqueStaleTotal.Inc()
		c.log.Debugw("stale uniqueness result dropped",
			"field", req.Field, "seq", seq, "status", res.Status.String())
		return
	}
	c.settle(s, res)
	c.mu.Unlock()

	metrics.UniqueChecksTotal.WithLabelValues(res.Status.String()).Inc()
	if err != nil && res.Status == StatusError {
		c.log.Warnw("uniqueness lookup failed", "field", req.Field, "error", err)
	}
	c.notify(res)
}

func (c *Checker) current(field string, seq uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.slots[field]
	return ok && s.seq == seq
}

func (c *Checker) notify(res Result) {
	c.mu.Lock()
	ls := slices.Clone(c.listeners)
	c.mu.Unlock()
	for _, fn := range ls {
		fn(res)
	}
}

// resolveLocally answers requests that need no network round trip.
func resolveLocally(req Request) (Result, bool) {
	val := strings.TrimSpace(req.Value)
	base := Result{Field: req.Field, Value: req.Value}

	if val == strings.TrimSpace(req.Original) && req.Original != "" {
		base.Status = StatusAvailable
		return base, true
	}
	if req.Forbidden != "" && strings.EqualFold(val, strings.TrimSpace(req.Forbidden)) {
		base.Status = StatusTaken
		base.Message = conflictMessage(req)
		return base, true
	}
	if val == "" {
		// Nothing to look up; field rules own emptiness.
		base.Status = StatusUnknown
		return base, true
	}
	return base, false
}

// statusCoder is implemented by boundary errors carrying an HTTP status.
type statusCoder interface{ StatusCode() int }

// interpret maps a lookup outcome to a status.  409 and 400 mean taken, 404
// means available, anything else is an error to retry.
func interpret(req Request, exists bool, err error) Result {
	res := Result{Field: req.Field, Value: req.Value}
	if err == nil {
		if exists {
			res.Status = StatusTaken
			res.Message = conflictMessage(req)
		} else {
			res.Status = StatusAvailable
		}
		return res
	}

	var sc statusCoder
	if errors.As(err, &sc) {
		switch sc.StatusCode() {
		case http.StatusConflict, http.StatusBadRequest:
			res.Status = StatusTaken
			res.Message = conflictMessage(req)
			return res
		case http.StatusNotFound:
			res.Status = StatusAvailable
			return res
		}
	}
	res.Status = StatusError
	res.Message = MsgRetry
	return res
}

func conflictMessage(req Request) string {
	if req.Message != "" {
		return req.Message
	}
	return MsgTaken
}
