// internal/submit/session.go
//
// CRM forms – submission orchestrator.
//
// Context
//   A Session owns the FormState of one open form and is the only component
//   that writes to the backend.  Hosts feed it input events (Change, Blur,
//   SetToggle) and read back an immutable snapshot.  The uniqueness checker
//   reports asynchronously; its results are folded into the state by a
//   listener that re-reads the checker under the session lock.
//
// Submit pipeline
//   1. Touch every in-scope field so all messages become visible.
//   2. ValidateForm; any error stops here without network I/O.
//   3. Ensure the unique field’s check (reuse or run now).  Taken or
//      unverifiable both stop with a field error.
//   4. Map values to the entity payload.
//   5. Create, or Update when the session edits an existing record.
//   6. Success resets the state.
//   7. Failures are mapped by crmapi.Kind onto fields or a GlobalError.
//
// Notes
//   •  Lock order is session → checker.  Checker calls that may notify
//      (Schedule, Forget, Ensure) run only after the session lock is
//      released.
//   •  A conflict reported by the backend is final; it is never retried.
//
//------------------------------------------------------------------------------

package submit

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/yanizio/adept-crm/internal/crm"
	"github.com/yanizio/adept-crm/internal/crmapi"
	"github.com/yanizio/adept-crm/internal/form"
	"github.com/yanizio/adept-crm/internal/metrics"
	"github.com/yanizio/adept-crm/internal/verify"
)

// Backend is the write boundary.  *crmapi.Client satisfies it.
type Backend interface {
	Create(ctx context.Context, entity string, payload map[string]any) (crmapi.Record, error)
	Update(ctx context.Context, entity, id string, payload map[string]any) (crmapi.Record, error)
}

// Options configures a Session.
type Options struct {
	RecordID string       // non-empty edits an existing record
	Values   form.Values  // initial inputs, e.g. the record being edited
	Toggles  form.Toggles // initial toggles

	// Checker runs uniqueness checks.  It must be dedicated to this session;
	// nil leaves uniqueness to the backend alone.
	Checker *verify.Checker

	// OnChange receives every new snapshot, outside the session lock.
	OnChange func(form.State)

	Logger *zap.SugaredLogger
}

// Session is safe for concurrent use.
type Session struct {
	ent      *crm.Entity
	def      *form.Definition
	backend  Backend
	checker  *verify.Checker
	onChange func(form.State)
	log      *zap.SugaredLogger

	mu         sync.Mutex
	recordID   string
	original   form.Values
	initTog    form.Toggles
	state      form.State
	submitting bool
}

// New opens a session for ent.
func New(ent *crm.Entity, backend Backend, opts Options) *Session {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}
	s := &Session{
		ent:      ent,
		def:      ent.Def,
		backend:  backend,
		checker:  opts.Checker,
		onChange: opts.OnChange,
		log:      opts.Logger.With("entity", ent.Name),
		recordID: opts.RecordID,
		original: opts.Values,
		initTog:  opts.Toggles,
		state:    form.NewState(opts.Values, opts.Toggles),
	}
	if s.checker != nil {
		s.checker.OnResult(s.applyResult)
	}
	return s
}

// -----------------------------------------------------------------------------
// Read side
// -----------------------------------------------------------------------------

// State returns the current snapshot.
func (s *Session) State() form.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Visible returns the messages the host should render.
func (s *Session) Visible() map[string]string { return s.State().Visible() }

// Submitting is true while Submit runs.
func (s *Session) Submitting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.submitting
}

// Verifying is true while the unique field’s check is pending.
func (s *Session) Verifying() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.verifyingLocked()
}

// CanSubmit is false while submitting or verifying.
func (s *Session) CanSubmit() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.submitting && !s.verifyingLocked()
}

func (s *Session) verifyingLocked() bool {
	if s.checker == nil {
		return false
	}
	u, ok := s.def.UniqueInScope(s.state.Toggles())
	return ok && s.checker.Status(u.Field).Status == verify.StatusPending
}

// -----------------------------------------------------------------------------
// Input events
// -----------------------------------------------------------------------------

// Change records a new value.  Fields already touched are re-validated
// together with their cross-field partners; the unique field is re-checked
// after the debounce.
func (s *Session) Change(field, value string) {
	s.mu.Lock()
	st := s.state.WithValue(field, value)
	if fe, ok := st.Error(field); ok && (fe.Source == form.SourceServer || fe.Source == form.SourceAsync) {
		st = st.ClearErrors(field)
	}
	st = s.refresh(st, s.related(field)...)
	s.state = st
	after := s.planCheck(st, field)
	s.mu.Unlock()

	s.emit(st)
	after()
}

// Blur marks field touched and validates it, then re-checks the touched
// fields that share a cross rule with it.
func (s *Session) Blur(field string) {
	s.mu.Lock()
	st := s.state.Touch(field)
	fe, bad := form.ValidateOne(field, st.Values(), s.def, st.Toggles())
	st = settle(st, field, fe, bad)
	var others []string
	for _, f := range s.related(field) {
		if f != field {
			others = append(others, f)
		}
	}
	st = s.refresh(st, others...)
	s.state = st
	s.mu.Unlock()

	s.emit(st)
}

// SetToggle switches a conditional group.  Switching off clears the errors
// of that group only; switching on brings its unique field back into check.
func (s *Session) SetToggle(name string, on bool) {
	s.mu.Lock()
	st := s.state.WithToggle(name, on)
	after := func() {}
	if !on {
		st = st.ClearErrors(s.def.GroupFields(name)...)
		if u := s.def.Unique; u != nil && s.checker != nil && s.def.GroupOf(u.Field) == name {
			field := u.Field
			after = func() { s.checker.Forget(field) }
		}
	} else {
		st = s.refresh(st, s.def.GroupFields(name)...)
		if u := s.def.Unique; u != nil && s.def.GroupOf(u.Field) == name {
			after = s.planCheck(st, u.Field)
		}
	}
	s.state = st
	s.mu.Unlock()

	s.emit(st)
	after()
}

// Reset restores the initial values and drops every message.
func (s *Session) Reset() {
	s.mu.Lock()
	st := form.NewState(s.original, s.initTog)
	s.state = st
	s.mu.Unlock()

	s.emit(st)
	s.forgetUnique()
}

// -----------------------------------------------------------------------------
// Submit
// -----------------------------------------------------------------------------

// Submit runs the pipeline described at the top of this file.
func (s *Session) Submit(ctx context.Context) (crmapi.Record, error) {
	s.mu.Lock()
	if s.submitting {
		s.mu.Unlock()
		metrics.SubmissionsTotal.WithLabelValues(s.ent.Name, "busy").Inc()
		return crmapi.Record{}, ErrBusy
	}
	s.submitting = true

	toggles := s.state.Toggles()
	st := s.state.Touch(s.def.FieldsInScope(toggles)...).WithFormError("")
	errs := form.ValidateForm(st.Values(), s.def, toggles)
	st = st.WithErrors(errs)
	s.state = st
	recordID := s.recordID
	original := s.original
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.submitting = false
		s.mu.Unlock()
	}()
	s.emit(st)

	if len(errs) > 0 {
		metrics.SubmissionsTotal.WithLabelValues(s.ent.Name, "invalid").Inc()
		return crmapi.Record{}, &form.ValidationError{Fields: errs}
	}

	u, hasUnique := s.def.UniqueInScope(toggles)
	if hasUnique && s.checker != nil {
		res, err := s.checker.Ensure(ctx, s.request(st, u, original, recordID))
		if err != nil {
			metrics.SubmissionsTotal.WithLabelValues(s.ent.Name, "aborted").Inc()
			return crmapi.Record{}, fmt.Errorf("submit: verify %s: %w", u.Field, err)
		}
		if res.Status == verify.StatusTaken || res.Status == verify.StatusError {
			fe := form.FieldError{Message: res.Message, Source: form.SourceAsync}
			metrics.SubmissionsTotal.WithLabelValues(s.ent.Name, "conflict").Inc()
			return crmapi.Record{}, s.fieldFailure(form.Errors{u.Field: fe}, "")
		}
	}

	payload := s.ent.Payload(st.Values(), toggles)

	var (
		rec crmapi.Record
		err error
	)
	if recordID != "" {
		rec, err = s.backend.Update(ctx, s.ent.Name, recordID, payload)
	} else {
		rec, err = s.backend.Create(ctx, s.ent.Name, payload)
	}
	if err != nil {
		return crmapi.Record{}, s.fail(err, u, hasUnique)
	}

	s.succeed(st, recordID != "")
	s.log.Infow("record saved", "id", rec.ID, "update", recordID != "")
	return rec, nil
}

// succeed resets the state.  A created record leaves an empty form; an
// updated one becomes the new original.
func (s *Session) succeed(saved form.State, update bool) {
	outcome := "created"
	s.mu.Lock()
	if update {
		outcome = "updated"
		s.original = saved.Values()
		s.initTog = saved.Toggles()
	} else {
		s.original, s.initTog = nil, nil
	}
	st := form.NewState(s.original, s.initTog)
	s.state = st
	s.mu.Unlock()

	metrics.SubmissionsTotal.WithLabelValues(s.ent.Name, outcome).Inc()
	s.emit(st)
	s.forgetUnique()
}

// fail maps a backend error.
func (s *Session) fail(err error, u form.Unique, hasUnique bool) error {
	var ae *crmapi.Error
	if !errors.As(err, &ae) {
		metrics.SubmissionsTotal.WithLabelValues(s.ent.Name, "failed").Inc()
		s.log.Warnw("submit failed", "error", err)
		return &GlobalError{Message: MsgNetwork, Retryable: true, Err: err}
	}

	switch ae.Kind {
	case crmapi.KindConflict:
		metrics.SubmissionsTotal.WithLabelValues(s.ent.Name, "conflict").Inc()
		field := ""
		if hasUnique {
			field = u.Field
		} else if named := s.namedFields(ae.Fields); len(named) > 0 {
			field = named[0]
		}
		if field == "" {
			return s.fieldFailure(nil, ae.Message)
		}
		msg := form.DefaultConflictMessage
		if hasUnique {
			msg = u.ConflictMessage()
		}
		return s.fieldFailure(form.Errors{field: {Message: msg, Source: form.SourceServer}}, "")

	case crmapi.KindValidation:
		metrics.SubmissionsTotal.WithLabelValues(s.ent.Name, "invalid").Inc()
		errs := form.Errors{}
		for _, name := range s.namedFields(ae.Fields) {
			errs[name] = form.FieldError{Message: ae.Fields[name][0], Source: form.SourceServer}
		}
		if len(errs) > 0 {
			return s.fieldFailure(errs, "")
		}
		msg := ae.Message
		if msg == "" || msg == "Bad Request" {
			msg = MsgInvalid
		}
		return s.fieldFailure(nil, msg)

	case crmapi.KindNotFound:
		metrics.SubmissionsTotal.WithLabelValues(s.ent.Name, "not_found").Inc()
		return &GlobalError{Message: MsgNotFound, Err: err}

	case crmapi.KindTransport:
		metrics.SubmissionsTotal.WithLabelValues(s.ent.Name, "failed").Inc()
		s.log.Warnw("submit transport failure", "error", err)
		return &GlobalError{Message: MsgNetwork, Retryable: true, Err: err}

	default:
		metrics.SubmissionsTotal.WithLabelValues(s.ent.Name, "failed").Inc()
		s.log.Errorw("submit server failure", "status", ae.Status, "kind", ae.Kind.String(), "error", err)
		return &GlobalError{Message: MsgServer, Retryable: true, Err: err}
	}
}

// fieldFailure writes errs and the form message into the state and returns
// the matching ValidationError.
func (s *Session) fieldFailure(errs form.Errors, formMsg string) error {
	s.mu.Lock()
	st := s.state
	for name, fe := range errs {
		st = st.Touch(name).WithFieldError(name, fe)
	}
	st = st.WithFormError(formMsg)
	s.state = st
	s.mu.Unlock()

	s.emit(st)
	return &form.ValidationError{Fields: st.Errors(), Form: formMsg}
}

// namedFields returns the declared fields the backend named, sorted.
func (s *Session) namedFields(fields map[string][]string) []string {
	var out []string
	for name, msgs := range fields {
		if s.def.Rules.Has(name) && len(msgs) > 0 && msgs[0] != "" {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// -----------------------------------------------------------------------------
// Uniqueness plumbing
// -----------------------------------------------------------------------------

// applyResult folds a committed check into the state.  The checker is
// re-read so out-of-order notifications settle on the latest result.
func (s *Session) applyResult(verify.Result) {
	s.mu.Lock()
	u, ok := s.def.UniqueInScope(s.state.Toggles())
	if !ok {
		s.mu.Unlock()
		return
	}
	cur := s.checker.Status(u.Field)
	if strings.TrimSpace(cur.Value) != strings.TrimSpace(s.state.Value(u.Field)) {
		s.mu.Unlock()
		return
	}

	st := s.state
	existing, has := st.Error(u.Field)
	switch cur.Status {
	case verify.StatusTaken, verify.StatusError:
		if !has || existing.Source == form.SourceAsync {
			st = st.WithFieldError(u.Field, form.FieldError{Message: cur.Message, Source: form.SourceAsync})
		}
	default:
		if has && existing.Source == form.SourceAsync {
			st = st.ClearErrors(u.Field)
		}
	}
	s.state = st
	s.mu.Unlock()

	s.emit(st)
}

// planCheck decides, under the lock, what the checker should do after a
// change to field.  The returned func runs after the lock is released.
func (s *Session) planCheck(st form.State, field string) func() {
	if s.checker == nil {
		return func() {}
	}
	u, ok := s.def.UniqueInScope(st.Toggles())
	if !ok || (field != u.Field && field != u.Forbidden) {
		return func() {}
	}
	rule, _ := s.def.Rules.Rule(u.Field)
	if form.ValidateField(rule, st.Value(u.Field)) != "" {
		return func() { s.checker.Forget(u.Field) }
	}
	req := s.request(st, u, s.original, s.recordID)
	return func() { s.checker.Schedule(req) }
}

func (s *Session) request(st form.State, u form.Unique, original form.Values, recordID string) verify.Request {
	req := verify.Request{
		Field:   u.Field,
		Value:   st.Value(u.Field),
		Message: u.ConflictMessage(),
	}
	if recordID != "" {
		req.Original = original[u.Field]
	}
	if u.Forbidden != "" {
		req.Forbidden = st.Value(u.Forbidden)
	}
	return req
}

func (s *Session) forgetUnique() {
	if s.checker != nil && s.def.Unique != nil {
		s.checker.Forget(s.def.Unique.Field)
	}
}

// related returns field plus every field sharing a cross rule with it.
func (s *Session) related(field string) []string {
	out := []string{field}
	for _, c := range s.def.Cross {
		fs := c.Fields()
		for _, f := range fs {
			if f == field {
				out = append(out, fs...)
				break
			}
		}
	}
	return out
}

// refresh re-validates the touched names among fields.  Asynchronous and
// server errors are left to their own paths.
func (s *Session) refresh(st form.State, fields ...string) form.State {
	if len(fields) == 0 {
		return st
	}
	errs := form.ValidateForm(st.Values(), s.def, st.Toggles())
	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		if seen[f] || !st.Touched(f) {
			continue
		}
		seen[f] = true
		fe, bad := errs[f]
		st = settle(st, f, fe, bad)
	}
	return st
}

// settle records a rule result for f.  A passing field loses its rule and
// cross-field errors only; server and async errors stay.
func settle(st form.State, f string, fe form.FieldError, bad bool) form.State {
	if bad {
		return st.WithFieldError(f, fe)
	}
	if cur, has := st.Error(f); has && (cur.Source == form.SourceRule || cur.Source == form.SourceCrossField) {
		st = st.ClearErrors(f)
	}
	return st
}

func (s *Session) emit(st form.State) {
	if s.onChange != nil {
		s.onChange(st)
	}
}
