package bridge

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/problem-bridge/internal/debounce"
	"github.com/stemsi/problem-bridge/internal/form"
	"github.com/stemsi/problem-bridge/internal/logger"
	"github.com/stemsi/problem-bridge/internal/model"
)

const (
	DefaultSaveWait   = 2 * time.Second
	DefaultSubmitWait = 4 * time.Second
)

// host receives dispatcher outcomes. Results carry the epoch they were issued
// under and are dropped when it is no longer current.
type host interface {
	current(epoch uint64) bool
	saved(epoch uint64, res model.SaveResult)
	submitted(epoch uint64, res model.SubmitResult)
	failed(epoch uint64, err *Error)
}

// Dispatcher rate-limits boundary events into backend calls. Input events are
// debounced on the trailing edge and saved with the form state at fire time.
// Submit events are debounced on the leading edge, so the first one goes out at
// once and repeats inside the window are dropped.
type Dispatcher struct {
	ctx      context.Context
	backend  Backend
	host     host
	save     *debounce.Trailing
	submit   *debounce.Leading
	spawn    func(func())
	activity *activityLog
	log      zerolog.Logger
}

func newDispatcher(ctx context.Context, b Backend, h host, cfg Config, activity *activityLog, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		ctx:      ctx,
		backend:  b,
		host:     h,
		save:     debounce.NewTrailing(cfg.Clock, cfg.SaveWait),
		submit:   debounce.NewLeading(cfg.Clock, cfg.SubmitWait),
		spawn:    cfg.Go,
		activity: activity,
		log:      log.With().Str("component", "dispatcher").Logger(),
	}
}

var _ Handler = (*Dispatcher)(nil)

// Input schedules a save of t.
func (d *Dispatcher) Input(t *Target) {
	if !d.host.current(t.Epoch) {
		return
	}
	d.save.Trigger(func() {
		d.spawn(func() { d.runSave(t) })
	})
}

// Submit sends t immediately unless a submit window is open. The form is
// harvested before Submit returns; later events must not change what the
// submitted request carries.
func (d *Dispatcher) Submit(t *Target, activated *form.Control) {
	if !d.host.current(t.Epoch) {
		return
	}
	ran := d.submit.Trigger(func() {
		entries, berr := d.harvestSubmit(t, activated)
		d.spawn(func() { d.runSubmit(t, activated, entries, berr) })
	})
	if !ran {
		d.log.Debug().Int("problem_id", t.Context.ProblemID).Msg("Submit suppressed inside debounce window")
	}
}

// SavePending reports whether a save is waiting for input to go quiet.
func (d *Dispatcher) SavePending() bool { return d.save.Pending() }

// CancelSave drops a scheduled save.
func (d *Dispatcher) CancelSave() { d.save.Cancel() }

// Reset drops scheduled saves and closes the submit window.
func (d *Dispatcher) Reset() {
	d.save.Cancel()
	d.submit.Cancel()
}

func (d *Dispatcher) runSave(t *Target) {
	sc := t.Context
	if !d.host.current(t.Epoch) {
		d.log.Debug().Int("problem_id", sc.ProblemID).Msg("Dropping save for a previous context")
		return
	}
	if sc.GradeID == nil {
		logger.ShouldNotHappen(d.log, "save without grade id").
			Int("problem_id", sc.ProblemID).
			Msg("Cannot save problem state")
		d.fail(t, model.ActivitySave, newError(KindInternal, ErrNoGrade))
		return
	}

	snap, err := t.Snapshot(d.ctx)
	if err != nil {
		d.fail(t, model.ActivitySave, newError(KindSaveFailure, err))
		return
	}

	res, err := d.backend.SaveState(d.ctx, *sc.GradeID, snap)
	if err != nil {
		d.fail(t, model.ActivitySave, newError(KindSaveFailure, err))
		return
	}

	d.log.Debug().
		Int("problem_id", sc.ProblemID).
		Int("grade_id", *sc.GradeID).
		Int("updates_count", res.UpdatesCount).
		Msg("Problem state saved")

	count := res.UpdatesCount
	d.activity.record(model.Activity{
		ProblemID:    sc.ProblemID,
		GradeID:      sc.GradeID,
		Kind:         model.ActivitySave,
		OK:           true,
		UpdatesCount: &count,
	})
	d.host.saved(t.Epoch, res)
}

// harvestSubmit checks the submit target and encodes the form as it is now.
func (d *Dispatcher) harvestSubmit(t *Target, activated *form.Control) (form.Entries, *Error) {
	sc := t.Context
	if activated == nil {
		d.log.Error().Int("problem_id", sc.ProblemID).Msg("Could not find the control that submitted the form")
		return nil, newError(KindMalformedSubmitTarget, ErrNoActivatedControl)
	}
	if t.form.Action() == "" {
		d.log.Error().Int("problem_id", sc.ProblemID).Msg("Could not find the submit URL")
		return nil, newError(KindMalformedSubmitTarget, ErrNoAction)
	}

	entries, err := t.SubmitEntries(d.ctx, *activated)
	if err != nil {
		return nil, newError(KindSubmitFailure, err)
	}
	return entries, nil
}

func (d *Dispatcher) runSubmit(t *Target, activated *form.Control, entries form.Entries, berr *Error) {
	sc := t.Context
	if !d.host.current(t.Epoch) {
		d.log.Debug().Int("problem_id", sc.ProblemID).Msg("Dropping submit for a previous context")
		return
	}
	if berr != nil {
		d.fail(t, model.ActivitySubmit, berr)
		return
	}

	res, err := d.backend.Submit(d.ctx, sc.ProblemID, entries)
	if err != nil {
		d.fail(t, model.ActivitySubmit, newError(KindSubmitFailure, err))
		return
	}

	d.log.Info().
		Int("problem_id", sc.ProblemID).
		Str("control", activated.Name).
		Int("num_attempts", res.StudentGrade.NumAttempts).
		Msg("Problem submitted")

	d.activity.record(model.Activity{
		ProblemID: sc.ProblemID,
		GradeID:   sc.GradeID,
		Kind:      model.ActivitySubmit,
		OK:        true,
	})
	d.host.submitted(t.Epoch, res)
}

func (d *Dispatcher) fail(t *Target, kind model.ActivityKind, err *Error) {
	d.log.Warn().Err(err).
		Int("problem_id", t.Context.ProblemID).
		Str("kind", string(err.Kind)).
		Msg("Bridge dispatch failed")

	d.activity.record(model.Activity{
		ProblemID: t.Context.ProblemID,
		GradeID:   t.Context.GradeID,
		Kind:      kind,
		ErrorKind: string(err.Kind),
	})
	d.host.failed(t.Epoch, err)
}
