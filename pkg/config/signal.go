package config

import (
	"context"
	"reflect"
	"sync"
	"time"
)

// Signal is a cancellation token. Done is closed once the signal fires, after which Err
// reports why. A context.Context is a Signal.
type Signal interface {
	Done() <-chan struct{}
	Err() error
}

// Controller is a Signal that fires when Abort is called or, for timeout signals, when its
// duration elapses.
type Controller struct {
	ctx    context.Context
	cancel context.CancelCauseFunc
}

var _ Signal = (*Controller)(nil)

func NewController() *Controller {
	ctx, cancel := context.WithCancelCause(context.Background())
	return &Controller{ctx: ctx, cancel: cancel}
}

// TimeoutSignal returns a signal that fires with context.DeadlineExceeded after d.
func TimeoutSignal(d time.Duration) *Controller {
	c := NewController()
	if d <= 0 {
		c.Abort(context.DeadlineExceeded)
		return c
	}
	time.AfterFunc(d, func() {
		c.Abort(context.DeadlineExceeded)
	})
	return c
}

// Abort fires the signal. A nil cause is reported as context.Canceled. Only the first
// call has an effect.
func (c *Controller) Abort(cause error) {
	if cause == nil {
		cause = context.Canceled
	}
	c.cancel(cause)
}

func (c *Controller) Done() <-chan struct{} {
	return c.ctx.Done()
}

func (c *Controller) Err() error {
	if c.ctx.Err() == nil {
		return nil
	}
	return context.Cause(c.ctx)
}

// AnySignal returns a signal that fires as soon as any of signals fires, reporting that
// signal's error. Nil and repeated signals are skipped, and combined signals are flattened.
// With a single signal left, it is returned as is.
//
// The combined signal watches nothing until Done is called. BindContext follows each
// member separately and stops following when the run is released.
func AnySignal(signals ...Signal) Signal {
	var live []Signal
	add := func(s Signal) {
		for _, l := range live {
			if sameSignal(l, s) {
				return
			}
		}
		live = append(live, s)
	}
	for _, s := range signals {
		switch s := s.(type) {
		case nil:
		case *anySignal:
			for _, m := range s.signals {
				add(m)
			}
		default:
			add(s)
		}
	}
	switch len(live) {
	case 0:
		return nil
	case 1:
		return live[0]
	}
	return &anySignal{signals: live}
}

type anySignal struct {
	signals []Signal

	once sync.Once
	ctrl *Controller
}

func (a *anySignal) Err() error {
	for _, s := range a.signals {
		if err := s.Err(); err != nil {
			return err
		}
	}
	return nil
}

// Done follows every member until the first one fires.
func (a *anySignal) Done() <-chan struct{} {
	a.once.Do(func() {
		a.ctrl = NewController()
		stops := make([]func(), 0, len(a.signals))
		for _, s := range a.signals {
			stops = append(stops, follow(a.ctrl.ctx, s, a.ctrl.Abort))
		}
		context.AfterFunc(a.ctrl.ctx, func() {
			for _, stop := range stops {
				stop()
			}
		})
	})
	return a.ctrl.Done()
}

// deadlineSignal fires once its deadline has passed. It holds no timer of its own:
// BindContext turns it into a context deadline.
type deadlineSignal struct {
	deadline time.Time

	once sync.Once
	ctrl *Controller
}

func newDeadlineSignal(d time.Duration) *deadlineSignal {
	return &deadlineSignal{deadline: time.Now().Add(d)}
}

func (d *deadlineSignal) Err() error {
	if !time.Now().Before(d.deadline) {
		return context.DeadlineExceeded
	}
	return nil
}

func (d *deadlineSignal) Done() <-chan struct{} {
	d.once.Do(func() {
		d.ctrl = TimeoutSignal(time.Until(d.deadline))
	})
	return d.ctrl.Done()
}

func sameSignal(a, b Signal) bool {
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	return ta == tb && ta.Comparable() && a == b
}

// BindContext derives a context that is cancelled, with the signal's error as cause, when
// sig fires. The returned cancel func must be called to release resources; it also stops
// every watcher BindContext started.
func BindContext(ctx context.Context, sig Signal) (context.Context, context.CancelFunc) {
	var members []Signal
	switch s := sig.(type) {
	case nil:
	case *anySignal:
		members = s.signals
	default:
		members = []Signal{s}
	}

	var cancels []context.CancelFunc
	for _, m := range members {
		if d, ok := m.(*deadlineSignal); ok {
			var cancel context.CancelFunc
			ctx, cancel = context.WithDeadlineCause(ctx, d.deadline, context.DeadlineExceeded)
			cancels = append(cancels, cancel)
		}
	}

	ctx, cancel := context.WithCancelCause(ctx)
	stops := make([]func(), 0, len(members))
	for _, m := range members {
		if _, ok := m.(*deadlineSignal); ok {
			continue
		}
		stops = append(stops, follow(ctx, m, cancel))
	}

	return ctx, func() {
		for _, stop := range stops {
			stop()
		}
		cancel(context.Canceled)
		for _, c := range cancels {
			c()
		}
	}
}

// follow calls fire with sig's error once sig fires, unless ctx is done first.
// The returned func stops following.
func follow(ctx context.Context, sig Signal, fire func(error)) func() {
	select {
	case <-sig.Done():
		fire(signalErr(sig))
		return func() {}
	default:
	}

	if sc, ok := signalContext(sig); ok {
		stop := context.AfterFunc(sc, func() {
			fire(signalErr(sig))
		})
		return func() { stop() }
	}

	done := make(chan struct{})
	go func() {
		select {
		case <-sig.Done():
			fire(signalErr(sig))
		case <-ctx.Done():
		case <-done:
		}
	}()
	return func() { close(done) }
}

func signalContext(sig Signal) (context.Context, bool) {
	switch s := sig.(type) {
	case *Controller:
		return s.ctx, true
	case context.Context:
		return s, true
	}
	return nil, false
}

func signalErr(sig Signal) error {
	if err := sig.Err(); err != nil {
		return err
	}
	return context.Canceled
}
