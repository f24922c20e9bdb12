package calculator

import (
	"errors"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"go-chi-calculator/internal/expression"
	"go-chi-calculator/internal/history"
)

// DefaultResetDelay is how long an evaluation error stays on the display.
const DefaultResetDelay = 1200 * time.Millisecond

// ErrUnknownAction is returned by Dispatch for an action kind it does not
// handle.
var ErrUnknownAction = errors.New("unknown action")

// Status is the controller state.
type Status string

const (
	StatusIdle  Status = "idle"
	StatusError Status = "error"
)

// ActionKind names an input the controller accepts.
type ActionKind string

const (
	ActionAppend       ActionKind = "append"
	ActionBackspace    ActionKind = "backspace"
	ActionClear        ActionKind = "clear"
	ActionPercent      ActionKind = "percent"
	ActionEvaluate     ActionKind = "evaluate"
	ActionClearHistory ActionKind = "clear_history"
	ActionRestore      ActionKind = "restore"
)

// Known reports whether Dispatch handles k.
func (k ActionKind) Known() bool {
	switch k {
	case ActionAppend, ActionBackspace, ActionClear, ActionPercent,
		ActionEvaluate, ActionClearHistory, ActionRestore:
		return true
	}
	return false
}

// Action is a single user input. Value is used by ActionAppend, Index by
// ActionRestore.
type Action struct {
	Kind  ActionKind `json:"kind"`
	Value string     `json:"value,omitempty"`
	Index int        `json:"index,omitempty"`
}

// State is everything a calculator session owns.
type State struct {
	Expression string
	Result     *float64
	Status     Status
	Err        error
	History    *history.Buffer
}

// View is the render state handed back to the front end after every action.
type View struct {
	Expression string          `json:"expression"`
	Result     string          `json:"result"`
	Value      *float64        `json:"value,omitempty"`
	Status     Status          `json:"status"`
	ErrorKind  string          `json:"error_kind,omitempty"`
	History    []history.Entry `json:"history"`
}

// Option configures a Controller.
type Option func(*Controller)

// WithResetDelay sets how long an evaluation error is displayed before the
// controller returns to idle.
func WithResetDelay(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.resetDelay = d
		}
	}
}

// WithHistoryLimit bounds the number of history entries kept.
func WithHistoryLimit(n int) Option {
	return func(c *Controller) {
		c.historyLimit = n
	}
}

// WithOnReset registers fn to be called, outside the controller lock, after a
// timed error reset has been applied.
func WithOnReset(fn func(View)) Option {
	return func(c *Controller) {
		c.onReset = fn
	}
}

// Controller turns actions into state transitions. It is safe for concurrent
// use; the timed error reset runs on its own goroutine.
type Controller struct {
	mu    sync.Mutex
	state State

	resetDelay   time.Duration
	historyLimit int
	onReset      func(View)

	// timer is the pending error reset, if any. gen is bumped whenever the
	// pending reset is superseded so a timer that already fired is ignored.
	timer *time.Timer
	gen   uint64
}

// NewController returns an idle controller with an empty expression.
func NewController(opts ...Option) *Controller {
	c := &Controller{
		resetDelay:   DefaultResetDelay,
		historyLimit: history.DefaultLimit,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.state = State{
		Status:  StatusIdle,
		History: history.New(c.historyLimit),
	}
	return c
}

// Dispatch applies a and returns the resulting view. Evaluation failures are
// not returned as errors: they put the controller in StatusError and show up
// in the view. The error return is reserved for actions that cannot be
// applied at all (unknown kind, history index out of range); those leave the
// state and any pending error reset untouched.
func (c *Controller) Dispatch(a Action) (View, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.validateLocked(a); err != nil {
		return c.viewLocked(), err
	}

	c.cancelResetLocked()

	switch a.Kind {
	case ActionAppend:
		c.state.Expression += expression.Normalize(a.Value)

	case ActionPercent:
		c.state.Expression += "%"

	case ActionBackspace:
		if s := c.state.Expression; s != "" {
			_, size := utf8.DecodeLastRuneInString(s)
			c.state.Expression = s[:len(s)-size]
		}

	case ActionClear:
		c.state.Expression = ""
		c.state.Result = nil
		c.state.Status = StatusIdle
		c.state.Err = nil

	case ActionEvaluate:
		c.evaluateLocked()

	case ActionClearHistory:
		c.state.History.Clear()

	case ActionRestore:
		e, _ := c.state.History.Select(a.Index)
		result := e.Result
		c.state.Expression = e.Expression
		c.state.Result = &result
		c.state.Status = StatusIdle
		c.state.Err = nil

	}

	return c.viewLocked(), nil
}

func (c *Controller) validateLocked(a Action) error {
	if !a.Kind.Known() {
		return fmt.Errorf("%w: %q", ErrUnknownAction, a.Kind)
	}
	if a.Kind == ActionRestore {
		_, err := c.state.History.Select(a.Index)
		return err
	}
	return nil
}

// View returns the current render state.
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewLocked()
}

// History returns the stored entries, most recent first.
func (c *Controller) History() []history.Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.History.Entries()
}

// Close cancels any pending error reset.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.gen++
}

func (c *Controller) evaluateLocked() {
	src := c.state.Expression
	if src == "" {
		src = "0"
	}

	v, err := expression.EvaluateFinite(src)
	if err != nil {
		c.state.Result = nil
		c.state.Status = StatusError
		c.state.Err = err
		c.scheduleResetLocked()
		return
	}

	c.state.History.Push(history.Entry{Expression: src, Result: v})
	c.state.Expression = expression.Format(v)
	c.state.Result = &v
	c.state.Status = StatusIdle
	c.state.Err = nil
}

func (c *Controller) scheduleResetLocked() {
	c.gen++
	gen := c.gen
	c.timer = time.AfterFunc(c.resetDelay, func() {
		c.reset(gen)
	})
}

// cancelResetLocked supersedes a pending error reset. The error display is
// settled right away so every new action starts from idle.
func (c *Controller) cancelResetLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.gen++

	if c.state.Status == StatusError {
		c.settleErrorLocked()
	}
}

func (c *Controller) settleErrorLocked() {
	c.state.Status = StatusIdle
	c.state.Result = nil
	c.state.Err = nil
}

func (c *Controller) reset(gen uint64) {
	c.mu.Lock()
	if gen != c.gen || c.state.Status != StatusError {
		c.mu.Unlock()
		return
	}

	c.timer = nil
	c.settleErrorLocked()
	view := c.viewLocked()
	hook := c.onReset
	c.mu.Unlock()

	if hook != nil {
		hook(view)
	}
}

func (c *Controller) viewLocked() View {
	v := View{
		Expression: c.state.Expression,
		Result:     "0",
		Status:     c.state.Status,
		History:    c.state.History.Entries(),
	}
	if v.Expression == "" {
		v.Expression = "0"
	}

	switch {
	case c.state.Status == StatusError:
		v.Result = "Error"
		v.ErrorKind = expression.Kind(c.state.Err)
	case c.state.Result != nil:
		result := *c.state.Result
		v.Result = expression.Format(result)
		v.Value = &result
	}
	return v
}
