package calculator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go-chi-calculator/internal/expression"
	"go-chi-calculator/internal/handlers"
	"go-chi-calculator/internal/history"
	"go-chi-calculator/internal/observability"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	// maxBodyBytes caps request bodies; calculator input is a few dozen bytes.
	maxBodyBytes = 64 << 10

	maxBatchSteps = 256
)

var errAmbiguousStep = errors.New("step sets both key and kind")

// tracer is the calculator's dedicated OpenTelemetry tracer.
var tracer = otel.Tracer("calculator")

// Handler serves the calculator API on top of a SessionStore.
type Handler struct {
	sessions *SessionStore
}

// NewHandler returns a Handler backed by sessions.
func NewHandler(sessions *SessionStore) *Handler {
	return &Handler{sessions: sessions}
}

// op bundles the per-request telemetry every handler starts with.
type op struct {
	name      string
	span      trace.Span
	logger    *zap.Logger
	requestID string
}

func startOp(r *http.Request, name string, attrs ...attribute.KeyValue) (*http.Request, *op) {
	ctx := r.Context()
	requestID := observability.RequestIDFromContext(ctx)

	attrs = append(attrs,
		attribute.String("calculator.operation", name),
		attribute.String("request.id", requestID),
	)
	ctx, span := tracer.Start(ctx, "calculator."+name, trace.WithAttributes(attrs...))

	return r.WithContext(ctx), &op{
		name:      name,
		span:      span,
		logger:    observability.LoggerWithTrace(ctx),
		requestID: requestID,
	}
}

func (o *op) fail(w http.ResponseWriter, r *http.Request, msg string, err error, status int) {
	observability.RecordError(r.Context(), o.span, o.logger, errorCounter, o.name, msg, err, status, w)
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func elapsedMillis(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000.0
}

// ---------------------------------------------------------------------------
// Stateless evaluation
// ---------------------------------------------------------------------------

// Evaluate handles POST /calculator/evaluate.
func (h *Handler) Evaluate(w http.ResponseWriter, r *http.Request) {
	r, o := startOp(r, "evaluate")
	defer o.span.End()
	ctx := r.Context()

	var req EvaluateRequest
	if err := decodeBody(w, r, &req); err != nil {
		o.fail(w, r, "invalid request body", err, http.StatusBadRequest)
		return
	}

	o.span.SetAttributes(attribute.String("calculator.expression", req.Expression))

	start := time.Now()
	result, err := expression.EvaluateFinite(req.Expression)
	elapsed := elapsedMillis(start)

	if err != nil {
		kind := expression.Kind(err)

		o.span.RecordError(err)
		o.span.SetStatus(codes.Error, kind)

		errorCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("operation", o.name),
			attribute.String("kind", kind),
		))

		o.logger.Warn("expression rejected",
			zap.String("operation", o.name),
			zap.String("expression", req.Expression),
			zap.String("kind", kind),
			zap.Error(err),
			zap.String("request_id", o.requestID),
		)

		handlers.WriteJSON(w, http.StatusUnprocessableEntity, EvaluateError{
			Error:      err.Error(),
			Kind:       kind,
			Expression: req.Expression,
		})
		return
	}

	attrs := metric.WithAttributes(attribute.String("operation", o.name))
	opsCounter.Add(ctx, 1, attrs)
	opsHistogram.Record(ctx, elapsed, attrs)
	resultGauge.Record(ctx, result, attrs)

	o.span.AddEvent("evaluation.complete", trace.WithAttributes(
		attribute.Float64("result", result),
		attribute.Float64("duration_ms", elapsed),
	))
	o.span.SetAttributes(attribute.Float64("calculator.result", result))
	o.span.SetStatus(codes.Ok, "")

	o.logger.Info("expression evaluated",
		zap.String("operation", o.name),
		zap.String("expression", req.Expression),
		zap.Float64("result", result),
		zap.String("request_id", o.requestID),
		zap.Float64("duration_ms", elapsed),
	)

	handlers.WriteJSON(w, http.StatusOK, EvaluateResponse{
		Expression: req.Expression,
		Result:     result,
		Display:    expression.Format(result),
	})
}

// ---------------------------------------------------------------------------
// Session lifecycle
// ---------------------------------------------------------------------------

// CreateSession handles POST /calculator/sessions.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	r, o := startOp(r, "session.create")
	defer o.span.End()

	session, err := h.sessions.Create()
	if err != nil {
		o.fail(w, r, "session limit reached", err, http.StatusServiceUnavailable)
		return
	}

	o.span.SetAttributes(attribute.String("calculator.session_id", session.ID))
	o.span.SetStatus(codes.Ok, "")
	opsCounter.Add(r.Context(), 1, metric.WithAttributes(attribute.String("operation", o.name)))

	o.logger.Info("session created",
		zap.String("session_id", session.ID),
		zap.Int("active_sessions", h.sessions.Len()),
		zap.String("request_id", o.requestID),
	)

	handlers.WriteJSON(w, http.StatusCreated, SessionResponse{SessionID: session.ID, View: session.View()})
}

// GetSession handles GET /calculator/sessions/{id}.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	r, o := startOp(r, "session.get")
	defer o.span.End()

	session, ok := h.lookup(w, r, o)
	if !ok {
		return
	}

	o.span.SetStatus(codes.Ok, "")
	handlers.WriteJSON(w, http.StatusOK, SessionResponse{SessionID: session.ID, View: session.View()})
}

// DeleteSession handles DELETE /calculator/sessions/{id}.
func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	r, o := startOp(r, "session.delete")
	defer o.span.End()

	id := chi.URLParam(r, "id")
	o.span.SetAttributes(attribute.String("calculator.session_id", id))

	if err := h.sessions.Delete(id); err != nil {
		o.fail(w, r, "session not found", err, http.StatusNotFound)
		return
	}

	o.span.SetStatus(codes.Ok, "")
	opsCounter.Add(r.Context(), 1, metric.WithAttributes(attribute.String("operation", o.name)))

	o.logger.Info("session deleted",
		zap.String("session_id", id),
		zap.Int("active_sessions", h.sessions.Len()),
		zap.String("request_id", o.requestID),
	)

	w.WriteHeader(http.StatusNoContent)
}

// History handles GET /calculator/sessions/{id}/history.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	r, o := startOp(r, "history.list")
	defer o.span.End()

	session, ok := h.lookup(w, r, o)
	if !ok {
		return
	}

	entries := session.History()
	o.span.SetAttributes(attribute.Int("calculator.history.len", len(entries)))
	o.span.SetStatus(codes.Ok, "")

	handlers.WriteJSON(w, http.StatusOK, HistoryResponse{SessionID: session.ID, History: entries})
}

func (h *Handler) lookup(w http.ResponseWriter, r *http.Request, o *op) (*Session, bool) {
	id := chi.URLParam(r, "id")
	o.span.SetAttributes(attribute.String("calculator.session_id", id))

	session, err := h.sessions.Get(id)
	if err != nil {
		o.fail(w, r, "session not found", fmt.Errorf("%w: %s", err, id), http.StatusNotFound)
		return nil, false
	}
	return session, true
}

// ---------------------------------------------------------------------------
// Session input. Every route below funnels into applyAction.
// ---------------------------------------------------------------------------

// Dispatch handles POST /calculator/sessions/{id}/actions.
func (h *Handler) Dispatch(w http.ResponseWriter, r *http.Request) {
	h.applyAction(w, r, "action", func(r *http.Request) (Action, bool, error) {
		var a Action
		if err := decodeBody(w, r, &a); err != nil {
			return Action{}, false, err
		}
		return a, true, nil
	})
}

// Key handles POST /calculator/sessions/{id}/keys. Keys without a binding
// leave the session untouched.
func (h *Handler) Key(w http.ResponseWriter, r *http.Request) {
	h.applyAction(w, r, "key", func(r *http.Request) (Action, bool, error) {
		var req KeyRequest
		if err := decodeBody(w, r, &req); err != nil {
			return Action{}, false, err
		}
		a, ok := KeyAction(req.Key)
		return a, ok, nil
	})
}

// ClearHistory handles DELETE /calculator/sessions/{id}/history.
func (h *Handler) ClearHistory(w http.ResponseWriter, r *http.Request) {
	h.applyAction(w, r, "history.clear", func(*http.Request) (Action, bool, error) {
		return Action{Kind: ActionClearHistory}, true, nil
	})
}

// Restore handles POST /calculator/sessions/{id}/history/{index}/restore.
func (h *Handler) Restore(w http.ResponseWriter, r *http.Request) {
	h.applyAction(w, r, "history.restore", func(r *http.Request) (Action, bool, error) {
		index, err := strconv.Atoi(chi.URLParam(r, "index"))
		if err != nil {
			return Action{}, false, fmt.Errorf("history index: %w", err)
		}
		return Action{Kind: ActionRestore, Index: index}, true, nil
	})
}

// applyAction is the shared implementation for everything that feeds input
// into a session: decode, dispatch, record telemetry, write the new view.
func (h *Handler) applyAction(w http.ResponseWriter, r *http.Request, opName string, decode func(*http.Request) (Action, bool, error)) {
	r, o := startOp(r, opName)
	defer o.span.End()
	ctx := r.Context()

	session, ok := h.lookup(w, r, o)
	if !ok {
		return
	}

	action, mapped, err := decode(r)
	if err != nil {
		o.fail(w, r, "invalid request", err, http.StatusBadRequest)
		return
	}
	if !mapped {
		o.span.AddEvent("key.ignored")
		o.span.SetStatus(codes.Ok, "")
		handlers.WriteJSON(w, http.StatusOK, SessionResponse{SessionID: session.ID, View: session.View()})
		return
	}

	o.span.SetAttributes(attribute.String("calculator.action", string(action.Kind)))

	start := time.Now()
	view, err := session.Dispatch(action)
	elapsed := elapsedMillis(start)

	switch {
	case errors.Is(err, history.ErrIndexOutOfRange):
		o.fail(w, r, "history entry not found", err, http.StatusNotFound)
		return
	case err != nil:
		o.fail(w, r, "invalid action", err, http.StatusBadRequest)
		return
	}

	attrs := metric.WithAttributes(attribute.String("operation", string(action.Kind)))
	opsCounter.Add(ctx, 1, attrs)
	opsHistogram.Record(ctx, elapsed, attrs)

	fields := []zap.Field{
		zap.String("operation", opName),
		zap.String("action", string(action.Kind)),
		zap.String("session_id", session.ID),
		zap.String("expression", view.Expression),
		zap.String("status", string(view.Status)),
		zap.String("request_id", o.requestID),
		zap.Float64("duration_ms", elapsed),
	}

	switch recordOutcome(ctx, o.span, action, view) {
	case outcomeFailed:
		o.logger.Warn("session evaluation failed", append(fields, zap.String("kind", view.ErrorKind))...)
	case outcomeEvaluated:
		o.logger.Info("session evaluation completed", append(fields, zap.Float64("result", *view.Value))...)
	default:
		o.logger.Debug("session action applied", fields...)
	}

	o.span.SetStatus(codes.Ok, "")
	handlers.WriteJSON(w, http.StatusOK, SessionResponse{SessionID: session.ID, View: view})
}

type outcome int

const (
	outcomeApplied outcome = iota
	outcomeEvaluated
	outcomeFailed
)

// recordOutcome records the metrics and span events for the view an action
// produced. A failed evaluation is a normal display state, not a request
// error, so it is counted but the span status is left alone.
func recordOutcome(ctx context.Context, span trace.Span, action Action, view View) outcome {
	attrs := metric.WithAttributes(attribute.String("operation", string(action.Kind)))

	switch {
	case action.Kind == ActionEvaluate && view.Status == StatusError:
		errorCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("operation", string(action.Kind)),
			attribute.String("kind", view.ErrorKind),
		))
		span.AddEvent("evaluation.failed", trace.WithAttributes(
			attribute.String("kind", view.ErrorKind),
		))
		return outcomeFailed

	case action.Kind == ActionEvaluate && view.Value != nil:
		resultGauge.Record(ctx, *view.Value, attrs)
		span.AddEvent("evaluation.complete", trace.WithAttributes(
			attribute.Float64("result", *view.Value),
		))
		span.SetAttributes(attribute.Float64("calculator.result", *view.Value))
		return outcomeEvaluated
	}
	return outcomeApplied
}

// ---------------------------------------------------------------------------
// Batched input (one child span per step)
// ---------------------------------------------------------------------------

// resolve turns a step into the action it triggers. A key without a binding
// reports false, like Key.
func (s BatchStep) resolve() (Action, bool, error) {
	if s.Key == "" {
		return s.Action, true, nil
	}
	if s.Kind != "" {
		return Action{}, false, errAmbiguousStep
	}
	a, ok := KeyAction(s.Key)
	return a, ok, nil
}

// Batch handles POST /calculator/sessions/{id}/batch. Steps are dispatched
// in order and each gets its own child span. The first step that cannot be
// applied stops the batch; steps before it stay applied.
func (h *Handler) Batch(w http.ResponseWriter, r *http.Request) {
	r, o := startOp(r, "batch")
	defer o.span.End()
	ctx := r.Context()

	session, ok := h.lookup(w, r, o)
	if !ok {
		return
	}

	var req BatchRequest
	if err := decodeBody(w, r, &req); err != nil {
		o.fail(w, r, "invalid request body", err, http.StatusBadRequest)
		return
	}

	switch {
	case len(req.Steps) == 0:
		o.fail(w, r, "no steps provided", errors.New("steps array is empty"), http.StatusBadRequest)
		return
	case len(req.Steps) > maxBatchSteps:
		o.fail(w, r, "too many steps", fmt.Errorf("%d steps, limit is %d", len(req.Steps), maxBatchSteps), http.StatusBadRequest)
		return
	}

	o.span.SetAttributes(attribute.Int("batch.steps_count", len(req.Steps)))

	o.logger.Info("starting batch",
		zap.String("session_id", session.ID),
		zap.Int("steps", len(req.Steps)),
		zap.String("request_id", o.requestID),
	)

	view := session.View()
	results := make([]BatchResult, 0, len(req.Steps))

	for i, step := range req.Steps {
		action, mapped, err := step.resolve()

		// Span names stay within a fixed set.
		name := string(action.Kind)
		switch {
		case err != nil:
			name = "invalid"
		case !mapped:
			name = "ignored"
		case !action.Kind.Known():
			name = "unknown"
		}

		_, stepSpan := tracer.Start(ctx, fmt.Sprintf("calculator.batch.step.%d.%s", i, name),
			trace.WithAttributes(
				attribute.Int("batch.step.index", i),
				attribute.String("batch.step.action", name),
				attribute.String("batch.step.key", step.Key),
				attribute.String("batch.step.input", view.Expression),
			),
		)

		stepStart := time.Now()
		if err == nil && mapped {
			view, err = session.Dispatch(action)
		}
		stepElapsed := elapsedMillis(stepStart)

		if err != nil {
			stepSpan.RecordError(err)
			stepSpan.SetStatus(codes.Error, err.Error())
			stepSpan.End()

			status := http.StatusBadRequest
			if errors.Is(err, history.ErrIndexOutOfRange) {
				status = http.StatusNotFound
			}
			o.fail(w, r, fmt.Sprintf("failed at step %d", i), fmt.Errorf("step %d (%s): %w", i, name, err), status)
			return
		}

		if mapped {
			attrs := metric.WithAttributes(attribute.String("operation", name))
			opsCounter.Add(ctx, 1, attrs)
			opsHistogram.Record(ctx, stepElapsed, attrs)
			recordOutcome(ctx, stepSpan, action, view)
		}

		stepSpan.AddEvent("step.complete", trace.WithAttributes(
			attribute.String("expression", view.Expression),
			attribute.String("result", view.Result),
		))
		stepSpan.SetStatus(codes.Ok, "")
		stepSpan.End()

		o.logger.Debug("batch step applied",
			zap.Int("step", i),
			zap.String("action", name),
			zap.String("expression", view.Expression),
			zap.String("result", view.Result),
			zap.Float64("duration_ms", stepElapsed),
		)

		results = append(results, BatchResult{
			Index:      i,
			Kind:       action.Kind,
			Key:        step.Key,
			Ignored:    !mapped,
			Expression: view.Expression,
			Result:     view.Result,
			Status:     view.Status,
			ErrorKind:  view.ErrorKind,
		})
	}

	o.span.AddEvent("batch.complete", trace.WithAttributes(
		attribute.Int("total_steps", len(results)),
		attribute.String("result", view.Result),
	))
	o.span.SetStatus(codes.Ok, "")

	o.logger.Info("batch completed",
		zap.String("session_id", session.ID),
		zap.Int("steps", len(results)),
		zap.String("expression", view.Expression),
		zap.String("result", view.Result),
		zap.String("request_id", o.requestID),
	)

	handlers.WriteJSON(w, http.StatusOK, BatchResponse{
		SessionResponse: SessionResponse{SessionID: session.ID, View: view},
		Steps:           results,
	})
}
