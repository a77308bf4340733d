package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mpryc/nbp-mcp-server/internal/daterange"
	"github.com/mpryc/nbp-mcp-server/internal/format"
	"github.com/mpryc/nbp-mcp-server/internal/nbp"
)

// State is the position of one call in the dispatch pipeline.
type State int

const (
	StateReceived State = iota
	StateValidating
	StateFetching
	StateFormatting
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateReceived:
		return "received"
	case StateValidating:
		return "validating"
	case StateFetching:
		return "fetching"
	case StateFormatting:
		return "formatting"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition is allowed.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// CanTransition allows one step forward or a jump to Failed from any
// non-terminal state.
func CanTransition(from, to State) bool {
	if from.Terminal() {
		return false
	}
	if to == StateFailed {
		return true
	}

	return to == from+1
}

// Upstream is the subset of the NBP client the dispatcher needs.
type Upstream interface {
	Rates(ctx context.Context, q nbp.Query) (*nbp.RateSeries, error)
	Tables(ctx context.Context, q nbp.Query) ([]nbp.ExchangeTable, error)
	Gold(ctx context.Context, q nbp.Query) ([]nbp.GoldPrice, error)
}

// Recorder persists per-call usage. Failures are logged and never fail the call.
type Recorder interface {
	Record(at time.Time, tool, outcome string, elapsed time.Duration) error
}

type Call struct {
	ID        string
	Session   string
	Name      string
	Arguments map[string]any
}

type Result struct {
	CallID   string
	Tool     string
	Text     string
	Notes    []string
	Err      *Error
	State    State
	FailedAt State
	Elapsed  time.Duration
}

func (r Result) OK() bool {
	return r.State == StateCompleted
}

// Outcome is "ok" or the error kind, used as a metrics label.
func (r Result) Outcome() string {
	if r.Err != nil {
		return string(r.Err.Kind)
	}

	return "ok"
}

type Options struct {
	Logger           *zap.Logger
	Recorder         Recorder
	Observe          func(tool, outcome string, elapsed time.Duration)
	RangeConcurrency int
	MaxWindowDays    int
	Now              func() time.Time
}

type Dispatcher struct {
	registry *Registry
	upstream Upstream
	logger   *zap.Logger
	recorder Recorder
	observe  func(tool, outcome string, elapsed time.Duration)
	limit    int
	window   int
	now      func() time.Time
}

func NewDispatcher(registry *Registry, upstream Upstream, opts Options) *Dispatcher {
	d := &Dispatcher{
		registry: registry,
		upstream: upstream,
		logger:   opts.Logger,
		recorder: opts.Recorder,
		observe:  opts.Observe,
		limit:    opts.RangeConcurrency,
		window:   opts.MaxWindowDays,
		now:      opts.Now,
	}
	if d.logger == nil {
		d.logger = zap.NewNop()
	}
	if d.limit <= 0 {
		d.limit = 4
	}
	if d.window <= 0 || d.window > daterange.MaxWindowDays {
		d.window = daterange.MaxWindowDays
	}
	if d.now == nil {
		d.now = time.Now
	}

	return d
}

func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

// Call runs one tool invocation to a terminal state. It always returns a
// result; failures are carried in Result.Err.
func (d *Dispatcher) Call(ctx context.Context, call Call) Result {
	if call.ID == "" {
		call.ID = uuid.NewString()
	}
	started := d.now()

	run := &callRun{
		dispatcher: d,
		logger:     d.logger.With(zap.String("call_id", call.ID), zap.String("tool", call.Name)),
		result:     Result{CallID: call.ID, Tool: call.Name, State: StateReceived},
	}
	if call.Session != "" {
		run.logger = run.logger.With(zap.String("session", call.Session))
	}
	run.execute(ctx, call)

	result := run.result
	result.Elapsed = d.now().Sub(started)
	d.finish(result, started)

	return result
}

func (d *Dispatcher) finish(result Result, started time.Time) {
	fields := []zap.Field{
		zap.String("call_id", result.CallID),
		zap.String("tool", result.Tool),
		zap.String("outcome", result.Outcome()),
		zap.Duration("elapsed", result.Elapsed),
	}
	if result.Err != nil {
		fields = append(fields, zap.String("failed_at", result.FailedAt.String()), zap.String("error", result.Err.Message))
		d.logger.Warn("tool call failed", fields...)
	} else {
		d.logger.Info("tool call completed", fields...)
	}

	if d.observe != nil {
		d.observe(result.Tool, result.Outcome(), result.Elapsed)
	}
	if d.recorder != nil {
		if err := d.recorder.Record(started, result.Tool, result.Outcome(), result.Elapsed); err != nil {
			d.logger.Warn("usage record failed", zap.String("tool", result.Tool), zap.Error(err))
		}
	}
}

type callRun struct {
	dispatcher *Dispatcher
	logger     *zap.Logger
	result     Result
}

func (r *callRun) advance(to State) {
	if !CanTransition(r.result.State, to) {
		panic(fmt.Sprintf("tools: invalid transition %s -> %s", r.result.State, to))
	}
	r.logger.Debug("call state", zap.Stringer("from", r.result.State), zap.Stringer("to", to))
	r.result.State = to
}

func (r *callRun) fail(err error) {
	toolErr := asToolError(err)
	r.result.FailedAt = r.result.State
	r.advance(StateFailed)
	r.result.Err = toolErr
}

func (r *callRun) execute(ctx context.Context, call Call) {
	d := r.dispatcher

	spec, err := d.registry.Lookup(call.Name)
	if err != nil {
		r.fail(err)
		return
	}

	r.advance(StateValidating)
	args, err := spec.Validate(call.Arguments)
	if err != nil {
		r.fail(err)
		return
	}

	r.advance(StateFetching)
	// Upstream requests run to completion even if the caller disconnects.
	data, err := d.fetch(context.WithoutCancel(ctx), spec, args)
	if err != nil {
		r.fail(describeFailure(spec, args, err))
		return
	}
	if ctx.Err() != nil {
		r.logger.Debug("caller gone before result was ready", zap.Error(ctx.Err()))
	}

	r.advance(StateFormatting)
	text, err := render(spec, args, data)
	if err != nil {
		r.fail(err)
		return
	}

	r.result.Notes = data.notes()
	r.result.Text = format.WithNotes(text, r.result.Notes)
	r.advance(StateCompleted)
}

type payload struct {
	series *nbp.RateSeries
	tables []nbp.ExchangeTable
	gold   []nbp.GoldPrice
	empty  []daterange.Window
}

func (p payload) notes() []string {
	notes := make([]string, 0, len(p.empty))
	for _, w := range p.empty {
		notes = append(notes, fmt.Sprintf("no data published between %s and %s", w.From.Format(nbp.DateLayout), w.To.Format(nbp.DateLayout)))
	}

	return notes
}

func pointQuery(resource nbp.Resource, args Args) nbp.Query {
	q := nbp.Query{Resource: resource, Table: args.Table, Code: args.Code, Shape: nbp.ShapeCurrent}
	if args.Date != nil {
		q.Shape = nbp.ShapeDate
		q.Date = *args.Date
	}

	return q
}

func (d *Dispatcher) fetch(ctx context.Context, spec Spec, args Args) (payload, error) {
	switch spec.Instrument {
	case InstrumentCurrency:
		switch spec.Fetch {
		case FetchDirect:
			series, err := d.upstream.Rates(ctx, pointQuery(nbp.ResourceRates, args))
			return payload{series: series}, err
		case FetchLast:
			series, err := d.upstream.Rates(ctx, nbp.Query{Resource: nbp.ResourceRates, Shape: nbp.ShapeLast, Table: args.Table, Code: args.Code, Count: args.Count})
			return payload{series: series}, err
		case FetchRange:
			return d.fetchRateRange(ctx, args)
		}
	case InstrumentTable:
		tables, err := d.upstream.Tables(ctx, pointQuery(nbp.ResourceTables, args))
		return payload{tables: tables}, err
	case InstrumentGold:
		switch spec.Fetch {
		case FetchDirect:
			gold, err := d.upstream.Gold(ctx, pointQuery(nbp.ResourceGold, args))
			return payload{gold: gold}, err
		case FetchLast:
			gold, err := d.upstream.Gold(ctx, nbp.Query{Resource: nbp.ResourceGold, Shape: nbp.ShapeLast, Count: args.Count})
			return payload{gold: gold}, err
		case FetchRange:
			return d.fetchGoldRange(ctx, args)
		}
	}

	return payload{}, fmt.Errorf("tool %s has no fetch strategy", spec.Name)
}

func (d *Dispatcher) split(args Args) ([]daterange.Window, error) {
	windows, err := daterange.Split(args.Start, args.End, d.window)
	if err != nil {
		return nil, invalidArgument("start_date %s is after end_date %s", args.Start.Format(nbp.DateLayout), args.End.Format(nbp.DateLayout))
	}

	return windows, nil
}

func (d *Dispatcher) fetchRateRange(ctx context.Context, args Args) (payload, error) {
	windows, err := d.split(args)
	if err != nil {
		return payload{}, err
	}

	outcomes := daterange.Collect(ctx, windows, d.limit, func(ctx context.Context, w daterange.Window) ([]nbp.RateSeries, error) {
		series, err := d.upstream.Rates(ctx, nbp.Query{
			Resource: nbp.ResourceRates,
			Shape:    nbp.ShapeRange,
			Table:    args.Table,
			Code:     args.Code,
			Start:    w.From,
			End:      w.To,
		})
		if err != nil {
			return nil, err
		}
		return []nbp.RateSeries{*series}, nil
	})

	merged, err := daterange.Reduce(outcomes, nbp.IsNotFound)
	if err != nil {
		return payload{}, err
	}

	var combined *nbp.RateSeries
	for _, part := range merged.Items {
		if combined == nil {
			header := part
			header.Rates = nil
			combined = &header
		}
		combined.Rates = append(combined.Rates, part.Rates...)
	}

	return payload{series: combined, empty: merged.Empty}, nil
}

func (d *Dispatcher) fetchGoldRange(ctx context.Context, args Args) (payload, error) {
	windows, err := d.split(args)
	if err != nil {
		return payload{}, err
	}

	outcomes := daterange.Collect(ctx, windows, d.limit, func(ctx context.Context, w daterange.Window) ([]nbp.GoldPrice, error) {
		return d.upstream.Gold(ctx, nbp.Query{Resource: nbp.ResourceGold, Shape: nbp.ShapeRange, Start: w.From, End: w.To})
	})

	merged, err := daterange.Reduce(outcomes, nbp.IsNotFound)
	if err != nil {
		return payload{}, err
	}

	return payload{gold: merged.Items, empty: merged.Empty}, nil
}

func render(spec Spec, args Args, data payload) (string, error) {
	switch spec.Instrument {
	case InstrumentCurrency:
		switch spec.Fetch {
		case FetchDirect:
			return format.Quote(data.series)
		case FetchLast:
			return format.RateSeries(data.series, fmt.Sprintf("Last %d Rates", args.Count))
		case FetchRange:
			return format.RateSeries(data.series, fmt.Sprintf("Rates %s to %s", args.Start.Format(nbp.DateLayout), args.End.Format(nbp.DateLayout)))
		}
	case InstrumentTable:
		return format.Tables(data.tables)
	case InstrumentGold:
		switch spec.Fetch {
		case FetchDirect:
			if len(data.gold) == 0 {
				return "", &format.MissingFieldError{Field: "gold price"}
			}
			return format.GoldPrice(data.gold[0])
		case FetchLast:
			return format.GoldPrices(data.gold, fmt.Sprintf("Last %d Gold Prices", args.Count))
		case FetchRange:
			return format.GoldPrices(data.gold, fmt.Sprintf("Gold Prices %s to %s", args.Start.Format(nbp.DateLayout), args.End.Format(nbp.DateLayout)))
		}
	}

	return "", fmt.Errorf("tool %s has no renderer", spec.Name)
}

// describeFailure rewrites not-found errors into a message naming what was asked for.
func describeFailure(spec Spec, args Args, err error) error {
	if !nbp.IsNotFound(err) {
		return err
	}

	var subject string
	switch spec.Instrument {
	case InstrumentCurrency:
		subject = fmt.Sprintf("no %s exchange rate in table %s", args.Code, strings.ToUpper(args.Table))
	case InstrumentTable:
		subject = fmt.Sprintf("no exchange table %s", strings.ToUpper(args.Table))
	case InstrumentGold:
		subject = "no gold price"
	}

	var when string
	switch spec.Fetch {
	case FetchDirect:
		if args.Date != nil {
			when = fmt.Sprintf(" for %s (weekends, holidays and dates outside the published range have no data)", args.Date.Format(nbp.DateLayout))
		} else {
			when = " currently published"
		}
	case FetchRange:
		when = fmt.Sprintf(" published between %s and %s", args.Start.Format(nbp.DateLayout), args.End.Format(nbp.DateLayout))
	case FetchLast:
		when = " published"
	}

	return &Error{Kind: KindNotFound, Message: subject + when, Status: 404, Err: err}
}
