// Package daterange splits inclusive date ranges into bounded windows and
// merges the per-window results back in chronological order.
package daterange

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
)

// MaxWindowDays is the widest inclusive range NBP serves in one request.
const MaxWindowDays = 93

var ErrInverted = errors.New("start date is after end date")

// Window is an inclusive [From, To] span of calendar days in UTC.
type Window struct {
	From time.Time
	To   time.Time
}

func (w Window) Days() int {
	return int(w.To.Sub(w.From)/(24*time.Hour)) + 1
}

func (w Window) String() string {
	return w.From.Format("2006-01-02") + ".." + w.To.Format("2006-01-02")
}

// Split covers [start, end] with consecutive windows of at most maxDays days.
// Windows never overlap and leave no gaps.
func Split(start, end time.Time, maxDays int) ([]Window, error) {
	if maxDays < 1 {
		return nil, fmt.Errorf("window size must be positive, got %d", maxDays)
	}

	start, end = Day(start), Day(end)
	if start.After(end) {
		return nil, fmt.Errorf("%w: %s > %s", ErrInverted, start.Format("2006-01-02"), end.Format("2006-01-02"))
	}

	var windows []Window
	for from := start; !from.After(end); {
		to := from.AddDate(0, 0, maxDays-1)
		if to.After(end) {
			to = end
		}
		windows = append(windows, Window{From: from, To: to})
		from = to.AddDate(0, 0, 1)
	}

	return windows, nil
}

// Day truncates t to midnight UTC of its calendar date.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

type Outcome[T any] struct {
	Window Window
	Items  []T
	Err    error
}

type Fetcher[T any] func(ctx context.Context, w Window) ([]T, error)

// Collect runs fetch for every window with at most limit requests in flight.
// Outcomes are returned in window order regardless of completion order, and a
// failed window never cancels its siblings.
func Collect[T any](ctx context.Context, windows []Window, limit int, fetch Fetcher[T]) []Outcome[T] {
	outcomes := make([]Outcome[T], len(windows))

	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, w := range windows {
		g.Go(func() error {
			items, err := fetch(ctx, w)
			outcomes[i] = Outcome[T]{Window: w, Items: items, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}

type Merged[T any] struct {
	Items   []T
	Empty   []Window
	Fetched int
}

// WindowError attributes a failure to the window that produced it.
type WindowError struct {
	Window Window
	Err    error
}

func (e *WindowError) Error() string {
	return fmt.Sprintf("window %s: %v", e.Window, e.Err)
}

func (e *WindowError) Unwrap() error {
	return e.Err
}

// Reduce concatenates outcomes in window order. Windows whose error satisfies
// tolerate are listed in Empty. Any other error aborts with the first such
// failure in window order. When no window succeeded the first tolerated
// error is returned instead.
func Reduce[T any](outcomes []Outcome[T], tolerate func(error) bool) (Merged[T], error) {
	var (
		merged    Merged[T]
		firstSkip error
	)
	for _, o := range outcomes {
		if o.Err == nil {
			merged.Items = append(merged.Items, o.Items...)
			merged.Fetched++
			continue
		}
		if tolerate != nil && tolerate(o.Err) {
			merged.Empty = append(merged.Empty, o.Window)
			if firstSkip == nil {
				firstSkip = o.Err
			}
			continue
		}
		return Merged[T]{}, &WindowError{Window: o.Window, Err: o.Err}
	}

	if merged.Fetched == 0 && firstSkip != nil {
		return Merged[T]{}, firstSkip
	}

	return merged, nil
}
