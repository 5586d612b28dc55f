package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Clean1ines/iXe/internal/utils"
)

var (
	// ErrRenderTimeout is returned when the wait condition is not
	// satisfied within the render timeout.
	ErrRenderTimeout = errors.New("render timeout")

	// ErrRenderCrash is returned when the tab became unusable
	// mid-operation. The pool is notified to replace it.
	ErrRenderCrash = errors.New("render crash")
)

// WaitCondition describes when a page counts as fully rendered.
// Selector (when set) must appear in the DOM; Settle is an extra delay
// afterwards for script-driven typesetting (MathJax) to finish.
type WaitCondition struct {
	Selector string
	Settle   time.Duration
}

// Renderer drives pooled tabs to produce fully rendered DOM markup.
type Renderer struct {
	pool *Pool
}

// NewRenderer wraps a pool.
func NewRenderer(pool *Pool) *Renderer {
	return &Renderer{pool: pool}
}

// Render loads url in a pooled tab, waits for the condition and returns
// the resolved DOM. The lease is released on every exit path.
func (r *Renderer) Render(ctx context.Context, url string, wait WaitCondition, timeout time.Duration) (string, error) {
	res, err := r.pool.Acquire(ctx)
	if err != nil {
		return "", fmt.Errorf("acquire tab: %w", err)
	}
	defer r.pool.Release(res)

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	tab := res.Tab()

	if err := tab.Navigate(ctx, url); err != nil {
		return "", r.classify(res, url, err)
	}

	if wait.Selector != "" {
		if err := tab.WaitSelector(ctx, wait.Selector, timeout); err != nil {
			return "", r.classify(res, url, err)
		}
	}

	if wait.Settle > 0 {
		select {
		case <-time.After(wait.Settle):
		case <-ctx.Done():
			return "", fmt.Errorf("%w: %s", ErrRenderTimeout, url)
		}
	}

	html, err := tab.HTML(ctx)
	if err != nil {
		return "", r.classify(res, url, err)
	}

	utils.Debugf("rendered %s in %s", url, time.Since(start).Round(time.Millisecond))
	return html, nil
}

// classify maps a tab failure onto the renderer error taxonomy. Context
// expiry is a timeout; anything else means the tab is suspect, so it is
// marked for replacement.
func (r *Renderer) classify(res *Resource, url string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %s: %v", ErrRenderTimeout, url, err)
	}
	res.MarkCrashed()
	return fmt.Errorf("%w: %s: %v", ErrRenderCrash, url, err)
}
