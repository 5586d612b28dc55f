package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Clean1ines/iXe/internal/utils"
)

var (
	// ErrPoolExhausted is returned when no tab becomes available within
	// the acquire timeout.
	ErrPoolExhausted = errors.New("browser pool exhausted")

	// ErrPoolDegraded is returned once the pool has burned through its
	// budget of silent crash replacements.
	ErrPoolDegraded = errors.New("browser pool degraded: replacement budget exhausted")

	// ErrPoolClosed is returned for any operation after CloseAll.
	ErrPoolClosed = errors.New("browser pool closed")
)

// Tab is one leased browser execution context. The rod adapter is the
// production implementation; tests inject fakes.
type Tab interface {
	Navigate(ctx context.Context, url string) error
	WaitSelector(ctx context.Context, selector string, timeout time.Duration) error
	HTML(ctx context.Context) (string, error)
	Healthy() bool
	Close() error
}

// TabFactory creates a fresh tab. The pool calls it at construction and
// when replacing a crashed tab.
type TabFactory func(ctx context.Context) (Tab, error)

// Resource is a leased tab. It is owned exclusively by the caller
// holding the lease until released back to the pool.
type Resource struct {
	id  int
	tab Tab

	mu       sync.Mutex
	leased   bool
	crashed  bool
	closedAt time.Time
}

// Tab exposes the underlying execution context to the renderer.
func (r *Resource) Tab() Tab { return r.tab }

// MarkCrashed flags the resource so the pool replaces it on release
// instead of reusing it.
func (r *Resource) MarkCrashed() {
	r.mu.Lock()
	r.crashed = true
	r.mu.Unlock()
}

// PoolStats is a point-in-time view of pool occupancy.
type PoolStats struct {
	Total        int
	InUse        int
	Available    int
	Replacements int
}

// Pool manages a bounded set of browser tabs handed out one lease at a
// time. Crashed tabs are detected on acquire and release and replaced
// transparently, up to maxReplacements per pool lifetime.
type Pool struct {
	factory         TabFactory
	size            int
	acquireTimeout  time.Duration
	maxReplacements int

	monitor *Monitor

	available chan *Resource

	mu           sync.Mutex
	resources    map[*Resource]struct{}
	leased       int
	replacements int
	nextID       int
	closed       bool

	ctx    context.Context
	cancel context.CancelFunc
}

// Option tweaks pool construction.
type Option func(*Pool)

// WithAcquireTimeout overrides the default 30s acquire timeout.
func WithAcquireTimeout(d time.Duration) Option {
	return func(p *Pool) { p.acquireTimeout = d }
}

// WithMaxReplacements overrides the crash-replacement budget (default 5).
func WithMaxReplacements(n int) Option {
	return func(p *Pool) { p.maxReplacements = n }
}

// WithMonitor attaches a resource monitor consulted before respawning
// crashed tabs.
func WithMonitor(m *Monitor) Option {
	return func(p *Pool) { p.monitor = m }
}

// NewPool creates the pool and pre-warms size tabs. If any tab fails to
// launch the pool is torn down and the error returned: inability to
// initialize the pool is fatal to the run.
func NewPool(factory TabFactory, size int, opts ...Option) (*Pool, error) {
	if size < 1 {
		return nil, fmt.Errorf("pool size must be >= 1, got %d", size)
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		factory:         factory,
		size:            size,
		acquireTimeout:  30 * time.Second,
		maxReplacements: 5,
		available:       make(chan *Resource, size),
		resources:       make(map[*Resource]struct{}),
		ctx:             ctx,
		cancel:          cancel,
	}
	for _, opt := range opts {
		opt(p)
	}

	for i := 0; i < size; i++ {
		res, err := p.spawn()
		if err != nil {
			p.CloseAll()
			return nil, fmt.Errorf("pre-warm tab %d: %w", i, err)
		}
		p.available <- res
	}

	utils.Infof("browser pool ready: %d tabs", size)
	return p, nil
}

// spawn creates a new resource and registers it.
func (p *Pool) spawn() (*Resource, error) {
	tab, err := p.factory(p.ctx)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.nextID++
	res := &Resource{id: p.nextID, tab: tab}
	p.resources[res] = struct{}{}
	p.mu.Unlock()

	return res, nil
}

// Acquire leases a tab, blocking until one is available, the acquire
// timeout elapses (ErrPoolExhausted) or ctx is cancelled. A crashed tab
// pulled from the free list is replaced instead of being handed out.
// Once the replacement budget is spent the pool cannot recover lost
// capacity, so Acquire fails fast with ErrPoolDegraded instead of
// waiting on tabs that will never come back.
func (p *Pool) Acquire(ctx context.Context) (*Resource, error) {
	p.mu.Lock()
	closed := p.closed
	degraded := p.replacements > p.maxReplacements
	p.mu.Unlock()
	if closed {
		return nil, ErrPoolClosed
	}
	if degraded {
		return nil, ErrPoolDegraded
	}

	timer := time.NewTimer(p.acquireTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-p.ctx.Done():
			return nil, ErrPoolClosed
		case <-timer.C:
			return nil, ErrPoolExhausted
		case res, ok := <-p.available:
			if !ok {
				return nil, ErrPoolClosed
			}
			if !res.tab.Healthy() {
				replacement, err := p.replace(res)
				if err != nil {
					return nil, err
				}
				res = replacement
			}
			res.mu.Lock()
			res.leased = true
			res.mu.Unlock()

			p.mu.Lock()
			p.leased++
			p.mu.Unlock()
			return res, nil
		}
	}
}

// Release returns a lease to the pool. It is idempotent: releasing a
// resource twice, or one already closed by CloseAll, is a no-op. A
// crashed resource is replaced rather than reused.
func (p *Pool) Release(res *Resource) {
	if res == nil {
		return
	}

	res.mu.Lock()
	if !res.leased {
		res.mu.Unlock()
		return
	}
	res.leased = false
	crashed := res.crashed || !res.tab.Healthy()
	res.mu.Unlock()

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.leased--
	p.mu.Unlock()

	if crashed {
		replacement, err := p.replace(res)
		if err != nil {
			utils.Error(err, "crashed tab not replaced; pool capacity reduced")
			return
		}
		res = replacement
	}

	select {
	case p.available <- res:
	default:
		// Free list already full: a double release slipped past the
		// leased flag because the resource was replaced. Drop it.
		p.destroy(res)
	}
}

// replace destroys a crashed resource and spawns a substitute, charging
// the replacement budget.
func (p *Pool) replace(crashed *Resource) (*Resource, error) {
	p.destroy(crashed)

	p.mu.Lock()
	p.replacements++
	over := p.replacements > p.maxReplacements
	count := p.replacements
	p.mu.Unlock()

	if over {
		return nil, ErrPoolDegraded
	}

	if p.monitor != nil {
		if ok, reason := p.monitor.CanSpawn(); !ok {
			return nil, fmt.Errorf("tab respawn blocked: %s", reason)
		}
	}

	utils.Warnf("replacing crashed browser tab (replacement %d/%d)", count, p.maxReplacements)
	return p.spawn()
}

// destroy closes a resource and forgets it.
func (p *Pool) destroy(res *Resource) {
	p.mu.Lock()
	delete(p.resources, res)
	p.mu.Unlock()

	res.mu.Lock()
	res.closedAt = time.Now()
	res.mu.Unlock()

	if err := res.tab.Close(); err != nil {
		utils.Debugf("closing tab %d: %v", res.id, err)
	}
}

// Stats reports pool occupancy.
func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PoolStats{
		Total:        len(p.resources),
		InUse:        p.leased,
		Available:    len(p.available),
		Replacements: p.replacements,
	}
}

// CloseAll cancels outstanding leases and closes every tab. It is
// idempotent and releases OS resources even for tabs that already died.
func (p *Pool) CloseAll() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	resources := make([]*Resource, 0, len(p.resources))
	for res := range p.resources {
		resources = append(resources, res)
	}
	p.resources = map[*Resource]struct{}{}
	p.leased = 0
	p.mu.Unlock()

	p.cancel()

	for _, res := range resources {
		if err := res.tab.Close(); err != nil {
			utils.Debugf("closing tab %d during shutdown: %v", res.id, err)
		}
	}

	// Drain whatever is parked on the free list.
	for {
		select {
		case <-p.available:
		default:
			utils.Info("browser pool closed")
			return
		}
	}
}
