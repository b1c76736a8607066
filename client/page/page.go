// Package page runs the independent fetches a page issues when it is shown.
// Each fetch settles its own key as soon as it completes, in any order, and
// results arriving after the page is unmounted are dropped.
package page

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

type State int

const (
	Idle State = iota
	Loading
	Ready
	Absent // the resource does not exist yet, e.g. a singleton never saved
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	case Absent:
		return "absent"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Fetch loads one piece of the page. found=false reports an absent resource.
type Fetch func(ctx context.Context) (value interface{}, found bool, err error)

type Result struct {
	State State
	Value interface{}
	Err   error
}

type Options struct {
	// OnUpdate is called after each key settles or starts loading, one call at a
	// time and in order. It may call Refresh but must not call Mount, Unmount or Wait.
	OnUpdate func(key string, r Result)
	// MaxConcurrent caps the fetches running at once. Zero means no cap.
	MaxConcurrent int
}

// update is a pending OnUpdate call, dropped when its mount or fetch is superseded.
type update struct {
	gen, seq uint64
	key      string
	r        Result
}

type Page struct {
	opts Options

	mu       sync.Mutex
	idle     *sync.Cond // signalled when the update queue is drained
	mounted  bool
	gen      uint64
	seq      map[string]uint64
	fetches  map[string]Fetch
	results  map[string]Result
	queue    []update
	draining bool
	ctx      context.Context
	cancel   context.CancelFunc
	group    *errgroup.Group
}

func New(opts Options) *Page {
	p := &Page{
		opts:    opts,
		seq:     map[string]uint64{},
		fetches: map[string]Fetch{},
		results: map[string]Result{},
	}
	p.idle = sync.NewCond(&p.mu)
	return p
}

// Mount starts every fetch. Mounting an already mounted page remounts it.
func (p *Page) Mount(ctx context.Context, fetches map[string]Fetch) {
	p.Unmount()

	p.mu.Lock()
	p.mounted = true
	p.gen++
	gen := p.gen
	p.ctx, p.cancel = context.WithCancel(ctx)
	p.group = new(errgroup.Group)
	if p.opts.MaxConcurrent > 0 {
		p.group.SetLimit(p.opts.MaxConcurrent)
	}
	p.fetches = make(map[string]Fetch, len(fetches))
	p.results = make(map[string]Result, len(fetches))
	for key, fetch := range fetches {
		p.fetches[key] = fetch
		p.results[key] = Result{State: Loading}
	}
	p.mu.Unlock()

	for key := range fetches {
		if !p.start(gen, key) {
			return
		}
	}
}

// Refresh re-issues the fetch of key, superseding any in flight.
// It reports false when the page is not mounted or key is unknown.
func (p *Page) Refresh(key string) bool {
	p.mu.Lock()
	_, ok := p.fetches[key]
	if !ok || !p.mounted {
		p.mu.Unlock()
		return false
	}
	prev := p.results[key]
	p.results[key] = Result{State: Loading, Value: prev.Value}
	gen := p.gen
	p.mu.Unlock()

	return p.start(gen, key)
}

// start launches the fetch of key for mount gen. It reports false once that
// mount is gone, which may happen while waiting for a slot.
func (p *Page) start(gen uint64, key string) bool {
	p.mu.Lock()
	if !p.mounted || p.gen != gen {
		p.mu.Unlock()
		return false
	}
	p.seq[key]++
	seq := p.seq[key]
	ctx, fetch, group := p.ctx, p.fetches[key], p.group
	p.enqueue(update{gen: gen, seq: seq, key: key, r: p.results[key]})
	p.mu.Unlock()
	p.drain()

	group.Go(func() error {
		if ctx.Err() != nil {
			return nil
		}
		value, found, err := fetch(ctx)
		r := Result{State: Ready, Value: value}
		switch {
		case err != nil:
			r = Result{State: Failed, Err: err}
		case !found:
			r = Result{State: Absent}
		}
		p.settle(gen, seq, key, r)
		return nil // fetches are independent: one failure never cancels the others
	})
	return true
}

func (p *Page) settle(gen, seq uint64, key string, r Result) {
	p.mu.Lock()
	if !p.mounted || p.gen != gen || p.seq[key] != seq {
		p.mu.Unlock()
		return
	}
	p.results[key] = r
	p.enqueue(update{gen: gen, seq: seq, key: key, r: r})
	p.mu.Unlock()

	// delivered without holding this fetch's slot: OnUpdate may Refresh
	go p.drain()
}

// enqueue must be called with mu held.
func (p *Page) enqueue(u update) {
	if p.opts.OnUpdate != nil {
		p.queue = append(p.queue, u)
	}
}

// drain delivers the queued updates unless another goroutine already does.
func (p *Page) drain() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.draining {
		return
	}
	p.draining = true
	defer func() {
		p.draining = false
		p.idle.Broadcast()
	}()

	for len(p.queue) > 0 {
		u := p.queue[0]
		p.queue = p.queue[1:]
		if !p.mounted || p.gen != u.gen || p.seq[u.key] != u.seq {
			continue
		}
		p.mu.Unlock()
		p.opts.OnUpdate(u.key, u.r)
		p.mu.Lock()
	}
}

// Unmount cancels the fetches in flight. Once it returns no result is delivered.
func (p *Page) Unmount() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.mounted {
		p.mounted = false
		p.gen++
		p.cancel()
	}
	p.queue = nil
	for p.draining {
		p.idle.Wait()
	}
}

func (p *Page) Mounted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mounted
}

// State returns the latest result of key; Idle for unknown keys.
func (p *Page) State(key string) Result {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.results[key]
}

// Results returns a snapshot of every key.
func (p *Page) Results() map[string]Result {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]Result, len(p.results))
	for k, r := range p.results {
		out[k] = r
	}
	return out
}

// Wait blocks until the fetches of the current mount have returned.
// It must not run concurrently with Refresh.
func (p *Page) Wait() {
	p.mu.Lock()
	g := p.group
	p.mu.Unlock()
	if g != nil {
		_ = g.Wait()
	}

	p.mu.Lock()
	for p.draining || len(p.queue) > 0 {
		p.idle.Wait()
	}
	p.mu.Unlock()
}
