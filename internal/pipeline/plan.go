package pipeline

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
)

// Handle owns one end of an OS pipe. The descriptor is released exactly
// once: Close is a no-op after the first call.
type Handle struct {
	mu sync.Mutex
	f  *os.File
}

func newHandle(f *os.File) *Handle { return &Handle{f: f} }

// File returns the underlying file, or nil once the handle is closed.
// Children inherit it through exec.Cmd; the parent must still Close.
func (h *Handle) File() *os.File {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.f
}

// Fd returns the descriptor number, or -1 once closed.
func (h *Handle) Fd() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.f == nil {
		return -1
	}
	return int(h.f.Fd())
}

// Closed reports whether the parent's copy has been released.
func (h *Handle) Closed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.f == nil
}

// Close releases the parent's copy of the descriptor. It reports whether
// this call did the release.
func (h *Handle) Close() (bool, error) {
	h.mu.Lock()
	f := h.f
	h.f = nil
	h.mu.Unlock()
	if f == nil {
		return false, nil
	}
	return true, f.Close()
}

// Endpoint connects the output of stage i to the input of stage i+1.
type Endpoint struct {
	R *Handle
	W *Handle
}

func newEndpoint() (*Endpoint, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("create pipe: %w", err)
	}
	return &Endpoint{R: newHandle(r), W: newHandle(w)}, nil
}

// Close releases whichever ends are still open in the parent.
func (e *Endpoint) Close() error {
	_, rerr := e.R.Close()
	_, werr := e.W.Close()
	return errors.Join(rerr, werr)
}

// Binding is the standard input and output a stage is launched with.
type Binding struct {
	In  io.Reader
	Out io.Writer
}

// Plan holds the inter-stage endpoints of an n-stage pipeline and computes
// each stage's binding. Endpoint i is allocated the first time stage i is
// bound, so a run that stops early never allocates pipes it will not use.
// Plan launches nothing and closes nothing on its own; the executor decides
// when each end is released.
type Plan struct {
	n         int
	stdin     io.Reader
	stdout    io.Writer
	endpoints []*Endpoint
}

// NewPlan prepares the plumbing for n stages. Stage 0 reads stdin and stage
// n-1 writes stdout.
func NewPlan(n int, stdin io.Reader, stdout io.Writer) *Plan {
	if n < 1 {
		n = 1
	}
	return &Plan{
		n:         n,
		stdin:     stdin,
		stdout:    stdout,
		endpoints: make([]*Endpoint, 0, n-1),
	}
}

// Stages returns the number of stages the plan was built for.
func (p *Plan) Stages() int { return p.n }

// Endpoints returns the endpoints allocated so far, in stage order.
func (p *Plan) Endpoints() []*Endpoint { return p.endpoints }

// Endpoint returns endpoint i, allocating it (and any before it) on first use.
func (p *Plan) Endpoint(i int) (*Endpoint, error) {
	if i < 0 || i >= p.n-1 {
		return nil, fmt.Errorf("endpoint %d out of range for %d stages", i, p.n)
	}
	for len(p.endpoints) <= i {
		e, err := newEndpoint()
		if err != nil {
			return nil, err
		}
		p.endpoints = append(p.endpoints, e)
	}
	return p.endpoints[i], nil
}

// Bind returns stage i's input and output. Input is inherited stdin for the
// first stage and the read end of endpoint i-1 otherwise; output is
// inherited stdout for the last stage and the write end of endpoint i
// otherwise.
func (p *Plan) Bind(i int) (Binding, error) {
	if i < 0 || i >= p.n {
		return Binding{}, fmt.Errorf("stage %d out of range for %d stages", i, p.n)
	}

	var b Binding
	if i == 0 {
		b.In = p.stdin
	} else {
		e, err := p.Endpoint(i - 1)
		if err != nil {
			return Binding{}, err
		}
		f := e.R.File()
		if f == nil {
			return Binding{}, fmt.Errorf("stage %d: read end of endpoint %d already released", i, i-1)
		}
		b.In = f
	}

	if i == p.n-1 {
		b.Out = p.stdout
	} else {
		e, err := p.Endpoint(i)
		if err != nil {
			return Binding{}, err
		}
		f := e.W.File()
		if f == nil {
			return Binding{}, fmt.Errorf("stage %d: write end of endpoint %d already released", i, i)
		}
		b.Out = f
	}
	return b, nil
}

// Open returns the number of pipe descriptors still held by the parent.
func (p *Plan) Open() int {
	open := 0
	for _, e := range p.endpoints {
		if !e.R.Closed() {
			open++
		}
		if !e.W.Closed() {
			open++
		}
	}
	return open
}

// Close releases every descriptor still open in the parent.
func (p *Plan) Close() error {
	var errs []error
	for _, e := range p.endpoints {
		if err := e.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
