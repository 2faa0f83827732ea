package builtin

import (
	"fmt"
	"io"
	"sort"
	"sync"
)

// Kind tags how a command name is executed.
type Kind int

const (
	KindExternal Kind = iota // launched as a separate process
	KindCd                   // change the shell's working directory
	KindExit                 // terminate the shell
)

func (k Kind) String() string {
	switch k {
	case KindExternal:
		return "external"
	case KindCd:
		return "cd"
	case KindExit:
		return "exit"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Outcome reports whether a dispatcher ran the command in-process.
type Outcome int

const (
	NotHandled Outcome = iota
	Handled
)

func (o Outcome) String() string {
	if o == Handled {
		return "handled"
	}
	return "not-handled"
}

// Builtin is a command executed directly by the shell process.
type Builtin interface {
	// Name is the command word that selects this builtin.
	Name() string

	// Description is a one-line summary for listings.
	Description() string

	// Kind identifies the builtin.
	Kind() Kind

	// Run executes the builtin. A returned error is reported to the user
	// as "<name>: <error>"; the command still counts as handled.
	Run(args []string) error
}

// Registry maps command names to builtins.
type Registry struct {
	mu       sync.RWMutex
	builtins map[string]Builtin
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{builtins: make(map[string]Builtin)}
}

// Register adds a builtin, replacing any with the same name.
func (r *Registry) Register(b Builtin) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.builtins[b.Name()] = b
}

// Lookup returns the builtin registered under name.
func (r *Registry) Lookup(name string) (Builtin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.builtins[name]
	return b, ok
}

// Resolve returns the Kind for a command name. Unregistered names are
// external.
func (r *Registry) Resolve(name string) Kind {
	if b, ok := r.Lookup(name); ok {
		return b.Kind()
	}
	return KindExternal
}

// All returns every registered builtin sorted by name.
func (r *Registry) All() []Builtin {
	r.mu.RLock()
	defer r.mu.RUnlock()
	all := make([]Builtin, 0, len(r.builtins))
	for _, b := range r.builtins {
		all = append(all, b)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].Name() < all[j].Name()
	})
	return all
}

// Dispatcher runs builtins in the calling process.
type Dispatcher struct {
	reg *Registry
	out io.Writer
}

// NewDispatcher creates a dispatcher that reports builtin failures on out.
func NewDispatcher(reg *Registry, out io.Writer) *Dispatcher {
	return &Dispatcher{reg: reg, out: out}
}

// Registry returns the registry the dispatcher consults.
func (d *Dispatcher) Registry() *Registry { return d.reg }

// TryExecute runs name as a builtin if one is registered. A failing builtin
// prints "<name>: <message>" and is still Handled.
func (d *Dispatcher) TryExecute(name string, args []string) Outcome {
	b, ok := d.reg.Lookup(name)
	if !ok {
		return NotHandled
	}
	if err := b.Run(args); err != nil {
		fmt.Fprintf(d.out, "%s: %v\n", b.Name(), err)
	}
	return Handled
}
