// Package sigmux fans a single OS signal out to any number of
// independently registered handlers. os/signal delivers to channels, not
// handler lists, so this wires the multiple-handler behaviour explicitly:
// the OS-level hook is installed lazily when the first handler registers
// and removed when the last one deregisters.
package sigmux

import (
	"os"
	"os/signal"
	"sync"
)

// Handler is invoked each time the signal is raised.
type Handler func()

// Registration identifies a registered handler for removal.
type Registration struct {
	id uint64
}

type entry struct {
	id uint64
	fn Handler
}

// Mux multiplexes one OS signal to an ordered handler list. Construct one
// per process and inject it wherever handlers need to be registered.
type Mux struct {
	sig os.Signal

	mu       sync.Mutex
	handlers []entry
	nextID   uint64
	ch       chan os.Signal
	stop     chan struct{}
}

// New creates a Mux for the given signal. No OS hook is installed until
// the first handler is added.
func New(sig os.Signal) *Mux {
	return &Mux{sig: sig}
}

// Add registers a handler, installing the OS-level hook if this is the
// first one.
func (m *Mux) Add(h Handler) *Registration {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.handlers) == 0 {
		m.install()
	}
	id := m.nextID
	m.nextID++
	m.handlers = append(m.handlers, entry{id: id, fn: h})
	return &Registration{id: id}
}

// Remove deregisters a handler, removing the OS-level hook if it was the
// last one.
func (m *Mux) Remove(reg *Registration) {
	if reg == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, e := range m.handlers {
		if e.id == reg.id {
			m.handlers = append(m.handlers[:i], m.handlers[i+1:]...)
			break
		}
	}
	if len(m.handlers) == 0 {
		m.uninstall()
	}
}

// Raise invokes a snapshot of the current handler list in registration
// order, so handlers that register or deregister others during dispatch do
// not affect the in-progress pass. Handler panics are not recovered; a
// handler that must not fail is responsible for its own recovery.
func (m *Mux) Raise() {
	m.mu.Lock()
	fns := make([]Handler, len(m.handlers))
	for i, e := range m.handlers {
		fns[i] = e.fn
	}
	m.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// Close drops all handlers and removes the OS hook. The Mux is reusable
// afterwards; the next Add reinstalls the hook.
func (m *Mux) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = nil
	m.uninstall()
}

// install wires the OS signal to Raise. Caller holds m.mu.
func (m *Mux) install() {
	ch := make(chan os.Signal, 1)
	stop := make(chan struct{})
	signal.Notify(ch, m.sig)
	m.ch = ch
	m.stop = stop

	go func() {
		for {
			select {
			case <-ch:
				m.Raise()
			case <-stop:
				return
			}
		}
	}()
}

// uninstall removes the OS hook. Caller holds m.mu.
func (m *Mux) uninstall() {
	if m.ch == nil {
		return
	}
	signal.Stop(m.ch)
	close(m.stop)
	m.ch = nil
	m.stop = nil
}

// hooked reports whether the OS-level hook is currently installed.
func (m *Mux) hooked() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ch != nil
}
