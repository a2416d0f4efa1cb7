package checker

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"syscall"

	"github.com/uptimer-dev/uptimer/internal/safenet"
	"github.com/uptimer-dev/uptimer/internal/storage"
)

// Outcome holds the result of a single probe.
type Outcome struct {
	Status    storage.Status
	LatencyMs *int64 // nil when no response was measured
	Error     string // short reason, empty when up
}

// Checker performs a protocol-specific probe against a monitor's target.
type Checker interface {
	// Type returns the monitor type this checker handles.
	Type() storage.MonitorType
	// Check performs the probe. The error return is reserved for
	// programming errors; probe failures come back as a down Outcome.
	Check(ctx context.Context, monitor *storage.Monitor) (*Outcome, error)
}

// Registry holds all registered checkers by type.
type Registry struct {
	mu       sync.RWMutex
	checkers map[storage.MonitorType]Checker
}

func NewRegistry() *Registry {
	return &Registry{checkers: make(map[storage.MonitorType]Checker)}
}

func (r *Registry) Register(c Checker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checkers[c.Type()] = c
}

func (r *Registry) Get(typ storage.MonitorType) (Checker, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.checkers[typ]
	if !ok {
		return nil, fmt.Errorf("no checker registered for type: %s", typ)
	}
	return c, nil
}

// DefaultRegistry creates a registry with all built-in checkers sharing one
// outbound guard.
func DefaultRegistry(guard safenet.Guard) *Registry {
	r := NewRegistry()
	r.Register(&HTTPChecker{Guard: guard})
	r.Register(&TCPChecker{Guard: guard})
	return r
}

// classifyDialError maps a transport error onto the short reason vocabulary.
func classifyDialError(err error) string {
	var dnsErr *net.DNSError
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded):
		return "timeout"
	case errors.As(err, &dnsErr):
		return "dns_error"
	case errors.Is(err, syscall.ECONNREFUSED):
		return "connect_refused"
	case errors.Is(err, syscall.ECONNRESET):
		return "connect_reset"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}
	return ""
}
