// Package labexec defines the external collaborator contract for driving
// AtomicCommand sequences against a live device fleet over SSH (spec §1:
// "Lab execution over SSH", explicitly out of scope for this module's
// body — only the contract the core must expose, and the executor's
// waiting discipline, live here).
//
// The ssh.Dial/ssh.Session shape here is what an executor needs to send
// commands and read output; the deadline/poll-interval loop a condition
// wait runs under follows the same pattern a BGP-convergence verify step
// would use against a live device. No session body is implemented:
// Dialer and Session are the contract a real executor would satisfy
// with golang.org/x/crypto/ssh, not an implementation of it.
package labexec

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/crypto/ssh"
)

// Dialer opens a session to a lab device. A real implementation wraps
// ssh.Dial directly; this package only needs the contract, since
// sending bytes over a socket is outside this module's scope.
type Dialer interface {
	Dial(ctx context.Context, addr string, config *ssh.ClientConfig) (Session, error)
}

// Session runs commands against one connected device and reports their
// combined output, mirroring device.SSHTunnel.ExecCommand.
type Session interface {
	ExecCommand(ctx context.Context, cmd string) (string, error)
	Close() error
}

// DeviceQuery is what the core must expose to an executor evaluating
// AtomicConditions against real-device output (spec §4.8's "External
// collaborators' contract"): the current selected RIB, the processed
// RIB-in (after route-maps), all sessions, and prefix-equivalence-class
// iteration.
type DeviceQuery[P comparable] interface {
	SelectedRoute(ctx context.Context, router string, prefix P) (exists bool, weight uint16, nextHop string, err error)
	RibIn(ctx context.Context, router string, prefix P) (entries map[string]DeviceRibEntry, err error)
	Sessions(ctx context.Context, router string) (map[string]string, error)
	PrefixesInClass(ctx context.Context, class string) ([]P, error)
}

// DeviceRibEntry is one neighbor's rib-in entry as read back from a live
// device, enough to evaluate RoutesLessPreferred/AvailableRoute without
// pulling in the full bgproute.Route shape.
type DeviceRibEntry struct {
	Weight    uint16
	LocalPref uint32
	AsPathLen int
	NextHop   string
}

// ErrNoProgress reports that a condition never held before its deadline,
// distinct from a transient per-poll error (spec §4.8: "the executor
// must enforce a deadline and surface 'no progress' as a distinct
// failure").
type ErrNoProgress struct {
	Timeout time.Duration
	Polls   int
}

func (e *ErrNoProgress) Error() string {
	return fmt.Sprintf("no progress after %s (%d polls)", e.Timeout, e.Polls)
}

// Poller runs a check function on a fixed interval until it succeeds or
// a deadline elapses, generalized away from any one specific health-check
// RPC.
type Poller struct {
	Timeout  time.Duration
	Interval time.Duration
}

// DefaultPoller is the default timeout/interval pair for BGP convergence
// checks against a live device.
var DefaultPoller = Poller{Timeout: 120 * time.Second, Interval: 5 * time.Second}

// Wait polls check until it reports true, ctx is canceled, or the
// deadline elapses. A check that returns a non-nil error is treated as
// "not yet" and retried, not as a fatal failure — only ctx cancellation
// or deadline elapsed end the wait early.
func (p Poller) Wait(ctx context.Context, check func(ctx context.Context) (bool, error)) error {
	timeout, interval := p.Timeout, p.Interval
	if timeout <= 0 {
		timeout = DefaultPoller.Timeout
	}
	if interval <= 0 {
		interval = DefaultPoller.Interval
	}

	deadline := time.Now().Add(timeout)
	polls := 0
	for {
		polls++
		ok, _ := check(ctx)
		if ok {
			return nil
		}
		if !time.Now().Before(deadline) {
			return &ErrNoProgress{Timeout: timeout, Polls: polls}
		}
		select {
		case <-time.After(interval):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Executor sends an atomic command's concrete configuration to a set of
// connected devices and waits out its pre/post conditions against their
// live state (spec §4.8's three-step protocol: wait pre, send, wait
// post). Implementations compose a Dialer, a DeviceQuery, and a Poller;
// none of that plumbing belongs in this module — only the shape each
// collaborator must present to the core.
type Executor[P comparable] interface {
	// Affected reports which routers (by device name) the next command
	// will touch, so commands with disjoint sets can run concurrently
	// (spec §4.8).
	Affected(command any) []string

	// Execute runs one atomic command's concrete commands against the
	// live devices named by Affected, after its pre-condition polls true
	// and before its post-condition is required to.
	Execute(ctx context.Context, router string, rawCommands []string) error
}
