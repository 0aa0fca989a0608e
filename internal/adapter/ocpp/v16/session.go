package v16

import (
	"strconv"
	"strings"
	"sync"
)

// Conn is the write side of a charger or operator connection. The
// transport layer hands sessions a Conn; tests hand them a recorder.
type Conn interface {
	WriteText(data []byte) error
}

// BootStatus is the registration state of a charger session.
type BootStatus int

const (
	BootAccepted BootStatus = iota
	BootPending
	BootRejected
)

func (b BootStatus) String() string {
	switch b {
	case BootAccepted:
		return regAccepted
	case BootPending:
		return regPending
	default:
		return regRejected
	}
}

// ConnectorStatus ordinals double as the numeric connector values of the
// operator snapshot format, so their order is part of the wire contract.
type ConnectorStatus int

const (
	ConnAvailable ConnectorStatus = iota
	ConnCharging
	ConnFaulted
	ConnFinishing
	ConnPreparing
	ConnReserved
	ConnSuspendedEV
	ConnSuspendedEVSE
	ConnUnavailable
	ConnUnknown
)

func (c ConnectorStatus) String() string {
	if int(c) >= 0 && int(c) < len(connectorStatusTokens) {
		return connectorStatusTokens[c]
	}
	return "Unknown"
}

// connectorStatusFromOrdinal maps a token-table index from a decoded
// StatusNotification onto the session ordinal. The two tables share the
// same order for the nine real statuses.
func connectorStatusFromOrdinal(i int) ConnectorStatus {
	if i >= 0 && i < len(connectorStatusTokens) {
		return ConnectorStatus(i)
	}
	return ConnUnknown
}

// noCharging marks a connector with no authorized idTag attached.
const noCharging = "no_charging"

// noTransaction marks a connector with no running transaction.
const noTransaction int64 = -1

type pendingState int

const (
	pendingIdle pendingState = iota
	pendingAwaiting
)

// PendingCall is the single outbound call slot of a session. One call may
// be in flight at a time; the caller blocks on the done channel until the
// dispatcher resolves the slot or the call times out.
type PendingCall struct {
	mu       sync.Mutex
	state    pendingState
	uniqueID string
	action   string
	done     chan struct{}
}

// Begin claims the slot for an outbound call. It reports false when a call
// is already awaiting its result.
func (p *PendingCall) Begin(uniqueID, action string) (<-chan struct{}, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == pendingAwaiting {
		return nil, false
	}
	p.state = pendingAwaiting
	p.uniqueID = uniqueID
	p.action = action
	p.done = make(chan struct{})
	return p.done, true
}

// Resolve consumes the slot for an incoming CALLRESULT. The slot is
// released whether or not the uniqueId matches; matched reports whether it
// did, so the dispatcher can discard stray results without validating them.
func (p *PendingCall) Resolve(uniqueID string) (action string, matched bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != pendingAwaiting {
		return "", false
	}
	action = p.action
	matched = uniqueID == p.uniqueID
	p.release()
	return action, matched
}

// Release frees the slot unconditionally. Used for CALLERROR replies and
// session teardown.
func (p *PendingCall) Release() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == pendingAwaiting {
		p.release()
	}
}

// Expire frees the slot if the given call is still the one awaiting.
func (p *PendingCall) Expire(uniqueID string) (expired bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == pendingAwaiting && p.uniqueID == uniqueID {
		p.release()
		return true
	}
	return false
}

func (p *PendingCall) release() {
	p.state = pendingIdle
	close(p.done)
	p.done = nil
}

// Session is the per-charger connection state. Slot 0 of the registry
// holds the operator UI session, which only uses ChargerID, Occupied and
// the connection. mu serializes the charger's reader goroutine against
// operator commands, which mutate the session from the operator's
// goroutine.
type Session struct {
	mu sync.Mutex

	ChargerID int
	Occupied  bool

	// conn is read by frame writers without the registry lock; the
	// registry mutates it holding both its own lock and connMu.
	connMu sync.Mutex
	conn   Conn

	BootStatus BootStatus
	Vendor     string
	Model      string

	// Indexed 1..NumConnectors; index 0 is the charge point itself.
	Connectors         []ConnectorStatus
	ActiveTransactions []int64
	ActiveIdTags       []string

	LastAuthorizedIdTag string
	ConfigKeys          map[string]string

	Pending PendingCall

	nextUniqueID      int64
	nextTransactionID int64
}

func newSession(chargerID, numConnectors int) *Session {
	s := &Session{ChargerID: chargerID}
	s.resetState(numConnectors)
	return s
}

func (s *Session) setConn(conn Conn) {
	s.connMu.Lock()
	s.conn = conn
	s.connMu.Unlock()
}

// Connection returns the bound transport, nil while the slot is free.
func (s *Session) Connection() Conn {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	return s.conn
}

// resetState returns the protocol fields to their connection-start values.
// Counters survive so uniqueIds and transactionIds never repeat within a
// process lifetime.
func (s *Session) resetState(numConnectors int) {
	s.BootStatus = BootRejected
	s.Vendor = ""
	s.Model = ""
	s.LastAuthorizedIdTag = ""
	s.ConfigKeys = make(map[string]string)
	s.Connectors = make([]ConnectorStatus, numConnectors+1)
	s.ActiveTransactions = make([]int64, numConnectors+1)
	s.ActiveIdTags = make([]string, numConnectors+1)
	for i := range s.Connectors {
		s.Connectors[i] = ConnUnknown
		s.ActiveTransactions[i] = noTransaction
		s.ActiveIdTags[i] = noCharging
	}
}

// NumConnectors is the connector count of the session, excluding the
// charge point pseudo-connector 0.
func (s *Session) NumConnectors() int {
	return len(s.Connectors) - 1
}

// NextUniqueID mints the uniqueId for the next outbound call.
func (s *Session) NextUniqueID() string {
	s.nextUniqueID++
	return strconv.FormatInt(s.nextUniqueID, 10)
}

// NextTransactionID allocates a transactionId. Every StartTransaction
// consumes one, whatever the authorization outcome.
func (s *Session) NextTransactionID() int64 {
	s.nextTransactionID++
	return s.nextTransactionID
}

// CurrentTransactionID is the most recently allocated transactionId.
func (s *Session) CurrentTransactionID() int64 {
	return s.nextTransactionID
}

// connectorByIdTag finds the connector a given idTag is charging on, 0 if
// none. idTags compare case-insensitively everywhere.
func (s *Session) connectorByIdTag(idTag string) int {
	for c := 1; c < len(s.ActiveIdTags); c++ {
		if strings.EqualFold(s.ActiveIdTags[c], idTag) {
			return c
		}
	}
	return 0
}

// connectorByTransaction finds the connector running a transactionId, 0 if
// none.
func (s *Session) connectorByTransaction(txID int64) int {
	for c := 1; c < len(s.ActiveTransactions); c++ {
		if s.ActiveTransactions[c] == txID {
			return c
		}
	}
	return 0
}
