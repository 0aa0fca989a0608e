package v16

import (
	"encoding/json"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// Operator UI wire protocol. The supervision web app announces itself with
// a hello message, then drives chargers with colon-delimited commands of
// the form "Flask:charger<N>:<action>:<payload>". State flows back as JSON
// snapshot objects.
const (
	operatorHello  = "Flask client"
	operatorPrefix = "Flask"
)

// operatorActions maps the web app's lower-camel action names onto OCPP
// actions.
var operatorActions = map[string]string{
	"changeAvailability":     actionChangeAvailability,
	"clearCache":             actionClearCache,
	"dataTransfer":           actionDataTransfer,
	"getConfiguration":       actionGetConfiguration,
	"remoteStartTransaction": actionRemoteStart,
	"remoteStopTransaction":  actionRemoteStop,
	"reset":                  actionReset,
	"unlockConnector":        actionUnlockConnector,
}

// handleOperatorHello seats conn in the operator slot and primes its
// stream with the current state of every charger slot: a transaction-shaped
// snapshot followed by a boot-shaped one per slot, so the web app can
// render the whole wall before any charger speaks.
func (s *Server) handleOperatorHello(conn Conn) *Session {
	op := s.registry.AttachOperator(conn)
	s.log.Info("Operator UI connected")

	for _, sess := range s.registry.AllChargerSlots() {
		sess.mu.Lock()
		snap := snapshotMap(sess, "stopTransaction")
		// The primer never claims live charging state for a slot; only
		// the connector statuses carry over.
		for c := 1; c <= sess.NumConnectors(); c++ {
			n := strconv.Itoa(c)
			snap["idTag"+n] = noCharging
			snap["transactionId"+n] = noTransaction
		}
		boot := bootSnapshotMap(sess)
		sess.mu.Unlock()

		s.writeOperator(op, snap)
		s.writeOperator(op, boot)
	}
	return op
}

// handleOperatorCommand parses one "Flask:charger<N>:<action>:<payload>"
// command and issues the outbound call. Unknown chargers and actions are
// logged and dropped; the web app gets no reply channel for its own
// mistakes.
func (s *Server) handleOperatorCommand(raw string) {
	parts := strings.SplitN(raw, ":", 4)
	if len(parts) < 3 || parts[0] != operatorPrefix {
		s.log.Warn("Unrecognized operator message", zap.String("message", raw))
		return
	}

	// "charger<N>": the slot number sits right after the literal prefix.
	const idOffset = len("charger")
	if len(parts[1]) <= idOffset {
		s.log.Warn("Operator command without charger id", zap.String("message", raw))
		return
	}
	id, err := strconv.Atoi(parts[1][idOffset:])
	if err != nil {
		s.log.Warn("Operator command with bad charger id", zap.String("message", raw))
		return
	}

	sess := s.registry.ByID(id)
	if sess == nil {
		s.log.Warn("Operator command for unconnected charger", zap.Int("charger_id", id))
		return
	}

	action, ok := operatorActions[parts[2]]
	if !ok {
		s.log.Warn("Unknown operator action", zap.String("action", parts[2]))
		return
	}

	payload := json.RawMessage(`{}`)
	if len(parts) == 4 && parts[3] != "" {
		payload = json.RawMessage(parts[3])
	}
	s.SendCall(sess, action, payload)
}

// pushChargerSnapshot sends a transaction-shaped snapshot of sess to the
// operator UI. typ labels which handler produced it. Caller holds sess.mu.
func (s *Server) pushChargerSnapshot(sess *Session, typ string) {
	op := s.registry.Operator()
	if op == nil {
		return
	}
	s.writeOperator(op, snapshotMap(sess, typ))
}

// pushBootSnapshot sends a boot-shaped snapshot of sess to the operator UI.
// Caller holds sess.mu.
func (s *Server) pushBootSnapshot(sess *Session) {
	op := s.registry.Operator()
	if op == nil {
		return
	}
	s.writeOperator(op, bootSnapshotMap(sess))
}

// pushDisconnectSnapshots tells the operator UI a charger dropped: every
// connector goes to the unknown ordinal and the slot reads as unregistered.
// sess is the detached session, so its last idTags and transactionIds are
// reported one final time.
func (s *Server) pushDisconnectSnapshots(sess *Session) {
	op := s.registry.Operator()
	if op == nil {
		return
	}

	snap := snapshotMap(sess, "stopTransaction")
	for c := 1; c <= sess.NumConnectors(); c++ {
		snap["connector"+strconv.Itoa(c)] = int(ConnUnknown)
	}
	s.writeOperator(op, snap)

	boot := map[string]interface{}{
		"charger": strconv.Itoa(sess.ChargerID),
		"type":    "bootNotification",
		"general": int(BootRejected),
		"vendor":  "",
		"model":   "",
	}
	s.writeOperator(op, boot)
}

// snapshotMap builds the transaction-shaped snapshot of a session. The
// connector fields carry the status ordinals; the charger id travels as a
// string. Field names are numbered per connector, so the shape grows with
// the configured connector count.
func snapshotMap(sess *Session, typ string) map[string]interface{} {
	snap := map[string]interface{}{
		"charger": strconv.Itoa(sess.ChargerID),
		"type":    typ,
	}
	for c := 1; c <= sess.NumConnectors(); c++ {
		n := strconv.Itoa(c)
		snap["connector"+n] = int(sess.Connectors[c])
		snap["idTag"+n] = sess.ActiveIdTags[c]
		snap["transactionId"+n] = sess.ActiveTransactions[c]
	}
	return snap
}

func bootSnapshotMap(sess *Session) map[string]interface{} {
	return map[string]interface{}{
		"charger": strconv.Itoa(sess.ChargerID),
		"type":    "bootNotification",
		"general": int(sess.BootStatus),
		"vendor":  sess.Vendor,
		"model":   sess.Model,
	}
}

func (s *Server) writeOperator(op *Session, snap map[string]interface{}) {
	data, err := json.Marshal(snap)
	if err != nil {
		s.log.Error("Failed to encode operator snapshot", zap.Error(err))
		return
	}
	conn := op.Connection()
	if conn == nil {
		return
	}
	if err := conn.WriteText(data); err != nil {
		s.log.Error("Failed to send operator snapshot", zap.Error(err))
	}
}
