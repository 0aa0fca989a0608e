package v16

import (
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/seu-repo/ocpp-central/internal/observability/telemetry"
)

// dispatch routes one inbound frame on a charger session. Every CALL gets
// exactly one reply frame; CALLRESULT and CALLERROR feed the pending
// outbound slot.
func (s *Server) dispatch(sess *Session, raw []byte) {
	frame, err := ParseFrame(raw)
	if err == errMalformedEnvelope {
		// Nothing to correlate a reply against.
		s.log.Warn("Dropping unparseable frame",
			zap.Int("charger_id", sess.ChargerID),
		)
		return
	}
	if err == errBadShape {
		s.sendError(sess, frame.RawID, FormationViolation)
		return
	}

	switch frame.Type {
	case CallMessage:
		s.dispatchCall(sess, frame)
	case CallResultMessage:
		s.dispatchCallResult(sess, frame)
	case CallErrorMessage:
		s.log.Warn("CALLERROR received",
			zap.Int("charger_id", sess.ChargerID),
			zap.String("error_code", frame.ErrorCode),
			zap.String("description", frame.ErrorDescription),
		)
		sess.Pending.Release()
	default:
		s.sendError(sess, frame.RawID, NotImplemented)
	}
}

func (s *Server) dispatchCall(sess *Session, f *Frame) {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	telemetry.OCPPMessagesTotal.WithLabelValues(f.Action, "inbound").Inc()
	s.log.Debug("Received CALL",
		zap.Int("charger_id", sess.ChargerID),
		zap.String("action", f.Action),
		zap.String("unique_id", f.UniqueID),
	)

	// Until a BootNotification is accepted the charger may do nothing else.
	if sess.BootStatus == BootRejected && f.Action != "BootNotification" {
		s.sendError(sess, f.RawID, GenericError)
		return
	}

	switch f.Action {
	case "Authorize":
		s.handleAuthorize(sess, f)
	case "BootNotification":
		s.handleBootNotification(sess, f)
	case "DataTransfer":
		s.handleDataTransfer(sess, f)
	case "Heartbeat":
		s.handleHeartbeat(sess, f)
	case "MeterValues":
		s.handleMeterValues(sess, f)
	case "StartTransaction":
		s.handleStartTransaction(sess, f)
	case "StatusNotification":
		s.handleStatusNotification(sess, f)
	case "StopTransaction":
		s.handleStopTransaction(sess, f)
	default:
		s.sendError(sess, f.RawID, NotSupported)
	}
}

func (s *Server) dispatchCallResult(sess *Session, f *Frame) {
	action, matched := sess.Pending.Resolve(f.UniqueID)
	if action == "" {
		s.log.Debug("CALLRESULT with no outbound call awaiting, discarded",
			zap.Int("charger_id", sess.ChargerID),
			zap.String("unique_id", f.UniqueID),
		)
		return
	}
	if !matched {
		s.log.Warn("The uniqueId of this response is not in accordance with the uniqueId of the request",
			zap.Int("charger_id", sess.ChargerID),
			zap.String("unique_id", f.UniqueID),
			zap.String("action", action),
		)
		return
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	telemetry.OCPPMessagesTotal.WithLabelValues(action, "inbound").Inc()
	if v := s.validateCallResult(sess, action, f.Payload); v != nil {
		s.sendError(sess, f.RawID, v.Code)
		return
	}
	s.log.Debug("CALLRESULT accepted",
		zap.Int("charger_id", sess.ChargerID),
		zap.String("action", action),
	)
}

// sendResult emits a CALLRESULT echoing the raw uniqueId.
func (s *Server) sendResult(sess *Session, rawID json.RawMessage, payload interface{}) {
	data, err := EncodeCallResult(rawID, payload)
	if err != nil {
		s.log.Error("Failed to encode CALLRESULT", zap.Error(err))
		return
	}
	s.write(sess, data)
}

// sendError emits a CALLERROR with the canonical description for code.
func (s *Server) sendError(sess *Session, rawID json.RawMessage, code ErrorCode) {
	telemetry.CallErrorsTotal.WithLabelValues(string(code)).Inc()
	data, err := EncodeCallError(rawID, violation(code))
	if err != nil {
		s.log.Error("Failed to encode CALLERROR", zap.Error(err))
		return
	}
	s.write(sess, data)
}

func (s *Server) write(sess *Session, data []byte) {
	conn := sess.Connection()
	if conn == nil {
		return
	}
	if err := conn.WriteText(data); err != nil {
		s.log.Error("Failed to send frame",
			zap.Int("charger_id", sess.ChargerID),
			zap.Error(err),
		)
	}
}

func nowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339)
}
