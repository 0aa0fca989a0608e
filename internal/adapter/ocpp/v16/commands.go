package v16

import (
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/seu-repo/ocpp-central/internal/observability/telemetry"
)

// Actions the central system can initiate.
const (
	actionChangeAvailability = "ChangeAvailability"
	actionClearCache         = "ClearCache"
	actionDataTransfer       = "DataTransfer"
	actionGetConfiguration   = "GetConfiguration"
	actionRemoteStart        = "RemoteStartTransaction"
	actionRemoteStop         = "RemoteStopTransaction"
	actionReset              = "Reset"
	actionUnlockConnector    = "UnlockConnector"
)

// SendCall validates and emits one outbound call to a charger, then blocks
// until the charger answers or the call times out. The operator payload is
// checked before anything goes on the wire; a malformed command is logged
// and dropped so the single pending slot never waits on a frame the charger
// will reject.
func (s *Server) SendCall(sess *Session, action string, payload json.RawMessage) {
	sess.mu.Lock()

	payload, ok := s.prepareOutbound(sess, action, payload)
	if !ok {
		sess.mu.Unlock()
		s.log.Warn(errorDescriptions[FormationViolation],
			zap.Int("charger_id", sess.ChargerID),
			zap.String("action", action),
		)
		return
	}

	uid := sess.NextUniqueID()
	done, ok := sess.Pending.Begin(uid, action)
	if !ok {
		sess.mu.Unlock()
		s.log.Warn("Outbound call already in flight, command dropped",
			zap.Int("charger_id", sess.ChargerID),
			zap.String("action", action),
		)
		return
	}

	data, err := EncodeCall(uid, action, payload)
	if err != nil {
		sess.Pending.Expire(uid)
		sess.mu.Unlock()
		s.log.Error("Failed to encode CALL", zap.String("action", action), zap.Error(err))
		return
	}

	telemetry.OCPPMessagesTotal.WithLabelValues(action, "outbound").Inc()
	s.log.Debug("Sending CALL",
		zap.Int("charger_id", sess.ChargerID),
		zap.String("action", action),
		zap.String("unique_id", uid),
	)
	s.write(sess, data)
	sess.mu.Unlock()

	select {
	case <-done:
	case <-time.After(s.cfg.OCPP.CallTimeout):
		if sess.Pending.Expire(uid) {
			telemetry.OutboundTimeoutsTotal.Inc()
			s.log.Warn("Timeout",
				zap.Int("charger_id", sess.ChargerID),
				zap.String("action", action),
				zap.String("unique_id", uid),
			)
		}
	}
}

// prepareOutbound checks an operator-supplied payload against the request
// schema of action and returns the payload to send. Caller holds sess.mu.
func (s *Server) prepareOutbound(sess *Session, action string, payload json.RawMessage) (json.RawMessage, bool) {
	switch action {
	case actionChangeAvailability:
		var cmd changeAvailabilityCmd
		if decodePayload(payload, &cmd) != nil {
			return nil, false
		}
		if cmd.ConnectorID.Missing() || cmd.ConnectorID.TypeViolated() || cmd.ConnectorID.Negative() ||
			cmd.ConnectorID.Value > int64(sess.NumConnectors()) {
			return nil, false
		}
		if cmd.Type.Missing() || cmd.Type.TypeViolated() || cmd.Type.Unrecognized() {
			return nil, false
		}
		return payload, true

	case actionClearCache:
		// ClearCache.req carries no fields.
		return json.RawMessage(`{}`), true

	case actionDataTransfer:
		var cmd dataTransferReq
		if decodePayload(payload, &cmd) != nil {
			return nil, false
		}
		if cmd.VendorID.Missing() || cmd.VendorID.Empty() || cmd.VendorID.TypeViolated() {
			return nil, false
		}
		return payload, true

	case actionGetConfiguration:
		// Any object is fine; an absent key list asks for every key.
		if !isJSONObject(payload) {
			return nil, false
		}
		return payload, true

	case actionRemoteStart:
		var cmd remoteStartCmd
		if decodePayload(payload, &cmd) != nil {
			return nil, false
		}
		if cmd.IdTag.Missing() || cmd.IdTag.Empty() || cmd.IdTag.TypeViolated() ||
			cmd.IdTag.TooLong(maxIdTagLen) {
			return nil, false
		}
		// A remote start authorizes the tag the same way Authorize does,
		// so the StartTransaction that follows is accepted.
		sess.LastAuthorizedIdTag = cmd.IdTag.Value
		return payload, true

	case actionRemoteStop:
		var cmd remoteStopCmd
		if decodePayload(payload, &cmd) != nil {
			return nil, false
		}
		if cmd.TransactionID.Missing() || cmd.TransactionID.TypeViolated() || cmd.TransactionID.Negative() {
			return nil, false
		}
		return payload, true

	case actionReset:
		var cmd resetCmd
		if decodePayload(payload, &cmd) != nil {
			return nil, false
		}
		if cmd.Type.Missing() || cmd.Type.TypeViolated() || cmd.Type.Unrecognized() {
			return nil, false
		}
		return payload, true

	case actionUnlockConnector:
		var cmd unlockConnectorCmd
		if decodePayload(payload, &cmd) != nil {
			return nil, false
		}
		if cmd.ConnectorID.Missing() || cmd.ConnectorID.TypeViolated() ||
			cmd.ConnectorID.Value < 1 || cmd.ConnectorID.Value > int64(sess.NumConnectors()) {
			return nil, false
		}
		return payload, true
	}

	return nil, false
}

// validateCallResult runs the error taxonomy over a charger's confirmation
// payload. A non-nil violation turns into a CALLERROR echoing the charger's
// uniqueId. Caller holds sess.mu.
func (s *Server) validateCallResult(sess *Session, action string, payload json.RawMessage) *Violation {
	switch action {
	case actionChangeAvailability:
		var conf changeAvailabilityConf
		if v := decodePayload(payload, &conf); v != nil {
			return v
		}
		// Type outranks Protocol here: a mistyped status never reaches
		// the presence check.
		switch {
		case conf.Status.TypeViolated():
			return violation(TypeConstraintViolation)
		case conf.Status.Missing():
			return violation(ProtocolError)
		case conf.Status.Unrecognized():
			return violation(PropertyConstraintViolation)
		}
		return nil

	case actionClearCache, actionRemoteStart, actionRemoteStop, actionReset:
		var conf statusConfResp
		if v := decodePayload(payload, &conf); v != nil {
			return v
		}
		return validateStatusConf(conf.Status.Enum)

	case actionUnlockConnector:
		var conf unlockConnectorConf
		if v := decodePayload(payload, &conf); v != nil {
			return v
		}
		return validateStatusConf(conf.Status.Enum)

	case actionDataTransfer:
		var conf dataTransferConfResp
		if v := decodePayload(payload, &conf); v != nil {
			return v
		}
		switch {
		case conf.Status.Missing():
			return violation(ProtocolError)
		case conf.Status.TypeViolated() || conf.Data.TypeViolated():
			return violation(TypeConstraintViolation)
		case conf.Data.Empty() || conf.Status.Unrecognized():
			return violation(PropertyConstraintViolation)
		}
		return nil

	case actionGetConfiguration:
		return s.validateGetConfiguration(sess, payload)
	}

	return nil
}

func validateStatusConf(status Enum) *Violation {
	switch {
	case status.Missing():
		return violation(ProtocolError)
	case status.TypeViolated():
		return violation(TypeConstraintViolation)
	case status.Unrecognized():
		return violation(PropertyConstraintViolation)
	}
	return nil
}

// validateGetConfiguration checks a GetConfiguration.conf and folds the
// reported standard keys into the session's key table.
func (s *Server) validateGetConfiguration(sess *Session, payload json.RawMessage) *Violation {
	var conf getConfigurationConf
	if v := decodePayload(payload, &conf); v != nil {
		return v
	}

	for _, ck := range conf.ConfigurationKey {
		switch {
		case ck.Key.Missing() || ck.Key.Empty():
			return violation(ProtocolError)
		case ck.Key.TypeViolated():
			return violation(TypeConstraintViolation)
		case ck.Key.TooLong(maxConfigKeyLen) || ck.Value.TooLong(maxConfigValueLen):
			return violation(OccurrenceConstraintViolation)
		}
		if isStandardConfigKey(ck.Key.Value) {
			sess.ConfigKeys[ck.Key.Value] = ck.Value.Value
		}
	}

	for _, uk := range conf.UnknownKey {
		if uk.TooLong(maxConfigValueLen) {
			return violation(OccurrenceConstraintViolation)
		}
	}
	return nil
}
