package v16

import (
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"github.com/seu-repo/ocpp-central/internal/adapter/queue"
	"github.com/seu-repo/ocpp-central/internal/domain"
	"github.com/seu-repo/ocpp-central/internal/observability/telemetry"
)

// decodePayload parses a CALL payload into the action's request struct.
// Anything that is not a JSON object is a FormationViolation; field-level
// faults are tagged on the struct fields instead.
func decodePayload(payload json.RawMessage, v interface{}) *Violation {
	if !isJSONObject(payload) {
		return violation(FormationViolation)
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return violation(FormationViolation)
	}
	return nil
}

func isJSONObject(raw json.RawMessage) bool {
	for _, b := range raw {
		switch b {
		case ' ', '\t', '\n', '\r':
			continue
		case '{':
			return true
		default:
			return false
		}
	}
	return false
}

func (s *Server) idTagAllowed(tag string) bool {
	for _, t := range s.cfg.Auth.IdTags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

func (s *Server) vendorAllowed(vendor string) bool {
	for _, v := range s.cfg.Auth.Vendors {
		if v == vendor {
			return true
		}
	}
	return false
}

func (s *Server) modelAllowed(model string) bool {
	for _, m := range s.cfg.Auth.Models {
		if m == model {
			return true
		}
	}
	return false
}

func (s *Server) handleAuthorize(sess *Session, f *Frame) {
	var req authorizeReq
	if v := decodePayload(f.Payload, &req); v != nil {
		s.sendError(sess, f.RawID, v.Code)
		return
	}

	switch {
	case req.IdTag.TypeViolated():
		s.sendError(sess, f.RawID, TypeConstraintViolation)
	case req.IdTag.Missing() || req.IdTag.Empty():
		s.sendError(sess, f.RawID, ProtocolError)
	case req.IdTag.TooLong(maxIdTagLen):
		s.sendError(sess, f.RawID, OccurrenceConstraintViolation)
	default:
		status := authInvalid
		if s.idTagAllowed(req.IdTag.Value) {
			sess.LastAuthorizedIdTag = req.IdTag.Value
			status = authAccepted
			s.log.Debug("Authorize accepted", zap.Int("charger_id", sess.ChargerID))
		} else {
			s.log.Warn("Authorize invalid idTag", zap.Int("charger_id", sess.ChargerID))
		}
		s.sendResult(sess, f.RawID, authorizeConf{IdTagInfo: idTagInfo{Status: status}})
	}
}

func (s *Server) handleBootNotification(sess *Session, f *Frame) {
	var req bootNotificationReq
	if v := decodePayload(f.Payload, &req); v != nil {
		s.sendError(sess, f.RawID, v.Code)
		s.pushBootSnapshot(sess)
		return
	}

	optional := []String{
		req.ChargePointSerialNumber, req.ChargeBoxSerialNumber,
		req.FirmwareVersion, req.Iccid, req.Imsi,
		req.MeterType, req.MeterSerialNumber,
	}
	all := append([]String{req.ChargePointVendor, req.ChargePointModel}, optional...)

	var code ErrorCode
	switch {
	case req.ChargePointVendor.Missing() || req.ChargePointVendor.Empty() ||
		req.ChargePointModel.Missing() || req.ChargePointModel.Empty():
		code = ProtocolError
	case anyTypeViolated(all):
		code = TypeConstraintViolation
	case anyPresentEmpty(optional):
		code = PropertyConstraintViolation
	case anyTooLong(all, maxCiString20):
		code = OccurrenceConstraintViolation
	}
	if code != "" {
		s.sendError(sess, f.RawID, code)
		s.pushBootSnapshot(sess)
		return
	}

	conf := bootNotificationConf{
		CurrentTime: nowRFC3339(),
		Interval:    s.cfg.OCPP.HeartbeatInterval,
		Status:      regAccepted,
	}
	// Vendor/model allow-listing is an opt-in deployment policy.
	if s.cfg.OCPP.EnforceBootAllowlist &&
		(!s.vendorAllowed(req.ChargePointVendor.Value) || !s.modelAllowed(req.ChargePointModel.Value)) {
		conf.Interval = s.cfg.OCPP.ResendBootInterval
		conf.Status = regRejected
		s.log.Warn("BootNotification rejected by allow-list",
			zap.Int("charger_id", sess.ChargerID),
			zap.String("vendor", req.ChargePointVendor.Value),
			zap.String("model", req.ChargePointModel.Value),
		)
		s.sendResult(sess, f.RawID, conf)
		s.pushBootSnapshot(sess)
		return
	}

	sess.BootStatus = BootAccepted
	sess.Vendor = req.ChargePointVendor.Value
	sess.Model = req.ChargePointModel.Value
	s.sendResult(sess, f.RawID, conf)

	queue.PublishJSON(s.events, s.log, queue.SubjectChargerBoot, queue.BootEvent{
		ChargerID: sess.ChargerID,
		Vendor:    sess.Vendor,
		Model:     sess.Model,
		Status:    sess.BootStatus.String(),
	})
	s.pushBootSnapshot(sess)
}

func (s *Server) handleDataTransfer(sess *Session, f *Frame) {
	var req dataTransferReq
	if v := decodePayload(f.Payload, &req); v != nil {
		s.sendError(sess, f.RawID, v.Code)
		return
	}

	switch {
	case req.VendorID.Missing() || req.VendorID.Empty():
		s.sendError(sess, f.RawID, ProtocolError)
	case req.VendorID.TypeViolated() || req.MessageID.TypeViolated() || req.Data.TypeViolated():
		s.sendError(sess, f.RawID, TypeConstraintViolation)
	case req.MessageID.Empty() || req.Data.Empty():
		s.sendError(sess, f.RawID, PropertyConstraintViolation)
	case req.VendorID.TooLong(maxVendorIDLen) || req.MessageID.TooLong(maxCiString50):
		s.sendError(sess, f.RawID, OccurrenceConstraintViolation)
	default:
		// No vendor-specific semantics are implemented.
		s.sendResult(sess, f.RawID, dataTransferConf{Status: "UnknownMessageId"})
	}
}

func (s *Server) handleHeartbeat(sess *Session, f *Frame) {
	if !isJSONObject(f.Payload) {
		s.sendError(sess, f.RawID, FormationViolation)
		return
	}
	var body map[string]json.RawMessage
	if err := json.Unmarshal(f.Payload, &body); err != nil {
		s.sendError(sess, f.RawID, FormationViolation)
		return
	}
	if len(body) != 0 {
		s.sendError(sess, f.RawID, ProtocolError)
		return
	}
	s.sendResult(sess, f.RawID, heartbeatConf{CurrentTime: nowRFC3339()})
}

func (s *Server) handleMeterValues(sess *Session, f *Frame) {
	var req meterValuesReq
	if v := decodePayload(f.Payload, &req); v != nil {
		s.sendError(sess, f.RawID, v.Code)
		return
	}

	if req.ConnectorID.Missing() || len(req.MeterValue) == 0 {
		s.sendError(sess, f.RawID, ProtocolError)
		return
	}
	if req.ConnectorID.TypeViolated() || req.ConnectorID.Negative() ||
		req.TransactionID.TypeViolated() || req.TransactionID.Negative() {
		s.sendError(sess, f.RawID, TypeConstraintViolation)
		return
	}

	var transactionID int64
	if req.TransactionID.Present() {
		transactionID = req.TransactionID.Value
	}

	for _, mv := range req.MeterValue {
		if v := s.persistMeterValue(sess, req.ConnectorID.Value, transactionID, mv); v != nil {
			s.sendError(sess, f.RawID, v.Code)
			return
		}
	}

	s.sendResult(sess, f.RawID, emptyConf{})
}

// persistMeterValue validates one meterValue element and appends its
// samples. Samples already written stay written when a later element
// fails validation; the sink is append-only history, not a ledger.
func (s *Server) persistMeterValue(sess *Session, connector, transactionID int64, mv meterValue) *Violation {
	if mv.Timestamp.Missing() || mv.Timestamp.Empty() || len(mv.SampledValue) == 0 {
		return violation(ProtocolError)
	}
	if mv.Timestamp.TypeViolated() {
		return violation(TypeConstraintViolation)
	}
	if !validTimestamp(mv.Timestamp.Value) {
		return violation(PropertyConstraintViolation)
	}

	for _, sv := range mv.SampledValue {
		if sv.Value.Missing() || sv.Value.Empty() {
			return violation(ProtocolError)
		}
		if sv.Value.TypeViolated() ||
			sv.Context.TypeViolated() || sv.Format.TypeViolated() ||
			sv.Measurand.TypeViolated() || sv.Phase.TypeViolated() ||
			sv.Location.TypeViolated() || sv.Unit.TypeViolated() {
			return violation(TypeConstraintViolation)
		}
		if sv.Context.Unrecognized() || sv.Format.Unrecognized() ||
			sv.Measurand.Unrecognized() || sv.Phase.Unrecognized() ||
			sv.Location.Unrecognized() || sv.Unit.Unrecognized() {
			return violation(PropertyConstraintViolation)
		}

		sample := &domain.MeterSample{
			ChargerID:     sess.ChargerID,
			Connector:     connector,
			TransactionID: transactionID,
			Timestamp:     mv.Timestamp.Value,
			Value:         sv.Value.Value,
			Unit:          sv.Unit.Token,
			Measurand:     sv.Measurand.Token,
			Context:       sv.Context.Token,
		}
		if err := s.store.SaveMeterSample(context.Background(), sample); err != nil {
			s.log.Error("Failed to save meter sample",
				zap.Int("charger_id", sess.ChargerID),
				zap.Error(err),
			)
		}
	}
	return nil
}

func (s *Server) handleStartTransaction(sess *Session, f *Frame) {
	var req startTransactionReq
	if v := decodePayload(f.Payload, &req); v != nil {
		s.sendError(sess, f.RawID, v.Code)
		s.pushChargerSnapshot(sess, "startTransaction")
		return
	}

	var code ErrorCode
	switch {
	case req.ConnectorID.Missing() || req.IdTag.Missing() || req.IdTag.Empty() ||
		req.MeterStart.Missing() || req.Timestamp.Missing() || req.Timestamp.Empty():
		code = ProtocolError
	case req.ConnectorID.TypeViolated() || req.ConnectorID.Negative() ||
		req.MeterStart.TypeViolated() || req.MeterStart.Negative() ||
		req.IdTag.TypeViolated() ||
		req.ReservationID.TypeViolated() || req.ReservationID.Negative() ||
		req.Timestamp.TypeViolated():
		code = TypeConstraintViolation
	case req.ConnectorID.Value == 0 || req.ConnectorID.Value > int64(sess.NumConnectors()) ||
		!validTimestamp(req.Timestamp.Value):
		code = PropertyConstraintViolation
	case req.IdTag.TooLong(maxIdTagLen):
		code = OccurrenceConstraintViolation
	}
	if code != "" {
		s.sendError(sess, f.RawID, code)
		s.pushChargerSnapshot(sess, "startTransaction")
		return
	}

	connector := req.ConnectorID.Value
	idTag := req.IdTag.Value
	status := authInvalid

	if s.idTagAllowed(idTag) && strings.EqualFold(idTag, sess.LastAuthorizedIdTag) {
		switch {
		case sess.ActiveTransactions[connector] != noTransaction || s.idTagInUse(sess, idTag):
			status = authConcurrentTx
			s.log.Warn("StartTransaction concurrentTx", zap.Int("charger_id", sess.ChargerID))
		case sess.Connectors[0] == ConnUnavailable ||
			sess.Connectors[connector] == ConnFaulted ||
			sess.Connectors[connector] == ConnSuspendedEV ||
			sess.Connectors[connector] == ConnSuspendedEVSE ||
			sess.Connectors[connector] == ConnUnavailable:
			status = authInvalid
			s.log.Warn("StartTransaction connector not chargeable",
				zap.Int("charger_id", sess.ChargerID),
				zap.Int64("connector", connector),
			)
		default:
			status = authAccepted
			// The transaction binds to the connector when the charger
			// reports StatusNotification Charging.
			sess.ActiveIdTags[connector] = idTag
			s.log.Debug("StartTransaction accepted", zap.Int("charger_id", sess.ChargerID))
		}
	} else {
		s.log.Warn("StartTransaction invalid idTag", zap.Int("charger_id", sess.ChargerID))
	}

	// A transactionId is consumed whatever the outcome.
	conf := startTransactionConf{
		IdTagInfo:     idTagInfo{Status: status},
		TransactionID: sess.NextTransactionID(),
	}
	s.sendResult(sess, f.RawID, conf)
	s.pushChargerSnapshot(sess, "startTransaction")
}

// idTagInUse reports whether idTag is already attached to any connector
// of the session.
func (s *Server) idTagInUse(sess *Session, idTag string) bool {
	for c := 1; c < len(sess.ActiveIdTags); c++ {
		if strings.EqualFold(sess.ActiveIdTags[c], idTag) {
			return true
		}
	}
	return false
}

func (s *Server) handleStatusNotification(sess *Session, f *Frame) {
	var req statusNotificationReq
	if v := decodePayload(f.Payload, &req); v != nil {
		s.sendError(sess, f.RawID, v.Code)
		s.pushChargerSnapshot(sess, "statusNotification")
		return
	}

	var code ErrorCode
	switch {
	case req.ConnectorID.Missing() || req.ErrorCode.Missing() || req.Status.Missing():
		code = ProtocolError
	case req.ConnectorID.TypeViolated() || req.ConnectorID.Negative() ||
		req.ErrorCode.TypeViolated() || req.Status.TypeViolated() ||
		req.VendorErrorCode.TypeViolated() || req.Info.TypeViolated() ||
		req.Timestamp.TypeViolated() || req.VendorID.TypeViolated():
		code = TypeConstraintViolation
	case req.ConnectorID.Value > int64(sess.NumConnectors()) ||
		req.ErrorCode.Unrecognized() || req.Status.Unrecognized() ||
		req.VendorErrorCode.Empty() || req.Info.Empty() ||
		req.Timestamp.Empty() || req.VendorID.Empty():
		code = PropertyConstraintViolation
	case req.Info.TooLong(maxCiString50) || req.VendorID.TooLong(maxVendorIDLen) ||
		req.VendorErrorCode.TooLong(maxCiString50):
		code = OccurrenceConstraintViolation
	}
	if code != "" {
		s.sendError(sess, f.RawID, code)
		s.pushChargerSnapshot(sess, "statusNotification")
		return
	}

	connector := req.ConnectorID.Value
	status := connectorStatusFromOrdinal(req.Status.Ordinal)
	sess.Connectors[connector] = status

	now := nowRFC3339()
	state := &domain.ConnectorState{
		ChargerID: sess.ChargerID,
		Connector: connector,
		Status:    req.Status.Token,
		Timestamp: now,
		ErrorCode: req.ErrorCode.Token,
	}
	if err := s.store.SaveConnectorState(context.Background(), state); err != nil {
		s.log.Error("Failed to save connector state",
			zap.Int("charger_id", sess.ChargerID),
			zap.Error(err),
		)
	}

	switch status {
	case ConnAvailable:
		sess.ActiveIdTags[connector] = noCharging
		sess.ActiveTransactions[connector] = noTransaction
	case ConnCharging:
		// Bind the transactionId minted by the preceding StartTransaction.
		sess.ActiveTransactions[connector] = sess.CurrentTransactionID()
		event := &domain.TransactionEvent{
			ChargerID: sess.ChargerID,
			Event:     domain.TransactionStart,
			Connector: connector,
			Timestamp: now,
		}
		if err := s.store.SaveTransactionEvent(context.Background(), event); err != nil {
			s.log.Error("Failed to save transaction start",
				zap.Int("charger_id", sess.ChargerID),
				zap.Error(err),
			)
		}
		telemetry.ActiveTransactions.Inc()
		queue.PublishJSON(s.events, s.log, queue.SubjectTransactionStarted, queue.TransactionStartedEvent{
			ChargerID:     sess.ChargerID,
			Connector:     connector,
			TransactionID: sess.ActiveTransactions[connector],
			IdTag:         sess.ActiveIdTags[connector],
		})
	}

	s.sendResult(sess, f.RawID, emptyConf{})
	s.pushChargerSnapshot(sess, "statusNotification")
}

func (s *Server) handleStopTransaction(sess *Session, f *Frame) {
	var req stopTransactionReq
	if v := decodePayload(f.Payload, &req); v != nil {
		s.sendError(sess, f.RawID, v.Code)
		return
	}

	if req.MeterStop.Missing() || req.Timestamp.Missing() || req.Timestamp.Empty() ||
		req.TransactionID.Missing() {
		s.sendError(sess, f.RawID, ProtocolError)
		return
	}
	if req.Timestamp.Status == FieldSet && !validTimestamp(req.Timestamp.Value) {
		s.sendError(sess, f.RawID, PropertyConstraintViolation)
		return
	}

	var code ErrorCode
	switch {
	case req.IdTag.TypeViolated() ||
		req.MeterStop.TypeViolated() || req.MeterStop.Negative() ||
		req.Timestamp.TypeViolated() ||
		req.TransactionID.TypeViolated() || req.TransactionID.Negative() ||
		req.Reason.TypeViolated():
		code = TypeConstraintViolation
	case req.IdTag.Empty() || req.Reason.Unrecognized():
		code = PropertyConstraintViolation
	case req.IdTag.TooLong(maxIdTagLen):
		code = OccurrenceConstraintViolation
	}
	if code != "" {
		s.sendError(sess, f.RawID, code)
		return
	}

	for _, td := range req.TransactionData {
		if v := validateTransactionDatum(td); v != nil {
			s.sendError(sess, f.RawID, v.Code)
			return
		}
	}

	// Either the idTag or the transactionId may identify the connector;
	// the transactionId wins when both match.
	connector := 0
	if req.IdTag.Present() {
		connector = sess.connectorByIdTag(req.IdTag.Value)
	}
	if c := sess.connectorByTransaction(req.TransactionID.Value); c != 0 {
		connector = c
	}
	if connector == 0 {
		s.log.Debug("StopTransaction for unknown transaction",
			zap.Int("charger_id", sess.ChargerID),
			zap.Int64("transaction_id", req.TransactionID.Value),
		)
	}

	if req.IdTag.Present() {
		status := authInvalid
		if s.idTagAllowed(req.IdTag.Value) &&
			connector > 0 &&
			strings.EqualFold(req.IdTag.Value, sess.ActiveIdTags[connector]) &&
			strings.EqualFold(req.IdTag.Value, sess.LastAuthorizedIdTag) {
			status = authAccepted
			s.log.Debug("StopTransaction accepted", zap.Int("charger_id", sess.ChargerID))
		} else {
			s.log.Warn("StopTransaction invalid idTag", zap.Int("charger_id", sess.ChargerID))
		}
		s.sendResult(sess, f.RawID, stopTransactionConf{IdTagInfo: &idTagInfo{Status: status}})
	} else {
		// Without an idTag the stop is accepted as-is.
		s.sendResult(sess, f.RawID, emptyConf{})
	}

	if connector > 0 {
		stoppedTx := sess.ActiveTransactions[connector]
		sess.ActiveIdTags[connector] = noCharging
		sess.ActiveTransactions[connector] = noTransaction

		event := &domain.TransactionEvent{
			ChargerID: sess.ChargerID,
			Event:     domain.TransactionStop,
			Connector: int64(connector),
			Timestamp: nowRFC3339(),
			Reason:    req.Reason.Token,
		}
		if err := s.store.SaveTransactionEvent(context.Background(), event); err != nil {
			s.log.Error("Failed to save transaction stop",
				zap.Int("charger_id", sess.ChargerID),
				zap.Error(err),
			)
		}
		telemetry.ActiveTransactions.Dec()
		queue.PublishJSON(s.events, s.log, queue.SubjectTransactionStopped, queue.TransactionStoppedEvent{
			ChargerID:     sess.ChargerID,
			Connector:     int64(connector),
			TransactionID: stoppedTx,
			Reason:        req.Reason.Token,
		})
	}

	s.pushChargerSnapshot(sess, "stopTransaction")
}

// validateTransactionDatum runs the MeterValues element checks over one
// transactionData entry. The samples are validated but not persisted.
func validateTransactionDatum(td meterValue) *Violation {
	if td.Timestamp.Missing() || td.Timestamp.Empty() {
		return violation(ProtocolError)
	}
	if td.Timestamp.TypeViolated() {
		return violation(TypeConstraintViolation)
	}
	if !validTimestamp(td.Timestamp.Value) {
		return violation(PropertyConstraintViolation)
	}
	for _, sv := range td.SampledValue {
		if sv.Value.Missing() || sv.Value.Empty() {
			return violation(ProtocolError)
		}
		if sv.Value.TypeViolated() ||
			sv.Context.TypeViolated() || sv.Format.TypeViolated() ||
			sv.Measurand.TypeViolated() || sv.Phase.TypeViolated() ||
			sv.Location.TypeViolated() || sv.Unit.TypeViolated() {
			return violation(TypeConstraintViolation)
		}
		if sv.Context.Unrecognized() || sv.Format.Unrecognized() ||
			sv.Measurand.Unrecognized() || sv.Phase.Unrecognized() ||
			sv.Location.Unrecognized() || sv.Unit.Unrecognized() {
			return violation(PropertyConstraintViolation)
		}
	}
	return nil
}

func anyTypeViolated(fields []String) bool {
	for _, f := range fields {
		if f.TypeViolated() {
			return true
		}
	}
	return false
}

func anyPresentEmpty(fields []String) bool {
	for _, f := range fields {
		if f.Empty() {
			return true
		}
	}
	return false
}

func anyTooLong(fields []String, max int) bool {
	for _, f := range fields {
		if f.TooLong(max) {
			return true
		}
	}
	return false
}
