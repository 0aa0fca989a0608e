package v16

import (
	"encoding/json"
	"time"
)

// FieldStatus is the decode outcome of a single payload field. Absent and
// WrongType are distinct so handlers can answer ProtocolError for a missing
// required field and TypeConstraintViolation for a present-but-mistyped one
// without sentinel collisions.
type FieldStatus int

const (
	FieldAbsent FieldStatus = iota
	FieldWrongType
	FieldSet
)

// String decodes a JSON string field, tagging the outcome. The literal
// value "err" counts as a type fault: charge point firmware in the field
// stuffs that sentinel into fields it failed to populate.
type String struct {
	Status FieldStatus
	Value  string
}

func (s *String) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	var v string
	if err := json.Unmarshal(b, &v); err != nil {
		s.Status = FieldWrongType
		return nil
	}
	s.Status = FieldSet
	s.Value = v
	return nil
}

func (s String) Present() bool { return s.Status != FieldAbsent }
func (s String) Missing() bool { return s.Status == FieldAbsent }

// TypeViolated reports a wrong JSON type or the "err" sentinel.
func (s String) TypeViolated() bool {
	return s.Status == FieldWrongType || (s.Status == FieldSet && s.Value == "err")
}

// Empty reports a present string with no content.
func (s String) Empty() bool { return s.Status == FieldSet && s.Value == "" }

// TooLong reports a set value over max bytes.
func (s String) TooLong(max int) bool {
	return s.Status == FieldSet && len(s.Value) > max
}

// Int decodes a JSON integer field, tagging the outcome. Fractional
// numbers count as a wrong type.
type Int struct {
	Status FieldStatus
	Value  int64
}

func (i *Int) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	var v int64
	if err := json.Unmarshal(b, &v); err != nil {
		i.Status = FieldWrongType
		return nil
	}
	i.Status = FieldSet
	i.Value = v
	return nil
}

func (i Int) Present() bool      { return i.Status != FieldAbsent }
func (i Int) Missing() bool      { return i.Status == FieldAbsent }
func (i Int) TypeViolated() bool { return i.Status == FieldWrongType }

// Negative reports a set value below zero.
func (i Int) Negative() bool { return i.Status == FieldSet && i.Value < 0 }

// Enum decodes a JSON string field against a closed token table. A wrong
// JSON type is a type fault; a string outside the table is a property
// fault. Ordinal indexes the table the field was decoded against.
type Enum struct {
	Status  FieldStatus
	Known   bool
	Ordinal int
	Token   string
}

func (e *Enum) decode(b []byte, tokens []string) {
	if string(b) == "null" {
		return
	}
	var v string
	if err := json.Unmarshal(b, &v); err != nil {
		e.Status = FieldWrongType
		return
	}
	e.Status = FieldSet
	e.Token = v
	for i, t := range tokens {
		if t == v {
			e.Known = true
			e.Ordinal = i
			return
		}
	}
}

func (e Enum) Present() bool      { return e.Status != FieldAbsent }
func (e Enum) Missing() bool      { return e.Status == FieldAbsent }
func (e Enum) TypeViolated() bool { return e.Status == FieldWrongType }

// Unrecognized reports a well-typed token outside the table.
func (e Enum) Unrecognized() bool { return e.Status == FieldSet && !e.Known }

// Token tables. Ordinals are load-bearing for connector status (they are
// the numeric values of the operator snapshot wire format); the rest
// follow the OCPP 1.6 JSON schemas, spelling quirks included.

var connectorStatusTokens = []string{
	"Available",
	"Charging",
	"Faulted",
	"Finishing",
	"Preparing",
	"Reserved",
	"SuspendedEV",
	"SuspendedEVSE",
	"Unavailable",
}

var chargePointErrorCodeTokens = []string{
	"ConnectorLockFailure",
	"EVCommunicationError",
	"GroundFailure",
	"HighTemperature",
	"InternalError",
	"LocalListConflict",
	"NoError",
	"OtherError",
	"OverCurrentFailure",
	"PowerMeterFailure",
	"PowerSwitchFailure",
	"ReaderFailure",
	"ResetFailure",
	"UnderVoltage",
	"OverVoltage",
	"WeakSignal",
}

var stopReasonTokens = []string{
	"DeAuthorized",
	"EmergencyStop",
	"EVDisconnected",
	"HardReset",
	"Local",
	"Other",
	"PowerLoss",
	"Reboot",
	"Remote",
	"SoftReset",
	"UnlockCommand",
}

var readingContextTokens = []string{
	"Interruption.Begin",
	"Interruption.End",
	"Other",
	"Sample.Clock",
	"Sample.Periodic",
	"Transaction.Begin",
	"Transaction.End",
	"Trigger",
}

var valueFormatTokens = []string{
	"Raw",
	"SignedData",
}

var measurandTokens = []string{
	"Current.Export",
	"Current.Import",
	"Current.Offered",
	"Energy.Active.Export.Register",
	"Energy.Active.Import.Register",
	"Energy.Reactive.Export.Register",
	"Energy.Reactive.Import.Register",
	"Energy.Active.Export.Interval",
	"Energy.Active.Import.Interval",
	"Energy.Reactive.Export.Interval",
	"Energy.Reactive.Import.Interval",
	"Frequency",
	"Power.Active.Export",
	"Power.Active.Import",
	"Power.Factor",
	"Power.Offered",
	"Power.Reactive.Export",
	"Power.Reactive.Import",
	"RPM",
	"SoC",
	"Temperature",
	"Voltage",
}

var phaseTokens = []string{
	"L1",
	"L2",
	"L3",
	"N",
	"L1-N",
	"L2-N",
	"L3-N",
	"L1-L2",
	"L2-L3",
	"L3-L1",
}

var locationTokens = []string{
	"Body",
	"Cable",
	"EV",
	"Inlet",
	"Outlet",
}

// unitTokens mirrors the OCPP 1.6 UnitOfMeasure schema, which ships both
// the misspelled "Celcius" and the corrected "Celsius".
var unitTokens = []string{
	"A",
	"Celcius",
	"Celsius",
	"Fahrenheit",
	"K",
	"kvar",
	"kvarh",
	"kVA",
	"kW",
	"kWh",
	"Percent",
	"V",
	"VA",
	"var",
	"varh",
	"W",
	"Wh",
}

var availabilityTypeTokens = []string{"Inoperative", "Operative"}

var availabilityStatusTokens = []string{"Accepted", "Rejected", "Scheduled"}

var acceptRejectTokens = []string{"Accepted", "Rejected"}

var resetTypeTokens = []string{"Hard", "Soft"}

var unlockStatusTokens = []string{"Unlocked", "UnlockFailed", "NotSupported"}

var dataTransferStatusTokens = []string{
	"Accepted",
	"Rejected",
	"UnknownMessageId",
	"UnknownVendorId",
}

// Per-table wrapper types so json.Unmarshal picks the right table.

type ConnectorStatusField struct{ Enum }

func (f *ConnectorStatusField) UnmarshalJSON(b []byte) error {
	f.decode(b, connectorStatusTokens)
	return nil
}

type ChargePointErrorCodeField struct{ Enum }

func (f *ChargePointErrorCodeField) UnmarshalJSON(b []byte) error {
	f.decode(b, chargePointErrorCodeTokens)
	return nil
}

type StopReasonField struct{ Enum }

func (f *StopReasonField) UnmarshalJSON(b []byte) error {
	f.decode(b, stopReasonTokens)
	return nil
}

type ReadingContextField struct{ Enum }

func (f *ReadingContextField) UnmarshalJSON(b []byte) error {
	f.decode(b, readingContextTokens)
	return nil
}

type ValueFormatField struct{ Enum }

func (f *ValueFormatField) UnmarshalJSON(b []byte) error {
	f.decode(b, valueFormatTokens)
	return nil
}

type MeasurandField struct{ Enum }

func (f *MeasurandField) UnmarshalJSON(b []byte) error {
	f.decode(b, measurandTokens)
	return nil
}

type PhaseField struct{ Enum }

func (f *PhaseField) UnmarshalJSON(b []byte) error {
	f.decode(b, phaseTokens)
	return nil
}

type LocationField struct{ Enum }

func (f *LocationField) UnmarshalJSON(b []byte) error {
	f.decode(b, locationTokens)
	return nil
}

type UnitField struct{ Enum }

func (f *UnitField) UnmarshalJSON(b []byte) error {
	f.decode(b, unitTokens)
	return nil
}

type AvailabilityTypeField struct{ Enum }

func (f *AvailabilityTypeField) UnmarshalJSON(b []byte) error {
	f.decode(b, availabilityTypeTokens)
	return nil
}

type AvailabilityStatusField struct{ Enum }

func (f *AvailabilityStatusField) UnmarshalJSON(b []byte) error {
	f.decode(b, availabilityStatusTokens)
	return nil
}

type AcceptRejectField struct{ Enum }

func (f *AcceptRejectField) UnmarshalJSON(b []byte) error {
	f.decode(b, acceptRejectTokens)
	return nil
}

type ResetTypeField struct{ Enum }

func (f *ResetTypeField) UnmarshalJSON(b []byte) error {
	f.decode(b, resetTypeTokens)
	return nil
}

type UnlockStatusField struct{ Enum }

func (f *UnlockStatusField) UnmarshalJSON(b []byte) error {
	f.decode(b, unlockStatusTokens)
	return nil
}

type DataTransferStatusField struct{ Enum }

func (f *DataTransferStatusField) UnmarshalJSON(b []byte) error {
	f.decode(b, dataTransferStatusTokens)
	return nil
}

// validTimestamp accepts RFC 3339 with either a Z or a numeric offset
// suffix, which covers every firmware seen in the field so far.
func validTimestamp(s string) bool {
	_, err := time.Parse(time.RFC3339, s)
	return err == nil
}
