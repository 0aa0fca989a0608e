package v16

// ErrorCode is an OCPP-J CALLERROR code.
type ErrorCode string

const (
	NotImplemented                ErrorCode = "NotImplemented"
	NotSupported                  ErrorCode = "NotSupported"
	InternalError                 ErrorCode = "InternalError"
	ProtocolError                 ErrorCode = "ProtocolError"
	SecurityError                 ErrorCode = "SecurityError"
	FormationViolation            ErrorCode = "FormationViolation"
	PropertyConstraintViolation   ErrorCode = "PropertyConstraintViolation"
	OccurrenceConstraintViolation ErrorCode = "OccurrenceConstraintViolation"
	TypeConstraintViolation       ErrorCode = "TypeConstraintViolation"
	GenericError                  ErrorCode = "GenericError"
)

// Canonical OCPP 1.6 error descriptions, sent verbatim in CALLERROR frames.
var errorDescriptions = map[ErrorCode]string{
	NotImplemented:                "Requested Action is not known by receiver",
	NotSupported:                  "Requested Action is recognized but not supported by the receiver",
	InternalError:                 "An internal error occurred and the receiver was not able to process the requested Action successfully",
	ProtocolError:                 "Payload for Action is incomplete",
	SecurityError:                 "During the processing of Action a security issue occurred preventing receiver from completing the Action successfully",
	FormationViolation:            "Payload for Action is syntactically incorrect or not conform the PDU structure for Action",
	PropertyConstraintViolation:   "Payload is syntactically correct but at least one field contains an invalid value",
	OccurrenceConstraintViolation: "Payload for Action is syntactically correct but at least one of the fields violates occurence constraints",
	TypeConstraintViolation:       "Payload for Action is syntactically correct but at least one of the fields violates data type constraints (e.g. \"somestring\": 12)",
	GenericError:                  "Generic Error",
}

// Violation is a protocol fault that must be answered with a CALLERROR.
// It deliberately does not implement the error interface: violations are
// wire-level outcomes, not Go errors, and never escape the dispatcher.
type Violation struct {
	Code ErrorCode
}

func (v *Violation) Description() string {
	return errorDescriptions[v.Code]
}

func violation(code ErrorCode) *Violation {
	return &Violation{Code: code}
}
