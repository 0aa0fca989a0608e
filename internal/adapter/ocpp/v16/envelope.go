package v16

import (
	"encoding/json"
	"errors"
	"fmt"
)

// OCPP 1.6-J message type numbers.
const (
	CallMessage       = 2
	CallResultMessage = 3
	CallErrorMessage  = 4
)

// Frame is a decoded OCPP-J envelope. RawID keeps the uniqueId element
// verbatim so replies echo exactly the bytes the peer sent, whatever JSON
// type they were.
type Frame struct {
	Type             int
	RawID            json.RawMessage
	UniqueID         string
	Action           string
	Payload          json.RawMessage
	ErrorCode        string
	ErrorDescription string
	ErrorDetails     json.RawMessage
}

var errMalformedEnvelope = errors.New("malformed ocpp envelope")

// ParseFrame decodes an OCPP-J array envelope. A frame whose outer shape
// cannot be read at all (not an array, missing type or uniqueId) yields
// errMalformedEnvelope; there is no uniqueId to correlate an error reply
// against, so the caller drops it. A frame with a readable type and
// uniqueId but a wrong element layout for that type comes back as
// (frame, errBadShape): the caller owes the peer a FormationViolation.
var errBadShape = errors.New("envelope shape does not match message type")

func ParseFrame(data []byte) (*Frame, error) {
	var elems []json.RawMessage
	if err := json.Unmarshal(data, &elems); err != nil {
		return nil, errMalformedEnvelope
	}
	if len(elems) < 2 {
		return nil, errMalformedEnvelope
	}

	f := &Frame{RawID: elems[1]}
	if err := json.Unmarshal(elems[0], &f.Type); err != nil {
		return nil, errMalformedEnvelope
	}
	// uniqueId is a string on the wire; keep a decoded copy for slot
	// matching when it is, but never require it for echoing.
	_ = json.Unmarshal(elems[1], &f.UniqueID)

	switch f.Type {
	case CallMessage:
		if len(elems) != 4 {
			return f, errBadShape
		}
		if err := json.Unmarshal(elems[2], &f.Action); err != nil {
			return f, errBadShape
		}
		f.Payload = elems[3]
	case CallResultMessage:
		if len(elems) != 3 {
			return f, errBadShape
		}
		f.Payload = elems[2]
	case CallErrorMessage:
		if len(elems) != 5 {
			return f, errBadShape
		}
		if err := json.Unmarshal(elems[2], &f.ErrorCode); err != nil {
			return f, errBadShape
		}
		if err := json.Unmarshal(elems[3], &f.ErrorDescription); err != nil {
			return f, errBadShape
		}
		f.ErrorDetails = elems[4]
	}
	return f, nil
}

// EncodeCall builds a [2, uid, action, payload] frame for an outbound call.
func EncodeCall(uniqueID, action string, payload json.RawMessage) ([]byte, error) {
	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}
	uid, err := json.Marshal(uniqueID)
	if err != nil {
		return nil, err
	}
	return json.Marshal([]json.RawMessage{
		json.RawMessage(fmt.Sprintf("%d", CallMessage)),
		uid,
		mustMarshalRaw(action),
		payload,
	})
}

// EncodeCallResult builds a [3, uid, payload] reply echoing rawID verbatim.
func EncodeCallResult(rawID json.RawMessage, payload interface{}) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal([]json.RawMessage{
		json.RawMessage(fmt.Sprintf("%d", CallResultMessage)),
		rawID,
		body,
	})
}

// EncodeCallError builds a [4, uid, code, description, {}] reply echoing
// rawID verbatim. Details is always the empty object.
func EncodeCallError(rawID json.RawMessage, v *Violation) ([]byte, error) {
	return json.Marshal([]json.RawMessage{
		json.RawMessage(fmt.Sprintf("%d", CallErrorMessage)),
		rawID,
		mustMarshalRaw(string(v.Code)),
		mustMarshalRaw(v.Description()),
		json.RawMessage(`{}`),
	})
}

func mustMarshalRaw(s string) json.RawMessage {
	b, _ := json.Marshal(s)
	return b
}
