package v16

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/seu-repo/ocpp-central/internal/adapter/queue"
	"github.com/seu-repo/ocpp-central/internal/domain"
)

func TestBootGate_RejectsEverythingBeforeBoot(t *testing.T) {
	s, _, _ := newTestServer()
	sess, conn := attachCharger(t, s)

	s.dispatch(sess, callFrame("1", "Authorize", `{"idTag":"12345"}`))

	assertCallError(t, conn.last(t), GenericError)
	if sess.LastAuthorizedIdTag != "" {
		t.Error("expected no authorization before boot")
	}
}

func TestBootNotification_Accepted(t *testing.T) {
	s, _, q := newTestServer()
	sess, conn := attachCharger(t, s)

	s.dispatch(sess, callFrame("1", "BootNotification",
		`{"chargePointVendor":"MicroOcpp","chargePointModel":"MicroOcpp Simulator"}`))

	payload := assertCallResult(t, conn.last(t))
	var conf struct {
		CurrentTime string `json:"currentTime"`
		Interval    int    `json:"interval"`
		Status      string `json:"status"`
	}
	if err := json.Unmarshal(payload, &conf); err != nil {
		t.Fatalf("unparseable conf: %v", err)
	}
	if conf.Status != "Accepted" {
		t.Errorf("expected Accepted, got %s", conf.Status)
	}
	if conf.Interval != 86400 {
		t.Errorf("expected interval 86400, got %d", conf.Interval)
	}
	if !validTimestamp(conf.CurrentTime) {
		t.Errorf("expected RFC3339 currentTime, got %q", conf.CurrentTime)
	}

	if sess.BootStatus != BootAccepted {
		t.Error("expected session BootAccepted")
	}
	if sess.Vendor != "MicroOcpp" || sess.Model != "MicroOcpp Simulator" {
		t.Errorf("expected identity stored, got %q/%q", sess.Vendor, sess.Model)
	}

	if len(q.Published) != 1 || q.Published[0].Subject != queue.SubjectChargerBoot {
		t.Fatalf("expected one %s event, got %+v", queue.SubjectChargerBoot, q.Published)
	}
}

func TestBootNotification_UnblocksOtherActions(t *testing.T) {
	s, _, _ := newTestServer()
	sess, conn := attachCharger(t, s)
	bootCharger(t, s, sess, conn)

	s.dispatch(sess, callFrame("2", "Heartbeat", `{}`))
	payload := assertCallResult(t, conn.last(t))
	if !strings.Contains(string(payload), "currentTime") {
		t.Errorf("expected heartbeat conf, got %s", payload)
	}
}

func TestBootNotification_Taxonomy(t *testing.T) {
	cases := []struct {
		name    string
		payload string
		code    ErrorCode
	}{
		{"not an object", `[1,2]`, FormationViolation},
		{"missing vendor", `{"chargePointModel":"M"}`, ProtocolError},
		{"empty model", `{"chargePointVendor":"V","chargePointModel":""}`, ProtocolError},
		{"vendor err sentinel", `{"chargePointVendor":"err","chargePointModel":"M"}`, TypeConstraintViolation},
		{"model wrong type", `{"chargePointVendor":"V","chargePointModel":7}`, TypeConstraintViolation},
		{"optional present empty", `{"chargePointVendor":"V","chargePointModel":"M","firmwareVersion":""}`, PropertyConstraintViolation},
		{"vendor too long", fmt.Sprintf(`{"chargePointVendor":%q,"chargePointModel":"M"}`, strings.Repeat("v", 21)), OccurrenceConstraintViolation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s, _, _ := newTestServer()
			sess, conn := attachCharger(t, s)
			s.dispatch(sess, callFrame("1", "BootNotification", tc.payload))
			assertCallError(t, conn.last(t), tc.code)
			if sess.BootStatus != BootRejected {
				t.Error("expected boot to stay rejected")
			}
		})
	}
}

func TestBootNotification_AllowlistRejection(t *testing.T) {
	s, _, _ := newTestServer()
	s.cfg.OCPP.EnforceBootAllowlist = true
	sess, conn := attachCharger(t, s)

	s.dispatch(sess, callFrame("1", "BootNotification",
		`{"chargePointVendor":"Unknown","chargePointModel":"X"}`))

	payload := assertCallResult(t, conn.last(t))
	var conf struct {
		Interval int    `json:"interval"`
		Status   string `json:"status"`
	}
	json.Unmarshal(payload, &conf)
	if conf.Status != "Rejected" {
		t.Errorf("expected Rejected, got %s", conf.Status)
	}
	if conf.Interval != 300 {
		t.Errorf("expected resend interval 300, got %d", conf.Interval)
	}
	if sess.BootStatus != BootRejected {
		t.Error("expected session to stay unregistered")
	}
}

func authorizeStatus(t *testing.T, payload json.RawMessage) string {
	t.Helper()
	var conf struct {
		IdTagInfo struct {
			Status string `json:"status"`
		} `json:"idTagInfo"`
	}
	if err := json.Unmarshal(payload, &conf); err != nil {
		t.Fatalf("unparseable idTagInfo conf: %v", err)
	}
	return conf.IdTagInfo.Status
}

func TestAuthorize_Accepted(t *testing.T) {
	s, _, _ := newTestServer()
	sess, conn := attachCharger(t, s)
	bootCharger(t, s, sess, conn)

	s.dispatch(sess, callFrame("2", "Authorize", `{"idTag":"12345"}`))

	if got := authorizeStatus(t, assertCallResult(t, conn.last(t))); got != "Accepted" {
		t.Errorf("expected Accepted, got %s", got)
	}
	if sess.LastAuthorizedIdTag != "12345" {
		t.Errorf("expected LastAuthorizedIdTag 12345, got %q", sess.LastAuthorizedIdTag)
	}
}

func TestAuthorize_CaseInsensitive(t *testing.T) {
	s, _, _ := newTestServer()
	sess, conn := attachCharger(t, s)
	bootCharger(t, s, sess, conn)

	s.dispatch(sess, callFrame("2", "Authorize", `{"idTag":"d0431f35"}`))

	if got := authorizeStatus(t, assertCallResult(t, conn.last(t))); got != "Accepted" {
		t.Errorf("expected Accepted for case-differing tag, got %s", got)
	}
}

func TestAuthorize_Invalid(t *testing.T) {
	s, _, _ := newTestServer()
	sess, conn := attachCharger(t, s)
	bootCharger(t, s, sess, conn)

	s.dispatch(sess, callFrame("2", "Authorize", `{"idTag":"not-listed"}`))

	if got := authorizeStatus(t, assertCallResult(t, conn.last(t))); got != "Invalid" {
		t.Errorf("expected Invalid, got %s", got)
	}
	if sess.LastAuthorizedIdTag != "" {
		t.Error("expected no authorization recorded")
	}
}

func TestAuthorize_Taxonomy(t *testing.T) {
	cases := []struct {
		name    string
		payload string
		code    ErrorCode
	}{
		{"missing idTag", `{}`, ProtocolError},
		{"empty idTag", `{"idTag":""}`, ProtocolError},
		{"err sentinel", `{"idTag":"err"}`, TypeConstraintViolation},
		{"wrong type", `{"idTag":5}`, TypeConstraintViolation},
		{"21 bytes", fmt.Sprintf(`{"idTag":%q}`, strings.Repeat("a", 21)), OccurrenceConstraintViolation},
		{"not an object", `"idTag"`, FormationViolation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s, _, _ := newTestServer()
			sess, conn := attachCharger(t, s)
			bootCharger(t, s, sess, conn)
			s.dispatch(sess, callFrame("2", "Authorize", tc.payload))
			assertCallError(t, conn.last(t), tc.code)
		})
	}
}

func TestAuthorize_BoundaryLength(t *testing.T) {
	s, _, _ := newTestServer()
	s.cfg.Auth.IdTags = append(s.cfg.Auth.IdTags, strings.Repeat("a", 20))
	sess, conn := attachCharger(t, s)
	bootCharger(t, s, sess, conn)

	s.dispatch(sess, callFrame("2", "Authorize", fmt.Sprintf(`{"idTag":%q}`, strings.Repeat("a", 20))))

	if got := authorizeStatus(t, assertCallResult(t, conn.last(t))); got != "Accepted" {
		t.Errorf("expected a 20 byte idTag to pass, got %s", got)
	}
}

func TestHeartbeat(t *testing.T) {
	s, _, _ := newTestServer()
	sess, conn := attachCharger(t, s)
	bootCharger(t, s, sess, conn)

	s.dispatch(sess, callFrame("2", "Heartbeat", `{}`))
	payload := assertCallResult(t, conn.last(t))
	var conf heartbeatConf
	json.Unmarshal(payload, &conf)
	if !validTimestamp(conf.CurrentTime) {
		t.Errorf("expected RFC3339 currentTime, got %q", conf.CurrentTime)
	}

	s.dispatch(sess, callFrame("3", "Heartbeat", `{"extra":1}`))
	assertCallError(t, conn.last(t), ProtocolError)

	s.dispatch(sess, callFrame("4", "Heartbeat", `[]`))
	assertCallError(t, conn.last(t), FormationViolation)
}

func TestDataTransfer(t *testing.T) {
	s, _, _ := newTestServer()
	sess, conn := attachCharger(t, s)
	bootCharger(t, s, sess, conn)

	s.dispatch(sess, callFrame("2", "DataTransfer", `{"vendorId":"acme","messageId":"m","data":"d"}`))
	payload := assertCallResult(t, conn.last(t))
	var conf dataTransferConf
	json.Unmarshal(payload, &conf)
	if conf.Status != "UnknownMessageId" {
		t.Errorf("expected UnknownMessageId, got %s", conf.Status)
	}

	cases := []struct {
		name    string
		payload string
		code    ErrorCode
	}{
		{"missing vendorId", `{"messageId":"m"}`, ProtocolError},
		{"vendorId wrong type", `{"vendorId":1}`, TypeConstraintViolation},
		{"data err sentinel", `{"vendorId":"acme","data":"err"}`, TypeConstraintViolation},
		{"messageId present empty", `{"vendorId":"acme","messageId":""}`, PropertyConstraintViolation},
		{"messageId 51 bytes", fmt.Sprintf(`{"vendorId":"acme","messageId":%q}`, strings.Repeat("m", 51)), OccurrenceConstraintViolation},
		{"vendorId 256 bytes", fmt.Sprintf(`{"vendorId":%q}`, strings.Repeat("v", 256)), OccurrenceConstraintViolation},
	}
	for i, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s.dispatch(sess, callFrame(fmt.Sprintf("dt-%d", i), "DataTransfer", tc.payload))
			assertCallError(t, conn.last(t), tc.code)
		})
	}
}

func TestMeterValues_PersistsSamples(t *testing.T) {
	s, repo, _ := newTestServer()
	sess, conn := attachCharger(t, s)
	bootCharger(t, s, sess, conn)

	s.dispatch(sess, callFrame("2", "MeterValues", `{
		"connectorId": 1,
		"transactionId": 4,
		"meterValue": [{
			"timestamp": "2024-03-01T10:00:00Z",
			"sampledValue": [
				{"value":"1200","measurand":"Energy.Active.Import.Register","unit":"Wh","context":"Sample.Periodic"},
				{"value":"230"}
			]
		}]
	}`))

	if string(assertCallResult(t, conn.last(t))) != "{}" {
		t.Error("expected empty conf")
	}
	if len(repo.MeterSamples) != 2 {
		t.Fatalf("expected 2 samples, got %d", len(repo.MeterSamples))
	}
	first := repo.MeterSamples[0]
	if first.ChargerID != sess.ChargerID || first.Connector != 1 || first.TransactionID != 4 {
		t.Errorf("unexpected sample identity: %+v", first)
	}
	if first.Timestamp != "2024-03-01T10:00:00Z" {
		t.Errorf("expected the meterValue timestamp, got %q", first.Timestamp)
	}
	if first.Value != "1200" || first.Unit != "Wh" || first.Measurand != "Energy.Active.Import.Register" {
		t.Errorf("unexpected sample tokens: %+v", first)
	}
	// Absent optional tokens persist as empty strings.
	second := repo.MeterSamples[1]
	if second.Unit != "" || second.Measurand != "" || second.Context != "" {
		t.Errorf("expected empty tokens for bare sample, got %+v", second)
	}
}

func TestMeterValues_PartialPersistOnLaterFailure(t *testing.T) {
	s, repo, _ := newTestServer()
	sess, conn := attachCharger(t, s)
	bootCharger(t, s, sess, conn)

	// First element is valid, second carries an unknown measurand.
	s.dispatch(sess, callFrame("2", "MeterValues", `{
		"connectorId": 1,
		"meterValue": [
			{"timestamp":"2024-03-01T10:00:00Z","sampledValue":[{"value":"10"}]},
			{"timestamp":"2024-03-01T10:01:00Z","sampledValue":[{"value":"11","measurand":"Bogus"}]}
		]
	}`))

	assertCallError(t, conn.last(t), PropertyConstraintViolation)
	if len(repo.MeterSamples) != 1 {
		t.Errorf("expected the first element's sample persisted, got %d", len(repo.MeterSamples))
	}
}

func TestMeterValues_Taxonomy(t *testing.T) {
	cases := []struct {
		name    string
		payload string
		code    ErrorCode
	}{
		{"missing connectorId", `{"meterValue":[{"timestamp":"2024-03-01T10:00:00Z","sampledValue":[{"value":"1"}]}]}`, ProtocolError},
		{"empty meterValue", `{"connectorId":1,"meterValue":[]}`, ProtocolError},
		{"negative connectorId", `{"connectorId":-1,"meterValue":[{"timestamp":"2024-03-01T10:00:00Z","sampledValue":[{"value":"1"}]}]}`, TypeConstraintViolation},
		{"missing timestamp", `{"connectorId":1,"meterValue":[{"sampledValue":[{"value":"1"}]}]}`, ProtocolError},
		{"bad timestamp", `{"connectorId":1,"meterValue":[{"timestamp":"yesterday","sampledValue":[{"value":"1"}]}]}`, PropertyConstraintViolation},
		{"missing value", `{"connectorId":1,"meterValue":[{"timestamp":"2024-03-01T10:00:00Z","sampledValue":[{}]}]}`, ProtocolError},
		{"value err sentinel", `{"connectorId":1,"meterValue":[{"timestamp":"2024-03-01T10:00:00Z","sampledValue":[{"value":"err"}]}]}`, TypeConstraintViolation},
		{"unknown unit", `{"connectorId":1,"meterValue":[{"timestamp":"2024-03-01T10:00:00Z","sampledValue":[{"value":"1","unit":"Furlongs"}]}]}`, PropertyConstraintViolation},
	}
	for i, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s, _, _ := newTestServer()
			sess, conn := attachCharger(t, s)
			bootCharger(t, s, sess, conn)
			s.dispatch(sess, callFrame(fmt.Sprintf("mv-%d", i), "MeterValues", tc.payload))
			assertCallError(t, conn.last(t), tc.code)
		})
	}
}

func startTransactionConfOf(t *testing.T, payload json.RawMessage) (string, int64) {
	t.Helper()
	var conf struct {
		IdTagInfo struct {
			Status string `json:"status"`
		} `json:"idTagInfo"`
		TransactionID int64 `json:"transactionId"`
	}
	if err := json.Unmarshal(payload, &conf); err != nil {
		t.Fatalf("unparseable conf: %v", err)
	}
	return conf.IdTagInfo.Status, conf.TransactionID
}

func startPayload(connector int, idTag string) string {
	return fmt.Sprintf(`{"connectorId":%d,"idTag":%q,"meterStart":0,"timestamp":"2024-03-01T10:00:00Z"}`, connector, idTag)
}

func TestStartTransaction_Accepted(t *testing.T) {
	s, _, _ := newTestServer()
	sess, conn := attachCharger(t, s)
	bootCharger(t, s, sess, conn)
	authorizeCharger(t, s, sess, conn, "12345")

	s.dispatch(sess, callFrame("3", "StartTransaction", startPayload(1, "12345")))

	status, txID := startTransactionConfOf(t, assertCallResult(t, conn.last(t)))
	if status != "Accepted" {
		t.Errorf("expected Accepted, got %s", status)
	}
	if txID != sess.CurrentTransactionID() {
		t.Errorf("expected the freshly minted transactionId, got %d", txID)
	}
	if sess.ActiveIdTags[1] != "12345" {
		t.Errorf("expected idTag attached to connector 1, got %q", sess.ActiveIdTags[1])
	}
	// The transaction binds on StatusNotification Charging, not yet.
	if sess.ActiveTransactions[1] != noTransaction {
		t.Error("expected no transaction bound before Charging status")
	}
}

func TestStartTransaction_NotAuthorized(t *testing.T) {
	s, _, _ := newTestServer()
	sess, conn := attachCharger(t, s)
	bootCharger(t, s, sess, conn)

	// Allow-listed tag, but nobody authorized it on this charger.
	s.dispatch(sess, callFrame("3", "StartTransaction", startPayload(1, "12345")))

	status, txID := startTransactionConfOf(t, assertCallResult(t, conn.last(t)))
	if status != "Invalid" {
		t.Errorf("expected Invalid, got %s", status)
	}
	// A transactionId is consumed even on refusal.
	if txID != 1 {
		t.Errorf("expected transactionId 1, got %d", txID)
	}
}

func TestStartTransaction_ConcurrentTx(t *testing.T) {
	s, _, _ := newTestServer()
	sess, conn := attachCharger(t, s)
	bootCharger(t, s, sess, conn)
	authorizeCharger(t, s, sess, conn, "12345")

	s.dispatch(sess, callFrame("3", "StartTransaction", startPayload(1, "12345")))
	s.dispatch(sess, callFrame("4", "StatusNotification", `{"connectorId":1,"errorCode":"NoError","status":"Charging"}`))

	firstTx := sess.ActiveTransactions[1]
	if firstTx == noTransaction {
		t.Fatal("expected a bound transaction after Charging status")
	}

	// Same connector busy.
	s.dispatch(sess, callFrame("5", "StartTransaction", startPayload(1, "12345")))
	status, txID := startTransactionConfOf(t, assertCallResult(t, conn.last(t)))
	if status != "ConcurrentTx" {
		t.Errorf("expected ConcurrentTx on busy connector, got %s", status)
	}
	if txID != firstTx+1 {
		t.Errorf("expected transactionId %d, got %d", firstTx+1, txID)
	}

	// Same idTag on the other connector.
	s.dispatch(sess, callFrame("6", "StartTransaction", startPayload(2, "12345")))
	status, _ = startTransactionConfOf(t, assertCallResult(t, conn.last(t)))
	if status != "ConcurrentTx" {
		t.Errorf("expected ConcurrentTx for busy idTag, got %s", status)
	}
}

func TestStartTransaction_ConnectorRange(t *testing.T) {
	s, _, _ := newTestServer()
	sess, conn := attachCharger(t, s)
	bootCharger(t, s, sess, conn)
	authorizeCharger(t, s, sess, conn, "12345")

	s.dispatch(sess, callFrame("3", "StartTransaction", startPayload(0, "12345")))
	assertCallError(t, conn.last(t), PropertyConstraintViolation)

	s.dispatch(sess, callFrame("4", "StartTransaction", startPayload(3, "12345")))
	assertCallError(t, conn.last(t), PropertyConstraintViolation)

	s.dispatch(sess, callFrame("5", "StartTransaction", startPayload(2, "12345")))
	status, _ := startTransactionConfOf(t, assertCallResult(t, conn.last(t)))
	if status != "Accepted" {
		t.Errorf("expected connector 2 to be valid, got %s", status)
	}
}

func TestStartTransaction_UnchargeableConnector(t *testing.T) {
	s, _, _ := newTestServer()
	sess, conn := attachCharger(t, s)
	bootCharger(t, s, sess, conn)
	authorizeCharger(t, s, sess, conn, "12345")
	s.dispatch(sess, callFrame("3", "StatusNotification", `{"connectorId":1,"errorCode":"NoError","status":"Faulted"}`))

	s.dispatch(sess, callFrame("4", "StartTransaction", startPayload(1, "12345")))
	status, _ := startTransactionConfOf(t, assertCallResult(t, conn.last(t)))
	if status != "Invalid" {
		t.Errorf("expected Invalid on faulted connector, got %s", status)
	}
}

func TestStatusNotification_PersistsAndTracks(t *testing.T) {
	s, repo, _ := newTestServer()
	sess, conn := attachCharger(t, s)
	bootCharger(t, s, sess, conn)

	s.dispatch(sess, callFrame("2", "StatusNotification", `{"connectorId":1,"errorCode":"NoError","status":"Preparing"}`))

	if string(assertCallResult(t, conn.frame(t, 0))) != "{}" {
		t.Error("expected empty conf")
	}
	if sess.Connectors[1] != ConnPreparing {
		t.Errorf("expected Preparing tracked, got %v", sess.Connectors[1])
	}
	if len(repo.ConnectorStates) != 1 {
		t.Fatalf("expected 1 state row, got %d", len(repo.ConnectorStates))
	}
	row := repo.ConnectorStates[0]
	if row.Status != "Preparing" || row.ErrorCode != "NoError" || row.Connector != 1 {
		t.Errorf("unexpected state row: %+v", row)
	}
}

func TestStatusNotification_ChargingBindsTransaction(t *testing.T) {
	s, repo, q := newTestServer()
	sess, conn := attachCharger(t, s)
	bootCharger(t, s, sess, conn)
	authorizeCharger(t, s, sess, conn, "12345")
	s.dispatch(sess, callFrame("3", "StartTransaction", startPayload(1, "12345")))

	q.Published = nil
	s.dispatch(sess, callFrame("4", "StatusNotification", `{"connectorId":1,"errorCode":"NoError","status":"Charging"}`))

	if sess.ActiveTransactions[1] != sess.CurrentTransactionID() {
		t.Errorf("expected transaction %d bound, got %d", sess.CurrentTransactionID(), sess.ActiveTransactions[1])
	}
	var startEvents []domain.TransactionEvent
	for _, ev := range repo.TransactionEvents {
		if ev.Event == domain.TransactionStart {
			startEvents = append(startEvents, ev)
		}
	}
	if len(startEvents) != 1 {
		t.Fatalf("expected 1 start event, got %d", len(startEvents))
	}
	if startEvents[0].Connector != 1 || startEvents[0].Reason != "" {
		t.Errorf("unexpected start event: %+v", startEvents[0])
	}
	if len(q.Published) != 1 || q.Published[0].Subject != queue.SubjectTransactionStarted {
		t.Errorf("expected one %s event, got %+v", queue.SubjectTransactionStarted, q.Published)
	}
}

func TestStatusNotification_AvailableClearsConnector(t *testing.T) {
	s, _, _ := newTestServer()
	sess, conn := attachCharger(t, s)
	bootCharger(t, s, sess, conn)
	sess.ActiveIdTags[1] = "12345"
	sess.ActiveTransactions[1] = 3

	s.dispatch(sess, callFrame("2", "StatusNotification", `{"connectorId":1,"errorCode":"NoError","status":"Available"}`))

	if sess.ActiveIdTags[1] != noCharging || sess.ActiveTransactions[1] != noTransaction {
		t.Error("expected connector cleared on Available")
	}
}

func TestStatusNotification_Taxonomy(t *testing.T) {
	cases := []struct {
		name    string
		payload string
		code    ErrorCode
	}{
		{"missing status", `{"connectorId":1,"errorCode":"NoError"}`, ProtocolError},
		{"status wrong type", `{"connectorId":1,"errorCode":"NoError","status":3}`, TypeConstraintViolation},
		{"info err sentinel", `{"connectorId":1,"errorCode":"NoError","status":"Available","info":"err"}`, TypeConstraintViolation},
		{"connector out of range", `{"connectorId":3,"errorCode":"NoError","status":"Available"}`, PropertyConstraintViolation},
		{"unknown status", `{"connectorId":1,"errorCode":"NoError","status":"Melting"}`, PropertyConstraintViolation},
		{"unknown errorCode", `{"connectorId":1,"errorCode":"Nope","status":"Available"}`, PropertyConstraintViolation},
		{"info 51 bytes", fmt.Sprintf(`{"connectorId":1,"errorCode":"NoError","status":"Available","info":%q}`, strings.Repeat("i", 51)), OccurrenceConstraintViolation},
	}
	for i, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s, _, _ := newTestServer()
			sess, conn := attachCharger(t, s)
			bootCharger(t, s, sess, conn)
			s.dispatch(sess, callFrame(fmt.Sprintf("sn-%d", i), "StatusNotification", tc.payload))
			assertCallError(t, conn.last(t), tc.code)
		})
	}
}

// runCharging drives sess to a bound transaction on connector 1 and
// returns its id.
func runCharging(t *testing.T, s *Server, sess *Session, conn *recordConn) int64 {
	t.Helper()
	bootCharger(t, s, sess, conn)
	authorizeCharger(t, s, sess, conn, "12345")
	s.dispatch(sess, callFrame("st-1", "StartTransaction", startPayload(1, "12345")))
	s.dispatch(sess, callFrame("st-2", "StatusNotification", `{"connectorId":1,"errorCode":"NoError","status":"Charging"}`))
	if sess.ActiveTransactions[1] == noTransaction {
		t.Fatal("charging setup failed")
	}
	conn.reset()
	return sess.ActiveTransactions[1]
}

func TestStopTransaction_Accepted(t *testing.T) {
	s, repo, q := newTestServer()
	sess, conn := attachCharger(t, s)
	txID := runCharging(t, s, sess, conn)
	q.Published = nil

	s.dispatch(sess, callFrame("4", "StopTransaction", fmt.Sprintf(
		`{"idTag":"12345","meterStop":1200,"timestamp":"2024-03-01T11:00:00Z","transactionId":%d,"reason":"Local"}`, txID)))

	if got := authorizeStatus(t, assertCallResult(t, conn.frame(t, 0))); got != "Accepted" {
		t.Errorf("expected Accepted, got %s", got)
	}
	if sess.ActiveIdTags[1] != noCharging || sess.ActiveTransactions[1] != noTransaction {
		t.Error("expected connector cleared after stop")
	}

	var stopEvents []domain.TransactionEvent
	for _, ev := range repo.TransactionEvents {
		if ev.Event == domain.TransactionStop {
			stopEvents = append(stopEvents, ev)
		}
	}
	if len(stopEvents) != 1 {
		t.Fatalf("expected 1 stop event, got %d", len(stopEvents))
	}
	if stopEvents[0].Reason != "Local" || stopEvents[0].Connector != 1 {
		t.Errorf("unexpected stop event: %+v", stopEvents[0])
	}
	if len(q.Published) != 1 || q.Published[0].Subject != queue.SubjectTransactionStopped {
		t.Errorf("expected one %s event, got %+v", queue.SubjectTransactionStopped, q.Published)
	}
}

func TestStopTransaction_WithoutIdTag(t *testing.T) {
	s, _, _ := newTestServer()
	sess, conn := attachCharger(t, s)
	txID := runCharging(t, s, sess, conn)

	s.dispatch(sess, callFrame("4", "StopTransaction", fmt.Sprintf(
		`{"meterStop":1200,"timestamp":"2024-03-01T11:00:00Z","transactionId":%d}`, txID)))

	// No idTag, no idTagInfo in the reply.
	if got := string(assertCallResult(t, conn.frame(t, 0))); got != "{}" {
		t.Errorf("expected empty conf, got %s", got)
	}
	if sess.ActiveTransactions[1] != noTransaction {
		t.Error("expected transaction cleared")
	}
}

func TestStopTransaction_InvalidIdTag(t *testing.T) {
	s, _, _ := newTestServer()
	sess, conn := attachCharger(t, s)
	txID := runCharging(t, s, sess, conn)

	s.dispatch(sess, callFrame("4", "StopTransaction", fmt.Sprintf(
		`{"idTag":"not-listed","meterStop":1200,"timestamp":"2024-03-01T11:00:00Z","transactionId":%d}`, txID)))

	if got := authorizeStatus(t, assertCallResult(t, conn.frame(t, 0))); got != "Invalid" {
		t.Errorf("expected Invalid, got %s", got)
	}
	// The transaction still ends: the connector was resolved by id.
	if sess.ActiveTransactions[1] != noTransaction {
		t.Error("expected transaction cleared despite invalid idTag")
	}
}

func TestStopTransaction_BadTimestampOutranksType(t *testing.T) {
	s, _, _ := newTestServer()
	sess, conn := attachCharger(t, s)
	runCharging(t, s, sess, conn)

	// An "err" timestamp fails the format check, which runs before the
	// type checks for this action.
	s.dispatch(sess, callFrame("4", "StopTransaction",
		`{"meterStop":1200,"timestamp":"err","transactionId":1}`))
	assertCallError(t, conn.last(t), PropertyConstraintViolation)
}

func TestStopTransaction_Taxonomy(t *testing.T) {
	cases := []struct {
		name    string
		payload string
		code    ErrorCode
	}{
		{"missing transactionId", `{"meterStop":1,"timestamp":"2024-03-01T11:00:00Z"}`, ProtocolError},
		{"missing timestamp", `{"meterStop":1,"transactionId":1}`, ProtocolError},
		{"meterStop wrong type", `{"meterStop":"x","timestamp":"2024-03-01T11:00:00Z","transactionId":1}`, TypeConstraintViolation},
		{"negative transactionId", `{"meterStop":1,"timestamp":"2024-03-01T11:00:00Z","transactionId":-2}`, TypeConstraintViolation},
		{"idTag present empty", `{"idTag":"","meterStop":1,"timestamp":"2024-03-01T11:00:00Z","transactionId":1}`, PropertyConstraintViolation},
		{"unknown reason", `{"meterStop":1,"timestamp":"2024-03-01T11:00:00Z","transactionId":1,"reason":"Boredom"}`, PropertyConstraintViolation},
		{"idTag 21 bytes", fmt.Sprintf(`{"idTag":%q,"meterStop":1,"timestamp":"2024-03-01T11:00:00Z","transactionId":1}`, strings.Repeat("a", 21)), OccurrenceConstraintViolation},
		{"bad transactionData sample", `{"meterStop":1,"timestamp":"2024-03-01T11:00:00Z","transactionId":1,"transactionData":[{"timestamp":"2024-03-01T11:00:00Z","sampledValue":[{}]}]}`, ProtocolError},
	}
	for i, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s, _, _ := newTestServer()
			sess, conn := attachCharger(t, s)
			bootCharger(t, s, sess, conn)
			s.dispatch(sess, callFrame(fmt.Sprintf("sp-%d", i), "StopTransaction", tc.payload))
			assertCallError(t, conn.last(t), tc.code)
		})
	}
}

func TestStopTransaction_TransactionDataNotPersisted(t *testing.T) {
	s, repo, _ := newTestServer()
	sess, conn := attachCharger(t, s)
	txID := runCharging(t, s, sess, conn)

	s.dispatch(sess, callFrame("4", "StopTransaction", fmt.Sprintf(
		`{"meterStop":1200,"timestamp":"2024-03-01T11:00:00Z","transactionId":%d,
		  "transactionData":[{"timestamp":"2024-03-01T11:00:00Z","sampledValue":[{"value":"1200"}]}]}`, txID)))

	assertCallResult(t, conn.frame(t, 0))
	if len(repo.MeterSamples) != 0 {
		t.Errorf("expected transactionData validated but not persisted, got %d rows", len(repo.MeterSamples))
	}
}

func TestDispatch_UnknownAction(t *testing.T) {
	s, _, _ := newTestServer()
	sess, conn := attachCharger(t, s)
	bootCharger(t, s, sess, conn)

	s.dispatch(sess, callFrame("2", "SignCertificate", `{}`))
	assertCallError(t, conn.last(t), NotSupported)
}

func TestDispatch_BadEnvelopeShape(t *testing.T) {
	s, _, _ := newTestServer()
	sess, conn := attachCharger(t, s)

	s.dispatch(sess, []byte(`[2,"1","Authorize"]`))
	assertCallError(t, conn.last(t), FormationViolation)
}

func TestDispatch_UnparseableFrameDropped(t *testing.T) {
	s, _, _ := newTestServer()
	sess, conn := attachCharger(t, s)

	s.dispatch(sess, []byte(`not json at all`))
	if conn.count() != 0 {
		t.Errorf("expected no reply to an unparseable frame, got %d", conn.count())
	}
}
