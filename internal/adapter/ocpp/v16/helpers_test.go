package v16

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/seu-repo/ocpp-central/internal/mocks"
	"github.com/seu-repo/ocpp-central/pkg/config"
)

func newTestLogger() *zap.Logger {
	logger, _ := zap.NewDevelopment()
	return logger
}

func newTestConfig() *config.Config {
	return &config.Config{
		OCPP: config.OCPPConfig{
			MaxChargers:        5,
			NumConnectors:      2,
			HeartbeatInterval:  86400,
			ResendBootInterval: 300,
			CallTimeout:        50 * time.Millisecond,
		},
		Auth: config.AuthConfig{
			IdTags:  []string{"12345", "D0431F35", "idTag_Charger"},
			Vendors: []string{"MicroOcpp"},
			Models:  []string{"MicroOcpp Simulator"},
		},
	}
}

func newTestServer() (*Server, *mocks.MockTelemetryRepository, *mocks.MockMessageQueue) {
	cfg := newTestConfig()
	repo := &mocks.MockTelemetryRepository{}
	q := &mocks.MockMessageQueue{}
	s := &Server{
		cfg:      cfg,
		registry: NewRegistry(cfg.OCPP.MaxChargers, cfg.OCPP.NumConnectors),
		store:    repo,
		events:   q,
		log:      newTestLogger(),
	}
	return s, repo, q
}

// recordConn captures frames written to a session.
type recordConn struct {
	mu     sync.Mutex
	frames [][]byte
	notify chan []byte
}

func newRecordConn() *recordConn {
	return &recordConn{notify: make(chan []byte, 16)}
}

func (c *recordConn) WriteText(data []byte) error {
	c.mu.Lock()
	c.frames = append(c.frames, data)
	c.mu.Unlock()
	select {
	case c.notify <- data:
	default:
	}
	return nil
}

// reset discards everything recorded so far, including undelivered
// notifications.
func (c *recordConn) reset() {
	c.mu.Lock()
	c.frames = nil
	c.mu.Unlock()
	for {
		select {
		case <-c.notify:
		default:
			return
		}
	}
}

func (c *recordConn) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}

func (c *recordConn) frame(t *testing.T, i int) []byte {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	if i >= len(c.frames) {
		t.Fatalf("expected at least %d frames, got %d", i+1, len(c.frames))
	}
	return c.frames[i]
}

func (c *recordConn) last(t *testing.T) []byte {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.frames) == 0 {
		t.Fatal("expected a frame, got none")
	}
	return c.frames[len(c.frames)-1]
}

func callFrame(uid, action, payload string) []byte {
	return []byte(fmt.Sprintf(`[2,%q,%q,%s]`, uid, action, payload))
}

func resultFrame(uid, payload string) []byte {
	return []byte(fmt.Sprintf(`[3,%q,%s]`, uid, payload))
}

func decodeFrame(t *testing.T, data []byte) []json.RawMessage {
	t.Helper()
	var elems []json.RawMessage
	if err := json.Unmarshal(data, &elems); err != nil {
		t.Fatalf("unparseable frame %s: %v", data, err)
	}
	return elems
}

// assertCallError checks data is a CALLERROR carrying code and its
// canonical description.
func assertCallError(t *testing.T, data []byte, code ErrorCode) {
	t.Helper()
	elems := decodeFrame(t, data)
	if len(elems) != 5 {
		t.Fatalf("expected CALLERROR with 5 elements, got %d: %s", len(elems), data)
	}
	var msgType int
	json.Unmarshal(elems[0], &msgType)
	if msgType != CallErrorMessage {
		t.Fatalf("expected message type 4, got %d", msgType)
	}
	var gotCode, gotDesc string
	json.Unmarshal(elems[2], &gotCode)
	json.Unmarshal(elems[3], &gotDesc)
	if gotCode != string(code) {
		t.Errorf("expected error code %s, got %s", code, gotCode)
	}
	if gotDesc != errorDescriptions[code] {
		t.Errorf("expected description %q, got %q", errorDescriptions[code], gotDesc)
	}
	if string(elems[4]) != "{}" {
		t.Errorf("expected empty error details, got %s", elems[4])
	}
}

// assertCallResult checks data is a CALLRESULT and returns its payload.
func assertCallResult(t *testing.T, data []byte) json.RawMessage {
	t.Helper()
	elems := decodeFrame(t, data)
	if len(elems) != 3 {
		t.Fatalf("expected CALLRESULT with 3 elements, got %d: %s", len(elems), data)
	}
	var msgType int
	json.Unmarshal(elems[0], &msgType)
	if msgType != CallResultMessage {
		t.Fatalf("expected message type 3, got %d: %s", msgType, data)
	}
	return elems[2]
}

// attachCharger seats a fresh recorder connection in the first free slot.
func attachCharger(t *testing.T, s *Server) (*Session, *recordConn) {
	t.Helper()
	conn := newRecordConn()
	sess := s.registry.Attach(conn)
	if sess == nil {
		t.Fatal("no free charger slot")
	}
	return sess, conn
}

// bootCharger walks sess through an accepted BootNotification and clears
// the recorded frames.
func bootCharger(t *testing.T, s *Server, sess *Session, conn *recordConn) {
	t.Helper()
	s.dispatch(sess, callFrame("boot-1", "BootNotification",
		`{"chargePointVendor":"MicroOcpp","chargePointModel":"MicroOcpp Simulator"}`))
	if sess.BootStatus != BootAccepted {
		t.Fatal("boot was not accepted")
	}
	conn.reset()
}

// authorizeCharger runs an accepted Authorize for idTag and clears the
// recorded frames.
func authorizeCharger(t *testing.T, s *Server, sess *Session, conn *recordConn, idTag string) {
	t.Helper()
	s.dispatch(sess, callFrame("auth-1", "Authorize", fmt.Sprintf(`{"idTag":%q}`, idTag)))
	if sess.LastAuthorizedIdTag != idTag {
		t.Fatalf("expected LastAuthorizedIdTag %q, got %q", idTag, sess.LastAuthorizedIdTag)
	}
	conn.reset()
}
