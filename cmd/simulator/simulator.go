package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// SimulatorConfig holds the simulated charge point's identity and scenario
// parameters.
type SimulatorConfig struct {
	ServerURL  string
	Vendor     string
	Model      string
	IdTag      string
	Connector  int
	MeterStart int
	Heartbeat  time.Duration
}

// Simulator is a minimal OCPP 1.6-J charge point. It drives the happy-path
// charging flow against a central system and answers the central system's
// own calls with canned confirmations.
type Simulator struct {
	cfg *SimulatorConfig
	log *zap.Logger

	mu       sync.Mutex
	conn     *websocket.Conn
	nextID   int
	resultCh chan json.RawMessage

	transactionID int64
	meterWh       int

	stopOnce sync.Once
	done     chan struct{}
}

func NewSimulator(cfg *SimulatorConfig, log *zap.Logger) *Simulator {
	return &Simulator{
		cfg:      cfg,
		log:      log,
		resultCh: make(chan json.RawMessage, 1),
		meterWh:  cfg.MeterStart,
		done:     make(chan struct{}),
	}
}

// Connect dials the central system and starts the reader.
func (s *Simulator) Connect() error {
	conn, _, err := websocket.DefaultDialer.Dial(s.cfg.ServerURL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", s.cfg.ServerURL, err)
	}
	s.conn = conn
	s.log.Info("Connected to central system", zap.String("url", s.cfg.ServerURL))

	go s.readLoop()
	if s.cfg.Heartbeat > 0 {
		go s.heartbeatLoop()
	}
	return nil
}

// Run blocks until Stop is called.
func (s *Simulator) Run() {
	<-s.done
}

func (s *Simulator) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
		if s.conn != nil {
			s.conn.Close()
		}
	})
}

// RunScenario walks the full charging flow: boot, authorize, plug in,
// start, a meter sample, stop, unplug.
func (s *Simulator) RunScenario() error {
	if err := s.bootNotification(); err != nil {
		return err
	}
	if err := s.authorize(); err != nil {
		return err
	}
	if err := s.statusNotification(s.cfg.Connector, "Preparing"); err != nil {
		return err
	}
	if err := s.startTransaction(); err != nil {
		return err
	}
	if err := s.statusNotification(s.cfg.Connector, "Charging"); err != nil {
		return err
	}
	s.meterWh += 1200
	if err := s.meterValues(); err != nil {
		return err
	}
	if err := s.stopTransaction("Local"); err != nil {
		return err
	}
	if err := s.statusNotification(s.cfg.Connector, "Available"); err != nil {
		return err
	}
	s.log.Info("Scenario complete", zap.Int64("transaction_id", s.transactionID))
	return nil
}

func (s *Simulator) bootNotification() error {
	res, err := s.call("BootNotification", map[string]interface{}{
		"chargePointVendor": s.cfg.Vendor,
		"chargePointModel":  s.cfg.Model,
	})
	if err != nil {
		return err
	}
	var conf struct {
		Status   string `json:"status"`
		Interval int    `json:"interval"`
	}
	if err := json.Unmarshal(res, &conf); err != nil {
		return err
	}
	s.log.Info("BootNotification answered",
		zap.String("status", conf.Status),
		zap.Int("interval", conf.Interval),
	)
	if conf.Status != "Accepted" {
		return fmt.Errorf("boot rejected, retry in %ds", conf.Interval)
	}
	return nil
}

func (s *Simulator) authorize() error {
	res, err := s.call("Authorize", map[string]interface{}{"idTag": s.cfg.IdTag})
	if err != nil {
		return err
	}
	var conf struct {
		IdTagInfo struct {
			Status string `json:"status"`
		} `json:"idTagInfo"`
	}
	if err := json.Unmarshal(res, &conf); err != nil {
		return err
	}
	s.log.Info("Authorize answered", zap.String("status", conf.IdTagInfo.Status))
	if conf.IdTagInfo.Status != "Accepted" {
		return fmt.Errorf("authorization %s", conf.IdTagInfo.Status)
	}
	return nil
}

func (s *Simulator) statusNotification(connector int, status string) error {
	_, err := s.call("StatusNotification", map[string]interface{}{
		"connectorId": connector,
		"errorCode":   "NoError",
		"status":      status,
	})
	return err
}

func (s *Simulator) startTransaction() error {
	res, err := s.call("StartTransaction", map[string]interface{}{
		"connectorId": s.cfg.Connector,
		"idTag":       s.cfg.IdTag,
		"meterStart":  s.meterWh,
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	var conf struct {
		IdTagInfo struct {
			Status string `json:"status"`
		} `json:"idTagInfo"`
		TransactionID int64 `json:"transactionId"`
	}
	if err := json.Unmarshal(res, &conf); err != nil {
		return err
	}
	s.transactionID = conf.TransactionID
	s.log.Info("StartTransaction answered",
		zap.String("status", conf.IdTagInfo.Status),
		zap.Int64("transaction_id", conf.TransactionID),
	)
	if conf.IdTagInfo.Status != "Accepted" {
		return fmt.Errorf("start refused: %s", conf.IdTagInfo.Status)
	}
	return nil
}

func (s *Simulator) meterValues() error {
	_, err := s.call("MeterValues", map[string]interface{}{
		"connectorId":   s.cfg.Connector,
		"transactionId": s.transactionID,
		"meterValue": []map[string]interface{}{{
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"sampledValue": []map[string]interface{}{{
				"value":     strconv.Itoa(s.meterWh),
				"measurand": "Energy.Active.Import.Register",
				"unit":      "Wh",
				"context":   "Sample.Periodic",
			}},
		}},
	})
	return err
}

func (s *Simulator) stopTransaction(reason string) error {
	_, err := s.call("StopTransaction", map[string]interface{}{
		"idTag":         s.cfg.IdTag,
		"meterStop":     s.meterWh,
		"timestamp":     time.Now().UTC().Format(time.RFC3339),
		"transactionId": s.transactionID,
		"reason":        reason,
	})
	return err
}

func (s *Simulator) heartbeatLoop() {
	ticker := time.NewTicker(s.cfg.Heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			if _, err := s.call("Heartbeat", map[string]interface{}{}); err != nil {
				s.log.Warn("Heartbeat failed", zap.Error(err))
			}
		}
	}
}

// call sends one CALL frame and waits for its CALLRESULT. CALLERROR replies
// surface as errors carrying the code and description.
func (s *Simulator) call(action string, payload interface{}) (json.RawMessage, error) {
	s.mu.Lock()
	s.nextID++
	uid := strconv.Itoa(s.nextID)
	frame, err := json.Marshal([]interface{}{2, uid, action, payload})
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	err = s.conn.WriteMessage(websocket.TextMessage, frame)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	select {
	case res := <-s.resultCh:
		return res, nil
	case <-time.After(10 * time.Second):
		return nil, fmt.Errorf("%s: no response", action)
	case <-s.done:
		return nil, fmt.Errorf("%s: simulator stopped", action)
	}
}

// readLoop routes inbound frames: results feed the caller, calls from the
// central system get canned confirmations.
func (s *Simulator) readLoop() {
	for {
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.done:
			default:
				s.log.Warn("Connection closed", zap.Error(err))
				s.Stop()
			}
			return
		}

		var elems []json.RawMessage
		if err := json.Unmarshal(message, &elems); err != nil || len(elems) < 3 {
			s.log.Warn("Unparseable frame", zap.ByteString("frame", message))
			continue
		}
		var msgType int
		if err := json.Unmarshal(elems[0], &msgType); err != nil {
			continue
		}

		switch msgType {
		case 2:
			s.answerCall(elems)
		case 3:
			select {
			case s.resultCh <- elems[2]:
			default:
				s.log.Warn("Unexpected CALLRESULT dropped")
			}
		case 4:
			var code, desc string
			json.Unmarshal(elems[2], &code)
			if len(elems) > 3 {
				json.Unmarshal(elems[3], &desc)
			}
			s.log.Warn("CALLERROR received",
				zap.String("code", code),
				zap.String("description", desc),
			)
			select {
			case s.resultCh <- nil:
			default:
			}
		}
	}
}

// answerCall replies to a central system call with the schema's minimal
// accepted confirmation.
func (s *Simulator) answerCall(elems []json.RawMessage) {
	if len(elems) != 4 {
		return
	}
	var action string
	if err := json.Unmarshal(elems[2], &action); err != nil {
		return
	}
	s.log.Info("Central system call received", zap.String("action", action))

	var payload interface{}
	switch action {
	case "ChangeAvailability", "ClearCache", "RemoteStartTransaction", "RemoteStopTransaction", "Reset":
		payload = map[string]string{"status": "Accepted"}
	case "UnlockConnector":
		payload = map[string]string{"status": "Unlocked"}
	case "DataTransfer":
		payload = map[string]string{"status": "Accepted", "data": "ok"}
	case "GetConfiguration":
		payload = map[string]interface{}{
			"configurationKey": []map[string]interface{}{{
				"key":      "HeartbeatInterval",
				"readonly": false,
				"value":    "86400",
			}},
		}
	default:
		frame, _ := json.Marshal([]interface{}{4, json.RawMessage(elems[1]), "NotImplemented",
			"Requested Action is not known by receiver", map[string]string{}})
		s.write(frame)
		return
	}

	frame, err := json.Marshal([]interface{}{3, json.RawMessage(elems[1]), payload})
	if err != nil {
		return
	}
	s.write(frame)
}

func (s *Simulator) write(frame []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		s.log.Warn("Write failed", zap.Error(err))
	}
}
