package v16

// Maximum field lengths from the OCPP 1.6 payload schemas.
const (
	maxIdTagLen       = 20
	maxCiString20     = 20
	maxCiString50     = 50
	maxVendorIDLen    = 255
	maxConfigKeyLen   = 50
	maxConfigValueLen = 500
)

// Inbound request payloads. Fields use the tagged decode types so the
// handlers can tell absent, mistyped and out-of-range apart.

type authorizeReq struct {
	IdTag String `json:"idTag"`
}

type bootNotificationReq struct {
	ChargePointVendor       String `json:"chargePointVendor"`
	ChargePointModel        String `json:"chargePointModel"`
	ChargePointSerialNumber String `json:"chargePointSerialNumber"`
	ChargeBoxSerialNumber   String `json:"chargeBoxSerialNumber"`
	FirmwareVersion         String `json:"firmwareVersion"`
	Iccid                   String `json:"iccid"`
	Imsi                    String `json:"imsi"`
	MeterType               String `json:"meterType"`
	MeterSerialNumber       String `json:"meterSerialNumber"`
}

type dataTransferReq struct {
	VendorID  String `json:"vendorId"`
	MessageID String `json:"messageId"`
	Data      String `json:"data"`
}

type sampledValue struct {
	Value     String              `json:"value"`
	Context   ReadingContextField `json:"context"`
	Format    ValueFormatField    `json:"format"`
	Measurand MeasurandField      `json:"measurand"`
	Phase     PhaseField          `json:"phase"`
	Location  LocationField       `json:"location"`
	Unit      UnitField           `json:"unit"`
}

type meterValue struct {
	Timestamp    String         `json:"timestamp"`
	SampledValue []sampledValue `json:"sampledValue"`
}

type meterValuesReq struct {
	ConnectorID   Int          `json:"connectorId"`
	TransactionID Int          `json:"transactionId"`
	MeterValue    []meterValue `json:"meterValue"`
}

type startTransactionReq struct {
	ConnectorID   Int    `json:"connectorId"`
	IdTag         String `json:"idTag"`
	MeterStart    Int    `json:"meterStart"`
	ReservationID Int    `json:"reservationId"`
	Timestamp     String `json:"timestamp"`
}

type statusNotificationReq struct {
	ConnectorID     Int                       `json:"connectorId"`
	ErrorCode       ChargePointErrorCodeField `json:"errorCode"`
	Info            String                    `json:"info"`
	Status          ConnectorStatusField      `json:"status"`
	Timestamp       String                    `json:"timestamp"`
	VendorID        String                    `json:"vendorId"`
	VendorErrorCode String                    `json:"vendorErrorCode"`
}

type stopTransactionReq struct {
	IdTag           String          `json:"idTag"`
	MeterStop       Int             `json:"meterStop"`
	Timestamp       String          `json:"timestamp"`
	TransactionID   Int             `json:"transactionId"`
	Reason          StopReasonField `json:"reason"`
	TransactionData []meterValue    `json:"transactionData"`
}

// Reply payloads. Plain structs, marshalled as-is.

type idTagInfo struct {
	Status string `json:"status"`
}

type authorizeConf struct {
	IdTagInfo idTagInfo `json:"idTagInfo"`
}

type bootNotificationConf struct {
	CurrentTime string `json:"currentTime"`
	Interval    int    `json:"interval"`
	Status      string `json:"status"`
}

type dataTransferConf struct {
	Status string `json:"status"`
}

type heartbeatConf struct {
	CurrentTime string `json:"currentTime"`
}

type startTransactionConf struct {
	IdTagInfo     idTagInfo `json:"idTagInfo"`
	TransactionID int64     `json:"transactionId"`
}

type stopTransactionConf struct {
	IdTagInfo *idTagInfo `json:"idTagInfo,omitempty"`
}

type emptyConf struct{}

// Authorization statuses of idTagInfo.
const (
	authAccepted     = "Accepted"
	authBlocked      = "Blocked"
	authConcurrentTx = "ConcurrentTx"
	authExpired      = "Expired"
	authInvalid      = "Invalid"
)

// Registration statuses of BootNotification.conf.
const (
	regAccepted = "Accepted"
	regPending  = "Pending"
	regRejected = "Rejected"
)

// Outbound call confirmation payloads, decoded with the tagged types so the
// result validator can run the same taxonomy over them.

type statusConfResp struct {
	Status AcceptRejectField `json:"status"`
}

type changeAvailabilityConf struct {
	Status AvailabilityStatusField `json:"status"`
}

type unlockConnectorConf struct {
	Status UnlockStatusField `json:"status"`
}

type dataTransferConfResp struct {
	Status DataTransferStatusField `json:"status"`
	Data   String                  `json:"data"`
}

type configurationKey struct {
	Key      String `json:"key"`
	Readonly bool   `json:"readonly"`
	Value    String `json:"value"`
}

type getConfigurationConf struct {
	ConfigurationKey []configurationKey `json:"configurationKey"`
	UnknownKey       []String           `json:"unknownKey"`
}

// Outbound request payloads, decoded for validation before the call is
// emitted (the payload originates from the operator UI, not from us).

type changeAvailabilityCmd struct {
	ConnectorID Int                   `json:"connectorId"`
	Type        AvailabilityTypeField `json:"type"`
}

type remoteStartCmd struct {
	ConnectorID Int    `json:"connectorId"`
	IdTag       String `json:"idTag"`
}

type remoteStopCmd struct {
	TransactionID Int `json:"transactionId"`
}

type resetCmd struct {
	Type ResetTypeField `json:"type"`
}

type unlockConnectorCmd struct {
	ConnectorID Int `json:"connectorId"`
}

// standardConfigKeys is the closed set of OCPP 1.6 standard configuration
// keys tracked per session. GetConfiguration results update these; any
// other key lands in unknownKey.
var standardConfigKeys = []string{
	"AllowOfflineTxForUnknownId",
	"AuthorizationCacheEnabled",
	"AuthorizeRemoteTxRequests",
	"BlinkRepeat",
	"ClockAlignedDataInterval",
	"ConnectionTimeOut",
	"ConnectorPhaseRotation",
	"ConnectorPhaseRotationMaxLength",
	"GetConfigurationMaxKeys",
	"HeartbeatInterval",
	"LightIntensity",
	"LocalAuthorizeOffline",
	"LocalPreAuthorize",
	"MaxEnergyOnInvalidId",
	"MeterValuesAlignedData",
	"MeterValuesAlignedDataMaxLength",
	"MeterValuesSampledData",
	"MeterValuesSampledDataMaxLength",
	"MeterValueSampleInterval",
	"MinimumStatusDuration",
	"NumberOfConnectors",
	"ResetRetries",
	"StopTransactionOnEVSideDisconnect",
	"StopTransactionOnInvalidId",
	"StopTxnAlignedData",
	"StopTxnAlignedDataMaxLength",
	"StopTxnSampledData",
	"StopTxnSampledDataMaxLength",
	"SupportedFeatureProfiles",
	"SupportedFeatureProfilesMaxLength",
	"TransactionMessageAttempts",
	"TransactionMessageRetryInterval",
	"UnlockConnectorOnEVSideDisconnect",
	"WebSocketPingInterval",
}

func isStandardConfigKey(key string) bool {
	for _, k := range standardConfigKeys {
		if k == key {
			return true
		}
	}
	return false
}
