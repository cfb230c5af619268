package errorsx

// ReasonCode is a short machine-readable error reason.
type ReasonCode string

const (
	ReasonUnknown ReasonCode = "unknown"

	ReasonSTTConnect ReasonCode = "stt_connect"
	ReasonSTTSend    ReasonCode = "stt_send"

	ReasonTTSConnect   ReasonCode = "tts_connect"
	ReasonTTSSend      ReasonCode = "tts_send"
	ReasonTTSRateLimit ReasonCode = "tts_rate_limit"

	ReasonLLMGenerate    ReasonCode = "llm_generate"
	ReasonLLMRateLimit   ReasonCode = "llm_rate_limit"
	ReasonLLMCircuitOpen ReasonCode = "llm_circuit_open"

	ReasonCRMRequest ReasonCode = "crm_request"
	ReasonCRMStatus  ReasonCode = "crm_status"
	ReasonCRMDecode  ReasonCode = "crm_decode"

	ReasonEscalationDial ReasonCode = "escalation_dial"

	ReasonRoomConnect ReasonCode = "room_connect"
	ReasonRoomPublish ReasonCode = "room_publish"

	ReasonEventLogWrite ReasonCode = "eventlog_write"
)
