package errorsx

// ReasonCode is a short machine-readable error reason.
type ReasonCode string

const (
	ReasonUnknown ReasonCode = "unknown"

	ReasonSTTConnect ReasonCode = "stt_connect"
	ReasonSTTSend    ReasonCode = "stt_send"
	ReasonSTTStream  ReasonCode = "stt_stream"

	ReasonTTSRequest    ReasonCode = "tts_request"
	ReasonTTSPermission ReasonCode = "tts_permission"
	ReasonTTSFallback   ReasonCode = "tts_fallback"

	ReasonLLMGenerate ReasonCode = "llm_generate"
	ReasonLLMTimeout  ReasonCode = "llm_timeout"

	ReasonTransportInvalidSignature ReasonCode = "webhook_invalid_signature"
	ReasonTransportSend             ReasonCode = "transport_send"

	ReasonStoreWrite ReasonCode = "store_write"
	ReasonStoreRead  ReasonCode = "store_read"
	ReasonEmailSend  ReasonCode = "email_send"
)
