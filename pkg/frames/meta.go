package frames

// Metadata keys shared across transports, providers and the relay.
const (
	MetaStreamID      = "stream_id"
	MetaCallSID       = "call_sid"
	MetaTraceID       = "trace_id"
	MetaFromNumber    = "from_number"
	MetaSource        = "source"
	MetaIsFinal       = "is_final"
	MetaEncoding      = "encoding"
	MetaCodec         = "codec"
	MetaFormat        = "format"
	MetaCallEndReason = "call_end_reason"
	MetaOldStreamID   = "old_stream_id"
	MetaDirection     = "direction"
	MetaLeadAction    = "lead_action"
)

// System frame names emitted by transports.
const (
	SystemCallStart     = "call_start"
	SystemCallEnd       = "call_end"
	SystemCallReconnect = "call_reconnect"
)
