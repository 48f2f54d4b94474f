package trace

// Attribute keys used across the voice pipeline.
const (
	// Call session attributes
	AttrSessionID = "session.id"
	AttrCallSID   = "call.sid"
	AttrStreamSID = "stream.sid"
	AttrTurnIndex = "turn.index"

	// Language model attributes
	AttrLLMBackend  = "llm.backend"
	AttrLLMForced   = "llm.forced_function"
	AttrLLMFunction = "llm.function"

	// Speech attributes
	AttrTTSProvider = "tts.provider"
	AttrTTSCacheHit = "tts.cache_hit"
	AttrTTSBytes    = "tts.audio_bytes"
	AttrSTTProvider = "stt.provider"

	// Media transmission attributes
	AttrFramesSent = "media.frames_sent"
)
