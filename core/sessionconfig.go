package orchestration

import "maps"

// undefinedValue marks a payload entry that was never assigned a real value.
// The vendor's session-creation endpoint rejects payloads carrying such
// fields with a 400, so they are stripped recursively before transmission.
// Explicit nulls are meaningful to the API and pass through untouched.
type undefinedValue struct{}

// Undefined is the marker callers put into Extra payload maps for fields
// they deliberately left unset.
var Undefined = undefinedValue{}

// SessionConfig describes one avatar session to be started.
type SessionConfig struct {
	// Token is the bearer session token, required when the orchestrator has
	// no avatar handle yet.
	Token string

	AvatarID string
	VoiceID  string
	// VoiceRate adjusts speaking speed; applied when non-zero.
	VoiceRate float64
	// Quality is the vendor's stream quality tier: low, medium or high.
	Quality  string
	Language string
	// VideoEncoding selects the stream codec, e.g. "H264" or "VP8".
	VideoEncoding string

	// VoiceChat requests the microphone pipeline. It is started only once the
	// session signals stream-ready.
	VoiceChat bool

	// Extra is merged into the session-creation payload verbatim (after
	// cleaning), for vendor knobs this struct does not model.
	Extra map[string]any
}

// payload assembles the raw session-creation payload. The result still needs
// CleanPayload before transmission since Extra may carry Undefined markers.
func (c SessionConfig) payload() map[string]any {
	payload := map[string]any{
		"version": "v2",
	}
	if c.Quality != "" {
		payload["quality"] = c.Quality
	}
	if c.AvatarID != "" {
		payload["avatar_id"] = c.AvatarID
	}
	if c.Language != "" {
		payload["language"] = c.Language
	}
	if c.VideoEncoding != "" {
		payload["video_encoding"] = c.VideoEncoding
	}
	if c.VoiceID != "" || c.VoiceRate != 0 {
		voice := map[string]any{}
		if c.VoiceID != "" {
			voice["voice_id"] = c.VoiceID
		}
		if c.VoiceRate != 0 {
			voice["rate"] = c.VoiceRate
		}
		payload["voice"] = voice
	}
	maps.Copy(payload, c.Extra)
	return payload
}

// CleanPayload returns a copy of payload with every Undefined-valued key
// stripped, recursively through nested maps and slices. Nil and falsy values
// are preserved. Cleaning an already-clean payload returns an equal payload.
func CleanPayload(payload map[string]any) map[string]any {
	cleaned := make(map[string]any, len(payload))
	for key, value := range payload {
		if v, ok := cleanValue(value); ok {
			cleaned[key] = v
		}
	}
	return cleaned
}

func cleanValue(value any) (any, bool) {
	switch v := value.(type) {
	case undefinedValue:
		return nil, false
	case map[string]any:
		return CleanPayload(v), true
	case []any:
		cleaned := make([]any, 0, len(v))
		for _, item := range v {
			if cv, ok := cleanValue(item); ok {
				cleaned = append(cleaned, cv)
			}
		}
		return cleaned, true
	default:
		return value, true
	}
}
