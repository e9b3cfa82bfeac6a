package orchestration

import (
	"time"

	"github.com/avosel/visage-core/core/avatar"
	"github.com/avosel/visage-core/core/llms"
)

type OrchestratorOption func(*Orchestrator)

// WithAdapter sets the streaming LLM backend.
func WithAdapter(adapter llms.Adapter) OrchestratorOption {
	return func(o *Orchestrator) { o.adapter = adapter }
}

// WithAvatarHandle injects an already-constructed avatar handle. Start then
// does not require a session token.
func WithAvatarHandle(handle avatar.Handle) OrchestratorOption {
	return func(o *Orchestrator) { o.session.handle = handle }
}

// WithHandleFactory overrides how avatar handles are built from a session
// token.
func WithHandleFactory(factory HandleFactory) OrchestratorOption {
	return func(o *Orchestrator) { o.session.newHandle = factory }
}

// WithQuotaSource enables the pre-flight quota gate on session start.
func WithQuotaSource(source QuotaSource) OrchestratorOption {
	return func(o *Orchestrator) { o.quota = source }
}

// WithSystemPrompt sets the system message prepended to every LLM turn.
func WithSystemPrompt(prompt string) OrchestratorOption {
	return func(o *Orchestrator) { o.systemPrompt = prompt }
}

// WithModel overrides the adapter's default model.
func WithModel(model string) OrchestratorOption {
	return func(o *Orchestrator) { o.model = model }
}

// WithTemperature sets the sampling temperature for LLM turns.
func WithTemperature(temperature float64) OrchestratorOption {
	return func(o *Orchestrator) { o.temperature = &temperature }
}

// WithMaxTokens caps LLM response length.
func WithMaxTokens(maxTokens int) OrchestratorOption {
	return func(o *Orchestrator) { o.maxTokens = maxTokens }
}

// WithChunkPacing overrides the inter-chunk delay of the speech relay.
func WithChunkPacing(pacing time.Duration) OrchestratorOption {
	return func(o *Orchestrator) { o.relayConfig.pacing = pacing }
}

// WithMaxChunkLength overrides the forced-flush threshold of the speech
// relay.
func WithMaxChunkLength(length int) OrchestratorOption {
	return func(o *Orchestrator) { o.relayConfig.maxChunkLength = length }
}

// OrchestrateOptions carries the per-start callbacks.
type OrchestrateOptions struct {
	onStreamReady        func()
	onStreamDisconnected func()
	onConnectionQuality  func(quality string)
	onUserTalking        func(talking bool)
	onAvatarTalking      func(talking bool)
	onVoiceChatStarted   func()
	onHistoryChanged     func(messages []Message)
	onWarning            func(message string)
	onTurnError          func(err error)
	confirmLowCredits    func(credits int) bool
}

type OrchestrateOption func(*OrchestrateOptions)

func WithStreamReadyCallback(callback func()) OrchestrateOption {
	return func(o *OrchestrateOptions) { o.onStreamReady = callback }
}

func WithStreamDisconnectedCallback(callback func()) OrchestrateOption {
	return func(o *OrchestrateOptions) { o.onStreamDisconnected = callback }
}

func WithConnectionQualityCallback(callback func(quality string)) OrchestrateOption {
	return func(o *OrchestrateOptions) { o.onConnectionQuality = callback }
}

func WithUserTalkingCallback(callback func(talking bool)) OrchestrateOption {
	return func(o *OrchestrateOptions) { o.onUserTalking = callback }
}

func WithAvatarTalkingCallback(callback func(talking bool)) OrchestrateOption {
	return func(o *OrchestrateOptions) { o.onAvatarTalking = callback }
}

func WithVoiceChatStartedCallback(callback func()) OrchestrateOption {
	return func(o *OrchestrateOptions) { o.onVoiceChatStarted = callback }
}

// WithHistoryChangedCallback registers a callback invoked with a fresh
// snapshot after every history mutation.
func WithHistoryChangedCallback(callback func(messages []Message)) OrchestrateOption {
	return func(o *OrchestrateOptions) { o.onHistoryChanged = callback }
}

func WithWarningCallback(callback func(message string)) OrchestrateOption {
	return func(o *OrchestrateOptions) { o.onWarning = callback }
}

// WithTurnErrorCallback registers a callback for LLM-turn failures that
// exhausted their retries.
func WithTurnErrorCallback(callback func(err error)) OrchestrateOption {
	return func(o *OrchestrateOptions) { o.onTurnError = callback }
}

// WithLowCreditConfirmation registers the confirmation prompt used when the
// remaining credits are below the low-credit threshold. Without one, low
// credits proceed with only a warning.
func WithLowCreditConfirmation(confirm func(credits int) bool) OrchestrateOption {
	return func(o *OrchestrateOptions) { o.confirmLowCredits = confirm }
}
