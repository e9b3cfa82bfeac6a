package orchestration

// Internal notification events fanned out to caller callbacks. The session
// machine and orchestrator emit these; newCallbackEventEmitter maps them onto
// whatever callbacks the caller registered.

type streamReadyEvent struct{}

type streamDisconnectedEvent struct{}

type connectionQualityEvent struct {
	Quality string
}

type userTalkingEvent struct {
	Talking bool
}

type avatarTalkingEvent struct {
	Talking bool
}

type voiceChatStartedEvent struct{}

type historyChangedEvent struct {
	Messages []Message
}

type warningEvent struct {
	Message string
}

type turnErrorEvent struct {
	Err error
}

type eventEmitter func(event any)

func noopEventEmitter(any) {}

func newCallbackEventEmitter(opts OrchestrateOptions) eventEmitter {
	return func(event any) {
		switch typedEvent := event.(type) {
		case streamReadyEvent:
			if opts.onStreamReady != nil {
				opts.onStreamReady()
			}
		case streamDisconnectedEvent:
			if opts.onStreamDisconnected != nil {
				opts.onStreamDisconnected()
			}
		case connectionQualityEvent:
			if opts.onConnectionQuality != nil {
				opts.onConnectionQuality(typedEvent.Quality)
			}
		case userTalkingEvent:
			if opts.onUserTalking != nil {
				opts.onUserTalking(typedEvent.Talking)
			}
		case avatarTalkingEvent:
			if opts.onAvatarTalking != nil {
				opts.onAvatarTalking(typedEvent.Talking)
			}
		case voiceChatStartedEvent:
			if opts.onVoiceChatStarted != nil {
				opts.onVoiceChatStarted()
			}
		case historyChangedEvent:
			if opts.onHistoryChanged != nil {
				opts.onHistoryChanged(typedEvent.Messages)
			}
		case warningEvent:
			if opts.onWarning != nil {
				opts.onWarning(typedEvent.Message)
			}
		case turnErrorEvent:
			if opts.onTurnError != nil {
				opts.onTurnError(typedEvent.Err)
			}
		}
	}
}
