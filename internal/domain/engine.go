package domain

// EngineState describes the transcoding engine bootstrap lifecycle.
// The engine moves from not-ready to ready at most once per process;
// a failed bootstrap is terminal and is treated like not-ready by the
// conversion workflow.
type EngineState string

const (
	EngineStateNotReady EngineState = "not-ready"
	EngineStateReady    EngineState = "ready"
	EngineStateFailed   EngineState = "failed"
)

// EngineStatus pairs the lifecycle state with the most recent
// diagnostic message emitted during bootstrap or execution.
type EngineStatus struct {
	State   EngineState `json:"state"`
	Message string      `json:"message,omitempty"`
}
