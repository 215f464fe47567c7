package pipeline

// State is one step of a pipeline run.
type State string

const (
	StateValidating     State = "validating"
	StateAuthenticating State = "authenticating"
	StateGenerating     State = "generating"
	StateUpscaling      State = "upscaling"
	StateUploading      State = "uploading"
	StateSucceeded      State = "succeeded"
	StateFailed         State = "failed"
)

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}
