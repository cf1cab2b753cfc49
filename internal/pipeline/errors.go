package pipeline

import "fmt"

// Step identifies the pipeline stage that produced an error.
type Step string

const (
	StepDownload   Step = "download"
	StepExtract    Step = "extract"
	StepTranscribe Step = "transcribe"
	StepPersist    Step = "persist"
)

// StepError records which stage failed. Its message is what gets stored
// against the video's status and surfaced verbatim to status queries.
type StepError struct {
	Step Step
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}
