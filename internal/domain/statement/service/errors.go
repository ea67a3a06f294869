package service

import (
	"errors"
	"fmt"
)

// Stage names the pipeline step a document failed in.
type Stage string

const (
	StageRedact  Stage = "redact"
	StageStore   Stage = "store"
	StageChunk   Stage = "chunk"
	StageExtract Stage = "extract"
	StageEncode  Stage = "encode"
	StagePersist Stage = "persist"
)

var stageLabels = map[Stage]string{
	StageRedact:  "Redaction",
	StageStore:   "Storing the redacted PDF",
	StageChunk:   "Splitting the statement",
	StageExtract: "Transaction extraction",
	StageEncode:  "Building the output file",
	StagePersist: "Saving the output file",
}

// ProcessError is a fatal failure of one document. The batch continues
// with the next document.
type ProcessError struct {
	Stage Stage
	Err   error
}

func (e *ProcessError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *ProcessError) Unwrap() error { return e.Err }

// Message is the text stored on the job record.
func (e *ProcessError) Message() string {
	label, ok := stageLabels[e.Stage]
	if !ok {
		label = "Processing"
	}
	return fmt.Sprintf("%s failed: %v", label, e.Err)
}

func stageError(stage Stage, err error) error {
	if err == nil {
		return nil
	}
	var pe *ProcessError
	if errors.As(err, &pe) {
		return err
	}
	return &ProcessError{Stage: stage, Err: err}
}

// errorMessage renders any error for the job record.
func errorMessage(err error) string {
	var pe *ProcessError
	if errors.As(err, &pe) {
		return pe.Message()
	}
	if err == nil {
		return "Unknown error"
	}
	return err.Error()
}
