package task

import (
	"fmt"
	"strings"

	"github.com/kvistgaard/evalbench/internal/model"
)

// WrongFeatureColumnError means the configured feature column is not part
// of the dataset schema. Raised before any iteration runs.
type WrongFeatureColumnError struct {
	Column string
}

func (e *WrongFeatureColumnError) Error() string {
	return fmt.Sprintf("feature column %q does not exist in the dataset", e.Column)
}

// UnsupportedFrameworkError is returned for execution frameworks outside
// the two supported families.
type UnsupportedFrameworkError struct {
	Framework string
}

func (e *UnsupportedFrameworkError) Error() string {
	return fmt.Sprintf("unsupported model framework %q (supported: %s, %s)",
		e.Framework, model.FrameworkONNX, model.FrameworkRule)
}

// NotTrainedForTaskError means iteration 0's predictions did not have the
// structure the task expects from a model trained for it.
type NotTrainedForTaskError struct {
	Task      string
	Framework model.Framework
}

func (e *NotTrainedForTaskError) Error() string {
	return fmt.Sprintf("the %s model does not appear to be trained for task %q", e.Framework, e.Task)
}

// DeviceFallbackError wraps runtime errors caused by a misconfigured
// inference device. It is fatal and carries the fix in its message.
type DeviceFallbackError struct {
	Cause error
}

func (e *DeviceFallbackError) Error() string {
	return fmt.Sprintf("inference device misconfigured: %v (set ONNXRUNTIME_SHARED_LIBRARY_PATH "+
		"to the onnxruntime shared object and check the configured device)", e.Cause)
}

func (e *DeviceFallbackError) Unwrap() error {
	return e.Cause
}

// PreprocessingError wraps a failure while preparing the bootstrapped
// datasets, before any iteration runs.
type PreprocessingError struct {
	Cause error
}

func (e *PreprocessingError) Error() string {
	return fmt.Sprintf("preprocessing the dataset failed: %v", e.Cause)
}

func (e *PreprocessingError) Unwrap() error {
	return e.Cause
}

// IterationError is the aggregated failure of one bootstrap iteration.
// Iterations are not retried: the first failure aborts the evaluation.
type IterationError struct {
	Iteration int
	Cause     error
}

func (e *IterationError) Error() string {
	return fmt.Sprintf("evaluation failed at iteration %d: %v", e.Iteration, e.Cause)
}

func (e *IterationError) Unwrap() error {
	return e.Cause
}

// isDeviceMisconfig sniffs runtime error messages for the known device
// misconfiguration signatures.
func isDeviceMisconfig(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "onnxruntime shared library") ||
		strings.Contains(msg, "execution provider")
}
