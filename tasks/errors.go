package tasks

import (
	"fmt"
	"runtime"
	"sync/atomic"
)

// MissingParameterError is returned when a task or a condition is
// wired without a required parameter.
type MissingParameterError struct {
	Source    string
	Parameter string
}

func (err *MissingParameterError) Error() string {
	return fmt.Sprintf("missing parameter %q of %s", err.Parameter, err.Source)
}

// ConditionError means that a condition couldn't be evaluated. The
// condition is treated as not satisfied.
type ConditionError struct {
	Condition string
	Err       error
}

func (err *ConditionError) Error() string {
	return fmt.Sprintf("condition %s failed: %v", err.Condition, err.Err)
}

func (err *ConditionError) Unwrap() error { return err.Err }

// TaskError is a failed task execution, including recovered panics.
type TaskError struct {
	Task  string
	Phase Phase
	Err   error
}

func (err *TaskError) Error() string {
	return fmt.Sprintf("task %s failed in %s: %v", err.Task, err.Phase, err.Err)
}

func (err *TaskError) Unwrap() error { return err.Err }

var caughtPanic atomic.Bool

// TryCatch executes function `p` and `onErr` if `p` panics.
// onErr receives the stack trace of the first panic of the process,
// further panics get an empty stack.
func TryCatch(p func(), onErr func(err interface{}, stack string)) {
	defer func() {
		if err := recover(); err != nil {
			s := ""
			if caughtPanic.CompareAndSwap(false, true) {
				buf := make([]byte, 1024)
				l := runtime.Stack(buf, false)
				s = string(buf[:l])
			}

			onErr(err, s)
		}
	}()

	p()
}
