package engine

import (
	"errors"
	"fmt"
)

// ConfigError is a task or data source problem. It fails the run and is
// never retried.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return e.Message
}

func (e *ConfigError) Code() string {
	return "TASK_CONFIG_ERROR"
}

// ConnectError wraps a failure to reach the task's data source.
type ConnectError struct {
	Source string
	Err    error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("failed to connect to data source %q: %v", e.Source, e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

func (e *ConnectError) Code() string {
	return "CONNECT_ERROR"
}

// errStopped ends a run whose task left RUNNING while it was in flight.
var errStopped = errors.New("task is no longer running")
