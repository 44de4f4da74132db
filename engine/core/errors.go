package core

import (
	"github.com/cockroachdb/errors"
)

var (
	ErrUnknown = errors.New("unknown")

	// thread pool
	ErrNoWorkers           = errors.New("attempting to create thread pool with less than 1 worker")
	ErrNegativeIdleTimeout = errors.New("attempting to create thread pool with a negative idle timeout")
	ErrPoolNotRunning      = errors.New("thread pool is not running")
	ErrPoolRunning         = errors.New("thread pool is already running")
	ErrUnknownThread       = errors.New("thread id is not part of the pool")
	ErrTaskPanicked        = errors.New("task panicked")
	ErrNilTask             = errors.New("nil task submitted")

	// configuration
	ErrInvalidConfig = errors.New("invalid configuration")
)
