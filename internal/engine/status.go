package engine

// Status is the lifecycle state of a Job.
type Status int

const (
	StatusCreated Status = iota
	StatusStarted
	StatusPaused
	StatusSucceeded
	StatusFailed
	StatusCanceled
)

func (s Status) String() string {
	switch s {
	case StatusCreated:
		return "created"
	case StatusStarted:
		return "started"
	case StatusPaused:
		return "paused"
	case StatusSucceeded:
		return "succeeded"
	case StatusFailed:
		return "failed"
	case StatusCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Terminal reports whether the status can no longer change.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusCanceled
}

// active reports whether the job has started and not yet settled.
func (s Status) active() bool {
	return s == StatusStarted || s == StatusPaused
}

// RunnerStatus tracks a single step runner. It mirrors Status without the
// job-level meaning of Paused: a paused runner is waiting on nested jobs.
type RunnerStatus int

const (
	RunnerCreated RunnerStatus = iota
	RunnerStarted
	RunnerPaused
	RunnerSucceeded
	RunnerFailed
	RunnerCanceled
)

func (s RunnerStatus) String() string {
	return Status(s).String()
}
