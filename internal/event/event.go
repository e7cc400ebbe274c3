// Package event defines the lifecycle and output events emitted by jobs and runners.
package event

import "time"

// Kind identifies an event variant.
type Kind int

const (
	Start Kind = iota
	StepStart
	StepPause
	StepResume
	StepSuccess
	StepFailure
	StepUnknownType
	Pause
	Resume
	Success
	Failure
	Canceled
	Message
)

var kindNames = [...]string{
	Start:           "job.start",
	StepStart:       "step.start",
	StepPause:       "step.pause",
	StepResume:      "step.resume",
	StepSuccess:     "step.success",
	StepFailure:     "step.failure",
	StepUnknownType: "step.unknown_type",
	Pause:           "job.pause",
	Resume:          "job.resume",
	Success:         "job.success",
	Failure:         "job.failure",
	Canceled:        "job.canceled",
	Message:         "message",
}

// Kinds lists every variant in declaration order.
func Kinds() []Kind {
	kinds := make([]Kind, 0, len(kindNames))
	for k := range kindNames {
		kinds = append(kinds, Kind(k))
	}
	return kinds
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "unknown"
	}
	return kindNames[k]
}

// Terminal reports whether the kind closes a job's lifecycle.
func (k Kind) Terminal() bool {
	return k == Success || k == Failure || k == Canceled
}

// Channel names the output stream a Message belongs to.
type Channel int

const (
	Stdout Channel = iota
	Stderr
)

func (c Channel) String() string {
	if c == Stderr {
		return "stderr"
	}
	return "stdout"
}

// Event is an immutable record produced by a job or one of its runners.
type Event struct {
	Kind Kind
	Time time.Time
	// Target is empty for the anonymous root job.
	Target  string
	Step    string
	Channel Channel
	Payload string
}

// New stamps a lifecycle event for target.
func New(kind Kind, target string) Event {
	return Event{Kind: kind, Time: time.Now(), Target: target}
}

// NewStep stamps a step-scoped lifecycle event.
func NewStep(kind Kind, target, step string) Event {
	return Event{Kind: kind, Time: time.Now(), Target: target, Step: step}
}

// NewMessage stamps one line of runner output.
func NewMessage(target, step string, channel Channel, payload string) Event {
	return Event{
		Kind:    Message,
		Time:    time.Now(),
		Target:  target,
		Step:    step,
		Channel: channel,
		Payload: payload,
	}
}

// Handler is the callback signature shared by listeners and processors.
type Handler func(Event)
