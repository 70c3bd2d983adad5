package scheduler

import (
	"context"
	"strconv"
	"time"
)

// Priority levels. Emergency submissions are serviced ahead of queued
// normal-priority work on the same queue.
const (
	PriorityNormal    = 0
	PriorityEmergency = 10
)

// Handler executes one unit of work. target is the bot or payment id the job
// acts on, zero for fleet-wide jobs. The context is cancelled when the job's
// soft time limit expires; handlers are expected to return promptly after
// cancellation.
type Handler func(ctx context.Context, target int) error

// Job is one queued unit of work, ad-hoc or periodic.
type Job struct {
	ID       string
	Kind     Kind
	Queue    string
	Target   int
	Priority int

	SoftLimit  time.Duration
	HardLimit  time.Duration
	MaxRetries int

	target  targetKind
	run     Handler
	attempt int
	seq     uint64

	done chan struct{}
	err  error
}

// Done is closed once the job has finished (or exhausted its retries).
func (j *Job) Done() <-chan struct{} { return j.done }

// Err returns the final job error. Only valid after Done is closed.
func (j *Job) Err() error { return j.err }

// key is the serialization key: jobs sharing a key run in submission order.
// Jobs aimed at the same bot share a key across kinds; fleet-wide jobs
// serialize on their kind so a periodic pass never overlaps itself.
func (j *Job) key() string {
	if j.target != targetNone && j.Target != 0 {
		return string(j.target) + ":" + strconv.Itoa(j.Target)
	}
	return "kind:" + j.Kind.String()
}
