package retry

import (
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/jeeves-cluster-organization/selene/coreengine/capability"
	"github.com/jeeves-cluster-organization/selene/coreengine/contract"
)

// Backoff policy.
const (
	BaseDelay  = 500 * time.Millisecond
	Multiplier = 2.0
	MaxDelay   = 60 * time.Second
)

// Engine is the retry capability engine.
type Engine struct{}

// Run implements capability.Engine.
func (Engine) Run(req Request) contract.Response {
	return capability.Serve(Namespace, CapabilityBuild, req, dispatch)
}

func dispatch(req Request) contract.Response {
	switch r := req.(type) {
	case *BuildRequest:
		op := capability.Op{Namespace: Namespace, Capability: CapabilityBuild}
		s, refused := schedule(op, r.Envelope, r.Failure)
		if refused != nil {
			return refused
		}
		return op.Complete(NewBuildOKV1(s))
	case *ValidateRequest:
		op := capability.Op{Namespace: Namespace, Capability: CapabilityValidate}
		verdict, err := capability.Verify(op, r.Envelope.MaxDiagnostics,
			func() (Schedule, *contract.Refuse) { return schedule(op, r.Envelope, r.Failure) },
			func(d *contract.Diagnostics, expected Schedule) {
				capability.DiffValue(d, "retry_attempt", expected.NextAttempt, r.Schedule.NextAttempt)
				capability.DiffValue(d, "retry_at", expected.RetryAtMonoMS, r.Schedule.RetryAtMonoMS)
				capability.DiffValue(d, "retry_delay", expected.DelayMS, r.Schedule.DelayMS)
			})
		if err != nil {
			return op.Internal()
		}
		return op.Complete(NewValidateOKV1(verdict))
	default:
		return nil
	}
}

func schedule(op capability.Op, env contract.Envelope, f Failure) (Schedule, *contract.Refuse) {
	ceiling := capability.EffectiveBudget(env.MaxCandidates, MaxAttempts)
	if g := capability.FirstBlocked(
		capability.When(f.Attempt >= ceiling, Namespace.BudgetExceeded(), "attempt ceiling reached"),
		capability.When(f.Class == FailurePermanent, ReasonNonRetryable, "failure is not retryable"),
	); g != nil {
		return Schedule{}, capability.Refusal(op.Capability, g.Code, g.Message)
	}

	delay := Delay(f.Class, f.Attempt)
	if f.Class == FailureRateLimited {
		delay = max(delay, time.Duration(f.RetryAfterHintMS)*time.Millisecond)
	}
	delayMS := delay.Milliseconds()
	return Schedule{
		OperationID:   f.OperationID,
		NextAttempt:   f.Attempt + 1,
		DelayMS:       delayMS,
		RetryAtMonoMS: f.FailedAtMonoMS + delayMS,
	}, nil
}

// fixedClock pins the backoff's elapsed-time bookkeeping; the schedule never
// depends on the wall clock.
type fixedClock struct{}

func (fixedClock) Now() time.Time { return time.Time{} }

// Delay returns the backoff delay after `attempt` completed attempts:
// exponential from the base (doubled for timeouts), capped at MaxDelay.
func Delay(class FailureClass, attempt int) time.Duration {
	base := BaseDelay
	if class == FailureTimeout {
		base *= 2
	}
	b := &backoff.ExponentialBackOff{
		InitialInterval:     base,
		RandomizationFactor: 0,
		Multiplier:          Multiplier,
		MaxInterval:         MaxDelay,
		MaxElapsedTime:      0,
		Stop:                backoff.Stop,
		Clock:               fixedClock{},
	}
	b.Reset()

	delay := base
	for i := 0; i < attempt; i++ {
		delay = b.NextBackOff()
	}
	return delay
}
