package detect

import (
	"time"

	"praetor/internal/policy"
)

// Verdict is the outcome of one detector run. The zero value means no
// violation. Verdicts are produced fresh per invocation and never stored.
type Verdict struct {
	Policy  policy.Name
	Reason  string
	Action  policy.ActionKind
	Timeout time.Duration

	// Sweep asks the dispatcher to also delete the offender's recent
	// messages in the channel, not just the triggering one. SweepContent,
	// when set, restricts the sweep to identical content.
	Sweep        bool
	SweepWindow  time.Duration
	SweepContent string
}

func (v Verdict) Violation() bool { return v.Policy != "" }

// Severe reports whether a policy's violations are emitted to the guild's
// security log channel. Crash payloads and leaked tokens are kept out of
// the record itself; only the reason travels.
func Severe(name policy.Name) bool {
	switch name {
	case policy.AntiCrash, policy.AntiToken, policy.AntiNuke, policy.AntiBot:
		return true
	default:
		return false
	}
}
