package orchestration

import (
	"context"
	"fmt"
)

// QuotaSource reports the account's remaining streaming credits.
type QuotaSource interface {
	RemainingCredits(ctx context.Context) (int, error)
}

// lowCreditThreshold is where session start asks for confirmation; one
// credit buys five minutes of streaming.
const lowCreditThreshold = 3

// gateOnQuota applies the pre-flight quota gate: zero credits block the
// start, low credits ask for confirmation and warn when none is configured,
// and a failing quota check fails open since blocking on a monitoring
// failure is worse than proceeding.
func gateOnQuota(ctx context.Context, source QuotaSource, confirm func(credits int) bool, warn func(message string)) error {
	if source == nil {
		return nil
	}

	credits, err := source.RemainingCredits(ctx)
	if err != nil {
		logger.Warn("quota check failed, starting session anyway", "error", err)
		return nil
	}

	if credits <= 0 {
		return &QuotaExhaustedError{}
	}
	if credits <= lowCreditThreshold {
		if confirm != nil && !confirm(credits) {
			return &QuotaDeclinedError{Credits: credits}
		}
		logger.Warn("low remaining streaming credits", "credits", credits)
		if warn != nil {
			warn(fmt.Sprintf("only %d streaming credit(s) remain", credits))
		}
	}
	return nil
}
