package updater

// Tier is an update-engine recovery level selecting which safety steps apply
// to a cycle. It is chosen from the consecutive-failure count and only ever
// resets after a recorded successful cycle.
type Tier int

const (
	// TierCautious is the normal path: full backup, verification, rollback.
	TierCautious Tier = 0

	// TierRetry repeats the cautious path after one failure.
	TierRetry Tier = 1

	// TierForward is the escape hatch for the bootstrapping problem: if the
	// update being applied fixes a latent bug in the backup/rollback logic
	// itself, rolling back forever would brick the device on the old code.
	// No backup, no verification, and the cycle is recorded as a success
	// regardless of outcome, forcing forward progress.
	TierForward Tier = 2

	// TierMax is the ceiling the failure count is clamped to.
	TierMax = TierForward
)

// Policy is the explicit safety-step selection for one tier.
type Policy struct {
	Backup   bool
	Verify   bool
	Rollback bool
}

// policies is the full tier table. Keeping it a table (rather than
// failure-count comparisons inline) makes the escape hatch a first-class,
// testable decision.
var policies = map[Tier]Policy{
	TierCautious: {Backup: true, Verify: true, Rollback: true},
	TierRetry:    {Backup: true, Verify: true, Rollback: true},
	TierForward:  {Backup: false, Verify: false, Rollback: false},
}

// TierForAttempts maps a consecutive-failure count to its tier.
func TierForAttempts(n int) Tier {
	if n >= int(TierMax) {
		return TierMax
	}
	return Tier(n)
}

// PolicyFor returns the safety steps for a tier.
func PolicyFor(t Tier) Policy {
	return policies[t]
}
