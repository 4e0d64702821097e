package domain

// Economy constants for a match.
const (
	StartingCredits    = 800
	RoundBaseGrant     = 1900
	LossStreakStep     = 500
	LossStreakBonusCap = 2400
	KillReward         = 200
	ObjectiveReward    = 300
	MaxUltPoints       = 7
	MaxHealth          = 100
)

// LossStreakBonus is the extra grant a side receives for consecutive round losses.
func LossStreakBonus(streak int) int {
	if streak <= 0 {
		return 0
	}
	return min(streak*LossStreakStep, LossStreakBonusCap)
}

// RoundGrant returns the credits granted at the start of round. The first round grants nothing.
// lossStreak is the participant's side streak before the upcoming round is played.
func RoundGrant(round, lossStreak int) int {
	if round <= 1 {
		return 0
	}
	return RoundBaseGrant + LossStreakBonus(lossStreak)
}

// ClampCredits floors a balance at zero.
func ClampCredits(credits int) int {
	return max(credits, 0)
}

// ClampUltPoints bounds ultimate charge to [0, MaxUltPoints].
func ClampUltPoints(points int) int {
	return min(max(points, 0), MaxUltPoints)
}
