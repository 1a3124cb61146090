// Package rating holds the ELO arithmetic used to score duels. Everything here
// is pure and deterministic.
package rating

import "math"

const (
	// Spread is the rating gap at which the stronger side is 10x favored
	Spread = 400.0
	// WildcardMultiplier scales both sides of a wildcard duel
	WildcardMultiplier = 1.5
	// UpsetGapCap is the gap at which the upset bonus reaches full strength
	UpsetGapCap = 200.0
)

// ExpectedScore returns the probability that A beats B
func ExpectedScore(ratingA, ratingB float64) float64 {
	return 1 / (1 + math.Pow(10, (ratingB-ratingA)/Spread))
}

// NewRating moves old toward the actual result. actual is 1 for a win and 0
// for a loss. The change is rounded half away from zero so a win and the
// matching loss always move by the same magnitude.
func NewRating(old int, expected, actual, kFactor float64) int {
	return old + int(math.Round(kFactor*(actual-expected)))
}

// Result carries the post-duel ratings of both sides
type Result struct {
	WinnerRating int
	LoserRating  int
	WinnerDelta  int
	LoserDelta   int
}

// DuelResult applies plain ELO to a decided duel
func DuelResult(winnerRating, loserRating int, kFactor float64) Result {
	expectedWinner := ExpectedScore(float64(winnerRating), float64(loserRating))
	expectedLoser := ExpectedScore(float64(loserRating), float64(winnerRating))

	winnerNew := NewRating(winnerRating, expectedWinner, 1, kFactor)
	loserNew := floor(NewRating(loserRating, expectedLoser, 0, kFactor))

	return Result{
		WinnerRating: winnerNew,
		LoserRating:  loserNew,
		WinnerDelta:  winnerNew - winnerRating,
		LoserDelta:   loserNew - loserRating,
	}
}

// Bonus describes the multipliers of the bonus resolution mode
type Bonus struct {
	// WinnerStreak is the winner's streak including this win
	WinnerStreak int
	StreakBonus2 float64
	StreakBonus3 float64
	UpsetBonus   float64
	Wildcard     bool
}

// StreakMultiplier returns the streak factor for a win streak
func StreakMultiplier(streak int, bonus2, bonus3 float64) float64 {
	switch {
	case streak < 2:
		return 1
	case streak == 2:
		return 1 + bonus2
	default:
		return 1 + bonus3
	}
}

// UpsetMultiplier scales linearly with the gap when the lower-rated side wins
func UpsetMultiplier(winnerRating, loserRating int, upsetBonus float64) float64 {
	if winnerRating >= loserRating {
		return 1
	}
	gap := float64(loserRating - winnerRating)
	return 1 + upsetBonus*math.Min(gap/UpsetGapCap, 1)
}

// WithBonuses computes the plain result and then compounds streak, upset and
// wildcard multipliers onto the winner's gain, in that order. Only the
// wildcard multiplier touches the loser.
func WithBonuses(winnerRating, loserRating int, kFactor float64, b Bonus) Result {
	base := DuelResult(winnerRating, loserRating, kFactor)
	baseLoss := -(NewRating(loserRating, ExpectedScore(float64(loserRating), float64(winnerRating)), 0, kFactor) - loserRating)

	gain := float64(base.WinnerDelta)
	gain *= StreakMultiplier(b.WinnerStreak, b.StreakBonus2, b.StreakBonus3)
	gain *= UpsetMultiplier(winnerRating, loserRating, b.UpsetBonus)
	loss := float64(baseLoss)
	if b.Wildcard {
		gain *= WildcardMultiplier
		loss *= WildcardMultiplier
	}

	winnerNew := floor(winnerRating + int(math.Round(gain)))
	loserNew := floor(loserRating - int(math.Round(loss)))

	return Result{
		WinnerRating: winnerNew,
		LoserRating:  loserNew,
		WinnerDelta:  winnerNew - winnerRating,
		LoserDelta:   loserNew - loserRating,
	}
}

func floor(r int) int {
	if r < 0 {
		return 0
	}
	return r
}
