package utils

import "math"

// EngagementScore blends streak, lifetime EP and completed quests into one
// display number. The streak dominates quadratically so daily habit beats
// grinding.
func EngagementScore(currentStreak, lifetimeEP, questsCompleted int) float64 {
	streakScore := math.Pow(float64(currentStreak), 2) * 0.3
	epScore := float64(lifetimeEP) * 0.05
	questScore := float64(questsCompleted) * 1.0

	return streakScore + epScore + questScore
}
