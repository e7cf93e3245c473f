package app

import (
	"time"

	"pickside-quiz-service/internal/domain"
)

// Answer is one ledger entry: what a player submitted and how long
// after the round started.
type Answer struct {
	Value   int
	Elapsed time.Duration
}

// Outcome is the per-player result of evaluating one round.
type Outcome struct {
	Points      int
	Correct     bool
	Fastest     bool
	StreakBonus bool
	// Streak is the player's counter after this round.
	Streak int
}

// Evaluate scores one round. It is a pure function of the question, a
// ledger snapshot, and the players' streak counters going in; callers
// take the snapshots under the session lock so concurrent submissions
// cannot race the computation.
//
// Every token in streaks is scored, answered or not. A submission is
// correct iff its value equals the question's target exactly. Among
// correct submissions the minimum elapsed time wins the fastest bonus;
// ties break to the lexicographically lowest token. The streak bonus
// pays out exactly when the counter reaches the configured length, and
// the counter resets to zero both then and on any miss.
func Evaluate(q domain.QuestionRecord, ledger map[string]Answer, streaks map[string]int, rules Rules) map[string]Outcome {
	fastest := fastestCorrect(q, ledger)

	outcomes := make(map[string]Outcome, len(streaks))
	for token, streak := range streaks {
		ans, answered := ledger[token]
		if !answered || ans.Value != q.Target {
			outcomes[token] = Outcome{}
			continue
		}

		out := Outcome{
			Correct: true,
			Points:  rules.BasePoints,
			Streak:  streak + 1,
		}
		if token == fastest {
			out.Fastest = true
			out.Points += rules.FastestBonus
		}
		if out.Streak == rules.StreakLength {
			out.StreakBonus = true
			out.Points += rules.StreakBonus
			out.Streak = 0
		}
		outcomes[token] = out
	}
	return outcomes
}

// fastestCorrect returns the token with the quickest correct
// submission, or "" when no submission is correct.
func fastestCorrect(q domain.QuestionRecord, ledger map[string]Answer) string {
	var fastest string
	var best time.Duration
	for token, ans := range ledger {
		if ans.Value != q.Target {
			continue
		}
		if fastest == "" || ans.Elapsed < best || (ans.Elapsed == best && token < fastest) {
			fastest = token
			best = ans.Elapsed
		}
	}
	return fastest
}
