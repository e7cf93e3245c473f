package app

import "time"

// Rules holds the tunable constants of a session. Defaults match the
// reference scoring scale.
type Rules struct {
	// RoundDuration is the answer window advertised to clients.
	RoundDuration time.Duration
	// EvalBuffer is added to RoundDuration before the deadline callback
	// runs. It absorbs transport latency and is never disclosed.
	EvalBuffer time.Duration
	// GracePeriod is how long a disconnected player is retained.
	GracePeriod time.Duration

	BasePoints   int
	FastestBonus int
	StreakBonus  int
	// StreakLength is the consecutive-correct count that pays the
	// streak bonus and resets the counter.
	StreakLength int

	LeaderboardSize int
	// CheckpointEvery broadcasts the leaderboard after every Nth
	// question. The final question is always a checkpoint.
	CheckpointEvery int
	CheckpointDelay time.Duration
}

// DefaultRules returns production defaults.
func DefaultRules() Rules {
	return Rules{
		RoundDuration:   10 * time.Second,
		EvalBuffer:      1250 * time.Millisecond,
		GracePeriod:     5 * time.Minute,
		BasePoints:      100,
		FastestBonus:    30,
		StreakBonus:     20,
		StreakLength:    3,
		LeaderboardSize: 10,
		CheckpointEvery: 12,
		CheckpointDelay: 2 * time.Second,
	}
}
