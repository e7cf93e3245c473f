package domain

// Outbound event kinds emitted by the session core. The transport wraps
// each payload as {"type": kind, "payload": ...}.
const (
	EventWait            = "wait"
	EventQuestion        = "question"
	EventFeedback        = "feedback"
	EventReveal          = "reveal"
	EventStats           = "stats"
	EventLeaderboard     = "leaderboard"
	EventHideLeaderboard = "hide_leaderboard"
	EventReload          = "reload"
	EventResetDone       = "reset_done"
)

// WaitNotice is sent to a client right after it joins or reconnects.
type WaitNotice struct {
	Message string `json:"message"`
	Name    string `json:"name"`
	Score   int    `json:"score"`
}

// QuestionStarted announces a new round. The target side, its label,
// and the explanation are withheld until the reveal.
type QuestionStarted struct {
	Ordinal     int    `json:"ordinal"`
	Total       int    `json:"total"`
	Text        string `json:"text"`
	DurationSec int    `json:"durationSec"`
}

// Feedback is the per-player outcome of a round, sent only to connected
// players.
type Feedback struct {
	Correct      bool   `json:"correct"`
	Fastest      bool   `json:"fastest"`
	Points       int    `json:"points"`
	StreakBonus  bool   `json:"streakBonus"`
	Score        int    `json:"score"`
	CorrectLabel string `json:"correctLabel"`
	Explanation  string `json:"explanation"`
	Flavor       string `json:"flavor,omitempty"`
}

// RoundReveal is the host-only summary of a completed round.
type RoundReveal struct {
	Ordinal      int    `json:"ordinal"`
	Target       int    `json:"target"`
	CorrectLabel string `json:"correctLabel"`
	Explanation  string `json:"explanation"`
}

// HostStats is a full-replacement snapshot of the room, pushed to hosts
// on every accepted join, submit, and disconnect.
type HostStats struct {
	Connected int      `json:"connected"`
	Answered  int      `json:"answered"`
	Names     []string `json:"names"`
	Zeros     int      `json:"zeros"`
	Hundreds  int      `json:"hundreds"`
	Average   float64  `json:"average"`
}

// LeaderboardEntry is one row of the scoreboard.
type LeaderboardEntry struct {
	Name  string `json:"name"`
	Score int    `json:"score"`
}

// Leaderboard is the top-N scoreboard snapshot. Winner marks the
// terminal announcement after the final question.
type Leaderboard struct {
	Entries []LeaderboardEntry `json:"entries"`
	Winner  bool               `json:"winner"`
}
