package app

import (
	"log"
	"sort"
	"sync"
	"time"

	"pickside-quiz-service/internal/domain"
)

// Recipient is a connected client able to receive outbound events. The
// transport layer implements it; delivery must not block.
type Recipient interface {
	Deliver(kind string, payload any) error
}

// playerState is the registry entry for one persistent token.
type playerState struct {
	name      string
	score     int
	streak    int
	connected bool
	lastSeen  time.Time
	conn      Recipient // present only while connected
}

// Session owns the full state of one live quiz: the round controller,
// the answer ledger, and the player registry. Every mutation goes
// through the single mutex, including the deadline callback, so no two
// transitions interleave.
type Session struct {
	deck  domain.Deck
	rules Rules

	now      func() time.Time
	schedule func(time.Duration, func())

	mu      sync.Mutex
	players map[string]*playerState
	hosts   map[Recipient]struct{}
	answers map[string]Answer

	index      int // -1 before the first round
	active     bool
	roundID    uint64 // bumped on every start and reset; tags deadline timers
	epoch      uint64 // bumped on reset only; tags checkpoint timers
	roundStart time.Time
}

// NewSession creates a session over an immutable deck.
func NewSession(deck domain.Deck, rules Rules) *Session {
	return NewSessionWithClock(deck, rules, time.Now, func(d time.Duration, fn func()) {
		time.AfterFunc(d, fn)
	})
}

// NewSessionWithClock allows deterministic timestamps and captured
// timers in tests.
func NewSessionWithClock(deck domain.Deck, rules Rules, now func() time.Time, schedule func(time.Duration, func())) *Session {
	return &Session{
		deck:     deck,
		rules:    rules,
		now:      now,
		schedule: schedule,
		players:  make(map[string]*playerState),
		hosts:    make(map[Recipient]struct{}),
		answers:  make(map[string]Answer),
		index:    -1,
	}
}

// Join registers a new player or reattaches a returning one. A new
// connection with a known token supersedes the previous handle; score
// and streak survive the churn.
func (s *Session) Join(token, rawName string, conn Recipient) {
	if token == "" {
		log.Printf("drop join: missing token")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.sweepLocked(now)

	// A socket re-identifying under a new token detaches whatever entry
	// held it before; one handle never serves two players.
	for other, p := range s.players {
		if other == token || p.conn != conn {
			continue
		}
		p.connected = false
		p.conn = nil
		p.lastSeen = now
	}

	name := domain.NormalizeName(rawName)
	p, known := s.players[token]
	if known {
		p.connected = true
		p.lastSeen = now
		p.conn = conn
		if name != "" {
			p.name = name
		}
	} else {
		p = &playerState{
			name:      name,
			connected: true,
			lastSeen:  now,
			conn:      conn,
		}
		s.players[token] = p
	}

	s.deliver(conn, domain.EventWait, domain.WaitNotice{
		Message: "Waiting for the next question...",
		Name:    p.name,
		Score:   p.score,
	})
	if s.active {
		// Late joiners see the question currently in play.
		s.deliver(conn, domain.EventQuestion, s.questionEventLocked())
	}
	s.hostStatsLocked()
}

// JoinHost registers a connection as a host recipient for host-only
// broadcasts and pushes it the current room snapshot.
func (s *Session) JoinHost(conn Recipient) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.hosts[conn] = struct{}{}
	if s.active {
		s.deliver(conn, domain.EventQuestion, s.questionEventLocked())
	}
	s.deliver(conn, domain.EventStats, s.statsLocked())
}

// Disconnect marks the owning player as offline, or drops a host
// registration. The player record stays for the grace period.
func (s *Session) Disconnect(conn Recipient) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.hosts, conn)

	dropped := false
	for _, p := range s.players {
		if p.conn != conn {
			// A superseded handle must not knock the new one offline.
			continue
		}
		p.connected = false
		p.conn = nil
		p.lastSeen = s.now()
		dropped = true
	}
	if dropped {
		s.hostStatsLocked()
	}
}

// Submit records an answer for the active round. Anything outside the
// admission rules is dropped without a reply; a resubmission before the
// deadline overwrites the earlier entry.
func (s *Session) Submit(token string, value int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active {
		log.Printf("drop answer from %q: no round collecting", token)
		return
	}
	if _, known := s.players[token]; !known {
		log.Printf("drop answer from unknown token %q", token)
		return
	}
	if !domain.ValidSide(value) {
		log.Printf("drop answer from %q: value %d out of range", token, value)
		return
	}
	elapsed := s.now().Sub(s.roundStart)
	if elapsed < 0 || elapsed > s.rules.RoundDuration {
		log.Printf("drop answer from %q: outside window (%.2fs)", token, elapsed.Seconds())
		return
	}

	s.answers[token] = Answer{Value: value, Elapsed: elapsed}
	s.hostStatsLocked()
}

// StartRound advances to the next question and opens the answer window.
// A no-op while a round is active or once the deck is exhausted.
func (s *Session) StartRound() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active {
		log.Printf("start ignored: round %d still collecting", s.index+1)
		return
	}
	if s.index >= len(s.deck.Questions)-1 {
		log.Printf("start ignored: deck exhausted")
		return
	}

	now := s.now()
	s.sweepLocked(now)

	s.index++
	s.answers = make(map[string]Answer)
	s.roundStart = now
	s.active = true
	s.roundID++
	id := s.roundID

	s.broadcastLocked(domain.EventQuestion, s.questionEventLocked())
	s.hostStatsLocked()

	s.schedule(s.rules.RoundDuration+s.rules.EvalBuffer, func() {
		s.finishRound(id)
	})
}

// finishRound is the deadline callback. The captured round id makes
// stale timers harmless: a reset or a newer round bumps s.roundID and
// the comparison fails.
func (s *Session) finishRound(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id != s.roundID || !s.active {
		return
	}
	s.active = false

	question := s.deck.Questions[s.index]
	ledger := make(map[string]Answer, len(s.answers))
	for token, ans := range s.answers {
		ledger[token] = ans
	}
	streaks := make(map[string]int, len(s.players))
	for token, p := range s.players {
		streaks[token] = p.streak
	}

	outcomes := Evaluate(question, ledger, streaks, s.rules)

	for token, out := range outcomes {
		p, ok := s.players[token]
		if !ok {
			continue
		}
		p.score += out.Points
		p.streak = out.Streak

		if !p.connected || p.conn == nil {
			continue
		}
		// One player's dead handle must not starve the rest.
		if err := s.deliver(p.conn, domain.EventFeedback, feedbackFor(out, p.score, question)); err != nil {
			log.Printf("skip feedback for %q: %v", token, err)
		}
	}

	s.toHostsLocked(domain.EventReveal, domain.RoundReveal{
		Ordinal:      s.index + 1,
		Target:       question.Target,
		CorrectLabel: question.Label,
		Explanation:  question.Explanation,
	})
	s.hostStatsLocked()

	ordinal := s.index + 1
	final := ordinal == len(s.deck.Questions)
	if final || (s.rules.CheckpointEvery > 0 && ordinal%s.rules.CheckpointEvery == 0) {
		epoch := s.epoch
		s.schedule(s.rules.CheckpointDelay, func() {
			s.broadcastCheckpoint(epoch, final)
		})
	}
}

// broadcastCheckpoint publishes the leaderboard after the post-reveal
// pause, unless a reset has wiped the session in the meantime.
func (s *Session) broadcastCheckpoint(epoch uint64, winner bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if epoch != s.epoch {
		return
	}
	s.broadcastLocked(domain.EventLeaderboard, s.leaderboardLocked(winner))
}

// ShowLeaderboard broadcasts an ad hoc leaderboard snapshot.
func (s *Session) ShowLeaderboard() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.broadcastLocked(domain.EventLeaderboard, s.leaderboardLocked(s.finishedLocked()))
}

// HideLeaderboard tells every client to dismiss the leaderboard.
func (s *Session) HideLeaderboard() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.broadcastLocked(domain.EventHideLeaderboard, struct{}{})
}

// Reset wipes all session state and forces every client to reload and
// re-identify. Pending deadline and checkpoint timers are invalidated
// by the id bumps.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.broadcastLocked(domain.EventReload, struct{}{})

	s.players = make(map[string]*playerState)
	s.answers = make(map[string]Answer)
	s.index = -1
	s.active = false
	s.roundID++
	s.epoch++

	s.broadcastLocked(domain.EventResetDone, struct{}{})
}

func (s *Session) finishedLocked() bool {
	return !s.active && s.index == len(s.deck.Questions)-1
}

// sweepLocked removes players that have been disconnected longer than
// the grace period. Connected players are never removed.
func (s *Session) sweepLocked(now time.Time) {
	for token, p := range s.players {
		if p.connected {
			continue
		}
		if now.Sub(p.lastSeen) > s.rules.GracePeriod {
			delete(s.players, token)
			delete(s.answers, token)
		}
	}
}

func (s *Session) questionEventLocked() domain.QuestionStarted {
	q := s.deck.Questions[s.index]
	return domain.QuestionStarted{
		Ordinal:     s.index + 1,
		Total:       len(s.deck.Questions),
		Text:        q.Text,
		DurationSec: int(s.rules.RoundDuration / time.Second),
	}
}

func (s *Session) statsLocked() domain.HostStats {
	stats := domain.HostStats{Answered: len(s.answers), Names: []string{}}
	sum := 0
	for _, ans := range s.answers {
		sum += ans.Value
		if ans.Value == domain.SideLeft {
			stats.Zeros++
		} else {
			stats.Hundreds++
		}
	}
	if stats.Answered > 0 {
		stats.Average = float64(sum) / float64(stats.Answered)
	}
	for _, p := range s.players {
		if p.connected {
			stats.Connected++
			stats.Names = append(stats.Names, p.name)
		}
	}
	sort.Strings(stats.Names)
	return stats
}

func (s *Session) leaderboardLocked(winner bool) domain.Leaderboard {
	type ranked struct {
		name  string
		score int
	}
	entries := make([]ranked, 0, len(s.players))
	for _, p := range s.players {
		entries = append(entries, ranked{name: p.name, score: p.score})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].score != entries[j].score {
			return entries[i].score > entries[j].score
		}
		return entries[i].name < entries[j].name
	})

	size := s.rules.LeaderboardSize
	if size <= 0 || size > len(entries) {
		size = len(entries)
	}
	lb := domain.Leaderboard{Winner: winner, Entries: make([]domain.LeaderboardEntry, 0, size)}
	for _, e := range entries[:size] {
		lb.Entries = append(lb.Entries, domain.LeaderboardEntry{Name: e.name, Score: e.score})
	}
	return lb
}

func (s *Session) hostStatsLocked() {
	s.toHostsLocked(domain.EventStats, s.statsLocked())
}

// broadcastLocked sends to every connected player and every host.
func (s *Session) broadcastLocked(kind string, payload any) {
	for token, p := range s.players {
		if !p.connected || p.conn == nil {
			continue
		}
		if err := s.deliver(p.conn, kind, payload); err != nil {
			log.Printf("skip %s for %q: %v", kind, token, err)
		}
	}
	s.toHostsLocked(kind, payload)
}

func (s *Session) toHostsLocked(kind string, payload any) {
	for conn := range s.hosts {
		if err := s.deliver(conn, kind, payload); err != nil {
			log.Printf("skip %s for host: %v", kind, err)
			delete(s.hosts, conn)
		}
	}
}

func (s *Session) deliver(conn Recipient, kind string, payload any) error {
	return conn.Deliver(kind, payload)
}

func feedbackFor(out Outcome, score int, q domain.QuestionRecord) domain.Feedback {
	fb := domain.Feedback{
		Correct:      out.Correct,
		Fastest:      out.Fastest,
		Points:       out.Points,
		StreakBonus:  out.StreakBonus,
		Score:        score,
		CorrectLabel: q.Label,
		Explanation:  q.Explanation,
	}
	switch {
	case out.StreakBonus && out.Fastest:
		fb.Flavor = "Fastest pick and a streak payout!"
	case out.StreakBonus:
		fb.Flavor = "Streak bonus banked!"
	case out.Fastest:
		fb.Flavor = "Fastest pick in the room!"
	}
	return fb
}
