package app_test

import (
	"testing"
	"time"

	"pickside-quiz-service/internal/app"
	"pickside-quiz-service/internal/domain"
)

// manualClock lets tests control elapsed time exactly.
type manualClock struct {
	now time.Time
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Date(2025, 6, 1, 20, 0, 0, 0, time.UTC)}
}

func (c *manualClock) Now() time.Time          { return c.now }
func (c *manualClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

// timerQueue captures scheduled callbacks so tests fire them on demand.
type timerQueue struct {
	delays []time.Duration
	fns    []func()
}

func (q *timerQueue) schedule(d time.Duration, fn func()) {
	q.delays = append(q.delays, d)
	q.fns = append(q.fns, fn)
}

func (q *timerQueue) fire(t *testing.T, i int) {
	t.Helper()
	if i >= len(q.fns) {
		t.Fatalf("no timer %d scheduled (have %d)", i, len(q.fns))
	}
	q.fns[i]()
}

// recConn records everything delivered to one client.
type recConn struct {
	events []recorded
}

type recorded struct {
	kind    string
	payload any
}

func (c *recConn) Deliver(kind string, payload any) error {
	c.events = append(c.events, recorded{kind: kind, payload: payload})
	return nil
}

func (c *recConn) count(kind string) int {
	n := 0
	for _, e := range c.events {
		if e.kind == kind {
			n++
		}
	}
	return n
}

func (c *recConn) last(t *testing.T, kind string) any {
	t.Helper()
	for i := len(c.events) - 1; i >= 0; i-- {
		if c.events[i].kind == kind {
			return c.events[i].payload
		}
	}
	t.Fatalf("no %s event recorded", kind)
	return nil
}

func (c *recConn) lastFeedback(t *testing.T) domain.Feedback {
	t.Helper()
	return c.last(t, domain.EventFeedback).(domain.Feedback)
}

func binaryDeck(targets ...int) domain.Deck {
	deck := domain.Deck{ID: "deck-1"}
	for i, target := range targets {
		label := "Manual"
		if target == domain.SideRight {
			label = "Automate"
		}
		deck.Questions = append(deck.Questions, domain.QuestionRecord{
			ID:          i + 1,
			Text:        "question",
			Target:      target,
			Label:       label,
			Explanation: "because",
		})
	}
	return deck
}

func newTestSession(targets ...int) (*app.Session, *manualClock, *timerQueue) {
	clock := newManualClock()
	timers := &timerQueue{}
	s := app.NewSessionWithClock(binaryDeck(targets...), app.DefaultRules(), clock.Now, timers.schedule)
	return s, clock, timers
}

func TestTwoRoundScoring(t *testing.T) {
	s, clock, timers := newTestSession(domain.SideLeft, domain.SideRight)
	a, b := &recConn{}, &recConn{}
	s.Join("tok-a", "Alice", a)
	s.Join("tok-b", "Bob", b)

	s.StartRound()
	clock.Advance(time.Second)
	s.Submit("tok-a", 0)
	clock.Advance(time.Second)
	s.Submit("tok-b", 100)
	timers.fire(t, 0)

	fbA := a.lastFeedback(t)
	if !fbA.Correct || !fbA.Fastest || fbA.Points != 130 || fbA.Score != 130 {
		t.Fatalf("round 1 feedback for A: %+v", fbA)
	}
	fbB := b.lastFeedback(t)
	if fbB.Correct || fbB.Points != 0 || fbB.Score != 0 {
		t.Fatalf("round 1 feedback for B: %+v", fbB)
	}
	if fbA.CorrectLabel != "Manual" || fbB.Explanation != "because" {
		t.Fatalf("feedback should carry the reveal text, got %+v / %+v", fbA, fbB)
	}

	s.StartRound()
	clock.Advance(500 * time.Millisecond)
	s.Submit("tok-a", 100)
	timers.fire(t, 1)

	fbA = a.lastFeedback(t)
	if !fbA.Fastest || fbA.Points != 130 || fbA.Score != 260 {
		t.Fatalf("round 2 feedback for A: %+v", fbA)
	}
	fbB = b.lastFeedback(t)
	if fbB.Correct || fbB.Score != 0 {
		t.Fatalf("round 2 feedback for B: %+v", fbB)
	}
}

func TestStreakBonusPaysOutAndResets(t *testing.T) {
	s, clock, timers := newTestSession(domain.SideLeft, domain.SideLeft, domain.SideLeft, domain.SideLeft)
	a, b := &recConn{}, &recConn{}
	s.Join("tok-a", "Alice", a)
	s.Join("tok-b", "Bob", b)

	deadline := 0
	for round := 1; round <= 4; round++ {
		s.StartRound()
		clock.Advance(time.Second)
		s.Submit("tok-b", 0) // B is always faster
		clock.Advance(time.Second)
		s.Submit("tok-a", 0)
		timers.fire(t, deadline)
		deadline = len(timers.fns) // skip any checkpoint timer

		fbA := a.lastFeedback(t)
		switch round {
		case 3:
			if !fbA.StreakBonus || fbA.Points != 120 {
				t.Fatalf("round 3 should pay the streak bonus, got %+v", fbA)
			}
		case 4:
			// Counter reset on payout: three more corrects are needed.
			if fbA.StreakBonus || fbA.Points != 100 {
				t.Fatalf("round 4 must not pay a streak bonus, got %+v", fbA)
			}
		default:
			if fbA.StreakBonus || fbA.Points != 100 {
				t.Fatalf("round %d feedback for A: %+v", round, fbA)
			}
		}
		fbB := b.lastFeedback(t)
		if !fbB.Fastest {
			t.Fatalf("round %d: B should be fastest, got %+v", round, fbB)
		}
	}
}

func TestLedgerAdmission(t *testing.T) {
	s, clock, timers := newTestSession(domain.SideRight)
	a, host := &recConn{}, &recConn{}
	s.Join("tok-a", "Alice", a)
	s.JoinHost(host)

	// No round collecting yet.
	s.Submit("tok-a", 100)

	s.StartRound()
	clock.Advance(time.Second)
	s.Submit("tok-a", 50)        // out of range
	s.Submit("tok-ghost", 100)   // unknown token
	stats := host.last(t, domain.EventStats).(domain.HostStats)
	if stats.Answered != 0 {
		t.Fatalf("invalid submissions must not reach the ledger, got %+v", stats)
	}

	// Resubmission overwrites rather than duplicating.
	s.Submit("tok-a", 0)
	s.Submit("tok-a", 100)
	stats = host.last(t, domain.EventStats).(domain.HostStats)
	if stats.Answered != 1 || stats.Hundreds != 1 || stats.Zeros != 0 {
		t.Fatalf("resubmission should overwrite, got %+v", stats)
	}

	// Past the advertised window but before the deadline callback.
	clock.Advance(10 * time.Second)
	s.Submit("tok-a", 0)
	stats = host.last(t, domain.EventStats).(domain.HostStats)
	if stats.Answered != 1 || stats.Hundreds != 1 {
		t.Fatalf("late submission should be rejected, got %+v", stats)
	}

	timers.fire(t, 0)
	if fb := a.lastFeedback(t); !fb.Correct || fb.Score != 130 {
		t.Fatalf("latest accepted value should be scored, got %+v", fb)
	}
}

func TestStaleTimerAfterReset(t *testing.T) {
	s, clock, timers := newTestSession(domain.SideLeft, domain.SideLeft)
	a := &recConn{}
	s.Join("tok-a", "Alice", a)

	s.StartRound()
	clock.Advance(time.Second)
	s.Submit("tok-a", 0)
	s.Reset()

	if a.count(domain.EventReload) != 1 {
		t.Fatalf("reset should force a reload, got %d", a.count(domain.EventReload))
	}

	timers.fire(t, 0)
	if a.count(domain.EventFeedback) != 0 {
		t.Fatalf("stale deadline must not score a wiped session")
	}

	// A fresh session starts over at the first question.
	s.Join("tok-a", "Alice", a)
	s.StartRound()
	q := a.last(t, domain.EventQuestion).(domain.QuestionStarted)
	if q.Ordinal != 1 {
		t.Fatalf("expected ordinal 1 after reset, got %d", q.Ordinal)
	}
}

func TestEvaluationIsIdempotent(t *testing.T) {
	s, clock, timers := newTestSession(domain.SideLeft)
	a := &recConn{}
	s.Join("tok-a", "Alice", a)

	s.StartRound()
	clock.Advance(time.Second)
	s.Submit("tok-a", 0)
	timers.fire(t, 0)
	timers.fire(t, 0) // duplicate deadline

	if got := a.count(domain.EventFeedback); got != 1 {
		t.Fatalf("expected exactly one feedback, got %d", got)
	}
	if fb := a.lastFeedback(t); fb.Score != 130 {
		t.Fatalf("score must not double, got %+v", fb)
	}
}

func TestReconnectPreservesScoreAndSupersedesHandle(t *testing.T) {
	s, clock, timers := newTestSession(domain.SideLeft, domain.SideLeft)
	a, host := &recConn{}, &recConn{}
	s.Join("tok-a", "Alice", a)
	s.JoinHost(host)

	s.StartRound()
	clock.Advance(time.Second)
	s.Submit("tok-a", 0)
	timers.fire(t, 0)

	s.Disconnect(a)
	a2 := &recConn{}
	s.Join("tok-a", "Alice", a2)

	wait := a2.last(t, domain.EventWait).(domain.WaitNotice)
	if wait.Score != 130 || wait.Name != "ALICE" {
		t.Fatalf("reconnect must preserve identity, got %+v", wait)
	}

	// Disconnecting the superseded handle must not knock the new one off.
	s.Disconnect(a)
	stats := host.last(t, domain.EventStats).(domain.HostStats)
	if stats.Connected != 1 {
		t.Fatalf("player should still be connected, got %+v", stats)
	}

	// Broadcasts now reach only the live handle.
	before := a.count(domain.EventQuestion)
	s.StartRound()
	if a.count(domain.EventQuestion) != before {
		t.Fatalf("superseded handle must not receive new rounds")
	}
	if a2.count(domain.EventQuestion) != 1 {
		t.Fatalf("live handle should receive the round")
	}
}

func TestSweepRemovesOnlyExpiredDisconnected(t *testing.T) {
	s, clock, _ := newTestSession(domain.SideLeft)
	a, b := &recConn{}, &recConn{}
	s.Join("tok-a", "Alice", a)
	s.Join("tok-b", "Bob", b)

	s.Disconnect(a)
	clock.Advance(299 * time.Second)
	s.Disconnect(b)
	clock.Advance(2 * time.Second) // Alice past grace, Bob not

	c := &recConn{}
	s.Join("tok-c", "Cara", c) // join runs the sweep

	s.ShowLeaderboard()
	lb := c.last(t, domain.EventLeaderboard).(domain.Leaderboard)
	names := make(map[string]bool)
	for _, e := range lb.Entries {
		names[e.Name] = true
	}
	if names["ALICE"] {
		t.Fatalf("expired disconnected player should be swept, got %+v", lb.Entries)
	}
	if !names["BOB"] || !names["CARA"] {
		t.Fatalf("unexpired players must survive the sweep, got %+v", lb.Entries)
	}

	// A reconnect before expiry prevents removal for good.
	s.Join("tok-b", "Bob", b)
	clock.Advance(10 * time.Minute)
	s.StartRound() // start runs the sweep too
	s.ShowLeaderboard()
	lb = c.last(t, domain.EventLeaderboard).(domain.Leaderboard)
	found := false
	for _, e := range lb.Entries {
		if e.Name == "BOB" {
			found = true
		}
	}
	if !found {
		t.Fatalf("connected player must never be swept, got %+v", lb.Entries)
	}
}

func TestCheckpointLeaderboard(t *testing.T) {
	clock := newManualClock()
	timers := &timerQueue{}
	rules := app.DefaultRules()
	rules.CheckpointEvery = 2
	deck := binaryDeck(domain.SideLeft, domain.SideLeft, domain.SideLeft)
	s := app.NewSessionWithClock(deck, rules, clock.Now, timers.schedule)

	a := &recConn{}
	s.Join("tok-a", "Alice", a)

	s.StartRound()
	timers.fire(t, 0)
	if len(timers.fns) != 1 {
		t.Fatalf("round 1 is no checkpoint, got %d timers", len(timers.fns))
	}

	s.StartRound()
	timers.fire(t, 1)
	if len(timers.fns) != 3 {
		t.Fatalf("round 2 should schedule a checkpoint, got %d timers", len(timers.fns))
	}
	timers.fire(t, 2)
	lb := a.last(t, domain.EventLeaderboard).(domain.Leaderboard)
	if lb.Winner {
		t.Fatalf("mid-session checkpoint must not announce a winner")
	}

	s.StartRound()
	timers.fire(t, 3)
	timers.fire(t, 4)
	lb = a.last(t, domain.EventLeaderboard).(domain.Leaderboard)
	if !lb.Winner {
		t.Fatalf("final checkpoint should announce the winner")
	}
}

func TestResetSuppressesPendingCheckpoint(t *testing.T) {
	clock := newManualClock()
	timers := &timerQueue{}
	rules := app.DefaultRules()
	rules.CheckpointEvery = 1
	s := app.NewSessionWithClock(binaryDeck(domain.SideLeft, domain.SideLeft), rules, clock.Now, timers.schedule)

	a := &recConn{}
	s.Join("tok-a", "Alice", a)
	s.StartRound()
	timers.fire(t, 0) // evaluation schedules the checkpoint
	s.Reset()
	timers.fire(t, 1)

	if a.count(domain.EventLeaderboard) != 0 {
		t.Fatalf("checkpoint scheduled before reset must not fire after it")
	}
}

func TestStartRoundGuards(t *testing.T) {
	s, _, timers := newTestSession(domain.SideLeft)
	a := &recConn{}
	s.Join("tok-a", "Alice", a)

	s.StartRound()
	s.StartRound() // already collecting
	if got := a.count(domain.EventQuestion); got != 1 {
		t.Fatalf("double start must be a no-op, got %d question events", got)
	}

	timers.fire(t, 0)
	s.StartRound() // deck exhausted
	if got := a.count(domain.EventQuestion); got != 1 {
		t.Fatalf("start after the last question must be a no-op, got %d", got)
	}
}

func TestLateJoinerSeesCurrentQuestion(t *testing.T) {
	s, _, _ := newTestSession(domain.SideLeft)
	a := &recConn{}
	s.Join("tok-a", "Alice", a)
	s.StartRound()

	late := &recConn{}
	s.Join("tok-late", "Zed", late)
	q := late.last(t, domain.EventQuestion).(domain.QuestionStarted)
	if q.Ordinal != 1 || q.DurationSec != 10 {
		t.Fatalf("late joiner should see the active question, got %+v", q)
	}
}

func TestSecondJoinOnSameHandleDetachesFirstToken(t *testing.T) {
	s, _, _ := newTestSession(domain.SideLeft)
	host := &recConn{}
	s.JoinHost(host)

	c := &recConn{}
	s.Join("tok-a", "Alice", c)
	s.Join("tok-b", "Bob", c)

	stats := host.last(t, domain.EventStats).(domain.HostStats)
	if stats.Connected != 1 || len(stats.Names) != 1 || stats.Names[0] != "BOB" {
		t.Fatalf("one handle must back one player, got %+v", stats)
	}

	// The handle going away must take every token it ever held offline.
	s.Disconnect(c)
	stats = host.last(t, domain.EventStats).(domain.HostStats)
	if stats.Connected != 0 {
		t.Fatalf("player left connected after its handle disconnected: %+v", stats)
	}

	// Nothing may be delivered into the dead handle afterwards.
	before := len(c.events)
	s.StartRound()
	if len(c.events) != before {
		t.Fatalf("broadcast reached a disconnected handle")
	}
}

func TestHostStatsSnapshotIsSelfContained(t *testing.T) {
	s, _, _ := newTestSession(domain.SideLeft)
	host := &recConn{}
	s.JoinHost(host)

	stats := host.last(t, domain.EventStats).(domain.HostStats)
	if stats.Names == nil {
		t.Fatalf("names must be an empty list even with nobody connected, got %+v", stats)
	}
	if stats.Connected != 0 || stats.Answered != 0 {
		t.Fatalf("empty room should report zeroes, got %+v", stats)
	}
}

func TestDisconnectedPlayersAreScoredButNotNotified(t *testing.T) {
	s, clock, timers := newTestSession(domain.SideLeft)
	a := &recConn{}
	s.Join("tok-a", "Alice", a)

	s.StartRound()
	clock.Advance(time.Second)
	s.Submit("tok-a", 0)
	s.Disconnect(a)
	timers.fire(t, 0)

	if a.count(domain.EventFeedback) != 0 {
		t.Fatalf("disconnected player must not receive feedback")
	}

	a2 := &recConn{}
	s.Join("tok-a", "Alice", a2)
	wait := a2.last(t, domain.EventWait).(domain.WaitNotice)
	if wait.Score != 130 {
		t.Fatalf("disconnected player should still have been scored, got %+v", wait)
	}
}
