package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"pickside-quiz-service/internal/domain"
)

// DeckLoader fetches deck content from a backing store (e.g., Postgres).
type DeckLoader interface {
	LoadDeck(ctx context.Context, deckID string) (domain.Deck, error)
}

// DeckRepository keeps decks warm in process memory. Each deck goes
// through the loader at most once per TTL window, concurrent misses are
// collapsed by singleflight, and expiry is jittered at fill time so
// decks do not refresh in lockstep.
type DeckRepository struct {
	loader DeckLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group

	mu    sync.Mutex
	decks map[string]deckEntry
}

type deckEntry struct {
	deck    domain.Deck
	staleAt time.Time
}

func NewDeckRepository(loader DeckLoader, ttl time.Duration) *DeckRepository {
	return &DeckRepository{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		decks:  make(map[string]deckEntry),
	}
}

func (r *DeckRepository) GetDeck(ctx context.Context, deckID string) (domain.Deck, error) {
	if deck, ok := r.cached(deckID); ok {
		return deck, nil
	}

	result, err, _ := r.sf.Do(deckID, func() (interface{}, error) {
		// Another caller may have filled the entry while we queued.
		if deck, ok := r.cached(deckID); ok {
			return deck, nil
		}
		deck, err := r.loader.LoadDeck(ctx, deckID)
		if err != nil {
			return domain.Deck{}, err
		}
		r.store(deckID, deck)
		return deck, nil
	})
	if err != nil {
		return domain.Deck{}, err
	}
	return result.(domain.Deck), nil
}

func (r *DeckRepository) cached(deckID string) (domain.Deck, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.decks[deckID]
	if !ok || !r.clock().Before(entry.staleAt) {
		return domain.Deck{}, false
	}
	return entry.deck, true
}

func (r *DeckRepository) store(deckID string, deck domain.Deck) {
	lifetime := r.ttl
	if lifetime > 0 {
		// up to 10% jitter
		lifetime += time.Duration(rand.Int63n(int64(lifetime)/10 + 1))
	}

	r.mu.Lock()
	r.decks[deckID] = deckEntry{deck: deck, staleAt: r.clock().Add(lifetime)}
	r.mu.Unlock()
}

// StaticDeckLoader is a simple loader backed by an in-memory map
// (useful for tests/demos and redis-less deployments).
type StaticDeckLoader struct {
	decks map[string]domain.Deck
}

func NewStaticDeckLoader(decks map[string]domain.Deck) *StaticDeckLoader {
	return &StaticDeckLoader{decks: decks}
}

func (l *StaticDeckLoader) LoadDeck(_ context.Context, deckID string) (domain.Deck, error) {
	if deck, ok := l.decks[deckID]; ok {
		return deck, nil
	}
	return domain.Deck{}, domain.ErrDeckNotFound
}
