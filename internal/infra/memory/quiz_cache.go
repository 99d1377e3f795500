package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"quiz-widget-service/internal/app"
	"quiz-widget-service/internal/domain"
)

// QuizCache caches saved quizzes with TTL to avoid repeated backing store hits.
// Entries are keyed per principal so one caller never sees another's quiz.
type QuizCache struct {
	app.QuizStore
	ttl   time.Duration
	clock func() time.Time
	sf    singleflight.Group
	rnd   *rand.Rand
	rndMu sync.Mutex

	mu    sync.RWMutex
	cache map[string]cachedQuiz
}

type cachedQuiz struct {
	quiz      domain.SavedQuiz
	expiresAt time.Time
}

func NewQuizCache(store app.QuizStore, ttl time.Duration) *QuizCache {
	return &QuizCache{
		QuizStore: store,
		ttl:       ttl,
		clock:     time.Now,
		rnd:       rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:     make(map[string]cachedQuiz),
	}
}

func (c *QuizCache) GetQuiz(ctx context.Context, p domain.Principal, id string) (domain.SavedQuiz, error) {
	key := cacheKey(p, id)
	if quiz, ok := c.lookup(key); ok {
		return quiz, nil
	}

	result, err, _ := c.sf.Do(key, func() (interface{}, error) {
		if quiz, ok := c.lookup(key); ok {
			return quiz, nil
		}
		quiz, err := c.QuizStore.GetQuiz(ctx, p, id)
		if err != nil {
			return domain.SavedQuiz{}, err
		}
		c.store(key, quiz)
		return quiz, nil
	})
	if err != nil {
		return domain.SavedQuiz{}, err
	}
	return result.(domain.SavedQuiz), nil
}

// SaveQuiz writes through and primes the cache with the saved quiz.
func (c *QuizCache) SaveQuiz(ctx context.Context, p domain.Principal, bundle domain.SaveBundle) (domain.SavedQuiz, error) {
	saved, err := c.QuizStore.SaveQuiz(ctx, p, bundle)
	if err != nil {
		return domain.SavedQuiz{}, err
	}
	if saved.ID != "" {
		c.store(cacheKey(p, saved.ID), saved)
	}
	return saved, nil
}

func (c *QuizCache) lookup(key string) (domain.SavedQuiz, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.cache[key]
	if !ok || !entry.expiresAt.After(c.clock()) {
		return domain.SavedQuiz{}, false
	}
	return entry.quiz, true
}

func (c *QuizCache) store(key string, quiz domain.SavedQuiz) {
	expires := c.clock().Add(c.ttlWithJitter())
	c.mu.Lock()
	c.cache[key] = cachedQuiz{quiz: quiz, expiresAt: expires}
	c.mu.Unlock()
}

func (c *QuizCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}

func cacheKey(p domain.Principal, id string) string {
	return p.Subject + "/" + id
}
