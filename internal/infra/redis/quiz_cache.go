package redis

import (
	"context"
	"encoding/json"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"quiz-widget-service/internal/app"
	"quiz-widget-service/internal/domain"
)

// QuizCache caches saved quizzes in Redis and falls back to the wrapped store on miss.
// Quizzes are stored as: SET quiz:saved:{subject}:{quizID} {json}
type QuizCache struct {
	app.QuizStore
	client *redis.Client
	ttl    time.Duration
	sf     singleflight.Group

	rndMu sync.Mutex
	rnd   *rand.Rand
}

func NewQuizCache(client *redis.Client, store app.QuizStore, ttl time.Duration) *QuizCache {
	return &QuizCache{
		QuizStore: store,
		client:    client,
		ttl:       ttl,
		rnd:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *QuizCache) GetQuiz(ctx context.Context, p domain.Principal, id string) (domain.SavedQuiz, error) {
	key := c.key(p, id)
	if quiz, ok := c.lookup(ctx, key); ok {
		return quiz, nil
	}

	result, err, _ := c.sf.Do(key, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if quiz, ok := c.lookup(ctx, key); ok {
			return quiz, nil
		}
		quiz, err := c.QuizStore.GetQuiz(ctx, p, id)
		if err != nil {
			return domain.SavedQuiz{}, err
		}
		c.fill(ctx, key, quiz)
		return quiz, nil
	})
	if err != nil {
		return domain.SavedQuiz{}, err
	}
	return result.(domain.SavedQuiz), nil
}

// SaveQuiz writes through and primes the cache.
func (c *QuizCache) SaveQuiz(ctx context.Context, p domain.Principal, bundle domain.SaveBundle) (domain.SavedQuiz, error) {
	saved, err := c.QuizStore.SaveQuiz(ctx, p, bundle)
	if err != nil {
		return domain.SavedQuiz{}, err
	}
	if saved.ID != "" {
		c.fill(ctx, c.key(p, saved.ID), saved)
	}
	return saved, nil
}

func (c *QuizCache) lookup(ctx context.Context, key string) (domain.SavedQuiz, bool) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		return domain.SavedQuiz{}, false
	}
	var quiz domain.SavedQuiz
	if err := json.Unmarshal(data, &quiz); err != nil {
		return domain.SavedQuiz{}, false
	}
	return quiz, true
}

// fill is best-effort; a cache write failure never fails the read.
func (c *QuizCache) fill(ctx context.Context, key string, quiz domain.SavedQuiz) {
	data, err := json.Marshal(quiz)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, key, data, c.ttlWithJitter()).Err(); err != nil {
		log.Printf("quiz cache fill %s: %v", key, err)
	}
}

func (c *QuizCache) key(p domain.Principal, id string) string {
	return "quiz:saved:" + p.Subject + ":" + id
}

func (c *QuizCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitterMax := int64(c.ttl) / 10
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
