package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/SanmishaTech/AgriSkills-sub001/internal/quiz"
)

// QuizCache holds student-safe quiz payloads. Entries never contain answer
// keys; callers sanitize before Set.
type QuizCache interface {
	Set(ctx context.Context, q *quiz.Quiz) error
	Get(ctx context.Context, id string) (*quiz.Quiz, error)
	Delete(ctx context.Context, id string) error
}

// ErrMiss is returned by Get when the key is absent.
var ErrMiss = errors.New("cache miss")

type quizCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewQuizCache(client *redis.Client) QuizCache {
	return &quizCache{client: client, ttl: 10 * time.Minute}
}

func (c *quizCache) Set(ctx context.Context, q *quiz.Quiz) error {
	data, err := json.Marshal(q)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, "quiz:"+q.ID, data, c.ttl).Err()
}

func (c *quizCache) Get(ctx context.Context, id string) (*quiz.Quiz, error) {
	data, err := c.client.Get(ctx, "quiz:"+id).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, err
	}
	var q quiz.Quiz
	if err := json.Unmarshal([]byte(data), &q); err != nil {
		return nil, err
	}
	return &q, nil
}

func (c *quizCache) Delete(ctx context.Context, id string) error {
	return c.client.Del(ctx, "quiz:"+id).Err()
}
