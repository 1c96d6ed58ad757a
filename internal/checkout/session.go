package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/lojinha/checkout/internal/redisx"
)

// SessionStore keeps the in-flight checkout payload in redis so a page reload
// resumes mid-flow instead of losing the cart. Sessions are cleared explicitly
// on completion; the TTL catches abandoned ones.
type SessionStore struct {
	RDB *redis.Client
}

func (s *SessionStore) Save(ctx context.Context, sessionID string, req Request) error {
	b, err := json.Marshal(req)
	if err != nil {
		return err
	}
	key := fmt.Sprintf(redisx.KeySession, sessionID)
	return s.RDB.Set(ctx, key, b, redisx.TTLSession).Err()
}

func (s *SessionStore) Load(ctx context.Context, sessionID string) (Request, bool, error) {
	key := fmt.Sprintf(redisx.KeySession, sessionID)
	b, err := s.RDB.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Request{}, false, nil
	}
	if err != nil {
		return Request{}, false, err
	}
	var req Request
	if err := json.Unmarshal(b, &req); err != nil {
		return Request{}, false, err
	}
	return req, true, nil
}

func (s *SessionStore) Clear(ctx context.Context, sessionID string) error {
	key := fmt.Sprintf(redisx.KeySession, sessionID)
	return s.RDB.Del(ctx, key).Err()
}
