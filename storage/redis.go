package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mymanybooks/go-auth/users"
	"github.com/redis/go-redis/v9"
)

var _ Adapter = (*Redis)(nil)

// Redis is a durable shared adapter for server-rendered deployments where
// several instances serve the same browser session. Keys are namespaced by
// prefix, typically one prefix per end-user session.
type Redis struct {
	client *redis.Client
	prefix string
}

func NewRedis(client *redis.Client, prefix string) *Redis {
	return &Redis{client: client, prefix: prefix}
}

func (r *Redis) tokensKey() string { return r.prefix + ":tokens" }
func (r *Redis) userKey() string   { return r.prefix + ":user" }

func (r *Redis) Tokens(ctx context.Context) (*Tokens, error) {
	data, err := r.client.Get(ctx, r.tokensKey()).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("[storage.Redis.Tokens] client.Get: %w", err)
	}

	var tokens Tokens
	if err := json.Unmarshal(data, &tokens); err != nil {
		return nil, fmt.Errorf("[storage.Redis.Tokens] json.Unmarshal: %w", err)
	}
	return &tokens, nil
}

func (r *Redis) SetTokens(ctx context.Context, tokens *Tokens) error {
	if tokens == nil {
		if err := r.client.Del(ctx, r.tokensKey()).Err(); err != nil {
			return fmt.Errorf("[storage.Redis.SetTokens] client.Del: %w", err)
		}
		return nil
	}

	data, err := json.Marshal(tokens)
	if err != nil {
		return fmt.Errorf("[storage.Redis.SetTokens] json.Marshal: %w", err)
	}
	if err := r.client.Set(ctx, r.tokensKey(), data, 0).Err(); err != nil {
		return fmt.Errorf("[storage.Redis.SetTokens] client.Set: %w", err)
	}
	return nil
}

func (r *Redis) User(ctx context.Context) (*users.User, error) {
	data, err := r.client.Get(ctx, r.userKey()).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("[storage.Redis.User] client.Get: %w", err)
	}

	var user users.User
	if err := json.Unmarshal(data, &user); err != nil {
		return nil, fmt.Errorf("[storage.Redis.User] json.Unmarshal: %w", err)
	}
	return &user, nil
}

func (r *Redis) SetUser(ctx context.Context, user *users.User) error {
	if user == nil {
		if err := r.client.Del(ctx, r.userKey()).Err(); err != nil {
			return fmt.Errorf("[storage.Redis.SetUser] client.Del: %w", err)
		}
		return nil
	}

	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("[storage.Redis.SetUser] json.Marshal: %w", err)
	}
	if err := r.client.Set(ctx, r.userKey(), data, 0).Err(); err != nil {
		return fmt.Errorf("[storage.Redis.SetUser] client.Set: %w", err)
	}
	return nil
}

// Clear removes tokens and user in one round trip so no reader observes a
// half-cleared session.
func (r *Redis) Clear(ctx context.Context) error {
	if err := r.client.Del(ctx, r.tokensKey(), r.userKey()).Err(); err != nil {
		return fmt.Errorf("[storage.Redis.Clear] client.Del: %w", err)
	}
	return nil
}
