package rbac

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/sgp-project/sgp/internal/perm"
)

// PermissionCache caches effective project capability sets per (user,
// project) in Redis. Entries carry a per-project generation number:
// membership changes delete the single affected key, role permission edits
// bump the generation and implicitly drop every entry of the project.
// Concurrent fills for the same key collapse through singleflight.
type PermissionCache struct {
	client *redis.Client
	ttl    time.Duration
	group  singleflight.Group
}

// NewPermissionCache constructs the cache.
func NewPermissionCache(client *redis.Client, ttl time.Duration) *PermissionCache {
	return &PermissionCache{client: client, ttl: ttl}
}

type cachedEntry struct {
	Member       bool     `json:"member"`
	Capabilities []string `json:"capabilities"`
}

// FillFunc loads the effective capability set from the source of truth.
type FillFunc func(ctx context.Context) (perm.Set, bool, error)

// Effective returns the cached capability set for the user in the project,
// filling the cache on a miss. Cache failures degrade to the fill function;
// authorization never fails because Redis is down.
func (pc *PermissionCache) Effective(ctx context.Context, userID, projectID int64, fill FillFunc) (perm.Set, bool, error) {
	gen, err := pc.generation(ctx, projectID)
	if err != nil {
		return fill(ctx)
	}
	key := pc.entryKey(userID, projectID, gen)

	if raw, err := pc.client.Get(ctx, key).Bytes(); err == nil {
		var entry cachedEntry
		if err := json.Unmarshal(raw, &entry); err == nil {
			return perm.FromStrings(entry.Capabilities), entry.Member, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		return fill(ctx)
	}

	type result struct {
		caps   perm.Set
		member bool
	}
	v, err, _ := pc.group.Do(key, func() (any, error) {
		caps, member, err := fill(ctx)
		if err != nil {
			return nil, err
		}
		entry := cachedEntry{Member: member}
		if caps != nil {
			entry.Capabilities = caps.Strings()
		}
		if data, err := json.Marshal(entry); err == nil {
			_ = pc.client.Set(ctx, key, data, pc.ttl).Err()
		}
		return result{caps: caps, member: member}, nil
	})
	if err != nil {
		return nil, false, err
	}
	res := v.(result)
	return res.caps, res.member, nil
}

// InvalidateUser drops the cached entry for one user in one project.
func (pc *PermissionCache) InvalidateUser(ctx context.Context, userID, projectID int64) {
	gen, err := pc.generation(ctx, projectID)
	if err != nil {
		return
	}
	_ = pc.client.Del(ctx, pc.entryKey(userID, projectID, gen)).Err()
}

// InvalidateProject drops every cached entry of the project by bumping its
// generation.
func (pc *PermissionCache) InvalidateProject(ctx context.Context, projectID int64) {
	_ = pc.client.Incr(ctx, pc.generationKey(projectID)).Err()
}

func (pc *PermissionCache) generation(ctx context.Context, projectID int64) (int64, error) {
	gen, err := pc.client.Get(ctx, pc.generationKey(projectID)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, err
	}
	return gen, nil
}

func (pc *PermissionCache) generationKey(projectID int64) string {
	return fmt.Sprintf("sgp:perms:gen:%d", projectID)
}

func (pc *PermissionCache) entryKey(userID, projectID, gen int64) string {
	return fmt.Sprintf("sgp:perms:%d:%d:%d", projectID, gen, userID)
}
