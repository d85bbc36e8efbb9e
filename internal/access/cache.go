package access

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultDecisionTTL bounds how long a cached verdict may serve the queued
// evaluation path before a fresh computation is forced.
const DefaultDecisionTTL = 120 * time.Second

// CachedDecision is the minimal verdict stored in Redis. Matched policies and
// source are deliberately not cached; consumers of the async path only need
// the boolean.
type CachedDecision struct {
	Allowed bool `json:"allowed"`
}

// DecisionCache stores evaluation verdicts in Redis keyed by the identity
// tuple. The evaluation context is intentionally not part of the key: two
// requests for the same tuple share a verdict for the TTL window even when
// their contexts differ.
type DecisionCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewDecisionCache constructs a DecisionCache. A non-positive ttl falls back
// to DefaultDecisionTTL.
func NewDecisionCache(rdb *redis.Client, ttl time.Duration) *DecisionCache {
	if ttl <= 0 {
		ttl = DefaultDecisionTTL
	}
	return &DecisionCache{rdb: rdb, ttl: ttl}
}

func decisionKey(tenantID, userID, resource, action string) string {
	return fmt.Sprintf("ac:decision:%s:%s:%s:%s", tenantID, userID, resource, action)
}

// Get returns the cached verdict for the tuple, with ok=false on a miss. An
// unreadable payload counts as a miss so a fresh evaluation overwrites it.
func (c *DecisionCache) Get(ctx context.Context, tenantID, userID, resource, action string) (CachedDecision, bool, error) {
	raw, err := c.rdb.Get(ctx, decisionKey(tenantID, userID, resource, action)).Bytes()
	if err == redis.Nil {
		return CachedDecision{}, false, nil
	}
	if err != nil {
		return CachedDecision{}, false, fmt.Errorf("decision cache get: %w", err)
	}
	var cached CachedDecision
	if err := json.Unmarshal(raw, &cached); err != nil {
		return CachedDecision{}, false, nil
	}
	return cached, true, nil
}

// Put stores the verdict for the tuple. Callers treat a returned error as
// non-fatal: a failed write only costs a recomputation later.
func (c *DecisionCache) Put(ctx context.Context, tenantID, userID, resource, action string, d CachedDecision) error {
	raw, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("decision cache marshal: %w", err)
	}
	if err := c.rdb.Set(ctx, decisionKey(tenantID, userID, resource, action), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("decision cache set: %w", err)
	}
	return nil
}
