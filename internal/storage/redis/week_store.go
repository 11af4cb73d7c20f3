package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/goodtune/weekwatch/internal/storage"
	"github.com/redis/go-redis/v9"
)

const (
	keySessions    = "weekwatch:sessions:open"
	keyExclusions  = "weekwatch:exclusions"
	keyUsagePrefix = "weekwatch:usage:day:"
)

type weekStore struct {
	client *redis.Client
}

func dayUsageKey(weekday int) string {
	return fmt.Sprintf("%s%d", keyUsagePrefix, weekday)
}

// PutOpenSession stores the open session as a field of a single hash keyed
// by user ID, so at most one open session per user exists by construction.
func (s *weekStore) PutOpenSession(ctx context.Context, session storage.OpenSession) error {
	return s.client.HSet(ctx, keySessions, session.UserID, session.StartedAt.Format(time.RFC3339Nano)).Err()
}

func (s *weekStore) DeleteOpenSession(ctx context.Context, userID string) error {
	removed, err := s.client.HDel(ctx, keySessions, userID).Result()
	if err != nil {
		return err
	}
	if removed == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *weekStore) ListOpenSessions(ctx context.Context) ([]storage.OpenSession, error) {
	data, err := s.client.HGetAll(ctx, keySessions).Result()
	if err != nil {
		return nil, err
	}

	sessions := make([]storage.OpenSession, 0, len(data))
	for userID, raw := range data {
		startedAt, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return nil, fmt.Errorf("failed to parse started_at for %s: %w", userID, err)
		}
		sessions = append(sessions, storage.OpenSession{UserID: userID, StartedAt: startedAt})
	}
	return sessions, nil
}

// CreditDayUsage pipelines all increments of one closed session into a
// single round trip.
func (s *weekStore) CreditDayUsage(ctx context.Context, increments []storage.DayUsage) error {
	pipe := s.client.TxPipeline()
	for _, inc := range increments {
		pipe.HIncrBy(ctx, dayUsageKey(inc.Weekday), inc.UserID, inc.Seconds)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (s *weekStore) ListDayUsage(ctx context.Context) ([]storage.DayUsage, error) {
	// Pipeline the seven weekday hashes in one round trip.
	pipe := s.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, 7)
	for weekday := 0; weekday < 7; weekday++ {
		cmds[weekday] = pipe.HGetAll(ctx, dayUsageKey(weekday))
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, err
	}

	usage := make([]storage.DayUsage, 0)
	for weekday, cmd := range cmds {
		data, err := cmd.Result()
		if err != nil {
			continue
		}
		for userID, raw := range data {
			seconds, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("failed to parse seconds for %s: %w", userID, err)
			}
			usage = append(usage, storage.DayUsage{Weekday: weekday, UserID: userID, Seconds: seconds})
		}
	}
	return usage, nil
}

func (s *weekStore) AddExclusion(ctx context.Context, userID string) error {
	return s.client.SAdd(ctx, keyExclusions, userID).Err()
}

func (s *weekStore) RemoveExclusion(ctx context.Context, userID string) error {
	return s.client.SRem(ctx, keyExclusions, userID).Err()
}

func (s *weekStore) ListExclusions(ctx context.Context) ([]string, error) {
	return s.client.SMembers(ctx, keyExclusions).Result()
}

func (s *weekStore) DeleteUser(ctx context.Context, userID string) error {
	script := redis.NewScript(deleteUserScript)
	keys := []string{keySessions, keyExclusions}
	return script.Run(ctx, s.client, keys, userID, keyUsagePrefix).Err()
}

func (s *weekStore) ResetWeek(ctx context.Context) error {
	script := redis.NewScript(resetWeekScript)
	keys := []string{keyExclusions}
	return script.Run(ctx, s.client, keys, keyUsagePrefix).Err()
}
