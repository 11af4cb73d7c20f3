package bolt

import (
	"bytes"
	"context"
	"fmt"

	"github.com/goodtune/weekwatch/internal/storage"
	"go.etcd.io/bbolt"
)

type weekStore struct {
	db *bbolt.DB
}

func (s *weekStore) PutOpenSession(ctx context.Context, session storage.OpenSession) error {
	return putBucketValue(ctx, s.db, bucketOpenSessions, session.UserID, session)
}

func (s *weekStore) DeleteOpenSession(ctx context.Context, userID string) error {
	return deleteBucketValue(ctx, s.db, bucketOpenSessions, userID)
}

func (s *weekStore) ListOpenSessions(ctx context.Context) ([]storage.OpenSession, error) {
	return listBucket[storage.OpenSession](ctx, s.db, bucketOpenSessions)
}

func (s *weekStore) CreditDayUsage(ctx context.Context, increments []storage.DayUsage) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b := tx.Bucket([]byte(bucketDayUsage))
		if b == nil {
			return fmt.Errorf("day usage bucket missing")
		}
		for _, inc := range increments {
			key := dayUsageKey(inc.Weekday, inc.UserID)
			usage := storage.DayUsage{Weekday: inc.Weekday, UserID: inc.UserID}
			if existing := b.Get([]byte(key)); existing != nil {
				if err := unmarshal(existing, &usage); err != nil {
					return err
				}
			}
			usage.Seconds += inc.Seconds
			data, err := marshal(usage)
			if err != nil {
				return err
			}
			if err := b.Put([]byte(key), data); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *weekStore) ListDayUsage(ctx context.Context) ([]storage.DayUsage, error) {
	return listBucket[storage.DayUsage](ctx, s.db, bucketDayUsage)
}

func (s *weekStore) AddExclusion(ctx context.Context, userID string) error {
	return putBucketValue(ctx, s.db, bucketExclusions, userID, userID)
}

func (s *weekStore) RemoveExclusion(ctx context.Context, userID string) error {
	err := deleteBucketValue(ctx, s.db, bucketExclusions, userID)
	if err == storage.ErrNotFound {
		return nil
	}
	return err
}

func (s *weekStore) ListExclusions(ctx context.Context) ([]string, error) {
	return listBucket[string](ctx, s.db, bucketExclusions)
}

func (s *weekStore) DeleteUser(ctx context.Context, userID string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if b := tx.Bucket([]byte(bucketOpenSessions)); b != nil {
			if err := b.Delete([]byte(userID)); err != nil {
				return err
			}
		}
		if b := tx.Bucket([]byte(bucketExclusions)); b != nil {
			if err := b.Delete([]byte(userID)); err != nil {
				return err
			}
		}
		b := tx.Bucket([]byte(bucketDayUsage))
		if b == nil {
			return nil
		}
		suffix := []byte("/" + userID)
		c := b.Cursor()
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			if bytes.HasSuffix(k, suffix) {
				if err := c.Delete(); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

func (s *weekStore) ResetWeek(ctx context.Context) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		for _, name := range []string{bucketDayUsage, bucketExclusions} {
			if err := tx.DeleteBucket([]byte(name)); err != nil && err != bbolt.ErrBucketNotFound {
				return err
			}
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
}

func dayUsageKey(weekday int, userID string) string {
	return fmt.Sprintf("%d/%s", weekday, userID)
}
