package storage

import (
	"context"
	"fmt"
	"time"

	"musinotes/logger"

	"github.com/sony/gobreaker"
)

// ObjectStore is the part of MinioStore the export archive needs.
type ObjectStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, data []byte, contentType string) error
	RemovePrefix(ctx context.Context, prefix string) (int, error)
}

// ExportArchive caches rendered PDFs by owner and content digest.
type ExportArchive interface {
	Load(ctx context.Context, userID int64, contentKey string) ([]byte, bool, error)
	Save(ctx context.Context, userID int64, contentKey string, pdf []byte) error
	RemoveUser(ctx context.Context, userID int64) error
}

// UserPrefix is the key prefix holding every export of userID.
func UserPrefix(userID int64) string {
	return fmt.Sprintf("exports/%d/", userID)
}

// ExportKey is the object key of one archived PDF.
func ExportKey(userID int64, contentKey string) string {
	return UserPrefix(userID) + contentKey + ".pdf"
}

// BreakerArchive guards an ObjectStore with a circuit breaker so a slow or
// unavailable object store stops being called until it recovers.
type BreakerArchive struct {
	store ObjectStore
	cb    *gobreaker.CircuitBreaker
}

// NewBreakerArchive wraps store.
func NewBreakerArchive(store ObjectStore) *BreakerArchive {
	st := gobreaker.Settings{
		Name:        "ExportArchive",
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				logger.String("name", name),
				logger.String("from", from.String()),
				logger.String("to", to.String()))
		},
	}
	return &BreakerArchive{store: store, cb: gobreaker.NewCircuitBreaker(st)}
}

type loadResult struct {
	data  []byte
	found bool
}

func (a *BreakerArchive) Load(ctx context.Context, userID int64, contentKey string) ([]byte, bool, error) {
	res, err := a.cb.Execute(func() (interface{}, error) {
		data, found, err := a.store.Get(ctx, ExportKey(userID, contentKey))
		return loadResult{data: data, found: found}, err
	})
	if err != nil {
		return nil, false, err
	}
	r := res.(loadResult)
	return r.data, r.found, nil
}

func (a *BreakerArchive) Save(ctx context.Context, userID int64, contentKey string, pdf []byte) error {
	_, err := a.cb.Execute(func() (interface{}, error) {
		return nil, a.store.Put(ctx, ExportKey(userID, contentKey), pdf, "application/pdf")
	})
	return err
}

func (a *BreakerArchive) RemoveUser(ctx context.Context, userID int64) error {
	_, err := a.cb.Execute(func() (interface{}, error) {
		n, err := a.store.RemovePrefix(ctx, UserPrefix(userID))
		if err == nil && n > 0 {
			logger.Info("Removed archived exports", logger.Int64("userID", userID), logger.Int("count", n))
		}
		return nil, err
	})
	return err
}
