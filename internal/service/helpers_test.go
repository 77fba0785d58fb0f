package service

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/course-flow-api/pkg/errors"
)

// newTxDB returns an sqlx handle backed by sqlmock for services that only
// need Begin/Commit semantics; the repositories under them are mocked and
// never touch SQL.
func newTxDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	raw, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	db := sqlx.NewDb(raw, "sqlmock")
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

type cacheMock struct {
	store   map[string][]byte
	gets    []string
	sets    []string
	deletes []string
	hit     interface{}
}

func newCacheMock() *cacheMock {
	return &cacheMock{store: map[string][]byte{}}
}

func (c *cacheMock) Get(ctx context.Context, key string, dest interface{}) error {
	c.gets = append(c.gets, key)
	if c.hit == nil {
		return appErrors.ErrCacheMiss
	}
	return nil
}

func (c *cacheMock) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	c.sets = append(c.sets, key)
	return nil
}

func (c *cacheMock) Delete(ctx context.Context, keys ...string) error {
	c.deletes = append(c.deletes, keys...)
	return nil
}

type metricsMock struct {
	transitions []string
}

func (m *metricsMock) ObserveTransition(entity, from, to string) {
	m.transitions = append(m.transitions, entity+":"+from+"->"+to)
}
