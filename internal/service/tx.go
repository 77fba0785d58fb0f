package service

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
)

// txBeginner abstracts *sqlx.DB for services that run multi-statement
// transactions, so tests can substitute sqlmock-backed handles.
type txBeginner interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

// transitionObserver counts applied status transitions. A nil observer
// disables instrumentation.
type transitionObserver interface {
	ObserveTransition(entity, from, to string)
}
