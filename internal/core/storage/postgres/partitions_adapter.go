package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/streamflix/partwise/internal/core/plan"
	"github.com/streamflix/partwise/internal/core/storage"
)

const lockReleaseTimeout = 5 * time.Second

// PartitionAdapter implements storage.PartitionMetadata, storage.PartitionDDL
// and storage.PartitionLocker for PostgreSQL.
//
// DDL statements deliberately omit IF NOT EXISTS: an "already exists" failure
// must stay distinguishable from other errors so the provisioner can convert
// it to a benign no-op instead of swallowing real problems.
type PartitionAdapter struct {
	db     *sql.DB
	schema string
}

// NewPartitionAdapter creates a partition adapter sharing the given
// connection pool. schema is the namespace all partitions live in.
func NewPartitionAdapter(db *sql.DB, schema string) *PartitionAdapter {
	if schema == "" {
		schema = "public"
	}
	return &PartitionAdapter{db: db, schema: schema}
}

// PartitionExists queries pg_tables fresh on every call. Read-only; safe
// concurrently with provisioning elsewhere.
func (a *PartitionAdapter) PartitionExists(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := a.db.QueryRowContext(ctx, queryPartitionExists, a.schema, name).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check partition %s: %w", name, translateError(err))
	}
	return exists, nil
}

// IndexExists reports whether indexName is present on leafName.
func (a *PartitionAdapter) IndexExists(ctx context.Context, leafName, indexName string) (bool, error) {
	var exists bool
	err := a.db.QueryRowContext(ctx, queryIndexExists, a.schema, leafName, indexName).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check index %s on %s: %w", indexName, leafName, translateError(err))
	}
	return exists, nil
}

// ListPartitions returns partition names matching a LIKE pattern, ascending.
func (a *PartitionAdapter) ListPartitions(ctx context.Context, pattern string) ([]string, error) {
	rows, err := a.db.QueryContext(ctx, queryListPartitions, a.schema, pattern)
	if err != nil {
		return nil, fmt.Errorf("list partitions %q: %w", pattern, translateError(err))
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("list partitions: scan row: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list partitions: iterate rows: %w", err)
	}
	return names, nil
}

// CreateTimePartition creates one range-bounded partition of parent that is
// itself a hash-partitioned container. Bounds are half-open [start, end).
func (a *PartitionAdapter) CreateTimePartition(ctx context.Context, parent string, desc plan.PartitionDescriptor, hashColumn string) error {
	stmt := fmt.Sprintf(
		"CREATE TABLE %s.%s PARTITION OF %s.%s FOR VALUES FROM (%s) TO (%s) PARTITION BY HASH (%s)",
		pq.QuoteIdentifier(a.schema), pq.QuoteIdentifier(desc.Name),
		pq.QuoteIdentifier(a.schema), pq.QuoteIdentifier(parent),
		pq.QuoteLiteral(desc.RangeStart.UTC().Format(time.RFC3339)),
		pq.QuoteLiteral(desc.RangeEnd.UTC().Format(time.RFC3339)),
		pq.QuoteIdentifier(hashColumn),
	)
	if _, err := a.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("create time partition %s: %w", desc.Name, translateError(err))
	}
	slog.Info("[Postgres] Created time partition",
		"partition", desc.Name,
		"range_start", desc.RangeStart,
		"range_end", desc.RangeEnd)
	return nil
}

// CreateHashLeaf creates one hash bucket under a time partition.
func (a *PartitionAdapter) CreateHashLeaf(ctx context.Context, partitionName, leafName string, modulus, remainder int) error {
	stmt := fmt.Sprintf(
		"CREATE TABLE %s.%s PARTITION OF %s.%s FOR VALUES WITH (MODULUS %d, REMAINDER %d)",
		pq.QuoteIdentifier(a.schema), pq.QuoteIdentifier(leafName),
		pq.QuoteIdentifier(a.schema), pq.QuoteIdentifier(partitionName),
		modulus, remainder,
	)
	if _, err := a.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("create leaf %s: %w", leafName, translateError(err))
	}
	slog.Debug("[Postgres] Created hash leaf",
		"leaf", leafName,
		"modulus", modulus,
		"remainder", remainder)
	return nil
}

// CreateLeafIndex instantiates an index template on one leaf. Indexes go on
// leaves only — they are the physical storage units, the containers above
// them hold no rows.
func (a *PartitionAdapter) CreateLeafIndex(ctx context.Context, leafName string, tmpl plan.IndexTemplate) error {
	cols := make([]string, len(tmpl.Columns))
	for i, c := range tmpl.Columns {
		cols[i] = pq.QuoteIdentifier(c)
	}
	stmt := fmt.Sprintf(
		"CREATE INDEX %s ON %s.%s (%s)",
		pq.QuoteIdentifier(tmpl.IndexName(leafName)),
		pq.QuoteIdentifier(a.schema), pq.QuoteIdentifier(leafName),
		strings.Join(cols, ", "),
	)
	if tmpl.Predicate != "" {
		stmt += " WHERE " + tmpl.Predicate
	}
	if _, err := a.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("create index %s on %s: %w", tmpl.IndexName(leafName), leafName, translateError(err))
	}
	slog.Debug("[Postgres] Created leaf index",
		"index", tmpl.IndexName(leafName),
		"leaf", leafName)
	return nil
}

// AcquirePartitionLock takes a session advisory lock keyed by the partition
// name, on a connection pinned for the lock's lifetime. The returned release
// func is safe on every exit path: it unlocks with its own timeout and then
// returns the connection, which releases the lock even if the unlock failed.
func (a *PartitionAdapter) AcquirePartitionLock(ctx context.Context, name string) (func(), error) {
	conn, err := a.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: obtain connection: %w", name, translateError(err))
	}

	key := advisoryLockKey(name)
	if _, err := conn.ExecContext(ctx, queryAdvisoryLock, key); err != nil {
		conn.Close()
		return nil, fmt.Errorf("acquire lock %s: %w", name, translateError(err))
	}
	slog.Debug("[Postgres] Acquired partition lock", "partition", name, "key", key)

	release := func() {
		// Not the caller's context: release must run on failure and timeout
		// paths where that context is already dead.
		unlockCtx, cancel := context.WithTimeout(context.Background(), lockReleaseTimeout)
		defer cancel()

		if _, err := conn.ExecContext(unlockCtx, queryAdvisoryUnlock, key); err != nil {
			slog.Warn("[Postgres] Advisory unlock failed, closing session to release",
				"partition", name, "error", err)
		}
		conn.Close()
	}
	return release, nil
}

// advisoryLockKey maps a partition name onto the bigint keyspace of
// pg_advisory_lock. FNV-64a, same idiom as the bucket preview hash.
func advisoryLockKey(name string) int64 {
	h := fnv.New64a()
	h.Write([]byte(name))
	return int64(h.Sum64())
}

// translateError classifies driver errors into the sentinels the provisioner
// keys its behavior on. SQLSTATE 42P07 (duplicate_table) covers tables and
// indexes alike; classes 08 and 57 are connection failures and server
// shutdown.
func translateError(err error) error {
	if err == nil {
		return nil
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch {
		case pqErr.Code == "42P07":
			return fmt.Errorf("%s: %w", pqErr.Message, storage.ErrAlreadyExists)
		case pqErr.Code == "23505":
			return fmt.Errorf("%s: %w", pqErr.Message, storage.ErrDuplicate)
		case pqErr.Code.Class() == "08", pqErr.Code.Class() == "57":
			return fmt.Errorf("%s: %w", pqErr.Message, storage.ErrUnavailable)
		}
		return err
	}

	if errors.Is(err, driver.ErrBadConn) {
		return fmt.Errorf("%v: %w", err, storage.ErrUnavailable)
	}
	return err
}
