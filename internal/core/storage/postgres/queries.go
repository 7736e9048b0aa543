package postgres

// SQL for partition metadata, DDL issuance, event storage and the daily
// aggregate. DDL statements are assembled with pq.QuoteIdentifier at the call
// site because relation names cannot be bound as parameters.

const (
	// queryPartitionExists reads live storage metadata; never cached.
	queryPartitionExists = `
		SELECT EXISTS (
			SELECT 1
			FROM pg_tables
			WHERE schemaname = $1 AND tablename = $2
		)
	`

	// queryIndexExists checks one index on one leaf; the provisioner uses it
	// to find leaves that exist without their index set.
	queryIndexExists = `
		SELECT EXISTS (
			SELECT 1
			FROM pg_indexes
			WHERE schemaname = $1 AND tablename = $2 AND indexname = $3
		)
	`

	// queryListPartitions lists partitions by deterministic name pattern.
	queryListPartitions = `
		SELECT tablename
		FROM pg_tables
		WHERE schemaname = $1 AND tablename LIKE $2
		ORDER BY tablename ASC
	`

	// Session-scoped advisory lock keyed by a 64-bit hash of the partition
	// name. Held on a dedicated connection for the duration of a provisioning
	// operation; closing the connection releases it even on crash paths.
	queryAdvisoryLock   = `SELECT pg_advisory_lock($1)`
	queryAdvisoryUnlock = `SELECT pg_advisory_unlock($1)`

	// No ON CONFLICT: the primary key leads with a BIGSERIAL, so conflicts
	// only arise from explicit replays; 23505 maps to storage.ErrDuplicate.
	querySaveEvent = `
		INSERT INTO viewing_events (
			user_id, content_id, event_timestamp, event_type,
			watch_duration_seconds, device_type, country_code,
			quality, bandwidth_mbps, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING event_id
	`

	// Both event queries filter on the partition keys first so the planner
	// prunes physical units that cannot contain matching rows.
	queryEventsByRange = `
		SELECT
			event_id, user_id, content_id, event_timestamp, event_type,
			watch_duration_seconds, device_type, country_code,
			quality, bandwidth_mbps, created_at
		FROM viewing_events
		WHERE event_timestamp >= $1 AND event_timestamp < $2
		ORDER BY event_timestamp ASC
		LIMIT $3
	`

	queryEventsByRangeAndCountry = `
		SELECT
			event_id, user_id, content_id, event_timestamp, event_type,
			watch_duration_seconds, device_type, country_code,
			quality, bandwidth_mbps, created_at
		FROM viewing_events
		WHERE event_timestamp >= $1 AND event_timestamp < $2
		  AND country_code = $3
		ORDER BY event_timestamp ASC
		LIMIT $4
	`

	queryAggregateDays = `
		SELECT day, distinct_user_count
		FROM daily_active_users
		WHERE day >= $1 AND day <= $2
		ORDER BY day ASC
	`

	// Aggregate rebuild: the staging table is populated out-of-band, then
	// published by renames inside one transaction. The rename pair is
	// metadata-only, so aggregate readers block for microseconds at most and
	// see either the fully-old or fully-new table; event writers are never
	// involved.
	queryDropStagingAggregate = `DROP TABLE IF EXISTS daily_active_users_staging`
	queryDropRetiredAggregate = `DROP TABLE IF EXISTS daily_active_users_retired`

	queryCreateStagingAggregate = `
		CREATE TABLE daily_active_users_staging
		(LIKE daily_active_users INCLUDING ALL)
	`

	queryBuildAggregateFull = `
		INSERT INTO daily_active_users_staging (day, distinct_user_count)
		SELECT event_timestamp::date AS day, COUNT(DISTINCT user_id)
		FROM viewing_events
		GROUP BY 1
	`

	queryCarryAggregateBeforeCutoff = `
		INSERT INTO daily_active_users_staging (day, distinct_user_count)
		SELECT day, distinct_user_count
		FROM daily_active_users
		WHERE day < $1
	`

	queryBuildAggregateSinceCutoff = `
		INSERT INTO daily_active_users_staging (day, distinct_user_count)
		SELECT event_timestamp::date AS day, COUNT(DISTINCT user_id)
		FROM viewing_events
		WHERE event_timestamp >= $1
		GROUP BY 1
	`

	queryRetireAggregate  = `ALTER TABLE daily_active_users RENAME TO daily_active_users_retired`
	queryPublishAggregate = `ALTER TABLE daily_active_users_staging RENAME TO daily_active_users`
)
