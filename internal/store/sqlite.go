package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration.

	"sjsage522/pepperwatch/migrations"
)

const timeLayout = "2006-01-02T15:04:05Z"

// SQLite implements Storage backed by a SQLite database.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if err := migrations.Run(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// CreateWatch inserts a new watch. Returns false when (owner, query) already exists.
func (s *SQLite) CreateWatch(ctx context.Context, w *Watch) (bool, error) {
	now := time.Now().UTC().Format(timeLayout)
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO watches (owner_id, query, max_price, created_at)
		 VALUES (?, ?, ?, ?)`,
		w.OwnerID, w.Query, w.MaxPrice, now,
	)
	if err != nil {
		return false, fmt.Errorf("insert watch: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return false, nil
	}
	id, err := res.LastInsertId()
	if err != nil {
		return false, fmt.Errorf("last insert id: %w", err)
	}
	w.ID = id
	w.CreatedAt, _ = time.Parse(timeLayout, now)
	return true, nil
}

// DeleteWatch removes a watch. Returns false when it did not exist.
func (s *SQLite) DeleteWatch(ctx context.Context, ownerID, query string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM watches WHERE owner_id = ? AND query = ?`, ownerID, query,
	)
	if err != nil {
		return false, fmt.Errorf("delete watch: %w", err)
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}

// ListWatches returns all watches belonging to the given owner.
func (s *SQLite) ListWatches(ctx context.Context, ownerID string) ([]Watch, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, owner_id, query, max_price, created_at FROM watches
		 WHERE owner_id = ? ORDER BY id`, ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("query watches: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanWatches(rows)
}

// ListActiveWatches returns every watch across all owners.
func (s *SQLite) ListActiveWatches(ctx context.Context) ([]Watch, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, owner_id, query, max_price, created_at FROM watches ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("query watches: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanWatches(rows)
}

// DistinctQueries returns the deduplicated set of watch queries, so one
// search fetch can serve every subscriber of the same query.
func (s *SQLite) DistinctQueries(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT query FROM watches ORDER BY query`,
	)
	if err != nil {
		return nil, fmt.Errorf("query distinct queries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var queries []string
	for rows.Next() {
		var q string
		if err := rows.Scan(&q); err != nil {
			return nil, fmt.Errorf("scan query: %w", err)
		}
		queries = append(queries, q)
	}
	return queries, rows.Err()
}

// WatchesByQuery returns all watches subscribed to the given query.
func (s *SQLite) WatchesByQuery(ctx context.Context, query string) ([]Watch, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, owner_id, query, max_price, created_at FROM watches
		 WHERE query = ? ORDER BY id`, query,
	)
	if err != nil {
		return nil, fmt.Errorf("query watches by query: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanWatches(rows)
}

// CreateCategoryFeed inserts a new feed. Returns false when (server, slug) already exists.
func (s *SQLite) CreateCategoryFeed(ctx context.Context, f *CategoryFeed) (bool, error) {
	now := time.Now().UTC().Format(timeLayout)
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO category_feeds
		 (server_id, channel_id, slug, schedule, anchor_hour, anchor_weekday,
		  min_temperature, max_price, keyword, paused, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ServerID, f.ChannelID, f.Slug, string(f.Schedule), f.AnchorHour, int(f.AnchorWeekday),
		f.MinTemperature, f.MaxPrice, f.Keyword, boolToInt(f.Paused), now,
	)
	if err != nil {
		return false, fmt.Errorf("insert category feed: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return false, nil
	}
	id, err := res.LastInsertId()
	if err != nil {
		return false, fmt.Errorf("last insert id: %w", err)
	}
	f.ID = id
	f.CreatedAt, _ = time.Parse(timeLayout, now)
	return true, nil
}

// DeleteCategoryFeed removes a feed. Returns false when it did not exist.
func (s *SQLite) DeleteCategoryFeed(ctx context.Context, serverID, slug string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM category_feeds WHERE server_id = ? AND slug = ?`, serverID, slug,
	)
	if err != nil {
		return false, fmt.Errorf("delete category feed: %w", err)
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}

// SetCategoryFeedPaused toggles a feed's pause state.
func (s *SQLite) SetCategoryFeedPaused(ctx context.Context, serverID, slug string, paused bool) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE category_feeds SET paused = ? WHERE server_id = ? AND slug = ?`,
		boolToInt(paused), serverID, slug,
	)
	if err != nil {
		return fmt.Errorf("set paused: %w", err)
	}
	return nil
}

// ListCategoryFeeds returns all feeds configured for a server.
func (s *SQLite) ListCategoryFeeds(ctx context.Context, serverID string) ([]CategoryFeed, error) {
	rows, err := s.db.QueryContext(ctx,
		feedSelect+` WHERE server_id = ? ORDER BY id`, serverID,
	)
	if err != nil {
		return nil, fmt.Errorf("query category feeds: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanFeeds(rows)
}

// CountCategoryFeeds returns the number of feeds configured for a server.
func (s *SQLite) CountCategoryFeeds(ctx context.Context, serverID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM category_feeds WHERE server_id = ?`, serverID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count category feeds: %w", err)
	}
	return count, nil
}

// ListDueCategoryFeeds returns unpaused feeds whose schedule indicates they
// should run at or before now.
func (s *SQLite) ListDueCategoryFeeds(ctx context.Context, now time.Time) ([]CategoryFeed, error) {
	rows, err := s.db.QueryContext(ctx,
		feedSelect+` WHERE paused = 0 ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("query due feeds: %w", err)
	}
	defer func() { _ = rows.Close() }()

	feeds, err := scanFeeds(rows)
	if err != nil {
		return nil, err
	}

	var due []CategoryFeed
	for _, f := range feeds {
		if f.DueAt(now) {
			due = append(due, f)
		}
	}
	return due, nil
}

// SetCategoryFeedLastRun advances a feed's last run marker.
func (s *SQLite) SetCategoryFeedLastRun(ctx context.Context, feedID int64, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE category_feeds SET last_run_at = ? WHERE id = ?`,
		at.UTC().Format(timeLayout), feedID,
	)
	if err != nil {
		return fmt.Errorf("set last run: %w", err)
	}
	return nil
}

// AddCategoryFeedStats accumulates per-feed run counters.
func (s *SQLite) AddCategoryFeedStats(ctx context.Context, feedID int64, checked, sent, errored int) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE category_feeds
		 SET checked_count = checked_count + ?,
		     sent_count = sent_count + ?,
		     error_count = error_count + ?
		 WHERE id = ?`,
		checked, sent, errored, feedID,
	)
	if err != nil {
		return fmt.Errorf("add feed stats: %w", err)
	}
	return nil
}

// HasBeenDelivered checks whether a deal was already delivered to a destination.
func (s *SQLite) HasBeenDelivered(ctx context.Context, destinationID, dealID string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM delivery_records WHERE destination_id = ? AND deal_id = ?`,
		destinationID, dealID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check delivered: %w", err)
	}
	return count > 0, nil
}

// MarkDelivered records a delivery. The returned bool reports whether this
// call won the insert; false means another runner already delivered the deal,
// which callers treat as success.
func (s *SQLite) MarkDelivered(ctx context.Context, destinationID, dealID string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO delivery_records (destination_id, deal_id, delivered_at)
		 VALUES (?, ?, ?)`,
		destinationID, dealID, at.UTC().Format(timeLayout),
	)
	if err != nil {
		return false, fmt.Errorf("mark delivered: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// HasAlerted checks whether a user was already alerted about a deal.
func (s *SQLite) HasAlerted(ctx context.Context, ownerID, dealID string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM alert_history WHERE owner_id = ? AND deal_id = ?`,
		ownerID, dealID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check alerted: %w", err)
	}
	return count > 0, nil
}

// MarkAlerted records a personal alert, keyed per user rather than per watch
// so overlapping watches cannot alert the same user twice.
func (s *SQLite) MarkAlerted(ctx context.Context, ownerID, dealID string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO alert_history (owner_id, deal_id, delivered_at)
		 VALUES (?, ?, ?)`,
		ownerID, dealID, at.UTC().Format(timeLayout),
	)
	if err != nil {
		return false, fmt.Errorf("mark alerted: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// CleanupDeliveries removes delivery and alert rows older than the cutoff.
func (s *SQLite) CleanupDeliveries(ctx context.Context, olderThan time.Time) (int64, error) {
	cutoff := olderThan.UTC().Format(timeLayout)

	var total int64
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM delivery_records WHERE delivered_at < ?`, cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("cleanup deliveries: %w", err)
	}
	n, _ := res.RowsAffected()
	total += n

	res, err = s.db.ExecContext(ctx,
		`DELETE FROM alert_history WHERE delivered_at < ?`, cutoff,
	)
	if err != nil {
		return total, fmt.Errorf("cleanup alert history: %w", err)
	}
	n, _ = res.RowsAffected()
	total += n

	return total, nil
}

const feedSelect = `SELECT id, server_id, channel_id, slug, schedule, anchor_hour, anchor_weekday,
	min_temperature, max_price, keyword, paused, last_run_at,
	checked_count, sent_count, error_count, created_at
	FROM category_feeds`

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func scanWatches(rows *sql.Rows) ([]Watch, error) {
	var watches []Watch
	for rows.Next() {
		var w Watch
		var maxPrice sql.NullFloat64
		var created string
		if err := rows.Scan(&w.ID, &w.OwnerID, &w.Query, &maxPrice, &created); err != nil {
			return nil, fmt.Errorf("scan watch: %w", err)
		}
		if maxPrice.Valid {
			v := maxPrice.Float64
			w.MaxPrice = &v
		}
		w.CreatedAt, _ = time.Parse(timeLayout, created)
		watches = append(watches, w)
	}
	return watches, rows.Err()
}

func scanFeeds(rows *sql.Rows) ([]CategoryFeed, error) {
	var feeds []CategoryFeed
	for rows.Next() {
		var f CategoryFeed
		var scheduleStr string
		var anchorWeekday, paused int
		var minTemp, maxPrice sql.NullFloat64
		var keyword, lastRun, created sql.NullString
		err := rows.Scan(&f.ID, &f.ServerID, &f.ChannelID, &f.Slug, &scheduleStr,
			&f.AnchorHour, &anchorWeekday, &minTemp, &maxPrice, &keyword, &paused,
			&lastRun, &f.CheckedCount, &f.SentCount, &f.ErrorCount, &created)
		if err != nil {
			return nil, fmt.Errorf("scan feed: %w", err)
		}
		f.Schedule = Schedule(scheduleStr)
		f.AnchorWeekday = time.Weekday(anchorWeekday)
		f.Paused = paused == 1
		if minTemp.Valid {
			v := minTemp.Float64
			f.MinTemperature = &v
		}
		if maxPrice.Valid {
			v := maxPrice.Float64
			f.MaxPrice = &v
		}
		if keyword.Valid {
			f.Keyword = keyword.String
		}
		if lastRun.Valid {
			t, _ := time.Parse(timeLayout, lastRun.String)
			f.LastRunAt = &t
		}
		if created.Valid {
			f.CreatedAt, _ = time.Parse(timeLayout, created.String)
		}
		feeds = append(feeds, f)
	}
	return feeds, rows.Err()
}
