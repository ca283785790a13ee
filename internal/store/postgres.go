package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/lib/pq"

	"github.com/grishkovelli/proxytools/internal/model"
)

// Postgres is the production Store, backed by database/sql + lib/pq with
// queries built through Masterminds/squirrel the way the original's
// peewee layer composed its queries dynamically per call.
type Postgres struct {
	db *sql.DB
	qb sq.StatementBuilderType
}

// DSN builds a postgres connection string from the five overridable
// database options.
func DSN(host string, port int, user, password, name string) string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, name)
}

// Open connects to Postgres and applies the pool sizing spec section 6
// exposes as "max connections".
func Open(dsn string, maxConns int) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns)
	db.SetConnMaxLifetime(30 * time.Minute)
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	return &Postgres{
		db: db,
		qb: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}, nil
}

func (p *Postgres) Close() error { return p.db.Close() }

func protocolInts(protocols []model.Protocol) []int {
	out := make([]int, len(protocols))
	for i, p := range protocols {
		out[i] = int(p)
	}
	return out
}

func (p *Postgres) NeedScan(ctx context.Context, limit int, maxAge time.Duration, protocols []model.Protocol) ([]model.Proxy, error) {
	q := p.qb.Select(proxyColumns...).From("proxies").
		Where(sq.NotEq{"status": int(model.TESTING)}).
		Where(sq.Lt{"modified": time.Now().Add(-maxAge)}).
		OrderBy("status ASC", "modified ASC").
		Limit(uint64(limit))
	if len(protocols) > 0 {
		q = q.Where(sq.Eq{"protocol": protocolInts(protocols)})
	}
	return p.queryProxies(ctx, q)
}

func (p *Postgres) GetForScan(ctx context.Context, maxAge time.Duration, protocols []model.Protocol) (*model.Proxy, error) {
	q := p.qb.Select(proxyColumns...).From("proxies").
		Where(sq.NotEq{"status": int(model.TESTING)}).
		Where(sq.Lt{"modified": time.Now().Add(-maxAge)}).
		OrderBy("random()").
		Limit(1)
	if len(protocols) > 0 {
		q = q.Where(sq.Eq{"protocol": protocolInts(protocols)})
	}
	proxies, err := p.queryProxies(ctx, q)
	if err != nil || len(proxies) == 0 {
		return nil, err
	}
	return &proxies[0], nil
}

func (p *Postgres) LockForTesting(ctx context.Context, id int64, fromStatus model.Status) (bool, error) {
	res, err := p.qb.Update("proxies").
		Set("status", int(model.TESTING)).
		Set("modified", time.Now()).
		Where(sq.Eq{"id": id, "status": int(fromStatus)}).
		RunWith(p.db).ExecContext(ctx)
	if err != nil {
		return false, fmt.Errorf("store: lock_for_testing: %w", err)
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (p *Postgres) BulkLock(ctx context.Context, ids []int64) ([]int64, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := p.qb.Update("proxies").
		Set("status", int(model.TESTING)).
		Set("modified", time.Now()).
		Where(sq.Eq{"id": ids}).Where(sq.NotEq{"status": int(model.TESTING)}).
		Suffix("RETURNING id").
		RunWith(p.db).QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: bulk_lock: %w", err)
	}
	defer rows.Close()
	var locked []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		locked = append(locked, id)
	}
	return locked, rows.Err()
}

func (p *Postgres) BulkUnlock(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := p.qb.Update("proxies").
		Set("status", int(model.UNKNOWN)).
		Set("modified", time.Now()).
		Where(sq.Eq{"id": ids, "status": int(model.TESTING)}).
		RunWith(p.db).ExecContext(ctx)
	return err
}

func (p *Postgres) UnlockStuck(ctx context.Context, maxAge time.Duration) (int64, error) {
	res, err := p.qb.Update("proxies").
		Set("status", int(model.ERROR)).
		Set("modified", time.Now()).
		Where(sq.Eq{"status": int(model.TESTING)}).
		Where(sq.Lt{"modified": time.Now().Add(-maxAge)}).
		RunWith(p.db).ExecContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("store: unlock_stuck: %w", err)
	}
	return res.RowsAffected()
}

func (p *Postgres) GetValid(ctx context.Context, limit int, maxAge time.Duration, protocols []model.Protocol, excludeCountries []string) ([]model.Proxy, error) {
	q := p.qb.Select(proxyColumns...).From("proxies").
		Where(sq.Eq{"status": int(model.OK)}).
		Where(sq.Gt{"modified": time.Now().Add(-maxAge)}).
		OrderBy("created ASC").
		Limit(uint64(limit))
	if len(protocols) > 0 {
		q = q.Where(sq.Eq{"protocol": protocolInts(protocols)})
	}
	if len(excludeCountries) > 0 {
		q = q.Where(sq.NotEq{"country": excludeCountries})
	}
	return p.queryProxies(ctx, q)
}

// DeleteFailed issues a genuine DELETE (see SPEC_FULL.md section 13 item
// 2: the original's delete_old/get_failed ambiguity is resolved in favor
// of the documented intent).
func (p *Postgres) DeleteFailed(ctx context.Context, minAge time.Duration, minTests int, failRate float64, limit int) ([]int64, error) {
	sub, subArgs, err := p.qb.Select("id").From("proxies").
		Where(sq.Lt{"created": time.Now().Add(-minAge)}).
		Where(sq.GtOrEq{"test_count": minTests}).
		Where(fmt.Sprintf("fail_count::float / NULLIF(test_count, 0) >= %f", failRate)).
		Limit(uint64(limit)).ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := p.db.QueryContext(ctx, fmt.Sprintf("DELETE FROM proxies WHERE id IN (%s) RETURNING id", sub), subArgs...)
	if err != nil {
		return nil, fmt.Errorf("store: delete_failed: %w", err)
	}
	defer rows.Close()
	var deleted []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		deleted = append(deleted, id)
	}
	return deleted, rows.Err()
}

// DeleteProxy drops one proxy row, the tester worker's per-claim fast
// path (spec 4.5 step 3) for a proxy that already meets the cleanup
// predicate.
func (p *Postgres) DeleteProxy(ctx context.Context, id int64) error {
	_, err := p.qb.Delete("proxies").Where(sq.Eq{"id": id}).RunWith(p.db).ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("store: delete_proxy: %w", err)
	}
	return nil
}

func (p *Postgres) InsertBulk(ctx context.Context, proxies []model.Proxy) error {
	if len(proxies) == 0 {
		return nil
	}
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	q := p.qb.Insert("proxies").
		Columns("ip", "port", "protocol", "username", "password", "status", "created", "modified")
	now := time.Now()
	for _, pr := range proxies {
		q = q.Values(pr.IP, pr.Port, int(pr.Protocol), pr.Username, pr.Password, int(model.UNKNOWN), now, now)
	}
	// Conflict on (ip, port) is a no-op: a re-scraped proxy already in the
	// table keeps its existing credentials/protocol/modified (spec 4.1).
	q = q.Suffix(`ON CONFLICT (ip, port) DO UPDATE SET id = proxies.id`)
	if _, err := q.RunWith(tx).ExecContext(ctx); err != nil {
		return fmt.Errorf("store: insert_bulk: %w", err)
	}
	return tx.Commit()
}

func (p *Postgres) UpdateProxies(ctx context.Context, proxies []model.Proxy) error {
	if len(proxies) == 0 {
		return nil
	}
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, pr := range proxies {
		_, err := p.qb.Update("proxies").
			Set("status", int(pr.Status)).
			Set("latency", pr.Latency).
			Set("test_count", pr.TestCount).
			Set("fail_count", pr.FailCount).
			Set("country", nullable(pr.Country)).
			Set("modified", pr.Modified).
			Where(sq.Eq{"id": pr.ID}).
			RunWith(tx).ExecContext(ctx)
		if err != nil {
			return fmt.Errorf("store: update_proxy %d: %w", pr.ID, err)
		}
	}
	return tx.Commit()
}

func (p *Postgres) InsertProxyTests(ctx context.Context, tests []model.ProxyTest) error {
	if len(tests) == 0 {
		return nil
	}
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	q := p.qb.Insert("proxy_tests").Columns("proxy_id", "status", "latency", "info", "created")
	for _, t := range tests {
		q = q.Values(t.ProxyID, int(t.Status), t.Latency, t.Info, t.Created)
	}
	if _, err := q.RunWith(tx).ExecContext(ctx); err != nil {
		return fmt.Errorf("store: insert_proxytests: %w", err)
	}
	return tx.Commit()
}

func (p *Postgres) Proxy(ctx context.Context, id int64) (*model.Proxy, error) {
	q := p.qb.Select(proxyColumns...).From("proxies").Where(sq.Eq{"id": id})
	proxies, err := p.queryProxies(ctx, q)
	if err != nil || len(proxies) == 0 {
		return nil, err
	}
	return &proxies[0], nil
}

func (p *Postgres) CountByStatus(ctx context.Context) (map[model.Status]int, error) {
	rows, err := p.qb.Select("status", "count(*)").From("proxies").GroupBy("status").RunWith(p.db).QueryContext(ctx)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[model.Status]int{}
	for rows.Next() {
		var status, count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		out[model.Status(status)] = count
	}
	return out, rows.Err()
}

func (p *Postgres) LockDatabase(ctx context.Context, token string) (bool, error) {
	now := time.Now()
	res, err := p.db.ExecContext(ctx, `
		INSERT INTO db_config (key, value, modified) VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET value = $2, modified = $3
		WHERE db_config.value IS NULL OR db_config.value = ''
		   OR db_config.modified < $4`,
		model.LockKey, token, now, now.Add(-model.LockLease))
	if err != nil {
		return false, fmt.Errorf("store: lock_database: %w", err)
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (p *Postgres) UnlockDatabase(ctx context.Context, token string) error {
	_, err := p.db.ExecContext(ctx, `
		UPDATE db_config SET value = '', modified = $2 WHERE key = $1 AND value = $3`,
		model.LockKey, time.Now(), token)
	return err
}

var proxyColumns = []string{
	"id", "ip", "port", "protocol", "username", "password",
	"status", "latency", "test_count", "fail_count", "country", "created", "modified",
}

func (p *Postgres) queryProxies(ctx context.Context, q sq.SelectBuilder) ([]model.Proxy, error) {
	rows, err := q.RunWith(p.db).QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: query: %w", err)
	}
	defer rows.Close()

	var out []model.Proxy
	for rows.Next() {
		var pr model.Proxy
		var protocol, status int
		var country sql.NullString
		if err := rows.Scan(&pr.ID, &pr.IP, &pr.Port, &protocol, &pr.Username, &pr.Password,
			&status, &pr.Latency, &pr.TestCount, &pr.FailCount, &country, &pr.Created, &pr.Modified); err != nil {
			return nil, err
		}
		pr.Protocol = model.Protocol(protocol)
		pr.Status = model.Status(status)
		pr.Country = country.String
		out = append(out, pr)
	}
	return out, rows.Err()
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
