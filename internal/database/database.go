package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"donor-impact-api/internal/models"
)

// ErrNotFound is returned when a looked-up row does not exist.
var ErrNotFound = errors.New("not found")

// DB wraps the database connection and provides methods for data access.
type DB struct {
	conn *sql.DB
}

// NewDB creates a new database connection and initializes the schema.
func NewDB(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=1&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping checks the connection.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// initSchema creates the necessary tables if they don't exist.
func (db *DB) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS donations (
			id TEXT PRIMARY KEY,
			donor_id TEXT NOT NULL,
			donation_type TEXT NOT NULL,
			amount REAL,
			orphanage_id TEXT NOT NULL DEFAULT '',
			occurred_at TEXT,
			created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS fundraisers (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			orphanage_id TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS fundraiser_donations (
			id TEXT PRIMARY KEY,
			fundraiser_id TEXT NOT NULL REFERENCES fundraisers(id),
			donor_id TEXT NOT NULL,
			type TEXT NOT NULL DEFAULT '',
			amount REAL,
			occurred_at TEXT,
			created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS donor_goals (
			donor_id TEXT NOT NULL,
			period TEXT NOT NULL,
			target_amount REAL NOT NULL,
			kind TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (donor_id, period)
		)`,
		`CREATE TABLE IF NOT EXISTS donor_achievements (
			donor_id TEXT NOT NULL,
			achievement_id TEXT NOT NULL,
			name TEXT NOT NULL,
			description TEXT NOT NULL,
			icon TEXT NOT NULL,
			unlocked_at TEXT NOT NULL,
			PRIMARY KEY (donor_id, achievement_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_donations_donor ON donations(donor_id, occurred_at)`,
		`CREATE INDEX IF NOT EXISTS idx_fundraiser_donations_donor ON fundraiser_donations(donor_id, occurred_at)`,
	}

	for _, query := range queries {
		if _, err := db.conn.Exec(query); err != nil {
			return fmt.Errorf("failed to execute schema query: %w", err)
		}
	}

	return nil
}

// InsertDonation appends a direct donation to the log. Re-sending a record
// with a known id is a no-op and reports inserted=false.
func (db *DB) InsertDonation(ctx context.Context, d models.DirectDonation) (bool, error) {
	res, err := db.conn.ExecContext(ctx, `INSERT INTO donations (
		id, donor_id, donation_type, amount, orphanage_id, occurred_at
	) VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO NOTHING`,
		d.ID, d.DonorID, d.DonationType, nullAmount(d.Amount), d.OrphanageID, nullTime(d.Timestamp),
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert donation %s: %w", d.ID, err)
	}
	return affected(res)
}

// UpsertFundraiser creates or updates a fundraiser.
func (db *DB) UpsertFundraiser(ctx context.Context, f models.Fundraiser) error {
	_, err := db.conn.ExecContext(ctx, `INSERT INTO fundraisers (id, title, orphanage_id, created_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		title = excluded.title,
		orphanage_id = excluded.orphanage_id`,
		f.ID, f.Title, f.OrphanageID, f.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert fundraiser: %w", err)
	}
	return nil
}

// GetFundraiser loads one fundraiser.
func (db *DB) GetFundraiser(ctx context.Context, id string) (models.Fundraiser, error) {
	var (
		f         models.Fundraiser
		createdAt string
	)
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, title, orphanage_id, created_at FROM fundraisers WHERE id = ?`, id,
	).Scan(&f.ID, &f.Title, &f.OrphanageID, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Fundraiser{}, ErrNotFound
	}
	if err != nil {
		return models.Fundraiser{}, fmt.Errorf("failed to load fundraiser: %w", err)
	}
	f.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return models.Fundraiser{}, fmt.Errorf("failed to parse created_at: %w", err)
	}
	return f, nil
}

// InsertFundraiserDonation appends a sub-donation to its fundraiser.
func (db *DB) InsertFundraiserDonation(ctx context.Context, d models.FundraiserDonation) (bool, error) {
	res, err := db.conn.ExecContext(ctx, `INSERT INTO fundraiser_donations (
		id, fundraiser_id, donor_id, type, amount, occurred_at
	) VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO NOTHING`,
		d.ID, d.FundraiserID, d.DonorID, d.Type, nullAmount(d.Amount), nullTime(d.Timestamp),
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert fundraiser donation %s: %w", d.ID, err)
	}
	return affected(res)
}

// ListDonations returns every direct donation of a donor. Rows whose stored
// timestamp cannot be parsed are returned without one.
func (db *DB) ListDonations(ctx context.Context, donorID string) ([]models.DirectDonation, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT id, donor_id, donation_type, amount, orphanage_id, occurred_at
		FROM donations WHERE donor_id = ? ORDER BY occurred_at`, donorID)
	if err != nil {
		return nil, fmt.Errorf("failed to query donations: %w", err)
	}
	defer rows.Close()

	var out []models.DirectDonation
	for rows.Next() {
		var (
			d          models.DirectDonation
			amount     sql.NullFloat64
			occurredAt sql.NullString
		)
		if err := rows.Scan(&d.ID, &d.DonorID, &d.DonationType, &amount, &d.OrphanageID, &occurredAt); err != nil {
			return nil, fmt.Errorf("failed to scan donation: %w", err)
		}
		d.Amount = amountPtr(amount)
		d.Timestamp = timePtr(occurredAt)
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating donations: %w", err)
	}
	return out, nil
}

// ListFundraiserDonations returns every fundraiser sub-donation of a donor
// together with the parent fundraiser's title.
func (db *DB) ListFundraiserDonations(ctx context.Context, donorID string) ([]models.FundraiserDonation, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT d.id, d.donor_id, d.fundraiser_id, f.title, d.type, d.amount, d.occurred_at
		FROM fundraiser_donations d
		JOIN fundraisers f ON f.id = d.fundraiser_id
		WHERE d.donor_id = ?
		ORDER BY d.occurred_at`, donorID)
	if err != nil {
		return nil, fmt.Errorf("failed to query fundraiser donations: %w", err)
	}
	defer rows.Close()

	var out []models.FundraiserDonation
	for rows.Next() {
		var (
			d          models.FundraiserDonation
			amount     sql.NullFloat64
			occurredAt sql.NullString
		)
		if err := rows.Scan(&d.ID, &d.DonorID, &d.FundraiserID, &d.FundraiserTitle, &d.Type, &amount, &occurredAt); err != nil {
			return nil, fmt.Errorf("failed to scan fundraiser donation: %w", err)
		}
		d.Amount = amountPtr(amount)
		d.Timestamp = timePtr(occurredAt)
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating fundraiser donations: %w", err)
	}
	return out, nil
}

// GetGoals returns the donor's goals, with defaults for periods never set.
func (db *DB) GetGoals(ctx context.Context, donorID string) (models.GoalSet, error) {
	goals := models.DefaultGoalSet()

	rows, err := db.conn.QueryContext(ctx,
		`SELECT period, target_amount, kind FROM donor_goals WHERE donor_id = ?`, donorID)
	if err != nil {
		return nil, fmt.Errorf("failed to query goals: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			period string
			goal   models.Goal
		)
		if err := rows.Scan(&period, &goal.TargetAmount, &goal.Kind); err != nil {
			return nil, fmt.Errorf("failed to scan goal: %w", err)
		}
		if p := models.GoalPeriod(period); p.Valid() {
			goals[p] = goal
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating goals: %w", err)
	}
	return goals, nil
}

// UpsertGoal sets the donor's goal for one period.
func (db *DB) UpsertGoal(ctx context.Context, donorID string, period models.GoalPeriod, goal models.Goal) error {
	_, err := db.conn.ExecContext(ctx, `INSERT INTO donor_goals (donor_id, period, target_amount, kind, updated_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(donor_id, period) DO UPDATE SET
		target_amount = excluded.target_amount,
		kind = excluded.kind,
		updated_at = excluded.updated_at`,
		donorID, string(period), goal.TargetAmount, goal.Kind, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert goal: %w", err)
	}
	return nil
}

// ListAchievements returns the donor's unlocked achievements, oldest first.
func (db *DB) ListAchievements(ctx context.Context, donorID string) ([]models.Achievement, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT achievement_id, name, description, icon, unlocked_at
		FROM donor_achievements WHERE donor_id = ? ORDER BY unlocked_at, achievement_id`, donorID)
	if err != nil {
		return nil, fmt.Errorf("failed to query achievements: %w", err)
	}
	defer rows.Close()

	var out []models.Achievement
	for rows.Next() {
		var (
			a          models.Achievement
			unlockedAt string
		)
		if err := rows.Scan(&a.ID, &a.Name, &a.Description, &a.Icon, &unlockedAt); err != nil {
			return nil, fmt.Errorf("failed to scan achievement: %w", err)
		}
		a.UnlockedAt, err = time.Parse(time.RFC3339Nano, unlockedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to parse unlocked_at: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating achievements: %w", err)
	}
	return out, nil
}

// AppendAchievements stores newly unlocked achievements. Ids the donor
// already has are left untouched, so the call is safe to repeat. It returns
// how many rows were actually added.
func (db *DB) AppendAchievements(ctx context.Context, donorID string, achievements []models.Achievement) (int, error) {
	if len(achievements) == 0 {
		return 0, nil
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO donor_achievements (
		donor_id, achievement_id, name, description, icon, unlocked_at
	) VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(donor_id, achievement_id) DO NOTHING`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	added := 0
	for _, a := range achievements {
		res, err := stmt.ExecContext(ctx,
			donorID, a.ID, a.Name, a.Description, a.Icon, a.UnlockedAt.UTC().Format(time.RFC3339Nano))
		if err != nil {
			return 0, fmt.Errorf("failed to insert achievement %s: %w", a.ID, err)
		}
		if ok, err := affected(res); err != nil {
			return 0, err
		} else if ok {
			added++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return added, nil
}

func affected(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n > 0, nil
}

func nullAmount(a *float64) sql.NullFloat64 {
	if a == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *a, Valid: true}
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil || t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339Nano), Valid: true}
}

func amountPtr(a sql.NullFloat64) *float64 {
	if !a.Valid {
		return nil
	}
	v := a.Float64
	return &v
}

func timePtr(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s.String)
	if err != nil {
		return nil
	}
	return &t
}
