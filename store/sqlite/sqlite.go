/*
Package sqlite provides a SQLite-backed implementation of habit.TxStore.

KEY TABLES:
  habits:             Habit definitions, owner scoped
  habit_completions:  The completion ledger
  streaks:            Derived streak, one row per habit

INDEXES:
  - idx_unique_habit_completion_per_day: Enforces one completion per
    (habit_id, completion_date). Violations surface as habit.ErrDuplicateDate.
  - idx_habits_owner: Owner-scoped listing

DATES:
  Calendar dates are stored as TEXT "YYYY-MM-DD", so lexical order is date
  order. Timestamps are stored as RFC3339 TEXT in UTC.

TRANSACTIONS:
  WithTx hands fn a store bound to one *sql.Tx. Every query inside fn goes
  through that tx; nothing inside it touches the pool. Transactions are
  opened with BEGIN IMMEDIATE (_txlock=immediate) so two writers never
  deadlock upgrading a read lock.

IN-MEMORY DATABASES:
  ":memory:" is private to a connection, so the pool is capped at one
  connection for it. Concurrent callers queue for the connection.

MIGRATIONS:
  Schema lives in migrations/*.sql (goose format) and is applied on New().

USAGE:
  store, err := sqlite.New("./data/streaks.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/warp/streak-engine/habit"
)

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements habit.TxStore using SQLite.
type Store struct {
	queries
	db *sql.DB
}

// queries holds every statement; Store runs them on the pool, WithTx on a tx.
type queries struct {
	q querier
}

// New opens (or creates) the database at dbPath and migrates it.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if isMemory(dbPath) {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := Migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Store{queries: queries{q: db}, db: db}, nil
}

func dsn(dbPath string) string {
	if isMemory(dbPath) {
		return ":memory:?_foreign_keys=on&_txlock=immediate"
	}
	return "file:" + dbPath + "?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate"
}

func isMemory(dbPath string) bool {
	return dbPath == ":memory:" || dbPath == ""
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the pool for migrations and diagnostics.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// =============================================================================
// TRANSACTIONAL STORE (habit.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(habit.Store) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&queries{q: sqlTx}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// =============================================================================
// HABITS
// =============================================================================

const habitCols = `id, owner_id, name, description, category, goal_type, target_value, created_at`

func (s *queries) InsertHabit(ctx context.Context, h habit.Habit) (habit.Habit, error) {
	res, err := s.q.ExecContext(ctx, `
		INSERT INTO habits (owner_id, name, description, category, goal_type, target_value, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		h.OwnerID, h.Name, h.Description, h.Category, string(h.GoalType), h.TargetValue,
		formatTime(h.CreatedAt),
	)
	if err != nil {
		return habit.Habit{}, fmt.Errorf("failed to insert habit: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return habit.Habit{}, fmt.Errorf("last insert id: %w", err)
	}
	h.ID = habit.HabitID(id)
	return h, nil
}

func (s *queries) GetHabit(ctx context.Context, owner habit.OwnerID, id habit.HabitID) (*habit.Habit, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+habitCols+` FROM habits WHERE id = ? AND owner_id = ?`, id, owner)
	h, err := scanHabit(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &h, nil
}

func (s *queries) ListHabits(ctx context.Context, owner habit.OwnerID, page habit.Page) ([]habit.Habit, error) {
	page = page.Normalize()
	return s.queryHabits(ctx,
		`SELECT `+habitCols+` FROM habits WHERE owner_id = ? ORDER BY id ASC LIMIT ? OFFSET ?`,
		owner, page.Limit, page.Offset)
}

func (s *queries) ListAllHabits(ctx context.Context) ([]habit.Habit, error) {
	return s.queryHabits(ctx, `SELECT `+habitCols+` FROM habits ORDER BY id ASC`)
}

func (s *queries) ListStaleHabits(ctx context.Context, before habit.Date) ([]habit.Habit, error) {
	return s.queryHabits(ctx, `
		SELECT h.id, h.owner_id, h.name, h.description, h.category, h.goal_type, h.target_value, h.created_at
		FROM habits h
		LEFT JOIN streaks s ON s.habit_id = h.id
		WHERE s.id IS NULL OR substr(s.updated_at, 1, 10) < ?
		ORDER BY h.id ASC`,
		before.String())
}

func (s *queries) UpdateHabit(ctx context.Context, h habit.Habit) error {
	_, err := s.q.ExecContext(ctx, `
		UPDATE habits
		SET name = ?, description = ?, category = ?, goal_type = ?, target_value = ?
		WHERE id = ? AND owner_id = ?`,
		h.Name, h.Description, h.Category, string(h.GoalType), h.TargetValue, h.ID, h.OwnerID,
	)
	if err != nil {
		return fmt.Errorf("failed to update habit: %w", err)
	}
	return nil
}

func (s *queries) DeleteHabit(ctx context.Context, owner habit.OwnerID, id habit.HabitID) error {
	stmts := []string{
		`DELETE FROM habit_completions WHERE habit_id IN (SELECT id FROM habits WHERE id = ? AND owner_id = ?)`,
		`DELETE FROM streaks WHERE habit_id IN (SELECT id FROM habits WHERE id = ? AND owner_id = ?)`,
		`DELETE FROM habits WHERE id = ? AND owner_id = ?`,
	}
	for _, stmt := range stmts {
		if _, err := s.q.ExecContext(ctx, stmt, id, owner); err != nil {
			return fmt.Errorf("failed to delete habit: %w", err)
		}
	}
	return nil
}

func (s *queries) queryHabits(ctx context.Context, query string, args ...any) ([]habit.Habit, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query habits: %w", err)
	}
	defer rows.Close()

	habits := []habit.Habit{}
	for rows.Next() {
		h, err := scanHabit(rows)
		if err != nil {
			return nil, err
		}
		habits = append(habits, h)
	}
	return habits, rows.Err()
}

func scanHabit(scanner interface{ Scan(...any) error }) (habit.Habit, error) {
	var (
		h         habit.Habit
		goalType  string
		createdAt string
	)
	err := scanner.Scan(&h.ID, &h.OwnerID, &h.Name, &h.Description, &h.Category,
		&goalType, &h.TargetValue, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return h, err
		}
		return h, fmt.Errorf("failed to scan habit: %w", err)
	}
	h.GoalType = habit.GoalType(goalType)
	h.CreatedAt = parseTime(createdAt)
	return h, nil
}

// =============================================================================
// COMPLETIONS
// =============================================================================

const completionCols = `id, habit_id, completion_date, value, notes, created_at`

func (s *queries) InsertCompletion(ctx context.Context, c habit.Completion) (habit.Completion, error) {
	res, err := s.q.ExecContext(ctx, `
		INSERT INTO habit_completions (habit_id, completion_date, value, notes, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		c.HabitID, c.Date.String(), c.Value, c.Notes, formatTime(c.CreatedAt),
	)
	if err != nil {
		if isDuplicateDateError(err) {
			return habit.Completion{}, habit.ErrDuplicateDate
		}
		return habit.Completion{}, fmt.Errorf("failed to insert completion: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return habit.Completion{}, fmt.Errorf("last insert id: %w", err)
	}
	c.ID = habit.CompletionID(id)
	return c, nil
}

func (s *queries) GetCompletion(ctx context.Context, id habit.CompletionID) (*habit.Completion, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+completionCols+` FROM habit_completions WHERE id = ?`, id)
	return optionalCompletion(scanCompletion(row))
}

func (s *queries) FindCompletionByDate(ctx context.Context, habitID habit.HabitID, date habit.Date) (*habit.Completion, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+completionCols+` FROM habit_completions WHERE habit_id = ? AND completion_date = ?`,
		habitID, date.String())
	return optionalCompletion(scanCompletion(row))
}

func (s *queries) UpdateCompletion(ctx context.Context, c habit.Completion) error {
	_, err := s.q.ExecContext(ctx, `
		UPDATE habit_completions SET completion_date = ?, value = ?, notes = ? WHERE id = ?`,
		c.Date.String(), c.Value, c.Notes, c.ID,
	)
	if err != nil {
		if isDuplicateDateError(err) {
			return habit.ErrDuplicateDate
		}
		return fmt.Errorf("failed to update completion: %w", err)
	}
	return nil
}

func (s *queries) DeleteCompletion(ctx context.Context, id habit.CompletionID) error {
	if _, err := s.q.ExecContext(ctx, `DELETE FROM habit_completions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete completion: %w", err)
	}
	return nil
}

func (s *queries) ListCompletions(ctx context.Context, habitID habit.HabitID, page habit.Page) ([]habit.Completion, error) {
	page = page.Normalize()
	rows, err := s.q.QueryContext(ctx, `
		SELECT `+completionCols+` FROM habit_completions
		WHERE habit_id = ?
		ORDER BY completion_date DESC
		LIMIT ? OFFSET ?`,
		habitID, page.Limit, page.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query completions: %w", err)
	}
	defer rows.Close()

	completions := []habit.Completion{}
	for rows.Next() {
		c, err := scanCompletion(rows)
		if err != nil {
			return nil, err
		}
		completions = append(completions, c)
	}
	return completions, rows.Err()
}

func (s *queries) CompletionDates(ctx context.Context, habitID habit.HabitID) ([]habit.Date, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT completion_date FROM habit_completions
		WHERE habit_id = ?
		ORDER BY completion_date DESC`, habitID)
	if err != nil {
		return nil, fmt.Errorf("failed to query completion dates: %w", err)
	}
	defer rows.Close()

	var dates []habit.Date
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan completion date: %w", err)
		}
		d, err := habit.ParseDate(raw)
		if err != nil {
			return nil, err
		}
		dates = append(dates, d)
	}
	return dates, rows.Err()
}

func (s *queries) CompletionTotals(ctx context.Context, habitID habit.HabitID) (int, int64, error) {
	var count int
	var sum int64
	err := s.q.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(value), 0) FROM habit_completions WHERE habit_id = ?`,
		habitID,
	).Scan(&count, &sum)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to total completions: %w", err)
	}
	return count, sum, nil
}

func scanCompletion(scanner interface{ Scan(...any) error }) (habit.Completion, error) {
	var (
		c         habit.Completion
		date      string
		createdAt string
	)
	err := scanner.Scan(&c.ID, &c.HabitID, &date, &c.Value, &c.Notes, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return c, err
		}
		return c, fmt.Errorf("failed to scan completion: %w", err)
	}
	if c.Date, err = habit.ParseDate(date); err != nil {
		return c, err
	}
	c.CreatedAt = parseTime(createdAt)
	return c, nil
}

func optionalCompletion(c habit.Completion, err error) (*habit.Completion, error) {
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// =============================================================================
// STREAKS
// =============================================================================

func (s *queries) GetStreak(ctx context.Context, habitID habit.HabitID) (*habit.Streak, error) {
	var (
		st        habit.Streak
		last      sql.NullString
		updatedAt string
	)
	err := s.q.QueryRowContext(ctx, `
		SELECT id, habit_id, current_streak, longest_streak, last_completion, updated_at
		FROM streaks WHERE habit_id = ?`, habitID,
	).Scan(&st.ID, &st.HabitID, &st.CurrentStreak, &st.LongestStreak, &last, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get streak: %w", err)
	}

	if last.Valid {
		d, err := habit.ParseDate(last.String)
		if err != nil {
			return nil, err
		}
		st.LastCompletion = &d
	}
	st.UpdatedAt = parseTime(updatedAt)
	return &st, nil
}

func (s *queries) SaveStreak(ctx context.Context, st habit.Streak) (habit.Streak, error) {
	var last sql.NullString
	if st.LastCompletion != nil {
		last = sql.NullString{String: st.LastCompletion.String(), Valid: true}
	}

	err := s.q.QueryRowContext(ctx, `
		INSERT INTO streaks (habit_id, current_streak, longest_streak, last_completion, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(habit_id) DO UPDATE SET
			current_streak = excluded.current_streak,
			longest_streak = excluded.longest_streak,
			last_completion = excluded.last_completion,
			updated_at = excluded.updated_at
		RETURNING id`,
		st.HabitID, st.CurrentStreak, st.LongestStreak, last, formatTime(st.UpdatedAt),
	).Scan(&st.ID)
	if err != nil {
		return habit.Streak{}, fmt.Errorf("failed to save streak: %w", err)
	}
	return st, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func isDuplicateDateError(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) || sqliteErr.ExtendedCode != sqlite3.ErrConstraintUnique {
		return false
	}
	return strings.Contains(sqliteErr.Error(), "habit_completions.completion_date")
}
