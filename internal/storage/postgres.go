package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dennisdiepolder/monti/callmonitor/internal/types"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // registers "pgx" driver
	"github.com/rs/zerolog"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

const (
	callColumns       = `id, agent_id, customer_id, start_time, end_time, duration_seconds, outcome, overall_sentiment, summary, recording_url, created_at, updated_at`
	turnColumns       = `id, call_id, turn_number, speaker, transcript, confidence, timestamp_offset, created_at`
	metricColumns     = `id, call_id, turn_id, timestamp_offset, anger, frustration, satisfaction, neutral, confidence, created_at`
	suggestionColumns = `id, call_id, priority, rule, text, reasoning, historical_success_rate, similar_case_ids, was_followed, timestamp_offset, created_at`

	// similar_case_ids is jsonb; read it back as text so it scans into a string
	suggestionSelect = `id, call_id, priority, rule, text, reasoning, historical_success_rate, similar_case_ids::text, was_followed, timestamp_offset, created_at`
)

// PostgresStore persists calls and their analysis rows to PostgreSQL
type PostgresStore struct {
	db     *sql.DB
	logger zerolog.Logger
}

// OpenPostgres connects to dsn, applies pending migrations and returns the store
func OpenPostgres(ctx context.Context, dsn string, logger zerolog.Logger) (*PostgresStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres open: %w", err)
	}
	if err = db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	if err = migrate(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres migrate: %w", err)
	}

	logger.Info().Msg("postgres store initialized")
	return &PostgresStore{db: db, logger: logger}, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`)
	if err != nil {
		return err
	}

	var current int
	row := db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), -1) FROM schema_version`)
	if err = row.Scan(&current); err != nil {
		return err
	}

	entries, err := migrationFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	for i := current + 1; i < len(entries); i++ {
		data, readErr := migrationFS.ReadFile("migrations/" + entries[i].Name())
		if readErr != nil {
			return fmt.Errorf("read migration %d: %w", i, readErr)
		}
		if _, execErr := db.ExecContext(ctx, string(data)); execErr != nil {
			return fmt.Errorf("migration %d: %w", i, execErr)
		}
		if _, execErr := db.ExecContext(ctx, `INSERT INTO schema_version (version) VALUES ($1)`, i); execErr != nil {
			return fmt.Errorf("migration %d record: %w", i, execErr)
		}
	}
	return nil
}

// Close closes the database.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

// mapError translates driver errors into the storage sentinels
func mapError(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return ErrConflict
		case "23503": // foreign_key_violation
			return ErrNotFound
		}
	}
	return err
}

func (s *PostgresStore) CreateCall(ctx context.Context, call types.Call) (types.Call, error) {
	call = prepareCall(call)
	row := s.db.QueryRowContext(ctx,
		`INSERT INTO calls (`+callColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 RETURNING `+callColumns,
		call.ID, call.AgentID, call.CustomerID, call.StartTime,
		nullTime(call.EndTime), nullInt(call.DurationSeconds),
		nullString((*string)(call.Outcome)), nullString((*string)(call.OverallSentiment)),
		nullString(call.Summary), nullString(call.RecordingURL),
		call.CreatedAt, call.UpdatedAt,
	)
	created, err := scanCall(row)
	if err != nil {
		return types.Call{}, fmt.Errorf("create call: %w", mapError(err))
	}
	return created, nil
}

func (s *PostgresStore) GetCall(ctx context.Context, id string) (types.Call, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+callColumns+` FROM calls WHERE id = $1`, id)
	call, err := scanCall(row)
	if err != nil {
		return types.Call{}, fmt.Errorf("get call: %w", mapError(err))
	}
	return call, nil
}

func (s *PostgresStore) UpdateCall(ctx context.Context, id string, u types.CallUpdate) (types.Call, error) {
	row := s.db.QueryRowContext(ctx,
		`UPDATE calls SET
			end_time = COALESCE($2, end_time),
			duration_seconds = COALESCE($3, duration_seconds),
			outcome = COALESCE($4, outcome),
			overall_sentiment = COALESCE($5, overall_sentiment),
			summary = COALESCE($6, summary),
			recording_url = COALESCE($7, recording_url),
			updated_at = $8
		 WHERE id = $1
		 RETURNING `+callColumns,
		id, nullTime(u.EndTime), nullInt(u.DurationSeconds),
		nullString((*string)(u.Outcome)), nullString((*string)(u.OverallSentiment)),
		nullString(u.Summary), nullString(u.RecordingURL), now(),
	)
	call, err := scanCall(row)
	if err != nil {
		return types.Call{}, fmt.Errorf("update call: %w", mapError(err))
	}
	return call, nil
}

func (s *PostgresStore) ListCalls(ctx context.Context, f types.CallFilters, limit int) ([]types.Call, error) {
	var (
		where []string
		args  []any
	)
	add := func(clause string, v any) {
		args = append(args, v)
		where = append(where, strings.Replace(clause, "?", "$"+strconv.Itoa(len(args)), 1))
	}
	if f.AgentID != "" {
		add("agent_id = ?", f.AgentID)
	}
	if f.CustomerID != "" {
		add("customer_id = ?", f.CustomerID)
	}
	if f.Outcome != "" {
		add("outcome = ?", string(f.Outcome))
	}
	if f.StartTimeFrom != nil {
		add("start_time >= ?", *f.StartTimeFrom)
	}
	if f.StartTimeTo != nil {
		add("start_time <= ?", *f.StartTimeTo)
	}

	query := `SELECT ` + callColumns + ` FROM calls`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY start_time DESC`
	if limit > 0 {
		args = append(args, limit)
		query += ` LIMIT $` + strconv.Itoa(len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list calls: %w", err)
	}
	defer rows.Close()

	calls := make([]types.Call, 0)
	for rows.Next() {
		call, err := scanCall(rows)
		if err != nil {
			return nil, fmt.Errorf("scan call: %w", err)
		}
		calls = append(calls, call)
	}
	return calls, rows.Err()
}

func (s *PostgresStore) DeleteCall(ctx context.Context, id string) error {
	return s.deleteByID(ctx, "calls", id)
}

func (s *PostgresStore) CreateTurn(ctx context.Context, t types.ConversationalTurn) (types.ConversationalTurn, error) {
	t = prepareTurn(t)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversational_turns (`+turnColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		t.ID, t.CallID, t.TurnNumber, string(t.Speaker), t.Transcript, t.Confidence, t.TimestampOffset, t.CreatedAt,
	)
	if err != nil {
		return types.ConversationalTurn{}, fmt.Errorf("create turn: %w", mapError(err))
	}
	return t, nil
}

func (s *PostgresStore) GetTurn(ctx context.Context, id string) (types.ConversationalTurn, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+turnColumns+` FROM conversational_turns WHERE id = $1`, id)
	t, err := scanTurn(row)
	if err != nil {
		return types.ConversationalTurn{}, fmt.Errorf("get turn: %w", mapError(err))
	}
	return t, nil
}

func (s *PostgresStore) ListTurns(ctx context.Context, callID string) ([]types.ConversationalTurn, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+turnColumns+` FROM conversational_turns WHERE call_id = $1 ORDER BY turn_number ASC`, callID)
	if err != nil {
		return nil, fmt.Errorf("list turns: %w", err)
	}
	defer rows.Close()

	turns := make([]types.ConversationalTurn, 0)
	for rows.Next() {
		t, err := scanTurn(rows)
		if err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

func (s *PostgresStore) DeleteTurn(ctx context.Context, id string) error {
	return s.deleteByID(ctx, "conversational_turns", id)
}

func (s *PostgresStore) MaxTurnNumber(ctx context.Context, callID string) (int, error) {
	var highest int
	row := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(turn_number), 0) FROM conversational_turns WHERE call_id = $1`, callID)
	if err := row.Scan(&highest); err != nil {
		return 0, fmt.Errorf("max turn number: %w", err)
	}
	return highest, nil
}

func (s *PostgresStore) CreateMetric(ctx context.Context, m types.EmotionalMetric) (types.EmotionalMetric, error) {
	m = prepareMetric(m)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO emotional_metrics (`+metricColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		m.ID, m.CallID, nullString(m.TurnID), m.TimestampOffset,
		m.Anger, m.Frustration, m.Satisfaction, m.Neutral, m.Confidence, m.CreatedAt,
	)
	if err != nil {
		return types.EmotionalMetric{}, fmt.Errorf("create metric: %w", mapError(err))
	}
	return m, nil
}

func (s *PostgresStore) GetMetric(ctx context.Context, id string) (types.EmotionalMetric, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+metricColumns+` FROM emotional_metrics WHERE id = $1`, id)
	m, err := scanMetric(row)
	if err != nil {
		return types.EmotionalMetric{}, fmt.Errorf("get metric: %w", mapError(err))
	}
	return m, nil
}

func (s *PostgresStore) ListMetrics(ctx context.Context, callID string) ([]types.EmotionalMetric, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+metricColumns+` FROM emotional_metrics WHERE call_id = $1 ORDER BY timestamp_offset ASC`, callID)
	if err != nil {
		return nil, fmt.Errorf("list metrics: %w", err)
	}
	defer rows.Close()

	metrics := make([]types.EmotionalMetric, 0)
	for rows.Next() {
		m, err := scanMetric(rows)
		if err != nil {
			return nil, fmt.Errorf("scan metric: %w", err)
		}
		metrics = append(metrics, m)
	}
	return metrics, rows.Err()
}

func (s *PostgresStore) DeleteMetric(ctx context.Context, id string) error {
	return s.deleteByID(ctx, "emotional_metrics", id)
}

func (s *PostgresStore) CreateSuggestion(ctx context.Context, sg types.Suggestion) (types.Suggestion, error) {
	sg = prepareSuggestion(sg)
	caseIDs, err := encodeCaseIDs(sg.SimilarCaseIDs)
	if err != nil {
		return types.Suggestion{}, err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO suggestions (`+suggestionColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		sg.ID, sg.CallID, string(sg.Priority), nullString(&sg.Rule), sg.Text, sg.Reasoning,
		nullFloat(sg.HistoricalSuccessRate), caseIDs, nullBool(sg.WasFollowed),
		sg.TimestampOffset, sg.CreatedAt,
	)
	if err != nil {
		return types.Suggestion{}, fmt.Errorf("create suggestion: %w", mapError(err))
	}
	return sg, nil
}

func (s *PostgresStore) GetSuggestion(ctx context.Context, id string) (types.Suggestion, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+suggestionSelect+` FROM suggestions WHERE id = $1`, id)
	sg, err := scanSuggestion(row)
	if err != nil {
		return types.Suggestion{}, fmt.Errorf("get suggestion: %w", mapError(err))
	}
	return sg, nil
}

func (s *PostgresStore) ListSuggestions(ctx context.Context, callID string) ([]types.Suggestion, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+suggestionSelect+` FROM suggestions WHERE call_id = $1 ORDER BY timestamp_offset ASC`, callID)
	if err != nil {
		return nil, fmt.Errorf("list suggestions: %w", err)
	}
	defer rows.Close()

	out := make([]types.Suggestion, 0)
	for rows.Next() {
		sg, err := scanSuggestion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan suggestion: %w", err)
		}
		out = append(out, sg)
	}
	return out, rows.Err()
}

func (s *PostgresStore) UpdateSuggestion(ctx context.Context, id string, u types.SuggestionUpdate) (types.Suggestion, error) {
	var caseIDs sql.NullString
	if u.SimilarCaseIDs != nil {
		var err error
		if caseIDs, err = encodeCaseIDs(u.SimilarCaseIDs); err != nil {
			return types.Suggestion{}, err
		}
	}
	row := s.db.QueryRowContext(ctx,
		`UPDATE suggestions SET
			was_followed = COALESCE($2, was_followed),
			historical_success_rate = COALESCE($3, historical_success_rate),
			similar_case_ids = COALESCE($4, similar_case_ids)
		 WHERE id = $1
		 RETURNING `+suggestionSelect,
		id, nullBool(u.WasFollowed), nullFloat(u.HistoricalSuccessRate), caseIDs,
	)
	sg, err := scanSuggestion(row)
	if err != nil {
		return types.Suggestion{}, fmt.Errorf("update suggestion: %w", mapError(err))
	}
	return sg, nil
}

func (s *PostgresStore) DeleteSuggestion(ctx context.Context, id string) error {
	return s.deleteByID(ctx, "suggestions", id)
}

// deleteByID deletes one row; table is always one of the package constants
func (s *PostgresStore) deleteByID(ctx context.Context, table, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM `+table+` WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete from %s: %w", table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete from %s: %w", table, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanCall(row rowScanner) (types.Call, error) {
	var (
		c                     types.Call
		endTime               sql.NullTime
		duration              sql.NullInt64
		outcome, sentiment    sql.NullString
		summary, recordingURL sql.NullString
	)
	err := row.Scan(&c.ID, &c.AgentID, &c.CustomerID, &c.StartTime, &endTime, &duration,
		&outcome, &sentiment, &summary, &recordingURL, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return types.Call{}, err
	}
	if endTime.Valid {
		t := endTime.Time
		c.EndTime = &t
	}
	if duration.Valid {
		d := int(duration.Int64)
		c.DurationSeconds = &d
	}
	if outcome.Valid {
		o := types.CallOutcome(outcome.String)
		c.Outcome = &o
	}
	if sentiment.Valid {
		st := types.Sentiment(sentiment.String)
		c.OverallSentiment = &st
	}
	if summary.Valid {
		c.Summary = &summary.String
	}
	if recordingURL.Valid {
		c.RecordingURL = &recordingURL.String
	}
	return c, nil
}

func scanTurn(row rowScanner) (types.ConversationalTurn, error) {
	var (
		t       types.ConversationalTurn
		speaker string
	)
	err := row.Scan(&t.ID, &t.CallID, &t.TurnNumber, &speaker, &t.Transcript, &t.Confidence, &t.TimestampOffset, &t.CreatedAt)
	if err != nil {
		return types.ConversationalTurn{}, err
	}
	t.Speaker = types.Speaker(speaker)
	return t, nil
}

func scanMetric(row rowScanner) (types.EmotionalMetric, error) {
	var (
		m      types.EmotionalMetric
		turnID sql.NullString
	)
	err := row.Scan(&m.ID, &m.CallID, &turnID, &m.TimestampOffset,
		&m.Anger, &m.Frustration, &m.Satisfaction, &m.Neutral, &m.Confidence, &m.CreatedAt)
	if err != nil {
		return types.EmotionalMetric{}, err
	}
	if turnID.Valid {
		m.TurnID = &turnID.String
	}
	return m, nil
}

func scanSuggestion(row rowScanner) (types.Suggestion, error) {
	var (
		sg          types.Suggestion
		priority    string
		rule        sql.NullString
		rate        sql.NullFloat64
		caseIDs     sql.NullString
		wasFollowed sql.NullBool
	)
	err := row.Scan(&sg.ID, &sg.CallID, &priority, &rule, &sg.Text, &sg.Reasoning,
		&rate, &caseIDs, &wasFollowed, &sg.TimestampOffset, &sg.CreatedAt)
	if err != nil {
		return types.Suggestion{}, err
	}
	sg.Priority = types.Priority(priority)
	sg.Rule = rule.String
	if rate.Valid {
		sg.HistoricalSuccessRate = &rate.Float64
	}
	if caseIDs.Valid && caseIDs.String != "" {
		if err := json.Unmarshal([]byte(caseIDs.String), &sg.SimilarCaseIDs); err != nil {
			return types.Suggestion{}, fmt.Errorf("decode similar_case_ids: %w", err)
		}
	}
	if wasFollowed.Valid {
		sg.WasFollowed = &wasFollowed.Bool
	}
	return sg, nil
}

func encodeCaseIDs(ids []string) (sql.NullString, error) {
	if ids == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(ids)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encode similar_case_ids: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func nullString(s *string) sql.NullString {
	if s == nil || *s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullInt(n *int) sql.NullInt64 {
	if n == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*n), Valid: true}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func nullBool(b *bool) sql.NullBool {
	if b == nil {
		return sql.NullBool{}
	}
	return sql.NullBool{Bool: *b, Valid: true}
}
