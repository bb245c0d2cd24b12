package attendance

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/google/uuid"

	"faceattend/internal/match"
)

// Repository persists attendance data in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// GetStudent returns a student by primary key, nil when not found.
// Students are created externally; this service never writes the table.
func (r *Repository) GetStudent(ctx context.Context, id string) (*Student, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, roll_number, department, class
		FROM students WHERE id = $1
	`, id)
	return scanStudent(row)
}

// GetStudentByRoll returns a student by roll number, nil when not found.
func (r *Repository) GetStudentByRoll(ctx context.Context, roll string) (*Student, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, roll_number, department, class
		FROM students WHERE roll_number = $1
	`, roll)
	return scanStudent(row)
}

func scanStudent(row *sql.Row) (*Student, error) {
	var s Student
	if err := row.Scan(&s.ID, &s.Name, &s.RollNumber, &s.Department, &s.Class); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

// UpsertEncoding writes-or-replaces the single stored embedding for a
// student. The uniqueness constraint keeps at most one row per student;
// re-registration overwrites, never appends.
func (r *Repository) UpsertEncoding(ctx context.Context, studentID string, embedding []float64) error {
	enc, err := json.Marshal(embedding)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO student_face_data (student_id, face_encoding, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (student_id) DO UPDATE SET
			face_encoding = EXCLUDED.face_encoding,
			updated_at = NOW()
	`, studentID, string(enc))
	return err
}

// ListEncodings returns every stored embedding. Called on each match
// request; there is no in-process cache of this set.
func (r *Repository) ListEncodings(ctx context.Context) ([]match.Candidate, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT student_id, face_encoding FROM student_face_data
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []match.Candidate
	for rows.Next() {
		var id, raw string
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, err
		}
		var emb []float64
		if err := json.Unmarshal([]byte(raw), &emb); err != nil {
			return nil, err
		}
		out = append(out, match.Candidate{StudentID: id, Embedding: emb})
	}
	return out, rows.Err()
}

// InsertLog appends one attendance log row. Logs are append-only; no
// update or delete path exists.
func (r *Repository) InsertLog(ctx context.Context, l Log) (Log, error) {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	if l.Status == "" {
		l.Status = "present"
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO attendance_logs (id, student_id, confidence_score, status)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`, l.ID, l.StudentID, l.Confidence, l.Status)
	if err := row.Scan(&l.CreatedAt); err != nil {
		return Log{}, err
	}
	return l, nil
}

// SubjectStats aggregates the externally populated attendance table for one
// roll number. Each row counts as one session.
func (r *Repository) SubjectStats(ctx context.Context, roll string) ([]SubjectStat, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT subject,
		       SUM(CASE WHEN LOWER(attendance) IN ('present', 'p', '1') THEN 1 ELSE 0 END),
		       COUNT(*)
		FROM attendance
		WHERE roll_number = $1
		GROUP BY subject
		ORDER BY subject
	`, roll)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []SubjectStat
	for rows.Next() {
		var s SubjectStat
		if err := rows.Scan(&s.Subject, &s.Present, &s.Total); err != nil {
			return nil, err
		}
		if s.Total > 0 {
			s.Percentage = float64(s.Present) / float64(s.Total) * 100
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

// GetCredential returns login credentials for a username, nil when absent.
func (r *Repository) GetCredential(ctx context.Context, username string) (*Credential, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT username, password_hash, student_id
		FROM std_user_login WHERE username = $1
	`, username)
	var c Credential
	if err := row.Scan(&c.Username, &c.PasswordHash, &c.StudentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

// EnsureSchema bootstraps the tables this service owns. Idempotent; safe
// to rerun. The students and attendance tables belong to the external
// system and are not created here.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	// One statement per exec; the pgx driver does not batch.
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS student_face_data (
			student_id    TEXT PRIMARY KEY,
			face_encoding TEXT NOT NULL,
			updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS attendance_logs (
			id               TEXT PRIMARY KEY,
			student_id       TEXT NOT NULL,
			confidence_score DOUBLE PRECISION NOT NULL,
			status           TEXT NOT NULL DEFAULT 'present',
			created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_attendance_logs_student
			ON attendance_logs (student_id)`,
		`CREATE TABLE IF NOT EXISTS std_user_login (
			username      TEXT PRIMARY KEY,
			password_hash TEXT NOT NULL,
			student_id    TEXT NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
