package attendance

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"faceattend/internal/faceclient"
	"faceattend/internal/geofence"
	"faceattend/internal/match"
	"faceattend/internal/metrics"
	"faceattend/internal/queue"
)

// Student mirrors the externally owned students table.
type Student struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	RollNumber string `json:"roll_number"`
	Department string `json:"department"`
	Class      string `json:"class"`
}

// Log is one append-only attendance record for an accepted match.
type Log struct {
	ID         string    `json:"id"`
	StudentID  string    `json:"student_id"`
	Confidence float64   `json:"confidence_score"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
}

// Credential is a student login row.
type Credential struct {
	Username     string
	PasswordHash string
	StudentID    string
}

// SubjectStat is one per-subject attendance aggregate.
type SubjectStat struct {
	Subject    string  `json:"subject"`
	Present    int     `json:"present"`
	Total      int     `json:"total"`
	Percentage float64 `json:"percentage"`
}

// StatsReport aggregates attendance for one roll number.
type StatsReport struct {
	RollNumber string        `json:"roll_number"`
	Present    int           `json:"present"`
	Absent     int           `json:"absent"`
	Subjects   []SubjectStat `json:"subjects"`
}

// MatchResult is the outcome of one attendance attempt.
type MatchResult struct {
	Matched    bool
	Student    *Student
	LogID      string
	Distance   float64
	Confidence string
}

// Sentinel errors mapped to HTTP statuses by the handlers.
var (
	ErrNoFaceDetected     = errors.New("no face detected")
	ErrStudentNotFound    = errors.New("student not found")
	ErrNoRegisteredFaces  = errors.New("no registered faces")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// GeofenceError reports a rejected claimed location.
type GeofenceError struct {
	DistanceM float64
	RadiusM   float64
}

func (e *GeofenceError) Error() string {
	return fmt.Sprintf("outside allowed area: %.0fm from reference (radius %.0fm)", e.DistanceM, e.RadiusM)
}

// Store is the persistence surface the service needs. *Repository
// satisfies it; tests substitute fixtures.
type Store interface {
	GetStudent(ctx context.Context, id string) (*Student, error)
	GetStudentByRoll(ctx context.Context, roll string) (*Student, error)
	UpsertEncoding(ctx context.Context, studentID string, embedding []float64) error
	ListEncodings(ctx context.Context) ([]match.Candidate, error)
	InsertLog(ctx context.Context, l Log) (Log, error)
	SubjectStats(ctx context.Context, roll string) ([]SubjectStat, error)
	GetCredential(ctx context.Context, username string) (*Credential, error)
}

// Encoder produces face embeddings for raw image bytes.
type Encoder interface {
	Encode(ctx context.Context, image []byte, filename string) ([]faceclient.Face, error)
}

// Publisher pushes accepted-match events for async consumers.
type Publisher interface {
	Publish(ctx context.Context, msg queue.Message) error
}

// Service coordinates registration, matching and attendance logging.
type Service struct {
	store   Store
	enc     Encoder
	matcher match.Matcher
	fence   geofence.Fence
	pub     Publisher
}

// NewService wires the service. pub may be nil when no queue is configured.
func NewService(store Store, enc Encoder, matcher match.Matcher, fence geofence.Fence, pub Publisher) *Service {
	return &Service{store: store, enc: enc, matcher: matcher, fence: fence, pub: pub}
}

// embed extracts the primary face embedding from an image.
func (s *Service) embed(ctx context.Context, image []byte, filename string) ([]float64, error) {
	faces, err := s.enc.Encode(ctx, image, filename)
	if err != nil {
		return nil, err
	}
	face, ok := faceclient.PrimaryFace(faces)
	if !ok {
		return nil, ErrNoFaceDetected
	}
	return face.Embedding, nil
}

// RegisterFace extracts one embedding and writes-or-replaces the stored
// embedding for the student. Idempotent: a second registration overwrites.
func (s *Service) RegisterFace(ctx context.Context, studentID string, image []byte, filename string) (*Student, error) {
	student, err := s.store.GetStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}
	if student == nil {
		return nil, ErrStudentNotFound
	}

	emb, err := s.embed(ctx, image, filename)
	if err != nil {
		return nil, err
	}
	if err := s.store.UpsertEncoding(ctx, studentID, emb); err != nil {
		return nil, err
	}
	metrics.Registrations.Inc()
	return student, nil
}

// MarkAttendance matches the image against every stored embedding and, on
// an accepted match, appends an attendance log and publishes an event.
func (s *Service) MarkAttendance(ctx context.Context, image []byte, filename string) (*MatchResult, error) {
	emb, err := s.embed(ctx, image, filename)
	if err != nil {
		return nil, err
	}

	candidates, err := s.store.ListEncodings(ctx)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, ErrNoRegisteredFaces
	}

	res, accepted := s.matcher.Match(emb, candidates)
	metrics.MatchDistance.Observe(res.Distance)
	if !accepted {
		metrics.MatchAttempts.WithLabelValues("rejected").Inc()
		return &MatchResult{Matched: false, Distance: res.Distance}, nil
	}
	metrics.MatchAttempts.WithLabelValues("accepted").Inc()

	student, err := s.store.GetStudent(ctx, res.StudentID)
	if err != nil {
		return nil, err
	}
	if student == nil {
		// Stored embedding points at a student row that no longer exists.
		return nil, ErrStudentNotFound
	}

	logged, err := s.store.InsertLog(ctx, Log{
		StudentID:  res.StudentID,
		Confidence: match.Confidence(res.Distance),
		Status:     "present",
	})
	if err != nil {
		return nil, err
	}

	s.publishEvent(ctx, logged, student)

	return &MatchResult{
		Matched:    true,
		Student:    student,
		LogID:      logged.ID,
		Distance:   res.Distance,
		Confidence: match.FormatConfidence(res.Distance),
	}, nil
}

// MarkAttendanceAt gates the matching flow behind the geofence. The claimed
// coordinates are trusted as-is.
func (s *Service) MarkAttendanceAt(ctx context.Context, lat, lon float64, image []byte, filename string) (*MatchResult, error) {
	if !s.fence.Contains(lat, lon) {
		metrics.GeofenceRejections.Inc()
		return nil, &GeofenceError{DistanceM: s.fence.DistanceM(lat, lon), RadiusM: s.fence.RadiusM}
	}
	return s.MarkAttendance(ctx, image, filename)
}

// Stats aggregates the external attendance table for one roll number.
func (s *Service) Stats(ctx context.Context, roll string) (*StatsReport, error) {
	student, err := s.store.GetStudentByRoll(ctx, roll)
	if err != nil {
		return nil, err
	}
	if student == nil {
		return nil, ErrStudentNotFound
	}

	subjects, err := s.store.SubjectStats(ctx, roll)
	if err != nil {
		return nil, err
	}
	report := &StatsReport{RollNumber: roll, Subjects: subjects}
	for _, sub := range subjects {
		report.Present += sub.Present
		report.Absent += sub.Total - sub.Present
	}
	return report, nil
}

// Login checks credentials and returns the student profile. Stored values
// are bcrypt hashes; rows written before hashing was introduced are
// compared in constant time as-is.
func (s *Service) Login(ctx context.Context, username, password string) (*Student, error) {
	cred, err := s.store.GetCredential(ctx, username)
	if err != nil {
		return nil, err
	}
	if cred == nil || !checkPassword(cred.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}

	student, err := s.store.GetStudent(ctx, cred.StudentID)
	if err != nil {
		return nil, err
	}
	if student == nil {
		return nil, ErrInvalidCredentials
	}
	return student, nil
}

func checkPassword(stored, password string) bool {
	if strings.HasPrefix(stored, "$2a$") || strings.HasPrefix(stored, "$2b$") || strings.HasPrefix(stored, "$2y$") {
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(password)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(password)) == 1
}

// Event is the queue payload for an accepted match.
type Event struct {
	LogID      string    `json:"log_id"`
	StudentID  string    `json:"student_id"`
	Name       string    `json:"name"`
	RollNumber string    `json:"roll_number"`
	Confidence float64   `json:"confidence_score"`
	When       time.Time `json:"when"`
}

// EventType identifies attendance events on the queue.
const EventType = "attendance"

func (s *Service) publishEvent(ctx context.Context, l Log, student *Student) {
	if s.pub == nil {
		return
	}
	body, err := json.Marshal(Event{
		LogID:      l.ID,
		StudentID:  l.StudentID,
		Name:       student.Name,
		RollNumber: student.RollNumber,
		Confidence: l.Confidence,
		When:       l.CreatedAt,
	})
	if err != nil {
		return
	}
	if err := s.pub.Publish(ctx, queue.Message{Type: EventType, Body: body}); err != nil {
		log.Printf("queue publish failed: %v", err)
	}
}
