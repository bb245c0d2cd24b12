package importer

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"faceattend/internal/attendance"
	"faceattend/internal/faceclient"
	"faceattend/internal/match"
	"faceattend/internal/metrics"
)

// Store is the narrow persistence surface the importer needs.
// *attendance.Repository satisfies it.
type Store interface {
	GetStudentByRoll(ctx context.Context, roll string) (*attendance.Student, error)
	UpsertEncoding(ctx context.Context, studentID string, embedding []float64) error
}

// Encoder produces face embeddings for raw image bytes.
type Encoder interface {
	Encode(ctx context.Context, image []byte, filename string) ([]faceclient.Face, error)
}

// Summary reports the outcome of one import run.
type Summary struct {
	Students int      `json:"students"`
	Imported int      `json:"imported"`
	Errors   []string `json:"errors"`
}

// Importer walks a dataset tree of per-student image folders and upserts
// one averaged embedding per student.
type Importer struct {
	store Store
	enc   Encoder
}

// New creates an importer.
func New(store Store, enc Encoder) *Importer {
	return &Importer{store: store, enc: enc}
}

// Run processes every student folder under root. The folder name is the
// student's roll number; every contained image is one face sample. Failures
// are recorded per image and per student, never aborting the whole batch.
// The run is not transactional across students: students committed before a
// crash stay committed.
func (im *Importer) Run(ctx context.Context, root string) (*Summary, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("read dataset dir: %w", err)
	}

	sum := &Summary{}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		roll := entry.Name()
		sum.Students++

		if err := im.importStudent(ctx, root, roll, sum); err != nil {
			sum.Errors = append(sum.Errors, fmt.Sprintf("%s: %v", roll, err))
		}
	}
	return sum, nil
}

func (im *Importer) importStudent(ctx context.Context, root, roll string, sum *Summary) error {
	dir := filepath.Join(root, roll)
	files, err := os.ReadDir(dir)
	if err != nil {
		return err
	}

	var embeddings [][]float64
	for _, f := range files {
		if f.IsDir() || !isImage(f.Name()) {
			continue
		}
		path := filepath.Join(dir, f.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			sum.Errors = append(sum.Errors, fmt.Sprintf("%s/%s: %v", roll, f.Name(), err))
			continue
		}

		faces, err := im.enc.Encode(ctx, data, f.Name())
		if err != nil {
			sum.Errors = append(sum.Errors, fmt.Sprintf("%s/%s: %v", roll, f.Name(), err))
			continue
		}
		face, ok := faceclient.PrimaryFace(faces)
		if !ok {
			sum.Errors = append(sum.Errors, fmt.Sprintf("%s/%s: no face detected", roll, f.Name()))
			continue
		}
		embeddings = append(embeddings, face.Embedding)
	}

	if len(embeddings) == 0 {
		// Leave any previously stored embedding untouched.
		return fmt.Errorf("no valid face data")
	}

	student, err := im.store.GetStudentByRoll(ctx, roll)
	if err != nil {
		return err
	}
	if student == nil {
		return fmt.Errorf("roll number not found in students table")
	}

	avg := match.Mean(embeddings)
	if avg == nil {
		return fmt.Errorf("inconsistent embedding lengths")
	}
	if err := im.store.UpsertEncoding(ctx, student.ID, avg); err != nil {
		return err
	}

	metrics.ImportedStudents.Inc()
	sum.Imported++
	log.Printf("imported %s: %d sample(s) averaged", roll, len(embeddings))
	return nil
}

func isImage(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg", ".png":
		return true
	}
	return false
}
