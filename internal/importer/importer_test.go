package importer

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"faceattend/internal/attendance"
	"faceattend/internal/faceclient"
	"faceattend/internal/match"
)

type fakeStore struct {
	byRoll    map[string]*attendance.Student
	encodings map[string][]float64
}

func (f *fakeStore) GetStudentByRoll(_ context.Context, roll string) (*attendance.Student, error) {
	return f.byRoll[roll], nil
}

func (f *fakeStore) UpsertEncoding(_ context.Context, studentID string, embedding []float64) error {
	f.encodings[studentID] = embedding
	return nil
}

type fakeEncoder struct {
	faces map[string][]faceclient.Face
}

func (f *fakeEncoder) Encode(_ context.Context, _ []byte, filename string) ([]faceclient.Face, error) {
	return f.faces[filename], nil
}

func embedding(vals ...float64) []float64 {
	out := make([]float64, match.EmbeddingDim)
	copy(out, vals)
	return out
}

func face(vals ...float64) faceclient.Face {
	return faceclient.Face{
		Embedding: embedding(vals...),
		Box:       faceclient.Box{Right: 100, Bottom: 100},
	}
}

func writeDataset(t *testing.T, layout map[string][]string) string {
	t.Helper()
	root := t.TempDir()
	for roll, files := range layout {
		require.NoError(t, os.MkdirAll(filepath.Join(root, roll), 0o755))
		for _, name := range files {
			require.NoError(t, os.WriteFile(filepath.Join(root, roll, name), []byte(name), 0o644))
		}
	}
	return root
}

func TestRunAveragesSamples(t *testing.T) {
	root := writeDataset(t, map[string][]string{
		"CS23001": {"one.jpg", "two.jpg"},
	})
	store := &fakeStore{
		byRoll:    map[string]*attendance.Student{"CS23001": {ID: "s1", RollNumber: "CS23001"}},
		encodings: map[string][]float64{},
	}
	enc := &fakeEncoder{faces: map[string][]faceclient.Face{
		"one.jpg": {face(0.2)},
		"two.jpg": {face(0.4)},
	}}

	sum, err := New(store, enc).Run(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Students)
	assert.Equal(t, 1, sum.Imported)
	assert.Empty(t, sum.Errors)
	assert.InDelta(t, 0.3, store.encodings["s1"][0], 1e-12)
}

func TestRunZeroFacesLeavesPriorEmbedding(t *testing.T) {
	root := writeDataset(t, map[string][]string{
		"CS23001": {"blank.jpg"},
	})
	prior := embedding(0.9)
	store := &fakeStore{
		byRoll:    map[string]*attendance.Student{"CS23001": {ID: "s1"}},
		encodings: map[string][]float64{"s1": prior},
	}
	enc := &fakeEncoder{faces: map[string][]faceclient.Face{}}

	sum, err := New(store, enc).Run(context.Background(), root)
	require.NoError(t, err)
	assert.Zero(t, sum.Imported)
	assert.NotEmpty(t, sum.Errors)
	assert.Equal(t, prior, store.encodings["s1"])
}

func TestRunUnknownRollRecordsError(t *testing.T) {
	root := writeDataset(t, map[string][]string{
		"ZZ999": {"a.jpg"},
	})
	store := &fakeStore{byRoll: map[string]*attendance.Student{}, encodings: map[string][]float64{}}
	enc := &fakeEncoder{faces: map[string][]faceclient.Face{"a.jpg": {face(0.1)}}}

	sum, err := New(store, enc).Run(context.Background(), root)
	require.NoError(t, err)
	assert.Zero(t, sum.Imported)
	require.Len(t, sum.Errors, 1)
	assert.Contains(t, sum.Errors[0], "ZZ999")
	assert.Empty(t, store.encodings)
}

func TestRunBadImageDoesNotAbortBatch(t *testing.T) {
	root := writeDataset(t, map[string][]string{
		"CS23001": {"bad.jpg", "good.jpg", "notes.txt"},
		"CS23002": {"ok.png"},
	})
	store := &fakeStore{
		byRoll: map[string]*attendance.Student{
			"CS23001": {ID: "s1"},
			"CS23002": {ID: "s2"},
		},
		encodings: map[string][]float64{},
	}
	enc := &fakeEncoder{faces: map[string][]faceclient.Face{
		"good.jpg": {face(0.2)},
		"ok.png":   {face(0.5)},
		// bad.jpg: no face; notes.txt is skipped before encoding
	}}

	sum, err := New(store, enc).Run(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Students)
	assert.Equal(t, 2, sum.Imported)
	require.Len(t, sum.Errors, 1)
	assert.Contains(t, sum.Errors[0], "bad.jpg")
	assert.Equal(t, embedding(0.2), store.encodings["s1"])
	assert.Equal(t, embedding(0.5), store.encodings["s2"])
}

func TestRunMissingRoot(t *testing.T) {
	_, err := New(&fakeStore{}, &fakeEncoder{}).Run(context.Background(), "/nonexistent/dataset")
	assert.Error(t, err)
}
