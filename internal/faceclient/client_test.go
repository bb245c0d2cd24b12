package faceclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"faceattend/internal/match"
)

func fullEmbedding(fill float64) []float64 {
	out := make([]float64, match.EmbeddingDim)
	for i := range out {
		out[i] = fill
	}
	return out
}

func TestEncode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/encode", r.URL.Path)

		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		assert.Equal(t, "query.jpg", header.Filename)

		json.NewEncoder(w).Encode(map[string]any{
			"faces": []Face{
				{Embedding: fullEmbedding(0.1), Box: Box{Top: 0, Right: 50, Bottom: 50, Left: 0}},
				{Embedding: fullEmbedding(0.2), Box: Box{Top: 0, Right: 200, Bottom: 200, Left: 0}},
			},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, false)
	faces, err := c.Encode(context.Background(), []byte("jpegbytes"), "query.jpg")
	require.NoError(t, err)
	require.Len(t, faces, 2)
	assert.Len(t, faces[0].Embedding, match.EmbeddingDim)
}

func TestEncodeZeroFaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"faces":[]}`)
	}))
	defer srv.Close()

	faces, err := New(srv.URL, false).Encode(context.Background(), []byte("x"), "a.jpg")
	require.NoError(t, err)
	assert.Empty(t, faces)
}

func TestEncodeServiceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := New(srv.URL, false).Encode(context.Background(), []byte("x"), "a.jpg")
	assert.Error(t, err)
}

func TestEncodeRejectsWrongDimension(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"faces": []Face{{Embedding: []float64{1, 2, 3}}},
		})
	}))
	defer srv.Close()

	_, err := New(srv.URL, false).Encode(context.Background(), []byte("x"), "a.jpg")
	assert.ErrorContains(t, err, "unexpected embedding length")
}

func TestSkipModeIsDeterministic(t *testing.T) {
	c := New("", true)

	a1, err := c.Encode(context.Background(), []byte("image-a"), "a.jpg")
	require.NoError(t, err)
	a2, err := c.Encode(context.Background(), []byte("image-a"), "a.jpg")
	require.NoError(t, err)
	b, err := c.Encode(context.Background(), []byte("image-b"), "b.jpg")
	require.NoError(t, err)

	require.Len(t, a1, 1)
	assert.Equal(t, a1[0].Embedding, a2[0].Embedding)
	assert.NotEqual(t, a1[0].Embedding, b[0].Embedding)
	assert.Len(t, a1[0].Embedding, match.EmbeddingDim)
}

func TestPrimaryFace(t *testing.T) {
	small := Face{Embedding: fullEmbedding(0.1), Box: Box{Top: 0, Right: 10, Bottom: 10, Left: 0}}
	big := Face{Embedding: fullEmbedding(0.2), Box: Box{Top: 0, Right: 100, Bottom: 100, Left: 0}}

	tests := []struct {
		name     string
		faces    []Face
		expected Face
		ok       bool
	}{
		{"empty", nil, Face{}, false},
		{"single", []Face{small}, small, true},
		{"largest wins", []Face{small, big}, big, true},
		{"order preserved without boxes", []Face{
			{Embedding: fullEmbedding(0.3)},
			{Embedding: fullEmbedding(0.4)},
		}, Face{Embedding: fullEmbedding(0.3)}, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := PrimaryFace(tc.faces)
			assert.Equal(t, tc.ok, ok)
			if ok {
				assert.Equal(t, tc.expected.Embedding, got.Embedding)
			}
		})
	}
}

func TestHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/health", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	assert.NoError(t, New(srv.URL, false).Health(context.Background()))
	assert.NoError(t, New("", true).Health(context.Background()))
}
