package faceclient

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"faceattend/internal/match"
)

// Box is a face bounding box in image coordinates.
type Box struct {
	Top    int `json:"top"`
	Right  int `json:"right"`
	Bottom int `json:"bottom"`
	Left   int `json:"left"`
}

// Area returns the box area in pixels; zero for degenerate boxes.
func (b Box) Area() int {
	w := b.Right - b.Left
	h := b.Bottom - b.Top
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

// Face is one detection returned by the encoder service.
type Face struct {
	Embedding []float64 `json:"embedding"`
	Box       Box       `json:"box"`
}

// Client calls the face recognition sidecar that wraps the embedding model.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	Skip    bool
}

// New creates a client with a generous timeout; face detection is slow.
func New(baseURL string, skip bool) *Client {
	return &Client{
		BaseURL: baseURL,
		Skip:    skip,
		HTTP: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Encode posts image bytes to the sidecar and returns every detected face
// with its 128-dim embedding. Zero faces is not an error here; callers
// decide how to treat an empty result.
func (c *Client) Encode(ctx context.Context, image []byte, filename string) ([]Face, error) {
	if c.Skip {
		return []Face{mockFace(image)}, nil
	}
	if len(image) == 0 {
		return nil, fmt.Errorf("image bytes required")
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fw, err := w.CreateFormFile("file", filename)
	if err != nil {
		return nil, err
	}
	if _, err := fw.Write(image); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/encode", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("face service request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("face service error %s: %s", resp.Status, string(bodyBytes))
	}

	var out struct {
		Faces []Face `json:"faces"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	for _, f := range out.Faces {
		if len(f.Embedding) != match.EmbeddingDim {
			return nil, fmt.Errorf("unexpected embedding length %d", len(f.Embedding))
		}
	}
	return out.Faces, nil
}

// Health checks if the face service is available.
func (c *Client) Health(ctx context.Context) error {
	if c.Skip {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/health", nil)
	if err != nil {
		return err
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("face service unavailable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("face service unhealthy: %s", resp.Status)
	}

	return nil
}

// PrimaryFace picks which detection to use when an image contains several
// faces: the largest bounding box wins, falling back to detection order
// when the service reports no boxes. Returns false for an empty slice.
func PrimaryFace(faces []Face) (Face, bool) {
	if len(faces) == 0 {
		return Face{}, false
	}
	best := faces[0]
	for _, f := range faces[1:] {
		if f.Box.Area() > best.Box.Area() {
			best = f
		}
	}
	return best, true
}

// mockFace derives a deterministic pseudo-embedding from the image bytes so
// register/match round-trips work without the sidecar: identical bytes give
// identical vectors, different bytes give distant ones.
func mockFace(image []byte) Face {
	sum := sha256.Sum256(image)
	emb := make([]float64, match.EmbeddingDim)
	for i := range emb {
		hi := sum[(i*3)%len(sum)]
		lo := sum[(i*7+5)%len(sum)]
		emb[i] = float64(int(hi)<<8|int(lo))/65535 - 0.5
	}
	return Face{
		Embedding: emb,
		Box:       Box{Top: 0, Right: 100, Bottom: 100, Left: 0},
	}
}
