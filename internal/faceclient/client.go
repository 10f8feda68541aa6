package faceclient

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// FaceQuality contains face quality metrics.
type FaceQuality struct {
	Score     float64 `json:"score"`
	Blur      float64 `json:"blur"`
	PoseYaw   float64 `json:"pose_yaw"`
	PosePitch float64 `json:"pose_pitch"`
	PoseRoll  float64 `json:"pose_roll"`
	FaceSize  int     `json:"face_size"`
	IsFrontal bool    `json:"is_frontal"`
}

// EmbedResult contains the face embedding and detection confidence.
type EmbedResult struct {
	Embedding     []float32
	Score         float64
	FacesDetected int
	Quality       *FaceQuality
}

// LivenessResult contains anti-spoofing check result.
type LivenessResult struct {
	IsLive     bool
	Confidence float64
	Checks     map[string]interface{}
}

// Client calls the face-embedding microservice. Identification itself runs
// in-process against the enrolled gallery; this client only turns images
// into embeddings.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	Skip    bool
}

// New creates a client with configurable timeout.
func New(baseURL string, skip bool) *Client {
	return &Client{
		BaseURL: baseURL,
		Skip:    skip,
		HTTP: &http.Client{
			Timeout: 30 * time.Second, // Face processing can take time
		},
	}
}

// Embed requests an embedding for an image URL.
func (c *Client) Embed(ctx context.Context, imageURL string) ([]float32, error) {
	result, err := c.EmbedWithScore(ctx, imageURL)
	if err != nil {
		return nil, err
	}
	return result.Embedding, nil
}

// EmbedWithScore requests an embedding and returns the full result including
// the detection score.
func (c *Client) EmbedWithScore(ctx context.Context, imageURL string) (*EmbedResult, error) {
	if c.Skip {
		return &EmbedResult{
			Embedding:     mockEmbedding(imageURL),
			Score:         0.95,
			FacesDetected: 1,
			Quality:       &FaceQuality{Score: 0.85, IsFrontal: true},
		}, nil
	}
	if imageURL == "" {
		return nil, fmt.Errorf("image url required")
	}

	body, _ := json.Marshal(map[string]string{"image_url": imageURL})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/embed", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

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
		Embedding     []float32    `json:"embedding"`
		Score         float64      `json:"score"`
		FacesDetected int          `json:"faces_detected"`
		Quality       *FaceQuality `json:"quality"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(out.Embedding) == 0 {
		return nil, fmt.Errorf("no face detected in image")
	}

	return &EmbedResult{
		Embedding:     out.Embedding,
		Score:         out.Score,
		FacesDetected: out.FacesDetected,
		Quality:       out.Quality,
	}, nil
}

// Liveness checks if the face image is from a live person (anti-spoofing).
func (c *Client) Liveness(ctx context.Context, imageURL string) (*LivenessResult, error) {
	if c.Skip {
		return &LivenessResult{
			IsLive:     true,
			Confidence: 0.85,
			Checks:     map[string]interface{}{"mock": true},
		}, nil
	}

	body, _ := json.Marshal(map[string]string{"image_url": imageURL})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/liveness", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

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
		IsLive     bool                   `json:"is_live"`
		Confidence float64                `json:"confidence"`
		Checks     map[string]interface{} `json:"checks"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &LivenessResult{
		IsLive:     out.IsLive,
		Confidence: out.Confidence,
		Checks:     out.Checks,
	}, nil
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

// mockEmbedding derives a stable pseudo-embedding from the image URL so that
// skip mode still exercises enrollment and matching end to end: the same URL
// always maps to the same vector, different URLs land far apart.
func mockEmbedding(imageURL string) []float32 {
	sum := sha256.Sum256([]byte(imageURL))
	out := make([]float32, 16)
	for i := range out {
		out[i] = float32(sum[i*2]) / 255.0
	}
	return out
}
