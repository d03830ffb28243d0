package face

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"presence/internal/faults"
	"presence/internal/model"
)

// Client calls the face comparison microservice. With Skip set it returns a
// canned single-face match, which keeps dev environments and the worker
// usable without the service running.
type Client struct {
	BaseURL   string
	HTTP      *http.Client
	Threshold float64
	Skip      bool
}

// NewClient creates a client. timeout bounds each comparison call; a timeout
// surfaces as UpstreamTimeout so the caller knows a retry is worthwhile.
func NewClient(baseURL string, threshold float64, skip bool, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		BaseURL:   baseURL,
		Threshold: threshold,
		Skip:      skip,
		HTTP:      &http.Client{Timeout: timeout},
	}
}

type compareRequest struct {
	Template []float64 `json:"template"`
	Sample   string    `json:"sample"` // base64
}

type compareResponse struct {
	Similarity    float64 `json:"similarity"`
	FacesDetected int     `json:"faces_detected"`
}

// Verify compares the captured sample against the actor's enrolled template.
func (c *Client) Verify(ctx context.Context, actor *model.Actor, sample []byte) (Outcome, error) {
	if err := precheck(actor, sample); err != nil {
		return Outcome{}, err
	}
	if c.Skip {
		return decide(0.93, 1, c.Threshold), nil
	}

	body, err := json.Marshal(compareRequest{
		Template: actor.FaceTemplate,
		Sample:   base64.StdEncoding.EncodeToString(sample),
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("encode compare request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/compare", bytes.NewReader(body))
	if err != nil {
		return Outcome{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		if isTimeout(err) {
			return Outcome{}, faults.Wrap(faults.UpstreamTimeout, "face service timed out", err)
		}
		return Outcome{}, fmt.Errorf("face service request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return Outcome{}, fmt.Errorf("face service error %s: %s", resp.Status, string(b))
	}

	var out compareResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Outcome{}, fmt.Errorf("decode compare response: %w", err)
	}
	return decide(out.Similarity, out.FacesDetected, c.Threshold), nil
}

// Extract derives an enrollment template from a captured sample by calling
// the service's /embed endpoint. In Skip mode it returns a fixed template so
// the enrollment flow works end to end offline.
func (c *Client) Extract(ctx context.Context, sample []byte) ([]float64, error) {
	if len(sample) == 0 {
		return nil, faults.New(faults.NoSampleProvided, "captured sample is empty or unreadable")
	}
	if c.Skip {
		return []float64{0.1, 0.2, 0.3}, nil
	}

	body, err := json.Marshal(map[string]string{"sample": base64.StdEncoding.EncodeToString(sample)})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/embed", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, faults.Wrap(faults.UpstreamTimeout, "face service timed out", err)
		}
		return nil, fmt.Errorf("face service request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("face service error %s: %s", resp.Status, string(b))
	}

	var out struct {
		Embedding     []float64 `json:"embedding"`
		FacesDetected int       `json:"faces_detected"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode embed response: %w", err)
	}
	if out.FacesDetected > 1 {
		return nil, faults.WithDetail(faults.IdentityFailed, "enrollment frame must contain exactly one face", faults.ReasonMultipleFaces)
	}
	return out.Embedding, nil
}

// Health pings the face service.
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
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("face service unhealthy: %s", resp.Status)
	}
	return nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var uerr *url.Error
	return errors.As(err, &uerr) && uerr.Timeout()
}
