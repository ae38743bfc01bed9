package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"graphrag/backend/pkg/errors"
	"graphrag/backend/pkg/logger"
)

// EntityRecognizer names entities in raw text. The production
// implementation is an HTTP sidecar running the NER model.
type EntityRecognizer interface {
	Recognize(ctx context.Context, text string) ([]string, error)
}

// NERClient talks to the NER sidecar service
type NERClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewNERClient creates a client for the NER service
func NewNERClient(baseURL string, timeout time.Duration) *NERClient {
	return &NERClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger.Get(),
	}
}

type nerRequest struct {
	Text string `json:"text"`
}

type nerResponse struct {
	Entities []string `json:"entities"`
}

// Recognize sends the text to the NER service and returns the named
// entities it found. Any transport or decode failure is an extraction
// error; callers must not degrade to an empty entity list.
func (c *NERClient) Recognize(ctx context.Context, text string) ([]string, error) {
	reqData, err := json.Marshal(nerRequest{Text: text})
	if err != nil {
		return nil, errors.NewExtractionFailed(text, err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/extract", bytes.NewReader(reqData))
	if err != nil {
		return nil, errors.NewExtractionFailed(text, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.NewExtractionFailed(text, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, errors.NewExtractionFailed(text,
			fmt.Errorf("NER service returned status %d: %s", resp.StatusCode, string(bodyBytes)))
	}

	var result nerResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, errors.NewExtractionFailed(text, err)
	}

	c.logger.Debug("NER extraction complete",
		zap.Int("entity_count", len(result.Entities)))

	return result.Entities, nil
}
