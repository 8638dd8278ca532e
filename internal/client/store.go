package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// HTTPSaver persists content through the document store's REST API. The
// access key authorizes non-owner participants; an empty key relies on the
// bearer token instead.
type HTTPSaver struct {
	// BaseURL is the server root, e.g. "http://localhost:8008".
	BaseURL   string
	AccessKey string
	// Token is an optional JWT for authenticated saves.
	Token string
	// HTTPClient defaults to a client with a 10 second timeout.
	HTTPClient *http.Client
}

type saveContentRequest struct {
	Content   string `json:"content"`
	AccessKey string `json:"accessKey,omitempty"`
}

// SaveContent implements Saver with PUT /api/documents/:id/content.
func (s *HTTPSaver) SaveContent(ctx context.Context, documentID, content string) error {
	body, err := json.Marshal(saveContentRequest{
		Content:   content,
		AccessKey: s.AccessKey,
	})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/api/documents/%s/content", s.BaseURL, documentID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.Token != "" {
		req.Header.Set("Authorization", "Bearer "+s.Token)
	}

	httpClient := s.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("save failed: status %d", resp.StatusCode)
	}
	return nil
}
