// Package bot forwards inbound messages to a Botpress-compatible converse
// API and relays the bot's answers back over WhatsApp.
package bot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ConverseResponse is one entry of the converse API's responses array.
type ConverseResponse struct {
	Type     string   `json:"type"`
	Text     string   `json:"text"`
	Title    string   `json:"title"`
	Dropdown string   `json:"dropdownPlaceholder"`
	URL      string   `json:"url"`
	Choices  []Choice `json:"choices"`
}

// Choice is one selectable answer of a single-choice response.
type Choice struct {
	Title string `json:"title"`
	Value string `json:"value"`
}

type converseReply struct {
	Responses []ConverseResponse `json:"responses"`
}

type loginReply struct {
	Payload struct {
		JWT string `json:"jwt"`
	} `json:"payload"`
}

// apiClient talks to the bot's HTTP API.
type apiClient struct {
	baseURL    string
	botID      string
	email      string
	password   string
	httpClient *http.Client
}

func newAPIClient(baseURL string, botID string, email string, password string) *apiClient {
	return &apiClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		botID:      botID,
		email:      email,
		password:   password,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// converse posts one user message. Every non-success reply is surfaced as
// errConverseFailed so the bridge can refresh the token and retry.
func (c *apiClient) converse(ctx context.Context, token string, userID string, text string) ([]ConverseResponse, error) {
	endpoint := fmt.Sprintf("%s/api/v1/bots/%s/converse/%s/secured?include=nlu,state,suggestions,decision",
		c.baseURL, url.PathEscape(c.botID), url.PathEscape(userID))

	body, err := json.Marshal(map[string]string{
		"type": "text",
		"text": text,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: HTTP %d: %s", errConverseFailed, resp.StatusCode, string(raw))
	}

	var reply converseReply
	if err := json.Unmarshal(raw, &reply); err != nil {
		return nil, err
	}
	return reply.Responses, nil
}

// login authenticates against the basic auth endpoint and returns a JWT.
func (c *apiClient) login(ctx context.Context) (string, error) {
	endpoint := c.baseURL + "/api/v1/auth/login/basic/default"

	body, err := json.Marshal(map[string]string{
		"email":    c.email,
		"password": c.password,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("login returned HTTP %d: %s", resp.StatusCode, string(raw))
	}

	var reply loginReply
	if err := json.Unmarshal(raw, &reply); err != nil {
		return "", err
	}
	if reply.Payload.JWT == "" {
		return "", fmt.Errorf("login reply carried no token")
	}
	return reply.Payload.JWT, nil
}

// fetchFile downloads a file response attachment.
func (c *apiClient) fetchFile(ctx context.Context, fileURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, "", err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("file fetch returned HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", err
	}

	mimeType := resp.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	return data, mimeType, nil
}
