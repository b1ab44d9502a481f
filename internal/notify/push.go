package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spec-kit/maintenance-dispatch/internal/config"
)

// PushMessage is the provider-independent push payload.
type PushMessage struct {
	Title string
	Body  string
	Data  map[string]string
}

// PushResult reports the delivery outcome for one token. Unregistered means
// the provider no longer recognizes the token and it should be pruned.
type PushResult struct {
	Token        string
	Unregistered bool
	Err          error
}

// Pusher delivers one message to an ordered set of device tokens and
// reports per-token success or failure.
type Pusher interface {
	Send(ctx context.Context, tokens []string, msg PushMessage) []PushResult
}

// FCMClient delivers pushes through the FCM HTTP v1 API. The v1 API takes
// one token per request, so a multi-token send fans out sequentially.
type FCMClient struct {
	endpoint   string
	projectID  string
	token      string
	httpClient *http.Client
}

// NewFCMClient creates the client. Returns nil if no project is configured,
// which disables push delivery.
func NewFCMClient(cfg config.NotifyConfig) *FCMClient {
	if cfg.FCMProjectID == "" {
		return nil
	}
	return &FCMClient{
		endpoint:  strings.TrimRight(cfg.FCMEndpoint, "/"),
		projectID: cfg.FCMProjectID,
		token:     cfg.FCMToken,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type fcmRequest struct {
	Message fcmMessage `json:"message"`
}

type fcmMessage struct {
	Token        string            `json:"token"`
	Notification fcmNotification   `json:"notification"`
	Data         map[string]string `json:"data,omitempty"`
}

type fcmNotification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type fcmErrorResponse struct {
	Error struct {
		Status  string `json:"status"`
		Message string `json:"message"`
		Details []struct {
			ErrorCode string `json:"errorCode"`
		} `json:"details"`
	} `json:"error"`
}

// Send delivers the message to every token, one request each.
func (c *FCMClient) Send(ctx context.Context, tokens []string, msg PushMessage) []PushResult {
	results := make([]PushResult, 0, len(tokens))
	for _, token := range tokens {
		results = append(results, c.sendOne(ctx, token, msg))
	}
	return results
}

func (c *FCMClient) sendOne(ctx context.Context, token string, msg PushMessage) PushResult {
	result := PushResult{Token: token}

	payload, err := json.Marshal(fcmRequest{Message: fcmMessage{
		Token:        token,
		Notification: fcmNotification{Title: msg.Title, Body: msg.Body},
		Data:         msg.Data,
	}})
	if err != nil {
		result.Err = err
		return result
	}

	url := fmt.Sprintf("%s/projects/%s/messages:send", c.endpoint, c.projectID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		result.Err = err
		return result
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		result.Err = err
		return result
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		return result
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	var fcmErr fcmErrorResponse
	_ = json.Unmarshal(body, &fcmErr)
	result.Err = fmt.Errorf("fcm send failed: %d %s", resp.StatusCode, fcmErr.Error.Status)
	result.Unregistered = isUnregistered(resp.StatusCode, fcmErr)
	return result
}

// isUnregistered detects tokens the provider reports as invalid or no
// longer registered.
func isUnregistered(status int, fcmErr fcmErrorResponse) bool {
	if status == http.StatusNotFound || fcmErr.Error.Status == "NOT_FOUND" || fcmErr.Error.Status == "UNREGISTERED" {
		return true
	}
	for _, detail := range fcmErr.Error.Details {
		if detail.ErrorCode == "UNREGISTERED" || detail.ErrorCode == "INVALID_ARGUMENT" {
			return true
		}
	}
	return false
}
