// Package smssync is an HTTP client speaking the SMSSync device protocol. It
// drives the server the way an Android gateway phone does and backs the
// mock-device binary.
package smssync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang-smssync-gateway/internal/domain"
)

// Client polls one SMSSync endpoint.
type Client struct {
	endpoint   string
	secret     string
	deviceID   string
	httpClient *http.Client
}

// New creates a Client for the endpoint, e.g. http://localhost:8080/smssync.
func New(endpoint, secret, deviceID string) *Client {
	return &Client{
		endpoint: endpoint,
		secret:   secret,
		deviceID: deviceID,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type syncPayload struct {
	Success  *bool             `json:"success"`
	Error    *string           `json:"error"`
	Task     string            `json:"task"`
	Secret   string            `json:"secret"`
	Messages []domain.Envelope `json:"messages"`
}

type syncResponse struct {
	Payload      syncPayload `json:"payload"`
	MessageUUIDs []string    `json:"message_uuids"`
}

// Receive posts an SMS the phone received and returns the server's replies.
func (c *Client) Receive(ctx context.Context, from, sentTo, text, hash string) ([]domain.Envelope, error) {
	form := url.Values{
		"from":           {from},
		"sent_to":        {sentTo},
		"message":        {text},
		"hash":           {hash},
		"message_id":     {hash},
		"device_id":      {c.deviceID},
		"sent_timestamp": {fmt.Sprint(time.Now().UnixMilli())},
		"secret":         {c.secret},
	}

	var out syncResponse
	if err := c.do(ctx, http.MethodPost, "", "application/x-www-form-urlencoded", []byte(form.Encode()), &out); err != nil {
		return nil, err
	}
	return out.Payload.Messages, nil
}

// Pending fetches the envelopes the phone should send.
func (c *Client) Pending(ctx context.Context) ([]domain.Envelope, error) {
	var out syncResponse
	if err := c.do(ctx, http.MethodGet, "send", "", nil, &out); err != nil {
		return nil, err
	}
	return out.Payload.Messages, nil
}

// Acknowledge reports envelopes queued on the phone and returns the ids the
// server accepted.
func (c *Client) Acknowledge(ctx context.Context, uuids []string) ([]string, error) {
	body, err := json.Marshal(map[string]any{"queued_messages": uuids})
	if err != nil {
		return nil, fmt.Errorf("marshal sent request: %w", err)
	}

	var out syncResponse
	if err := c.do(ctx, http.MethodPost, "sent", "application/json", body, &out); err != nil {
		return nil, err
	}
	return out.MessageUUIDs, nil
}

// AwaitingReports lists the ids the server wants delivery reports for.
func (c *Client) AwaitingReports(ctx context.Context) ([]string, error) {
	var out syncResponse
	if err := c.do(ctx, http.MethodGet, "result", "", nil, &out); err != nil {
		return nil, err
	}
	return out.MessageUUIDs, nil
}

type deliveryReport struct {
	UUID                   string `json:"uuid"`
	SentResultCode         int    `json:"sent_result_code"`
	SentResultMessage      string `json:"sent_result_message"`
	DeliveredResultCode    int    `json:"delivered_result_code"`
	DeliveredResultMessage string `json:"delivered_result_message"`
}

// ReportDelivered reports successful delivery for each id and returns how
// many messages the server marked delivered.
func (c *Client) ReportDelivered(ctx context.Context, uuids []string) (int, error) {
	reports := make([]deliveryReport, 0, len(uuids))
	for _, u := range uuids {
		reports = append(reports, deliveryReport{
			UUID:                   u,
			SentResultMessage:      "SMSSync Message Sent",
			DeliveredResultMessage: "SMS Delivered",
		})
	}
	body, err := json.Marshal(map[string]any{"message_result": reports})
	if err != nil {
		return 0, fmt.Errorf("marshal result request: %w", err)
	}

	var out struct {
		Messages []json.RawMessage `json:"messages"`
	}
	if err := c.do(ctx, http.MethodPost, "result", "application/json", body, &out); err != nil {
		return 0, err
	}
	return len(out.Messages), nil
}

func (c *Client) do(ctx context.Context, method, task, contentType string, body []byte, out any) error {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return fmt.Errorf("parse endpoint: %w", err)
	}
	q := u.Query()
	if task != "" {
		q.Set("task", task)
	}
	if c.secret != "" && method == http.MethodGet {
		q.Set("secret", c.secret)
	}
	u.RawQuery = q.Encode()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.secret != "" {
		req.Header.Set("X-SMSSync-Secret", c.secret)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var failed syncResponse
		_ = json.NewDecoder(resp.Body).Decode(&failed)
		if failed.Payload.Error != nil {
			return fmt.Errorf("server returned %d: %s", resp.StatusCode, *failed.Payload.Error)
		}
		return fmt.Errorf("server returned %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
