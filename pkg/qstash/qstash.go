package qstash

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

const maxErrorBodyBytes = 4 << 10

type Config struct {
	URL         string        `split_words:"true" default:"https://qstash.upstash.io"`
	Token       string        `split_words:"true"`
	Destination string        `split_words:"true"`
	Retries     int           `split_words:"true" default:"3"`
	Timeout     time.Duration `split_words:"true" default:"10s"`
}

// Enabled reports whether enough is configured to publish anything.
func (c Config) Enabled() bool {
	return strings.TrimSpace(c.Token) != "" && strings.TrimSpace(c.Destination) != ""
}

type Client struct {
	baseURL    string
	token      string
	retries    int
	httpClient *http.Client
}

func NewClient(cfg Config) (*Client, error) {
	baseURL := strings.TrimSpace(cfg.URL)
	if baseURL == "" {
		return nil, errors.New("qstash url is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, err
	}
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("qstash token is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		retries: cfg.Retries,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

func MustNew(cfg Config) *Client {
	client, err := NewClient(cfg)
	if err != nil {
		panic(err)
	}
	return client
}

type PublishResponse struct {
	MessageID string `json:"messageId"`
}

// Publish hands body to QStash for delivery to destination. dedupID, when
// set, lets QStash drop repeats of the same message.
func (c *Client) Publish(ctx context.Context, destination string, body []byte, dedupID string) (PublishResponse, error) {
	destination = strings.TrimSpace(destination)
	if destination == "" {
		return PublishResponse{}, errors.New("qstash destination is required")
	}

	endpoint := c.baseURL + "/v2/publish/" + destination
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return PublishResponse{}, fmt.Errorf("build qstash request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")
	if c.retries >= 0 {
		req.Header.Set("Upstash-Retries", fmt.Sprint(c.retries))
	}
	if dedupID != "" {
		req.Header.Set("Upstash-Deduplication-Id", dedupID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return PublishResponse{}, fmt.Errorf("execute qstash request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	if err != nil {
		return PublishResponse{}, fmt.Errorf("read qstash response: %w", err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return PublishResponse{}, fmt.Errorf("qstash http status=%d body=%s", resp.StatusCode, string(raw))
	}

	var out PublishResponse
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			return PublishResponse{}, fmt.Errorf("decode qstash response: %w", err)
		}
	}
	return out, nil
}

type Event struct {
	ID      string    `json:"id"`
	Topic   string    `json:"topic"`
	Key     string    `json:"key,omitempty"`
	SentAt  time.Time `json:"sent_at"`
	Payload any       `json:"payload"`
}

// Notifier publishes topic events to a single destination.
type Notifier struct {
	client      *Client
	destination string
	now         func() time.Time
}

func NewNotifier(client *Client, destination string) (*Notifier, error) {
	if client == nil {
		return nil, errors.New("qstash client is required")
	}
	if strings.TrimSpace(destination) == "" {
		return nil, errors.New("qstash destination is required")
	}
	return &Notifier{client: client, destination: strings.TrimSpace(destination), now: time.Now}, nil
}

// Notify publishes one event. Publishes that share topic and key are
// deduplicated by QStash; an empty key is never deduplicated.
func (n *Notifier) Notify(ctx context.Context, topic, key string, payload any) error {
	ev := Event{
		ID:      uuid.NewString(),
		Topic:   topic,
		Key:     key,
		SentAt:  n.now().UTC(),
		Payload: payload,
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", topic, err)
	}
	_, err = n.client.Publish(ctx, n.destination, body, dedupID(topic, key, ev.ID))
	return err
}

func dedupID(topic, key, fallback string) string {
	if strings.TrimSpace(key) == "" {
		return fallback
	}
	return topic + ":" + key
}
