package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"reel/internal/config"
)

const userAgent = "reel/0.1.0"

// Event identifies a notification type.
type Event string

const (
	EventNowPlaying     Event = "now_playing"
	EventRotationHalted Event = "rotation_halted"
	EventError          Event = "error"
	EventTest           Event = "test"
)

// Payload carries event-specific values.
type Payload map[string]any

// Service publishes events.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint:   topic,
		client:     &http.Client{Timeout: timeout},
		nowPlaying: cfg.Notifications.NowPlaying,
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint   string
	client     *http.Client
	nowPlaying bool
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	msg, ok := n.format(event, payload)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

func (n *ntfyService) format(event Event, payload Payload) (message, bool) {
	switch event {
	case EventNowPlaying:
		if !n.nowPlaying {
			return message{}, false
		}
		title := payloadString(payload, "title")
		identifier := payloadString(payload, "identifier")
		body := "Now playing: " + title
		if title == "" || title == identifier {
			body = "Now playing: " + identifier
		} else if identifier != "" {
			body = fmt.Sprintf("Now playing: %s (%s)", title, identifier)
		}
		if played := payloadInt(payload, "total_played"); played > 0 {
			body = fmt.Sprintf("%s\nItems played: %d", body, played)
		}
		return message{
			title: "Reel - Now Playing",
			body:  body,
			tags:  []string{"reel", "rotation", "swap"},
		}, true
	case EventRotationHalted:
		body := fmt.Sprintf("Rotation halted after %d failed swaps", payloadInt(payload, "failures"))
		if errText := payloadString(payload, "error"); errText != "" {
			body = fmt.Sprintf("%s: %s", body, errText)
		}
		body += "\nRun 'reel resume' once the playback directory is fixed"
		return message{
			title:    "Reel - Rotation Halted",
			body:     body,
			tags:     []string{"reel", "rotation", "alert"},
			priority: "high",
		}, true
	case EventError:
		var b strings.Builder
		b.WriteString("Error")
		if label := payloadString(payload, "context"); label != "" {
			b.WriteString(" in ")
			b.WriteString(label)
		}
		b.WriteString(": ")
		if errText := payloadString(payload, "error"); errText != "" {
			b.WriteString(errText)
		} else {
			b.WriteString("unknown")
		}
		return message{
			title:    "Reel - Error",
			body:     b.String(),
			tags:     []string{"reel", "error", "alert"},
			priority: "high",
		}, true
	case EventTest:
		return message{
			title:    "Reel - Test",
			body:     "Notification system test",
			tags:     []string{"reel", "test"},
			priority: "low",
		}, true
	default:
		return message{}, false
	}
}

func (n *ntfyService) send(ctx context.Context, msg message) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(msg.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if msg.title != "" {
		req.Header.Set("Title", msg.title)
	}
	if len(msg.tags) > 0 {
		req.Header.Set("Tags", strings.Join(msg.tags, ","))
	}
	if msg.priority != "" && msg.priority != "default" {
		req.Header.Set("Priority", msg.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func payloadString(payload Payload, key string) string {
	value, ok := payload[key]
	if !ok || value == nil {
		return ""
	}
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v)
	case error:
		return strings.TrimSpace(v.Error())
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func payloadInt(payload Payload, key string) int {
	switch v := payload[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	default:
		return 0
	}
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
