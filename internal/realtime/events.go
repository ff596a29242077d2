// file: internal/realtime/events.go
// version: 2.0.0
// guid: 9e8d7f6a-5c4b-3a21-0f9e-8d7c6b5a4392

// Package realtime streams library events to HTTP clients as Server-Sent
// Events.
package realtime

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	ulid "github.com/oklog/ulid/v2"

	"github.com/jdfalk/media-library/internal/logger"
)

// EventType defines the type of real-time event
type EventType string

const (
	EventRunStarted       EventType = "run.started"
	EventRunProgress      EventType = "run.progress"
	EventRunFinished      EventType = "run.finished"
	EventLibraryScanned   EventType = "library.scanned"
	EventCacheInvalidated EventType = "cache.invalidated"
	EventConnected        EventType = "connection.established"
)

// DefaultHeartbeat is how often an idle stream receives a heartbeat.
const DefaultHeartbeat = 15 * time.Second

// Event represents a real-time event to send to clients. Topic is the
// enrichment run ID for run events and empty for library-wide events.
type Event struct {
	Type      EventType      `json:"type"`
	Topic     string         `json:"topic,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data"`
}

// Client represents a connected SSE client
type Client struct {
	ID      string
	Channel chan *Event

	mu     sync.RWMutex
	topics map[string]bool
}

// NewClient creates a new SSE client
func NewClient(id string) *Client {
	return &Client{
		ID:      id,
		Channel: make(chan *Event, 100),
		topics:  make(map[string]bool),
	}
}

// Subscribe limits the client to events of topic. A client without
// subscriptions receives everything.
func (c *Client) Subscribe(topic string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.topics[topic] = true
}

// Unsubscribe removes topic from the client's subscriptions.
func (c *Client) Unsubscribe(topic string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.topics, topic)
}

// Wants reports whether an event with topic should reach the client.
func (c *Client) Wants(topic string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return topic == "" || len(c.topics) == 0 || c.topics[topic]
}

// EventHub manages SSE connections and event distribution
type EventHub struct {
	mu        sync.RWMutex
	clients   map[string]*Client
	log       *logger.Logger
	heartbeat time.Duration
}

// NewEventHub creates a new event hub
func NewEventHub(log *logger.Logger) *EventHub {
	if log == nil {
		log = logger.Nop()
	}
	return &EventHub{
		clients:   make(map[string]*Client),
		log:       log,
		heartbeat: DefaultHeartbeat,
	}
}

// RegisterClient registers a new client
func (h *EventHub) RegisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client.ID] = client
	h.log.Debugf("client %s registered, total clients: %d", client.ID, len(h.clients))
}

// UnregisterClient removes a client and closes its channel.
func (h *EventHub) UnregisterClient(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if client, exists := h.clients[clientID]; exists {
		close(client.Channel)
		delete(h.clients, clientID)
		h.log.Debugf("client %s unregistered, remaining clients: %d", clientID, len(h.clients))
	}
}

// Close ends every open stream.
func (h *EventHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, client := range h.clients {
		close(client.Channel)
		delete(h.clients, id)
	}
}

// Broadcast sends an event to every interested client. Slow clients drop
// events rather than block the publisher.
func (h *EventHub) Broadcast(event *Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, client := range h.clients {
		if !client.Wants(event.Topic) {
			continue
		}
		select {
		case client.Channel <- event:
		default:
			h.log.Warnf("client %s channel full, dropping %s event", client.ID, event.Type)
		}
	}
}

// Publish broadcasts an event of type t stamped with the current time.
func (h *EventHub) Publish(t EventType, topic string, data map[string]any) {
	h.Broadcast(&Event{Type: t, Topic: topic, Timestamp: time.Now(), Data: data})
}

// SendRunProgress publishes the progress of an enrichment run.
func (h *EventHub) SendRunProgress(runID string, done, total int) {
	h.Publish(EventRunProgress, runID, map[string]any{
		"run_id":     runID,
		"done":       done,
		"total":      total,
		"percentage": calculatePercentage(done, total),
	})
}

// ClientCount returns the number of connected clients
func (h *EventHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleSSE streams events until the client disconnects. ?run=<id> limits
// the stream to one enrichment run plus library-wide events.
func (h *EventHub) HandleSSE(c *gin.Context) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache, no-transform")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	clientID := ulid.Make().String()
	client := NewClient(clientID)
	if runID := c.Query("run"); runID != "" {
		client.Subscribe(runID)
	}

	h.RegisterClient(client)
	defer h.UnregisterClient(clientID)

	if err := writeEvent(c, &Event{
		Type:      EventConnected,
		Timestamp: time.Now(),
		Data:      map[string]any{"client_id": clientID},
	}); err != nil {
		return
	}

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-c.Request.Context().Done():
			return
		case event, ok := <-client.Channel:
			if !ok {
				return
			}
			if err := writeEvent(c, event); err != nil {
				h.log.Debugf("client %s: %v", clientID, err)
				return
			}
		case <-ticker.C:
			if _, err := fmt.Fprint(c.Writer, ": heartbeat\n\n"); err != nil {
				return
			}
			c.Writer.Flush()
		}
	}
}

// writeEvent writes one event in SSE framing and flushes it.
func writeEvent(c *gin.Context, event *Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if _, err := fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", event.Type, data); err != nil {
		return err
	}
	c.Writer.Flush()
	return nil
}

func calculatePercentage(current, total int) int {
	if total <= 0 {
		return 0
	}
	percentage := (current * 100) / total
	if percentage > 100 {
		return 100
	}
	return percentage
}
