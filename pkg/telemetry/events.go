package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event represents an operational event emitted by the provisioning workflow.
type Event struct {
	// ID is the unique identifier for this event.
	ID string `json:"id"`

	// Type is the event type (e.g., "workflow.started", "stack.applied").
	Type string `json:"type"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// Level is the event severity (info, warning, error).
	Level string `json:"level"`

	// Message is a human-readable event message.
	Message string `json:"message"`

	// RequestID is the project-creation request id, if applicable.
	RequestID int64 `json:"request_id,omitempty"`

	// JobID is the single-resource job token, if applicable.
	JobID string `json:"job_id,omitempty"`

	// Project is the project name, if applicable.
	Project string `json:"project,omitempty"`

	// Details contains additional event-specific data.
	Details map[string]interface{} `json:"details,omitempty"`
}

// EventSubscriber receives published events.
type EventSubscriber func(event Event)

// EventFilter decides whether an event is delivered to a subscriber.
type EventFilter func(event Event) bool

// EventPublisher buffers and delivers events to subscribers.
type EventPublisher struct {
	config      EventsConfig
	buffer      chan Event
	subscribers []subscriberEntry
	mu          sync.RWMutex
	done        chan struct{}
	wg          sync.WaitGroup
}

type subscriberEntry struct {
	subscriber EventSubscriber
	filter     EventFilter
}

// NewEventPublisher creates a new event publisher with the given configuration.
func NewEventPublisher(cfg EventsConfig) (*EventPublisher, error) {
	ep := &EventPublisher{
		config: cfg,
		done:   make(chan struct{}),
	}

	if !cfg.Enabled {
		return ep, nil
	}

	ep.buffer = make(chan Event, cfg.BufferSize)

	if cfg.EnableAsync {
		ep.wg.Add(1)
		go ep.processEvents()
	}

	return ep, nil
}

// Publish publishes an event to all matching subscribers.
func (ep *EventPublisher) Publish(event Event) error {
	if !ep.config.Enabled {
		return nil
	}

	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.Level == "" {
		event.Level = "info"
	}

	if !ep.config.EnableAsync {
		ep.deliverEvent(event)
		return nil
	}

	select {
	case ep.buffer <- event:
		return nil
	default:
		return fmt.Errorf("event buffer full, dropping event %s", event.Type)
	}
}

// PublishWorkflowStarted publishes a workflow admission event.
func (ep *EventPublisher) PublishWorkflowStarted(requestID int64, project, platform string) error {
	return ep.Publish(Event{
		Type:      "workflow.started",
		Message:   fmt.Sprintf("project creation started for %s", project),
		RequestID: requestID,
		Project:   project,
		Details:   map[string]interface{}{"platform": platform},
	})
}

// PublishStepCompleted publishes a workflow step completion event.
func (ep *EventPublisher) PublishStepCompleted(requestID int64, project, step string, duration time.Duration) error {
	return ep.Publish(Event{
		Type:      "workflow.step_completed",
		Message:   fmt.Sprintf("step %s completed", step),
		RequestID: requestID,
		Project:   project,
		Details: map[string]interface{}{
			"step":        step,
			"duration_ms": duration.Milliseconds(),
		},
	})
}

// PublishWorkflowCompleted publishes a terminal workflow event.
func (ep *EventPublisher) PublishWorkflowCompleted(requestID int64, project, status string, duration time.Duration) error {
	level := "info"
	if status == "Failed" {
		level = "error"
	}
	return ep.Publish(Event{
		Type:      "workflow.completed",
		Level:     level,
		Message:   fmt.Sprintf("project creation finished with status %s", status),
		RequestID: requestID,
		Project:   project,
		Details: map[string]interface{}{
			"status":      status,
			"duration_ms": duration.Milliseconds(),
		},
	})
}

// PublishStackApplied publishes a stack apply event.
func (ep *EventPublisher) PublishStackApplied(project, stackName string, duration time.Duration) error {
	return ep.Publish(Event{
		Type:    "stack.applied",
		Message: fmt.Sprintf("stack %s applied", stackName),
		Project: project,
		Details: map[string]interface{}{
			"stack":       stackName,
			"duration_ms": duration.Milliseconds(),
		},
	})
}

// PublishStackDestroyed publishes a compensating destroy event.
func (ep *EventPublisher) PublishStackDestroyed(project, stackName string, succeeded bool) error {
	level := "warning"
	if !succeeded {
		level = "error"
	}
	return ep.Publish(Event{
		Type:    "stack.destroyed",
		Level:   level,
		Message: fmt.Sprintf("compensating destroy for stack %s", stackName),
		Project: project,
		Details: map[string]interface{}{
			"stack":     stackName,
			"succeeded": succeeded,
		},
	})
}

// PublishRepositoryCreated publishes a repository creation event.
func (ep *EventPublisher) PublishRepositoryCreated(requestID int64, project, repoURL string) error {
	return ep.Publish(Event{
		Type:      "repository.created",
		Message:   fmt.Sprintf("repository created for %s", project),
		RequestID: requestID,
		Project:   project,
		Details:   map[string]interface{}{"url": repoURL},
	})
}

// PublishRepositoryDeleted publishes a compensating repository deletion event.
func (ep *EventPublisher) PublishRepositoryDeleted(requestID int64, project string, succeeded bool) error {
	level := "warning"
	if !succeeded {
		level = "error"
	}
	return ep.Publish(Event{
		Type:      "repository.deleted",
		Level:     level,
		Message:   fmt.Sprintf("compensating repository delete for %s", project),
		RequestID: requestID,
		Project:   project,
		Details:   map[string]interface{}{"succeeded": succeeded},
	})
}

// Subscribe registers a subscriber with an optional filter.
func (ep *EventPublisher) Subscribe(subscriber EventSubscriber, filter EventFilter) {
	ep.mu.Lock()
	defer ep.mu.Unlock()
	ep.subscribers = append(ep.subscribers, subscriberEntry{
		subscriber: subscriber,
		filter:     filter,
	})
}

// processEvents drains the buffer and delivers events in batches.
func (ep *EventPublisher) processEvents() {
	defer ep.wg.Done()

	ticker := time.NewTicker(ep.config.FlushInterval)
	defer ticker.Stop()

	batch := make([]Event, 0, ep.config.MaxBatchSize)

	flush := func() {
		for _, event := range batch {
			ep.deliverEvent(event)
		}
		batch = batch[:0]
	}

	for {
		select {
		case event := <-ep.buffer:
			batch = append(batch, event)
			if len(batch) >= ep.config.MaxBatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-ep.done:
			// Drain remaining events before shutdown
			for {
				select {
				case event := <-ep.buffer:
					batch = append(batch, event)
				default:
					flush()
					return
				}
			}
		}
	}
}

// deliverEvent delivers an event to all matching subscribers.
func (ep *EventPublisher) deliverEvent(event Event) {
	ep.mu.RLock()
	defer ep.mu.RUnlock()

	for _, entry := range ep.subscribers {
		if entry.filter != nil && !entry.filter(event) {
			continue
		}
		entry.subscriber(event)
	}
}

// Shutdown stops the publisher and flushes pending events.
func (ep *EventPublisher) Shutdown(ctx context.Context) error {
	if !ep.config.Enabled || !ep.config.EnableAsync {
		return nil
	}

	close(ep.done)

	finished := make(chan struct{})
	go func() {
		ep.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// FilterByLevel returns a filter that only passes events at or above minLevel.
func FilterByLevel(minLevel string) EventFilter {
	rank := map[string]int{"info": 0, "warning": 1, "error": 2}
	min := rank[minLevel]
	return func(event Event) bool {
		return rank[event.Level] >= min
	}
}

// FilterByType returns a filter that only passes events of the given types.
func FilterByType(types ...string) EventFilter {
	allowed := make(map[string]bool, len(types))
	for _, t := range types {
		allowed[t] = true
	}
	return func(event Event) bool {
		return allowed[event.Type]
	}
}

// FilterByProject returns a filter that only passes events for one project.
func FilterByProject(project string) EventFilter {
	return func(event Event) bool {
		return event.Project == project
	}
}
