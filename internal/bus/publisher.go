package bus

import "fmt"

// StagePublisher is the narrow handle stages receive. It can announce
// informational progress but refuses lifecycle kinds, which only the
// scheduler may publish.
type StagePublisher struct {
	bus    *Bus
	source string
}

// PublisherFor binds a publishing handle to a stage name.
func (b *Bus) PublisherFor(source string) *StagePublisher {
	return &StagePublisher{bus: b, source: source}
}

// Progress publishes an informational update event.
func (p *StagePublisher) Progress(message string, fields map[string]any) error {
	if p == nil || p.bus == nil {
		return nil
	}
	payload := map[string]any{"message": message}
	for key, value := range fields {
		payload[key] = value
	}
	return p.bus.Publish(Event{
		Topic:   TopicUpdate,
		Kind:    KindProgress,
		Source:  p.source,
		Payload: payload,
	})
}

// Publish forwards a pre-built event after rejecting lifecycle kinds.
func (p *StagePublisher) Publish(event Event) error {
	if p == nil || p.bus == nil {
		return nil
	}
	if event.Kind.IsLifecycle() {
		return fmt.Errorf("bus: stage %s may not publish lifecycle event %s", p.source, event.Kind)
	}
	event.Source = p.source
	return p.bus.Publish(event)
}
