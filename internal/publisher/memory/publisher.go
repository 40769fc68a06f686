// Package memory keeps published observation messages in process. It encodes
// payloads exactly as the Pub/Sub publisher does so tests see the wire form.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Message is one accepted publish.
type Message struct {
	ID    string
	Topic string
	Data  []byte
}

// Decode unmarshals the message body into v.
func (m Message) Decode(v any) error {
	if err := json.Unmarshal(m.Data, v); err != nil {
		return fmt.Errorf("decode message %s: %w", m.ID, err)
	}
	return nil
}

// Publisher is a plates.Publisher backed by a slice.
type Publisher struct {
	mu     sync.Mutex
	log    []Message
	seq    map[string]int
	failer error
}

// New returns an empty Publisher.
func New() *Publisher {
	return &Publisher{seq: make(map[string]int)}
}

// Publish encodes payload as JSON and records it under topic. IDs count up per topic.
func (p *Publisher) Publish(ctx context.Context, topic string, payload any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failer != nil {
		return "", p.failer
	}
	p.seq[topic]++
	id := fmt.Sprintf("%s-%d", topic, p.seq[topic])
	p.log = append(p.log, Message{ID: id, Topic: topic, Data: data})
	return id, nil
}

// Fail makes later Publish calls return err. Fail(nil) restores normal behaviour.
func (p *Publisher) Fail(err error) {
	p.mu.Lock()
	p.failer = err
	p.mu.Unlock()
}

// Messages returns the accepted messages for topic in publish order, or every
// message when topic is empty.
func (p *Publisher) Messages(topic string) []Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []Message
	for _, m := range p.log {
		if topic == "" || m.Topic == topic {
			out = append(out, m)
		}
	}
	return out
}
