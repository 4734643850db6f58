package provider

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/nerrad567/thinglink-core/internal/infrastructure/mqtt"
)

type published struct {
	topic   string
	payload []byte
}

// fakeTransport records publishes and subscriptions. reply, when set,
// is called for each request and may answer through deliver.
type fakeTransport struct {
	mu         sync.Mutex
	subs       map[string]mqtt.MessageHandler
	published  []published
	publishErr error
	subErr     map[string]error
	reply      func(t *fakeTransport, req request)
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{subs: make(map[string]mqtt.MessageHandler), subErr: make(map[string]error)}
}

func (f *fakeTransport) PublishContext(_ context.Context, topic string, payload []byte, _ byte, _ bool) error {
	f.mu.Lock()
	if f.publishErr != nil {
		err := f.publishErr
		f.mu.Unlock()
		return err
	}
	f.published = append(f.published, published{topic: topic, payload: append([]byte(nil), payload...)})
	reply := f.reply
	f.mu.Unlock()

	if reply != nil {
		var req request
		if err := json.Unmarshal(payload, &req); err == nil {
			reply(f, req)
		}
	}
	return nil
}

func (f *fakeTransport) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.subErr[topic]; err != nil {
		return err
	}
	f.subs[topic] = handler
	return nil
}

func (f *fakeTransport) Unsubscribe(topic string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.subs, topic)
	return nil
}

func (f *fakeTransport) QoS() byte { return 1 }

func (f *fakeTransport) subscribed(topic string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.subs[topic]
	return ok
}

// deliver routes a message to the subscription whose filter matches.
func (f *fakeTransport) deliver(topic string, payload []byte) error {
	f.mu.Lock()
	var handler mqtt.MessageHandler
	for filter, h := range f.subs {
		if topicMatches(filter, topic) {
			handler = h
			break
		}
	}
	f.mu.Unlock()
	if handler == nil {
		return nil
	}
	return handler(topic, payload)
}

func (f *fakeTransport) requests() []published {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]published(nil), f.published...)
}

// topicMatches implements the MQTT + and # wildcards.
func topicMatches(filter, topic string) bool {
	fp := strings.Split(filter, "/")
	tp := strings.Split(topic, "/")
	for i, seg := range fp {
		if seg == "#" {
			return true
		}
		if i >= len(tp) {
			return false
		}
		if seg != "+" && seg != tp[i] {
			return false
		}
	}
	return len(fp) == len(tp)
}

// respond answers req with success and data.
func respond(t *fakeTransport, topics Topics, req request, data any) {
	raw, _ := json.Marshal(data)
	resp, _ := json.Marshal(response{RequestID: req.RequestID, Success: true, Data: raw})
	_ = t.deliver(topics.Response(req.RequestID), resp)
}

func respondError(t *fakeTransport, topics Topics, req request, code, msg string) {
	resp, _ := json.Marshal(response{RequestID: req.RequestID, Error: &responseError{Code: code, Message: msg}})
	_ = t.deliver(topics.Response(req.RequestID), resp)
}
