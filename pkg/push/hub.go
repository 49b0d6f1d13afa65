// Package push fans report events from the broker out to the views that
// subscribed to them.
package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"citizen-reporting-system/pkg/metrics"
	"citizen-reporting-system/pkg/models"
)

var ErrUnknownTopic = errors.New("unknown topic")

// topic dispatches under a read lock, so once an unsubscribe func returns
// the callback it removed is not running and will not run again. Callbacks
// must not unsubscribe themselves.
type topic[T models.Event] struct {
	mu   sync.RWMutex
	next uint64
	subs map[uint64]func(T)
}

func (t *topic[T]) subscribe(fn func(T)) func() {
	t.mu.Lock()
	if t.subs == nil {
		t.subs = make(map[uint64]func(T))
	}
	t.next++
	id := t.next
	t.subs[id] = fn
	t.mu.Unlock()

	return func() {
		t.mu.Lock()
		delete(t.subs, id)
		t.mu.Unlock()
	}
}

func (t *topic[T]) publish(ev T) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, fn := range t.subs {
		fn(ev)
	}
	return len(t.subs)
}

func (t *topic[T]) len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.subs)
}

// Hub implements reportview.PushChannel.
type Hub struct {
	created  topic[models.EventCreated]
	status   topic[models.EventStatusChanged]
	likes    topic[models.EventLikeCountChanged]
	comments topic[models.EventCommentCountChanged]
	log      logrus.FieldLogger
}

func NewHub(log logrus.FieldLogger) *Hub {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Hub{log: log}
}

func (h *Hub) OnCreated(fn func(models.EventCreated)) func() {
	return h.created.subscribe(fn)
}

func (h *Hub) OnStatusChanged(fn func(models.EventStatusChanged)) func() {
	return h.status.subscribe(fn)
}

func (h *Hub) OnLikeCountChanged(fn func(models.EventLikeCountChanged)) func() {
	return h.likes.subscribe(fn)
}

func (h *Hub) OnCommentCountChanged(fn func(models.EventCommentCountChanged)) func() {
	return h.comments.subscribe(fn)
}

// Subscribers counts the callbacks registered across all four topics.
func (h *Hub) Subscribers() int {
	return h.created.len() + h.status.len() + h.likes.len() + h.comments.len()
}

// Publish hands ev to every subscriber of its topic and returns how many got it.
func (h *Hub) Publish(ev models.Event) int {
	switch e := ev.(type) {
	case models.EventCreated:
		return h.created.publish(e)
	case models.EventStatusChanged:
		return h.status.publish(e)
	case models.EventLikeCountChanged:
		return h.likes.publish(e)
	case models.EventCommentCountChanged:
		return h.comments.publish(e)
	}
	return 0
}

// Decode turns a broker message into an event by its routing key.
func Decode(routingKey string, body []byte) (models.Event, error) {
	var (
		ev  models.Event
		err error
	)
	switch routingKey {
	case models.TopicCreated:
		var e models.EventCreated
		err = json.Unmarshal(body, &e)
		ev = e
	case models.TopicStatusChanged:
		var e models.EventStatusChanged
		if err = json.Unmarshal(body, &e); err == nil {
			if s, ok := models.ParseStatus(string(e.Status)); ok {
				e.Status = s
			}
		}
		ev = e
	case models.TopicLikesChanged:
		var e models.EventLikeCountChanged
		err = json.Unmarshal(body, &e)
		ev = e
	case models.TopicCommentsChanged:
		var e models.EventCommentCountChanged
		err = json.Unmarshal(body, &e)
		ev = e
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTopic, routingKey)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", models.ErrMalformedEvent, routingKey, err)
	}
	return ev, nil
}

// Consume publishes deliveries until ctx is done or the channel closes.
// Undecodable messages are logged and skipped.
func (h *Hub) Consume(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("delivery channel closed")
			}
			h.handle(d)
		}
	}
}

func (h *Hub) handle(d amqp.Delivery) {
	ev, err := Decode(d.RoutingKey, d.Body)
	if err != nil {
		metrics.Deliveries.WithLabelValues(d.RoutingKey, "malformed").Inc()
		h.log.WithError(err).WithField("routing_key", d.RoutingKey).Warn("failed to parse report event")
		return
	}
	n := h.Publish(ev)
	metrics.Deliveries.WithLabelValues(d.RoutingKey, "ok").Inc()
	h.log.WithFields(logrus.Fields{
		"routing_key": d.RoutingKey,
		"report_id":   ev.ReportID(),
		"subscribers": n,
	}).Debug("report event received")
}
