package push

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"citizen-reporting-system/pkg/models"
)

func TestDecode(t *testing.T) {
	t.Run("created", func(t *testing.T) {
		ev, err := Decode(models.TopicCreated, []byte(`{"report":{"id":"r1","status":"pending","title":"Sampah"},"version":2}`))
		require.NoError(t, err)
		created, ok := ev.(models.EventCreated)
		require.True(t, ok)
		assert.Equal(t, "r1", created.ReportID())
		assert.EqualValues(t, 2, created.Version)
	})

	t.Run("status spelling is normalised", func(t *testing.T) {
		ev, err := Decode(models.TopicStatusChanged, []byte(`{"id":"r1","status":"IN_PROGRESS"}`))
		require.NoError(t, err)
		assert.Equal(t, models.StatusInProgress, ev.(models.EventStatusChanged).Status)
	})

	t.Run("counts", func(t *testing.T) {
		ev, err := Decode(models.TopicLikesChanged, []byte(`{"id":"r1","count":7}`))
		require.NoError(t, err)
		assert.Equal(t, 7, ev.(models.EventLikeCountChanged).Count)

		ev, err = Decode(models.TopicCommentsChanged, []byte(`{"id":"r1","count":3}`))
		require.NoError(t, err)
		assert.Equal(t, 3, ev.(models.EventCommentCountChanged).Count)
	})

	t.Run("bad json", func(t *testing.T) {
		_, err := Decode(models.TopicLikesChanged, []byte(`{"id":`))
		assert.True(t, errors.Is(err, models.ErrMalformedEvent))
	})

	t.Run("unknown routing key", func(t *testing.T) {
		_, err := Decode("report.deleted", []byte(`{}`))
		assert.True(t, errors.Is(err, ErrUnknownTopic))
	})
}

func TestHub_PublishAndUnsubscribe(t *testing.T) {
	h := NewHub(nil)

	var created, likes int
	cancelCreated := h.OnCreated(func(models.EventCreated) { created++ })
	cancelLikes := h.OnLikeCountChanged(func(models.EventLikeCountChanged) { likes++ })
	assert.Equal(t, 2, h.Subscribers())

	assert.Equal(t, 1, h.Publish(models.EventCreated{Report: models.Report{ID: "r1"}}))
	assert.Equal(t, 1, h.Publish(models.EventLikeCountChanged{ID: "r1", Count: 1}))
	assert.Equal(t, 0, h.Publish(models.EventCommentCountChanged{ID: "r1", Count: 1}))

	cancelCreated()
	cancelCreated()
	assert.Equal(t, 0, h.Publish(models.EventCreated{Report: models.Report{ID: "r2"}}))
	assert.Equal(t, 1, created)
	assert.Equal(t, 1, likes)

	cancelLikes()
	assert.Zero(t, h.Subscribers())
}

func TestHub_UnsubscribeWaitsForRunningCallback(t *testing.T) {
	h := NewHub(nil)

	entered := make(chan struct{})
	release := make(chan struct{})
	var finished int32
	cancel := h.OnStatusChanged(func(models.EventStatusChanged) {
		close(entered)
		<-release
		atomic.StoreInt32(&finished, 1)
	})

	go h.Publish(models.EventStatusChanged{ID: "r1", Status: models.StatusResolved})
	<-entered

	done := make(chan struct{})
	go func() {
		cancel()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("unsubscribe returned while the callback was running")
	case <-time.After(20 * time.Millisecond):
	}
	close(release)
	<-done
	assert.EqualValues(t, 1, atomic.LoadInt32(&finished))
}

func TestHub_Consume(t *testing.T) {
	h := NewHub(nil)

	var mu sync.Mutex
	var got []string
	h.OnStatusChanged(func(e models.EventStatusChanged) {
		mu.Lock()
		got = append(got, e.ID+":"+string(e.Status))
		mu.Unlock()
	})

	deliveries := make(chan amqp.Delivery, 3)
	deliveries <- amqp.Delivery{RoutingKey: models.TopicStatusChanged, Body: []byte(`{"id":"r1","status":"resolved"}`)}
	deliveries <- amqp.Delivery{RoutingKey: models.TopicStatusChanged, Body: []byte(`not json`)}
	deliveries <- amqp.Delivery{RoutingKey: models.TopicStatusChanged, Body: []byte(`{"id":"r2","status":"rejected"}`)}
	close(deliveries)

	err := h.Consume(context.Background(), deliveries)
	assert.Error(t, err, "closed channel ends consumption")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"r1:resolved", "r2:rejected"}, got)
}

func TestHub_ConsumeStopsOnCancel(t *testing.T) {
	h := NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := h.Consume(ctx, make(chan amqp.Delivery))
	assert.ErrorIs(t, err, context.Canceled)
}
