package workflow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mmdatafocus/threepl_backend/config"
	"github.com/mmdatafocus/threepl_backend/models"
	"github.com/mmdatafocus/threepl_backend/testutil"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fakePublisher struct {
	mu        sync.Mutex
	fail      bool
	published []config.EventMessage
}

func (p *fakePublisher) Publish(ctx context.Context, msg config.EventMessage) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return "", errors.New("broker unavailable")
	}
	p.published = append(p.published, msg)
	return "msg-" + msg.EventType, nil
}

func queueEvent(t *testing.T, db *gorm.DB) *models.OutboxMessage {
	t.Helper()
	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		return models.PublishEvent(tx, models.EventInvoiceGenerated, models.OutboxReferenceInvoice, 1, map[string]int{"invoice_id": 1})
	}))
	var msg models.OutboxMessage
	require.NoError(t, db.Order("id DESC").First(&msg).Error)
	return &msg
}

func reload(t *testing.T, db *gorm.DB, id int) *models.OutboxMessage {
	t.Helper()
	var msg models.OutboxMessage
	require.NoError(t, db.First(&msg, id).Error)
	return &msg
}

func TestOutboxDispatcher_Sends(t *testing.T) {
	db := testutil.NewTestDB(t)
	logger, _ := test.NewNullLogger()
	pub := &fakePublisher{}
	msg := queueEvent(t, db)

	d := NewOutboxDispatcher(db, logger, pub)
	sent, err := d.DispatchOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sent)

	require.Len(t, pub.published, 1)
	assert.Equal(t, models.EventInvoiceGenerated, pub.published[0].EventType)
	assert.Equal(t, msg.CorrelationId, pub.published[0].CorrelationId)
	assert.JSONEq(t, `{"invoice_id":1}`, string(pub.published[0].Payload))

	got := reload(t, db, msg.ID)
	assert.Equal(t, models.OutboxPublishStatusSent, got.PublishStatus)
	assert.Equal(t, 1, got.PublishAttempts)
	require.NotNil(t, got.PubSubMessageId)
	assert.Equal(t, "msg-"+models.EventInvoiceGenerated, *got.PubSubMessageId)
	assert.Nil(t, got.LockedBy)

	sent, err = d.DispatchOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, sent)
}

func TestOutboxDispatcher_FailureBacksOffThenDies(t *testing.T) {
	db := testutil.NewTestDB(t)
	logger, hook := test.NewNullLogger()
	pub := &fakePublisher{fail: true}
	msg := queueEvent(t, db)

	d := NewOutboxDispatcher(db, logger, pub)
	d.MaxAttempts = 2
	d.InitialBackoff = time.Hour

	sent, err := d.DispatchOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, sent)

	got := reload(t, db, msg.ID)
	assert.Equal(t, models.OutboxPublishStatusFailed, got.PublishStatus)
	require.NotNil(t, got.LastPublishError)
	assert.Equal(t, "broker unavailable", *got.LastPublishError)
	require.NotNil(t, got.NextAttemptAt)
	assert.True(t, got.NextAttemptAt.After(time.Now().Add(30*time.Minute)))

	// not due yet
	_, err = d.DispatchOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, reload(t, db, msg.ID).PublishAttempts)

	require.NoError(t, db.Model(&models.OutboxMessage{}).Where("id = ?", msg.ID).Update("next_attempt_at", time.Now().UTC().Add(-time.Second)).Error)
	_, err = d.DispatchOnce(context.Background())
	require.NoError(t, err)

	got = reload(t, db, msg.ID)
	assert.Equal(t, models.OutboxPublishStatusDead, got.PublishStatus)
	assert.Equal(t, 2, got.PublishAttempts)
	assert.Equal(t, "outbox.publish.dead: broker unavailable", hook.LastEntry().Message)

	// replay puts it back in line
	replayed, err := models.ReplayOutboxMessage(context.Background(), db, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OutboxPublishStatusFailed, replayed.PublishStatus)
	assert.Zero(t, replayed.PublishAttempts)

	pub.fail = false
	sent, err = d.DispatchOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	assert.Equal(t, models.OutboxPublishStatusSent, reload(t, db, msg.ID).PublishStatus)

	_, err = models.ReplayOutboxMessage(context.Background(), db, msg.ID)
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestOutboxDispatcher_ReclaimsStaleLock(t *testing.T) {
	db := testutil.NewTestDB(t)
	pub := &fakePublisher{}
	msg := queueEvent(t, db)

	stale := time.Now().UTC().Add(-time.Hour)
	owner := "crashed"
	require.NoError(t, db.Model(&models.OutboxMessage{}).Where("id = ?", msg.ID).Updates(map[string]interface{}{
		"publish_status": models.OutboxPublishStatusProcessing,
		"locked_at":      &stale,
		"locked_by":      &owner,
	}).Error)

	d := NewOutboxDispatcher(db, nil, pub)
	sent, err := d.DispatchOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
}

func TestOutboxDispatcher_NilPublisherIsNoop(t *testing.T) {
	db := testutil.NewTestDB(t)
	queueEvent(t, db)
	sent, err := NewOutboxDispatcher(db, nil, nil).DispatchOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, sent)
}

func TestRetryBackoff(t *testing.T) {
	assert.Equal(t, 5*time.Second, retryBackoff(5*time.Second, 1))
	assert.Equal(t, 20*time.Second, retryBackoff(5*time.Second, 3))
	assert.Equal(t, 10*time.Minute, retryBackoff(5*time.Second, 30))
}
