package models

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/mmdatafocus/threepl_backend/config"
	"github.com/mmdatafocus/threepl_backend/utils"
	"gorm.io/gorm"
)

// Outbox publish statuses for OutboxMessage.PublishStatus.
const (
	OutboxPublishStatusPending    = "PENDING"
	OutboxPublishStatusProcessing = "PROCESSING"
	OutboxPublishStatusSent       = "SENT"
	OutboxPublishStatusFailed     = "FAILED"
	OutboxPublishStatusDead       = "DEAD"
)

const (
	EventInvoiceGenerated           = "invoice.generated"
	EventInvoiceStatusChanged       = "invoice.status_changed"
	EventInventoryTransactionPosted = "inventory.transaction.posted"

	OutboxReferenceInvoice = "invoice"
	OutboxReferenceProduct = "product"
)

// OutboxMessage is written in the same transaction as the change it announces and published
// after commit by the dispatcher.
type OutboxMessage struct {
	ID               int        `gorm:"primary_key;index:idx_outbox_dispatch,priority:3" json:"id"`
	EventType        string     `gorm:"size:60;not null;index" json:"event_type"`
	ReferenceType    string     `gorm:"size:30;not null" json:"reference_type"`
	ReferenceId      int        `gorm:"not null" json:"reference_id"`
	Payload          []byte     `json:"payload"`
	PublishStatus    string     `gorm:"size:20;index;not null;default:'PENDING';index:idx_outbox_dispatch,priority:1" json:"publish_status"`
	PublishAttempts  int        `gorm:"not null;default:0" json:"publish_attempts"`
	NextAttemptAt    *time.Time `gorm:"index;index:idx_outbox_dispatch,priority:2" json:"next_attempt_at"`
	LockedAt         *time.Time `gorm:"index" json:"locked_at"`
	LockedBy         *string    `gorm:"size:100" json:"locked_by"`
	LastPublishError *string    `gorm:"type:text" json:"last_publish_error"`
	PublishedAt      *time.Time `gorm:"index" json:"published_at"`
	PubSubMessageId  *string    `gorm:"size:255" json:"pubsub_message_id"`
	CorrelationId    string     `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt        time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// PublishEvent queues obj as eventType inside tx.
func PublishEvent(tx *gorm.DB, eventType string, referenceType string, referenceId int, obj interface{}) error {
	payload, err := json.Marshal(obj)
	if err != nil {
		return err
	}
	correlationId := ""
	if tx.Statement != nil && tx.Statement.Context != nil {
		correlationId, _ = utils.GetCorrelationIdFromContext(tx.Statement.Context)
	}
	if correlationId == "" {
		correlationId = uuid.NewString()
	}
	msg := OutboxMessage{
		EventType:     eventType,
		ReferenceType: referenceType,
		ReferenceId:   referenceId,
		Payload:       payload,
		PublishStatus: OutboxPublishStatusPending,
		CorrelationId: correlationId,
	}
	return tx.Create(&msg).Error
}

func ConvertToEventMessage(record OutboxMessage) config.EventMessage {
	return config.EventMessage{
		ID:            record.ID,
		EventType:     record.EventType,
		ReferenceType: record.ReferenceType,
		ReferenceId:   record.ReferenceId,
		OccurredAt:    record.CreatedAt,
		Payload:       json.RawMessage(record.Payload),
		CorrelationId: record.CorrelationId,
	}
}

// ReplayOutboxMessage re-queues a FAILED or DEAD message for immediate dispatch.
func ReplayOutboxMessage(ctx context.Context, db *gorm.DB, id int) (*OutboxMessage, error) {
	var msg OutboxMessage
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		found, err := utils.FetchModelForUpdate[OutboxMessage](tx, id)
		if err != nil {
			return err
		}
		if found.PublishStatus != OutboxPublishStatusFailed && found.PublishStatus != OutboxPublishStatusDead {
			return NewValidationError("id", "message is %s; only FAILED or DEAD messages can be replayed", found.PublishStatus)
		}
		now := time.Now().UTC()
		if err := tx.Model(found).Updates(map[string]interface{}{
			"publish_status":     OutboxPublishStatusFailed,
			"publish_attempts":   0,
			"next_attempt_at":    &now,
			"locked_at":          nil,
			"locked_by":          nil,
			"last_publish_error": nil,
		}).Error; err != nil {
			return err
		}
		return tx.First(&msg, id).Error
	})
	if err != nil {
		return nil, err
	}
	return &msg, nil
}
