package services

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/yeremiapane/kitchen-display/models"
)

// Broadcaster is the websocket side of the feed (kds.Hub).
type Broadcaster interface {
	BroadcastNewOrder(order models.Order)
	BroadcastStatusChange(id uint, status models.Status)
	BroadcastRefreshHint()
}

// ChangeMonitor membaca outbox db_changes dan menyiarkan event ke hub
// websocket dan, bila ada, ke exchange RabbitMQ.
type ChangeMonitor struct {
	DB        *gorm.DB
	Hub       Broadcaster
	Publisher EventPublisher
	StopChan  chan struct{}
	Interval  time.Duration
	BatchSize int
	Log       logrus.FieldLogger

	stopOnce sync.Once
}

func NewChangeMonitor(db *gorm.DB, hub Broadcaster, publisher EventPublisher, log logrus.FieldLogger) *ChangeMonitor {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &ChangeMonitor{
		DB:        db,
		Hub:       hub,
		Publisher: publisher,
		StopChan:  make(chan struct{}),
		Interval:  500 * time.Millisecond,
		BatchSize: 100,
		Log:       log.WithField("component", "change_monitor"),
	}
}

func (cm *ChangeMonitor) Start() {
	go func() {
		ticker := time.NewTicker(cm.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				cm.CheckChanges(context.Background())
			case <-cm.StopChan:
				return
			}
		}
	}()
}

// Stop is safe to call more than once.
func (cm *ChangeMonitor) Stop() {
	cm.stopOnce.Do(func() { close(cm.StopChan) })
}

// CheckChanges publishes one batch of unprocessed changes in order and marks
// them processed. It returns how many rows were handled.
func (cm *ChangeMonitor) CheckChanges(ctx context.Context) int {
	var changes []models.DBChange
	if err := cm.DB.WithContext(ctx).
		Where("processed = ?", false).
		Order("id ASC").
		Limit(cm.BatchSize).
		Find(&changes).Error; err != nil {
		cm.Log.WithError(err).Error("fetch changes")
		return 0
	}
	if len(changes) == 0 {
		return 0
	}

	ids := make([]uint, 0, len(changes))
	for _, change := range changes {
		if change.TableName == "orders" {
			cm.processOrderChange(ctx, change)
		}
		ids = append(ids, change.ID)
	}

	if err := cm.DB.WithContext(ctx).Model(&models.DBChange{}).
		Where("id IN ?", ids).
		Update("processed", true).Error; err != nil {
		cm.Log.WithError(err).Error("mark changes processed")
		return 0
	}

	cm.Log.WithField("count", len(changes)).Debug("processed changes")
	return len(changes)
}

func (cm *ChangeMonitor) processOrderChange(ctx context.Context, change models.DBChange) {
	log := cm.Log.WithFields(logrus.Fields{"order_id": change.RecordID, "action": change.ActionType})

	switch change.ActionType {
	case models.ActionInsert:
		var order models.Order
		if err := cm.DB.WithContext(ctx).Preload("OrderItems").First(&order, change.RecordID).Error; err != nil {
			log.WithError(err).Warn("order vanished before broadcast")
			return
		}
		cm.Hub.BroadcastNewOrder(order)
		cm.publish(ctx, models.EventNewOrder, order)
	case models.ActionStatus:
		status := models.Status(change.Payload)
		cm.Hub.BroadcastStatusChange(uint(change.RecordID), status)
		cm.publish(ctx, models.EventOrderStatusChanged, models.StatusChange{ID: uint(change.RecordID), Status: status})
	case models.ActionPriority, models.ActionRefresh:
		// priority travels with the next snapshot
		cm.Hub.BroadcastRefreshHint()
		cm.publish(ctx, models.EventRefreshHint, nil)
	default:
		log.Warn("unknown change action")
	}
}

func (cm *ChangeMonitor) publish(ctx context.Context, event string, data interface{}) {
	if cm.Publisher == nil {
		return
	}
	if err := cm.Publisher.Publish(ctx, event, data); err != nil {
		cm.Log.WithError(err).WithField("event", event).Warn("amqp publish failed")
	}
}
