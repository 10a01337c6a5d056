package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/yeremiapane/kitchen-display/models"
)

var (
	ErrOrderNotFound     = errors.New("order not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrInvalidStatus     = errors.New("invalid status")
	ErrInvalidPriority   = errors.New("invalid priority")
	ErrInvalidOrder      = errors.New("invalid order")
)

type CreateItemInput struct {
	Name     string `json:"name" binding:"required"`
	Quantity int    `json:"quantity" binding:"required"`
	Notes    string `json:"notes"`
}

type CreateOrderInput struct {
	TableNumber         string            `json:"table_number"`
	CustomerName        string            `json:"customer_name"`
	PrepMinutes         *int              `json:"prep_minutes"`
	SpecialInstructions string            `json:"special_instructions"`
	Priority            models.Priority   `json:"priority"`
	Items               []CreateItemInput `json:"items" binding:"required"`
}

func (in CreateOrderInput) validate() error {
	if strings.TrimSpace(in.TableNumber) == "" && strings.TrimSpace(in.CustomerName) == "" {
		return fmt.Errorf("%w: table_number or customer_name is required", ErrInvalidOrder)
	}
	if len(in.Items) == 0 {
		return fmt.Errorf("%w: at least one item is required", ErrInvalidOrder)
	}
	for _, it := range in.Items {
		if strings.TrimSpace(it.Name) == "" || it.Quantity <= 0 {
			return fmt.Errorf("%w: item needs a name and a positive quantity", ErrInvalidOrder)
		}
	}
	if in.PrepMinutes != nil && *in.PrepMinutes < 0 {
		return fmt.Errorf("%w: prep_minutes must not be negative", ErrInvalidOrder)
	}
	if in.Priority != "" && !in.Priority.Valid() {
		return ErrInvalidPriority
	}
	return nil
}

// OrderService adalah order store milik feed server. Setiap perubahan
// menulis baris db_changes di transaksi yang sama.
type OrderService struct {
	db        *gorm.DB
	retention time.Duration
	now       func() time.Time
}

func NewOrderService(db *gorm.DB, retention time.Duration) *OrderService {
	if retention <= 0 {
		retention = 30 * time.Minute
	}
	return &OrderService{db: db, retention: retention, now: time.Now}
}

func (s *OrderService) Create(ctx context.Context, in CreateOrderInput) (*models.Order, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	now := s.now()
	order := models.Order{
		TableNumber:         strings.TrimSpace(in.TableNumber),
		CustomerName:        strings.TrimSpace(in.CustomerName),
		Status:              models.StatusPending,
		Priority:            models.PriorityNormal,
		PrepMinutes:         in.PrepMinutes,
		SpecialInstructions: in.SpecialInstructions,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if in.Priority != "" {
		order.Priority = in.Priority
	}
	for _, it := range in.Items {
		order.OrderItems = append(order.OrderItems, models.OrderItem{
			Name:     strings.TrimSpace(it.Name),
			Quantity: it.Quantity,
			Notes:    it.Notes,
		})
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&order).Error; err != nil {
			return fmt.Errorf("create order: %w", err)
		}
		return recordChange(tx, order.ID, models.ActionInsert, "", now)
	})
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (s *OrderService) Get(ctx context.Context, id uint) (*models.Order, error) {
	var order models.Order
	err := s.db.WithContext(ctx).Preload("OrderItems").First(&order, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// KitchenSnapshot -> order aktif plus order terminal yang masih dalam
// jendela retensi, urut waktu masuk.
func (s *OrderService) KitchenSnapshot(ctx context.Context) ([]models.Order, error) {
	cutoff := s.now().Add(-s.retention)
	active := []models.Status{models.StatusPending, models.StatusPreparing, models.StatusReady}
	terminal := []models.Status{models.StatusCompleted, models.StatusCancelled}

	var orders []models.Order
	err := s.db.WithContext(ctx).
		Preload("OrderItems").
		Where("status IN ?", active).
		Or("status IN ? AND updated_at >= ?", terminal, cutoff).
		Order("created_at ASC, id ASC").
		Find(&orders).Error
	if err != nil {
		return nil, fmt.Errorf("kitchen snapshot: %w", err)
	}
	return orders, nil
}

// UpdateStatus applies one legal transition. Repeating the current status is
// accepted without a new change row so client retries are harmless.
func (s *OrderService) UpdateStatus(ctx context.Context, id uint, next models.Status) (*models.Order, error) {
	if !next.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, next)
	}

	var order models.Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&order, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrOrderNotFound
			}
			return err
		}
		if order.Status == next {
			return nil
		}
		if !order.Status.CanTransition(next) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, order.Status, next)
		}

		now := s.now()
		updates := map[string]interface{}{"status": next, "updated_at": now}
		switch next {
		case models.StatusPreparing:
			updates["start_cooking_time"] = now
		case models.StatusReady:
			updates["finish_cooking_time"] = now
		}
		if err := tx.Model(&order).Updates(updates).Error; err != nil {
			return fmt.Errorf("update status: %w", err)
		}
		return recordChange(tx, order.ID, models.ActionStatus, string(next), now)
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

func (s *OrderService) UpdatePriority(ctx context.Context, id uint, priority models.Priority) (*models.Order, error) {
	if !priority.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPriority, priority)
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var order models.Order
		if err := tx.First(&order, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrOrderNotFound
			}
			return err
		}
		if order.Priority == priority {
			return nil
		}
		if order.Status.IsTerminal() {
			return fmt.Errorf("%w: order %d is %s", ErrInvalidTransition, id, order.Status)
		}
		now := s.now()
		if err := tx.Model(&order).Updates(map[string]interface{}{"priority": priority, "updated_at": now}).Error; err != nil {
			return fmt.Errorf("update priority: %w", err)
		}
		return recordChange(tx, order.ID, models.ActionPriority, string(priority), now)
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// RequestRefresh queues a refresh hint for every connected display.
func (s *OrderService) RequestRefresh(ctx context.Context) error {
	return recordChange(s.db.WithContext(ctx), 0, models.ActionRefresh, "", s.now())
}

func recordChange(tx *gorm.DB, recordID uint, action, payload string, at time.Time) error {
	change := models.DBChange{
		TableName:  "orders",
		RecordID:   int64(recordID),
		ActionType: action,
		Payload:    payload,
		ChangedAt:  at,
	}
	if err := tx.Create(&change).Error; err != nil {
		return fmt.Errorf("record change: %w", err)
	}
	return nil
}
