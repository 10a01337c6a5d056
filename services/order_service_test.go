package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/yeremiapane/kitchen-display/database"
	"github.com/yeremiapane/kitchen-display/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	return db
}

type serviceClock struct{ t time.Time }

func (c *serviceClock) Now() time.Time { return c.t }

func newTestOrderService(t *testing.T) (*OrderService, *gorm.DB, *serviceClock) {
	db := setupTestDB(t)
	clock := &serviceClock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	svc := NewOrderService(db, 30*time.Minute)
	svc.now = clock.Now
	return svc, db, clock
}

func sampleInput() CreateOrderInput {
	prep := 12
	return CreateOrderInput{
		TableNumber: "7",
		PrepMinutes: &prep,
		Items: []CreateItemInput{
			{Name: "Nasi Goreng", Quantity: 2},
			{Name: "Es Teh", Quantity: 1, Notes: "less sugar"},
		},
	}
}

func pendingChanges(t *testing.T, db *gorm.DB) []models.DBChange {
	t.Helper()
	var changes []models.DBChange
	require.NoError(t, db.Where("processed = ?", false).Order("id ASC").Find(&changes).Error)
	return changes
}

func TestOrderService_CreateWritesOutbox(t *testing.T) {
	svc, db, _ := newTestOrderService(t)

	order, err := svc.Create(context.Background(), sampleInput())

	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, order.Status)
	assert.Equal(t, models.PriorityNormal, order.Priority)
	require.Len(t, order.OrderItems, 2)

	changes := pendingChanges(t, db)
	require.Len(t, changes, 1)
	assert.Equal(t, models.ActionInsert, changes[0].ActionType)
	assert.Equal(t, int64(order.ID), changes[0].RecordID)
}

func TestOrderService_CreateValidation(t *testing.T) {
	svc, db, _ := newTestOrderService(t)

	noLabel := sampleInput()
	noLabel.TableNumber = ""
	badQty := sampleInput()
	badQty.Items[0].Quantity = 0
	badPriority := sampleInput()
	badPriority.Priority = "urgent"

	for _, in := range []CreateOrderInput{noLabel, badQty, {TableNumber: "1"}} {
		_, err := svc.Create(context.Background(), in)
		assert.ErrorIs(t, err, ErrInvalidOrder)
	}
	_, err := svc.Create(context.Background(), badPriority)
	assert.ErrorIs(t, err, ErrInvalidPriority)
	assert.Empty(t, pendingChanges(t, db))
}

func TestOrderService_StatusLifecycle(t *testing.T) {
	svc, db, clock := newTestOrderService(t)
	ctx := context.Background()
	order, err := svc.Create(ctx, sampleInput())
	require.NoError(t, err)

	clock.t = clock.t.Add(time.Minute)
	updated, err := svc.UpdateStatus(ctx, order.ID, models.StatusPreparing)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPreparing, updated.Status)
	require.NotNil(t, updated.StartCookingTime)
	assert.True(t, clock.t.Equal(*updated.StartCookingTime))

	_, err = svc.UpdateStatus(ctx, order.ID, models.StatusPreparing)
	require.NoError(t, err, "repeating the current status is accepted")

	_, err = svc.UpdateStatus(ctx, order.ID, models.StatusCompleted)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	updated, err = svc.UpdateStatus(ctx, order.ID, models.StatusReady)
	require.NoError(t, err)
	assert.NotNil(t, updated.FinishCookingTime)
	require.Len(t, updated.OrderItems, 2)

	_, err = svc.UpdateStatus(ctx, order.ID, models.Status("served"))
	assert.ErrorIs(t, err, ErrInvalidStatus)
	_, err = svc.UpdateStatus(ctx, 999, models.StatusReady)
	assert.ErrorIs(t, err, ErrOrderNotFound)

	var actions []string
	for _, c := range pendingChanges(t, db) {
		actions = append(actions, c.ActionType+":"+c.Payload)
	}
	assert.Equal(t, []string{"INSERT:", "STATUS:preparing", "STATUS:ready"}, actions)
}

func TestOrderService_UpdatePriority(t *testing.T) {
	svc, db, _ := newTestOrderService(t)
	ctx := context.Background()
	order, err := svc.Create(ctx, sampleInput())
	require.NoError(t, err)

	updated, err := svc.UpdatePriority(ctx, order.ID, models.PriorityHigh)
	require.NoError(t, err)
	assert.Equal(t, models.PriorityHigh, updated.Priority)

	_, err = svc.UpdatePriority(ctx, order.ID, "asap")
	assert.ErrorIs(t, err, ErrInvalidPriority)

	_, err = svc.UpdateStatus(ctx, order.ID, models.StatusCancelled)
	require.NoError(t, err)
	_, err = svc.UpdatePriority(ctx, order.ID, models.PriorityLow)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	assert.Len(t, pendingChanges(t, db), 3)
}

func TestOrderService_KitchenSnapshotHonoursRetention(t *testing.T) {
	svc, _, clock := newTestOrderService(t)
	ctx := context.Background()

	first, err := svc.Create(ctx, sampleInput())
	require.NoError(t, err)
	second, err := svc.Create(ctx, sampleInput())
	require.NoError(t, err)
	third, err := svc.Create(ctx, sampleInput())
	require.NoError(t, err)

	_, err = svc.UpdateStatus(ctx, first.ID, models.StatusCancelled)
	require.NoError(t, err)
	clock.t = clock.t.Add(20 * time.Minute)
	_, err = svc.UpdateStatus(ctx, second.ID, models.StatusCancelled)
	require.NoError(t, err)
	clock.t = clock.t.Add(15 * time.Minute)

	orders, err := svc.KitchenSnapshot(ctx)
	require.NoError(t, err)

	var ids []uint
	for _, o := range orders {
		ids = append(ids, o.ID)
		assert.NotEmpty(t, o.OrderItems)
	}
	assert.Equal(t, []uint{second.ID, third.ID}, ids)
}
