package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/yeremiapane/kitchen-display/database"
	"github.com/yeremiapane/kitchen-display/feed"
	"github.com/yeremiapane/kitchen-display/kds"
	"github.com/yeremiapane/kitchen-display/middlewares"
	"github.com/yeremiapane/kitchen-display/models"
	"github.com/yeremiapane/kitchen-display/router"
	"github.com/yeremiapane/kitchen-display/services"
	"github.com/yeremiapane/kitchen-display/utils"
)

const (
	waitFor  = 5 * time.Second
	pollTick = 20 * time.Millisecond
)

func TestMain(m *testing.M) {
	utils.InitLogger("warn")
	gin.SetMode(gin.TestMode)
	utils.SetJWTSecret("integration-secret")
	os.Exit(m.Run())
}

type feedServer struct {
	URL    string
	Orders *services.OrderService
}

// startFeed menjalankan feed server lengkap: sqlite, casbin, outbox monitor, websocket hub.
func startFeed(t *testing.T) feedServer {
	t.Helper()
	return startFeedNamed(t, "integration")
}

func startFeedNamed(t *testing.T, name string) feedServer {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	authz, err := middlewares.NewAuthorizer(db)
	require.NoError(t, err)

	hub := kds.NewHub(utils.InfoLogger)
	monitor := services.NewChangeMonitor(db, hub, nil, utils.InfoLogger)
	monitor.Interval = pollTick
	monitor.Start()

	orders := services.NewOrderService(db, 30*time.Minute)
	srv := httptest.NewServer(router.SetupFeedRouter(router.FeedDeps{
		Orders:     orders,
		Authorizer: authz,
		Hub:        hub,
	}))

	t.Cleanup(func() {
		srv.Close()
		monitor.Stop()
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return feedServer{URL: srv.URL, Orders: orders}
}

func hasNotification(e *kds.Engine, kind models.NotificationKind, id uint) bool {
	for _, n := range e.RecentNotifications() {
		if n.Kind == kind && n.OrderID == id {
			return true
		}
	}
	return false
}

func orderStatus(e *kds.Engine, id uint) models.Status {
	v, ok := e.Order(id)
	if !ok {
		return ""
	}
	return v.Status
}

// TestEndToEndIntegration menguji flow utama:
// 1. Layar dapur tersambung ke feed (websocket + snapshot)
// 2. Staff membuat order -> muncul di layar + alert order baru
// 3. Chef mulai masak -> timer jalan, feed ikut berubah
// 4. Chef mencoba membatalkan -> ditolak feed, status dikembalikan
// 5. Chef menandai ready -> alert ready
// 6. Prioritas diubah di feed -> refresh hint -> layar ikut
// 7. Staff menyelesaikan order -> layar menerima push completed
func TestEndToEndIntegration(t *testing.T) {
	fs := startFeed(t)

	chefToken, err := utils.GenerateToken(1, "chef", time.Hour)
	require.NoError(t, err)

	client := feed.NewHTTPClient(fs.URL, chefToken, nil)
	ws := feed.NewWSClient("ws"+strings.TrimPrefix(fs.URL, "http")+"/ws/chef", chefToken, utils.InfoLogger)
	ws.MinBackoff = pollTick
	ws.MaxBackoff = 100 * time.Millisecond

	cfg := kds.DefaultConfig()
	cfg.PollInterval = time.Hour
	cfg.TickInterval = 50 * time.Millisecond
	engine := kds.NewEngine(cfg, client, client,
		kds.WithPushSource(ws),
		kds.WithLogger(utils.InfoLogger),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- engine.Run(ctx) }()
	defer func() {
		cancel()
		select {
		case <-done:
		case <-time.After(waitFor):
			t.Error("engine did not stop")
		}
	}()

	require.Eventually(t, func() bool { return engine.ConnectionState().Connected }, waitFor, pollTick)

	// 2. order baru lewat feed
	prep := 10
	created, err := fs.Orders.Create(ctx, services.CreateOrderInput{
		TableNumber: "12",
		PrepMinutes: &prep,
		Items:       []services.CreateItemInput{{Name: "Soto Ayam", Quantity: 2}},
	})
	require.NoError(t, err)
	id := created.ID

	require.Eventually(t, func() bool { return orderStatus(engine, id) == models.StatusPending }, waitFor, pollTick)
	assert.True(t, hasNotification(engine, models.NotificationNewOrder, id))

	// 3. mulai masak
	require.NoError(t, engine.RequestTransition(ctx, id, models.StatusPreparing))
	remaining, ok := engine.Remaining(id)
	require.True(t, ok)
	assert.InDelta(t, 600, remaining, 2)

	stored, err := fs.Orders.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPreparing, stored.Status)
	assert.NotNil(t, stored.StartCookingTime)

	// 4. chef tidak boleh membatalkan
	err = engine.RequestTransition(ctx, id, models.StatusCancelled)
	var cmdErr *kds.CommandError
	require.True(t, errors.As(err, &cmdErr), "got %v", err)
	var remote *feed.RemoteError
	require.True(t, errors.As(err, &remote))
	assert.Equal(t, http.StatusForbidden, remote.StatusCode)
	assert.Equal(t, models.StatusPreparing, orderStatus(engine, id))
	_, ok = engine.Remaining(id)
	assert.True(t, ok, "timer survives the rollback")
	assert.True(t, hasNotification(engine, models.NotificationCommandError, id))

	// 5. ready
	require.NoError(t, engine.RequestTransition(ctx, id, models.StatusReady))
	assert.True(t, hasNotification(engine, models.NotificationOrderReady, id))
	_, ok = engine.Remaining(id)
	assert.False(t, ok)

	// 6. prioritas berubah di feed, layar ikut setelah snapshot
	_, err = fs.Orders.UpdatePriority(ctx, id, models.PriorityHigh)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		v, ok := engine.Order(id)
		return ok && v.Priority == models.PriorityHigh && v.Highlighted
	}, waitFor, pollTick)

	// 7. staff menyerahkan order
	_, err = fs.Orders.UpdateStatus(ctx, id, models.StatusCompleted)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return orderStatus(engine, id) == models.StatusCompleted }, waitFor, pollTick)

	active, err := engine.ProjectedOrders(models.FilterActive)
	require.NoError(t, err)
	assert.Empty(t, active)
	finished, err := engine.ProjectedOrders(models.FilterCompleted)
	require.NoError(t, err)
	require.Len(t, finished, 1)
	assert.Equal(t, id, finished[0].ID)
}

func TestDisplayFallsBackToPolling(t *testing.T) {
	fs := startFeedNamed(t, "polling")

	token, err := utils.GenerateToken(2, "staff", time.Hour)
	require.NoError(t, err)
	client := feed.NewHTTPClient(fs.URL, token, nil)

	cfg := kds.DefaultConfig()
	cfg.PollInterval = 50 * time.Millisecond
	engine := kds.NewEngine(cfg, client, client, kds.WithLogger(utils.InfoLogger))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- engine.Run(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	created, err := fs.Orders.Create(ctx, services.CreateOrderInput{
		CustomerName: "Budi",
		Items:        []services.CreateItemInput{{Name: "Es Teh", Quantity: 1}},
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return orderStatus(engine, created.ID) == models.StatusPending }, waitFor, pollTick)
	state := engine.ConnectionState()
	assert.False(t, state.Connected)
	assert.True(t, state.Degraded())
	assert.NotNil(t, state.LastSyncAt)
}
