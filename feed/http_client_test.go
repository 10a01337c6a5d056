package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yeremiapane/kitchen-display/models"
)

func newFeedStub(t *testing.T) (*httptest.Server, *[]string) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	var seen []string

	r := gin.New()
	r.Use(func(c *gin.Context) {
		if c.GetHeader("Authorization") != "Bearer secret" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"status": false, "message": "missing token"})
			return
		}
		c.Next()
	})
	r.GET("/admin/kitchen/orders", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  true,
			"message": "kitchen orders",
			"data": []models.Order{
				{ID: 1, TableNumber: "4", Status: models.StatusPending, Priority: models.PriorityNormal},
				{ID: 2, CustomerName: "Budi", Status: models.StatusPreparing, Priority: models.PriorityHigh},
			},
		})
	})
	r.PATCH("/admin/orders/:id/status", func(c *gin.Context) {
		var body struct {
			Status models.Status `json:"status"`
		}
		assert.NoError(t, c.ShouldBindJSON(&body))
		seen = append(seen, c.Param("id")+":"+string(body.Status))
		if c.Param("id") == "9" {
			c.JSON(http.StatusConflict, gin.H{"status": false, "message": "invalid status transition"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": true, "message": "status updated"})
	})
	r.PATCH("/admin/orders/:id/priority", func(c *gin.Context) {
		var body map[string]string
		assert.NoError(t, c.ShouldBindJSON(&body))
		seen = append(seen, c.Param("id")+":"+body["priority"])
		c.JSON(http.StatusOK, gin.H{"status": true, "message": "priority updated"})
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, &seen
}

func TestHTTPClient_FetchSnapshot(t *testing.T) {
	srv, _ := newFeedStub(t)
	client := NewHTTPClient(srv.URL+"/", "secret", srv.Client())

	orders, err := client.FetchSnapshot(context.Background())

	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, "Table 4", orders[0].Label())
	assert.Equal(t, models.StatusPreparing, orders[1].Status)
}

func TestHTTPClient_Commands(t *testing.T) {
	srv, seen := newFeedStub(t)
	client := NewHTTPClient(srv.URL, "secret", srv.Client())

	require.NoError(t, client.ConfirmStatus(context.Background(), 1, models.StatusPreparing))
	require.NoError(t, client.ConfirmPriority(context.Background(), 2, models.PriorityLow))

	err := client.ConfirmStatus(context.Background(), 9, models.StatusReady)
	var remote *RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, http.StatusConflict, remote.StatusCode)
	assert.Equal(t, "invalid status transition", remote.Message)

	assert.Equal(t, []string{"1:preparing", "2:low", "9:ready"}, *seen)
}

func TestHTTPClient_Unauthorized(t *testing.T) {
	srv, _ := newFeedStub(t)
	client := NewHTTPClient(srv.URL, "wrong", srv.Client())

	_, err := client.FetchSnapshot(context.Background())

	var remote *RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, http.StatusUnauthorized, remote.StatusCode)
}

func TestHTTPClient_NonEnvelopeErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewHTTPClient(srv.URL, "", nil).FetchSnapshot(context.Background())

	var remote *RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, "upstream down", remote.Message)
}

func TestHTTPClient_RespectsContext(t *testing.T) {
	srv, _ := newFeedStub(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewHTTPClient(srv.URL, "secret", srv.Client()).FetchSnapshot(ctx)

	assert.ErrorIs(t, err, context.Canceled)
}

func TestRemoteErrorMessage(t *testing.T) {
	assert.Equal(t, "feed server returned 500", (&RemoteError{StatusCode: 500}).Error())
}
