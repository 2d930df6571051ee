package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/classdesk/classdesk-api/internal/middleware"
	"github.com/classdesk/classdesk-api/internal/models"
	"github.com/classdesk/classdesk-api/internal/service"
)

// closeNotifyRecorder adds the http.CloseNotifier method gin's Stream requires
// but httptest.ResponseRecorder lacks.
type closeNotifyRecorder struct {
	*httptest.ResponseRecorder
	closed chan bool
}

func (r *closeNotifyRecorder) CloseNotify() <-chan bool { return r.closed }

func TestStreamHandlerRequiresAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	events := service.NewEventService(&assignmentSourceStub{}, &submissionSourceStub{}, 4, zap.NewNop())
	handler := NewStreamHandler(events, service.NewMetricsService(), time.Second)

	c, w := newGinContext(http.MethodGet, "/stream", nil)

	handler.Stream(c)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestStreamHandlerSeedsSnapshotsAndClosesOnDisconnect(t *testing.T) {
	gin.SetMode(gin.TestMode)
	events := service.NewEventService(
		&assignmentSourceStub{assignments: []models.Assignment{{ID: "a1", Title: "Essay"}}},
		&submissionSourceStub{},
		4, zap.NewNop())
	handler := NewStreamHandler(events, service.NewMetricsService(), time.Second)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(&closeNotifyRecorder{ResponseRecorder: w, closed: make(chan bool)})
	ctx, cancel := context.WithCancel(context.Background())
	cancel() // already disconnected, stream must terminate immediately
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, "/stream", nil)
	c.Request = req
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "s1", Role: models.RoleStudent})

	done := make(chan struct{})
	go func() {
		handler.Stream(c)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not terminate on disconnect")
	}

	body := w.Body.String()
	assert.Contains(t, body, "event:snapshot")
	assert.Contains(t, body, "Essay")
	assert.Equal(t, 0, events.SubscriberCount())
}
