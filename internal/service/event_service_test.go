package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/classdesk/classdesk-api/internal/models"
)

func TestEventServiceBroadcastsFullSnapshots(t *testing.T) {
	assignments := &stubAssignmentSource{assignments: []models.Assignment{{ID: "a1"}, {ID: "a2"}}}
	submissions := &stubSubmissionSource{}
	svc := NewEventService(assignments, submissions, 4, zap.NewNop())

	ch, cancel := svc.Subscribe()
	defer cancel()

	svc.PublishAssignments(context.Background())

	select {
	case snap := <-ch:
		assert.Equal(t, models.CollectionAssignments, snap.Collection)
		assert.Len(t, snap.Assignments, 2)
	case <-time.After(time.Second):
		t.Fatal("expected snapshot")
	}
}

func TestEventServiceCancelRemovesSubscriber(t *testing.T) {
	svc := NewEventService(&stubAssignmentSource{}, &stubSubmissionSource{}, 4, zap.NewNop())

	_, cancel := svc.Subscribe()
	assert.Equal(t, 1, svc.SubscriberCount())
	cancel()
	assert.Equal(t, 0, svc.SubscriberCount())
	// second cancel is a no-op
	cancel()
	assert.Equal(t, 0, svc.SubscriberCount())
}

func TestEventServiceDropsSnapshotsForSlowSubscribers(t *testing.T) {
	assignments := &stubAssignmentSource{assignments: []models.Assignment{{ID: "a1"}}}
	svc := NewEventService(assignments, &stubSubmissionSource{}, 1, zap.NewNop())

	ch, cancel := svc.Subscribe()
	defer cancel()

	// buffer of one: second publish must not block
	done := make(chan struct{})
	go func() {
		svc.PublishAssignments(context.Background())
		svc.PublishAssignments(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on slow subscriber")
	}

	snap := <-ch
	assert.Equal(t, models.CollectionAssignments, snap.Collection)
	select {
	case <-ch:
		t.Fatal("expected dropped snapshot")
	default:
	}
}

func TestEventServiceSwallowsLoadErrors(t *testing.T) {
	assignments := &stubAssignmentSource{err: errors.New("db down")}
	svc := NewEventService(assignments, &stubSubmissionSource{}, 4, zap.NewNop())

	ch, cancel := svc.Subscribe()
	defer cancel()

	svc.PublishAssignments(context.Background())
	select {
	case <-ch:
		t.Fatal("expected no snapshot on load failure")
	default:
	}
}

func TestEventServiceCurrentSnapshotsSeedsBothCollections(t *testing.T) {
	assignments := &stubAssignmentSource{assignments: []models.Assignment{{ID: "a1"}}}
	submissions := &stubSubmissionSource{submissions: []models.Submission{{ID: "sub1"}, {ID: "sub2"}}}
	svc := NewEventService(assignments, submissions, 4, zap.NewNop())

	snaps, err := svc.CurrentSnapshots(context.Background())
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Equal(t, models.CollectionAssignments, snaps[0].Collection)
	assert.Len(t, snaps[0].Assignments, 1)
	assert.Equal(t, models.CollectionSubmissions, snaps[1].Collection)
	assert.Len(t, snaps[1].Submissions, 2)
}
