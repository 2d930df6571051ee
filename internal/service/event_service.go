package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/classdesk/classdesk-api/internal/models"
)

type assignmentSnapshotSource interface {
	List(ctx context.Context) ([]models.Assignment, error)
}

type submissionSnapshotSource interface {
	List(ctx context.Context, filter models.SubmissionFilter) ([]models.Submission, error)
}

// EventService is an in-process snapshot broker. After every successful write
// the full collection is reloaded and pushed as a replacement snapshot to all
// subscribers, so a consumer never observes a partially updated collection.
// The two collection feeds are independent and may deliver in either order.
type EventService struct {
	assignments assignmentSnapshotSource
	submissions submissionSnapshotSource
	logger      *zap.Logger
	buffer      int

	mu     sync.Mutex
	subs   map[int]chan models.Snapshot
	nextID int
}

// NewEventService constructs the broker.
func NewEventService(assignments assignmentSnapshotSource, submissions submissionSnapshotSource, buffer int, logger *zap.Logger) *EventService {
	if buffer <= 0 {
		buffer = 8
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventService{
		assignments: assignments,
		submissions: submissions,
		logger:      logger,
		buffer:      buffer,
		subs:        make(map[int]chan models.Snapshot),
	}
}

// Subscribe registers a consumer. The returned cancel func must be called on
// teardown (client disconnect or sign-out).
func (s *EventService) Subscribe() (<-chan models.Snapshot, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	ch := make(chan models.Snapshot, s.buffer)
	s.subs[id] = ch

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if existing, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(existing)
		}
	}
	return ch, cancel
}

// SubscriberCount returns the number of active subscribers.
func (s *EventService) SubscriberCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// CurrentSnapshots returns fresh snapshots of both collections, used to seed
// a newly connected subscriber.
func (s *EventService) CurrentSnapshots(ctx context.Context) ([]models.Snapshot, error) {
	assignmentSnap, err := s.loadAssignments(ctx)
	if err != nil {
		return nil, err
	}
	submissionSnap, err := s.loadSubmissions(ctx)
	if err != nil {
		return nil, err
	}
	return []models.Snapshot{assignmentSnap, submissionSnap}, nil
}

// PublishAssignments reloads the assignments collection and broadcasts it.
// Load errors are logged and swallowed: subscribers keep their stale snapshot.
func (s *EventService) PublishAssignments(ctx context.Context) {
	snap, err := s.loadAssignments(ctx)
	if err != nil {
		s.logger.Warn("failed to load assignments snapshot", zap.Error(err))
		return
	}
	s.broadcast(snap)
}

// PublishSubmissions reloads the submissions collection and broadcasts it.
func (s *EventService) PublishSubmissions(ctx context.Context) {
	snap, err := s.loadSubmissions(ctx)
	if err != nil {
		s.logger.Warn("failed to load submissions snapshot", zap.Error(err))
		return
	}
	s.broadcast(snap)
}

func (s *EventService) loadAssignments(ctx context.Context) (models.Snapshot, error) {
	list, err := s.assignments.List(ctx)
	if err != nil {
		return models.Snapshot{}, err
	}
	return models.Snapshot{
		Collection:  models.CollectionAssignments,
		Assignments: list,
		EmittedAt:   time.Now().UTC(),
	}, nil
}

func (s *EventService) loadSubmissions(ctx context.Context) (models.Snapshot, error) {
	list, err := s.submissions.List(ctx, models.SubmissionFilter{})
	if err != nil {
		return models.Snapshot{}, err
	}
	return models.Snapshot{
		Collection:  models.CollectionSubmissions,
		Submissions: list,
		EmittedAt:   time.Now().UTC(),
	}, nil
}

func (s *EventService) broadcast(snap models.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, ch := range s.subs {
		select {
		case ch <- snap:
		default:
			// Slow consumer: drop this snapshot. Each message is a full
			// replacement, so the subscriber only ever needs the latest.
			s.logger.Debug("dropping snapshot for slow subscriber", zap.Int("subscriber", id), zap.String("collection", snap.Collection))
		}
	}
}
