// internal/services/job_service.go
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/Corphon/LectureCompanion/internal/errors"
	"github.com/Corphon/LectureCompanion/internal/models"
	"github.com/Corphon/LectureCompanion/internal/storage"
	"github.com/Corphon/LectureCompanion/internal/utils"
)

const jobKeyPrefix = "job:"

// JobFunc is the body of a background job. report publishes progress (0-100).
type JobFunc func(ctx context.Context, report func(progress int, message string)) (string, error)

// JobService persists background jobs in a KVStore with a TTL and fans
// progress out to in-process subscribers.
type JobService struct {
	kv      storage.KVStore
	ttl     time.Duration
	metrics *utils.MetricsCollector

	mu          sync.Mutex
	subscribers map[string]map[chan models.Job]struct{}
	cancels     map[string]context.CancelFunc

	baseCtx    context.Context
	baseCancel context.CancelFunc
	wg         sync.WaitGroup
}

// NewJobService creates a job service. Jobs started through Start are
// cancelled by Shutdown.
func NewJobService(kv storage.KVStore, ttl time.Duration, metrics *utils.MetricsCollector) *JobService {
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &JobService{
		kv:          kv,
		ttl:         ttl,
		metrics:     metrics,
		subscribers: make(map[string]map[chan models.Job]struct{}),
		cancels:     make(map[string]context.CancelFunc),
		baseCtx:     ctx,
		baseCancel:  cancel,
	}
}

// Create registers a queued job.
func (s *JobService) Create(ctx context.Context, kind models.JobKind, lessonID string) (*models.Job, error) {
	now := time.Now().UTC()
	job := &models.Job{
		ID:        uuid.NewString(),
		Kind:      kind,
		LessonID:  lessonID,
		Status:    models.JobQueued,
		Message:   "queued",
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.put(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// Get returns a job snapshot.
func (s *JobService) Get(ctx context.Context, id string) (*models.Job, error) {
	data, err := s.kv.Get(ctx, jobKeyPrefix+id)
	if errors.Is(err, storage.ErrKeyNotFound) {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("job %s not found", id), err)
	}
	if err != nil {
		return nil, apperrors.NewProcessingError("failed to load job", err)
	}
	var job models.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, apperrors.NewProcessingError("failed to decode job", err)
	}
	return &job, nil
}

// ListByLesson returns the live jobs attached to a lesson.
func (s *JobService) ListByLesson(ctx context.Context, lessonID string) ([]models.Job, error) {
	keys, err := s.kv.Keys(ctx, jobKeyPrefix)
	if err != nil {
		return nil, apperrors.NewProcessingError("failed to list jobs", err)
	}
	jobs := make([]models.Job, 0)
	for _, key := range keys {
		job, err := s.Get(ctx, key[len(jobKeyPrefix):])
		if err != nil {
			continue
		}
		if job.LessonID == lessonID {
			jobs = append(jobs, *job)
		}
	}
	return jobs, nil
}

// Start runs fn in the background under a cancellable context.
func (s *JobService) Start(job *models.Job, fn JobFunc) {
	ctx, cancel := context.WithCancel(s.baseCtx)

	s.mu.Lock()
	s.cancels[job.ID] = cancel
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.JobStarted(string(job.Kind))
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()

		_ = s.mutate(context.Background(), job.ID, func(j *models.Job) {
			j.Status = models.JobRunning
			j.Message = "running"
		})

		report := func(progress int, message string) {
			_ = s.mutate(context.Background(), job.ID, func(j *models.Job) {
				if progress > j.Progress && progress <= 100 {
					j.Progress = progress
				}
				if message != "" {
					j.Message = message
				}
			})
		}

		message, err := fn(ctx, report)

		var final models.JobStatus
		switch {
		case ctx.Err() != nil:
			final = models.JobCancelled
		case err != nil:
			final = models.JobFailed
		default:
			final = models.JobCompleted
		}

		s.finish(job.ID, final, message, err)
	}()
}

// Cancel stops a running job. Cancelling a terminal job is a conflict.
func (s *JobService) Cancel(ctx context.Context, id string) (*models.Job, error) {
	job, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status.Terminal() {
		return nil, apperrors.NewConflictError(fmt.Sprintf("job %s already %s", id, job.Status), nil)
	}

	s.mu.Lock()
	cancel, ok := s.cancels[id]
	s.mu.Unlock()

	if ok {
		cancel()
		return job, nil
	}
	// Queued and never started: mark it directly.
	s.finish(id, models.JobCancelled, "", nil)
	return s.Get(ctx, id)
}

// Subscribe returns a channel that receives the current snapshot followed
// by every update. It is closed once the job reaches a terminal state or the
// returned unsubscribe func is called.
func (s *JobService) Subscribe(ctx context.Context, id string) (<-chan models.Job, func(), error) {
	// The snapshot read and the registration happen under one lock so a job
	// finishing in between cannot leave the channel open.
	s.mu.Lock()
	job, err := s.Get(ctx, id)
	if err != nil {
		s.mu.Unlock()
		return nil, nil, err
	}

	ch := make(chan models.Job, 10)
	ch <- *job
	if job.Status.Terminal() {
		s.mu.Unlock()
		close(ch)
		return ch, func() {}, nil
	}
	if s.subscribers[id] == nil {
		s.subscribers[id] = make(map[chan models.Job]struct{})
	}
	s.subscribers[id][ch] = struct{}{}
	s.mu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if subs, ok := s.subscribers[id]; ok {
				if _, ok := subs[ch]; ok {
					delete(subs, ch)
					close(ch)
				}
				if len(subs) == 0 {
					delete(s.subscribers, id)
				}
			}
		})
	}
	return ch, unsubscribe, nil
}

// Shutdown cancels running jobs and waits for them to exit or ctx to expire.
func (s *JobService) Shutdown(ctx context.Context) error {
	s.baseCancel()
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *JobService) finish(id string, status models.JobStatus, message string, cause error) {
	var kind models.JobKind
	_ = s.mutate(context.Background(), id, func(j *models.Job) {
		kind = j.Kind
		j.Status = status
		switch status {
		case models.JobCompleted:
			j.Progress = 100
			j.Message = "completed"
		case models.JobCancelled:
			j.Message = "cancelled"
		case models.JobFailed:
			j.Message = "failed"
		}
		if message != "" {
			j.Message = message
		}
		if cause != nil && status == models.JobFailed {
			j.Error = cause.Error()
		}
	})

	s.mu.Lock()
	_, started := s.cancels[id]
	delete(s.cancels, id)
	for ch := range s.subscribers[id] {
		close(ch)
	}
	delete(s.subscribers, id)
	s.mu.Unlock()

	if s.metrics != nil && started && kind != "" {
		s.metrics.JobFinished(string(kind), string(status))
	}

	fields := map[string]interface{}{"job_id": id, "status": string(status)}
	if cause != nil {
		fields["error"] = cause.Error()
	}
	utils.GetLogger().Info("job finished", fields)
}

// mutate applies fn to the stored job, refreshes its TTL and notifies
// subscribers. Updates to terminal jobs are ignored.
func (s *JobService) mutate(ctx context.Context, id string, fn func(*models.Job)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if job.Status.Terminal() {
		return nil
	}
	fn(job)
	job.UpdatedAt = time.Now().UTC()
	if err := s.put(ctx, job); err != nil {
		return err
	}

	for ch := range s.subscribers[id] {
		select {
		case ch <- *job:
		default:
		}
	}
	return nil
}

func (s *JobService) put(ctx context.Context, job *models.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return apperrors.NewProcessingError("failed to encode job", err)
	}
	if err := s.kv.Set(ctx, jobKeyPrefix+job.ID, data, s.ttl); err != nil {
		return apperrors.NewProcessingError("failed to store job", err)
	}
	return nil
}
