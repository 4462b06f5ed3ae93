package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/socialqueue/socialqueue/internal/models"
	"github.com/socialqueue/socialqueue/internal/publisher"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore is an in-memory Store. It hands out copies so callers observe
// the "fresh fetch" behavior of the real Postgres store.
type fakeStore struct {
	mu          sync.Mutex
	posts       map[int64]*models.Post
	jobs        map[string]*models.ScheduledJob
	claimAlways bool
	lastStart   time.Time
	lastEnd     time.Time
}

func newFakeStore(posts ...*models.Post) *fakeStore {
	s := &fakeStore{
		posts: make(map[int64]*models.Post),
		jobs:  make(map[string]*models.ScheduledJob),
	}
	for _, p := range posts {
		s.posts[p.ID] = p
	}
	return s
}

func copyPost(p *models.Post) *models.Post {
	c := *p
	if p.ScheduledTime != nil {
		t := *p.ScheduledTime
		c.ScheduledTime = &t
	}
	if p.PublishedTime != nil {
		t := *p.PublishedTime
		c.PublishedTime = &t
	}
	c.Metadata = make(models.Metadata, len(p.Metadata))
	for k, v := range p.Metadata {
		c.Metadata[k] = v
	}
	return &c
}

func (s *fakeStore) GetPost(ctx context.Context, id int64) (*models.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.posts[id]
	if !ok {
		return nil, nil
	}
	return copyPost(p), nil
}

func (s *fakeStore) ListScheduled(ctx context.Context, start, end time.Time) ([]*models.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastStart, s.lastEnd = start, end

	var out []*models.Post
	for _, p := range s.posts {
		if p.Status != models.PostStatusScheduled || p.ScheduledTime == nil {
			continue
		}
		if p.ScheduledTime.Before(start) || p.ScheduledTime.After(end) {
			continue
		}
		out = append(out, copyPost(p))
	}
	return out, nil
}

func (s *fakeStore) UpdateStatus(ctx context.Context, postID int64, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.posts[postID].Status = status
	return nil
}

func (s *fakeStore) Schedule(ctx context.Context, job *models.ScheduledJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.posts[job.PostID]
	p.Status = models.PostStatusScheduled
	t := job.TriggerTime
	p.ScheduledTime = &t
	s.jobs[job.JobID] = job
	return nil
}

func (s *fakeStore) Reschedule(ctx context.Context, job *models.ScheduledJob) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.JobID]; !ok {
		return false, nil
	}
	s.jobs[job.JobID] = job
	t := job.TriggerTime
	s.posts[job.PostID].ScheduledTime = &t
	return true, nil
}

func (s *fakeStore) Cancel(ctx context.Context, postID int64, jobID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[jobID]; !ok {
		return false, nil
	}
	delete(s.jobs, jobID)
	p := s.posts[postID]
	p.Status = models.PostStatusDraft
	p.ScheduledTime = nil
	return true, nil
}

func (s *fakeStore) ClaimJob(ctx context.Context, jobID string, triggerTime time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.claimAlways {
		return true, nil
	}
	job, ok := s.jobs[jobID]
	if !ok || !job.TriggerTime.Equal(triggerTime) {
		return false, nil
	}
	delete(s.jobs, jobID)
	return true, nil
}

func (s *fakeStore) PendingJobs(ctx context.Context) ([]*models.ScheduledJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.ScheduledJob
	for _, j := range s.jobs {
		out = append(out, j)
	}
	return out, nil
}

func (s *fakeStore) MarkPublished(ctx context.Context, postID int64, externalID, externalURL string, publishedTime time.Time, meta models.Metadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.posts[postID]
	p.Status = models.PostStatusPublished
	p.ScheduledTime = nil
	p.ExternalID = externalID
	p.ExternalURL = externalURL
	t := publishedTime
	p.PublishedTime = &t
	s.mergeMeta(p, meta)
	return nil
}

func (s *fakeStore) MarkFailed(ctx context.Context, postID int64, meta models.Metadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.posts[postID]
	p.Status = models.PostStatusFailed
	p.ScheduledTime = nil
	s.mergeMeta(p, meta)
	return nil
}

func (s *fakeStore) mergeMeta(p *models.Post, meta models.Metadata) {
	if p.Metadata == nil {
		p.Metadata = make(models.Metadata)
	}
	for k, v := range meta {
		p.Metadata[k] = v
	}
}

type fakeBroker struct {
	mu      sync.Mutex
	armed   map[string]*models.ScheduledJob
	disarms []string
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{armed: make(map[string]*models.ScheduledJob)}
}

func (b *fakeBroker) Arm(ctx context.Context, job *models.ScheduledJob) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.armed[job.JobID] = job
	return nil
}

func (b *fakeBroker) Ensure(ctx context.Context, job *models.ScheduledJob) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.armed[job.JobID]; !ok {
		b.armed[job.JobID] = job
	}
	return nil
}

func (b *fakeBroker) Disarm(ctx context.Context, jobID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.armed, jobID)
	b.disarms = append(b.disarms, jobID)
	return nil
}

type fakePublisher struct {
	result      *publisher.Result
	delay       time.Duration
	calls       int32
	inFlight    int32
	maxInFlight int32
}

func (p *fakePublisher) Publish(ctx context.Context, post *models.Post) *publisher.Result {
	cur := atomic.AddInt32(&p.inFlight, 1)
	for {
		max := atomic.LoadInt32(&p.maxInFlight)
		if cur <= max || atomic.CompareAndSwapInt32(&p.maxInFlight, max, cur) {
			break
		}
	}
	if p.delay > 0 {
		time.Sleep(p.delay)
	}
	atomic.AddInt32(&p.inFlight, -1)
	atomic.AddInt32(&p.calls, 1)

	res := *p.result
	res.Timestamp = time.Now().UTC()
	return &res
}

func (p *fakePublisher) Delete(ctx context.Context, externalID string) *publisher.Result {
	return &publisher.Result{Success: true}
}

func (p *fakePublisher) Stats(ctx context.Context, externalID string) *publisher.Result {
	return &publisher.Result{Success: true, Stats: map[string]interface{}{"likes": 1}}
}

type fakeSelector struct {
	pub publisher.Publisher
	err error
}

func (s *fakeSelector) ForPlatform(platform string) (publisher.Publisher, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.pub, nil
}

func successResult(id, url string) *publisher.Result {
	return &publisher.Result{Success: true, PostID: id, PostURL: url, Platform: models.PlatformLinkedIn}
}

func draftPost(id int64, platform string) *models.Post {
	return &models.Post{
		ID:          id,
		Platform:    platform,
		Status:      models.PostStatusDraft,
		TextContent: "some post body",
	}
}

func TestScheduleTransitionsToScheduled(t *testing.T) {
	store := newFakeStore(draftPost(1, models.PlatformLinkedIn))
	broker := newFakeBroker()
	s := New(store, &fakeSelector{pub: &fakePublisher{result: successResult("x", "y")}}, broker)

	at := time.Now().Add(time.Hour)
	post, err := s.Schedule(context.Background(), 1, at)
	require.NoError(t, err)

	assert.Equal(t, models.PostStatusScheduled, post.Status)
	require.NotNil(t, post.ScheduledTime)
	assert.True(t, post.ScheduledTime.Equal(at.UTC().Truncate(time.Microsecond)))

	job, ok := store.jobs["post_1_linkedin"]
	require.True(t, ok)
	assert.Equal(t, int64(1), job.PostID)
	assert.Contains(t, broker.armed, "post_1_linkedin")
}

func TestScheduleReplacesExistingJob(t *testing.T) {
	store := newFakeStore(draftPost(1, models.PlatformTwitter))
	broker := newFakeBroker()
	s := New(store, &fakeSelector{pub: &fakePublisher{result: successResult("x", "y")}}, broker)

	first := time.Now().Add(time.Hour)
	second := time.Now().Add(2 * time.Hour)

	_, err := s.Schedule(context.Background(), 1, first)
	require.NoError(t, err)
	_, err = s.Schedule(context.Background(), 1, second)
	require.NoError(t, err)

	require.Len(t, store.jobs, 1)
	job := store.jobs["post_1_twitter"]
	assert.True(t, job.TriggerTime.Equal(second.UTC().Truncate(time.Microsecond)))
}

func TestScheduleRejectsTerminalStatus(t *testing.T) {
	for _, status := range []string{
		models.PostStatusPublished, models.PostStatusFailed, models.PostStatusRejected,
	} {
		post := draftPost(1, models.PlatformLinkedIn)
		post.Status = status
		store := newFakeStore(post)
		s := New(store, &fakeSelector{}, newFakeBroker())

		_, err := s.Schedule(context.Background(), 1, time.Now().Add(time.Hour))
		require.ErrorIs(t, err, ErrInvalidTransition, "status %s", status)
		assert.Equal(t, status, store.posts[1].Status, "failed schedule must not mutate state")
	}
}

func TestScheduleUnknownPost(t *testing.T) {
	s := New(newFakeStore(), &fakeSelector{}, newFakeBroker())
	_, err := s.Schedule(context.Background(), 99, time.Now())
	require.ErrorIs(t, err, ErrPostNotFound)
}

func TestScheduleZeroTime(t *testing.T) {
	s := New(newFakeStore(draftPost(1, models.PlatformLinkedIn)), &fakeSelector{}, newFakeBroker())
	_, err := s.Schedule(context.Background(), 1, time.Time{})
	require.ErrorIs(t, err, ErrInvalidTime)
}

func TestRescheduleWithoutJob(t *testing.T) {
	store := newFakeStore(draftPost(1, models.PlatformLinkedIn))
	s := New(store, &fakeSelector{}, newFakeBroker())

	_, err := s.Reschedule(context.Background(), 1, time.Now().Add(time.Hour))
	require.ErrorIs(t, err, ErrJobNotFound)
}

func TestCancelBeforeFiring(t *testing.T) {
	store := newFakeStore(draftPost(1, models.PlatformLinkedIn))
	broker := newFakeBroker()
	pub := &fakePublisher{result: successResult("x", "y")}
	s := New(store, &fakeSelector{pub: pub}, broker)

	at := time.Now().Add(time.Hour)
	_, err := s.Schedule(context.Background(), 1, at)
	require.NoError(t, err)
	armed := broker.armed["post_1_linkedin"]

	post, err := s.Cancel(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, models.PostStatusDraft, post.Status)
	assert.Nil(t, post.ScheduledTime)
	assert.Empty(t, store.jobs)
	assert.Contains(t, broker.disarms, "post_1_linkedin")

	// A trigger that slipped through anyway must claim nothing.
	s.fire(context.Background(), PublishPayload{
		PostID: 1, Platform: models.PlatformLinkedIn, TriggerTime: armed.TriggerTime,
	})
	assert.Zero(t, atomic.LoadInt32(&pub.calls))
	assert.Equal(t, models.PostStatusDraft, store.posts[1].Status)
}

func TestCancelWithoutJobIsTooLate(t *testing.T) {
	post := draftPost(1, models.PlatformLinkedIn)
	post.Status = models.PostStatusApproved
	store := newFakeStore(post)
	s := New(store, &fakeSelector{}, newFakeBroker())

	_, err := s.Cancel(context.Background(), 1)
	require.ErrorIs(t, err, ErrJobNotFound)
	assert.Equal(t, models.PostStatusApproved, store.posts[1].Status)
}

func TestRescheduleTwiceFiresOnceAtLastTime(t *testing.T) {
	store := newFakeStore(draftPost(1, models.PlatformTwitter))
	broker := newFakeBroker()
	pub := &fakePublisher{result: successResult("tw1", "https://twitter.com/user/status/tw1")}
	s := New(store, &fakeSelector{pub: pub}, broker)

	t1 := time.Now().Add(time.Hour)
	t2 := time.Now().Add(2 * time.Hour)
	t3 := time.Now().Add(3 * time.Hour)

	_, err := s.Schedule(context.Background(), 1, t1)
	require.NoError(t, err)
	_, err = s.Reschedule(context.Background(), 1, t2)
	require.NoError(t, err)
	_, err = s.Reschedule(context.Background(), 1, t3)
	require.NoError(t, err)

	// Stale triggers from the replaced schedules fizzle.
	for _, stale := range []time.Time{t1, t2} {
		s.fire(context.Background(), PublishPayload{
			PostID: 1, Platform: models.PlatformTwitter,
			TriggerTime: stale.UTC().Truncate(time.Microsecond),
		})
	}
	assert.Zero(t, atomic.LoadInt32(&pub.calls))
	assert.Equal(t, models.PostStatusScheduled, store.posts[1].Status)

	s.fire(context.Background(), PublishPayload{
		PostID: 1, Platform: models.PlatformTwitter,
		TriggerTime: t3.UTC().Truncate(time.Microsecond),
	})
	assert.Equal(t, int32(1), atomic.LoadInt32(&pub.calls))
	assert.Equal(t, models.PostStatusPublished, store.posts[1].Status)
}

func TestPublishNowConflictOnPublished(t *testing.T) {
	post := draftPost(1, models.PlatformLinkedIn)
	post.Status = models.PostStatusPublished
	store := newFakeStore(post)
	pub := &fakePublisher{result: successResult("x", "y")}
	s := New(store, &fakeSelector{pub: pub}, newFakeBroker())

	_, _, err := s.PublishNow(context.Background(), 1)
	require.ErrorIs(t, err, ErrAlreadyPublished)
	assert.Zero(t, atomic.LoadInt32(&pub.calls), "conflict must cause no network call")
}

func TestPublishNowFromApproved(t *testing.T) {
	post := draftPost(1, models.PlatformLinkedIn)
	post.Status = models.PostStatusApproved
	store := newFakeStore(post)
	pub := &fakePublisher{result: successResult("urn:li:share:9", "https://www.linkedin.com/feed/update/urn:li:share:9")}
	s := New(store, &fakeSelector{pub: pub}, newFakeBroker())

	updated, result, err := s.PublishNow(context.Background(), 1)
	require.NoError(t, err)
	require.True(t, result.Success)

	assert.Equal(t, models.PostStatusPublished, updated.Status)
	assert.Equal(t, "urn:li:share:9", updated.ExternalID)
	assert.Equal(t, "https://www.linkedin.com/feed/update/urn:li:share:9", updated.ExternalURL)
	require.NotNil(t, updated.PublishedTime)
	assert.Contains(t, updated.Metadata, "publish_result")
}

func TestPublishNowFromScheduledConsumesJob(t *testing.T) {
	store := newFakeStore(draftPost(1, models.PlatformLinkedIn))
	broker := newFakeBroker()
	pub := &fakePublisher{result: successResult("urn:li:share:1", "https://www.linkedin.com/feed/update/urn:li:share:1")}
	s := New(store, &fakeSelector{pub: pub}, broker)

	_, err := s.Schedule(context.Background(), 1, time.Now().Add(time.Hour))
	require.NoError(t, err)
	trigger := store.jobs["post_1_linkedin"].TriggerTime

	updated, result, err := s.PublishNow(context.Background(), 1)
	require.NoError(t, err)
	require.True(t, result.Success)

	assert.Equal(t, models.PostStatusPublished, updated.Status)
	assert.Empty(t, store.jobs, "publish-now must consume the pending job row")
	assert.Contains(t, broker.disarms, "post_1_linkedin")
	assert.NotContains(t, broker.armed, "post_1_linkedin")

	// The original trigger, had it slipped through, claims nothing.
	s.fire(context.Background(), PublishPayload{
		PostID: 1, Platform: models.PlatformLinkedIn, TriggerTime: trigger,
	})
	assert.Equal(t, int32(1), atomic.LoadInt32(&pub.calls))
}

func TestPublishNowFromDraftRejected(t *testing.T) {
	store := newFakeStore(draftPost(1, models.PlatformLinkedIn))
	s := New(store, &fakeSelector{pub: &fakePublisher{result: successResult("x", "y")}}, newFakeBroker())

	_, _, err := s.PublishNow(context.Background(), 1)
	require.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, models.PostStatusDraft, store.posts[1].Status)
}

func TestPublishNowPlatformFailure(t *testing.T) {
	post := draftPost(1, models.PlatformInstagram)
	post.Status = models.PostStatusApproved
	store := newFakeStore(post)
	pub := &fakePublisher{result: &publisher.Result{
		Success:  false,
		Error:    "Instagram posts require an image",
		Platform: models.PlatformInstagram,
	}}
	s := New(store, &fakeSelector{pub: pub}, newFakeBroker())

	updated, result, err := s.PublishNow(context.Background(), 1)
	require.NoError(t, err)
	require.False(t, result.Success)

	assert.Equal(t, models.PostStatusFailed, updated.Status)
	assert.Equal(t, "Instagram posts require an image", updated.Metadata["publish_error"])
	assert.Contains(t, updated.Metadata, "publish_attempt")
}

func TestGetScheduledDefaultsToSevenDays(t *testing.T) {
	store := newFakeStore()
	s := New(store, &fakeSelector{}, newFakeBroker())

	_, err := s.GetScheduled(context.Background(), time.Time{}, time.Time{})
	require.NoError(t, err)

	assert.WithinDuration(t, time.Now(), store.lastStart, 5*time.Second)
	assert.WithinDuration(t, store.lastStart.Add(7*24*time.Hour), store.lastEnd, time.Second)
}

func TestUpdateStatus(t *testing.T) {
	store := newFakeStore(draftPost(1, models.PlatformLinkedIn))
	s := New(store, &fakeSelector{}, newFakeBroker())

	post, err := s.UpdateStatus(context.Background(), 1, models.PostStatusApproved)
	require.NoError(t, err)
	assert.Equal(t, models.PostStatusApproved, post.Status)

	_, err = s.UpdateStatus(context.Background(), 1, "bogus")
	require.ErrorIs(t, err, ErrInvalidStatus)

	_, err = s.UpdateStatus(context.Background(), 1, models.PostStatusPublished)
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestUpdateStatusOnScheduledPost(t *testing.T) {
	store := newFakeStore(draftPost(1, models.PlatformLinkedIn))
	s := New(store, &fakeSelector{}, newFakeBroker())

	_, err := s.Schedule(context.Background(), 1, time.Now().Add(time.Hour))
	require.NoError(t, err)

	_, err = s.UpdateStatus(context.Background(), 1, models.PostStatusRejected)
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestStatsRequiresExternalID(t *testing.T) {
	store := newFakeStore(draftPost(1, models.PlatformLinkedIn))
	s := New(store, &fakeSelector{pub: &fakePublisher{result: successResult("x", "y")}}, newFakeBroker())

	_, err := s.Stats(context.Background(), 1)
	require.ErrorIs(t, err, ErrNotPublished)
}

func TestStatsForPublishedPost(t *testing.T) {
	post := draftPost(1, models.PlatformLinkedIn)
	post.Status = models.PostStatusPublished
	post.ExternalID = "urn:li:share:9"
	store := newFakeStore(post)
	s := New(store, &fakeSelector{pub: &fakePublisher{result: successResult("x", "y")}}, newFakeBroker())

	res, err := s.Stats(context.Background(), 1)
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Equal(t, 1, res.Stats["likes"])
}

func TestRecoverJobsArmsPending(t *testing.T) {
	store := newFakeStore(draftPost(1, models.PlatformLinkedIn), draftPost(2, models.PlatformTwitter))
	broker := newFakeBroker()
	s := New(store, &fakeSelector{}, broker)

	_, err := s.Schedule(context.Background(), 1, time.Now().Add(time.Hour))
	require.NoError(t, err)
	_, err = s.Schedule(context.Background(), 2, time.Now().Add(-time.Hour)) // missed trigger
	require.NoError(t, err)

	// Simulate a restart with an empty broker.
	broker.mu.Lock()
	broker.armed = make(map[string]*models.ScheduledJob)
	broker.mu.Unlock()

	require.NoError(t, s.RecoverJobs(context.Background()))
	assert.Len(t, broker.armed, 2)
}

func TestDispatchUnknownPlatformMarksFailed(t *testing.T) {
	store := newFakeStore(draftPost(1, models.PlatformYoutube))
	s := New(store, &fakeSelector{err: errors.New(`no publisher configured for platform "youtube"`)}, newFakeBroker())

	_, err := s.Schedule(context.Background(), 1, time.Now().Add(time.Hour))
	require.NoError(t, err)

	job := store.jobs["post_1_youtube"]
	s.fire(context.Background(), PublishPayload{
		PostID: 1, Platform: models.PlatformYoutube, TriggerTime: job.TriggerTime,
	})
	assert.Equal(t, models.PostStatusFailed, store.posts[1].Status)
	assert.Contains(t, store.posts[1].Metadata["publish_error"], "no publisher configured")
}
