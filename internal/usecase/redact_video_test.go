package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vidshield/redaction-processing-service/internal/domain/entity"
	"github.com/vidshield/redaction-processing-service/internal/domain/port"
)

// --- fakes ---

type fakeRepo struct {
	jobs map[uuid.UUID]*entity.RedactionJob
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{jobs: map[uuid.UUID]*entity.RedactionJob{}}
}

func (r *fakeRepo) Create(_ context.Context, job *entity.RedactionJob) error {
	r.jobs[job.ID] = job
	return nil
}

func (r *fakeRepo) Update(_ context.Context, job *entity.RedactionJob) error {
	r.jobs[job.ID] = job
	return nil
}

func (r *fakeRepo) FindByID(_ context.Context, id uuid.UUID) (*entity.RedactionJob, error) {
	job, ok := r.jobs[id]
	if !ok {
		return nil, errors.New("job not found")
	}
	return job, nil
}

type fakeStorage struct {
	downloadErr    error
	artifacts      map[string][]byte
	uploadedVideos map[string]string
	uploadedBlobs  map[string][]byte
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{
		artifacts:      map[string][]byte{},
		uploadedVideos: map[string]string{},
		uploadedBlobs:  map[string][]byte{},
	}
}

func (s *fakeStorage) DownloadVideo(_ context.Context, _ string, destPath string) error {
	if s.downloadErr != nil {
		return s.downloadErr
	}
	return os.WriteFile(destPath, []byte("not a real video"), 0644)
}

func (s *fakeStorage) UploadVideo(_ context.Context, objectKey, srcPath string) error {
	s.uploadedVideos[objectKey] = srcPath
	return nil
}

func (s *fakeStorage) UploadArtifact(_ context.Context, objectKey string, reader io.Reader, _ int64, _ string) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	s.uploadedBlobs[objectKey] = data
	return nil
}

func (s *fakeStorage) DownloadArtifact(_ context.Context, objectKey string) ([]byte, error) {
	data, ok := s.artifacts[objectKey]
	if !ok {
		return nil, fmt.Errorf("artifact %s not found", objectKey)
	}
	return data, nil
}

type fakeProber struct {
	info entity.VideoInfo
	err  error
}

func (p *fakeProber) Probe(_ context.Context, videoPath string) (entity.VideoInfo, error) {
	if p.err != nil {
		return entity.VideoInfo{}, p.err
	}
	info := p.info
	info.Path = videoPath
	return info, nil
}

type fakeSampler struct {
	frameCount int
	err        error
}

func (s *fakeSampler) Extract(_ context.Context, _ string, outputDir string, _ port.SampleOptions) ([]entity.FrameSample, error) {
	if s.err != nil {
		return nil, s.err
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, err
	}
	samples := make([]entity.FrameSample, 0, s.frameCount)
	for i := 0; i < s.frameCount; i++ {
		path := filepath.Join(outputDir, fmt.Sprintf("frame_%d.jpg", i+1))
		if err := os.WriteFile(path, []byte("frame"), 0644); err != nil {
			return nil, err
		}
		sample, err := entity.NewFrameSample(i+1, float64(i), path, 320, 240)
		if err != nil {
			return nil, err
		}
		samples = append(samples, sample)
	}
	return samples, nil
}

type fakeMosaicker struct {
	err error
}

func (m *fakeMosaicker) Apply(_ context.Context, _, outputPath string, _ entity.RegionTable, _ int) error {
	if m.err != nil {
		return m.err
	}
	return os.WriteFile(outputPath, []byte("redacted"), 0644)
}

type fakeArchiver struct{}

func (a *fakeArchiver) CreateZip(_ context.Context, _ []string, outputPath string) error {
	return os.WriteFile(outputPath, []byte("zip"), 0644)
}

type fakePublisher struct {
	statuses []entity.RedactionStatusMessage
}

func (p *fakePublisher) PublishStatus(_ context.Context, msg []byte) error {
	var status entity.RedactionStatusMessage
	if err := json.Unmarshal(msg, &status); err != nil {
		return err
	}
	p.statuses = append(p.statuses, status)
	return nil
}

type fakeDLQ struct {
	reasons []string
}

func (d *fakeDLQ) PublishToDLQ(_ context.Context, _ []byte, reason string) error {
	d.reasons = append(d.reasons, reason)
	return nil
}

type fakeNotifier struct {
	emails []string
}

func (n *fakeNotifier) NotifyFailure(_ context.Context, userEmail, _, _, _ string) error {
	n.emails = append(n.emails, userEmail)
	return nil
}

type fakeSessions struct {
	sessions map[uuid.UUID]*entity.AnnotationSession
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{sessions: map[uuid.UUID]*entity.AnnotationSession{}}
}

func (s *fakeSessions) Create(_ context.Context, session *entity.AnnotationSession) error {
	s.sessions[session.ID] = session
	return nil
}

func (s *fakeSessions) Update(_ context.Context, session *entity.AnnotationSession) error {
	s.sessions[session.ID] = session
	return nil
}

func (s *fakeSessions) FindByID(_ context.Context, id uuid.UUID) (*entity.AnnotationSession, error) {
	session, ok := s.sessions[id]
	if !ok {
		return nil, errors.New("session not found")
	}
	return session, nil
}

// --- fixture ---

type fixture struct {
	uc        *RedactVideoUseCase
	repo      *fakeRepo
	storage   *fakeStorage
	prober    *fakeProber
	sampler   *fakeSampler
	mosaicker *fakeMosaicker
	publisher *fakePublisher
	dlq       *fakeDLQ
	notifier  *fakeNotifier
	sessions  *fakeSessions
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		repo:      newFakeRepo(),
		storage:   newFakeStorage(),
		prober:    &fakeProber{info: entity.VideoInfo{FPS: 30, FrameCount: 120, Width: 320, Height: 240, Duration: 4}},
		sampler:   &fakeSampler{frameCount: 4},
		mosaicker: &fakeMosaicker{},
		publisher: &fakePublisher{},
		dlq:       &fakeDLQ{},
		notifier:  &fakeNotifier{},
		sessions:  newFakeSessions(),
	}
	f.uc = NewRedactVideoUseCase(
		f.repo, f.sessions, f.storage, f.prober, f.sampler, f.mosaicker, &fakeArchiver{},
		f.publisher, f.dlq, f.notifier, zap.NewNop(),
		RedactVideoConfig{
			TempDir:     t.TempDir(),
			MaxRetries:  3,
			SampleRate:  30,
			MaxFrames:   10,
			MotionAware: true,
		},
	)
	return f
}

func regionsJSON(t *testing.T) []byte {
	t.Helper()
	regions := []entity.DetectionRegion{}
	for _, id := range []int{1, 2, 3, 4} {
		r, err := entity.NewDetectionRegion(id, "phone", entity.BBox{X: 50, Y: 50, W: 80, H: 60}, 0.9, "", nil)
		require.NoError(t, err)
		regions = append(regions, r)
	}
	data, err := entity.MarshalRegionDocument(regions)
	require.NoError(t, err)
	return data
}

func requestMessage(t *testing.T, mutate func(*entity.RedactionRequestMessage)) (entity.RedactionRequestMessage, []byte) {
	t.Helper()
	msg := entity.RedactionRequestMessage{
		JobID:      uuid.New(),
		UserID:     "user-1",
		VideoKey:   "user-1/video.mp4",
		RegionsKey: "user-1/regions.json",
		FileSize:   2048,
		UserEmail:  "user@example.com",
	}
	if mutate != nil {
		mutate(&msg)
	}
	raw, err := json.Marshal(msg)
	require.NoError(t, err)
	return msg, raw
}

// --- tests ---

func TestExecuteHappyPath(t *testing.T) {
	f := newFixture(t)
	msg, raw := requestMessage(t, nil)
	f.storage.artifacts[msg.RegionsKey] = regionsJSON(t)

	require.NoError(t, f.uc.Execute(context.Background(), raw))

	job, err := f.repo.FindByID(context.Background(), msg.JobID)
	require.NoError(t, err)
	assert.Equal(t, entity.JobStatusCompleted, job.Status)
	assert.Equal(t, 4, job.FrameCount)
	assert.Equal(t, 4, job.RegionCount)
	assert.Equal(t, "user-1/redacted_"+msg.JobID.String()+".mp4", job.OutputKey)

	assert.Contains(t, f.storage.uploadedVideos, job.OutputKey)
	assert.Contains(t, f.storage.uploadedBlobs, job.ReportKey, "validation report uploaded")
	assert.Contains(t, f.storage.uploadedBlobs, job.FramesKey, "frame bundle uploaded")
	assert.Contains(t, string(f.storage.uploadedBlobs[job.ReportKey]), `"success_rate"`)

	require.Len(t, f.publisher.statuses, 1)
	assert.Equal(t, entity.JobStatusCompleted, f.publisher.statuses[0].Status)
	assert.Empty(t, f.dlq.reasons)
	assert.Empty(t, f.notifier.emails)
}

func TestExecuteMalformedMessageGoesToDLQ(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.uc.Execute(context.Background(), []byte("{not json")))

	require.Len(t, f.dlq.reasons, 1)
	assert.Contains(t, f.dlq.reasons[0], "unmarshal_error")
	assert.Empty(t, f.publisher.statuses)
}

func TestExecuteUnavailableSourceIsPermanent(t *testing.T) {
	f := newFixture(t)
	f.prober.err = entity.NewProcessingError(entity.ErrSourceUnavailable, "probe video", "input.mp4", errors.New("no such file"))
	msg, raw := requestMessage(t, nil)

	require.NoError(t, f.uc.Execute(context.Background(), raw), "permanent failures must not requeue")

	job, err := f.repo.FindByID(context.Background(), msg.JobID)
	require.NoError(t, err)
	assert.Equal(t, entity.JobStatusFailed, job.Status)

	require.Len(t, f.dlq.reasons, 1)
	assert.Contains(t, f.dlq.reasons[0], "probe")
	assert.Equal(t, []string{"user@example.com"}, f.notifier.emails)

	require.Len(t, f.publisher.statuses, 1)
	assert.Equal(t, entity.JobStatusFailed, f.publisher.statuses[0].Status)
}

func TestExecuteEmptyRegionsIsPermanent(t *testing.T) {
	f := newFixture(t)
	msg, raw := requestMessage(t, nil)
	f.storage.artifacts[msg.RegionsKey] = []byte(`{"regions": []}`)

	require.NoError(t, f.uc.Execute(context.Background(), raw))

	job, err := f.repo.FindByID(context.Background(), msg.JobID)
	require.NoError(t, err)
	assert.Equal(t, entity.JobStatusFailed, job.Status)
	require.Len(t, f.dlq.reasons, 1)
	assert.Contains(t, f.dlq.reasons[0], "load_regions")
}

func TestExecuteTransientFailureIsRetried(t *testing.T) {
	f := newFixture(t)
	f.storage.downloadErr = errors.New("connection reset")
	msg, raw := requestMessage(t, nil)

	err := f.uc.Execute(context.Background(), raw)
	require.Error(t, err, "transient failures must requeue")
	assert.Contains(t, err.Error(), "retryable failure (attempt 1/3)")

	job, findErr := f.repo.FindByID(context.Background(), msg.JobID)
	require.NoError(t, findErr)
	assert.Equal(t, entity.JobStatusFailed, job.Status)
	assert.Empty(t, f.dlq.reasons, "not yet exhausted")
	assert.Empty(t, f.notifier.emails)
}

func TestExecuteExhaustedRetriesGoToDLQ(t *testing.T) {
	f := newFixture(t)
	msg, raw := requestMessage(t, nil)

	job := entity.NewRedactionJob(msg.UserID, msg.VideoKey, msg.FileSize, 15, 3)
	job.ID = msg.JobID
	job.Attempt = 3
	require.NoError(t, f.repo.Create(context.Background(), job))

	require.NoError(t, f.uc.Execute(context.Background(), raw))

	require.Len(t, f.dlq.reasons, 1)
	assert.Contains(t, f.dlq.reasons[0], "max retries exceeded")
	assert.Equal(t, entity.JobStatusFailed, job.Status)
}

func TestExecuteWithAnnotatedSession(t *testing.T) {
	f := newFixture(t)

	session := entity.NewAnnotationSession("user-1/video.mp4", nil)
	require.NoError(t, session.Advance(entity.SessionAwaitingAnnotation))
	require.NoError(t, session.AttachRegions(regionsJSON(t)))
	require.NoError(t, f.sessions.Create(context.Background(), session))

	msg, raw := requestMessage(t, func(m *entity.RedactionRequestMessage) {
		m.RegionsKey = ""
		m.SessionID = session.ID.String()
	})

	require.NoError(t, f.uc.Execute(context.Background(), raw))

	job, err := f.repo.FindByID(context.Background(), msg.JobID)
	require.NoError(t, err)
	assert.Equal(t, entity.JobStatusCompleted, job.Status)
	assert.Equal(t, entity.SessionConsumed, session.State, "session consumed exactly once")
}

func TestExecuteUnannotatedSessionIsPermanent(t *testing.T) {
	f := newFixture(t)

	session := entity.NewAnnotationSession("user-1/video.mp4", nil)
	require.NoError(t, f.sessions.Create(context.Background(), session))

	_, raw := requestMessage(t, func(m *entity.RedactionRequestMessage) {
		m.RegionsKey = ""
		m.SessionID = session.ID.String()
	})

	require.NoError(t, f.uc.Execute(context.Background(), raw))

	require.Len(t, f.dlq.reasons, 1)
	assert.Contains(t, f.dlq.reasons[0], "load_regions")
}

func TestExecuteAppliesDefaultMosaicStrength(t *testing.T) {
	f := newFixture(t)
	msg, raw := requestMessage(t, nil)
	f.storage.artifacts[msg.RegionsKey] = regionsJSON(t)

	require.NoError(t, f.uc.Execute(context.Background(), raw))

	job, err := f.repo.FindByID(context.Background(), msg.JobID)
	require.NoError(t, err)
	assert.Equal(t, 15, job.MosaicStrength)
}
