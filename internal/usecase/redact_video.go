package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/vidshield/redaction-processing-service/internal/domain/entity"
	"github.com/vidshield/redaction-processing-service/internal/domain/port"
	"github.com/vidshield/redaction-processing-service/internal/infra/metrics"
	"github.com/vidshield/redaction-processing-service/internal/validation"
	"github.com/vidshield/redaction-processing-service/internal/video"
)

const defaultMosaicStrength = 15

// RedactVideoUseCase runs the full redaction pipeline for one queued job:
// download, probe, sample frames, load regions, mosaic, validate, upload.
type RedactVideoUseCase struct {
	repo      port.JobRepository
	sessions  port.SessionStore
	storage   port.VideoStorage
	prober    port.VideoProber
	sampler   port.FrameSampler
	mosaicker port.MosaicApplier
	archiver  port.Archiver
	publisher port.StatusPublisher
	dlq       port.DLQPublisher
	notifier  port.FailureNotifier
	logger    *zap.Logger
	cfg       RedactVideoConfig
}

type RedactVideoConfig struct {
	TempDir     string
	MaxRetries  int
	SampleRate  int
	MaxFrames   int
	MotionAware bool
}

func NewRedactVideoUseCase(
	repo port.JobRepository,
	sessions port.SessionStore,
	storage port.VideoStorage,
	prober port.VideoProber,
	sampler port.FrameSampler,
	mosaicker port.MosaicApplier,
	archiver port.Archiver,
	publisher port.StatusPublisher,
	dlq port.DLQPublisher,
	notifier port.FailureNotifier,
	logger *zap.Logger,
	cfg RedactVideoConfig,
) *RedactVideoUseCase {
	return &RedactVideoUseCase{
		repo:      repo,
		sessions:  sessions,
		storage:   storage,
		prober:    prober,
		sampler:   sampler,
		mosaicker: mosaicker,
		archiver:  archiver,
		publisher: publisher,
		dlq:       dlq,
		notifier:  notifier,
		logger:    logger,
		cfg:       cfg,
	}
}

func (uc *RedactVideoUseCase) Execute(ctx context.Context, rawMsg []byte) error {
	tracer := otel.Tracer("usecase")
	ctx, span := tracer.Start(ctx, "RedactVideoUseCase.Execute")
	defer span.End()

	totalTimer := time.Now()

	var msg entity.RedactionRequestMessage
	if err := json.Unmarshal(rawMsg, &msg); err != nil {
		uc.logger.Error("failed to unmarshal message", zap.Error(err), zap.ByteString("body", rawMsg))
		_ = uc.dlq.PublishToDLQ(ctx, rawMsg, "unmarshal_error: "+err.Error())
		return nil
	}

	span.SetAttributes(
		attribute.String("job.id", msg.JobID.String()),
		attribute.String("job.video_key", msg.VideoKey),
	)

	log := uc.logger.With(zap.String("job_id", msg.JobID.String()), zap.String("video_key", msg.VideoKey))

	strength := msg.MosaicStrength
	if strength == 0 {
		strength = defaultMosaicStrength
	}

	job, err := uc.repo.FindByID(ctx, msg.JobID)
	if err != nil {
		job = entity.NewRedactionJob(msg.UserID, msg.VideoKey, msg.FileSize, strength, uc.cfg.MaxRetries)
		job.ID = msg.JobID
		if err := uc.repo.Create(ctx, job); err != nil {
			log.Error("failed to create job record", zap.Error(err))
			return fmt.Errorf("create job: %w", err)
		}
	}

	if !job.CanRetry() {
		log.Warn("job exhausted retries, sending to DLQ")
		_ = uc.handlePermanentFailure(ctx, job, msg, rawMsg, "max retries exceeded")
		return nil
	}

	job.MarkProcessing()
	if err := uc.repo.Update(ctx, job); err != nil {
		log.Error("failed to update job to PROCESSING", zap.Error(err))
		return fmt.Errorf("update job: %w", err)
	}

	metrics.ActiveWorkers.Inc()
	defer metrics.ActiveWorkers.Dec()

	if err := uc.runPipeline(ctx, job, msg, rawMsg, strength, log); err != nil {
		return err
	}

	metrics.JobsProcessedTotal.WithLabelValues("completed").Inc()
	metrics.JobProcessingDuration.WithLabelValues("total").Observe(time.Since(totalTimer).Seconds())

	return nil
}

func (uc *RedactVideoUseCase) runPipeline(
	ctx context.Context,
	job *entity.RedactionJob,
	msg entity.RedactionRequestMessage,
	rawMsg []byte,
	strength int,
	log *zap.Logger,
) error {
	tracer := otel.Tracer("usecase")

	workDir := filepath.Join(uc.cfg.TempDir, job.ID.String())
	if err := os.MkdirAll(workDir, 0755); err != nil {
		return fmt.Errorf("create workdir: %w", err)
	}
	defer os.RemoveAll(workDir)

	// Download source video
	dlStart := time.Now()
	ctxDl, spanDl := tracer.Start(ctx, "download_video")
	videoPath := filepath.Join(workDir, "input.mp4")
	if err := uc.storage.DownloadVideo(ctxDl, msg.VideoKey, videoPath); err != nil {
		spanDl.End()
		log.Error("failed to download video", zap.Error(err))
		return uc.handleRetryableFailure(ctx, job, msg, rawMsg, "download_video: "+err.Error(), log)
	}
	spanDl.End()
	metrics.JobProcessingDuration.WithLabelValues("download").Observe(time.Since(dlStart).Seconds())

	// Probe video metadata
	info, err := uc.prober.Probe(ctx, videoPath)
	if err != nil {
		log.Error("probe failed", zap.Error(err))
		return uc.handleFailure(ctx, job, msg, rawMsg, err, "probe: "+err.Error(), log)
	}

	validator := validation.NewValidator(log)

	// Sample frames
	exStart := time.Now()
	ctxEx, spanEx := tracer.Start(ctx, "sample_frames")
	framesDir := filepath.Join(workDir, "frames")
	frames, err := uc.sampler.Extract(ctxEx, videoPath, framesDir, port.SampleOptions{
		SampleRate:  uc.cfg.SampleRate,
		MaxFrames:   uc.cfg.MaxFrames,
		MotionAware: uc.cfg.MotionAware,
	})
	spanEx.End()
	if err != nil {
		log.Error("frame sampling failed", zap.Error(err))
		return uc.handleFailure(ctx, job, msg, rawMsg, err, "sample_frames: "+err.Error(), log)
	}
	metrics.JobProcessingDuration.WithLabelValues("sample").Observe(time.Since(exStart).Seconds())
	metrics.FramesSampledTotal.Add(float64(len(frames)))

	uc.recordCheck(validator.ValidateFrameExtraction(info, frames, 0))

	// Bundle frame artifacts for the annotation UI
	framesKey, err := uc.uploadFrameBundle(ctx, job, workDir, frames, log)
	if err != nil {
		return uc.handleRetryableFailure(ctx, job, msg, rawMsg, "upload_frames: "+err.Error(), log)
	}

	// Load detection regions
	regions, err := uc.loadRegions(ctx, msg)
	if err != nil {
		log.Error("failed to load regions", zap.Error(err))
		return uc.handleFailure(ctx, job, msg, rawMsg, err, "load_regions: "+err.Error(), log)
	}
	metrics.RegionsMosaickedTotal.Add(float64(len(regions)))

	uc.recordCheck(validator.ValidateDetections(frames, regions, info))
	uc.recordCheck(validator.ValidateCoordinateConversion(regions, info, frames))

	table := entity.BuildRegionTable(regions)
	resolver := video.NewResolver(table)
	testIDs := validation.SampleFrameIDs(info.FrameCount, 20)
	uc.recordCheck(validator.ValidateTrackingInterpolation(regions, testIDs, resolver.Resolve, info.FrameCount))

	if len(frames) > 0 && len(regions) > 0 {
		uc.recordCheck(validator.ValidateMosaicApplication(frames[0].ImagePath, regions, strength))
	}

	// Apply mosaic
	moStart := time.Now()
	ctxMo, spanMo := tracer.Start(ctx, "apply_mosaic")
	outputPath := filepath.Join(workDir, "output.mp4")
	err = uc.mosaicker.Apply(ctxMo, videoPath, outputPath, table, strength)
	spanMo.End()
	if err != nil {
		log.Error("mosaic application failed", zap.Error(err))
		return uc.handleFailure(ctx, job, msg, rawMsg, err, "apply_mosaic: "+err.Error(), log)
	}
	metrics.JobProcessingDuration.WithLabelValues("mosaic").Observe(time.Since(moStart).Seconds())

	uc.recordCheck(validator.ValidateEndToEndCoverage(videoPath, outputPath, nil))

	// Upload redacted video
	upStart := time.Now()
	ctxUp, spanUp := tracer.Start(ctx, "upload_output")
	outputKey := fmt.Sprintf("%s/redacted_%s.mp4", msg.UserID, job.ID.String())
	if err := uc.storage.UploadVideo(ctxUp, outputKey, outputPath); err != nil {
		spanUp.End()
		log.Error("output upload failed", zap.Error(err))
		return uc.handleRetryableFailure(ctx, job, msg, rawMsg, "upload_output: "+err.Error(), log)
	}
	spanUp.End()
	metrics.JobProcessingDuration.WithLabelValues("upload").Observe(time.Since(upStart).Seconds())

	// Upload validation report
	reportKey := fmt.Sprintf("%s/validation_%s.json", msg.UserID, job.ID.String())
	reportJSON, err := validator.ReportJSON()
	if err != nil {
		return fmt.Errorf("render validation report: %w", err)
	}
	if err := uc.storage.UploadArtifact(ctx, reportKey, bytes.NewReader(reportJSON), int64(len(reportJSON)), "application/json"); err != nil {
		log.Error("report upload failed", zap.Error(err))
		return uc.handleRetryableFailure(ctx, job, msg, rawMsg, "upload_report: "+err.Error(), log)
	}

	if err := uc.consumeSession(ctx, msg, log); err != nil {
		log.Warn("failed to mark session consumed", zap.Error(err))
	}

	// Mark completed
	job.MarkCompleted(outputKey, reportKey, framesKey, len(frames), len(regions), info.Duration)
	if err := uc.repo.Update(ctx, job); err != nil {
		log.Error("failed to update job to COMPLETED", zap.Error(err))
		return fmt.Errorf("update job completed: %w", err)
	}

	report := validator.Report()
	uc.publishStatus(ctx, job, report.Summary, log)

	log.Info("job completed",
		zap.Int("frame_count", len(frames)),
		zap.Int("region_count", len(regions)),
		zap.Float64("duration_secs", info.Duration),
		zap.String("output_key", outputKey),
		zap.Int("checks_failed", report.Summary.Failed),
	)

	return nil
}

// loadRegions resolves the region source: an annotated session when
// SessionID is set, otherwise a regions JSON artifact under RegionsKey.
func (uc *RedactVideoUseCase) loadRegions(ctx context.Context, msg entity.RedactionRequestMessage) ([]entity.DetectionRegion, error) {
	var data []byte

	switch {
	case msg.SessionID != "":
		sessionID, err := uuid.Parse(msg.SessionID)
		if err != nil {
			return nil, entity.NewProcessingError(entity.ErrInvalidRegionData, "load regions", msg.SessionID, err)
		}
		session, err := uc.sessions.FindByID(ctx, sessionID)
		if err != nil {
			return nil, fmt.Errorf("find session %s: %w", msg.SessionID, err)
		}
		if session.State != entity.SessionAnnotated {
			return nil, entity.NewProcessingError(entity.ErrNoRegions, "load regions", msg.SessionID,
				fmt.Errorf("session in state %s, want %s", session.State, entity.SessionAnnotated))
		}
		data = session.RegionsJSON
	case msg.RegionsKey != "":
		var err error
		data, err = uc.storage.DownloadArtifact(ctx, msg.RegionsKey)
		if err != nil {
			return nil, fmt.Errorf("download regions %s: %w", msg.RegionsKey, err)
		}
	default:
		return nil, entity.NewProcessingError(entity.ErrNoRegions, "load regions", "",
			fmt.Errorf("message carries neither regions_key nor session_id"))
	}

	regions, err := entity.ParseRegionDocument(data)
	if err != nil {
		return nil, err
	}
	if len(regions) == 0 {
		return nil, entity.NewProcessingError(entity.ErrNoRegions, "load regions", "",
			fmt.Errorf("region document is empty"))
	}
	return regions, nil
}

func (uc *RedactVideoUseCase) uploadFrameBundle(ctx context.Context, job *entity.RedactionJob, workDir string, frames []entity.FrameSample, log *zap.Logger) (string, error) {
	paths := make([]string, 0, len(frames))
	for _, f := range frames {
		paths = append(paths, f.ImagePath)
	}

	zipPath := filepath.Join(workDir, "frames.zip")
	if err := uc.archiver.CreateZip(ctx, paths, zipPath); err != nil {
		return "", fmt.Errorf("create frame bundle: %w", err)
	}

	zipFile, err := os.Open(zipPath)
	if err != nil {
		return "", fmt.Errorf("open frame bundle: %w", err)
	}
	defer zipFile.Close()

	stat, err := zipFile.Stat()
	if err != nil {
		return "", fmt.Errorf("stat frame bundle: %w", err)
	}

	framesKey := fmt.Sprintf("%s/frames_%s.zip", job.UserID, job.ID.String())
	if err := uc.storage.UploadArtifact(ctx, framesKey, zipFile, stat.Size(), "application/zip"); err != nil {
		return "", err
	}

	log.Info("frame bundle uploaded", zap.String("frames_key", framesKey), zap.Int("frames", len(frames)))
	return framesKey, nil
}

func (uc *RedactVideoUseCase) consumeSession(ctx context.Context, msg entity.RedactionRequestMessage, log *zap.Logger) error {
	if msg.SessionID == "" {
		return nil
	}
	sessionID, err := uuid.Parse(msg.SessionID)
	if err != nil {
		return err
	}
	session, err := uc.sessions.FindByID(ctx, sessionID)
	if err != nil {
		return err
	}
	if err := session.Advance(entity.SessionConsumed); err != nil {
		return err
	}
	return uc.sessions.Update(ctx, session)
}

func (uc *RedactVideoUseCase) recordCheck(result validation.Result) {
	metrics.ValidationChecksTotal.WithLabelValues(result.Stage, string(result.Status)).Inc()
}

// handleFailure routes pipeline errors: caller errors (bad source, bad or
// missing regions) never retry, everything else gets the backoff path.
func (uc *RedactVideoUseCase) handleFailure(
	ctx context.Context,
	job *entity.RedactionJob,
	msg entity.RedactionRequestMessage,
	rawMsg []byte,
	cause error,
	errMsg string,
	log *zap.Logger,
) error {
	if entity.IsProcessingKind(cause, entity.ErrSourceUnavailable) ||
		entity.IsProcessingKind(cause, entity.ErrNoRegions) ||
		entity.IsProcessingKind(cause, entity.ErrInvalidRegionData) {
		return uc.handlePermanentFailure(ctx, job, msg, rawMsg, errMsg)
	}
	return uc.handleRetryableFailure(ctx, job, msg, rawMsg, errMsg, log)
}

func (uc *RedactVideoUseCase) handleRetryableFailure(
	ctx context.Context,
	job *entity.RedactionJob,
	msg entity.RedactionRequestMessage,
	rawMsg []byte,
	errMsg string,
	log *zap.Logger,
) error {
	job.MarkFailed(errMsg)
	_ = uc.repo.Update(ctx, job)

	if !job.CanRetry() {
		return uc.handlePermanentFailure(ctx, job, msg, rawMsg, errMsg)
	}

	metrics.RetryTotal.WithLabelValues(strconv.Itoa(job.Attempt)).Inc()
	uc.publishStatus(ctx, job, validation.Summary{}, log)

	return fmt.Errorf("retryable failure (attempt %d/%d): %s", job.Attempt, job.MaxAttempts, errMsg)
}

func (uc *RedactVideoUseCase) handlePermanentFailure(
	ctx context.Context,
	job *entity.RedactionJob,
	msg entity.RedactionRequestMessage,
	rawMsg []byte,
	errMsg string,
) error {
	job.MarkFailed(errMsg)
	_ = uc.repo.Update(ctx, job)

	_ = uc.dlq.PublishToDLQ(ctx, rawMsg, errMsg)

	uc.publishStatus(ctx, job, validation.Summary{}, uc.logger)

	metrics.JobsProcessedTotal.WithLabelValues("dlq").Inc()

	if msg.UserEmail != "" {
		_ = uc.notifier.NotifyFailure(ctx, msg.UserEmail, job.ID.String(), msg.VideoKey, errMsg)
	}

	return nil
}

func (uc *RedactVideoUseCase) publishStatus(ctx context.Context, job *entity.RedactionJob, summary validation.Summary, log *zap.Logger) {
	statusMsg := entity.RedactionStatusMessage{
		JobID:             job.ID,
		UserID:            job.UserID,
		Status:            job.Status,
		VideoKey:          job.VideoKey,
		OutputKey:         job.OutputKey,
		ReportKey:         job.ReportKey,
		FramesKey:         job.FramesKey,
		FrameCount:        job.FrameCount,
		RegionCount:       job.RegionCount,
		Duration:          job.VideoDuration,
		ChecksPassed:      summary.Passed,
		ChecksFailed:      summary.Failed,
		ValidationWarning: summary.Warnings,
		ErrorMessage:      job.ErrorMessage,
		Attempt:           job.Attempt,
		MaxAttempts:       job.MaxAttempts,
	}
	data, _ := json.Marshal(statusMsg)
	if err := uc.publisher.PublishStatus(ctx, data); err != nil {
		log.Error("failed to publish status", zap.Error(err))
	}
}
