package tasks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png" // register PNG decoding for uploaded images

	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/hibiken/asynq"
	"github.com/nfnt/resize"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"nestlist/internal/config"
	"nestlist/internal/logger"
	"nestlist/internal/storage"
)

// Task types processed by the worker.
const (
	// TypeImageProcess normalizes a freshly uploaded listing image in place.
	TypeImageProcess = "image:process"
	// TypeImageCleanup deletes stored images that no listing references
	// anymore (listing deleted, user cascade).
	TypeImageCleanup = "image:cleanup"
)

// ImageProcessPayload identifies the uploaded object to normalize.
type ImageProcessPayload struct {
	S3Key string `json:"s3_key"`
}

// ImageCleanupPayload carries the public URLs of images to remove.
type ImageCleanupPayload struct {
	ImageURLs []string `json:"image_urls"`
}

// NewImageProcessTask builds an asynq task for image normalization.
func NewImageProcessTask(s3Key string) (*asynq.Task, error) {
	payload, err := json.Marshal(ImageProcessPayload{S3Key: s3Key})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal image process payload: %w", err)
	}
	return asynq.NewTask(TypeImageProcess, payload, asynq.Queue("images")), nil
}

// NewImageCleanupTask builds an asynq task for deleting orphaned images.
func NewImageCleanupTask(imageURLs []string) (*asynq.Task, error) {
	payload, err := json.Marshal(ImageCleanupPayload{ImageURLs: imageURLs})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal image cleanup payload: %w", err)
	}
	return asynq.NewTask(TypeImageCleanup, payload, asynq.Queue("low")), nil
}

// NewClient returns an asynq client bound to the application's redis.
func NewClient(rdb *redis.Client) *asynq.Client {
	clientOpt := asynq.RedisClientOpt{
		Addr:     rdb.Options().Addr,
		Password: rdb.Options().Password,
		DB:       rdb.Options().DB,
	}
	return asynq.NewClient(clientOpt)
}

// TaskProcessor handles the processing of background tasks.
type TaskProcessor struct {
	cfg            *config.Config
	storageService storage.IS3Storage
	s3Client       *s3.Client
}

func NewTaskProcessor(cfg *config.Config, storageService storage.IS3Storage, s3Client *s3.Client) *TaskProcessor {
	return &TaskProcessor{
		cfg:            cfg,
		storageService: storageService,
		s3Client:       s3Client,
	}
}

// SetupServer configures an asynq server and mux with the image task
// handlers registered. The caller runs it.
func SetupServer(rdb *redis.Client, processor *TaskProcessor) (*asynq.Server, *asynq.ServeMux) {
	serverOpt := asynq.RedisClientOpt{
		Addr:     rdb.Options().Addr,
		Password: rdb.Options().Password,
		DB:       rdb.Options().DB,
	}

	srv := asynq.NewServer(
		serverOpt,
		asynq.Config{
			Queues: map[string]int{
				"default": 3,
				"images":  5,
				"low":     1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.L().Error("task failed",
					zap.String("type", task.Type()),
					zap.ByteString("payload", task.Payload()),
					zap.Error(err))
			}),
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeImageProcess, processor.HandleImageProcessTask)
	mux.HandleFunc(TypeImageCleanup, processor.HandleImageCleanupTask)

	return srv, mux
}

// HandleImageProcessTask downloads an uploaded listing image, enforces the
// size limit, resizes it if it exceeds the max dimension and writes the
// result back over the original key.
func (p *TaskProcessor) HandleImageProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload ImageProcessPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal image task payload: %v: %w", err, asynq.SkipRetry)
	}

	getObjectOutput, err := p.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(p.cfg.AwsS3Bucket),
		Key:    aws.String(payload.S3Key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			// The client never completed the presigned upload.
			return fmt.Errorf("s3 object %s not found: %w", payload.S3Key, asynq.SkipRetry)
		}
		return fmt.Errorf("failed to download image %s: %w", payload.S3Key, err)
	}
	defer getObjectOutput.Body.Close()

	imgData, err := io.ReadAll(getObjectOutput.Body)
	if err != nil {
		return fmt.Errorf("failed to read image data for %s: %w", payload.S3Key, err)
	}

	maxSizeBytes := int64(p.cfg.ImageMaxSizeMB) * 1024 * 1024
	if int64(len(imgData)) > maxSizeBytes {
		logger.L().Warn("uploaded image exceeds max size, deleting",
			zap.String("key", payload.S3Key), zap.Int("bytes", len(imgData)))
		if delErr := p.storageService.DeleteObject(ctx, payload.S3Key); delErr != nil {
			logger.L().Error("failed to delete oversized image", zap.String("key", payload.S3Key), zap.Error(delErr))
		}
		return fmt.Errorf("image exceeds max size: %w", asynq.SkipRetry)
	}

	img, format, err := image.Decode(bytes.NewReader(imgData))
	if err != nil {
		return fmt.Errorf("unsupported image format or corrupt image %s: %w", payload.S3Key, asynq.SkipRetry)
	}

	maxDim := uint(p.cfg.ImageMaxDimension)
	if uint(img.Bounds().Dx()) <= maxDim && uint(img.Bounds().Dy()) <= maxDim {
		return nil // already within bounds
	}

	resizedImg := resize.Thumbnail(maxDim, maxDim, img, resize.Lanczos3)
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, resizedImg, &jpeg.Options{Quality: 85}); err != nil {
		return fmt.Errorf("failed to re-encode resized image %s: %w", payload.S3Key, err)
	}

	_, err = p.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(p.cfg.AwsS3Bucket),
		Key:         aws.String(payload.S3Key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("image/jpeg"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload processed image %s: %w", payload.S3Key, err)
	}

	logger.L().Info("image normalized",
		zap.String("key", payload.S3Key),
		zap.String("original_format", format),
		zap.Int("width", resizedImg.Bounds().Dx()),
		zap.Int("height", resizedImg.Bounds().Dy()))
	return nil
}

// HandleImageCleanupTask deletes the stored objects behind the given image
// URLs. URLs outside the service's bucket are skipped.
func (p *TaskProcessor) HandleImageCleanupTask(ctx context.Context, t *asynq.Task) error {
	var payload ImageCleanupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal image cleanup payload: %v: %w", err, asynq.SkipRetry)
	}

	var failed int
	for _, rawURL := range payload.ImageURLs {
		key, ok := p.storageService.KeyFromURL(rawURL)
		if !ok {
			continue
		}
		if err := p.storageService.DeleteObject(ctx, key); err != nil {
			logger.L().Error("failed to delete image", zap.String("key", key), zap.Error(err))
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("failed to delete %d of %d images", failed, len(payload.ImageURLs))
	}
	return nil
}
