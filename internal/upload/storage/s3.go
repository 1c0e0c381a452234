// Пакет storage — объектное хранилище файлов (S3-совместимое).
// Загрузка идёт напрямую из браузера по presigned URL; сервис
// только выдаёт гранты, проверяет наличие объекта и удаляет его.
package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// ObjectStorage — интерфейс операций над объектами хранилища.
type ObjectStorage interface {
	// PresignPut выдаёт presigned URL на загрузку объекта по ключу.
	PresignPut(ctx context.Context, key, contentType string, sizeBytes int64, ttl time.Duration) (string, error)
	// Exists проверяет наличие объекта.
	Exists(ctx context.Context, key string) (bool, error)
	// Delete удаляет объект. Удаление отсутствующего объекта — не ошибка.
	Delete(ctx context.Context, key string) error
}

// Options — параметры подключения к S3-совместимому хранилищу.
type Options struct {
	// Endpoint — адрес хранилища. Пустое значение — AWS S3.
	Endpoint string
	// Region — регион (для MinIO обычно us-east-1)
	Region string
	// Bucket — имя бакета
	Bucket string
	// UsePathStyle — path-style адресация (требуется для MinIO)
	UsePathStyle bool
}

// S3Storage — реализация ObjectStorage через AWS SDK.
type S3Storage struct {
	client    *s3.Client
	presigner *s3.PresignClient
	bucket    string
	logger    *slog.Logger
}

// New создаёт клиент объектного хранилища. Учётные данные берутся
// из стандартной цепочки AWS SDK (переменные окружения, IAM role).
func New(ctx context.Context, opts Options, logger *slog.Logger) (*S3Storage, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(opts.Region))
	if err != nil {
		return nil, fmt.Errorf("ошибка загрузки конфигурации AWS: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = opts.UsePathStyle
	})

	return &S3Storage{
		client:    client,
		presigner: s3.NewPresignClient(client),
		bucket:    opts.Bucket,
		logger:    logger.With(slog.String("component", "object_storage")),
	}, nil
}

// PresignPut выдаёт presigned PUT URL со сроком действия ttl.
// Content-Type и Content-Length входят в подпись: клиент не может
// загрузить объект другого типа или размера. Нулевой sizeBytes
// означает, что размер неизвестен и в подпись не входит.
func (s *S3Storage) PresignPut(ctx context.Context, key, contentType string, sizeBytes int64, ttl time.Duration) (string, error) {
	input := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	}
	if sizeBytes > 0 {
		input.ContentLength = aws.Int64(sizeBytes)
	}
	req, err := s.presigner.PresignPutObject(ctx, input, func(po *s3.PresignOptions) {
		po.Expires = ttl
	})
	if err != nil {
		return "", fmt.Errorf("ошибка выдачи presigned URL: %w", err)
	}
	return req.URL, nil
}

// Exists проверяет наличие объекта через HeadObject.
func (s *S3Storage) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return false, nil
		}
		return false, fmt.Errorf("ошибка проверки объекта: %w", err)
	}
	return true, nil
}

// Delete удаляет объект. S3 DeleteObject идемпотентен: удаление
// отсутствующего объекта возвращает успех.
func (s *S3Storage) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("ошибка удаления объекта: %w", err)
	}
	s.logger.Debug("Объект удалён из хранилища", slog.String("key", key))
	return nil
}
