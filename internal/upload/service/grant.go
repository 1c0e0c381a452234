// Пакет service — бизнес-логика Upload Service: выдача грантов
// на загрузку, жизненный цикл заявок и фоновая очистка.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/formsight/formsight/internal/upload/model"
	"github.com/formsight/formsight/internal/upload/repository"
	"github.com/formsight/formsight/internal/upload/storage"
)

// ErrNotFound — заявка не найдена.
var ErrNotFound = errors.New("заявка не найдена")

// ErrObjectMissing — клиент подтвердил загрузку, но объекта нет в хранилище.
var ErrObjectMissing = errors.New("объект не найден в хранилище")

// ErrForbidden — субъект не владеет заявкой и не является администратором.
var ErrForbidden = errors.New("операция запрещена для этого субъекта")

// Caller — субъект, выполняющий операцию над заявкой.
type Caller struct {
	Subject string
	Admin   bool
}

// authorize проверяет право субъекта на заявку: анонимные заявки
// доступны всем, именные — владельцу и администратору.
func authorize(u *model.UploadRequest, c Caller) error {
	if c.Admin || u.UserID == "" || u.UserID == c.Subject {
		return nil
	}
	return ErrForbidden
}

// Метрики жизненного цикла заявок.
var (
	uploadsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "us_uploads_created_total",
		Help: "Количество выданных грантов на загрузку",
	})
	uploadEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "us_upload_events_total",
		Help: "Количество событий жизненного цикла по типам",
	}, []string{"event"})
	uploadsDeleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "us_uploads_deleted_total",
		Help: "Количество удалённых файлов (без учёта очистки)",
	})
)

// Event — событие жизненного цикла заявки от клиента или обработчика.
type Event string

const (
	EventUploaded   Event = "uploaded"
	EventProcessing Event = "processing"
	EventCompleted  Event = "completed"
	EventFailed     Event = "failed"
)

// ValidEvent сообщает, допустимо ли событие.
func ValidEvent(e Event) bool {
	switch e {
	case EventUploaded, EventProcessing, EventCompleted, EventFailed:
		return true
	}
	return false
}

// CreateUploadParams — параметры создания заявки.
type CreateUploadParams struct {
	Filename    string
	Purpose     model.Purpose
	ContentType string
	SizeBytes   int64
	UserID      string
	FormID      string
}

// UploadService — выдача грантов и жизненный цикл заявок.
type UploadService struct {
	repo     repository.UploadRepository
	storage  storage.ObjectStorage
	grantTTL time.Duration
	logger   *slog.Logger
}

// New создаёт сервис загрузок.
func New(repo repository.UploadRepository, st storage.ObjectStorage, grantTTL time.Duration, logger *slog.Logger) *UploadService {
	return &UploadService{
		repo:     repo,
		storage:  st,
		grantTTL: grantTTL,
		logger:   logger.With(slog.String("component", "upload_service")),
	}
}

// CreateUpload валидирует параметры, создаёт заявку в статусе pending,
// выдаёт presigned URL и сохраняет запись. Ошибки валидации
// (model.ValidationError) всплывают к обработчику как есть.
func (s *UploadService) CreateUpload(ctx context.Context, p CreateUploadParams) (*model.UploadRequest, error) {
	u, err := model.NewUploadRequest(p.Filename, p.Purpose, p.ContentType, p.SizeBytes,
		p.UserID, p.FormID, s.grantTTL)
	if err != nil {
		return nil, err
	}

	grantURL, err := s.storage.PresignPut(ctx, u.StorageKey, u.ContentType, u.SizeBytes, s.grantTTL)
	if err != nil {
		return nil, fmt.Errorf("ошибка выдачи гранта: %w", err)
	}
	u.GrantURL = grantURL

	if err := s.repo.Save(ctx, u); err != nil {
		return nil, err
	}

	uploadsCreated.Inc()
	s.logger.Info("Грант на загрузку выдан",
		slog.String("id", u.ID),
		slog.String("storage_key", u.StorageKey),
		slog.String("user_id", u.UserID),
	)
	return u, nil
}

// GetUpload возвращает заявку по UUID с проверкой прав субъекта.
func (s *UploadService) GetUpload(ctx context.Context, id string, caller Caller) (*model.UploadRequest, error) {
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if err := authorize(u, caller); err != nil {
		return nil, err
	}
	return u, nil
}

// HandleEvent применяет событие жизненного цикла к заявке.
// Для события uploaded дополнительно проверяется наличие объекта
// в хранилище: подтверждение без файла отклоняется.
// Недопустимый переход возвращается как model.TransitionError.
func (s *UploadService) HandleEvent(ctx context.Context, id string, event Event, caller Caller) (*model.UploadRequest, error) {
	u, err := s.GetUpload(ctx, id, caller)
	if err != nil {
		return nil, err
	}

	if event == EventUploaded {
		exists, err := s.storage.Exists(ctx, u.StorageKey)
		if err != nil {
			return nil, fmt.Errorf("ошибка проверки объекта: %w", err)
		}
		if !exists {
			return nil, ErrObjectMissing
		}
	}

	var terr error
	switch event {
	case EventUploaded:
		terr = u.MarkUploaded()
	case EventProcessing:
		terr = u.MarkProcessing()
	case EventCompleted:
		terr = u.MarkCompleted()
	case EventFailed:
		terr = u.MarkFailed()
	default:
		return nil, &model.ValidationError{Field: "event", Message: fmt.Sprintf("недопустимое событие %q", event)}
	}
	if terr != nil {
		return nil, terr
	}

	if err := s.repo.Update(ctx, u); err != nil {
		return nil, err
	}

	uploadEvents.WithLabelValues(string(event)).Inc()
	s.logger.Info("Статус заявки изменён",
		slog.String("id", u.ID),
		slog.String("event", string(event)),
		slog.String("status", string(u.Status)),
	)
	return u, nil
}

// DeleteByFilename удаляет файл по сохранённому имени: объект
// убирается из хранилища, заявка помечается deleted. Операция
// идемпотентна — повторное удаление и удаление неизвестного имени
// завершаются успехом. Чужие именные заявки удаляет только admin.
func (s *UploadService) DeleteByFilename(ctx context.Context, filename string, caller Caller) error {
	u, err := s.repo.GetByFilename(ctx, filename)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return err
	}
	if err := authorize(u, caller); err != nil {
		return err
	}
	if u.Status == model.StatusDeleted {
		return nil
	}

	// Сначала хранилище, потом БД: при сбое между шагами заявка
	// остаётся неудалённой, повтор операции безопасен.
	if err := s.storage.Delete(ctx, u.StorageKey); err != nil {
		return fmt.Errorf("ошибка удаления объекта: %w", err)
	}
	if err := u.MarkDeleted(); err != nil {
		return err
	}
	if err := s.repo.Update(ctx, u); err != nil {
		return err
	}

	uploadsDeleted.Inc()
	s.logger.Info("Файл удалён",
		slog.String("id", u.ID),
		slog.String("filename", filename),
	)
	return nil
}
