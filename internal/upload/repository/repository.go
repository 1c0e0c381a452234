// Пакет repository — доступ к заявкам на загрузку в PostgreSQL.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/formsight/formsight/internal/upload/model"
)

// ErrNotFound — заявка не найдена.
var ErrNotFound = errors.New("заявка не найдена")

// UploadRepository — интерфейс доступа к таблице upload_requests.
type UploadRepository interface {
	// Save сохраняет новую заявку.
	Save(ctx context.Context, u *model.UploadRequest) error
	// Update перезаписывает изменяемые поля заявки.
	// Заявки в статусе deleted не перезаписываются.
	Update(ctx context.Context, u *model.UploadRequest) error
	// GetByID возвращает заявку по UUID или ErrNotFound.
	GetByID(ctx context.Context, id string) (*model.UploadRequest, error)
	// GetByFilename возвращает самую свежую неудалённую заявку
	// с данным именем файла или ErrNotFound.
	GetByFilename(ctx context.Context, filename string) (*model.UploadRequest, error)
	// GetByStorageKey возвращает заявку по ключу хранилища.
	GetByStorageKey(ctx context.Context, storageKey string) (*model.UploadRequest, error)
	// FindExpired возвращает заявки с истёкшим грантом в статусах
	// pending и failed, не более limit штук.
	FindExpired(ctx context.Context, now time.Time, limit int) ([]*model.UploadRequest, error)
}
