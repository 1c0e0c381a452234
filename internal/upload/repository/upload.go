package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/formsight/formsight/internal/database"
	"github.com/formsight/formsight/internal/upload/model"
)

// uploadColumns — список столбцов таблицы upload_requests для SELECT-запросов.
// DRY: одно место для всех SELECT'ов.
const uploadColumns = `id, filename, original_filename, purpose, content_type,
	size_bytes, checksum, user_id, form_id, status, storage_key, grant_url,
	created_at, expires_at, updated_at`

// uploadRepo — реализация UploadRepository через pgx.
type uploadRepo struct {
	db database.DBTX
}

// New создаёт репозиторий заявок на загрузку.
func New(db database.DBTX) UploadRepository {
	return &uploadRepo{db: db}
}

// Save сохраняет новую заявку.
func (r *uploadRepo) Save(ctx context.Context, u *model.UploadRequest) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO upload_requests (id, filename, original_filename, purpose,
			content_type, size_bytes, checksum, user_id, form_id, status,
			storage_key, grant_url, created_at, expires_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		u.ID, u.Filename, u.OriginalFilename, u.Purpose,
		u.ContentType, u.SizeBytes, u.Checksum, u.UserID, u.FormID, u.Status,
		u.StorageKey, u.GrantURL, u.CreatedAt, u.ExpiresAt, u.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("ошибка сохранения заявки: %w", err)
	}
	return nil
}

// Update перезаписывает изменяемые поля заявки. Запись в статусе
// deleted не трогается: удаление окончательно, поздние конкурентные
// обновления не могут его откатить.
func (r *uploadRepo) Update(ctx context.Context, u *model.UploadRequest) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE upload_requests
		SET status = $2, checksum = $3, grant_url = $4, updated_at = $5
		WHERE id = $1 AND status <> 'deleted'`,
		u.ID, u.Status, u.Checksum, u.GrantURL, u.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("ошибка обновления заявки: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Либо заявки нет, либо она уже удалена. Для идемпотентного
		// удаления второе — не ошибка.
		if u.Status == model.StatusDeleted {
			return nil
		}
		return ErrNotFound
	}
	return nil
}

// GetByID возвращает заявку по UUID или ErrNotFound.
func (r *uploadRepo) GetByID(ctx context.Context, id string) (*model.UploadRequest, error) {
	return r.getOne(ctx, `WHERE id = $1`, id)
}

// GetByFilename возвращает самую свежую неудалённую заявку
// с данным именем файла.
func (r *uploadRepo) GetByFilename(ctx context.Context, filename string) (*model.UploadRequest, error) {
	return r.getOne(ctx,
		`WHERE filename = $1 AND status <> 'deleted' ORDER BY created_at DESC LIMIT 1`,
		filename)
}

// GetByStorageKey возвращает заявку по ключу хранилища.
func (r *uploadRepo) GetByStorageKey(ctx context.Context, storageKey string) (*model.UploadRequest, error) {
	return r.getOne(ctx, `WHERE storage_key = $1`, storageKey)
}

func (r *uploadRepo) getOne(ctx context.Context, where string, arg any) (*model.UploadRequest, error) {
	query := fmt.Sprintf(`SELECT %s FROM upload_requests %s`, uploadColumns, where)

	u := &model.UploadRequest{}
	err := r.db.QueryRow(ctx, query, arg).Scan(
		&u.ID, &u.Filename, &u.OriginalFilename, &u.Purpose, &u.ContentType,
		&u.SizeBytes, &u.Checksum, &u.UserID, &u.FormID, &u.Status,
		&u.StorageKey, &u.GrantURL, &u.CreatedAt, &u.ExpiresAt, &u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения заявки: %w", err)
	}
	return u, nil
}

// FindExpired возвращает заявки с истёкшим грантом, подлежащие очистке.
// Фильтр по статусу — в SQL: подтверждённые загрузки (uploaded и далее)
// очистке не подлежат, даже если грант истёк.
func (r *uploadRepo) FindExpired(ctx context.Context, now time.Time, limit int) ([]*model.UploadRequest, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM upload_requests
		WHERE expires_at < $1 AND status IN ('pending', 'failed')
		ORDER BY expires_at
		LIMIT $2`, uploadColumns)

	rows, err := r.db.Query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка поиска истёкших заявок: %w", err)
	}
	defer rows.Close()

	out := []*model.UploadRequest{}
	for rows.Next() {
		u := &model.UploadRequest{}
		err := rows.Scan(
			&u.ID, &u.Filename, &u.OriginalFilename, &u.Purpose, &u.ContentType,
			&u.SizeBytes, &u.Checksum, &u.UserID, &u.FormID, &u.Status,
			&u.StorageKey, &u.GrantURL, &u.CreatedAt, &u.ExpiresAt, &u.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("ошибка чтения строки: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}
