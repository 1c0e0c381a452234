// Пакет model — доменная модель заявки на загрузку файла.
//
// Жизненный цикл заявки:
//
//	pending → uploaded → processing → completed
//	   │                     ▲
//	   └─────────────────────┘
//
// failed достижим из любого нетерминального статуса, deleted — из
// любого; повторное удаление — идемпотентный no-op. Оба терминальны.
package model

import (
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status — статус заявки на загрузку.
type Status string

const (
	// StatusPending — заявка создана, грант выдан, файл ещё не загружен
	StatusPending Status = "pending"
	// StatusUploaded — клиент подтвердил загрузку файла в хранилище
	StatusUploaded Status = "uploaded"
	// StatusProcessing — файл обрабатывается (антивирус, превью)
	StatusProcessing Status = "processing"
	// StatusCompleted — обработка завершена, файл доступен
	StatusCompleted Status = "completed"
	// StatusFailed — загрузка или обработка не удалась
	StatusFailed Status = "failed"
	// StatusDeleted — файл удалён из хранилища, запись сохранена
	StatusDeleted Status = "deleted"
)

// Purpose — назначение загружаемого файла.
type Purpose string

const (
	PurposeFormAttachment Purpose = "form_attachment"
	PurposeUserAvatar     Purpose = "user_avatar"
	PurposeDocument       Purpose = "document"
	PurposeImage          Purpose = "image"
	PurposeTemporary      Purpose = "temporary"
)

// validPurposes — допустимые назначения.
var validPurposes = map[Purpose]bool{
	PurposeFormAttachment: true,
	PurposeUserAvatar:     true,
	PurposeDocument:       true,
	PurposeImage:          true,
	PurposeTemporary:      true,
}

// MaxFileSize — максимальный размер файла (100 MiB).
const MaxFileSize = 100 << 20

// allowedExtensions — whitelist расширений загружаемых файлов.
var allowedExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true,
	".pdf": true, ".doc": true, ".docx": true, ".txt": true,
	".csv": true, ".xlsx": true, ".zip": true, ".mp4": true, ".mov": true,
}

// validTransitions — матрица допустимых переходов между статусами.
// Ключ — текущий статус, значение — набор допустимых целевых.
var validTransitions = map[Status]map[Status]bool{
	StatusPending:    {StatusUploaded: true, StatusProcessing: true, StatusFailed: true, StatusDeleted: true},
	StatusUploaded:   {StatusProcessing: true, StatusFailed: true, StatusDeleted: true},
	StatusProcessing: {StatusCompleted: true, StatusFailed: true, StatusDeleted: true},
	StatusCompleted:  {StatusFailed: true, StatusDeleted: true},
	StatusFailed:     {StatusDeleted: true},
	StatusDeleted:    {},
}

// TransitionError — недопустимый переход между статусами заявки.
type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("недопустимый переход статуса: %s → %s", e.From, e.To)
}

// ValidationError — ошибка валидации параметров заявки.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// FileTooLargeError — размер файла превышает MaxFileSize.
type FileTooLargeError struct {
	SizeBytes int64
}

func (e *FileTooLargeError) Error() string {
	return fmt.Sprintf("размер файла %d байт превышает лимит %d байт", e.SizeBytes, int64(MaxFileSize))
}

// UploadRequest — заявка на загрузку файла. Создаётся при выдаче
// гранта на загрузку и живёт дольше самого файла: после удаления
// файла запись остаётся со статусом deleted.
type UploadRequest struct {
	ID               string    `json:"id"`
	Filename         string    `json:"filename"`
	OriginalFilename string    `json:"original_filename"`
	Purpose          Purpose   `json:"purpose"`
	ContentType      string    `json:"content_type"`
	SizeBytes        int64     `json:"size_bytes"`
	Checksum         string    `json:"checksum,omitempty"`
	UserID           string    `json:"user_id,omitempty"`
	FormID           string    `json:"form_id,omitempty"`
	Status           Status    `json:"status"`
	StorageKey       string    `json:"storage_key"`
	GrantURL         string    `json:"grant_url,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	ExpiresAt        time.Time `json:"expires_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// NewUploadRequest создаёт заявку в статусе pending с производным
// ключом хранилища. grantTTL задаёт срок действия гранта (expires_at).
func NewUploadRequest(originalFilename string, purpose Purpose, contentType string, sizeBytes int64, userID, formID string, grantTTL time.Duration) (*UploadRequest, error) {
	if strings.TrimSpace(originalFilename) == "" {
		return nil, &ValidationError{Field: "filename", Message: "имя файла не задано"}
	}
	if !validPurposes[purpose] {
		return nil, &ValidationError{Field: "purpose", Message: fmt.Sprintf("недопустимое назначение %q", purpose)}
	}
	// Метаданные необязательны: нулевой размер означает «неизвестно»
	if sizeBytes < 0 {
		return nil, &ValidationError{Field: "size_bytes", Message: "размер файла не может быть отрицательным"}
	}
	if sizeBytes > MaxFileSize {
		return nil, &FileTooLargeError{SizeBytes: sizeBytes}
	}

	ext := strings.ToLower(path.Ext(originalFilename))
	if !allowedExtensions[ext] {
		return nil, &ValidationError{Field: "filename", Message: fmt.Sprintf("расширение %q не разрешено", ext)}
	}

	id := uuid.New().String()
	now := time.Now().UTC()
	safe := sanitizeFilename(originalFilename)
	storedName := id + "_" + safe

	return &UploadRequest{
		ID:               id,
		Filename:         storedName,
		OriginalFilename: originalFilename,
		Purpose:          purpose,
		ContentType:      contentType,
		SizeBytes:        sizeBytes,
		UserID:           userID,
		FormID:           formID,
		Status:           StatusPending,
		StorageKey:       buildStorageKey(purpose, userID, now, storedName),
		CreatedAt:        now,
		ExpiresAt:        now.Add(grantTTL),
		UpdatedAt:        now,
	}, nil
}

// buildStorageKey формирует ключ объекта в хранилище:
//
//	{purpose}/{user_id|anonymous}/{YYYY/MM/DD}/{uuid}_{filename}
//
// UUID в последнем сегменте гарантирует уникальность ключа даже
// при одновременной загрузке файлов с одинаковым именем.
func buildStorageKey(purpose Purpose, userID string, now time.Time, storedName string) string {
	owner := userID
	if owner == "" {
		owner = "anonymous"
	}
	return fmt.Sprintf("%s/%s/%s/%s",
		purpose, owner, now.Format("2006/01/02"), storedName)
}

// sanitizeFilename убирает из имени файла символы, небезопасные
// для ключа объекта. Разрешены буквы, цифры, точка, дефис
// и подчёркивание; остальное заменяется на '_'.
func sanitizeFilename(name string) string {
	name = path.Base(name)
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// transition выполняет переход в целевой статус или возвращает
// TransitionError.
func (u *UploadRequest) transition(to Status) error {
	if !validTransitions[u.Status][to] {
		return &TransitionError{From: u.Status, To: to}
	}
	u.Status = to
	u.UpdatedAt = time.Now().UTC()
	return nil
}

// MarkUploaded подтверждает загрузку файла в хранилище.
func (u *UploadRequest) MarkUploaded() error {
	return u.transition(StatusUploaded)
}

// MarkProcessing переводит заявку в обработку.
func (u *UploadRequest) MarkProcessing() error {
	return u.transition(StatusProcessing)
}

// MarkCompleted завершает обработку.
func (u *UploadRequest) MarkCompleted() error {
	return u.transition(StatusCompleted)
}

// MarkFailed фиксирует сбой загрузки или обработки.
func (u *UploadRequest) MarkFailed() error {
	return u.transition(StatusFailed)
}

// MarkDeleted помечает заявку удалённой. Для уже удалённой заявки —
// идемпотентный no-op без ошибки.
func (u *UploadRequest) MarkDeleted() error {
	if u.Status == StatusDeleted {
		return nil
	}
	return u.transition(StatusDeleted)
}

// IsTerminal сообщает, находится ли заявка в терминальном статусе.
func (u *UploadRequest) IsTerminal() bool {
	return len(validTransitions[u.Status]) == 0
}

// IsExpired сообщает, истёк ли срок действия гранта на момент now.
func (u *UploadRequest) IsExpired(now time.Time) bool {
	return now.After(u.ExpiresAt)
}

// Sweepable сообщает, подлежит ли заявка очистке: грант истёк,
// а файл так и не был подтверждён либо загрузка завершилась сбоем.
func (u *UploadRequest) Sweepable(now time.Time) bool {
	if !u.IsExpired(now) {
		return false
	}
	return u.Status == StatusPending || u.Status == StatusFailed
}

// ValidStatus сообщает, является ли строка допустимым статусом.
func ValidStatus(s Status) bool {
	_, ok := validTransitions[s]
	return ok
}
