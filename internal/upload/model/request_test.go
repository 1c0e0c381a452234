package model

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func newTestRequest(t *testing.T) *UploadRequest {
	t.Helper()
	u, err := NewUploadRequest("report.pdf", PurposeFormAttachment, "application/pdf",
		1024, "user-1", "f1", 15*time.Minute)
	if err != nil {
		t.Fatalf("NewUploadRequest: %v", err)
	}
	return u
}

// TestNewUploadRequest_Defaults проверяет начальное состояние заявки.
func TestNewUploadRequest_Defaults(t *testing.T) {
	u := newTestRequest(t)

	if u.Status != StatusPending {
		t.Errorf("Status = %q, ожидался pending", u.Status)
	}
	if u.ID == "" {
		t.Error("ID не сгенерирован")
	}
	if u.OriginalFilename != "report.pdf" {
		t.Errorf("OriginalFilename = %q", u.OriginalFilename)
	}
	if !strings.HasSuffix(u.Filename, "_report.pdf") {
		t.Errorf("Filename = %q, ожидался суффикс _report.pdf", u.Filename)
	}
	if !u.ExpiresAt.After(u.CreatedAt) {
		t.Error("ExpiresAt должен быть позже CreatedAt")
	}
}

// TestNewUploadRequest_Validation проверяет отказ для некорректных параметров.
func TestNewUploadRequest_Validation(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		purpose  Purpose
		size     int64
		field    string
	}{
		{"пустое имя", "", PurposeUserAvatar, 100, "filename"},
		{"имя из пробелов", "   ", PurposeUserAvatar, 100, "filename"},
		{"запрещённое расширение", "malware.exe", PurposeUserAvatar, 100, "filename"},
		{"без расширения", "noext", PurposeUserAvatar, 100, "filename"},
		{"недопустимое назначение", "a.png", Purpose("backup"), 100, "purpose"},
		{"отрицательный размер", "a.png", PurposeUserAvatar, -1, "size_bytes"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewUploadRequest(tt.filename, tt.purpose, "application/octet-stream",
				tt.size, "u1", "", time.Minute)
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("ожидалась ValidationError, получено %v", err)
			}
			if verr.Field != tt.field {
				t.Errorf("Field = %q, ожидалось %q", verr.Field, tt.field)
			}
		})
	}
}

// TestNewUploadRequest_AllPurposes — каждое допустимое назначение принимается.
func TestNewUploadRequest_AllPurposes(t *testing.T) {
	purposes := []Purpose{
		PurposeFormAttachment,
		PurposeUserAvatar,
		PurposeDocument,
		PurposeImage,
		PurposeTemporary,
	}
	for _, p := range purposes {
		t.Run(string(p), func(t *testing.T) {
			u, err := NewUploadRequest("a.png", p, "image/png", 10, "u1", "", time.Minute)
			if err != nil {
				t.Fatalf("NewUploadRequest(%s): %v", p, err)
			}
			if u.Purpose != p {
				t.Errorf("Purpose = %q", u.Purpose)
			}
		})
	}
}

// TestNewUploadRequest_ZeroSize — нулевой размер означает «размер неизвестен»
// и не является ошибкой.
func TestNewUploadRequest_ZeroSize(t *testing.T) {
	u, err := NewUploadRequest("a.png", PurposeImage, "image/png", 0, "u1", "", time.Minute)
	if err != nil {
		t.Fatalf("NewUploadRequest: %v", err)
	}
	if u.SizeBytes != 0 {
		t.Errorf("SizeBytes = %d", u.SizeBytes)
	}
}

// TestNewUploadRequest_FileTooLarge — превышение лимита даёт отдельный тип ошибки.
func TestNewUploadRequest_FileTooLarge(t *testing.T) {
	_, err := NewUploadRequest("a.png", PurposeUserAvatar, "image/png",
		MaxFileSize+1, "u1", "", time.Minute)
	var ferr *FileTooLargeError
	if !errors.As(err, &ferr) {
		t.Fatalf("ожидалась FileTooLargeError, получено %v", err)
	}
	if ferr.SizeBytes != MaxFileSize+1 {
		t.Errorf("SizeBytes = %d", ferr.SizeBytes)
	}
}

// TestStorageKey_Format проверяет формат ключа хранилища.
func TestStorageKey_Format(t *testing.T) {
	u := newTestRequest(t)

	parts := strings.Split(u.StorageKey, "/")
	// purpose / user / YYYY / MM / DD / uuid_filename
	if len(parts) != 6 {
		t.Fatalf("StorageKey = %q, ожидалось 6 сегментов", u.StorageKey)
	}
	if parts[0] != string(PurposeFormAttachment) {
		t.Errorf("сегмент purpose = %q", parts[0])
	}
	if parts[1] != "user-1" {
		t.Errorf("сегмент владельца = %q", parts[1])
	}
	if !strings.HasSuffix(parts[5], "_report.pdf") {
		t.Errorf("последний сегмент = %q", parts[5])
	}
}

// TestStorageKey_Anonymous — без user_id владелец anonymous.
func TestStorageKey_Anonymous(t *testing.T) {
	u, err := NewUploadRequest("a.png", PurposeUserAvatar, "image/png", 10, "", "", time.Minute)
	if err != nil {
		t.Fatalf("NewUploadRequest: %v", err)
	}
	if !strings.Contains(u.StorageKey, "/anonymous/") {
		t.Errorf("StorageKey = %q, ожидался сегмент anonymous", u.StorageKey)
	}
}

// TestStorageKey_Unique — два файла с одинаковым именем дают разные ключи.
func TestStorageKey_Unique(t *testing.T) {
	u1 := newTestRequest(t)
	u2 := newTestRequest(t)
	if u1.StorageKey == u2.StorageKey {
		t.Errorf("ключи совпали: %q", u1.StorageKey)
	}
}

// TestStorageKey_Sanitized — небезопасные символы заменяются.
func TestStorageKey_Sanitized(t *testing.T) {
	u, err := NewUploadRequest("отчёт (1).pdf", PurposeTemporary, "application/pdf", 10, "u1", "", time.Minute)
	if err != nil {
		t.Fatalf("NewUploadRequest: %v", err)
	}
	last := u.StorageKey[strings.LastIndex(u.StorageKey, "/")+1:]
	for _, r := range last {
		ok := r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' ||
			r == '.' || r == '-' || r == '_'
		if !ok {
			t.Errorf("небезопасный символ %q в сегменте %q", r, last)
		}
	}
}

// TestTransitions_HappyPath проверяет полный жизненный цикл.
func TestTransitions_HappyPath(t *testing.T) {
	u := newTestRequest(t)

	steps := []struct {
		fn   func() error
		want Status
	}{
		{u.MarkUploaded, StatusUploaded},
		{u.MarkProcessing, StatusProcessing},
		{u.MarkCompleted, StatusCompleted},
		{u.MarkDeleted, StatusDeleted},
	}
	for _, s := range steps {
		if err := s.fn(); err != nil {
			t.Fatalf("переход в %s: %v", s.want, err)
		}
		if u.Status != s.want {
			t.Fatalf("Status = %q, ожидался %q", u.Status, s.want)
		}
	}
}

// TestTransitions_PendingToProcessing — обработка может начаться
// до подтверждения загрузки.
func TestTransitions_PendingToProcessing(t *testing.T) {
	u := newTestRequest(t)
	if err := u.MarkProcessing(); err != nil {
		t.Fatalf("pending → processing: %v", err)
	}
	if u.Status != StatusProcessing {
		t.Errorf("Status = %q, ожидался %q", u.Status, StatusProcessing)
	}
}

// TestTransitions_Illegal проверяет запрещённые переходы.
func TestTransitions_Illegal(t *testing.T) {
	// completed → processing запрещён (обработка не перезапускается)
	u := newTestRequest(t)
	_ = u.MarkUploaded()
	_ = u.MarkProcessing()
	_ = u.MarkCompleted()
	var terr *TransitionError
	if err := u.MarkProcessing(); !errors.As(err, &terr) {
		t.Errorf("completed → processing: ожидалась TransitionError, получено %v", err)
	}

	// Повторный MarkUploaded запрещён
	u = newTestRequest(t)
	_ = u.MarkUploaded()
	if err := u.MarkUploaded(); !errors.As(err, &terr) {
		t.Errorf("uploaded → uploaded: ожидалась TransitionError, получено %v", err)
	}
	if terr.From != StatusUploaded || terr.To != StatusUploaded {
		t.Errorf("TransitionError = %v", terr)
	}

	// deleted → failed запрещён (deleted окончателен)
	u = newTestRequest(t)
	_ = u.MarkDeleted()
	if err := u.MarkFailed(); !errors.As(err, &terr) {
		t.Errorf("deleted → failed: ожидалась TransitionError, получено %v", err)
	}
}

// TestMarkDeleted_FromAnyStatus — deleted достижим из любого статуса.
func TestMarkDeleted_FromAnyStatus(t *testing.T) {
	prepare := map[string]func(u *UploadRequest){
		"pending":    func(*UploadRequest) {},
		"uploaded":   func(u *UploadRequest) { _ = u.MarkUploaded() },
		"processing": func(u *UploadRequest) { _ = u.MarkUploaded(); _ = u.MarkProcessing() },
		"completed": func(u *UploadRequest) {
			_ = u.MarkUploaded()
			_ = u.MarkProcessing()
			_ = u.MarkCompleted()
		},
		"failed": func(u *UploadRequest) { _ = u.MarkFailed() },
	}
	for name, fn := range prepare {
		t.Run(name, func(t *testing.T) {
			u := newTestRequest(t)
			fn(u)
			if err := u.MarkDeleted(); err != nil {
				t.Errorf("удаление из %s: %v", name, err)
			}
			if u.Status != StatusDeleted {
				t.Errorf("Status = %q", u.Status)
			}
		})
	}
}

// TestMarkDeleted_Idempotent — повторное удаление не ошибка.
func TestMarkDeleted_Idempotent(t *testing.T) {
	u := newTestRequest(t)

	if err := u.MarkDeleted(); err != nil {
		t.Fatalf("первое удаление: %v", err)
	}
	if err := u.MarkDeleted(); err != nil {
		t.Fatalf("повторное удаление должно быть no-op: %v", err)
	}
	if u.Status != StatusDeleted {
		t.Errorf("Status = %q", u.Status)
	}
}

// TestTerminalStatuses — из failed и deleted нет переходов вперёд.
func TestTerminalStatuses(t *testing.T) {
	u := newTestRequest(t)
	_ = u.MarkFailed()

	var terr *TransitionError
	if err := u.MarkUploaded(); !errors.As(err, &terr) {
		t.Errorf("failed → uploaded: ожидалась TransitionError, получено %v", err)
	}
	// failed → deleted разрешён (очистка)
	if err := u.MarkDeleted(); err != nil {
		t.Errorf("failed → deleted: %v", err)
	}
	if !u.IsTerminal() {
		t.Error("deleted должен быть терминальным")
	}
}

// TestSweepable проверяет условие попадания заявки в очистку.
func TestSweepable(t *testing.T) {
	now := time.Now().UTC()
	past := now.Add(-time.Hour)

	u := newTestRequest(t)
	u.ExpiresAt = past
	if !u.Sweepable(now) {
		t.Error("истёкшая pending-заявка должна подлежать очистке")
	}

	u = newTestRequest(t)
	u.ExpiresAt = past
	_ = u.MarkFailed()
	if !u.Sweepable(now) {
		t.Error("истёкшая failed-заявка должна подлежать очистке")
	}

	// Истёкшая, но подтверждённая загрузка не очищается
	u = newTestRequest(t)
	u.ExpiresAt = past
	_ = u.MarkUploaded()
	if u.Sweepable(now) {
		t.Error("uploaded-заявка не подлежит очистке")
	}

	// Не истёкшая pending-заявка не очищается
	u = newTestRequest(t)
	if u.Sweepable(now) {
		t.Error("действующая pending-заявка не подлежит очистке")
	}
}
