package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/formsight/formsight/internal/upload/model"
	"github.com/formsight/formsight/internal/upload/repository"
)

// fakeRepo — репозиторий заявок в памяти.
type fakeRepo struct {
	mu   sync.Mutex
	byID map[string]*model.UploadRequest
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{byID: map[string]*model.UploadRequest{}}
}

func (r *fakeRepo) Save(_ context.Context, u *model.UploadRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *u
	r.byID[u.ID] = &cp
	return nil
}

func (r *fakeRepo) Update(_ context.Context, u *model.UploadRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.byID[u.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if stored.Status == model.StatusDeleted {
		// Удаление окончательно; идемпотентное повторное удаление — успех
		if u.Status == model.StatusDeleted {
			return nil
		}
		return repository.ErrNotFound
	}
	cp := *u
	r.byID[u.ID] = &cp
	return nil
}

func (r *fakeRepo) GetByID(_ context.Context, id string) (*model.UploadRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *fakeRepo) GetByFilename(_ context.Context, filename string) (*model.UploadRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	// Как в репозитории: самая свежая неудалённая заявка
	var found *model.UploadRequest
	for _, u := range r.byID {
		if u.Filename != filename || u.Status == model.StatusDeleted {
			continue
		}
		if found == nil || u.CreatedAt.After(found.CreatedAt) {
			found = u
		}
	}
	if found == nil {
		return nil, repository.ErrNotFound
	}
	cp := *found
	return &cp, nil
}

func (r *fakeRepo) GetByStorageKey(_ context.Context, storageKey string) (*model.UploadRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.byID {
		if u.StorageKey == storageKey {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *fakeRepo) FindExpired(_ context.Context, now time.Time, limit int) ([]*model.UploadRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*model.UploadRequest{}
	for _, u := range r.byID {
		if len(out) >= limit {
			break
		}
		if u.Sweepable(now) {
			cp := *u
			out = append(out, &cp)
		}
	}
	return out, nil
}

// fakeStorage — объектное хранилище в памяти.
type fakeStorage struct {
	mu      sync.Mutex
	objects map[string]bool
	deletes int
	failAll bool
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{objects: map[string]bool{}}
}

var errStorageDown = errors.New("хранилище недоступно")

func (s *fakeStorage) PresignPut(_ context.Context, key, _ string, _ int64, _ time.Duration) (string, error) {
	if s.failAll {
		return "", errStorageDown
	}
	return "https://storage.example.com/" + key + "?signature=test", nil
}

func (s *fakeStorage) Exists(_ context.Context, key string) (bool, error) {
	if s.failAll {
		return false, errStorageDown
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.objects[key], nil
}

func (s *fakeStorage) Delete(_ context.Context, key string) error {
	if s.failAll {
		return errStorageDown
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	s.deletes++
	return nil
}

// put имитирует загрузку объекта клиентом по presigned URL.
func (s *fakeStorage) put(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = true
}

// owner — субъект, от имени которого создаются тестовые заявки.
var owner = Caller{Subject: "user-1"}

func newTestService() (*UploadService, *fakeRepo, *fakeStorage) {
	repo := newFakeRepo()
	st := newFakeStorage()
	svc := New(repo, st, 15*time.Minute, slog.New(slog.DiscardHandler))
	return svc, repo, st
}

func createTestUpload(t *testing.T, svc *UploadService) *model.UploadRequest {
	t.Helper()
	u, err := svc.CreateUpload(context.Background(), CreateUploadParams{
		Filename:    "report.pdf",
		Purpose:     model.PurposeFormAttachment,
		ContentType: "application/pdf",
		SizeBytes:   2048,
		UserID:      "user-1",
		FormID:      "f1",
	})
	if err != nil {
		t.Fatalf("CreateUpload: %v", err)
	}
	return u
}

// TestCreateUpload выдаёт грант и сохраняет заявку в статусе pending.
func TestCreateUpload(t *testing.T) {
	svc, repo, _ := newTestService()

	u := createTestUpload(t, svc)
	if u.Status != model.StatusPending {
		t.Errorf("Status = %q, ожидался pending", u.Status)
	}
	if u.GrantURL == "" {
		t.Error("GrantURL не выдан")
	}

	stored, err := repo.GetByID(context.Background(), u.ID)
	if err != nil {
		t.Fatalf("заявка не сохранена: %v", err)
	}
	if stored.StorageKey != u.StorageKey {
		t.Errorf("StorageKey = %q, ожидалось %q", stored.StorageKey, u.StorageKey)
	}
}

// TestCreateUpload_ValidationError — ошибка валидации всплывает как есть.
func TestCreateUpload_ValidationError(t *testing.T) {
	svc, _, _ := newTestService()

	_, err := svc.CreateUpload(context.Background(), CreateUploadParams{
		Filename:    "",
		Purpose:     model.PurposeUserAvatar,
		ContentType: "image/png",
		SizeBytes:   10,
	})
	var verr *model.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("ожидалась ValidationError, получено %v", err)
	}
}

// TestCreateUpload_StorageFailure — при сбое хранилища заявка не создаётся.
func TestCreateUpload_StorageFailure(t *testing.T) {
	svc, repo, st := newTestService()
	st.failAll = true

	_, err := svc.CreateUpload(context.Background(), CreateUploadParams{
		Filename:    "a.png",
		Purpose:     model.PurposeUserAvatar,
		ContentType: "image/png",
		SizeBytes:   10,
	})
	if err == nil {
		t.Fatal("ожидалась ошибка при сбое хранилища")
	}
	if len(repo.byID) != 0 {
		t.Error("заявка не должна была сохраниться")
	}
}

// TestHandleEvent_Uploaded — подтверждение с существующим объектом.
func TestHandleEvent_Uploaded(t *testing.T) {
	svc, _, st := newTestService()

	u := createTestUpload(t, svc)
	st.put(u.StorageKey)

	updated, err := svc.HandleEvent(context.Background(), u.ID, EventUploaded, owner)
	if err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	if updated.Status != model.StatusUploaded {
		t.Errorf("Status = %q, ожидался uploaded", updated.Status)
	}
}

// TestHandleEvent_UploadedWithoutObject — подтверждение без файла отклоняется.
func TestHandleEvent_UploadedWithoutObject(t *testing.T) {
	svc, _, _ := newTestService()

	u := createTestUpload(t, svc)

	_, err := svc.HandleEvent(context.Background(), u.ID, EventUploaded, owner)
	if !errors.Is(err, ErrObjectMissing) {
		t.Fatalf("ожидалась ErrObjectMissing, получено %v", err)
	}
}

// TestHandleEvent_IllegalTransition — pending → completed запрещён.
func TestHandleEvent_IllegalTransition(t *testing.T) {
	svc, _, _ := newTestService()

	u := createTestUpload(t, svc)

	var terr *model.TransitionError
	_, err := svc.HandleEvent(context.Background(), u.ID, EventCompleted, owner)
	if !errors.As(err, &terr) {
		t.Fatalf("ожидалась TransitionError, получено %v", err)
	}
}

// TestHandleEvent_NotFound — неизвестная заявка даёт ErrNotFound.
func TestHandleEvent_NotFound(t *testing.T) {
	svc, _, _ := newTestService()

	_, err := svc.HandleEvent(context.Background(), "00000000-0000-0000-0000-000000000000", EventFailed, owner)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("ожидалась ErrNotFound, получено %v", err)
	}
}

// TestAuthorization — чужая именная заявка недоступна не-администратору,
// но доступна владельцу и admin.
func TestAuthorization(t *testing.T) {
	svc, _, _ := newTestService()
	u := createTestUpload(t, svc)

	stranger := Caller{Subject: "user-2"}
	if _, err := svc.GetUpload(context.Background(), u.ID, stranger); !errors.Is(err, ErrForbidden) {
		t.Errorf("чужой субъект: ожидался ErrForbidden, получено %v", err)
	}
	if err := svc.DeleteByFilename(context.Background(), u.Filename, stranger); !errors.Is(err, ErrForbidden) {
		t.Errorf("чужое удаление: ожидался ErrForbidden, получено %v", err)
	}

	if _, err := svc.GetUpload(context.Background(), u.ID, owner); err != nil {
		t.Errorf("владелец: %v", err)
	}
	admin := Caller{Subject: "root", Admin: true}
	if _, err := svc.GetUpload(context.Background(), u.ID, admin); err != nil {
		t.Errorf("admin: %v", err)
	}
}

// TestDeleteByFilename удаляет объект и помечает заявку deleted.
func TestDeleteByFilename(t *testing.T) {
	svc, repo, st := newTestService()

	u := createTestUpload(t, svc)
	st.put(u.StorageKey)

	if err := svc.DeleteByFilename(context.Background(), u.Filename, owner); err != nil {
		t.Fatalf("DeleteByFilename: %v", err)
	}

	stored, _ := repo.GetByID(context.Background(), u.ID)
	if stored.Status != model.StatusDeleted {
		t.Errorf("Status = %q, ожидался deleted", stored.Status)
	}
	if exists, _ := st.Exists(context.Background(), u.StorageKey); exists {
		t.Error("объект должен был быть удалён из хранилища")
	}
}

// TestDeleteByFilename_Idempotent — повтор и неизвестное имя не ошибка.
func TestDeleteByFilename_Idempotent(t *testing.T) {
	svc, _, st := newTestService()

	u := createTestUpload(t, svc)
	st.put(u.StorageKey)

	if err := svc.DeleteByFilename(context.Background(), u.Filename, owner); err != nil {
		t.Fatalf("первое удаление: %v", err)
	}
	deletesAfterFirst := st.deletes

	if err := svc.DeleteByFilename(context.Background(), u.Filename, owner); err != nil {
		t.Fatalf("повторное удаление: %v", err)
	}
	if st.deletes != deletesAfterFirst {
		t.Error("повторное удаление не должно обращаться к хранилищу")
	}

	if err := svc.DeleteByFilename(context.Background(), "unknown.pdf", owner); err != nil {
		t.Fatalf("удаление неизвестного имени: %v", err)
	}
}

// TestDeleteByFilename_SkipsDeleted — имя разрешается в самую свежую
// неудалённую заявку: удалённая тёзка не перехватывает операцию.
func TestDeleteByFilename_SkipsDeleted(t *testing.T) {
	svc, repo, st := newTestService()

	old := createTestUpload(t, svc)
	_ = old.MarkDeleted()
	if err := repo.Update(context.Background(), old); err != nil {
		t.Fatalf("Update: %v", err)
	}

	fresh := createTestUpload(t, svc)
	fresh.Filename = old.Filename
	fresh.CreatedAt = old.CreatedAt.Add(time.Second)
	if err := repo.Update(context.Background(), fresh); err != nil {
		t.Fatalf("Update: %v", err)
	}
	st.put(fresh.StorageKey)

	if err := svc.DeleteByFilename(context.Background(), fresh.Filename, owner); err != nil {
		t.Fatalf("DeleteByFilename: %v", err)
	}
	stored, _ := repo.GetByID(context.Background(), fresh.ID)
	if stored.Status != model.StatusDeleted {
		t.Errorf("Status = %q, ожидался deleted", stored.Status)
	}
}

// TestDeleteByFilename_Processing — удаление достижимо из любого
// статуса, в том числе из обработки.
func TestDeleteByFilename_Processing(t *testing.T) {
	svc, repo, st := newTestService()

	u := createTestUpload(t, svc)
	st.put(u.StorageKey)
	_, _ = svc.HandleEvent(context.Background(), u.ID, EventUploaded, owner)
	_, _ = svc.HandleEvent(context.Background(), u.ID, EventProcessing, owner)

	if err := svc.DeleteByFilename(context.Background(), u.Filename, owner); err != nil {
		t.Fatalf("DeleteByFilename: %v", err)
	}
	stored, _ := repo.GetByID(context.Background(), u.ID)
	if stored.Status != model.StatusDeleted {
		t.Errorf("Status = %q, ожидался deleted", stored.Status)
	}
}
