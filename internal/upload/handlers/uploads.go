// uploads.go — обработчики заявок на загрузку: выдача гранта,
// получение заявки, события жизненного цикла, удаление файла
// и ручной запуск очистки.
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	apierrors "github.com/formsight/formsight/internal/api/errors"
	"github.com/formsight/formsight/internal/api/middleware"
	"github.com/formsight/formsight/internal/upload/model"
	"github.com/formsight/formsight/internal/upload/service"
)

// createUploadRequest — тело POST /api/v1/uploads.
type createUploadRequest struct {
	Filename    string `json:"filename"`
	Purpose     string `json:"purpose"`
	ContentType string `json:"content_type"`
	SizeBytes   int64  `json:"size_bytes"`
	FormID      string `json:"form_id,omitempty"`
}

// eventRequest — тело POST /api/v1/uploads/{id}/events.
type eventRequest struct {
	Event string `json:"event"`
}

// callerFromRequest извлекает субъекта операции из claims запроса.
func callerFromRequest(r *http.Request) service.Caller {
	return service.Caller{
		Subject: middleware.SubjectFromContext(r.Context()),
		Admin:   middleware.IsAdminFromContext(r.Context()),
	}
}

// CreateUpload — реализация POST /api/v1/uploads.
// Валидирует метаданные файла, создаёт заявку и возвращает грант
// (presigned URL) со статусом 201.
func (h *APIHandler) CreateUpload(w http.ResponseWriter, r *http.Request) {
	var req createUploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "некорректное тело запроса")
		return
	}

	userID := middleware.SubjectFromContext(r.Context())

	u, err := h.uploads.CreateUpload(r.Context(), service.CreateUploadParams{
		Filename:    req.Filename,
		Purpose:     model.Purpose(req.Purpose),
		ContentType: req.ContentType,
		SizeBytes:   req.SizeBytes,
		UserID:      userID,
		FormID:      req.FormID,
	})
	if err != nil {
		h.writeUploadError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, u)
}

// GetUpload — реализация GET /api/v1/uploads/{id}.
func (h *APIHandler) GetUpload(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		apierrors.ValidationError(w, "id должен быть UUID")
		return
	}

	u, err := h.uploads.GetUpload(r.Context(), id, callerFromRequest(r))
	if err != nil {
		h.writeUploadError(w, err)
		return
	}

	// Грант одноразовый и выдаётся только в ответе на создание
	u.GrantURL = ""
	writeJSON(w, http.StatusOK, u)
}

// PostUploadEvent — реализация POST /api/v1/uploads/{id}/events.
// Применяет событие жизненного цикла: uploaded, processing,
// completed, failed.
func (h *APIHandler) PostUploadEvent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		apierrors.ValidationError(w, "id должен быть UUID")
		return
	}

	var req eventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "некорректное тело запроса")
		return
	}
	event := service.Event(req.Event)
	if !service.ValidEvent(event) {
		apierrors.ValidationError(w, "event: допустимые значения uploaded, processing, completed, failed")
		return
	}

	u, err := h.uploads.HandleEvent(r.Context(), id, event, callerFromRequest(r))
	if err != nil {
		h.writeUploadError(w, err)
		return
	}

	u.GrantURL = ""
	writeJSON(w, http.StatusOK, u)
}

// DeleteFile — реализация DELETE /api/v1/files/{filename}.
// Идемпотентна: повторное удаление и неизвестное имя дают 204.
func (h *APIHandler) DeleteFile(w http.ResponseWriter, r *http.Request) {
	filename := chi.URLParam(r, "filename")
	if filename == "" {
		apierrors.ValidationError(w, "filename обязателен")
		return
	}

	if err := h.uploads.DeleteByFilename(r.Context(), filename, callerFromRequest(r)); err != nil {
		h.writeUploadError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// RunCleanup — реализация POST /api/v1/admin/cleanup.
// Ручной запуск прохода очистки, только для роли admin
// (проверяется middleware). Возвращает итоги прохода.
func (h *APIHandler) RunCleanup(w http.ResponseWriter, r *http.Request) {
	res := h.sweeper.RunOnce(r.Context())
	writeJSON(w, http.StatusOK, res)
}

// writeUploadError преобразует ошибку сервисного слоя в HTTP-ответ.
func (h *APIHandler) writeUploadError(w http.ResponseWriter, err error) {
	var verr *model.ValidationError
	var terr *model.TransitionError
	var ferr *model.FileTooLargeError
	switch {
	case errors.As(err, &ferr):
		apierrors.FileTooLarge(w, ferr.Error())
	case errors.As(err, &verr):
		apierrors.InvalidFile(w, verr.Error())
	case errors.As(err, &terr):
		apierrors.InvalidTransition(w, terr.Error())
	case errors.Is(err, service.ErrForbidden):
		apierrors.Forbidden(w, "Заявка принадлежит другому пользователю")
	case errors.Is(err, service.ErrNotFound):
		apierrors.NotFound(w, "Заявка не найдена")
	case errors.Is(err, service.ErrObjectMissing):
		apierrors.ValidationError(w, "Объект не найден в хранилище")
	default:
		h.logger.Error("Ошибка обработки заявки", slog.String("error", err.Error()))
		apierrors.InternalError(w, "Внутренняя ошибка при обработке заявки")
	}
}
