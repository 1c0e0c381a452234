// cleanup.go — фоновая очистка истёкших заявок.
//
// Периодически находит заявки с истёкшим грантом в статусах pending
// и failed, удаляет объекты из хранилища и помечает заявки deleted.
// Одновременно выполняется не более одного прохода: ручной запуск
// через админ-эндпоинт и тикер не пересекаются.
package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/formsight/formsight/internal/upload/repository"
	"github.com/formsight/formsight/internal/upload/storage"
)

// Метрики очистки.
var (
	cleanupRuns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "us_cleanup_runs_total",
		Help: "Количество проходов очистки",
	})
	cleanupDeleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "us_cleanup_deleted_total",
		Help: "Количество заявок, удалённых очисткой",
	})
	cleanupErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "us_cleanup_errors_total",
		Help: "Количество ошибок при очистке отдельных заявок",
	})
	cleanupDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "us_cleanup_duration_seconds",
		Help:    "Длительность прохода очистки",
		Buckets: prometheus.DefBuckets,
	})
)

// SweepResult — итоги одного прохода очистки.
type SweepResult struct {
	// Количество найденных истёкших заявок
	TotalFound int `json:"total_found"`
	// Количество объектов, удалённых из хранилища
	DeletedFromStorage int `json:"deleted_from_storage"`
	// Количество заявок, помеченных deleted в БД
	UpdatedInDB int `json:"updated_in_db"`
	// Количество заявок, обработка которых завершилась ошибкой
	Errors int `json:"errors"`
}

// CleanupSweeper — фоновая очистка истёкших заявок.
type CleanupSweeper struct {
	repo      repository.UploadRepository
	storage   storage.ObjectStorage
	interval  time.Duration
	batchSize int
	logger    *slog.Logger

	// runMu сериализует проходы: тикер и ручной запуск не пересекаются
	runMu sync.Mutex

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewCleanupSweeper создаёт очистку с заданным интервалом.
func NewCleanupSweeper(repo repository.UploadRepository, st storage.ObjectStorage, interval time.Duration, batchSize int, logger *slog.Logger) *CleanupSweeper {
	return &CleanupSweeper{
		repo:      repo,
		storage:   st,
		interval:  interval,
		batchSize: batchSize,
		logger:    logger.With(slog.String("component", "cleanup")),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Start запускает периодическую очистку в отдельной горутине.
func (c *CleanupSweeper) Start(ctx context.Context) {
	go func() {
		defer close(c.doneCh)

		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()

		c.logger.Info("Фоновая очистка запущена", slog.Duration("interval", c.interval))
		for {
			select {
			case <-ticker.C:
				c.RunOnce(ctx)
			case <-c.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop останавливает фоновую очистку и дожидается завершения горутины.
func (c *CleanupSweeper) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
	})
	<-c.doneCh
	c.logger.Info("Фоновая очистка остановлена")
}

// RunOnce выполняет один проход очистки. Ошибки отдельных заявок
// не прерывают проход: такие заявки попадут в следующий.
func (c *CleanupSweeper) RunOnce(ctx context.Context) SweepResult {
	c.runMu.Lock()
	defer c.runMu.Unlock()

	start := time.Now()
	cleanupRuns.Inc()

	var res SweepResult

	expired, err := c.repo.FindExpired(ctx, time.Now().UTC(), c.batchSize)
	if err != nil {
		c.logger.Error("Ошибка поиска истёкших заявок", slog.String("error", err.Error()))
		res.Errors++
		cleanupErrors.Inc()
		return res
	}
	res.TotalFound = len(expired)

	for _, u := range expired {
		// Объект мог так и не появиться в хранилище (грант не использован)
		exists, err := c.storage.Exists(ctx, u.StorageKey)
		if err != nil {
			c.logger.Warn("Ошибка проверки объекта при очистке",
				slog.String("id", u.ID),
				slog.String("storage_key", u.StorageKey),
				slog.String("error", err.Error()),
			)
			res.Errors++
			cleanupErrors.Inc()
			continue
		}
		if exists {
			// Сбой удаления объекта не блокирует пометку deleted
			if err := c.storage.Delete(ctx, u.StorageKey); err != nil {
				c.logger.Warn("Ошибка удаления объекта при очистке",
					slog.String("id", u.ID),
					slog.String("storage_key", u.StorageKey),
					slog.String("error", err.Error()),
				)
				res.Errors++
				cleanupErrors.Inc()
			} else {
				res.DeletedFromStorage++
			}
		}

		if err := u.MarkDeleted(); err != nil {
			// Статус изменился между выборкой и обработкой
			c.logger.Warn("Заявка выбыла из очистки",
				slog.String("id", u.ID),
				slog.String("status", string(u.Status)),
			)
			res.Errors++
			cleanupErrors.Inc()
			continue
		}
		if err := c.repo.Update(ctx, u); err != nil {
			c.logger.Warn("Ошибка обновления заявки при очистке",
				slog.String("id", u.ID),
				slog.String("error", err.Error()),
			)
			res.Errors++
			cleanupErrors.Inc()
			continue
		}
		res.UpdatedInDB++
		cleanupDeleted.Inc()
	}

	cleanupDuration.Observe(time.Since(start).Seconds())
	c.logger.Info("Проход очистки завершён",
		slog.Int("total_found", res.TotalFound),
		slog.Int("deleted_from_storage", res.DeletedFromStorage),
		slog.Int("updated_in_db", res.UpdatedInDB),
		slog.Int("errors", res.Errors),
		slog.Duration("duration", time.Since(start)),
	)
	return res
}
