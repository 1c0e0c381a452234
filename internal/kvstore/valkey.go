// valkey.go — реализация Store поверх Valkey/Redis через valkey-go.
// Ключи хранятся как есть (namespace входит в ключ на уровне кэша),
// TTL — серверный (PX), паттерны — SCAN MATCH + DEL.
package kvstore

import (
	"context"
	"fmt"
	"time"

	"github.com/valkey-io/valkey-go"
)

// ValkeyStore — Store поверх Valkey.
type ValkeyStore struct {
	client valkey.Client
}

// NewValkeyStore создаёт клиент Valkey и проверяет доступность через PING.
// addr — в формате "host:port" (например, "localhost:6379"),
// password может быть пустым.
func NewValkeyStore(ctx context.Context, addr, password string) (*ValkeyStore, error) {
	client, err := valkey.NewClient(valkey.ClientOption{
		InitAddress: []string{addr},
		Password:    password,
	})
	if err != nil {
		return nil, fmt.Errorf("создание valkey клиента: %w", err)
	}

	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("valkey ping: %w", err)
	}

	return &ValkeyStore{client: client}, nil
}

// Get возвращает значение по ключу. Отсутствие ключа — не ошибка.
func (s *ValkeyStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := s.client.Do(ctx, s.client.B().Get().Key(key).Build()).AsBytes()
	if err != nil {
		if valkey.IsValkeyNil(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("valkey get: %w", err)
	}
	return data, true, nil
}

// SetWithTTL сохраняет значение с TTL (SET PX).
func (s *ValkeyStore) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("valkey set: ttl должен быть > 0, получен %s", ttl)
	}

	cmd := s.client.B().Set().Key(key).Value(string(value)).Px(ttl).Build()
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("valkey set: %w", err)
	}
	return nil
}

// Delete удаляет ключ. Возвращает true, если ключ существовал.
func (s *ValkeyStore) Delete(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Do(ctx, s.client.B().Del().Key(key).Build()).AsInt64()
	if err != nil {
		return false, fmt.Errorf("valkey del: %w", err)
	}
	return n > 0, nil
}

// DeleteByPattern удаляет все ключи по glob-паттерну через SCAN + DEL.
// Возвращает количество удалённых ключей.
func (s *ValkeyStore) DeleteByPattern(ctx context.Context, pattern string) (int, error) {
	n := 0
	var cur uint64

	for {
		select {
		case <-ctx.Done():
			return n, ctx.Err()
		default:
		}

		scan, err := s.client.Do(ctx, s.client.B().Scan().Cursor(cur).Match(pattern).Count(100).Build()).AsScanEntry()
		if err != nil {
			return n, fmt.Errorf("valkey scan: %w", err)
		}

		if len(scan.Elements) > 0 {
			c, err := s.client.Do(ctx, s.client.B().Del().Key(scan.Elements...).Build()).AsInt64()
			if err != nil {
				return n, fmt.Errorf("valkey del: %w", err)
			}
			n += int(c)
		}

		cur = scan.Cursor
		if cur == 0 {
			break
		}
	}

	return n, nil
}

// CountByPattern возвращает количество ключей по glob-паттерну через SCAN.
func (s *ValkeyStore) CountByPattern(ctx context.Context, pattern string) (int, error) {
	n := 0
	var cur uint64

	for {
		select {
		case <-ctx.Done():
			return n, ctx.Err()
		default:
		}

		scan, err := s.client.Do(ctx, s.client.B().Scan().Cursor(cur).Match(pattern).Count(100).Build()).AsScanEntry()
		if err != nil {
			return n, fmt.Errorf("valkey scan: %w", err)
		}

		n += len(scan.Elements)
		cur = scan.Cursor
		if cur == 0 {
			break
		}
	}

	return n, nil
}

// Ping проверяет доступность Valkey.
func (s *ValkeyStore) Ping(ctx context.Context) error {
	if err := s.client.Do(ctx, s.client.B().Ping().Build()).Error(); err != nil {
		return fmt.Errorf("valkey ping: %w", err)
	}
	return nil
}

// Close освобождает ресурсы клиента.
func (s *ValkeyStore) Close() error {
	s.client.Close()
	return nil
}

// ReadinessChecker — проверка готовности Valkey для health endpoint.
type ReadinessChecker struct {
	store Store
}

// NewReadinessChecker создаёт проверку готовности key-value хранилища.
func NewReadinessChecker(store Store) *ReadinessChecker {
	return &ReadinessChecker{store: store}
}

// CheckReady проверяет доступность хранилища через ping.
// Кэш — не критичная зависимость: недоступность даёт "degraded", не "fail".
func (c *ReadinessChecker) CheckReady() (status, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := c.store.Ping(ctx); err != nil {
		return "degraded", fmt.Sprintf("key-value хранилище недоступно: %v", err)
	}
	return "ok", "подключение активно"
}
