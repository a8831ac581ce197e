// Package aggregate собирает заказы со всех партиций в единое представление.
//
// Глобального индекса заказов нет: поиск по идентификатору опрашивает
// каждую известную партицию до первого попадания, списки объединяются
// из всех партиций. Сбой отдельной партиции (например, ещё не созданной)
// исключает её из результата, но не прерывает операцию.
package aggregate

import (
	"context"
	"errors"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/orderhub-system/internal/model"
	"github.com/mmeshcher/orderhub-system/internal/repository"
	"github.com/mmeshcher/orderhub-system/internal/shard"
)

// Store описывает операции чтения заказов в пределах одной партиции.
type Store interface {
	ListOrders(ctx context.Context, partition string, filter repository.OrderFilter) ([]model.Order, error)
	GetOrderByNumber(ctx context.Context, partition, number string) (*model.Order, error)
	GetOrderByID(ctx context.Context, partition string, id uuid.UUID) (*model.Order, error)
}

// Partitions перечисляет известные партиции в стабильном порядке.
type Partitions interface {
	AllPartitions(ctx context.Context) ([]*shard.Partition, error)
}

// Aggregator выполняет чтение заказов поверх всех партиций.
type Aggregator struct {
	store  Store
	router Partitions
	logger *zap.Logger
}

// New создаёт агрегатор поверх хранилища и маршрутизатора партиций.
func New(store Store, router Partitions, logger *zap.Logger) *Aggregator {
	return &Aggregator{
		store:  store,
		router: router,
		logger: logger,
	}
}

// ListAll возвращает заказы всех партиций, отсортированные по времени
// создания по убыванию. Партиции, вернувшие ошибку, пропускаются.
func (a *Aggregator) ListAll(ctx context.Context, filter repository.OrderFilter) ([]model.Order, error) {
	partitions, err := a.router.AllPartitions(ctx)
	if err != nil {
		return nil, err
	}

	var merged []model.Order
	for _, p := range partitions {
		orders, err := a.store.ListOrders(ctx, p.Name, filter)
		if err != nil {
			a.logger.Debug("partition skipped", zap.String("partition", p.Name), zap.Error(err))
			continue
		}
		merged = append(merged, orders...)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].CreatedAt.After(merged[j].CreatedAt)
	})

	return merged, nil
}

// FindByNumber ищет заказ по номеру, опрашивая партиции по порядку.
// Возвращает заказ и имя партиции-владельца. Промах фиксируется только
// после проверки всех партиций.
func (a *Aggregator) FindByNumber(ctx context.Context, number string) (*model.Order, string, error) {
	return a.probe(ctx, func(partition string) (*model.Order, error) {
		return a.store.GetOrderByNumber(ctx, partition, number)
	})
}

// FindByID ищет заказ по внутреннему идентификатору записи.
func (a *Aggregator) FindByID(ctx context.Context, id uuid.UUID) (*model.Order, string, error) {
	return a.probe(ctx, func(partition string) (*model.Order, error) {
		return a.store.GetOrderByID(ctx, partition, id)
	})
}

func (a *Aggregator) probe(ctx context.Context, lookup func(partition string) (*model.Order, error)) (*model.Order, string, error) {
	partitions, err := a.router.AllPartitions(ctx)
	if err != nil {
		return nil, "", err
	}

	for _, p := range partitions {
		o, err := lookup(p.Name)
		if err != nil {
			if !errors.Is(err, repository.ErrOrderNotFound) {
				a.logger.Debug("partition skipped", zap.String("partition", p.Name), zap.Error(err))
			}
			continue
		}
		return o, p.Name, nil
	}

	return nil, "", repository.ErrOrderNotFound
}
