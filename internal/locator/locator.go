// Package locator определяет обслуживающий филиал для заказа.
//
// Политика разрешения оформлена как упорядоченный список стратегий:
// сначала ранжирование по расстоянию через внешний сервис, затем
// текстовое совпадение города со справочником филиалов. Неудача любой
// стратегии нефатальна: заказ без филиала попадает в партицию по умолчанию.
package locator

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/mmeshcher/orderhub-system/internal/geo"
	"github.com/mmeshcher/orderhub-system/internal/model"
)

// Request — входные данные для поиска филиала.
type Request struct {
	Coords *model.Coordinates
	City   string
}

// DistanceService описывает контракт внешнего сервиса расстояний.
type DistanceService interface {
	Distances(ctx context.Context, origin model.Coordinates, destinations []model.Coordinates) ([]geo.Element, error)
}

// BranchDirectory возвращает актуальный список филиалов.
type BranchDirectory interface {
	ListBranches(ctx context.Context) ([]model.Branch, error)
}

// Strategy — одна стратегия разрешения. Возвращает филиал и признак успеха.
type Strategy func(ctx context.Context, branches []model.Branch, req Request) (*model.Branch, bool)

// Locator перебирает стратегии по порядку и возвращает первый результат.
type Locator struct {
	dir        BranchDirectory
	strategies []Strategy
	logger     *zap.Logger
}

// New создаёт локатор со стандартной цепочкой стратегий:
// координаты → текстовое совпадение города.
func New(dir BranchDirectory, distance DistanceService, logger *zap.Logger) *Locator {
	l := &Locator{
		dir:    dir,
		logger: logger,
	}
	l.strategies = []Strategy{
		l.byDistance(distance),
		byCityText,
	}
	return l
}

// Locate возвращает ближайший филиал либо nil, если ни одна стратегия
// не дала результата. Никогда не возвращает ошибку: сбои логируются,
// вызывающий продолжает работу с партицией по умолчанию.
func (l *Locator) Locate(ctx context.Context, req Request) *model.Branch {
	branches, err := l.dir.ListBranches(ctx)
	if err != nil {
		l.logger.Warn("branch directory unavailable", zap.Error(err))
		return nil
	}

	for _, strategy := range l.strategies {
		if b, ok := strategy(ctx, branches, req); ok {
			return b
		}
	}
	return nil
}

// byDistance ранжирует филиалы с координатами по transport-расстоянию,
// полученному от внешнего сервиса. Один запрос на заказ, без повторов.
// Побеждает наименьшее валидное расстояние; при равенстве — первый
// по порядку пунктов назначения.
func (l *Locator) byDistance(distance DistanceService) Strategy {
	return func(ctx context.Context, branches []model.Branch, req Request) (*model.Branch, bool) {
		if req.Coords == nil || distance == nil {
			return nil, false
		}

		var candidates []model.Branch
		var dests []model.Coordinates
		for _, b := range branches {
			if b.Location == nil {
				continue
			}
			candidates = append(candidates, b)
			dests = append(dests, *b.Location)
		}
		if len(candidates) == 0 {
			return nil, false
		}

		elements, err := distance.Distances(ctx, *req.Coords, dests)
		if err != nil {
			l.logger.Warn("distance lookup failed", zap.Error(err))
			return nil, false
		}

		best := -1
		for i, el := range elements {
			if i >= len(candidates) || el.Status != geo.StatusOK {
				continue
			}
			if best == -1 || el.DistanceMeters < elements[best].DistanceMeters {
				best = i
			}
		}
		if best == -1 {
			return nil, false
		}

		return &candidates[best], true
	}
}

// byCityText сопоставляет город заказа со справочником: сначала точное
// совпадение, затем вхождение подстроки в любую сторону. Первый найденный
// филиал в порядке справочника побеждает.
func byCityText(_ context.Context, branches []model.Branch, req Request) (*model.Branch, bool) {
	city := strings.ToLower(strings.TrimSpace(req.City))
	if city == "" {
		return nil, false
	}

	for i, b := range branches {
		if strings.ToLower(strings.TrimSpace(b.City)) == city {
			return &branches[i], true
		}
	}

	for i, b := range branches {
		bc := strings.ToLower(strings.TrimSpace(b.City))
		if bc == "" {
			continue
		}
		if strings.Contains(bc, city) || strings.Contains(city, bc) {
			return &branches[i], true
		}
	}

	return nil, false
}
