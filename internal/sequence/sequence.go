// Package sequence выдаёт глобальные номера заказов.
//
// Счётчик один на все партиции — это единственная точка межпартиционной
// координации в системе, поэтому он изолирован за узким интерфейсом
// с единственной атомарной операцией.
package sequence

import (
	"context"
	"fmt"
)

// CounterStore — контракт хранилища счётчика.
// IncrementOrderCounter атомарно увеличивает счётчик и возвращает новое
// значение; два конкурентных вызова никогда не получают одно и то же число.
type CounterStore interface {
	IncrementOrderCounter(ctx context.Context) (int64, error)
}

// Generator формирует номера заказов вида "ORD-00001".
type Generator struct {
	store CounterStore
}

// NewGenerator создаёт генератор поверх хранилища счётчика.
func NewGenerator(store CounterStore) *Generator {
	return &Generator{store: store}
}

// Next возвращает следующий номер заказа. Число дополняется нулями
// до пяти знаков; значения свыше 99999 не усекаются.
func (g *Generator) Next(ctx context.Context) (string, error) {
	n, err := g.store.IncrementOrderCounter(ctx)
	if err != nil {
		return "", fmt.Errorf("increment order counter: %w", err)
	}
	return Format(n), nil
}

// Format форматирует порядковое значение счётчика в номер заказа.
func Format(n int64) string {
	return fmt.Sprintf("ORD-%05d", n)
}
