// Package shard отвечает за маршрутизацию заказов по партициям.
//
// Ключ шардирования — город филиала. Все строки города, совпадающие после
// нормализации, отображаются в одну и ту же партицию.
package shard

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"unicode"
)

// DefaultPartition — партиция для заказов без определённого города.
const DefaultPartition = "Order"

// NormalizeCity приводит название города к каноническому виду:
// все символы, кроме букв и цифр, отбрасываются, слова переводятся
// в Title-регистр и склеиваются без разделителей.
// "cambell river" и "Cambell  River!" дают одинаковый результат.
func NormalizeCity(city string) string {
	var cleaned strings.Builder
	for _, r := range city {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			cleaned.WriteRune(r)
		case unicode.IsSpace(r):
			cleaned.WriteRune(' ')
		}
	}

	var b strings.Builder
	for _, word := range strings.Fields(cleaned.String()) {
		runes := []rune(strings.ToLower(word))
		runes[0] = unicode.ToUpper(runes[0])
		b.WriteString(string(runes))
	}
	return b.String()
}

// PartitionName возвращает имя партиции для сырой строки города.
// Пустой город (после нормализации) попадает в партицию по умолчанию.
func PartitionName(city string) string {
	return DefaultPartition + NormalizeCity(city)
}

// Store описывает контракт хранилища для создания партиций.
// EnsurePartition обязан быть идемпотентным.
type Store interface {
	EnsurePartition(ctx context.Context, name string) error
}

// Directory возвращает список городов, присутствующих в справочнике филиалов.
type Directory interface {
	BranchCities(ctx context.Context) ([]string, error)
}

// Partition — дескриптор партиции заказов.
type Partition struct {
	Name string
}

// Router отображает город в дескриптор партиции.
// Дескрипторы мемоизируются по нормализованному имени: повторный запрос
// того же города возвращает тот же дескриптор без повторной инициализации схемы.
type Router struct {
	store Store
	dir   Directory

	mu         sync.Mutex
	partitions map[string]*Partition
}

// NewRouter создаёт маршрутизатор поверх хранилища и справочника филиалов.
func NewRouter(store Store, dir Directory) *Router {
	return &Router{
		store:      store,
		dir:        dir,
		partitions: make(map[string]*Partition),
	}
}

// PartitionFor возвращает дескриптор партиции для города, при необходимости
// создавая её в хранилище. Потокобезопасен.
func (r *Router) PartitionFor(ctx context.Context, cityRaw string) (*Partition, error) {
	name := PartitionName(cityRaw)

	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.partitions[name]; ok {
		return p, nil
	}

	if err := r.store.EnsurePartition(ctx, name); err != nil {
		return nil, fmt.Errorf("ensure partition %s: %w", name, err)
	}

	p := &Partition{Name: name}
	r.partitions[name] = p
	return p, nil
}

// AllPartitions перечисляет партицию по умолчанию и по одной партиции
// на каждый различный город справочника. Состав справочника меняется,
// поэтому список вычисляется заново при каждом вызове.
// Партиции не создаются: обращение к ещё не созданной партиции — забота вызывающего.
func (r *Router) AllPartitions(ctx context.Context) ([]*Partition, error) {
	cities, err := r.dir.BranchCities(ctx)
	if err != nil {
		return nil, fmt.Errorf("list branch cities: %w", err)
	}

	seen := map[string]bool{DefaultPartition: true}
	res := []*Partition{r.handle(DefaultPartition)}

	for _, city := range cities {
		name := PartitionName(city)
		if seen[name] {
			continue
		}
		seen[name] = true
		res = append(res, r.handle(name))
	}

	return res, nil
}

// handle возвращает мемоизированный дескриптор, если он есть,
// иначе лёгкий дескриптор без создания партиции.
func (r *Router) handle(name string) *Partition {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.partitions[name]; ok {
		return p
	}
	return &Partition{Name: name}
}
