// Package repository содержит реализацию доступа к данным в PostgreSQL.
//
// Фиксированные таблицы (покупатели, филиалы, счётчик заказов) создаются
// миграциями. Таблицы заказов создаются лениво, по одной на партицию:
// имя таблицы совпадает с именем партиции шардирования.
package repository

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/mmeshcher/orderhub-system/internal/model"
	"github.com/mmeshcher/orderhub-system/internal/shard"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrCustomerExists возвращается при попытке создать покупателя с занятым логином.
var (
	ErrCustomerExists = errors.New("customer already exists")
	// ErrCustomerNotFound возвращается, если покупатель не найден.
	ErrCustomerNotFound = errors.New("customer not found")
	// ErrOrderNotFound возвращается, если заказ не найден в партиции.
	ErrOrderNotFound = errors.New("order not found")
	// ErrBranchNotFound возвращается, если филиал не найден.
	ErrBranchNotFound = errors.New("branch not found")
)

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// CreateCustomer создаёт нового покупателя с нулевым бонусным балансом.
func (r *PostgresRepository) CreateCustomer(ctx context.Context, login string, passwordHash []byte, role model.Role) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO customers (login, password_hash, role) VALUES ($1, $2, $3) RETURNING id`,
		login, passwordHash, string(role),
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return 0, fmt.Errorf("%w: %s", ErrCustomerExists, login)
		}
		return 0, fmt.Errorf("create customer: %w", err)
	}
	return id, nil
}

// GetCustomerByLogin возвращает покупателя по логину.
func (r *PostgresRepository) GetCustomerByLogin(ctx context.Context, login string) (*model.Customer, error) {
	return r.getCustomer(ctx,
		`SELECT id, login, password_hash, role, loyalty_points, created_at FROM customers WHERE login = $1`,
		login,
	)
}

// GetCustomerByID возвращает покупателя по идентификатору.
func (r *PostgresRepository) GetCustomerByID(ctx context.Context, id int64) (*model.Customer, error) {
	return r.getCustomer(ctx,
		`SELECT id, login, password_hash, role, loyalty_points, created_at FROM customers WHERE id = $1`,
		id,
	)
}

func (r *PostgresRepository) getCustomer(ctx context.Context, query string, arg any) (*model.Customer, error) {
	var (
		c    model.Customer
		role string
	)
	err := r.pool.QueryRow(ctx, query, arg).Scan(&c.ID, &c.Login, &c.PasswordHash, &role, &c.LoyaltyPoints, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCustomerNotFound
		}
		return nil, fmt.Errorf("get customer: %w", err)
	}
	c.Role = model.Role(role)
	return &c, nil
}

// ApplyLoyaltyDelta применяет дельту бонусного баланса одним оператором:
// списание не опускает баланс ниже нуля, начисление добавляется сверху.
func (r *PostgresRepository) ApplyLoyaltyDelta(ctx context.Context, customerID, pointsUsed, pointsEarned int64) error {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE customers SET loyalty_points = GREATEST(0, loyalty_points - $2) + $3 WHERE id = $1`,
		customerID, pointsUsed, pointsEarned,
	)
	if err != nil {
		return fmt.Errorf("apply loyalty delta: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrCustomerNotFound
	}
	return nil
}

// CreateBranch сохраняет филиал и возвращает его идентификатор.
// Slug выводится из города и не принимается извне.
func (r *PostgresRepository) CreateBranch(ctx context.Context, b *model.Branch) (int64, error) {
	var lat, lng *float64
	if b.Location != nil {
		lat, lng = &b.Location.Lat, &b.Location.Lng
	}

	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO branches (name, address, city, postal_code, lat, lng, slug)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id`,
		b.Name, b.Address, b.City, b.PostalCode, lat, lng, shard.NormalizeCity(b.City),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create branch: %w", err)
	}
	return id, nil
}

// UpdateBranch обновляет данные филиала, пересчитывая slug по городу.
func (r *PostgresRepository) UpdateBranch(ctx context.Context, b *model.Branch) error {
	var lat, lng *float64
	if b.Location != nil {
		lat, lng = &b.Location.Lat, &b.Location.Lng
	}

	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE branches
		 SET name = $2, address = $3, city = $4, postal_code = $5, lat = $6, lng = $7, slug = $8
		 WHERE id = $1`,
		b.ID, b.Name, b.Address, b.City, b.PostalCode, lat, lng, shard.NormalizeCity(b.City),
	)
	if err != nil {
		return fmt.Errorf("update branch: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrBranchNotFound
	}
	return nil
}

// DeleteBranch удаляет филиал. Партиции, созданные для его города, остаются.
func (r *PostgresRepository) DeleteBranch(ctx context.Context, id int64) error {
	cmdTag, err := r.pool.Exec(ctx, `DELETE FROM branches WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete branch: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrBranchNotFound
	}
	return nil
}

// ListBranches возвращает филиалы в порядке их создания.
func (r *PostgresRepository) ListBranches(ctx context.Context) ([]model.Branch, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, name, address, city, postal_code, lat, lng, slug, created_at
		 FROM branches
		 ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("select branches: %w", err)
	}
	defer rows.Close()

	var res []model.Branch
	for rows.Next() {
		var (
			b        model.Branch
			lat, lng *float64
		)
		if err := rows.Scan(&b.ID, &b.Name, &b.Address, &b.City, &b.PostalCode, &lat, &lng, &b.Slug, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan branch: %w", err)
		}
		if lat != nil && lng != nil {
			b.Location = &model.Coordinates{Lat: *lat, Lng: *lng}
		}
		res = append(res, b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// BranchCities возвращает города филиалов в порядке справочника.
func (r *PostgresRepository) BranchCities(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT city FROM branches ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("select branch cities: %w", err)
	}
	defer rows.Close()

	var res []string
	for rows.Next() {
		var city string
		if err := rows.Scan(&city); err != nil {
			return nil, fmt.Errorf("scan city: %w", err)
		}
		res = append(res, city)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// IncrementOrderCounter атомарно увеличивает глобальный счётчик заказов
// и возвращает новое значение. Единственная точка сериализации между
// партициями: upsert с инкрементом выполняется одним оператором,
// поэтому два конкурентных вызова не могут получить одно число.
func (r *PostgresRepository) IncrementOrderCounter(ctx context.Context) (int64, error) {
	var last int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO order_counter (id, last_number) VALUES ('global', 1)
		 ON CONFLICT (id) DO UPDATE SET last_number = order_counter.last_number + 1
		 RETURNING last_number`,
	).Scan(&last)
	if err != nil {
		return 0, fmt.Errorf("increment order counter: %w", err)
	}
	return last, nil
}

// EnsurePartition создаёт таблицу партиции заказов, если её ещё нет.
// Операция идемпотентна и безопасна при повторных и конкурентных вызовах.
func (r *PostgresRepository) EnsurePartition(ctx context.Context, name string) error {
	table := pgx.Identifier{name}.Sanitize()

	_, err := r.pool.Exec(ctx, fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS %s (
			id UUID PRIMARY KEY,
			number TEXT NOT NULL UNIQUE,
			customer_id BIGINT NOT NULL,
			items JSONB NOT NULL,
			subtotal BIGINT NOT NULL,
			tax BIGINT NOT NULL,
			total BIGINT NOT NULL,
			points_used BIGINT NOT NULL DEFAULT 0,
			points_earned BIGINT NOT NULL DEFAULT 0,
			status TEXT NOT NULL,
			payment_method TEXT NOT NULL DEFAULT '',
			address TEXT NOT NULL DEFAULT '',
			city TEXT NOT NULL DEFAULT '',
			postal_code TEXT NOT NULL DEFAULT '',
			order_type TEXT NOT NULL,
			branch_name TEXT NOT NULL DEFAULT '',
			customer_lat DOUBLE PRECISION,
			customer_lng DOUBLE PRECISION,
			branch_lat DOUBLE PRECISION,
			branch_lng DOUBLE PRECISION,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`, table))
	if err != nil {
		return fmt.Errorf("create partition %s: %w", name, err)
	}

	_, err = r.pool.Exec(ctx, fmt.Sprintf(
		`CREATE INDEX IF NOT EXISTS %s ON %s (customer_id)`,
		pgx.Identifier{name + "_customer_idx"}.Sanitize(), table))
	if err != nil {
		return fmt.Errorf("index partition %s: %w", name, err)
	}

	return nil
}

const orderColumns = `id, number, customer_id, items, subtotal, tax, total,
	points_used, points_earned, status, payment_method, address, city,
	postal_code, order_type, branch_name, customer_lat, customer_lng,
	branch_lat, branch_lng, created_at, updated_at`

// InsertOrder сохраняет заказ в указанную партицию.
func (r *PostgresRepository) InsertOrder(ctx context.Context, partition string, o *model.Order) error {
	items, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("marshal items: %w", err)
	}

	custLat, custLng := coordCols(o.CustomerLocation)
	branchLat, branchLng := coordCols(o.BranchLocation)

	_, err = r.pool.Exec(ctx, fmt.Sprintf(
		`INSERT INTO %s (`+orderColumns+`)
		 VALUES ($1, $2, $3, $4::jsonb, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)`,
		pgx.Identifier{partition}.Sanitize()),
		o.ID.String(), o.Number, o.CustomerID, string(items),
		o.SubtotalCents, o.TaxCents, o.TotalCents,
		o.PointsUsed, o.PointsEarned, string(o.Status), o.PaymentMethod,
		o.Address, o.City, o.PostalCode, string(o.OrderType), o.BranchName,
		custLat, custLng, branchLat, branchLng,
		o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

// UpdateOrder перезаписывает изменяемые поля заказа в его партиции.
func (r *PostgresRepository) UpdateOrder(ctx context.Context, partition string, o *model.Order) error {
	items, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("marshal items: %w", err)
	}

	cmdTag, err := r.pool.Exec(ctx, fmt.Sprintf(
		`UPDATE %s
		 SET items = $2::jsonb, subtotal = $3, tax = $4, total = $5,
		     points_used = $6, points_earned = $7, status = $8,
		     payment_method = $9, address = $10, city = $11,
		     postal_code = $12, updated_at = $13
		 WHERE number = $1`,
		pgx.Identifier{partition}.Sanitize()),
		o.Number, string(items),
		o.SubtotalCents, o.TaxCents, o.TotalCents,
		o.PointsUsed, o.PointsEarned, string(o.Status),
		o.PaymentMethod, o.Address, o.City, o.PostalCode, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

// OrderFilter ограничивает выборку заказов.
// Нулевой CustomerID и пустой Status означают отсутствие ограничения.
type OrderFilter struct {
	CustomerID int64
	Status     model.OrderStatus
}

// ListOrders возвращает заказы партиции, новые первыми.
func (r *PostgresRepository) ListOrders(ctx context.Context, partition string, filter OrderFilter) ([]model.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM ` + pgx.Identifier{partition}.Sanitize() +
		` WHERE ($1 = 0 OR customer_id = $1) AND ($2 = '' OR status = $2)
		  ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, filter.CustomerID, string(filter.Status))
	if err != nil {
		return nil, fmt.Errorf("select orders: %w", err)
	}
	defer rows.Close()

	var res []model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// GetOrderByNumber возвращает заказ по его номеру в пределах одной партиции.
func (r *PostgresRepository) GetOrderByNumber(ctx context.Context, partition, number string) (*model.Order, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM `+pgx.Identifier{partition}.Sanitize()+` WHERE number = $1`,
		number,
	)
	return scanOrderRow(row)
}

// GetOrderByID возвращает заказ по внутреннему идентификатору записи
// в пределах одной партиции.
func (r *PostgresRepository) GetOrderByID(ctx context.Context, partition string, id uuid.UUID) (*model.Order, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM `+pgx.Identifier{partition}.Sanitize()+` WHERE id = $1`,
		id.String(),
	)
	return scanOrderRow(row)
}

func scanOrderRow(row pgx.Row) (*model.Order, error) {
	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return o, nil
}

func scanOrder(row pgx.Row) (*model.Order, error) {
	var (
		o                    model.Order
		idStr                string
		itemsRaw             []byte
		status, orderType    string
		custLat, custLng     *float64
		branchLat, branchLng *float64
	)

	err := row.Scan(&idStr, &o.Number, &o.CustomerID, &itemsRaw,
		&o.SubtotalCents, &o.TaxCents, &o.TotalCents,
		&o.PointsUsed, &o.PointsEarned, &status, &o.PaymentMethod,
		&o.Address, &o.City, &o.PostalCode, &orderType, &o.BranchName,
		&custLat, &custLng, &branchLat, &branchLng,
		&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan order: %w", err)
	}

	o.ID, err = uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("parse order id: %w", err)
	}

	if err := json.Unmarshal(itemsRaw, &o.Items); err != nil {
		return nil, fmt.Errorf("unmarshal items: %w", err)
	}

	o.Status = model.OrderStatus(status)
	o.OrderType = model.OrderType(orderType)

	if custLat != nil && custLng != nil {
		o.CustomerLocation = &model.Coordinates{Lat: *custLat, Lng: *custLng}
	}
	if branchLat != nil && branchLng != nil {
		o.BranchLocation = &model.Coordinates{Lat: *branchLat, Lng: *branchLng}
	}

	return &o, nil
}

func coordCols(c *model.Coordinates) (*float64, *float64) {
	if c == nil {
		return nil, nil
	}
	return &c.Lat, &c.Lng
}
