package adapter

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/codes"

	kerneldomain "github.com/shamell/shamell/internal/domain"
	ledgerdomain "github.com/shamell/shamell/internal/ledger/domain"
	"github.com/shamell/shamell/internal/pgdb"
)

var _ ledgerdomain.RoleStore = (*RoleStore)(nil)

// RoleStore gates operator/admin-only Booking operations.
type RoleStore struct {
	pool *pgdb.Pool
}

// NewRoleStore creates a RoleStore.
func NewRoleStore(pool *pgdb.Pool) *RoleStore { return &RoleStore{pool: pool} }

// HasRole reports whether accountID has been granted role.
func (r *RoleStore) HasRole(ctx context.Context, accountID, role string) (bool, error) {
	ctx, span := tracer.Start(ctx, "pg.roles.has_role")
	defer span.End()

	var exists bool
	err := r.pool.DB.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM booking_roles WHERE account_id = $1 AND role = $2)`, accountID, role,
	).Scan(&exists)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, fmt.Errorf("check role: %w", err)
	}
	return exists, nil
}

var _ ledgerdomain.CityRepo = (*CityRepo)(nil)

// CityRepo persists route endpoints.
type CityRepo struct {
	pool *pgdb.Pool
}

// NewCityRepo creates a CityRepo.
func NewCityRepo(pool *pgdb.Pool) *CityRepo { return &CityRepo{pool: pool} }

// Insert creates a new city.
func (r *CityRepo) Insert(ctx context.Context, c ledgerdomain.City) (ledgerdomain.City, error) {
	ctx, span := tracer.Start(ctx, "pg.cities.insert")
	defer span.End()

	if c.ID.IsZero() {
		c.ID = kerneldomain.GenerateCityID()
	}
	_, err := r.pool.DB.Exec(ctx, `INSERT INTO cities (id, name) VALUES ($1, $2)`, c.ID.String(), c.Name)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return ledgerdomain.City{}, fmt.Errorf("insert city: %w", err)
	}
	return c, nil
}

// List returns every city.
func (r *CityRepo) List(ctx context.Context) ([]ledgerdomain.City, error) {
	ctx, span := tracer.Start(ctx, "pg.cities.list")
	defer span.End()

	rows, err := r.pool.DB.Query(ctx, `SELECT id, name FROM cities ORDER BY name`)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("list cities: %w", err)
	}
	defer rows.Close()

	var out []ledgerdomain.City
	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, fmt.Errorf("scan city: %w", err)
		}
		out = append(out, ledgerdomain.City{ID: mustCityID(id), Name: name})
	}
	return out, rows.Err()
}

var _ ledgerdomain.OperatorRepo = (*OperatorRepo)(nil)

// OperatorRepo persists bus operators.
type OperatorRepo struct {
	pool *pgdb.Pool
}

// NewOperatorRepo creates an OperatorRepo.
func NewOperatorRepo(pool *pgdb.Pool) *OperatorRepo { return &OperatorRepo{pool: pool} }

// Insert creates a new operator.
func (r *OperatorRepo) Insert(ctx context.Context, o ledgerdomain.Operator) (ledgerdomain.Operator, error) {
	ctx, span := tracer.Start(ctx, "pg.operators.insert")
	defer span.End()

	if o.ID.IsZero() {
		o.ID = kerneldomain.GenerateOperatorID()
	}
	var walletID *string
	if o.WalletID != nil {
		s := o.WalletID.String()
		walletID = &s
	}
	_, err := r.pool.DB.Exec(ctx,
		`INSERT INTO operators (id, name, wallet_id, is_online) VALUES ($1, $2, $3, $4)`,
		o.ID.String(), o.Name, walletID, o.IsOnline,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return ledgerdomain.Operator{}, fmt.Errorf("insert operator: %w", err)
	}
	return o, nil
}

// Find looks up an operator by id.
func (r *OperatorRepo) Find(ctx context.Context, id kerneldomain.OperatorID) (ledgerdomain.Operator, error) {
	ctx, span := tracer.Start(ctx, "pg.operators.find")
	defer span.End()

	o, err := scanOperator(r.pool.DB.QueryRow(ctx,
		`SELECT id, name, wallet_id, is_online FROM operators WHERE id = $1`, id.String()))
	if err != nil {
		if pgdb.IsNoRows(err) {
			return ledgerdomain.Operator{}, kerneldomain.ErrNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return ledgerdomain.Operator{}, fmt.Errorf("find operator: %w", err)
	}
	return o, nil
}

// List returns every operator.
func (r *OperatorRepo) List(ctx context.Context) ([]ledgerdomain.Operator, error) {
	ctx, span := tracer.Start(ctx, "pg.operators.list")
	defer span.End()

	rows, err := r.pool.DB.Query(ctx, `SELECT id, name, wallet_id, is_online FROM operators ORDER BY name`)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("list operators: %w", err)
	}
	defer rows.Close()

	var out []ledgerdomain.Operator
	for rows.Next() {
		var id, name string
		var walletID *string
		var online bool
		if err := rows.Scan(&id, &name, &walletID, &online); err != nil {
			return nil, fmt.Errorf("scan operator: %w", err)
		}
		o := ledgerdomain.Operator{ID: mustOperatorID(id), Name: name, IsOnline: online}
		if walletID != nil {
			w := kerneldomain.MustWalletID(*walletID)
			o.WalletID = &w
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// SetOnline flips an operator's online flag.
func (r *OperatorRepo) SetOnline(ctx context.Context, id kerneldomain.OperatorID, online bool) error {
	ctx, span := tracer.Start(ctx, "pg.operators.set_online")
	defer span.End()

	_, err := r.pool.DB.Exec(ctx, `UPDATE operators SET is_online = $1 WHERE id = $2`, online, id.String())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("set operator online: %w", err)
	}
	return nil
}

func scanOperator(row pgdb.Row) (ledgerdomain.Operator, error) {
	var o ledgerdomain.Operator
	var id, name string
	var walletID *string
	if err := row.Scan(&id, &name, &walletID, &o.IsOnline); err != nil {
		return ledgerdomain.Operator{}, err
	}
	o.ID = mustOperatorID(id)
	o.Name = name
	if walletID != nil {
		w := kerneldomain.MustWalletID(*walletID)
		o.WalletID = &w
	}
	return o, nil
}

var _ ledgerdomain.RouteRepo = (*RouteRepo)(nil)

// RouteRepo persists bus routes.
type RouteRepo struct {
	pool *pgdb.Pool
}

// NewRouteRepo creates a RouteRepo.
func NewRouteRepo(pool *pgdb.Pool) *RouteRepo { return &RouteRepo{pool: pool} }

// Insert creates a new route.
func (r *RouteRepo) Insert(ctx context.Context, route ledgerdomain.Route) (ledgerdomain.Route, error) {
	ctx, span := tracer.Start(ctx, "pg.routes.insert")
	defer span.End()

	if route.ID.IsZero() {
		route.ID = kerneldomain.GenerateRouteID()
	}
	_, err := r.pool.DB.Exec(ctx,
		`INSERT INTO routes (id, origin_city_id, dest_city_id, operator_id) VALUES ($1, $2, $3, $4)`,
		route.ID.String(), route.OriginCityID.String(), route.DestCityID.String(), route.OperatorID.String(),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return ledgerdomain.Route{}, fmt.Errorf("insert route: %w", err)
	}
	return route, nil
}

// Find looks up a route by id.
func (r *RouteRepo) Find(ctx context.Context, id kerneldomain.RouteID) (ledgerdomain.Route, error) {
	ctx, span := tracer.Start(ctx, "pg.routes.find")
	defer span.End()

	route, err := scanRoute(r.pool.DB.QueryRow(ctx,
		`SELECT id, origin_city_id, dest_city_id, operator_id FROM routes WHERE id = $1`, id.String()))
	if err != nil {
		if pgdb.IsNoRows(err) {
			return ledgerdomain.Route{}, kerneldomain.ErrNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return ledgerdomain.Route{}, fmt.Errorf("find route: %w", err)
	}
	return route, nil
}

// List returns every route.
func (r *RouteRepo) List(ctx context.Context) ([]ledgerdomain.Route, error) {
	ctx, span := tracer.Start(ctx, "pg.routes.list")
	defer span.End()

	rows, err := r.pool.DB.Query(ctx, `SELECT id, origin_city_id, dest_city_id, operator_id FROM routes`)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("list routes: %w", err)
	}
	defer rows.Close()

	var out []ledgerdomain.Route
	for rows.Next() {
		var id, origin, dest, op string
		if err := rows.Scan(&id, &origin, &dest, &op); err != nil {
			return nil, fmt.Errorf("scan route: %w", err)
		}
		out = append(out, ledgerdomain.Route{
			ID: mustRouteID(id), OriginCityID: mustCityID(origin),
			DestCityID: mustCityID(dest), OperatorID: mustOperatorID(op),
		})
	}
	return out, rows.Err()
}

func scanRoute(row pgdb.Row) (ledgerdomain.Route, error) {
	var route ledgerdomain.Route
	var id, origin, dest, op string
	if err := row.Scan(&id, &origin, &dest, &op); err != nil {
		return ledgerdomain.Route{}, err
	}
	route.ID = mustRouteID(id)
	route.OriginCityID = mustCityID(origin)
	route.DestCityID = mustCityID(dest)
	route.OperatorID = mustOperatorID(op)
	return route, nil
}
