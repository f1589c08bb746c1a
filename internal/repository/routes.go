package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/chainflow-labs/chainflow/internal/domain"
)

const defaultRouteListLimit = 50

// SaveRoute stores a route plan as an audit record.
func (r *SQLRepository) SaveRoute(ctx context.Context, tenantID string, route *domain.RouteResult) error {
	if err := requireTenant(tenantID); err != nil {
		return err
	}
	path, err := encodeJSON(route.Path)
	if err != nil {
		return err
	}
	unknown, err := encodeJSON(route.UnknownCountries)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO route_plans (
			id, tenant_id, origin, destination, origin_region, destination_region,
			priority, path, cost, time_days, carbon_tons, efficiency_score,
			risk_level, weather_impact, unknown_countries, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.ExecContext(ctx, r.rebind(query),
		route.ID, tenantID, route.Origin, route.Destination,
		string(route.OriginRegion), string(route.DestinationRegion),
		string(route.Priority), path, route.Cost, route.TimeDays, route.CarbonTons,
		route.EfficiencyScore, string(route.RiskLevel), string(route.WeatherImpact),
		unknown, route.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save route: %w", err)
	}
	return nil
}

const routeColumns = `
	id, tenant_id, origin, destination, origin_region, destination_region,
	priority, path, cost, time_days, carbon_tons, efficiency_score,
	risk_level, weather_impact, unknown_countries, created_at
`

func scanRoute(row interface{ Scan(...any) error }) (*domain.RouteResult, error) {
	var rt domain.RouteResult
	var path, unknown sql.NullString
	if err := row.Scan(
		&rt.ID, &rt.TenantID, &rt.Origin, &rt.Destination,
		&rt.OriginRegion, &rt.DestinationRegion, &rt.Priority,
		&path, &rt.Cost, &rt.TimeDays, &rt.CarbonTons, &rt.EfficiencyScore,
		&rt.RiskLevel, &rt.WeatherImpact, &unknown, &rt.CreatedAt,
	); err != nil {
		return nil, err
	}
	if err := decodeJSON(path, &rt.Path, "route path"); err != nil {
		return nil, err
	}
	if err := decodeJSON(unknown, &rt.UnknownCountries, "unknown countries"); err != nil {
		return nil, err
	}
	return &rt, nil
}

// GetRoute retrieves a stored route plan.
func (r *SQLRepository) GetRoute(ctx context.Context, tenantID string, routeID string) (*domain.RouteResult, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}
	query := `SELECT ` + routeColumns + ` FROM route_plans WHERE tenant_id = ? AND id = ?`
	rt, err := scanRoute(r.db.QueryRowContext(ctx, r.rebind(query), tenantID, routeID))
	if err != nil {
		return nil, notFound(err)
	}
	return rt, nil
}

// ListRoutes returns the most recent route plans, newest first.
func (r *SQLRepository) ListRoutes(ctx context.Context, tenantID string, limit int) ([]*domain.RouteResult, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultRouteListLimit
	}

	query := `SELECT ` + routeColumns + ` FROM route_plans WHERE tenant_id = ? ORDER BY created_at DESC LIMIT ?`
	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var routes []*domain.RouteResult
	for rows.Next() {
		rt, err := scanRoute(rows)
		if err != nil {
			return nil, err
		}
		routes = append(routes, rt)
	}
	return routes, rows.Err()
}
