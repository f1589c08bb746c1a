// Package domain defines the core interfaces and types for ChainFlow.
package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence.
// All methods require tenantID for strict multi-tenancy isolation.
type Repository interface {
	// Route audit records
	SaveRoute(ctx context.Context, tenantID string, route *RouteResult) error
	GetRoute(ctx context.Context, tenantID string, routeID string) (*RouteResult, error)
	ListRoutes(ctx context.Context, tenantID string, limit int) ([]*RouteResult, error)

	// Trust assessments
	SaveTrustAssessment(ctx context.Context, tenantID string, a *TrustAssessment) error
	GetTrustAssessment(ctx context.Context, tenantID string, id string) (*TrustAssessment, error)
	CountTrustAssessmentsBySupplier(ctx context.Context, tenantID string, supplierID string, since time.Time) (int64, error)

	// Fraud assessments
	SaveFraudAssessment(ctx context.Context, tenantID string, a *FraudAssessment) error
	GetFraudAssessment(ctx context.Context, tenantID string, id string) (*FraudAssessment, error)

	// Compliance rule configuration
	SaveRule(ctx context.Context, tenantID string, rule *RuleConfig) error
	GetRule(ctx context.Context, tenantID string, ruleID string) (*RuleConfig, error)
	ListRules(ctx context.Context, tenantID string) ([]*RuleConfig, error)

	// Sector profiles
	SaveProfile(ctx context.Context, tenantID string, profile *SectorProfile) error
	GetProfile(ctx context.Context, tenantID string, profileID string) (*SectorProfile, error)
	ListProfiles(ctx context.Context, tenantID string) ([]*SectorProfile, error)
	DeleteProfile(ctx context.Context, tenantID string, profileID string) error

	// Verification results
	SaveVerification(ctx context.Context, tenantID string, v *Verification) error
	GetVerification(ctx context.Context, tenantID string, id string) (*Verification, error)

	Ping(ctx context.Context) error
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string `koanf:"driver" validate:"oneof=sqlite postgres"`

	SQLitePath string `koanf:"sqlite_path"`

	PostgresHost     string `koanf:"postgres_host"`
	PostgresPort     int    `koanf:"postgres_port"`
	PostgresUser     string `koanf:"postgres_user"`
	PostgresPassword string `koanf:"postgres_password"`
	PostgresDB       string `koanf:"postgres_db"`
	PostgresSSLMode  string `koanf:"postgres_sslmode"`

	// Connection pool settings
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
}
