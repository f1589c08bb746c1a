package repository

// Schema definitions, compatible with both SQLite and PostgreSQL.

const schemaRoutePlans = `
CREATE TABLE IF NOT EXISTS route_plans (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    origin TEXT NOT NULL,
    destination TEXT NOT NULL,
    origin_region TEXT NOT NULL,
    destination_region TEXT NOT NULL,
    priority TEXT NOT NULL,
    path TEXT NOT NULL,
    cost BIGINT NOT NULL,
    time_days INTEGER NOT NULL,
    carbon_tons REAL NOT NULL,
    efficiency_score INTEGER NOT NULL,
    risk_level TEXT NOT NULL,
    weather_impact TEXT NOT NULL,
    unknown_countries TEXT,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_route_plans_tenant ON route_plans(tenant_id, created_at);
`

const schemaTrustAssessments = `
CREATE TABLE IF NOT EXISTS trust_assessments (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    supplier_id TEXT NOT NULL,
    score REAL NOT NULL,
    band TEXT NOT NULL,
    attributes TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_trust_supplier ON trust_assessments(tenant_id, supplier_id, created_at);
`

const schemaFraudAssessments = `
CREATE TABLE IF NOT EXISTS fraud_assessments (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    probability REAL NOT NULL,
    risk_level TEXT NOT NULL,
    degraded INTEGER NOT NULL DEFAULT 0,
    model TEXT NOT NULL,
    model_accuracy REAL NOT NULL,
    attributes TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_fraud_tenant ON fraud_assessments(tenant_id, created_at);
CREATE INDEX IF NOT EXISTS idx_fraud_risk ON fraud_assessments(tenant_id, risk_level);
`

const schemaComplianceRules = `
CREATE TABLE IF NOT EXISTS compliance_rules (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT,
    version TEXT NOT NULL,
    sector TEXT NOT NULL DEFAULT '',
    expression TEXT NOT NULL,
    bands TEXT NOT NULL,
    weight REAL NOT NULL DEFAULT 1.0,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, tenant_id, version)
);

CREATE INDEX IF NOT EXISTS idx_compliance_rules_enabled ON compliance_rules(tenant_id, enabled);
`

// Sector profiles group rules with weights into a per-sector alert score.
const schemaSectorProfiles = `
CREATE TABLE IF NOT EXISTS sector_profiles (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    name TEXT NOT NULL,
    sector TEXT NOT NULL,
    description TEXT,
    version TEXT NOT NULL,
    rules TEXT NOT NULL,
    alert_threshold REAL NOT NULL DEFAULT 0.6,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, tenant_id, version)
);

CREATE INDEX IF NOT EXISTS idx_sector_profiles_enabled ON sector_profiles(tenant_id, enabled);
CREATE INDEX IF NOT EXISTS idx_sector_profiles_sector ON sector_profiles(tenant_id, sector);
`

const schemaVerifications = `
CREATE TABLE IF NOT EXISTS verifications (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    product_id TEXT NOT NULL,
    supplier_id TEXT NOT NULL,
    sector TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL,
    score REAL NOT NULL,
    timestamp TIMESTAMP NOT NULL,
    assessments TEXT NOT NULL,
    rule_results TEXT NOT NULL,
    profile_results TEXT,
    reasons TEXT,
    metadata TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_verifications_product ON verifications(tenant_id, product_id);
CREATE INDEX IF NOT EXISTS idx_verifications_status ON verifications(tenant_id, status);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaRoutePlans,
		schemaTrustAssessments,
		schemaFraudAssessments,
		schemaComplianceRules,
		schemaSectorProfiles,
		schemaVerifications,
	}
}
