package db

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// Schema creates every table the pipeline touches. Statements are idempotent
// so it runs on each start. It is the only source of DDL: the gorm models map
// rows onto these tables and are never auto-migrated.
const Schema = `
CREATE TABLE IF NOT EXISTS import_jobs (
  id UUID PRIMARY KEY,
  filename TEXT NOT NULL,
  source_path TEXT NOT NULL,
  mode TEXT NOT NULL DEFAULT 'staged',
  status TEXT NOT NULL,
  total_rows BIGINT NOT NULL DEFAULT 0,
  processed_rows BIGINT NOT NULL DEFAULT 0,
  error_message TEXT,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  CHECK (status IN ('pending','parsing','staging','importing','completed','failed')),
  CHECK (processed_rows <= total_rows OR total_rows = 0)
);

CREATE TABLE IF NOT EXISTS products (
  id BIGSERIAL PRIMARY KEY,
  sku VARCHAR(128) NOT NULL,
  name VARCHAR(512) NOT NULL DEFAULT '',
  description TEXT NOT NULL DEFAULT '',
  active BOOLEAN NOT NULL DEFAULT TRUE,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  CHECK (sku = LOWER(sku))
);
CREATE UNIQUE INDEX IF NOT EXISTS products_sku_key ON products (sku);

CREATE UNLOGGED TABLE IF NOT EXISTS product_import_staging (
  id BIGSERIAL PRIMARY KEY,
  job_id UUID NOT NULL,
  sku TEXT,
  name TEXT,
  description TEXT,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_staging_job ON product_import_staging (job_id);

CREATE TABLE IF NOT EXISTS import_task_groups (
  id UUID PRIMARY KEY,
  job_id UUID NOT NULL,
  total_units INT NOT NULL,
  pending INT NOT NULL,
  processed BIGINT NOT NULL DEFAULT 0,
  failed BOOLEAN NOT NULL DEFAULT FALSE,
  finalize_queue TEXT NOT NULL,
  finalize_kind TEXT NOT NULL,
  finalize_payload JSONB NOT NULL,
  finalize_max_attempts INT NOT NULL DEFAULT 3,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS import_tasks (
  id UUID PRIMARY KEY,
  queue TEXT NOT NULL,
  kind TEXT NOT NULL,
  job_id UUID NOT NULL,
  payload JSONB NOT NULL DEFAULT '{}',
  status TEXT NOT NULL,
  attempts INT NOT NULL DEFAULT 0,
  max_attempts INT NOT NULL DEFAULT 3,
  run_after TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  lease_expires_at TIMESTAMPTZ,
  last_error TEXT,
  group_id UUID REFERENCES import_task_groups(id),
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  CHECK (status IN ('queued','running','succeeded','failed'))
);
CREATE INDEX IF NOT EXISTS idx_import_tasks_claim ON import_tasks (queue, status, run_after);
`

func EnsureSchema(ctx context.Context, gdb *gorm.DB) error {
	if err := gdb.WithContext(ctx).Exec(Schema).Error; err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
