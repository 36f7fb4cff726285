package postgres

var schemaDDL = []string{
	`CREATE TABLE IF NOT EXISTS clients (
		client_id    TEXT PRIMARY KEY,
		email        TEXT NOT NULL,
		display_name TEXT,
		created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS waterbodies (
		waterbody_id TEXT PRIMARY KEY,
		client_id    TEXT NOT NULL REFERENCES clients(client_id),
		name         TEXT NOT NULL,
		type         TEXT NOT NULL CHECK (type IN ('reservoir','lake','river','lagoon','wetland','canal','unknown')),
		confidence   DOUBLE PRECISION NOT NULL DEFAULT 0,
		provenance   TEXT[] NOT NULL DEFAULT '{}',
		UNIQUE (client_id, name, type)
	)`,
	`CREATE TABLE IF NOT EXISTS sampling_points (
		sampling_point_id TEXT PRIMARY KEY,
		client_id         TEXT NOT NULL REFERENCES clients(client_id),
		waterbody_id      TEXT REFERENCES waterbodies(waterbody_id),
		code              TEXT NOT NULL,
		name              TEXT,
		lat               DOUBLE PRECISION,
		lon               DOUBLE PRECISION,
		depth_m           DOUBLE PRECISION,
		UNIQUE (client_id, code)
	)`,
	`CREATE TABLE IF NOT EXISTS parameters (
		parameter_id  BIGSERIAL PRIMARY KEY,
		code          TEXT NOT NULL UNIQUE,
		display_name  TEXT NOT NULL,
		standard_unit TEXT NOT NULL,
		allowed_units TEXT[] NOT NULL DEFAULT '{}',
		category      TEXT NOT NULL DEFAULT 'unknown'
	)`,
	`CREATE TABLE IF NOT EXISTS non_parameters (
		code TEXT PRIMARY KEY
	)`,
	`CREATE TABLE IF NOT EXISTS quality_flags (
		quality_flag_id SMALLINT PRIMARY KEY,
		code            TEXT NOT NULL UNIQUE,
		label           TEXT NOT NULL,
		description     TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS datasets (
		dataset_id   TEXT PRIMARY KEY,
		client_id    TEXT NOT NULL REFERENCES clients(client_id),
		waterbody_id TEXT REFERENCES waterbodies(waterbody_id),
		file_name    TEXT NOT NULL,
		sheet_name   TEXT,
		row_count    INTEGER NOT NULL,
		col_count    INTEGER NOT NULL,
		content_hash TEXT UNIQUE,
		uploaded_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS measurements (
		measurement_id    BIGSERIAL PRIMARY KEY,
		dataset_id        TEXT NOT NULL REFERENCES datasets(dataset_id) ON DELETE CASCADE,
		sampling_point_id TEXT REFERENCES sampling_points(sampling_point_id),
		parameter_id      BIGINT NOT NULL REFERENCES parameters(parameter_id),
		ts                TIMESTAMPTZ,
		value             DOUBLE PRECISION,
		unit              TEXT,
		value_qualifier   TEXT,
		source_column     TEXT,
		method            TEXT,
		quality_flag_id   SMALLINT NOT NULL REFERENCES quality_flags(quality_flag_id),
		row_hash          TEXT NOT NULL UNIQUE
	)`,
	`CREATE INDEX IF NOT EXISTS measurements_dataset_idx ON measurements (dataset_id)`,
	`CREATE INDEX IF NOT EXISTS measurements_param_ts_idx ON measurements (parameter_id, ts)`,
	`CREATE INDEX IF NOT EXISTS datasets_client_wb_idx ON datasets (client_id, waterbody_id, uploaded_at DESC)`,
}
