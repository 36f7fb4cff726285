package mssql

// createIfMissing wraps a CREATE statement in an OBJECT_ID guard.
func createIfMissing(table, body string) string {
	return "IF OBJECT_ID(N'dbo." + table + "', N'U') IS NULL\nCREATE TABLE " + mssqlIdent(table) + " (" + body + ")"
}

func indexIfMissing(table, name, body string) string {
	return "IF NOT EXISTS (SELECT 1 FROM sys.indexes WHERE name = N'" + name + "' AND object_id = OBJECT_ID(N'dbo." + table + "'))\n" + body
}

// Nullable unique keys use filtered indexes: a SQL Server UNIQUE constraint
// admits a single NULL.
var schemaDDL = []string{
	createIfMissing("clients", `
		client_id    NVARCHAR(64) NOT NULL PRIMARY KEY,
		email        NVARCHAR(320) NOT NULL,
		display_name NVARCHAR(200) NULL,
		created_at   DATETIMEOFFSET NOT NULL DEFAULT SYSDATETIMEOFFSET()`),
	createIfMissing("waterbodies", `
		waterbody_id NVARCHAR(64) NOT NULL PRIMARY KEY,
		client_id    NVARCHAR(64) NOT NULL REFERENCES clients(client_id),
		name         NVARCHAR(300) NOT NULL,
		type         NVARCHAR(16) NOT NULL CHECK (type IN ('reservoir','lake','river','lagoon','wetland','canal','unknown')),
		confidence   FLOAT NOT NULL DEFAULT 0,
		provenance   NVARCHAR(MAX) NOT NULL DEFAULT N'[]',
		CONSTRAINT waterbodies_identity UNIQUE (client_id, name, type)`),
	createIfMissing("sampling_points", `
		sampling_point_id NVARCHAR(64) NOT NULL PRIMARY KEY,
		client_id         NVARCHAR(64) NOT NULL REFERENCES clients(client_id),
		waterbody_id      NVARCHAR(64) NULL REFERENCES waterbodies(waterbody_id),
		code              NVARCHAR(300) NOT NULL,
		name              NVARCHAR(300) NULL,
		lat               FLOAT NULL,
		lon               FLOAT NULL,
		depth_m           FLOAT NULL,
		CONSTRAINT sampling_points_identity UNIQUE (client_id, code)`),
	createIfMissing("parameters", `
		parameter_id  BIGINT IDENTITY(1,1) NOT NULL PRIMARY KEY,
		code          NVARCHAR(100) NOT NULL UNIQUE,
		display_name  NVARCHAR(200) NOT NULL,
		standard_unit NVARCHAR(50) NOT NULL,
		allowed_units NVARCHAR(MAX) NOT NULL DEFAULT N'[]',
		category      NVARCHAR(32) NOT NULL DEFAULT N'unknown'`),
	createIfMissing("non_parameters", `
		code NVARCHAR(100) NOT NULL PRIMARY KEY`),
	createIfMissing("quality_flags", `
		quality_flag_id SMALLINT NOT NULL PRIMARY KEY,
		code            NVARCHAR(32) NOT NULL UNIQUE,
		label           NVARCHAR(64) NOT NULL,
		description     NVARCHAR(200) NULL`),
	createIfMissing("datasets", `
		dataset_id   NVARCHAR(64) NOT NULL PRIMARY KEY,
		client_id    NVARCHAR(64) NOT NULL REFERENCES clients(client_id),
		waterbody_id NVARCHAR(64) NULL REFERENCES waterbodies(waterbody_id),
		file_name    NVARCHAR(400) NOT NULL,
		sheet_name   NVARCHAR(200) NULL,
		row_count    INT NOT NULL,
		col_count    INT NOT NULL,
		content_hash NVARCHAR(64) NULL,
		uploaded_at  DATETIMEOFFSET NOT NULL`),
	indexIfMissing("datasets", "datasets_content_hash_uq",
		`CREATE UNIQUE INDEX datasets_content_hash_uq ON datasets (content_hash) WHERE content_hash IS NOT NULL`),
	createIfMissing("measurements", `
		measurement_id    BIGINT IDENTITY(1,1) NOT NULL PRIMARY KEY,
		dataset_id        NVARCHAR(64) NOT NULL REFERENCES datasets(dataset_id) ON DELETE CASCADE,
		sampling_point_id NVARCHAR(64) NULL REFERENCES sampling_points(sampling_point_id),
		parameter_id      BIGINT NOT NULL REFERENCES parameters(parameter_id),
		ts                DATETIMEOFFSET NULL,
		value             FLOAT NULL,
		unit              NVARCHAR(50) NULL,
		value_qualifier   NVARCHAR(16) NULL,
		source_column     NVARCHAR(400) NULL,
		method            NVARCHAR(32) NULL,
		quality_flag_id   SMALLINT NOT NULL REFERENCES quality_flags(quality_flag_id),
		row_hash          CHAR(64) NOT NULL,
		CONSTRAINT measurements_row_hash_uq UNIQUE (row_hash)`),
	indexIfMissing("measurements", "measurements_dataset_idx",
		`CREATE INDEX measurements_dataset_idx ON measurements (dataset_id)`),
}
