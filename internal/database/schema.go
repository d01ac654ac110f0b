// Package database manages the PostgreSQL connection pool and
// bootstraps the schema on startup.
package database

// Schema contains the SQL statements for the crashkeep database.
// Applied once at startup as one CREATE TABLE IF NOT EXISTS script —
// there is no separate migration runner; schema_migrations exists so
// the "sequenced migrations, never run downward" contract is real.
const Schema = `
CREATE TABLE IF NOT EXISTS schema_migrations (
    version    VARCHAR(50) PRIMARY KEY,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

-- project: configured out-of-band. public_key is the DSN auth token.
CREATE TABLE IF NOT EXISTS project (
    id         BIGSERIAL PRIMARY KEY,
    public_key VARCHAR(255) UNIQUE NOT NULL,
    name       VARCHAR(255) NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

-- archive: content-addressed raw storage. hash is the sha256 of the
-- compressed payload. Never mutated after insert.
CREATE TABLE IF NOT EXISTS archive (
    hash               VARCHAR(64) PRIMARY KEY,
    project_id         BIGINT NOT NULL REFERENCES project(id),
    compressed_payload BYTEA NOT NULL,
    original_size      BIGINT,
    is_envelope        BOOLEAN NOT NULL DEFAULT FALSE,
    created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_archive_project ON archive(project_id);

-- queue: FIFO pending-work index, one row per archive awaiting digest.
CREATE TABLE IF NOT EXISTS queue (
    id           BIGSERIAL PRIMARY KEY,
    archive_hash VARCHAR(64) UNIQUE NOT NULL REFERENCES archive(hash),
    created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

-- queue_error: archives whose digest failed; blocked from retry while
-- the row exists (neither Enqueue nor ruminate re-queues them).
CREATE TABLE IF NOT EXISTS queue_error (
    id           BIGSERIAL PRIMARY KEY,
    archive_hash VARCHAR(64) UNIQUE NOT NULL REFERENCES archive(hash),
    error        TEXT NOT NULL,
    created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

-- Dimension tables: write-only growth, never mutated after insert.
CREATE TABLE IF NOT EXISTS unwrap_platform        (id BIGSERIAL PRIMARY KEY, value VARCHAR(255) UNIQUE NOT NULL);
CREATE TABLE IF NOT EXISTS unwrap_environment      (id BIGSERIAL PRIMARY KEY, value VARCHAR(255) UNIQUE NOT NULL);
CREATE TABLE IF NOT EXISTS unwrap_os_name          (id BIGSERIAL PRIMARY KEY, value VARCHAR(255) UNIQUE NOT NULL);
CREATE TABLE IF NOT EXISTS unwrap_os_version       (id BIGSERIAL PRIMARY KEY, value VARCHAR(255) UNIQUE NOT NULL);
CREATE TABLE IF NOT EXISTS unwrap_manufacturer     (id BIGSERIAL PRIMARY KEY, value VARCHAR(255) UNIQUE NOT NULL);
CREATE TABLE IF NOT EXISTS unwrap_brand            (id BIGSERIAL PRIMARY KEY, value VARCHAR(255) UNIQUE NOT NULL);
CREATE TABLE IF NOT EXISTS unwrap_model            (id BIGSERIAL PRIMARY KEY, value VARCHAR(255) UNIQUE NOT NULL);
CREATE TABLE IF NOT EXISTS unwrap_chipset          (id BIGSERIAL PRIMARY KEY, value VARCHAR(255) UNIQUE NOT NULL);
CREATE TABLE IF NOT EXISTS unwrap_locale_code      (id BIGSERIAL PRIMARY KEY, value VARCHAR(255) UNIQUE NOT NULL);
CREATE TABLE IF NOT EXISTS unwrap_timezone         (id BIGSERIAL PRIMARY KEY, value VARCHAR(255) UNIQUE NOT NULL);
CREATE TABLE IF NOT EXISTS unwrap_connection_type  (id BIGSERIAL PRIMARY KEY, value VARCHAR(255) UNIQUE NOT NULL);
CREATE TABLE IF NOT EXISTS unwrap_orientation      (id BIGSERIAL PRIMARY KEY, value VARCHAR(255) UNIQUE NOT NULL);
CREATE TABLE IF NOT EXISTS unwrap_app_name         (id BIGSERIAL PRIMARY KEY, value VARCHAR(255) UNIQUE NOT NULL);
CREATE TABLE IF NOT EXISTS unwrap_app_version      (id BIGSERIAL PRIMARY KEY, value VARCHAR(255) UNIQUE NOT NULL);
CREATE TABLE IF NOT EXISTS unwrap_app_build        (id BIGSERIAL PRIMARY KEY, value VARCHAR(255) UNIQUE NOT NULL);
CREATE TABLE IF NOT EXISTS unwrap_user             (id BIGSERIAL PRIMARY KEY, value VARCHAR(255) UNIQUE NOT NULL);
CREATE TABLE IF NOT EXISTS unwrap_exception_type   (id BIGSERIAL PRIMARY KEY, value VARCHAR(255) UNIQUE NOT NULL);
CREATE TABLE IF NOT EXISTS unwrap_session_status      (id BIGSERIAL PRIMARY KEY, value VARCHAR(255) UNIQUE NOT NULL);
CREATE TABLE IF NOT EXISTS unwrap_session_release     (id BIGSERIAL PRIMARY KEY, value VARCHAR(255) UNIQUE NOT NULL);
CREATE TABLE IF NOT EXISTS unwrap_session_environment (id BIGSERIAL PRIMARY KEY, value VARCHAR(255) UNIQUE NOT NULL);

-- unwrap_device_specs: composite tuple, all columns nullable, one row
-- per distinct combination.
CREATE TABLE IF NOT EXISTS unwrap_device_specs (
    id              BIGSERIAL PRIMARY KEY,
    screen_width    INTEGER,
    screen_height   INTEGER,
    screen_density  DOUBLE PRECISION,
    screen_dpi      INTEGER,
    processor_count INTEGER,
    memory_size     BIGINT,
    archs           TEXT,
    UNIQUE (screen_width, screen_height, screen_density, screen_dpi, processor_count, memory_size, archs)
);

-- unwrap_exception_message: deduplicates long identical messages by
-- content hash rather than full-text uniqueness.
CREATE TABLE IF NOT EXISTS unwrap_exception_message (
    id    BIGSERIAL PRIMARY KEY,
    hash  VARCHAR(64) UNIQUE NOT NULL,
    value TEXT NOT NULL
);

-- unwrap_stacktrace: hash is sha256 of the normalized frames JSON;
-- fingerprint_hash is the grouping key derived from the same frames.
CREATE TABLE IF NOT EXISTS unwrap_stacktrace (
    id               BIGSERIAL PRIMARY KEY,
    hash             VARCHAR(64) UNIQUE NOT NULL,
    fingerprint_hash VARCHAR(64) NOT NULL,
    frames           JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_stacktrace_fingerprint ON unwrap_stacktrace(fingerprint_hash);

-- issue: one row per distinct fingerprint_hash. first_seen, title, and
-- exception_type_id are immutable after insert.
CREATE TABLE IF NOT EXISTS issue (
    id                BIGSERIAL PRIMARY KEY,
    fingerprint_hash  VARCHAR(64) UNIQUE NOT NULL,
    exception_type_id BIGINT REFERENCES unwrap_exception_type(id),
    title             VARCHAR(255) NOT NULL,
    first_seen        BIGINT NOT NULL,
    last_seen         BIGINT NOT NULL,
    event_count       BIGINT NOT NULL DEFAULT 1 CHECK (event_count >= 1)
);

-- session: upserted by (project_id, sid); see the conflict rules the
-- store applies on upsert_session.
CREATE TABLE IF NOT EXISTS session (
    id             BIGSERIAL PRIMARY KEY,
    project_id     BIGINT NOT NULL REFERENCES project(id),
    sid            VARCHAR(255) NOT NULL,
    init           BOOLEAN NOT NULL DEFAULT FALSE,
    started_at     BIGINT NOT NULL,
    timestamp      BIGINT NOT NULL,
    errors         INTEGER NOT NULL DEFAULT 0,
    status_id      BIGINT NOT NULL REFERENCES unwrap_session_status(id),
    release_id     BIGINT REFERENCES unwrap_session_release(id),
    environment_id BIGINT REFERENCES unwrap_session_environment(id),
    UNIQUE (project_id, sid)
);

-- report: denormalized fact row. Never updated after insert.
CREATE TABLE IF NOT EXISTS report (
    id                   BIGSERIAL PRIMARY KEY,
    event_id             VARCHAR(64) UNIQUE NOT NULL,
    archive_hash         VARCHAR(64) NOT NULL REFERENCES archive(hash),
    project_id           BIGINT NOT NULL REFERENCES project(id),
    timestamp            BIGINT NOT NULL,
    received_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    issue_id             BIGINT REFERENCES issue(id),
    session_id           BIGINT REFERENCES session(id),
    platform_id          BIGINT REFERENCES unwrap_platform(id),
    environment_id       BIGINT REFERENCES unwrap_environment(id),
    os_name_id           BIGINT REFERENCES unwrap_os_name(id),
    os_version_id        BIGINT REFERENCES unwrap_os_version(id),
    manufacturer_id      BIGINT REFERENCES unwrap_manufacturer(id),
    brand_id             BIGINT REFERENCES unwrap_brand(id),
    model_id             BIGINT REFERENCES unwrap_model(id),
    chipset_id           BIGINT REFERENCES unwrap_chipset(id),
    device_specs_id      BIGINT REFERENCES unwrap_device_specs(id),
    locale_code_id       BIGINT REFERENCES unwrap_locale_code(id),
    timezone_id          BIGINT REFERENCES unwrap_timezone(id),
    connection_type_id   BIGINT REFERENCES unwrap_connection_type(id),
    orientation_id       BIGINT REFERENCES unwrap_orientation(id),
    app_name_id          BIGINT REFERENCES unwrap_app_name(id),
    app_version_id       BIGINT REFERENCES unwrap_app_version(id),
    app_build_id         BIGINT REFERENCES unwrap_app_build(id),
    user_id              BIGINT REFERENCES unwrap_user(id),
    exception_type_id    BIGINT REFERENCES unwrap_exception_type(id),
    exception_message_id BIGINT REFERENCES unwrap_exception_message(id),
    stacktrace_id        BIGINT REFERENCES unwrap_stacktrace(id)
);
CREATE INDEX IF NOT EXISTS idx_report_issue ON report(issue_id);
CREATE INDEX IF NOT EXISTS idx_report_project ON report(project_id);

-- Analytics buckets: lossy aggregate counters. If a flush fails the
-- counters are dropped, never retried.
CREATE TABLE IF NOT EXISTS bucket_rate_limit_global (
    bucket_start TIMESTAMPTZ PRIMARY KEY,
    hit_count    BIGINT NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS bucket_rate_limit_project (
    project_id   BIGINT NOT NULL,
    bucket_start TIMESTAMPTZ NOT NULL,
    hit_count    BIGINT NOT NULL DEFAULT 0,
    PRIMARY KEY (project_id, bucket_start)
);

CREATE TABLE IF NOT EXISTS bucket_rate_limit_subnet (
    subnet       VARCHAR(64) NOT NULL,
    bucket_start TIMESTAMPTZ NOT NULL,
    hit_count    BIGINT NOT NULL DEFAULT 0,
    PRIMARY KEY (subnet, bucket_start)
);

CREATE TABLE IF NOT EXISTS bucket_request_latency (
    endpoint      VARCHAR(255) NOT NULL,
    bucket_start  TIMESTAMPTZ NOT NULL,
    request_count BIGINT NOT NULL DEFAULT 0,
    total_ms      DOUBLE PRECISION NOT NULL DEFAULT 0,
    min_ms        DOUBLE PRECISION NOT NULL DEFAULT 0,
    max_ms        DOUBLE PRECISION NOT NULL DEFAULT 0,
    PRIMARY KEY (endpoint, bucket_start)
);
`
