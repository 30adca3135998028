// Package schema owns the relational schema for the authorization and
// workflow core and applies it through versioned migrations.
package schema

import (
	"context"
	"database/sql"
	"fmt"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// Migrations returns all core migrations in order. The DDL is kept portable
// between PostgreSQL and SQLite so tests can run against in-memory databases.
func Migrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create users and groups tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS users (
					id VARCHAR(36) PRIMARY KEY,
					username VARCHAR(50) NOT NULL,
					superuser BOOLEAN NOT NULL DEFAULT FALSE,
					create_date TIMESTAMP NOT NULL,
					delete_date TIMESTAMP
				);

				CREATE TABLE IF NOT EXISTS groups (
					id VARCHAR(36) PRIMARY KEY,
					name VARCHAR(50) NOT NULL,
					parent_id VARCHAR(36),
					create_date TIMESTAMP NOT NULL,
					delete_date TIMESTAMP
				);

				CREATE TABLE IF NOT EXISTS user_groups (
					id VARCHAR(36) PRIMARY KEY,
					user_id VARCHAR(36) NOT NULL,
					group_id VARCHAR(36) NOT NULL,
					create_date TIMESTAMP NOT NULL,
					delete_date TIMESTAMP
				);

				CREATE INDEX IF NOT EXISTS idx_users_username ON users(username);
				CREATE INDEX IF NOT EXISTS idx_groups_name ON groups(name);
				CREATE INDEX IF NOT EXISTS idx_groups_parent_id ON groups(parent_id);
				CREATE INDEX IF NOT EXISTS idx_user_groups_user_id ON user_groups(user_id);
				CREATE INDEX IF NOT EXISTS idx_user_groups_group_id ON user_groups(group_id);
			`,
		},
		{
			Version:     2,
			Description: "Create acls table",
			SQL: `
				CREATE TABLE IF NOT EXISTS acls (
					id VARCHAR(36) PRIMARY KEY,
					source_id VARCHAR(36) NOT NULL,
					perm VARCHAR(30) NOT NULL,
					target_id VARCHAR(36) NOT NULL,
					target_type VARCHAR(10) NOT NULL,
					kind VARCHAR(30) NOT NULL DEFAULT 'USER',
					create_date TIMESTAMP NOT NULL,
					delete_date TIMESTAMP
				);

				CREATE INDEX IF NOT EXISTS idx_acls_source_id ON acls(source_id);
				CREATE INDEX IF NOT EXISTS idx_acls_target_id ON acls(target_id);
				CREATE INDEX IF NOT EXISTS idx_acls_source_perm ON acls(source_id, perm);
			`,
		},
		{
			Version:     3,
			Description: "Create documents, tags and document_tags tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS documents (
					id VARCHAR(36) PRIMARY KEY,
					title VARCHAR(100) NOT NULL,
					user_id VARCHAR(36) NOT NULL,
					create_date TIMESTAMP NOT NULL,
					delete_date TIMESTAMP
				);

				CREATE TABLE IF NOT EXISTS tags (
					id VARCHAR(36) PRIMARY KEY,
					name VARCHAR(36) NOT NULL,
					color VARCHAR(7) NOT NULL DEFAULT '#3a87ad',
					parent_id VARCHAR(36),
					user_id VARCHAR(36) NOT NULL,
					create_date TIMESTAMP NOT NULL,
					delete_date TIMESTAMP
				);

				CREATE TABLE IF NOT EXISTS document_tags (
					id VARCHAR(36) PRIMARY KEY,
					document_id VARCHAR(36) NOT NULL,
					tag_id VARCHAR(36) NOT NULL,
					create_date TIMESTAMP NOT NULL,
					delete_date TIMESTAMP
				);

				CREATE INDEX IF NOT EXISTS idx_documents_user_id ON documents(user_id);
				CREATE INDEX IF NOT EXISTS idx_tags_user_id ON tags(user_id);
				CREATE INDEX IF NOT EXISTS idx_document_tags_document_id ON document_tags(document_id);
				CREATE INDEX IF NOT EXISTS idx_document_tags_tag_id ON document_tags(tag_id);
			`,
		},
		{
			Version:     4,
			Description: "Create route_models, routes and route_steps tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS route_models (
					id VARCHAR(36) PRIMARY KEY,
					name VARCHAR(50) NOT NULL,
					steps TEXT NOT NULL,
					create_date TIMESTAMP NOT NULL,
					update_date TIMESTAMP,
					delete_date TIMESTAMP
				);

				CREATE TABLE IF NOT EXISTS routes (
					id VARCHAR(36) PRIMARY KEY,
					document_id VARCHAR(36) NOT NULL,
					name VARCHAR(50) NOT NULL,
					create_date TIMESTAMP NOT NULL,
					delete_date TIMESTAMP
				);

				CREATE TABLE IF NOT EXISTS route_steps (
					id VARCHAR(36) PRIMARY KEY,
					route_id VARCHAR(36) NOT NULL,
					name VARCHAR(200) NOT NULL,
					step_type VARCHAR(10) NOT NULL,
					step_order INTEGER NOT NULL,
					target_id VARCHAR(36) NOT NULL,
					target_type VARCHAR(10) NOT NULL,
					transitions TEXT,
					comment VARCHAR(500),
					end_date TIMESTAMP,
					transition VARCHAR(50),
					validator_user_id VARCHAR(36),
					create_date TIMESTAMP NOT NULL,
					delete_date TIMESTAMP
				);

				CREATE INDEX IF NOT EXISTS idx_routes_document_id ON routes(document_id);
				CREATE INDEX IF NOT EXISTS idx_route_steps_route_id ON route_steps(route_id);
				CREATE INDEX IF NOT EXISTS idx_route_steps_end_date ON route_steps(end_date);
			`,
		},
		{
			Version:     5,
			Description: "Create audit_logs table",
			SQL: `
				CREATE TABLE IF NOT EXISTS audit_logs (
					id VARCHAR(36) PRIMARY KEY,
					user_id VARCHAR(36) NOT NULL,
					entity_id VARCHAR(36) NOT NULL,
					entity_class VARCHAR(50) NOT NULL,
					change_type VARCHAR(10) NOT NULL,
					message VARCHAR(1000),
					create_date TIMESTAMP NOT NULL
				);

				CREATE INDEX IF NOT EXISTS idx_audit_logs_entity_id ON audit_logs(entity_id);
				CREATE INDEX IF NOT EXISTS idx_audit_logs_user_id ON audit_logs(user_id);
				CREATE INDEX IF NOT EXISTS idx_audit_logs_create_date ON audit_logs(create_date);
			`,
		},
	}
}

// RunMigrations executes all pending migrations
func RunMigrations(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS docket_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT version FROM docket_migrations ORDER BY version")
	if err != nil {
		return fmt.Errorf("failed to query migrations: %w", err)
	}

	appliedVersions := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		appliedVersions[version] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read migrations: %w", err)
	}

	for _, migration := range Migrations() {
		if appliedVersions[migration.Version] {
			continue
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to start transaction: %w", err)
		}

		if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to execute migration %d: %w", migration.Version, err)
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO docket_migrations (version, description, applied_at) VALUES ($1, $2, CURRENT_TIMESTAMP)",
			migration.Version, migration.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
	}

	return nil
}
