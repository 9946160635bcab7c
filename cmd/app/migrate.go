// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package main

import (
	"context"
	"database/sql"
	"fmt"

	"codeberg.org/oliverandrich/go-social-auth/internal/database"
	"github.com/urfave/cli/v3"
)

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Manage the database schema",
		Commands: []*cli.Command{
			{
				Name:   "up",
				Usage:  "Apply all pending migrations",
				Action: withDB(database.RunMigrations),
			},
			{
				Name:   "down",
				Usage:  "Roll back the last migration",
				Action: withDB(database.MigrateDown),
			},
			{
				Name:   "reset",
				Usage:  "Roll back all migrations",
				Action: withDB(database.MigrateReset),
			},
			{
				Name:  "status",
				Usage: "Print the current schema version",
				Action: withDB(func(db *sql.DB) error {
					version, err := database.Version(db)
					if err != nil {
						return err
					}
					fmt.Printf("schema version %d\n", version)
					return nil
				}),
			},
		},
	}
}

// withDB opens the configured database without migrating it and runs fn.
func withDB(fn func(db *sql.DB) error) cli.ActionFunc {
	return func(_ context.Context, cmd *cli.Command) error {
		conn, err := database.Connect(cmd.String("database-dsn"))
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer func() {
			_ = conn.Close()
		}()
		return fn(conn.DB)
	}
}
