package main

import (
	"context"
	_ "embed"
	"os"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	log "github.com/sirupsen/logrus"
)

//go:embed schema.sql
var schema string

func main() {
	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		log.SetLevel(log.DebugLevel)
	}
	log.Info("storage init starting")

	connStr := os.Getenv("DATABASE_URL")
	if connStr == "" {
		log.Fatal("missing DATABASE_URL")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := apply(ctx, connStr); err != nil {
		log.Fatalf("apply schema: %v", err)
	}
	log.Info("storage init complete")
}

// apply runs the schema in one transaction. Every statement is idempotent.
func apply(ctx context.Context, connStr string) error {
	conn, err := pgx.Connect(ctx, connStr)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)

	return pgx.BeginFunc(ctx, conn, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, schema)
		return err
	})
}
