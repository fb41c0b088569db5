package main

import (
	"os"

	"github.com/golang-migrate/migrate"
	_ "github.com/golang-migrate/migrate/database/postgres"
	_ "github.com/golang-migrate/migrate/source/file"

	"github.com/1MGAMINGcompany/one-million-spark-sub008/common"
)

func main() {
	databaseURL := os.Getenv("DATABASE_URL")
	common.PanicIfEmpty(databaseURL, "DATABASE_URL not provided")

	sourceURL := os.Getenv("MIGRATIONS_SOURCE_URL")
	if sourceURL == "" {
		sourceURL = "file://./ops/migrations"
	}

	m, err := migrate.New(sourceURL, databaseURL)
	if err != nil {
		common.Log.Panicf("failed to initialize migrations; %s", err.Error())
	}

	err = m.Up()
	if err != nil && err != migrate.ErrNoChange {
		common.Log.Panicf("failed to run migrations; %s", err.Error())
	}

	common.Log.Debug("migrations complete")
}
