package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/trackline/trackline/internal/clock"
	"github.com/trackline/trackline/internal/migration"
	"github.com/trackline/trackline/internal/server"
	"github.com/trackline/trackline/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		fx.Provide(newSnowflakeNode),
		db.Module,
		clock.Module,
		server.Module,
		migration.Module,
	)

	app.Run()
}

func newSnowflakeNode() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}
