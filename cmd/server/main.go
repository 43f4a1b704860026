package main

import (
	"go.uber.org/fx"

	"github.com/isdmx/luabox/app"
	"github.com/isdmx/luabox/logger"
)

func main() {
	fx.New(
		app.Module,

		// Use the application logger for fx logs
		fx.WithLogger(logger.NewFxLogger),
	).Run()
}
