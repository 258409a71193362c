package main

import (
	"go.uber.org/fx"

	"github.com/jtj60/dorado-exchange-sub003/internal/app"
)

func main() {
	fx.New(app.Module).Run()
}
