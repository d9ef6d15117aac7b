package main

import (
	_ "go.uber.org/automaxprocs"

	"github.com/coldsentry-io/coldsentry/cmd/coldsentry-updater/app"
)

func main() {
	app.NewApp().Run()
}
