package main

import (
	_ "go.uber.org/automaxprocs"

	"github.com/coldsentry-io/coldsentry/cmd/coldsentryctl/app"
)

func main() {
	app.NewCommand().Run()
}
