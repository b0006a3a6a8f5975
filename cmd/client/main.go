package main

import (
	"context"
	"log"
	"os"

	"github.com/hibana-share/hibana/internal/buildinfo"
	"github.com/hibana-share/hibana/internal/client/cli"
)

func main() {

	buildinfo.PrintBuildData(os.Stdout)

	ctx := context.Background()
	app := cli.NewApp(os.Stdout)

	if err := app.Run(ctx, os.Args[1:]); err != nil {
		log.Fatalf("%v", err)
	}
}
