package main

import (
	"embed"
	"io/fs"
	"log"

	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"
)

//go:embed all:frontend/dist
var assets embed.FS

func main() {
	dist, err := fs.Sub(assets, "frontend/dist")
	if err != nil {
		log.Fatalf("load assets: %v", err)
	}

	app := NewApp()
	if err := wails.Run(&options.App{
		Title:       "Voxjob",
		Width:       720,
		Height:      560,
		AssetServer: &assetserver.Options{Assets: dist},
		OnStartup:   app.startup,
		OnShutdown:  app.shutdown,
		Bind:        []interface{}{app},
	}); err != nil {
		log.Fatalf("run app: %v", err)
	}
}
