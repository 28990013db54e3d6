package main

import (
	"embed"

	"github.com/AzielCF/wa-amo-bridge/cmd"
)

//go:embed views
var embedViews embed.FS

func main() {
	cmd.Execute(embedViews)
}
