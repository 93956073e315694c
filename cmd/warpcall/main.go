package main

import (
	"log/slog"

	"github.com/BioHazard786/Warpcall/internal/cmd"
	"github.com/BioHazard786/Warpcall/internal/logging"
)

func main() {
	logging.Init(slog.LevelError)
	cmd.Execute()
}
