package config

import (
	"log/slog"

	"go.uber.org/fx"
)

// FilePath is the path (possibly empty) to the config file in use, supplied
// by the CLI layer so this module can both load and watch it.
type FilePath string

var Module = fx.Module("config",
	fx.Provide(load, newWatcher),
)

func load(path FilePath) (Config, error) {
	return Load(string(path))
}

func newWatcher(path FilePath, initial Config, log *slog.Logger) (*Watcher, error) {
	return NewWatcher(string(path), initial, log, nil)
}
