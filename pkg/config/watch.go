package config

import (
	"strings"

	"github.com/coldforge/schnorrauth/internal/logger"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// WatchLogLevel watches the config file at configPath (or the default
// location if empty) for changes and applies a new logging.level live,
// without restarting the process. Only the log level is hot-reloaded: the
// listener bind address, group id, and storage driver all require a
// restart, since the acceptor and store are already constructed by the time
// a config file changes.
//
// It is a no-op if no config file can be found — there is nothing to watch.
func WatchLogLevel(configPath string) {
	v := viper.New()
	setupViper(v, configPath)

	if _, err := readConfigFile(v); err != nil {
		logger.Warn("config watch: initial read failed, hot-reload disabled", logger.Err(err))
		return
	}
	if v.ConfigFileUsed() == "" {
		return
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		level := strings.ToUpper(v.GetString("logging.level"))
		if level == "" {
			return
		}
		logger.SetLevel(level)
		logger.Info("log level reloaded from config change", "level", level)
	})
	v.WatchConfig()
}
