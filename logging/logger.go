package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

var Log = logrus.New()

// BootstrapLogger configures the global logger. An unknown level falls back to info.
func BootstrapLogger(level string) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}

	Log = &logrus.Logger{
		Out:   os.Stdout,
		Hooks: make(logrus.LevelHooks),
		Formatter: &logrus.TextFormatter{
			FullTimestamp: true,
		},
		Level:    lvl,
		ExitFunc: os.Exit,
	}
	Log.SetReportCaller(true)
}
