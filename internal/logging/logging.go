// Package logging configures the process-wide logrus logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Options struct {
	Level  string // trace|debug|info|warn|error
	File   string // empty logs to stderr only
	Format string // text|json
}

// Setup applies opts to the standard logrus logger. When a file is given,
// output goes to both stderr and a rotated file.
func Setup(opts Options) error {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return err
	}
	log.SetLevel(level)

	var out io.Writer = os.Stderr
	if opts.File != "" {
		out = io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    32, // megabytes
			MaxBackups: 2,
			MaxAge:     28, // days
			Compress:   true,
		})
	}
	log.SetOutput(out)

	if opts.Format == "json" {
		log.SetFormatter(&log.JSONFormatter{TimestampFormat: time.RFC3339})
	} else {
		log.SetFormatter(&log.TextFormatter{
			PadLevelText:    true,
			DisableColors:   opts.File != "",
			FullTimestamp:   true,
			TimestampFormat: time.DateTime,
		})
	}
	return nil
}

func ParseLevel(s string) (log.Level, error) {
	switch s {
	case "trace":
		return log.TraceLevel, nil
	case "debug":
		return log.DebugLevel, nil
	case "", "info":
		return log.InfoLevel, nil
	case "warn":
		return log.WarnLevel, nil
	case "error":
		return log.ErrorLevel, nil
	}
	return 0, fmt.Errorf("unknown log level %q", s)
}
