package logger

import (
	"io"
	"os"
	"path/filepath"

	"face-attendance-go/config"

	log "github.com/sirupsen/logrus"
)

// Init configures the global logrus logger from cfg. Stdout is always a sink;
// cfg.File adds a second one when it can be opened. The returned closer
// releases the log file and is never nil.
func Init(cfg config.LogConfig) (io.Closer, error) {
	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		log.Warnf("Invalid log level '%s', defaulting to 'info': %v", cfg.Level, err)
		level = log.InfoLevel
	}
	log.SetLevel(level)

	log.SetFormatter(&log.TextFormatter{
		FullTimestamp: true,
	})

	writers := []io.Writer{os.Stdout}
	var closer io.Closer = nopCloser{}

	if cfg.File != "" {
		logDir := filepath.Dir(cfg.File)
		if err := os.MkdirAll(logDir, 0750); err != nil {
			// keep going with stdout only
			log.Errorf("Failed to create log directory '%s': %v", logDir, err)
		} else {
			file, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0660)
			if err != nil {
				log.Errorf("Failed to open log file '%s': %v", cfg.File, err)
			} else {
				writers = append(writers, file)
				closer = file
				log.Infof("Logging additionally to file: %s", cfg.File)
			}
		}
	}

	log.SetOutput(io.MultiWriter(writers...))
	log.WithField("level", level.String()).Info("Logger initialized")
	return closer, nil
}

// Component returns an entry tagged with the component name.
func Component(name string) *log.Entry {
	return log.WithField("component", name)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
