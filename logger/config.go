package logger

import (
	"io"
	"os"
)

// Config holds the configuration for the logger.
type Config struct {
	Level     Level
	Format    Format
	Outputs   []io.Writer
	Subsystem string
	// File enables an additional rotating file output. Nil disables it.
	File         *FileConfig
	EnableCaller bool
}

// FileConfig holds file rotation configuration.
type FileConfig struct {
	Filename   string
	MaxSize    int // megabytes
	MaxAge     int // days
	MaxBackups int
	Compress   bool
}

// DefaultConfig returns a console logger at info level writing to stdout.
func DefaultConfig() *Config {
	return &Config{
		Level:   InfoLevel,
		Format:  ConsoleFormat,
		Outputs: []io.Writer{os.Stdout},
	}
}

// DefaultFileConfig returns rotation defaults for filename.
func DefaultFileConfig(filename string) *FileConfig {
	return &FileConfig{
		Filename:   filename,
		MaxSize:    100,
		MaxAge:     30,
		MaxBackups: 10,
		Compress:   true,
	}
}
