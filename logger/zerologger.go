package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// ZerologLogger implements Logger on top of zerolog.
type ZerologLogger struct {
	// base carries every field except the module tag so that subsystems
	// never stack duplicate module keys.
	base       zerolog.Logger
	logger     zerolog.Logger
	level      Level
	subsystem  string
	fileWriter *lumberjack.Logger
}

// NewZerologLogger builds a Logger from config. A nil config yields DefaultConfig.
func NewZerologLogger(config *Config) *ZerologLogger {
	if config == nil {
		config = DefaultConfig()
	}

	var writers []io.Writer
	var fileWriter *lumberjack.Logger

	if config.File != nil && config.File.Filename != "" {
		if err := os.MkdirAll(filepath.Dir(config.File.Filename), 0o755); err != nil {
			fmt.Fprintf(os.Stderr, "failed to create log directory: %v\n", err)
		} else {
			fileWriter = &lumberjack.Logger{
				Filename:   config.File.Filename,
				MaxSize:    config.File.MaxSize,
				MaxAge:     config.File.MaxAge,
				MaxBackups: config.File.MaxBackups,
				Compress:   config.File.Compress,
				LocalTime:  true,
			}
			writers = append(writers, fileWriter)
		}
	}

	for _, output := range config.Outputs {
		if config.Format == ConsoleFormat {
			writers = append(writers, zerolog.ConsoleWriter{
				Out:        output,
				TimeFormat: "15:04:05",
				PartsOrder: []string{
					zerolog.TimestampFieldName,
					zerolog.LevelFieldName,
					"module",
					zerolog.MessageFieldName,
				},
			})
		} else {
			writers = append(writers, output)
		}
	}

	var writer io.Writer
	switch len(writers) {
	case 0:
		writer = io.Discard
	case 1:
		writer = writers[0]
	default:
		writer = zerolog.MultiLevelWriter(writers...)
	}

	zl := zerolog.New(writer).Level(config.Level.toZerolog()).With().Timestamp().Logger()
	if config.EnableCaller {
		zl = zl.With().CallerWithSkipFrameCount(3).Logger()
	}

	return &ZerologLogger{
		base:       zl,
		logger:     withModule(zl, config.Subsystem),
		level:      config.Level,
		subsystem:  config.Subsystem,
		fileWriter: fileWriter,
	}
}

// NewNop returns a logger that discards everything.
func NewNop() Logger {
	return &ZerologLogger{base: zerolog.Nop(), logger: zerolog.Nop(), level: ErrorLevel + 1}
}

func withModule(zl zerolog.Logger, module string) zerolog.Logger {
	if module == "" {
		return zl
	}
	return zl.With().Str("module", module).Logger()
}

func (zl *ZerologLogger) log(e *zerolog.Event, msg string, fields []Field) {
	if e == nil {
		return
	}
	for _, f := range fields {
		e = f.apply(e)
	}
	e.Msg(msg)
}

func (zl *ZerologLogger) Trace(msg string, fields ...Field) {
	zl.log(zl.logger.Trace(), msg, fields)
}

func (zl *ZerologLogger) Debug(msg string, fields ...Field) {
	zl.log(zl.logger.Debug(), msg, fields)
}

func (zl *ZerologLogger) Info(msg string, fields ...Field) {
	zl.log(zl.logger.Info(), msg, fields)
}

func (zl *ZerologLogger) Warn(msg string, fields ...Field) {
	zl.log(zl.logger.Warn(), msg, fields)
}

func (zl *ZerologLogger) Error(msg string, fields ...Field) {
	zl.log(zl.logger.Error(), msg, fields)
}

// WithSubsystem derives a child logger; nested subsystems are dot-joined.
func (zl *ZerologLogger) WithSubsystem(name string) Logger {
	sub := name
	if zl.subsystem != "" {
		sub = zl.subsystem + "." + name
	}
	return &ZerologLogger{
		base:       zl.base,
		logger:     withModule(zl.base, sub),
		level:      zl.level,
		subsystem:  sub,
		fileWriter: zl.fileWriter,
	}
}

func (zl *ZerologLogger) With(fields ...Field) Logger {
	if len(fields) == 0 {
		return zl
	}
	ctx := zl.base.With()
	for _, f := range fields {
		ctx = f.context(ctx)
	}
	base := ctx.Logger()
	return &ZerologLogger{
		base:       base,
		logger:     withModule(base, zl.subsystem),
		level:      zl.level,
		subsystem:  zl.subsystem,
		fileWriter: zl.fileWriter,
	}
}

func (zl *ZerologLogger) Enabled(level Level) bool {
	return level >= zl.level
}

func (zl *ZerologLogger) Close() error {
	if zl.fileWriter != nil {
		return zl.fileWriter.Close()
	}
	return nil
}
