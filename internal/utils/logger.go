// internal/utils/logger.go
package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"buttcom/internal/config"
	"buttcom/internal/model"
	"buttcom/internal/protocol"
)

const defaultLogFile = "./logs/buttcom.log"

// LoggerManager manages application logging
type LoggerManager struct {
	logger *zap.Logger
	config *config.LoggingConfig
}

// NewLogger creates a new logger instance based on configuration
func NewLogger(cfg *config.LoggingConfig) (*zap.Logger, error) {
	manager := &LoggerManager{
		config: cfg,
	}

	logger, err := manager.createLogger()
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	manager.logger = logger
	return logger, nil
}

// createLogger creates the zap logger with proper configuration
func (lm *LoggerManager) createLogger() (*zap.Logger, error) {
	encoderConfig := lm.getEncoderConfig()

	var encoder zapcore.Encoder
	switch lm.config.Format {
	case "json":
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	case "console":
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	default:
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	}

	writeSyncer, err := lm.getWriteSyncer()
	if err != nil {
		return nil, fmt.Errorf("failed to create write syncer: %w", err)
	}

	level, err := ParseLevel(lm.config.Level)
	if err != nil {
		return nil, fmt.Errorf("failed to parse log level: %w", err)
	}

	core := zapcore.NewCore(encoder, writeSyncer, level)

	return zap.New(core, lm.getLoggerOptions()...), nil
}

// getEncoderConfig returns encoder configuration based on format
func (lm *LoggerManager) getEncoderConfig() zapcore.EncoderConfig {
	config := zap.NewProductionEncoderConfig()

	config.TimeKey = "timestamp"
	config.EncodeTime = zapcore.TimeEncoderOfLayout(time.RFC3339)
	config.LevelKey = "level"
	config.EncodeLevel = zapcore.LowercaseLevelEncoder
	config.CallerKey = "caller"
	config.EncodeCaller = zapcore.ShortCallerEncoder
	config.MessageKey = "message"
	config.StacktraceKey = "stacktrace"

	// Console format customizations
	if lm.config.Format == "console" {
		config.EncodeLevel = zapcore.CapitalColorLevelEncoder
		config.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
	}

	return config
}

// getWriteSyncer returns write syncer based on output configuration
func (lm *LoggerManager) getWriteSyncer() (zapcore.WriteSyncer, error) {
	switch lm.config.Output {
	case "stdout":
		return zapcore.AddSync(os.Stdout), nil
	case "stderr":
		return zapcore.AddSync(os.Stderr), nil
	default:
		if lm.config.Output == "" {
			lm.config.Output = defaultLogFile
		}

		logDir := filepath.Dir(lm.config.Output)
		if err := os.MkdirAll(logDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}

		// Rotated file output
		lumber := &lumberjack.Logger{
			Filename:   lm.config.Output,
			MaxSize:    lm.config.MaxSize, // MB
			MaxBackups: lm.config.MaxBackups,
			MaxAge:     lm.config.MaxAge, // days
			Compress:   lm.config.Compress,
		}

		return zapcore.AddSync(lumber), nil
	}
}

// getLoggerOptions returns logger options
func (lm *LoggerManager) getLoggerOptions() []zap.Option {
	return []zap.Option{
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
	}
}

// ParseLevel maps a configured level name onto a zap level
func ParseLevel(level string) (zapcore.Level, error) {
	switch level {
	case "debug":
		return zapcore.DebugLevel, nil
	case "info", "":
		return zapcore.InfoLevel, nil
	case "warn":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	case "fatal":
		return zapcore.FatalLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("invalid log level: %s", level)
	}
}

// SessionLogger wraps zap.Logger with serial session context
type SessionLogger struct {
	*zap.Logger
	sessionID string
	port      string
}

// NewSessionLogger creates a session-specific logger
func NewSessionLogger(baseLogger *zap.Logger, sessionID, port string) *SessionLogger {
	logger := baseLogger.With(
		zap.String("session_id", sessionID),
		zap.String("port", port),
		zap.String("component", "session"),
	)

	return &SessionLogger{
		Logger:    logger,
		sessionID: sessionID,
		port:      port,
	}
}

// LogConnection logs connection events
func (sl *SessionLogger) LogConnection(action string, success bool, err error) {
	fields := []zap.Field{
		zap.String("action", action),
		zap.Bool("success", success),
	}

	if err != nil {
		fields = append(fields, zap.Error(err))
		sl.Error("Serial connection event", fields...)
	} else {
		sl.Info("Serial connection event", fields...)
	}
}

// LogCommand logs one transmitted command
func (sl *SessionLogger) LogCommand(command, pacing string, duration time.Duration, err error) {
	fields := []zap.Field{
		zap.String("command", command),
		zap.String("pacing", pacing),
		zap.Duration("duration", duration),
	}

	if err != nil {
		fields = append(fields, zap.Error(err))
		sl.Error("Command send failed", fields...)
	} else {
		sl.Debug("Command sent", fields...)
	}
}

// LogExchange logs a command together with the device's reply
func (sl *SessionLogger) LogExchange(ex model.Exchange) {
	level := zapcore.InfoLevel
	if ex.Response.Empty() {
		level = zapcore.WarnLevel
	}

	if ce := sl.Check(level, "Device response"); ce != nil {
		ce.Write(
			zap.String("command", ex.Command.String()),
			zap.String("response", ex.Response.Text),
			zap.Bool("timed_out", ex.Response.TimedOut),
			zap.Duration("elapsed", ex.Response.Elapsed),
		)
	}
}

// LogStats logs transport statistics at the end of a session
func (sl *SessionLogger) LogStats(stats protocol.ProtocolStats) {
	sl.Info("Serial session statistics",
		zap.Int64("bytes_written", stats.BytesWritten),
		zap.Int64("bytes_read", stats.BytesRead),
		zap.Int64("writes", stats.WriteCount),
		zap.Int64("lines", stats.LineCount),
		zap.Int64("timeouts", stats.TimeoutCount),
		zap.Int64("errors", stats.ErrorCount),
		zap.Duration("open_for", time.Since(stats.OpenedAt)),
	)
}

// ProcedureLogger provides structured logging for a procedure run
type ProcedureLogger struct {
	logger    *zap.Logger
	procedure string
	startTime time.Time
}

// NewProcedureLogger creates a procedure-specific logger
func NewProcedureLogger(baseLogger *zap.Logger, procedure, sessionID string) *ProcedureLogger {
	logger := baseLogger.With(
		zap.String("procedure", procedure),
		zap.String("session_id", sessionID),
		zap.String("component", "procedure"),
	)

	return &ProcedureLogger{
		logger:    logger,
		procedure: procedure,
		startTime: time.Now(),
	}
}

// Start logs procedure start
func (pl *ProcedureLogger) Start(fields ...zap.Field) {
	allFields := append([]zap.Field{
		zap.Time("start_time", pl.startTime),
	}, fields...)

	pl.logger.Info("Procedure started", allFields...)
}

// Success logs successful completion
func (pl *ProcedureLogger) Success(fields ...zap.Field) {
	allFields := append([]zap.Field{
		zap.Duration("duration", time.Since(pl.startTime)),
		zap.Bool("success", true),
	}, fields...)

	pl.logger.Info("Procedure completed successfully", allFields...)
}

// Error logs procedure failure
func (pl *ProcedureLogger) Error(err error, fields ...zap.Field) {
	allFields := append([]zap.Field{
		zap.Duration("duration", time.Since(pl.startTime)),
		zap.Bool("success", false),
		zap.Error(err),
	}, fields...)

	pl.logger.Error("Procedure failed", allFields...)
}

// LogError is a helper function for consistent error logging
func LogError(logger *zap.Logger, message string, err error, fields ...zap.Field) {
	allFields := append([]zap.Field{zap.Error(err)}, fields...)
	logger.Error(message, allFields...)
}

// CloseLogger flushes buffered entries
func CloseLogger(logger *zap.Logger) error {
	return logger.Sync()
}
