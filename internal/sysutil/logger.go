package sysutil

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log and LogSugar are no-ops until InitLogger runs.
var Log = zap.NewNop()
var LogSugar = Log.Sugar()

func InitLogger(level string, development bool) error {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("log level %q: %w", level, err)
	}

	config := zap.NewProductionEncoderConfig()
	config.EncodeTime = zapcore.ISO8601TimeEncoder // 格式化时间输出
	config.EncodeLevel = zapcore.CapitalLevelEncoder
	opts := []zap.Option{zap.AddCaller()}
	if development {
		// 开发模式：彩色级别 + 堆栈
		config.EncodeLevel = zapcore.CapitalColorLevelEncoder
		opts = append(opts, zap.Development(), zap.AddStacktrace(zap.ErrorLevel))
	}
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(config),
		zapcore.AddSync(os.Stdout),
		lvl,
	)
	Log = zap.New(core, opts...)
	LogSugar = Log.Sugar()
	return nil
}
