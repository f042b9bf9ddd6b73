package logger

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/teranos/pulsed/errors"
)

// NewFileLogger builds a JSON-lines logger appending to path.
// The directory is created if missing. The returned close func syncs and closes the file.
func NewFileLogger(path, levelName string) (*zap.SugaredLogger, func() error, error) {
	lvl, err := ParseLevel(levelName)
	if err != nil {
		return nil, nil, err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, nil, errors.Wrapf(err, "failed to create log directory for %s", path)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "failed to open log file %s", path)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	core := zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(f), lvl)
	zl := zap.New(core)

	closeFn := func() error {
		_ = zl.Sync()
		return f.Close()
	}
	return zl.Sugar(), closeFn, nil
}
