package logging

import (
	"fmt"

	"github.com/dmitrijs2005/tierkeeper/internal/filex"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Rotation limits for log files.
const (
	fileMaxSizeMB  = 10
	fileMaxBackups = 5
	fileMaxAgeDays = 30
)

// NewFileWriter returns a size-rotated writer for path, creating the parent
// directory when needed. The caller closes it.
func NewFileWriter(path string) (*lumberjack.Logger, error) {
	if _, err := filex.EnsureParentDir(path); err != nil {
		return nil, fmt.Errorf("log dir: %w", err)
	}
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    fileMaxSizeMB,
		MaxBackups: fileMaxBackups,
		MaxAge:     fileMaxAgeDays,
		Compress:   true,
	}, nil
}
