/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package database

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/sirupsen/logrus"

	"github.com/tomoncle/docrepo/utils"
)

const defaultLoggerName = "DATABASE"

var (
	globalLogger   Logger
	globalLoggerMu sync.RWMutex
)

type LogLevel int

const (
	LogLevelDebug LogLevel = iota
	LogLevelInfo
	LogLevelWarn
	LogLevelError
)

func (l LogLevel) String() string {
	switch l {
	case LogLevelDebug:
		return "DEBUG"
	case LogLevelInfo:
		return "INFO"
	case LogLevelWarn:
		return "WARN"
	case LogLevelError:
		return "ERROR"
	default:
		return "DEBUG"
	}
}

// Logger is the logging collaborator of the connection manager. Fields are
// alternating key/value pairs.
type Logger interface {
	SetLevel(LogLevel)
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
}

// InitLogger installs log as the package logger unless one is already set.
func InitLogger(log Logger) {
	if log == nil {
		return
	}
	globalLoggerMu.Lock()
	defer globalLoggerMu.Unlock()
	if globalLogger == nil {
		globalLogger = log
	}
}

// SetLogger replaces the package logger. A nil log restores the default on
// the next GetLogger.
func SetLogger(log Logger) {
	globalLoggerMu.Lock()
	globalLogger = log
	globalLoggerMu.Unlock()
}

func GetLogger() Logger {
	globalLoggerMu.RLock()
	l := globalLogger
	globalLoggerMu.RUnlock()
	if l != nil {
		return l
	}

	dl := NewDefaultLogger(defaultLoggerName)
	globalLoggerMu.Lock()
	if globalLogger == nil {
		globalLogger = dl
	}
	l = globalLogger
	globalLoggerMu.Unlock()
	return l
}

// DefaultLogger writes through a named logrus logger from utils.
type DefaultLogger struct {
	name   string
	logger *logrus.Logger
}

func NewDefaultLogger(name string) *DefaultLogger {
	return &DefaultLogger{name: name, logger: utils.NewLogger(name)}
}

func (l *DefaultLogger) Debug(msg string, fields ...interface{}) {
	l.logger.WithFields(toFields(fields)).Debug(msg)
}

func (l *DefaultLogger) Info(msg string, fields ...interface{}) {
	l.logger.WithFields(toFields(fields)).Info(msg)
}

func (l *DefaultLogger) Warn(msg string, fields ...interface{}) {
	l.logger.WithFields(toFields(fields)).Warn(msg)
}

func (l *DefaultLogger) Error(msg string, fields ...interface{}) {
	l.logger.WithFields(toFields(fields)).Error(msg)
}

func (l *DefaultLogger) SetLevel(level LogLevel) {
	utils.SetLoggerLevel(l.name, strings.ToLower(level.String()))
}

func toFields(fields []interface{}) logrus.Fields {
	out := make(logrus.Fields, len(fields)/2)
	for i := 0; i+1 < len(fields); i += 2 {
		key := fmt.Sprint(fields[i])
		if err, ok := fields[i+1].(error); ok {
			out[key] = err.Error()
			continue
		}
		out[key] = fields[i+1]
	}
	return out
}

// NewLoggerFromConfig builds the logger selected by cfg.Backend. "zerolog"
// writes JSON lines to w at cfg.Level; anything else is the logrus default.
func NewLoggerFromConfig(cfg LoggingConfig, w io.Writer) Logger {
	if !strings.EqualFold(cfg.Backend, "zerolog") {
		return NewDefaultLogger(defaultLoggerName)
	}
	z := NewZerologLogger(w)
	if lvl, err := zerolog.ParseLevel(strings.ToLower(cfg.Level)); err == nil && lvl != zerolog.NoLevel {
		z.logger = z.logger.Level(lvl)
	}
	return z
}

// ZerologLogger adapts a zerolog logger to Logger.
type ZerologLogger struct {
	logger zerolog.Logger
}

// NewZerologLogger writes JSON lines to w, or to stderr when w is nil.
func NewZerologLogger(w io.Writer) *ZerologLogger {
	if w == nil {
		w = os.Stderr
	}
	return &ZerologLogger{
		logger: zerolog.New(w).With().Timestamp().Str("logger", strings.ToLower(defaultLoggerName)).Logger(),
	}
}

func (z *ZerologLogger) SetLevel(level LogLevel) {
	switch level {
	case LogLevelDebug:
		z.logger = z.logger.Level(zerolog.DebugLevel)
	case LogLevelInfo:
		z.logger = z.logger.Level(zerolog.InfoLevel)
	case LogLevelWarn:
		z.logger = z.logger.Level(zerolog.WarnLevel)
	case LogLevelError:
		z.logger = z.logger.Level(zerolog.ErrorLevel)
	}
}

func (z *ZerologLogger) Debug(msg string, fields ...interface{}) {
	z.logger.Debug().Fields(fields).Msg(msg)
}

func (z *ZerologLogger) Info(msg string, fields ...interface{}) {
	z.logger.Info().Fields(fields).Msg(msg)
}

func (z *ZerologLogger) Warn(msg string, fields ...interface{}) {
	z.logger.Warn().Fields(fields).Msg(msg)
}

func (z *ZerologLogger) Error(msg string, fields ...interface{}) {
	z.logger.Error().Fields(fields).Msg(msg)
}
