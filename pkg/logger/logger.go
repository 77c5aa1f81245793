/*
 * Copyright 2026 The FleetGlass Authors.
 *
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

// Package logger provides JSON structured logging using zerolog
package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Config controls log level and destination.
type Config struct {
	Level      string `json:"level" yaml:"level"`
	Debug      bool   `json:"debug" yaml:"debug"`
	Output     string `json:"output" yaml:"output"`
	TimeFormat string `json:"time_format" yaml:"time_format"`
}

// loggerImpl implements Logger without global state.
type loggerImpl struct {
	logger zerolog.Logger
}

// New creates a logger from the given configuration. A nil config uses
// defaults.
func New(config *Config) (Logger, error) {
	if config == nil {
		config = DefaultConfig()
	}

	var output io.Writer = os.Stdout
	if config.Output == "stderr" {
		output = os.Stderr
	}

	level := zerolog.InfoLevel

	if config.Debug {
		level = zerolog.DebugLevel
	} else if config.Level != "" {
		var err error

		level, err = zerolog.ParseLevel(config.Level)
		if err != nil {
			return nil, err
		}
	}

	if config.TimeFormat != "" {
		zerolog.TimeFieldFormat = config.TimeFormat
	} else {
		zerolog.TimeFieldFormat = time.RFC3339
	}

	zlog := zerolog.New(output).
		Level(level).
		With().
		Timestamp().
		Logger()

	return &loggerImpl{logger: zlog}, nil
}

// NewComponent creates a logger tagged with a component field.
func NewComponent(component string, config *Config) (Logger, error) {
	base, err := New(config)
	if err != nil {
		return nil, err
	}

	impl := base.(*loggerImpl)

	return &loggerImpl{logger: impl.logger.With().Str("component", component).Logger()}, nil
}

func (l *loggerImpl) Trace() *zerolog.Event {
	return l.logger.Trace()
}

func (l *loggerImpl) Debug() *zerolog.Event {
	return l.logger.Debug()
}

func (l *loggerImpl) Info() *zerolog.Event {
	return l.logger.Info()
}

func (l *loggerImpl) Warn() *zerolog.Event {
	return l.logger.Warn()
}

func (l *loggerImpl) Error() *zerolog.Event {
	return l.logger.Error()
}

func (l *loggerImpl) Fatal() *zerolog.Event {
	return l.logger.Fatal()
}

func (l *loggerImpl) Panic() *zerolog.Event {
	return l.logger.Panic()
}

func (l *loggerImpl) With() zerolog.Context {
	return l.logger.With()
}

func (l *loggerImpl) WithComponent(component string) zerolog.Logger {
	return l.logger.With().Str("component", component).Logger()
}

func (l *loggerImpl) WithFields(fields map[string]interface{}) zerolog.Logger {
	ctx := l.logger.With()
	for key, value := range fields {
		ctx = ctx.Interface(key, value)
	}

	return ctx.Logger()
}

func (l *loggerImpl) SetLevel(level zerolog.Level) {
	l.logger = l.logger.Level(level)
}

func (l *loggerImpl) SetDebug(debug bool) {
	if debug {
		l.SetLevel(zerolog.DebugLevel)
	} else {
		l.SetLevel(zerolog.InfoLevel)
	}
}
