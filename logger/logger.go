// Copyright (C) 2024 sitroom contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package logger builds the structured zap.Logger that every pipeline stage
// takes as a constructor dependency, plus a small printf-style console
// logger used only for the startup banner in cmd/sitroom, where a human
// reads one-line progress messages before structured logging is worth the
// ceremony.
package logger

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewZap builds a *zap.Logger at the given level ("debug", "info", "warn",
// "error"; unrecognized values fall back to "info"). It mirrors the
// production-with-development-fallback shape used at startup, parameterized
// by level instead of always defaulting to production.
func NewZap(levelStr string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.Level = zap.NewAtomicLevelAt(parseZapLevel(levelStr))

	zl, err := cfg.Build()
	if err != nil {
		return zap.NewDevelopment()
	}
	return zl, nil
}

func parseZapLevel(levelStr string) zapcore.Level {
	switch strings.ToLower(levelStr) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// LogLevel represents the severity of a console message.
type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
)

// Console is a leveled, colorized printf-style logger for the handful of
// human-facing startup/shutdown lines that precede structured logging
// (banner, config summary, final exit line). Pipeline stages use the
// zap.Logger from NewZap instead.
type Console struct {
	level  LogLevel
	prefix string
	logger *log.Logger
}

var (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorGray   = "\033[90m"
)

// NewConsole creates a console logger with the specified level.
func NewConsole(levelStr string, prefix string) *Console {
	return &Console{
		level:  parseLogLevel(levelStr),
		prefix: prefix,
		logger: log.New(os.Stdout, "", 0),
	}
}

func parseLogLevel(levelStr string) LogLevel {
	switch strings.ToLower(levelStr) {
	case "debug":
		return DEBUG
	case "warn", "warning":
		return WARN
	case "error":
		return ERROR
	default:
		return INFO
	}
}

func (c *Console) formatMessage(level string, color string, format string, args ...interface{}) string {
	timestamp := time.Now().Format("2006/01/02 15:04:05")
	message := fmt.Sprintf(format, args...)
	if c.prefix != "" {
		message = fmt.Sprintf("[%s] %s", c.prefix, message)
	}

	useColor := false
	if fileInfo, _ := os.Stdout.Stat(); (fileInfo.Mode() & os.ModeCharDevice) != 0 {
		useColor = true
	}
	if !useColor && os.Getenv("FORCE_LOG_COLOR") == "1" {
		useColor = true
	}

	if useColor {
		return fmt.Sprintf("%s %s[%s]%s %s", timestamp, color, level, colorReset, message)
	}
	return fmt.Sprintf("%s [%s] %s", timestamp, level, message)
}

// Debug logs a debug message.
func (c *Console) Debug(format string, args ...interface{}) {
	if c.level <= DEBUG {
		c.logger.Println(c.formatMessage("DEBUG", colorGray, format, args...))
	}
}

// Info logs an info message without a level tag, for clean banner output.
func (c *Console) Info(format string, args ...interface{}) {
	if c.level <= INFO {
		timestamp := time.Now().Format("2006/01/02 15:04:05")
		message := fmt.Sprintf(format, args...)
		if c.prefix != "" {
			message = fmt.Sprintf("[%s] %s", c.prefix, message)
		}
		c.logger.Println(fmt.Sprintf("%s %s", timestamp, message))
	}
}

// Warn logs a warning message.
func (c *Console) Warn(format string, args ...interface{}) {
	if c.level <= WARN {
		c.logger.Println(c.formatMessage("WARN", colorYellow, format, args...))
	}
}

// Error logs an error message.
func (c *Console) Error(format string, args ...interface{}) {
	if c.level <= ERROR {
		c.logger.Println(c.formatMessage("ERROR", colorRed, format, args...))
	}
}
