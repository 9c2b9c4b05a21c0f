package log

import "gopkg.in/natefinch/lumberjack.v2"

const (
	FormatJSON    = "json"
	FormatConsole = "console"

	OutputStdout = "stdout"
	OutputStderr = "stderr"
	OutputFile   = "file"
)

type Config struct {
	// Name is attached to every entry as the logger field.
	Name   string `conf:"name" yaml:"name" json:"name"`
	Level  string `conf:"level" yaml:"level" json:"level"`
	Format string `conf:"format" yaml:"format" json:"format"`

	// Output selects where entries go: stdout, stderr or file.
	Output string     `conf:"output" yaml:"output" json:"output"`
	File   FileConfig `conf:"file" yaml:"file" json:"file"`
}

type FileConfig struct {
	Path       string `conf:"path" yaml:"path" json:"path"`
	MaxSizeMB  int    `conf:"max_size_mb" yaml:"max_size_mb" json:"max_size_mb"`
	MaxBackups int    `conf:"max_backups" yaml:"max_backups" json:"max_backups"`
	MaxAgeDays int    `conf:"max_age_days" yaml:"max_age_days" json:"max_age_days"`
	Compress   bool   `conf:"compress" yaml:"compress" json:"compress"`
}

func (c Config) withDefaults() Config {
	if c.Name == "" {
		c.Name = "gatekeeper"
	}

	if c.Level == "" {
		c.Level = "info"
	}

	if c.Format == "" {
		c.Format = FormatJSON
	}

	if c.Output == "" {
		c.Output = OutputStderr
	}

	return c
}

func (c FileConfig) rotator() *lumberjack.Logger {
	path := c.Path
	if path == "" {
		path = "gatekeeper.log"
	}

	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    c.MaxSizeMB,
		MaxBackups: c.MaxBackups,
		MaxAge:     c.MaxAgeDays,
		Compress:   c.Compress,
	}
}
