package log

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

type Options struct {
	Level  string
	Format string
	Out    io.Writer
}

// New returns a console logger tagged with module.
func New(module string) zerolog.Logger {
	return NewWithOptions(module, Options{})
}

func NewWithOptions(module string, opts Options) zerolog.Logger {
	w := opts.Out
	if w == nil {
		w = os.Stderr
	}

	level, err := zerolog.ParseLevel(strings.ToLower(opts.Level))
	if err != nil || opts.Level == "" {
		level = zerolog.InfoLevel
	}

	if strings.EqualFold(opts.Format, "json") {
		return zerolog.New(w).
			Level(level).
			With().
			Timestamp().
			Str("module", module).
			Logger()
	}

	out := zerolog.ConsoleWriter{
		Out:           w,
		TimeFormat:    "15:04",
		PartsOrder:    []string{"time", "level", "module", "message"},
		FieldsExclude: []string{"module"},
	}

	out.FormatPartValueByName = func(i any, s string) string {
		if s == "module" && i != nil {
			return strings.ToUpper(fmt.Sprintf("%s", i))
		}
		return ""
	}

	out.FormatFieldName = func(i any) string {
		return fmt.Sprintf("\n         \033[30m- \033[36m%s: \033[0m", i)
	}

	out.FormatErrFieldName = func(i any) string {
		return fmt.Sprintf("\n         \033[30m- \033[31m%s: \033[0m", i)
	}

	return zerolog.New(out).
		Level(level).
		With().
		Timestamp().
		Str("module", module).
		Logger()
}

// Discard is used by tests that do not care about log output.
func Discard() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}
