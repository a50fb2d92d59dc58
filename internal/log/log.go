package log

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

var logger = zerolog.New(io.Discard)

// Setup configures the global logger. Verbose enables debug output.
func Setup(verbose bool) {
	SetupWriter(os.Stderr, verbose)
}

// SetupWriter configures the global logger to write human-readable output to w
func SetupWriter(w io.Writer, verbose bool) {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}

	console := zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: time.Kitchen,
		NoColor:    !isTerminal(w),
	}

	logger = zerolog.New(console).Level(level).With().Timestamp().Logger()
}

func Debug(msg string, kv ...any) { write(logger.Debug(), msg, kv) }
func Info(msg string, kv ...any)  { write(logger.Info(), msg, kv) }
func Warn(msg string, kv ...any)  { write(logger.Warn(), msg, kv) }
func Error(msg string, kv ...any) { write(logger.Error(), msg, kv) }

// write attaches alternating key/value pairs to the event.
// A trailing key without a value is logged under "!BADKEY".
func write(e *zerolog.Event, msg string, kv []any) {
	if e == nil {
		return
	}
	for i := 0; i < len(kv); i += 2 {
		if i+1 >= len(kv) {
			e = e.Interface("!BADKEY", kv[i])
			break
		}
		key, ok := kv[i].(string)
		if !ok {
			key = fmt.Sprint(kv[i])
		}
		if err, ok := kv[i+1].(error); ok {
			e = e.AnErr(key, err)
			continue
		}
		e = e.Interface(key, kv[i+1])
	}
	e.Msg(msg)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
