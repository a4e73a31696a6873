package debug

import (
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// Debug levels
const (
	LevelOff     = 0 // No output
	LevelInfo    = 1 // Important info (startup, calibration results)
	LevelLive    = 2 // Live info (guide cycles, corrections sent)
	LevelVerbose = 3 // Verbose (offsets, capture strategies, matches)
	LevelTrace   = 4 // Trace (serial/GPIO traffic, very low level)
)

var (
	level  atomic.Int32
	logger atomic.Pointer[zerolog.Logger]
	output atomic.Pointer[io.Writer]
)

func init() {
	nop := zerolog.Nop()
	logger.Store(&nop)
}

// Init initializes the debug system with a level (0-4).
// 0 = no output
// 1 = important info
// 2 = live info (guide cycles, motor corrections)
// 3 = verbose (offsets, capture strategies, feature matches)
// 4 = trace (serial and GPIO traffic)
func Init(debugLevel int) {
	level.Store(int32(debugLevel))
	rebuild()
}

// SetOutput redirects log output, e.g. to mirror it to SSE clients.
func SetOutput(w io.Writer) {
	output.Store(&w)
	rebuild()
}

func rebuild() {
	if Level() <= LevelOff {
		nop := zerolog.Nop()
		logger.Store(&nop)
		return
	}
	var w io.Writer = os.Stdout
	if p := output.Load(); p != nil {
		w = *p
	}
	cw := zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05.000", NoColor: true}
	l := zerolog.New(cw).Level(zerolog.TraceLevel).With().Timestamp().Str("app", "ScopeGo").Logger()
	logger.Store(&l)
}

func log() *zerolog.Logger {
	return logger.Load()
}

// Level returns the current debug level.
func Level() int {
	return int(level.Load())
}

// IsEnabled returns true if debug level is >= the requested level.
func IsEnabled(minLevel int) bool {
	return Level() >= minLevel
}

// Info prints a level 1 message (important info).
func Info(format string, args ...interface{}) {
	if IsEnabled(LevelInfo) {
		log().Info().Msgf(format, args...)
	}
}

// Warn prints a level 1 warning.
func Warn(format string, args ...interface{}) {
	if IsEnabled(LevelInfo) {
		log().Warn().Msgf(format, args...)
	}
}

// Value prints a named value (level 1).
func Value(name string, value interface{}) {
	if IsEnabled(LevelInfo) {
		log().Info().Interface(name, value).Msg("config")
	}
}

// Live prints a level 2 message (live info).
func Live(format string, args ...interface{}) {
	if IsEnabled(LevelLive) {
		log().Info().Str("tag", "live").Msgf(format, args...)
	}
}

// Correction prints a guide correction sent to the mount (level 2).
func Correction(axis, direction string, offsetPct float64) {
	if IsEnabled(LevelLive) {
		log().Info().Str("tag", "live").
			Str("axis", axis).
			Str("direction", direction).
			Float64("offset_pct", offsetPct).
			Msg("guide correction")
	}
}

// Verbose prints a level 3 message.
func Verbose(format string, args ...interface{}) {
	if IsEnabled(LevelVerbose) {
		log().Debug().Msgf(format, args...)
	}
}

// PrintStruct prints a struct in formatted form (level 3).
func PrintStruct(name string, v interface{}) {
	if IsEnabled(LevelVerbose) {
		log().Debug().Msgf("%s: %+v", name, v)
	}
}

// Section prints a section separator (level 3).
func Section(name string) {
	if IsEnabled(LevelVerbose) {
		log().Debug().Msg("━━━━━━━━━━ " + name + " ━━━━━━━━━━")
	}
}

// Step prints a numbered step (level 3).
func Step(num int, description string) {
	if IsEnabled(LevelVerbose) {
		log().Debug().Int("step", num).Msg(description)
	}
}

// Trace prints a level 4 message.
func Trace(format string, args ...interface{}) {
	if IsEnabled(LevelTrace) {
		log().Trace().Msgf(format, args...)
	}
}

// Command prints raw motor protocol traffic (level 4).
func Command(channel, cmd string) {
	if IsEnabled(LevelTrace) {
		log().Trace().Str("channel", channel).Str("cmd", fmt.Sprintf("%q", cmd)).Msg("motor command")
	}
}

// GPIO prints a GPIO operation (level 4).
func GPIO(operation string, pin int, value interface{}) {
	if IsEnabled(LevelTrace) {
		log().Trace().Str("op", operation).Int("pin", pin).Interface("value", value).Msg("gpio")
	}
}

// Error prints a debug error (level 1+).
func Error(err error) {
	if IsEnabled(LevelInfo) {
		log().Error().Err(err).Send()
	}
}
