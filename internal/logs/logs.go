package logs

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func New(logFilePath string, withConsole bool) zerolog.Logger {
	// Utwórz plik logów (append + tworzenie jeśli brak)
	logFile, err := os.OpenFile(logFilePath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		log.Fatal().Err(err).Msg("Nie można otworzyć pliku log")
	}

	return build(logFile, withConsole)
}

// NewConsole - logger tylko na stderr (komendy jednorazowe, testy ręczne)
func NewConsole() zerolog.Logger {
	return build(nil, true)
}

func build(file io.Writer, withConsole bool) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339

	var writer io.Writer = io.Discard
	consoleWriter := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
	}
	switch {
	case file != nil && withConsole:
		writer = zerolog.MultiLevelWriter(file, consoleWriter)
	case file != nil:
		writer = file
	case withConsole:
		writer = consoleWriter
	}

	// Logger z timestampem i info o miejscu wywołania
	logger := zerolog.New(writer).With().
		Timestamp().
		Caller().
		Logger()

	// Ustaw globalny logger
	log.Logger = logger

	return logger
}

// SetLevel ustawia globalny poziom; nieznany poziom -> info.
func SetLevel(logger zerolog.Logger, levelStr string) zerolog.Logger {
	level, err := zerolog.ParseLevel(levelStr)
	if err != nil || levelStr == "" {
		if levelStr != "" {
			logger.Warn().Str("level", levelStr).Msg("invalid log level, defaulting to info")
		}
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	logger = logger.Level(level)
	log.Logger = logger
	return logger
}
