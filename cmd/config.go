package main

import (
	"fmt"
	"strings"
	"time"
)

type Config struct {
	Host                 string        `env:"HOST,default=localhost"`
	Port                 int           `env:"PORT,default=8080"`
	BadgerFilepath       string        `env:"BADGER_FILEPATH,required=true"`
	BlugeFilepath        string        `env:"BLUGE_FILEPATH,required=true"`
	LogLevel             string        `env:"LOG_LEVEL,default=info"`
	JWTSecret            string        `env:"JWT_SECRET,required=true"`
	ConnectionBufferSize int           `env:"CONNECTION_BUFFER_SIZE,default=16"`
	ShutdownTimeout      time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s"`
	BlockedTerms         string        `env:"BLOCKED_TERMS"`
	CharReplacement      string        `env:"CHARACTER_REPLACEMENT,default=*"`
}

// BlockedTermsList splits the comma-separated blocklist, dropping blanks so a
// trailing comma never yields an empty pattern.
func (c Config) BlockedTermsList() []string {
	var terms []string
	for _, term := range strings.Split(c.BlockedTerms, ",") {
		if trimmed := strings.TrimSpace(term); trimmed != "" {
			terms = append(terms, trimmed)
		}
	}
	return terms
}

func CharacterRune(str string) (rune, error) {
	r := []rune(str)
	if len(r) != 1 {
		return 0, fmt.Errorf(
			"CHARACTER_REPLACEMENT must be a single character, got %q",
			str,
		)
	}
	return r[0], nil
}
