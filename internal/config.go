package internal

import (
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"
)

type Config struct {
	Host              string        `env:"HOST,default=0.0.0.0"`
	Port              int           `env:"PORT,default=8080"`
	LogLevel          string        `env:"LOG_LEVEL,required=true"`
	JWTSecret         string        `env:"JWT_SECRET,required=true"`
	AuthTokenDuration time.Duration `env:"AUTH_TOKEN_DURATION,default=72h"`
	BadgerFilepath    string        `env:"BADGER_FILEPATH,required=true"`
	BlugeFilepath     string        `env:"BLUGE_FILEPATH,required=true"`
	UploadDir         string        `env:"UPLOAD_DIR,required=true"`
	MaxFileSize       int64         `env:"MAX_FILE_SIZE,default=10485760"`
	LimitMessages     *int          `env:"LIMIT_MESSAGES"`
	SinkTimeout       time.Duration `env:"SINK_TIMEOUT,default=5s"`
	RequestTimeout    time.Duration `env:"REQUEST_TIMEOUT,default=30s"`
	ShutdownTimeout   time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s"`
	SendBuffer        int           `env:"CONNECTION_BUFFER_SIZE,default=256"`
	IndexBuffer       int           `env:"INDEX_BUFFER_SIZE,default=1024"`
	CensoredWords     string        `env:"CENSORED_WORDS"`
	CensoredWordsDir  string        `env:"CENSORED_WORDS_DIR"`
	CharReplacement   string        `env:"CHARACTER_REPLACEMENT,default=*"`
	AllowedOrigins    string        `env:"ALLOWED_ORIGINS"`
}

func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Words splits a comma separated list, blank items are dropped.
func Words(list string) []string {
	return lo.Compact(lo.Map(strings.Split(list, ","), func(word string, _ int) string {
		return strings.TrimSpace(word)
	}))
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
