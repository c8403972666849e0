package moderation

import (
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

// Test_Moderation_Startup measures how long a large blacklist takes to load
// from Badger and to be compiled into the automaton.
func Test_Moderation_Startup(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelInfo)
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	req.NoError(err)
	defer db.Close()

	wordCount := 20_000

	// Given a blacklist stored as keys
	wb := db.NewWriteBatch()
	for i := 0; i < wordCount; i++ {
		req.NoError(wb.Set([]byte(fmt.Sprintf("blacklist:word%c%d", 'a'+rune(i%26), i)), nil))
	}
	req.NoError(wb.Flush())

	// When it is loaded and compiled
	start := time.Now()
	var words []string
	err = db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false // words live in the keys
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte("blacklist:")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			words = append(words, string(it.Item().Key()[len(prefix):]))
		}
		return nil
	})
	req.NoError(err)
	mod, err := NewModerator(words, '*', log)
	req.NoError(err)

	// Then a blacklisted word is caught
	req.Len(words, wordCount)
	censored, found := mod.Censor("say worda0 twice")
	req.Equal("say ****** twice", censored)
	req.Equal([]string{"wordao"}, found) // reported in normalized form
	t.Logf("moderation startup with %d words: %v", wordCount, time.Since(start))
}

func TestModerator_Empty_Dictionary(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)

	// Given no censored word
	mod, err := NewModerator(nil, '*', log)
	req.NoError(err)

	// Then text goes through untouched
	content, words := mod.Censor("The badger is safe")
	req.Equal("The badger is safe", content)
	req.Nil(words)
}
