package moderation

import (
	"bufio"
	"chat-relay/errors"
	"io/fs"
	"path"
	"sort"
	"strings"
)

// Dictionary is the merged content of a directory of word lists, one file per language.
type Dictionary struct {
	Words     []string
	Languages []string
}

// LoadDictionary reads every .txt file of dir, one word per line.
// "fr.txt" is recorded as language "fr". Blank lines and duplicates are dropped.
func LoadDictionary(fsys fs.FS, dir string) (*Dictionary, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, err
	}

	dictionary := &Dictionary{}
	seen := make(map[string]struct{})
	for _, entry := range entries {
		if entry.IsDir() || path.Ext(entry.Name()) != ".txt" {
			continue
		}
		dictionary.Languages = append(dictionary.Languages, strings.TrimSuffix(entry.Name(), ".txt"))

		file, err := fsys.Open(path.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		// Scanner copes with \r\n endings
		scanner := bufio.NewScanner(file)
		for scanner.Scan() {
			word := strings.TrimSpace(scanner.Text())
			if word == "" {
				continue
			}
			if _, ok := seen[word]; !ok {
				seen[word] = struct{}{}
				dictionary.Words = append(dictionary.Words, word)
			}
		}
		_ = file.Close()
		if err := scanner.Err(); err != nil {
			return nil, err
		}
	}

	if len(dictionary.Words) == 0 {
		return nil, errors.ErrEmptyWords
	}
	sort.Strings(dictionary.Words)
	return dictionary, nil
}
