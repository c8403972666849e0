package search

import (
	"strconv"
	"strings"
)

const DefaultLimit = 20

// Query represents the structured parameters of a message search.
// It decouples the raw chat input from the actual index requirements.
type Query struct {
	RawInput string // The original input of the user
	Terms    string // The actual text to search in the index
	Channel  string // Restricts the search to one channel
	Contact  string // Restricts the search to the direct conversation with a contact
	Limit    int
}

// NewSearchQuery parses a raw string to extract command-line style arguments.
// Example: /find invoice --channel general --limit 5
func NewSearchQuery(input string) *Query {
	query := &Query{
		RawInput: input,
		Limit:    DefaultLimit,
	}

	parts := strings.Fields(input)
	var textTerms []string

	for i := 0; i < len(parts); i++ {
		part := parts[i]

		// Handle flags like --channel general or --limit 5
		if strings.HasPrefix(part, "--") && i+1 < len(parts) {
			value := parts[i+1]
			switch strings.TrimPrefix(part, "--") {
			case "channel":
				query.Channel = value
			case "with":
				query.Contact = value
			case "limit":
				if limit, err := strconv.Atoi(value); err == nil && limit > 0 {
					query.Limit = limit
				}
			}
			i++ // Skip the value part in next iteration
			continue
		}

		// The command itself is not a search term
		if !strings.HasPrefix(part, "/") {
			textTerms = append(textTerms, part)
		}
	}

	query.Terms = strings.Join(textTerms, " ")
	return query
}
