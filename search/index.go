// Package search keeps a full-text index of the messages and answers queries on it.
package search

import (
	"chat-relay/domain/chat"
	"chat-relay/errors"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/blugelabs/bluge"
	"github.com/google/uuid"
)

const DefaultLimit = 20

const (
	fieldContent      = "content"
	fieldConversation = "conversation"
	fieldParticipant  = "participant"
	fieldSender       = "sender"
	fieldTimestamp    = "timestamp"
)

// Hit is a message matching a search.
type Hit struct {
	MessageID    uuid.UUID
	Conversation string
	Sender       chat.UserID
	Content      string
	At           time.Time
	Score        float64
}

// Scope lists what a user may read: its direct conversations, found through the
// participant field, and the conversations of its channels.
type Scope struct {
	Participant   chat.UserID
	Conversations []string
}

type Index struct {
	writer *bluge.Writer
	log    *slog.Logger
}

func NewIndex(writer *bluge.Writer, log *slog.Logger) *Index {
	return &Index{writer: writer, log: log}
}

// Add indexes the searchable text of a message: the content of a text message
// or the name of a file.
func (i *Index) Add(message chat.Message) error {
	var text, words string
	switch body := message.Body.(type) {
	case chat.TextBody:
		text = body.Content
	case chat.FileBody:
		text = body.Name
		// "holiday.png" is a single token, its parts are indexed too
		words = strings.Join(strings.FieldsFunc(body.Name, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		}), " ")
	}

	doc := bluge.NewDocument(message.ID.String()).
		AddField(bluge.NewTextField(fieldContent, text).StoreValue()).
		AddField(bluge.NewKeywordField(fieldConversation, message.Conversation()).StoreValue()).
		AddField(bluge.NewKeywordField(fieldSender, string(message.Sender.ID)).StoreValue()).
		AddField(bluge.NewDateTimeField(fieldTimestamp, message.CreatedAt).StoreValue())
	if words != "" {
		doc.AddField(bluge.NewTextField(fieldContent, words))
	}
	if target, ok := message.Target.(chat.DirectTarget); ok {
		doc.AddField(bluge.NewKeywordField(fieldParticipant, string(message.Sender.ID)))
		doc.AddField(bluge.NewKeywordField(fieldParticipant, string(target.Recipient)))
	}

	if err := i.writer.Update(doc.ID(), doc); err != nil {
		return fmt.Errorf("%w: index message %s: %v", errors.ErrTransientIO, message.ID, err)
	}
	return nil
}

// Search returns the best matches of terms inside the scope, at most limit of them.
func (i *Index) Search(ctx context.Context, terms string, scope Scope, limit int) ([]Hit, error) {
	terms = strings.TrimSpace(terms)
	if terms == "" {
		return nil, fmt.Errorf("%w: search terms are required", errors.ErrValidation)
	}
	if limit <= 0 {
		limit = DefaultLimit
	}

	allowed := bluge.NewBooleanQuery().SetMinShould(1)
	if scope.Participant != "" {
		allowed.AddShould(bluge.NewTermQuery(string(scope.Participant)).SetField(fieldParticipant))
	}
	for _, conversation := range scope.Conversations {
		allowed.AddShould(bluge.NewTermQuery(conversation).SetField(fieldConversation))
	}
	if len(allowed.Shoulds()) == 0 {
		return []Hit{}, nil
	}
	query := bluge.NewBooleanQuery().
		AddMust(bluge.NewMatchQuery(terms).SetField(fieldContent)).
		AddMust(allowed)

	reader, err := i.writer.Reader()
	if err != nil {
		return nil, fmt.Errorf("%w: open index reader: %v", errors.ErrTransientIO, err)
	}
	defer func() { _ = reader.Close() }()

	matches, err := reader.Search(ctx, bluge.NewTopNSearch(limit, query))
	if err != nil {
		return nil, fmt.Errorf("%w: search: %v", errors.ErrTransientIO, err)
	}

	hits := make([]Hit, 0, limit)
	match, err := matches.Next()
	for err == nil && match != nil {
		hit := Hit{Score: match.Score}
		err = match.VisitStoredFields(func(field string, value []byte) bool {
			switch field {
			case "_id":
				hit.MessageID, _ = uuid.ParseBytes(value)
			case fieldContent:
				hit.Content = string(value)
			case fieldConversation:
				hit.Conversation = string(value)
			case fieldSender:
				hit.Sender = chat.UserID(value)
			case fieldTimestamp:
				hit.At, _ = bluge.DecodeDateTime(value)
			}
			return true
		})
		if err != nil {
			break
		}
		hits = append(hits, hit)
		match, err = matches.Next()
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read search results: %v", errors.ErrTransientIO, err)
	}
	i.log.Debug("Search done", "participant", scope.Participant, "hits", len(hits))
	return hits, nil
}
