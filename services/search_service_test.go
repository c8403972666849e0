package services

import (
	"chat-relay/domain/chat"
	"chat-relay/errors"
	"chat-relay/mocks"
	"chat-relay/search"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/blugelabs/bluge"
	"github.com/google/uuid"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func searchFixture(t *testing.T, messages ...chat.Message) (*SearchService, *mocks.MockIMembershipResolver) {
	t.Helper()
	writer, err := bluge.OpenWriter(bluge.DefaultConfig(t.TempDir()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = writer.Close() })

	index := search.NewIndex(writer, logs.GetLoggerFromLevel(slog.LevelDebug))
	for _, message := range messages {
		require.NoError(t, index.Add(message))
	}
	membership := mocks.NewMockIMembershipResolver(gomock.NewController(t))
	return NewSearchService(index, membership), membership
}

func indexed(from chat.UserID, target chat.Target, content string) chat.Message {
	return chat.Message{
		ID:        uuid.New(),
		Sender:    chat.Profile{ID: from},
		Target:    target,
		Body:      chat.TextBody{Content: content},
		CreatedAt: time.Now().UTC(),
	}
}

func TestSearchService_Everything_Readable(t *testing.T) {
	req := require.New(t)
	dm := indexed("alice", chat.DirectTarget{Recipient: "bob"}, "budget review")
	general := indexed("carol", chat.ChannelTarget{Channel: "general"}, "budget approved")
	board := indexed("carol", chat.ChannelTarget{Channel: "board"}, "budget cut")
	service, membership := searchFixture(t, dm, general, board)

	// Given bob belongs to general only
	membership.EXPECT().ChannelsOf(gomock.Any(), chat.UserID("bob")).Return([]chat.ChannelID{"general"}, nil)

	// When bob searches without restriction
	hits, err := service.SearchMessages(context.Background(), SearchMessagesCommand{UserID: "bob", Terms: "budget"})

	// Then the board channel stays out of the results
	req.NoError(err)
	req.Len(hits, 2)
	req.ElementsMatch([]uuid.UUID{dm.ID, general.ID}, []uuid.UUID{hits[0].MessageID, hits[1].MessageID})
}

func TestSearchService_One_Conversation(t *testing.T) {
	req := require.New(t)
	dm := indexed("alice", chat.DirectTarget{Recipient: "bob"}, "budget review")
	general := indexed("carol", chat.ChannelTarget{Channel: "general"}, "budget approved")
	service, membership := searchFixture(t, dm, general)
	ctx := context.Background()

	// A channel conversation requires the membership
	membership.EXPECT().IsMember(gomock.Any(), chat.ChannelID("general"), chat.UserID("bob")).Return(true, nil)
	hits, err := service.SearchMessages(ctx, SearchMessagesCommand{UserID: "bob", Terms: "budget", Conversation: "ch:general"})
	req.NoError(err)
	req.Len(hits, 1)
	req.Equal(general.ID, hits[0].MessageID)

	// A direct conversation requires being one of its ends
	hits, err = service.SearchMessages(ctx, SearchMessagesCommand{UserID: "bob", Terms: "budget", Conversation: dm.Conversation()})
	req.NoError(err)
	req.Len(hits, 1)
	req.Equal(dm.ID, hits[0].MessageID)
}

func TestSearchService_Refusals(t *testing.T) {
	req := require.New(t)
	service, membership := searchFixture(t)
	ctx := context.Background()
	membership.EXPECT().IsMember(gomock.Any(), chat.ChannelID("board"), chat.UserID("bob")).Return(false, nil)

	_, err := service.SearchMessages(ctx, SearchMessagesCommand{UserID: "bob", Terms: "budget", Conversation: "ch:board"})
	req.ErrorIs(err, errors.ErrUnauthorized)

	_, err = service.SearchMessages(ctx, SearchMessagesCommand{UserID: "bob", Terms: "budget", Conversation: "dm:alice:carol"})
	req.ErrorIs(err, errors.ErrUnauthorized)

	_, err = service.SearchMessages(ctx, SearchMessagesCommand{UserID: "bob", Terms: "budget", Conversation: "room:1"})
	req.ErrorIs(err, errors.ErrValidation)
}
