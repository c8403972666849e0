package repositories

import (
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
)

// Record is a readable view of one raw Badger entry.
type Record struct {
	Kind   string
	ID     string
	Detail string
}

// Describe decodes a raw entry from its key prefix. Unknown or undecodable
// entries are still described, with their size as detail.
func Describe(key string, value []byte) Record {
	switch {
	case strings.HasPrefix(key, "msg:"):
		var doc messageDocument
		if err := bson.Unmarshal(value, &doc); err != nil {
			return undecodable("MESSAGE", key, err)
		}
		detail := doc.Content
		if doc.MessageType == "file" {
			detail = fmt.Sprintf("%s (%d bytes)", doc.FileName, doc.FileSize)
		}
		return Record{Kind: "MESSAGE", ID: doc.ID, Detail: fmt.Sprintf("%s %s: %s", doc.Conversation, doc.Sender, detail)}
	case strings.HasPrefix(key, "channel:"):
		var channel DiskChannel
		if err := bson.Unmarshal(value, &channel); err != nil {
			return undecodable("CHANNEL", key, err)
		}
		return Record{Kind: "CHANNEL", ID: channel.ID, Detail: fmt.Sprintf("%s, %d members, admin %s", channel.Name, len(channel.Members), channel.Admin)}
	case strings.HasPrefix(key, "user:id:"):
		var user User
		if err := bson.Unmarshal(value, &user); err != nil {
			return undecodable("USER", key, err)
		}
		return Record{Kind: "USER", ID: user.ID, Detail: strings.TrimSpace(fmt.Sprintf("%s %s <%s>", user.FirstName, user.LastName, user.Email))}
	case strings.HasPrefix(key, "user:email:"):
		return Record{Kind: "EMAIL", ID: strings.TrimPrefix(key, "user:email:"), Detail: string(value)}
	case strings.HasPrefix(key, "member:"):
		return Record{Kind: "MEMBER", ID: strings.TrimPrefix(key, "member:")}
	default:
		return Record{Kind: "UNKNOWN", ID: key, Detail: fmt.Sprintf("%d bytes", len(value))}
	}
}

func undecodable(kind, key string, err error) Record {
	return Record{Kind: kind, ID: key, Detail: "undecodable: " + err.Error()}
}
