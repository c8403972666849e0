package client

import (
	"bytes"
	"chat-relay/domain/chat"
	"chat-relay/domain/search"
	"chat-relay/errors"
	"chat-relay/protocol"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"

	"github.com/samber/lo"
)

// Register creates the account and keeps its session.
func (c *Client) Register(ctx context.Context, request protocol.RegisterRequest) (chat.Profile, error) {
	var session protocol.SessionDTO
	if err := c.call(ctx, http.MethodPost, "/api/auth/register", request, &session); err != nil {
		return chat.Profile{}, err
	}
	return c.keep(session), nil
}

// Login opens a session used by every following call.
func (c *Client) Login(ctx context.Context, email, password string) (chat.Profile, error) {
	var session protocol.SessionDTO
	if err := c.call(ctx, http.MethodPost, "/api/auth/login", protocol.LoginRequest{Email: email, Password: password}, &session); err != nil {
		return chat.Profile{}, err
	}
	return c.keep(session), nil
}

func (c *Client) keep(session protocol.SessionDTO) chat.Profile {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = session.Token
	c.self = session.User.ToProfile()
	return c.self
}

// LoadDirectHistory merges the latest page of a direct conversation into its local view.
func (c *Client) LoadDirectHistory(ctx context.Context, contact chat.UserID) error {
	return c.loadHistory(ctx, "/api/messages/direct/"+url.PathEscape(string(contact)),
		chat.ConversationKey(c.Self().ID, chat.DirectTarget{Recipient: contact}))
}

func (c *Client) LoadChannelHistory(ctx context.Context, channelID chat.ChannelID) error {
	return c.loadHistory(ctx, "/api/messages/channel/"+url.PathEscape(string(channelID)),
		chat.ConversationKey(c.Self().ID, chat.ChannelTarget{Channel: channelID}))
}

func (c *Client) loadHistory(ctx context.Context, path, key string) error {
	var history protocol.HistoryDTO
	if err := c.call(ctx, http.MethodGet, path, nil, &history); err != nil {
		return err
	}
	conversation := c.Conversation(key)
	for _, dto := range history.Messages {
		message, err := dto.ToMessage()
		if err != nil {
			return err
		}
		conversation.Confirm(message)
	}
	return nil
}

func (c *Client) Channels(ctx context.Context) ([]chat.Channel, error) {
	var channels []protocol.ChannelDTO
	if err := c.call(ctx, http.MethodGet, "/api/channels/", nil, &channels); err != nil {
		return nil, err
	}
	return lo.Map(channels, func(channel protocol.ChannelDTO, _ int) chat.Channel {
		return channel.ToChannel()
	}), nil
}

func (c *Client) CreateChannel(ctx context.Context, name string, members ...chat.UserID) (chat.Channel, error) {
	body := map[string]any{"name": name, "members": members}
	var channel protocol.ChannelDTO
	if err := c.call(ctx, http.MethodPost, "/api/channels/", body, &channel); err != nil {
		return chat.Channel{}, err
	}
	return channel.ToChannel(), nil
}

func (c *Client) SearchContacts(ctx context.Context, term string) ([]chat.Profile, error) {
	var profiles []protocol.ProfileDTO
	if err := c.call(ctx, http.MethodGet, "/api/contacts/search?q="+url.QueryEscape(term), nil, &profiles); err != nil {
		return nil, err
	}
	return lo.Map(profiles, func(profile protocol.ProfileDTO, _ int) chat.Profile {
		return profile.ToProfile()
	}), nil
}

// DirectContacts lists the users with a direct conversation, most recent first.
func (c *Client) DirectContacts(ctx context.Context) ([]chat.DirectContact, error) {
	var contacts []protocol.DirectContactDTO
	if err := c.call(ctx, http.MethodGet, "/api/contacts/direct", nil, &contacts); err != nil {
		return nil, err
	}
	return lo.Map(contacts, func(contact protocol.DirectContactDTO, _ int) chat.DirectContact {
		return contact.ToDirectContact()
	}), nil
}

// DeleteChannel removes a channel the user administers, with its messages.
func (c *Client) DeleteChannel(ctx context.Context, channelID chat.ChannelID) error {
	if err := c.call(ctx, http.MethodDelete, "/api/channels/"+url.PathEscape(string(channelID)), nil, nil); err != nil {
		return err
	}
	key := chat.ConversationKey(c.Self().ID, chat.ChannelTarget{Channel: channelID})
	c.mu.Lock()
	delete(c.conversations, key)
	c.mu.Unlock()
	return nil
}

// SearchMessages runs a parsed /find query. --channel and --with restrict it to
// one conversation.
func (c *Client) SearchMessages(ctx context.Context, query *search.Query) ([]protocol.SearchHitDTO, error) {
	params := url.Values{}
	params.Set("q", query.Terms)
	params.Set("limit", strconv.Itoa(query.Limit))
	switch {
	case query.Channel != "":
		params.Set("conversation", chat.ConversationKey(c.Self().ID, chat.ChannelTarget{Channel: chat.ChannelID(query.Channel)}))
	case query.Contact != "":
		params.Set("conversation", chat.ConversationKey(c.Self().ID, chat.DirectTarget{Recipient: chat.UserID(query.Contact)}))
	}

	var hits []protocol.SearchHitDTO
	if err := c.call(ctx, http.MethodGet, "/api/messages/search?"+params.Encode(), nil, &hits); err != nil {
		return nil, err
	}
	return hits, nil
}

// UploadFile sends an attachment, the returned body is ready for SendDirect or SendChannel.
func (c *Client) UploadFile(ctx context.Context, name string, content io.Reader) (chat.FileBody, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", name)
	if err != nil {
		return chat.FileBody{}, err
	}
	if _, err = io.Copy(part, content); err != nil {
		return chat.FileBody{}, err
	}
	if err = writer.Close(); err != nil {
		return chat.FileBody{}, err
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/messages/files", &body)
	if err != nil {
		return chat.FileBody{}, err
	}
	request.Header.Set("Content-Type", writer.FormDataContentType())
	var ref protocol.FileRefDTO
	if err = c.do(request, &ref); err != nil {
		return chat.FileBody{}, err
	}
	return chat.FileBody{URL: ref.FileRef.URL, Name: ref.FileRef.Name, Size: ref.FileRef.Size}, nil
}

func (c *Client) call(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}
	request, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	return c.do(request, out)
}

// do turns an error answer into a protocol.RemoteError.
func (c *Client) do(request *http.Request, out any) error {
	if token := c.currentToken(); token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}
	response, err := c.http.Do(request)
	if err != nil {
		return fmt.Errorf("%w: %v", errors.ErrTransientIO, err)
	}
	defer response.Body.Close()

	if response.StatusCode >= http.StatusBadRequest {
		var failure protocol.ErrorPayload
		if err = json.NewDecoder(response.Body).Decode(&failure); err != nil {
			return fmt.Errorf("%s %s: status %d", request.Method, request.URL.Path, response.StatusCode)
		}
		return protocol.RemoteError{Code: errors.Code(failure.Code), Message: failure.Message, Retryable: failure.Retryable}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(response.Body).Decode(out)
}
