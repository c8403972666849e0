package rest

import (
	"chat-relay/auth"
	"chat-relay/domain/chat"
	"chat-relay/errors"
	"chat-relay/protocol"
	"chat-relay/search"
	"chat-relay/services"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/samber/lo"
)

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	stats, err := h.services.Health.Snapshot()
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var body protocol.RegisterRequest
	if err := decodeJSON(w, r, &body); err != nil {
		h.writeError(w, err)
		return
	}
	session, err := h.services.Auth.Register(auth.RegisterRequest{
		Email:     body.Email,
		Password:  body.Password,
		FirstName: body.FirstName,
		LastName:  body.LastName,
		Color:     body.Color,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSession(session))
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var body protocol.LoginRequest
	if err := decodeJSON(w, r, &body); err != nil {
		h.writeError(w, err)
		return
	}
	session, err := h.services.Auth.Login(body.Email, body.Password)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSession(session))
}

func (h *Handler) directMessages(w http.ResponseWriter, r *http.Request) {
	messages, cursor, err := h.services.Chat.GetDirectMessages(r.Context(), chat.GetDirectMessagesCommand{
		UserID:  identity(r),
		Contact: chat.UserID(chi.URLParam(r, "userID")),
		Cursor:  cursorParam(r),
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toHistory(messages, cursor))
}

func (h *Handler) channelMessages(w http.ResponseWriter, r *http.Request) {
	messages, cursor, err := h.services.Chat.GetChannelMessages(r.Context(), chat.GetChannelMessagesCommand{
		UserID:  identity(r),
		Channel: chat.ChannelID(chi.URLParam(r, "channelID")),
		Cursor:  cursorParam(r),
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toHistory(messages, cursor))
}

func (h *Handler) searchMessages(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit := 0
	if raw := query.Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			h.writeError(w, fmt.Errorf("%w: limit must be a positive number", errors.ErrValidation))
			return
		}
		limit = parsed
	}

	hits, err := h.services.Search.SearchMessages(r.Context(), services.SearchMessagesCommand{
		UserID:       identity(r),
		Terms:        query.Get("q"),
		Conversation: query.Get("conversation"),
		Limit:        limit,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lo.Map(hits, func(hit search.Hit, _ int) protocol.SearchHitDTO {
		return toHit(hit)
	}))
}

// uploadFile streams the "file" part of a multipart body to the file service.
func (h *Handler) uploadFile(w http.ResponseWriter, r *http.Request) {
	// Room for the multipart framing around the file
	r.Body = http.MaxBytesReader(w, r.Body, h.maxFileSize+64*1024)
	reader, err := r.MultipartReader()
	if err != nil {
		h.writeError(w, fmt.Errorf("%w: multipart body expected: %v", errors.ErrValidation, err))
		return
	}

	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			h.writeError(w, fmt.Errorf("%w: missing file part", errors.ErrValidation))
			return
		}
		if err != nil {
			h.writeError(w, fmt.Errorf("%w: malformed multipart body: %v", errors.ErrValidation, err))
			return
		}
		if part.FormName() != "file" {
			_ = part.Close()
			continue
		}

		body, err := h.services.Files.Save(r.Context(), identity(r), part.FileName(), part)
		_ = part.Close()
		if err != nil {
			h.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, protocol.FileRefDTO{
			FileRef: protocol.FileDTO{URL: body.URL, Name: body.Name, Size: body.Size},
		})
		return
	}
}

func (h *Handler) serveFile(w http.ResponseWriter, r *http.Request) {
	location, err := h.services.Files.Locate("files/" + chi.URLParam(r, "*"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.Header().Set("X-Content-Type-Options", "nosniff")
	http.ServeFile(w, r, location)
}

func (h *Handler) createChannel(w http.ResponseWriter, r *http.Request) {
	var body services.CreateChannelRequest
	if err := decodeJSON(w, r, &body); err != nil {
		h.writeError(w, err)
		return
	}
	channel, err := h.services.Channels.CreateChannel(r.Context(), identity(r), body)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, protocol.FromChannel(channel))
}

func (h *Handler) listChannels(w http.ResponseWriter, r *http.Request) {
	channels, err := h.services.Channels.GetChannels(r.Context(), identity(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lo.Map(channels, func(channel chat.Channel, _ int) protocol.ChannelDTO {
		return protocol.FromChannel(channel)
	}))
}

func (h *Handler) getChannel(w http.ResponseWriter, r *http.Request) {
	channel, err := h.services.Channels.GetChannel(r.Context(), identity(r), chat.ChannelID(chi.URLParam(r, "channelID")))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, protocol.FromChannel(channel))
}

func (h *Handler) updateChannel(w http.ResponseWriter, r *http.Request) {
	var body services.UpdateChannelRequest
	if err := decodeJSON(w, r, &body); err != nil {
		h.writeError(w, err)
		return
	}
	channel, err := h.services.Channels.UpdateChannel(r.Context(), identity(r), chat.ChannelID(chi.URLParam(r, "channelID")), body)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, protocol.FromChannel(channel))
}

func (h *Handler) addMember(w http.ResponseWriter, r *http.Request) {
	var body protocol.MemberRequest
	if err := decodeJSON(w, r, &body); err != nil {
		h.writeError(w, err)
		return
	}
	channel, err := h.services.Channels.AddMember(r.Context(), identity(r),
		chat.ChannelID(chi.URLParam(r, "channelID")), chat.UserID(body.UserID))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, protocol.FromChannel(channel))
}

func (h *Handler) removeMember(w http.ResponseWriter, r *http.Request) {
	channel, err := h.services.Channels.RemoveMember(r.Context(), identity(r),
		chat.ChannelID(chi.URLParam(r, "channelID")), chat.UserID(chi.URLParam(r, "userID")))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, protocol.FromChannel(channel))
}

func (h *Handler) deleteChannel(w http.ResponseWriter, r *http.Request) {
	if err := h.services.Channels.DeleteChannel(r.Context(), identity(r), chat.ChannelID(chi.URLParam(r, "channelID"))); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) allContacts(w http.ResponseWriter, r *http.Request) {
	contacts, err := h.services.Contacts.GetAllContacts(r.Context(), identity(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lo.Map(contacts, func(profile chat.Profile, _ int) protocol.ProfileDTO {
		return protocol.FromProfile(profile)
	}))
}

func (h *Handler) directContacts(w http.ResponseWriter, r *http.Request) {
	contacts, err := h.services.Contacts.GetDirectContacts(r.Context(), identity(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lo.Map(contacts, func(contact chat.DirectContact, _ int) protocol.DirectContactDTO {
		return protocol.FromDirectContact(contact)
	}))
}

func (h *Handler) searchContacts(w http.ResponseWriter, r *http.Request) {
	contacts, err := h.services.Contacts.SearchContacts(r.Context(), identity(r), r.URL.Query().Get("q"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lo.Map(contacts, func(profile chat.Profile, _ int) protocol.ProfileDTO {
		return protocol.FromProfile(profile)
	}))
}

func cursorParam(r *http.Request) *string {
	if cursor := r.URL.Query().Get("cursor"); cursor != "" {
		return &cursor
	}
	return nil
}

func toSession(session services.Session) protocol.SessionDTO {
	return protocol.SessionDTO{Token: string(session.Token), User: protocol.FromProfile(session.User)}
}

func toHistory(messages []chat.Message, cursor *string) protocol.HistoryDTO {
	return protocol.HistoryDTO{
		Messages: lo.Map(messages, func(message chat.Message, _ int) protocol.MessageDTO {
			return protocol.FromMessage(message)
		}),
		Cursor: cursor,
	}
}

func toHit(hit search.Hit) protocol.SearchHitDTO {
	return protocol.SearchHitDTO{
		MessageID:    hit.MessageID.String(),
		Conversation: hit.Conversation,
		Sender:       string(hit.Sender),
		Content:      hit.Content,
		Timestamp:    hit.At,
		Score:        hit.Score,
	}
}
