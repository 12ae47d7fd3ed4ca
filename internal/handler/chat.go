package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/chatterbox/internal/apperror"
	"github.com/chatterbox/internal/chat"
	"github.com/chatterbox/internal/logger"
	"github.com/chatterbox/internal/model"
	"github.com/chatterbox/internal/upload"
)

type ChatHandler struct {
	svc       *chat.Service
	images    upload.ImageStore
	maxUpload int64
}

func NewChatHandler(svc *chat.Service, images upload.ImageStore, maxUpload int64) *ChatHandler {
	return &ChatHandler{svc: svc, images: images, maxUpload: maxUpload}
}

type channelsResponse struct {
	Channels []model.Channel `json:"channels"`
}

type messagesResponse struct {
	Channel  *model.Channel      `json:"channel"`
	Channels []model.Channel     `json:"channels"`
	Messages []model.MessageView `json:"messages"`
}

type searchResponse struct {
	ChannelID string              `json:"channel_id"`
	Keyword   string              `json:"keyword"`
	Messages  []model.MessageView `json:"messages"`
}

func (h *ChatHandler) Channels(w http.ResponseWriter, r *http.Request) {
	channels, err := h.svc.ListChannels(r.Context())
	if err != nil {
		replyError(w, r, err, "/")
		return
	}
	writeJSON(w, http.StatusOK, channelsResponse{Channels: channels})
}

func (h *ChatHandler) SearchChannels(w http.ResponseWriter, r *http.Request) {
	channels, err := h.svc.SearchChannels(r.Context(), r.URL.Query().Get("keyword"))
	if err != nil {
		replyError(w, r, err, "/")
		return
	}
	writeJSON(w, http.StatusOK, channelsResponse{Channels: channels})
}

// Messages returns a channel page; without channel_id the default channel is used.
func (h *ChatHandler) Messages(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p := principal(r)
	var (
		ch  *model.Channel
		err error
	)
	if id := r.URL.Query().Get("channel_id"); id != "" {
		ch, err = h.svc.GetChannel(ctx, id)
	} else {
		ch, err = h.svc.DefaultChannel(ctx, p)
	}
	if err != nil {
		replyError(w, r, err, "/")
		return
	}
	channels, err := h.svc.ListChannels(ctx)
	if err != nil {
		replyError(w, r, err, "/")
		return
	}
	messages, err := h.svc.ListMessages(ctx, ch.ID)
	if err != nil {
		replyError(w, r, err, "/")
		return
	}
	if err := h.svc.MarkRead(ctx, p, ch.ID); err != nil {
		logger.Errorf("mark read channel=%s user=%s: %v", ch.ID, p.UserID, err)
	}
	writeJSON(w, http.StatusOK, messagesResponse{Channel: ch, Channels: channels, Messages: messages})
}

// Send posts a message from a form; an optional "image" file is stored first and
// removed again when the post is rejected.
func (h *ChatHandler) Send(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload+maxFormMemory)
	get, err := params(r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			err = apperror.New(apperror.CodeInvalidArgument, "image is too large")
		}
		replyError(w, r, err, "/")
		return
	}
	channelID := get("channel_id")

	imageURL := ""
	if r.MultipartForm != nil {
		if file, header, ferr := r.FormFile("image"); ferr == nil {
			defer file.Close()
			if header.Size > h.maxUpload {
				replyError(w, r, apperror.New(apperror.CodeInvalidArgument, "image is too large"), chatPage(channelID))
				return
			}
			if header.Size > 0 {
				imageURL, err = upload.Save(ctx, h.images, header.Filename, file, header.Size)
				if err != nil {
					replyError(w, r, err, chatPage(channelID))
					return
				}
			}
		}
	}

	view, err := h.svc.PostMessage(ctx, principal(r), chat.NewMessage{ChannelID: channelID, Text: get("message"), ImageURL: imageURL})
	if err != nil {
		if imageURL != "" {
			h.removeImage(ctx, imageURL)
		}
		replyError(w, r, err, chatPage(channelID))
		return
	}
	reply(w, r, http.StatusCreated, view, chatPage(channelID), "")
}

func (h *ChatHandler) removeImage(ctx context.Context, url string) {
	if err := h.images.Remove(context.WithoutCancel(ctx), url); err != nil {
		logger.Errorf("remove image %s: %v", url, err)
	}
}

func (h *ChatHandler) EditMessage(w http.ResponseWriter, r *http.Request) {
	get, err := params(r)
	if err != nil {
		replyError(w, r, err, "/")
		return
	}
	view, err := h.svc.EditMessage(r.Context(), principal(r), chi.URLParam(r, "id"), get("content"))
	if err != nil {
		replyError(w, r, err, chatPage(get("channel_id")))
		return
	}
	reply(w, r, http.StatusOK, view, chatPage(view.ChannelID), "message updated")
}

func (h *ChatHandler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	msg, err := h.svc.DeleteMessage(r.Context(), principal(r), chi.URLParam(r, "id"))
	if err != nil {
		replyError(w, r, err, "/")
		return
	}
	if msg.ImageURL != "" {
		h.removeImage(r.Context(), msg.ImageURL)
	}
	reply(w, r, http.StatusOK, chat.MessageDeleted{MessageID: msg.ID}, chatPage(msg.ChannelID), "message deleted")
}

func (h *ChatHandler) ToggleReaction(w http.ResponseWriter, r *http.Request) {
	get, err := params(r)
	if err != nil {
		replyError(w, r, err, "/")
		return
	}
	out, err := h.svc.ToggleReaction(r.Context(), principal(r), chi.URLParam(r, "id"), get("emoji"))
	if err != nil {
		replyError(w, r, err, "/")
		return
	}
	reply(w, r, http.StatusOK, out, "/", "")
}

func (h *ChatHandler) Reactions(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	counts, err := h.svc.Reactions(r.Context(), id)
	if err != nil {
		replyError(w, r, err, "/")
		return
	}
	writeJSON(w, http.StatusOK, chat.ReactionsUpdated{MessageID: id, Reactions: counts})
}

func (h *ChatHandler) SearchMessages(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	channelID, keyword := q.Get("channel_id"), strings.TrimSpace(q.Get("keyword"))
	messages, err := h.svc.SearchMessages(r.Context(), channelID, keyword)
	if err != nil {
		replyError(w, r, err, chatPage(channelID))
		return
	}
	writeJSON(w, http.StatusOK, searchResponse{ChannelID: channelID, Keyword: keyword, Messages: messages})
}

func (h *ChatHandler) CreateChannel(w http.ResponseWriter, r *http.Request) {
	get, err := params(r)
	if err != nil {
		replyError(w, r, err, "/")
		return
	}
	ch, err := h.svc.CreateChannel(r.Context(), principal(r), get("name"))
	if err != nil {
		replyError(w, r, err, "/")
		return
	}
	reply(w, r, http.StatusCreated, ch, chatPage(ch.ID), "channel created")
}

func (h *ChatHandler) RenameChannel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	get, err := params(r)
	if err != nil {
		replyError(w, r, err, chatPage(id))
		return
	}
	ch, err := h.svc.RenameChannel(r.Context(), principal(r), id, get("name"))
	if err != nil {
		replyError(w, r, err, chatPage(id))
		return
	}
	reply(w, r, http.StatusOK, ch, chatPage(ch.ID), "channel renamed")
}

func (h *ChatHandler) DeleteChannel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	images, err := h.svc.DeleteChannel(r.Context(), principal(r), id)
	if err != nil {
		replyError(w, r, err, chatPage(id))
		return
	}
	for _, url := range images {
		h.removeImage(r.Context(), url)
	}
	reply(w, r, http.StatusOK, map[string]string{"channel_id": id}, "/", "channel deleted")
}
