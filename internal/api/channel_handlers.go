package api

import (
	"fmt"
	"net/http"

	"cliptube/internal/auth"
	"cliptube/internal/models"
)

type channelResponse struct {
	Channel     userResponse `json:"channel"`
	Subscribers int          `json:"subscribers"`
	Subscribed  bool         `json:"subscribed"`
}

type subscriptionStateResponse struct {
	Subscribers int  `json:"subscribers"`
	Subscribed  bool `json:"subscribed"`
}

// ChannelByUsername serves /api/channels/{username}: the public profile plus
// the subscribe toggle and subscriber listing subresources.
func (h *Handler) ChannelByUsername(w http.ResponseWriter, r *http.Request) {
	segments := pathSegments(r, "/api/channels/")
	if len(segments) == 0 || segments[0] == "" {
		writeError(w, http.StatusNotFound, fmt.Errorf("channel username missing"))
		return
	}
	username := auth.NormalizeUsername(segments[0])
	channel, ok, err := h.Store.FindUserByLogin(r.Context(), username)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("channel %s not found", username))
		return
	}

	if len(segments) == 1 {
		h.channelProfile(w, r, channel)
		return
	}
	switch segments[1] {
	case "subscribe":
		h.toggleSubscription(w, r, channel)
	case "subscribers":
		h.listSubscribers(w, r, channel)
	case "videos":
		h.listChannelVideos(w, r, channel)
	default:
		writeError(w, http.StatusNotFound, fmt.Errorf("unknown channel path"))
	}
}

func (h *Handler) channelProfile(w http.ResponseWriter, r *http.Request, channel models.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	count, err := h.Store.CountSubscribers(r.Context(), channel.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	response := channelResponse{
		Channel:     newUserResponse(channel.Public()),
		Subscribers: count,
	}
	if actor, ok := UserFromContext(r.Context()); ok {
		subscribed, err := h.isSubscribed(r, actor.ID, channel.ID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		response.Subscribed = subscribed
	}
	writeData(w, http.StatusOK, response, "channel")
}

func (h *Handler) isSubscribed(r *http.Request, subscriberID, channelID string) (bool, error) {
	channels, err := h.Store.ListSubscribedChannels(r.Context(), subscriberID)
	if err != nil {
		return false, err
	}
	for _, channel := range channels {
		if channel.ID == channelID {
			return true, nil
		}
	}
	return false, nil
}

func (h *Handler) toggleSubscription(w http.ResponseWriter, r *http.Request, channel models.User) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	actor, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	subscribed, err := h.Store.ToggleSubscription(r.Context(), actor.ID, channel.ID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	count, err := h.Store.CountSubscribers(r.Context(), channel.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeData(w, http.StatusOK, subscriptionStateResponse{
		Subscribers: count,
		Subscribed:  subscribed,
	}, "subscription toggled")
}

func (h *Handler) listSubscribers(w http.ResponseWriter, r *http.Request, channel models.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	subscribers, err := h.Store.ListSubscribers(r.Context(), channel.ID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	response := make([]userResponse, 0, len(subscribers))
	for _, subscriber := range subscribers {
		response = append(response, newUserResponse(subscriber))
	}
	writeData(w, http.StatusOK, response, "subscribers")
}

func (h *Handler) listChannelVideos(w http.ResponseWriter, r *http.Request, channel models.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	q := r.URL.Query()
	q.Set("ownerId", channel.ID)
	r.URL.RawQuery = q.Encode()
	h.listVideos(w, r)
}
