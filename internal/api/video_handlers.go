package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"cliptube/internal/media"
	"cliptube/internal/models"
	"cliptube/internal/storage"
)

type videoResponse struct {
	ID           string  `json:"id"`
	OwnerID      string  `json:"ownerId"`
	Title        string  `json:"title"`
	Description  string  `json:"description,omitempty"`
	VideoURL     string  `json:"videoUrl"`
	ThumbnailURL string  `json:"thumbnailUrl,omitempty"`
	Duration     float64 `json:"duration"`
	Views        int64   `json:"views"`
	Published    bool    `json:"published"`
	CreatedAt    string  `json:"createdAt"`
	UpdatedAt    string  `json:"updatedAt"`
}

type videoListResponse struct {
	Videos []videoResponse `json:"videos"`
	Total  int             `json:"total"`
	Page   int             `json:"page"`
	Limit  int             `json:"limit"`
}

type updateVideoRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
}

type likeStateResponse struct {
	Liked bool `json:"liked"`
	Count int  `json:"count"`
}

func newVideoResponse(video models.Video) videoResponse {
	return videoResponse{
		ID:           video.ID,
		OwnerID:      video.OwnerID,
		Title:        video.Title,
		Description:  video.Description,
		VideoURL:     video.VideoURL,
		ThumbnailURL: video.ThumbnailURL,
		Duration:     video.Duration,
		Views:        video.Views,
		Published:    video.Published,
		CreatedAt:    video.CreatedAt.Format(time.RFC3339Nano),
		UpdatedAt:    video.UpdatedAt.Format(time.RFC3339Nano),
	}
}

// Videos handles the collection: GET lists published videos, POST publishes
// a new one from a multipart form.
func (h *Handler) Videos(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.listVideos(w, r)
	case http.MethodPost:
		h.publishVideo(w, r)
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPost)
	}
}

func (h *Handler) listVideos(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	params := storage.VideoListParams{
		OwnerID: strings.TrimSpace(query.Get("ownerId")),
		Query:   strings.TrimSpace(query.Get("q")),
		Page:    queryInt(r, "page", 1),
		Limit:   queryInt(r, "limit", storage.DefaultPageSize),
		SortBy:  strings.TrimSpace(query.Get("sortBy")),
		SortAsc: strings.EqualFold(query.Get("order"), "asc"),
	}
	// Owners see their own unpublished videos in their listing.
	if actor, ok := UserFromContext(r.Context()); ok && params.OwnerID == actor.ID {
		params.IncludeUnpublished = true
	}

	videos, total, err := h.Store.ListVideos(r.Context(), params)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	response := videoListResponse{
		Videos: make([]videoResponse, 0, len(videos)),
		Total:  total,
		Page:   params.Page,
		Limit:  params.Limit,
	}
	if response.Page < 1 {
		response.Page = 1
	}
	for _, video := range videos {
		response.Videos = append(response.Videos, newVideoResponse(video))
	}
	writeData(w, http.StatusOK, response, "videos")
}

func (h *Handler) publishVideo(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	if h.Media == nil {
		writeError(w, http.StatusNotFound, fmt.Errorf("media uploads not configured"))
		return
	}
	title := strings.TrimSpace(r.FormValue("title"))
	if title == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("title is required"))
		return
	}
	duration, _ := strconv.ParseFloat(r.FormValue("duration"), 64)

	videoFile, videoHeader, err := r.FormFile("videoFile")
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("videoFile field is required"))
		return
	}
	defer videoFile.Close()

	videoObj, err := h.Media.Save(r.Context(), media.KindVideo, videoHeader.Filename, videoHeader.Header.Get("Content-Type"), videoFile)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	thumbnailURL := ""
	if thumbFile, thumbHeader, err := r.FormFile("thumbnail"); err == nil {
		defer thumbFile.Close()
		thumbObj, err := h.Media.Save(r.Context(), media.KindThumbnail, thumbHeader.Filename, thumbHeader.Header.Get("Content-Type"), thumbFile)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		thumbnailURL = thumbObj.URL
	}

	video, err := h.Store.CreateVideo(r.Context(), storage.CreateVideoParams{
		OwnerID:      actor.ID,
		Title:        title,
		Description:  r.FormValue("description"),
		VideoURL:     videoObj.URL,
		ThumbnailURL: thumbnailURL,
		Duration:     duration,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeData(w, http.StatusCreated, newVideoResponse(video), "video published")
}

// VideoByID handles /api/videos/{id} and its subresources.
func (h *Handler) VideoByID(w http.ResponseWriter, r *http.Request) {
	segments := pathSegments(r, "/api/videos/")
	if len(segments) == 0 || segments[0] == "" {
		writeError(w, http.StatusNotFound, fmt.Errorf("video id missing"))
		return
	}
	videoID := segments[0]

	if len(segments) == 1 {
		switch r.Method {
		case http.MethodGet:
			h.getVideo(w, r, videoID)
		case http.MethodPatch:
			h.updateVideo(w, r, videoID)
		case http.MethodDelete:
			h.deleteVideo(w, r, videoID)
		default:
			methodNotAllowed(w, http.MethodGet, http.MethodPatch, http.MethodDelete)
		}
		return
	}

	switch segments[1] {
	case "publish":
		h.toggleVideoPublish(w, r, videoID)
	case "like":
		h.toggleVideoLike(w, r, videoID)
	case "comments":
		h.videoComments(w, r, videoID)
	default:
		writeError(w, http.StatusNotFound, fmt.Errorf("unknown video path"))
	}
}

// getVideo returns the video and records a view. Unpublished videos are
// visible only to their owner.
func (h *Handler) getVideo(w http.ResponseWriter, r *http.Request, videoID string) {
	video, ok, err := h.Store.GetVideo(r.Context(), videoID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("video %s not found", videoID))
		return
	}
	actor, hasActor := UserFromContext(r.Context())
	if !video.Published && (!hasActor || actor.ID != video.OwnerID) {
		writeError(w, http.StatusNotFound, fmt.Errorf("video %s not found", videoID))
		return
	}

	viewerID := ""
	if hasActor {
		viewerID = actor.ID
	}
	video, err = h.Store.RecordView(r.Context(), videoID, viewerID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	h.observeVideoView()
	writeData(w, http.StatusOK, newVideoResponse(video), "video")
}

// requireVideoOwner loads the video and ensures the authenticated user owns
// it.
func (h *Handler) requireVideoOwner(w http.ResponseWriter, r *http.Request, videoID string) (models.Video, models.User, bool) {
	actor, ok := h.requireUser(w, r)
	if !ok {
		return models.Video{}, models.User{}, false
	}
	video, exists, err := h.Store.GetVideo(r.Context(), videoID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return models.Video{}, models.User{}, false
	}
	if !exists {
		writeError(w, http.StatusNotFound, fmt.Errorf("video %s not found", videoID))
		return models.Video{}, models.User{}, false
	}
	if video.OwnerID != actor.ID {
		writeError(w, http.StatusForbidden, fmt.Errorf("forbidden"))
		return models.Video{}, models.User{}, false
	}
	return video, actor, true
}

func (h *Handler) updateVideo(w http.ResponseWriter, r *http.Request, videoID string) {
	if _, _, ok := h.requireVideoOwner(w, r, videoID); !ok {
		return
	}
	contentType := strings.ToLower(strings.TrimSpace(r.Header.Get("Content-Type")))
	update := storage.VideoUpdate{}
	if strings.HasPrefix(contentType, "multipart/form-data") {
		if title := strings.TrimSpace(r.FormValue("title")); title != "" {
			update.Title = &title
		}
		if description := r.FormValue("description"); description != "" {
			update.Description = &description
		}
		if thumbFile, thumbHeader, err := r.FormFile("thumbnail"); err == nil {
			defer thumbFile.Close()
			if h.Media == nil {
				writeError(w, http.StatusNotFound, fmt.Errorf("media uploads not configured"))
				return
			}
			obj, err := h.Media.Save(r.Context(), media.KindThumbnail, thumbHeader.Filename, thumbHeader.Header.Get("Content-Type"), thumbFile)
			if err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			update.ThumbnailURL = &obj.URL
		}
	} else {
		var req updateVideoRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		update.Title = req.Title
		update.Description = req.Description
	}

	video, err := h.Store.UpdateVideo(r.Context(), videoID, update)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeData(w, http.StatusOK, newVideoResponse(video), "video updated")
}

func (h *Handler) deleteVideo(w http.ResponseWriter, r *http.Request, videoID string) {
	video, _, ok := h.requireVideoOwner(w, r, videoID)
	if !ok {
		return
	}
	if err := h.Store.DeleteVideo(r.Context(), videoID); err != nil {
		writeDomainError(w, err)
		return
	}
	h.removeStoredAsset(r.Context(), video.VideoURL)
	h.removeStoredAsset(r.Context(), video.ThumbnailURL)
	writeData(w, http.StatusOK, nil, "video deleted")
}

// removeStoredAsset deletes the media object behind a persisted URL. The
// record delete has already committed; a failure here leaves an orphaned
// file, never a broken record.
func (h *Handler) removeStoredAsset(ctx context.Context, url string) {
	if h.Media == nil || url == "" {
		return
	}
	key, ok := h.Media.KeyFromURL(url)
	if !ok {
		return
	}
	_ = h.Media.Remove(ctx, key)
}

func (h *Handler) toggleVideoPublish(w http.ResponseWriter, r *http.Request, videoID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	video, _, ok := h.requireVideoOwner(w, r, videoID)
	if !ok {
		return
	}
	video, err := h.Store.SetVideoPublished(r.Context(), videoID, !video.Published)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeData(w, http.StatusOK, newVideoResponse(video), "publish state toggled")
}

func (h *Handler) toggleVideoLike(w http.ResponseWriter, r *http.Request, videoID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	actor, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	liked, count, err := h.Store.ToggleVideoLike(r.Context(), videoID, actor.ID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeData(w, http.StatusOK, likeStateResponse{Liked: liked, Count: count}, "like toggled")
}
