package api

import (
	"fmt"
	"net/http"
	"time"

	"cliptube/internal/models"
	"cliptube/internal/storage"
)

type commentRequest struct {
	Content string `json:"content"`
}

type commentResponse struct {
	ID        string `json:"id"`
	VideoID   string `json:"videoId"`
	AuthorID  string `json:"authorId"`
	Content   string `json:"content"`
	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt"`
}

type commentListResponse struct {
	Comments []commentResponse `json:"comments"`
	Total    int               `json:"total"`
	Page     int               `json:"page"`
	Limit    int               `json:"limit"`
}

func newCommentResponse(comment models.Comment) commentResponse {
	return commentResponse{
		ID:        comment.ID,
		VideoID:   comment.VideoID,
		AuthorID:  comment.AuthorID,
		Content:   comment.Content,
		CreatedAt: comment.CreatedAt.Format(time.RFC3339Nano),
		UpdatedAt: comment.UpdatedAt.Format(time.RFC3339Nano),
	}
}

// videoComments serves /api/videos/{id}/comments: GET lists, POST creates.
func (h *Handler) videoComments(w http.ResponseWriter, r *http.Request, videoID string) {
	switch r.Method {
	case http.MethodGet:
		page := queryInt(r, "page", 1)
		limit := queryInt(r, "limit", storage.DefaultPageSize)
		comments, total, err := h.Store.ListComments(r.Context(), videoID, page, limit)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		response := commentListResponse{
			Comments: make([]commentResponse, 0, len(comments)),
			Total:    total,
			Page:     page,
			Limit:    limit,
		}
		if response.Page < 1 {
			response.Page = 1
		}
		for _, comment := range comments {
			response.Comments = append(response.Comments, newCommentResponse(comment))
		}
		writeData(w, http.StatusOK, response, "comments")
	case http.MethodPost:
		actor, ok := h.requireUser(w, r)
		if !ok {
			return
		}
		var req commentRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		comment, err := h.Store.AddComment(r.Context(), videoID, actor.ID, req.Content)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeData(w, http.StatusCreated, newCommentResponse(comment), "comment added")
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPost)
	}
}

// CommentByID handles /api/comments/{id}: author-only edit and delete, plus
// the like toggle subresource.
func (h *Handler) CommentByID(w http.ResponseWriter, r *http.Request) {
	segments := pathSegments(r, "/api/comments/")
	if len(segments) == 0 || segments[0] == "" {
		writeError(w, http.StatusNotFound, fmt.Errorf("comment id missing"))
		return
	}
	commentID := segments[0]

	if len(segments) > 1 {
		if segments[1] == "like" {
			h.toggleCommentLike(w, r, commentID)
			return
		}
		writeError(w, http.StatusNotFound, fmt.Errorf("unknown comment path"))
		return
	}

	actor, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	comment, exists, err := h.Store.GetComment(r.Context(), commentID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if !exists {
		writeError(w, http.StatusNotFound, fmt.Errorf("comment %s not found", commentID))
		return
	}
	if comment.AuthorID != actor.ID {
		writeError(w, http.StatusForbidden, fmt.Errorf("forbidden"))
		return
	}

	switch r.Method {
	case http.MethodPatch:
		var req commentRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		updated, err := h.Store.UpdateComment(r.Context(), commentID, req.Content)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeData(w, http.StatusOK, newCommentResponse(updated), "comment updated")
	case http.MethodDelete:
		if err := h.Store.DeleteComment(r.Context(), commentID); err != nil {
			writeDomainError(w, err)
			return
		}
		writeData(w, http.StatusOK, nil, "comment deleted")
	default:
		methodNotAllowed(w, http.MethodPatch, http.MethodDelete)
	}
}

func (h *Handler) toggleCommentLike(w http.ResponseWriter, r *http.Request, commentID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	actor, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	liked, count, err := h.Store.ToggleCommentLike(r.Context(), commentID, actor.ID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeData(w, http.StatusOK, likeStateResponse{Liked: liked, Count: count}, "like toggled")
}
