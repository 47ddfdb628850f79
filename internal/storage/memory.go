package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"cliptube/internal/auth"
	"cliptube/internal/models"
)

const watchHistoryLimit = 200

type dataset struct {
	Users         map[string]models.User          `json:"users"`
	Videos        map[string]models.Video         `json:"videos"`
	Comments      map[string]models.Comment       `json:"comments"`
	VideoLikes    map[string]map[string]time.Time `json:"videoLikes"`
	CommentLikes  map[string]map[string]time.Time `json:"commentLikes"`
	Subscriptions map[string]map[string]time.Time `json:"subscriptions"`
	WatchHistory  map[string][]models.WatchEntry  `json:"watchHistory"`
}

func newDataset() dataset {
	return dataset{
		Users:         make(map[string]models.User),
		Videos:        make(map[string]models.Video),
		Comments:      make(map[string]models.Comment),
		VideoLikes:    make(map[string]map[string]time.Time),
		CommentLikes:  make(map[string]map[string]time.Time),
		Subscriptions: make(map[string]map[string]time.Time),
		WatchHistory:  make(map[string][]models.WatchEntry),
	}
}

// Storage is the in-memory repository with optional JSON snapshot
// persistence. It backs local development and tests; production deployments
// use the Postgres repository.
type Storage struct {
	mu       sync.RWMutex
	filePath string
	data     dataset
	// persistOverride allows tests to intercept persist operations.
	persistOverride func(dataset) error
}

// StorageOption configures a Storage instance.
type StorageOption func(*Storage)

// WithPersistOverride replaces snapshot persistence, primarily for tests.
func WithPersistOverride(persist func(dataset) error) StorageOption {
	return func(s *Storage) {
		s.persistOverride = persist
	}
}

// NewStorage opens the JSON-backed store at filePath, creating an empty
// dataset when the file does not yet exist. An empty path disables
// persistence entirely.
func NewStorage(filePath string, opts ...StorageOption) (*Storage, error) {
	s := &Storage{filePath: filePath, data: newDataset()}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if filePath == "" {
		return s, nil
	}
	raw, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("read datastore: %w", err)
	}
	if len(raw) > 0 {
		var data dataset
		if err := json.Unmarshal(raw, &data); err != nil {
			return nil, fmt.Errorf("parse datastore: %w", err)
		}
		mergeDatasetDefaults(&data)
		s.data = data
	}
	return s, nil
}

func mergeDatasetDefaults(data *dataset) {
	if data.Users == nil {
		data.Users = make(map[string]models.User)
	}
	if data.Videos == nil {
		data.Videos = make(map[string]models.Video)
	}
	if data.Comments == nil {
		data.Comments = make(map[string]models.Comment)
	}
	if data.VideoLikes == nil {
		data.VideoLikes = make(map[string]map[string]time.Time)
	}
	if data.CommentLikes == nil {
		data.CommentLikes = make(map[string]map[string]time.Time)
	}
	if data.Subscriptions == nil {
		data.Subscriptions = make(map[string]map[string]time.Time)
	}
	if data.WatchHistory == nil {
		data.WatchHistory = make(map[string][]models.WatchEntry)
	}
}

func cloneDataset(data dataset) dataset {
	clone := newDataset()
	for id, user := range data.Users {
		clone.Users[id] = user
	}
	for id, video := range data.Videos {
		clone.Videos[id] = video
	}
	for id, comment := range data.Comments {
		clone.Comments[id] = comment
	}
	for id, likes := range data.VideoLikes {
		clone.VideoLikes[id] = cloneTimeMap(likes)
	}
	for id, likes := range data.CommentLikes {
		clone.CommentLikes[id] = cloneTimeMap(likes)
	}
	for id, subs := range data.Subscriptions {
		clone.Subscriptions[id] = cloneTimeMap(subs)
	}
	for id, entries := range data.WatchHistory {
		clone.WatchHistory[id] = append([]models.WatchEntry(nil), entries...)
	}
	return clone
}

func cloneTimeMap(src map[string]time.Time) map[string]time.Time {
	dst := make(map[string]time.Time, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func (s *Storage) persistDataset(data dataset) error {
	if s.persistOverride != nil {
		return s.persistOverride(data)
	}
	if s.filePath == "" {
		return nil
	}
	encoded, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("encode datastore: %w", err)
	}
	tmp := s.filePath + ".tmp"
	if err := os.MkdirAll(filepath.Dir(s.filePath), 0o755); err != nil {
		return fmt.Errorf("create datastore directory: %w", err)
	}
	if err := os.WriteFile(tmp, encoded, 0o600); err != nil {
		return fmt.Errorf("write datastore: %w", err)
	}
	if err := os.Rename(tmp, s.filePath); err != nil {
		return fmt.Errorf("replace datastore: %w", err)
	}
	return nil
}

// Ping reports the store as reachable; the in-memory store has no backend.
func (s *Storage) Ping(context.Context) error { return nil }

// Close is a no-op for the in-memory store.
func (s *Storage) Close(context.Context) error { return nil }

// Users

func (s *Storage) CreateUser(_ context.Context, params CreateUserParams) (models.User, error) {
	username := auth.NormalizeUsername(params.Username)
	email := auth.NormalizeEmail(params.Email)
	if username == "" || email == "" {
		return models.User{}, fmt.Errorf("username and email are required")
	}
	if strings.TrimSpace(params.FullName) == "" {
		return models.User{}, fmt.Errorf("full name is required")
	}
	if len(params.Password) < 8 {
		return models.User{}, fmt.Errorf("password must be at least 8 characters")
	}
	hashed, err := auth.HashPassword(params.Password)
	if err != nil {
		return models.User{}, fmt.Errorf("hash password: %w", err)
	}
	id, err := newID()
	if err != nil {
		return models.User{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.data.Users {
		if existing.Username == username || existing.Email == email {
			return models.User{}, ErrDuplicate
		}
	}

	now := time.Now().UTC()
	user := models.User{
		ID:            id,
		Username:      username,
		Email:         email,
		FullName:      strings.TrimSpace(params.FullName),
		AvatarURL:     params.AvatarURL,
		CoverImageURL: params.CoverImageURL,
		PasswordHash:  hashed,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	updated := cloneDataset(s.data)
	updated.Users[user.ID] = user
	if err := s.persistDataset(updated); err != nil {
		return models.User{}, err
	}
	s.data = updated
	return user, nil
}

func (s *Storage) FindUserByLogin(_ context.Context, login string) (models.User, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, user := range s.data.Users {
		if user.Username == login || user.Email == login {
			return user, true, nil
		}
	}
	return models.User{}, false, nil
}

func (s *Storage) FindUserByID(_ context.Context, id string) (models.User, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.data.Users[id]
	return user, ok, nil
}

func (s *Storage) UpdateUser(_ context.Context, id string, update UserUpdate) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.data.Users[id]
	if !ok {
		return models.User{}, ErrNotFound
	}
	if update.FullName != nil {
		trimmed := strings.TrimSpace(*update.FullName)
		if trimmed == "" {
			return models.User{}, fmt.Errorf("full name cannot be empty")
		}
		user.FullName = trimmed
	}
	if update.AvatarURL != nil {
		user.AvatarURL = *update.AvatarURL
	}
	if update.CoverImageURL != nil {
		user.CoverImageURL = *update.CoverImageURL
	}
	user.UpdatedAt = time.Now().UTC()

	updated := cloneDataset(s.data)
	updated.Users[id] = user
	if err := s.persistDataset(updated); err != nil {
		return models.User{}, err
	}
	s.data = updated
	return user, nil
}

func (s *Storage) SetUserPassword(_ context.Context, id, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.data.Users[id]
	if !ok {
		return ErrNotFound
	}
	user.PasswordHash = passwordHash
	user.UpdatedAt = time.Now().UTC()

	updated := cloneDataset(s.data)
	updated.Users[id] = user
	if err := s.persistDataset(updated); err != nil {
		return err
	}
	s.data = updated
	return nil
}

func (s *Storage) SetRefreshToken(_ context.Context, userID, token string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.data.Users[userID]
	if !ok {
		return ErrNotFound
	}
	user.RefreshToken = token
	user.RefreshTokenExpiresAt = expiresAt.UTC()
	user.UpdatedAt = time.Now().UTC()

	updated := cloneDataset(s.data)
	updated.Users[userID] = user
	if err := s.persistDataset(updated); err != nil {
		return err
	}
	s.data = updated
	return nil
}

// RotateRefreshToken swaps the stored refresh token only when the stored
// value still equals previous. The write lock makes the compare-and-swap
// atomic with respect to concurrent refreshes.
func (s *Storage) RotateRefreshToken(_ context.Context, userID, previous, next string, expiresAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.data.Users[userID]
	if !ok || user.RefreshToken == "" || user.RefreshToken != previous {
		return false, nil
	}
	user.RefreshToken = next
	user.RefreshTokenExpiresAt = expiresAt.UTC()
	user.UpdatedAt = time.Now().UTC()

	updated := cloneDataset(s.data)
	updated.Users[userID] = user
	if err := s.persistDataset(updated); err != nil {
		return false, err
	}
	s.data = updated
	return true, nil
}

func (s *Storage) ClearRefreshToken(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.data.Users[userID]
	if !ok {
		return nil
	}
	user.RefreshToken = ""
	user.RefreshTokenExpiresAt = time.Time{}
	user.UpdatedAt = time.Now().UTC()

	updated := cloneDataset(s.data)
	updated.Users[userID] = user
	if err := s.persistDataset(updated); err != nil {
		return err
	}
	s.data = updated
	return nil
}

// PurgeExpiredRefreshTokens clears stored refresh tokens whose expiry has
// passed. They are already unusable; this keeps dead credentials out of the
// dataset.
func (s *Storage) PurgeExpiredRefreshTokens(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	updated := cloneDataset(s.data)
	purged := 0
	for id, user := range updated.Users {
		if user.RefreshToken != "" && !user.RefreshTokenExpiresAt.IsZero() && user.RefreshTokenExpiresAt.Before(now) {
			user.RefreshToken = ""
			user.RefreshTokenExpiresAt = time.Time{}
			updated.Users[id] = user
			purged++
		}
	}
	if purged == 0 {
		return 0, nil
	}
	if err := s.persistDataset(updated); err != nil {
		return 0, err
	}
	s.data = updated
	return purged, nil
}

// Videos

func (s *Storage) CreateVideo(_ context.Context, params CreateVideoParams) (models.Video, error) {
	if strings.TrimSpace(params.Title) == "" {
		return models.Video{}, fmt.Errorf("title is required")
	}
	if strings.TrimSpace(params.VideoURL) == "" {
		return models.Video{}, fmt.Errorf("video url is required")
	}
	id, err := newID()
	if err != nil {
		return models.Video{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data.Users[params.OwnerID]; !ok {
		return models.Video{}, ErrNotFound
	}

	now := time.Now().UTC()
	video := models.Video{
		ID:           id,
		OwnerID:      params.OwnerID,
		Title:        strings.TrimSpace(params.Title),
		Description:  params.Description,
		VideoURL:     params.VideoURL,
		ThumbnailURL: params.ThumbnailURL,
		Duration:     params.Duration,
		Published:    true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	updated := cloneDataset(s.data)
	updated.Videos[video.ID] = video
	if err := s.persistDataset(updated); err != nil {
		return models.Video{}, err
	}
	s.data = updated
	return video, nil
}

func (s *Storage) GetVideo(_ context.Context, id string) (models.Video, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	video, ok := s.data.Videos[id]
	return video, ok, nil
}

func (s *Storage) ListVideos(_ context.Context, params VideoListParams) ([]models.Video, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := strings.ToLower(strings.TrimSpace(params.Query))
	videos := make([]models.Video, 0, len(s.data.Videos))
	for _, video := range s.data.Videos {
		if params.OwnerID != "" && video.OwnerID != params.OwnerID {
			continue
		}
		if !video.Published && !params.IncludeUnpublished {
			continue
		}
		if query != "" &&
			!strings.Contains(strings.ToLower(video.Title), query) &&
			!strings.Contains(strings.ToLower(video.Description), query) {
			continue
		}
		videos = append(videos, video)
	}
	sortVideos(videos, params.SortBy, params.SortAsc)

	total := len(videos)
	page, limit := clampPage(params.Page, params.Limit)
	start := (page - 1) * limit
	if start >= total {
		return []models.Video{}, total, nil
	}
	end := start + limit
	if end > total {
		end = total
	}
	return videos[start:end], total, nil
}

func sortVideos(videos []models.Video, sortBy string, asc bool) {
	less := func(a, b models.Video) bool { return a.CreatedAt.After(b.CreatedAt) }
	switch sortBy {
	case "views":
		less = func(a, b models.Video) bool { return a.Views > b.Views }
	case "duration":
		less = func(a, b models.Video) bool { return a.Duration > b.Duration }
	case "title":
		less = func(a, b models.Video) bool { return a.Title > b.Title }
	}
	sort.SliceStable(videos, func(i, j int) bool {
		if asc {
			return less(videos[j], videos[i])
		}
		return less(videos[i], videos[j])
	})
}

func (s *Storage) UpdateVideo(_ context.Context, id string, update VideoUpdate) (models.Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	video, ok := s.data.Videos[id]
	if !ok {
		return models.Video{}, ErrNotFound
	}
	if update.Title != nil {
		trimmed := strings.TrimSpace(*update.Title)
		if trimmed == "" {
			return models.Video{}, fmt.Errorf("title cannot be empty")
		}
		video.Title = trimmed
	}
	if update.Description != nil {
		video.Description = *update.Description
	}
	if update.ThumbnailURL != nil {
		video.ThumbnailURL = *update.ThumbnailURL
	}
	video.UpdatedAt = time.Now().UTC()

	updated := cloneDataset(s.data)
	updated.Videos[id] = video
	if err := s.persistDataset(updated); err != nil {
		return models.Video{}, err
	}
	s.data = updated
	return video, nil
}

func (s *Storage) DeleteVideo(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data.Videos[id]; !ok {
		return ErrNotFound
	}

	updated := cloneDataset(s.data)
	delete(updated.Videos, id)
	delete(updated.VideoLikes, id)
	for commentID, comment := range updated.Comments {
		if comment.VideoID == id {
			delete(updated.Comments, commentID)
			delete(updated.CommentLikes, commentID)
		}
	}
	if err := s.persistDataset(updated); err != nil {
		return err
	}
	s.data = updated
	return nil
}

func (s *Storage) SetVideoPublished(_ context.Context, id string, published bool) (models.Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	video, ok := s.data.Videos[id]
	if !ok {
		return models.Video{}, ErrNotFound
	}
	video.Published = published
	video.UpdatedAt = time.Now().UTC()

	updated := cloneDataset(s.data)
	updated.Videos[id] = video
	if err := s.persistDataset(updated); err != nil {
		return models.Video{}, err
	}
	s.data = updated
	return video, nil
}

func (s *Storage) RecordView(_ context.Context, videoID, userID string) (models.Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	video, ok := s.data.Videos[videoID]
	if !ok {
		return models.Video{}, ErrNotFound
	}
	video.Views++

	updated := cloneDataset(s.data)
	updated.Videos[videoID] = video
	if userID != "" {
		entries := updated.WatchHistory[userID]
		// Re-watching moves the entry to the front instead of duplicating it.
		filtered := make([]models.WatchEntry, 0, len(entries)+1)
		filtered = append(filtered, models.WatchEntry{VideoID: videoID, WatchedAt: time.Now().UTC()})
		for _, entry := range entries {
			if entry.VideoID != videoID {
				filtered = append(filtered, entry)
			}
		}
		if len(filtered) > watchHistoryLimit {
			filtered = filtered[:watchHistoryLimit]
		}
		updated.WatchHistory[userID] = filtered
	}
	if err := s.persistDataset(updated); err != nil {
		return models.Video{}, err
	}
	s.data = updated
	return video, nil
}

func (s *Storage) ListWatchHistory(_ context.Context, userID string, limit int) ([]models.WatchEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.data.WatchHistory[userID]
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return append([]models.WatchEntry(nil), entries...), nil
}

// Comments

func (s *Storage) AddComment(_ context.Context, videoID, authorID, content string) (models.Comment, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return models.Comment{}, fmt.Errorf("comment content is required")
	}
	id, err := newID()
	if err != nil {
		return models.Comment{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data.Videos[videoID]; !ok {
		return models.Comment{}, ErrNotFound
	}
	if _, ok := s.data.Users[authorID]; !ok {
		return models.Comment{}, ErrNotFound
	}

	now := time.Now().UTC()
	comment := models.Comment{
		ID:        id,
		VideoID:   videoID,
		AuthorID:  authorID,
		Content:   content,
		CreatedAt: now,
		UpdatedAt: now,
	}

	updated := cloneDataset(s.data)
	updated.Comments[comment.ID] = comment
	if err := s.persistDataset(updated); err != nil {
		return models.Comment{}, err
	}
	s.data = updated
	return comment, nil
}

func (s *Storage) GetComment(_ context.Context, id string) (models.Comment, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	comment, ok := s.data.Comments[id]
	return comment, ok, nil
}

func (s *Storage) UpdateComment(_ context.Context, id, content string) (models.Comment, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return models.Comment{}, fmt.Errorf("comment content is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	comment, ok := s.data.Comments[id]
	if !ok {
		return models.Comment{}, ErrNotFound
	}
	comment.Content = content
	comment.UpdatedAt = time.Now().UTC()

	updated := cloneDataset(s.data)
	updated.Comments[id] = comment
	if err := s.persistDataset(updated); err != nil {
		return models.Comment{}, err
	}
	s.data = updated
	return comment, nil
}

func (s *Storage) DeleteComment(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data.Comments[id]; !ok {
		return ErrNotFound
	}

	updated := cloneDataset(s.data)
	delete(updated.Comments, id)
	delete(updated.CommentLikes, id)
	if err := s.persistDataset(updated); err != nil {
		return err
	}
	s.data = updated
	return nil
}

func (s *Storage) ListComments(_ context.Context, videoID string, page, limit int) ([]models.Comment, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.data.Videos[videoID]; !ok {
		return nil, 0, ErrNotFound
	}
	comments := make([]models.Comment, 0)
	for _, comment := range s.data.Comments {
		if comment.VideoID == videoID {
			comments = append(comments, comment)
		}
	}
	sort.Slice(comments, func(i, j int) bool {
		return comments[i].CreatedAt.After(comments[j].CreatedAt)
	})

	total := len(comments)
	page, limit = clampPage(page, limit)
	start := (page - 1) * limit
	if start >= total {
		return []models.Comment{}, total, nil
	}
	end := start + limit
	if end > total {
		end = total
	}
	return comments[start:end], total, nil
}

// Likes

func (s *Storage) ToggleVideoLike(_ context.Context, videoID, userID string) (bool, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data.Videos[videoID]; !ok {
		return false, 0, ErrNotFound
	}

	updated := cloneDataset(s.data)
	likes := updated.VideoLikes[videoID]
	if likes == nil {
		likes = make(map[string]time.Time)
		updated.VideoLikes[videoID] = likes
	}
	liked := false
	if _, ok := likes[userID]; ok {
		delete(likes, userID)
	} else {
		likes[userID] = time.Now().UTC()
		liked = true
	}
	if err := s.persistDataset(updated); err != nil {
		return false, 0, err
	}
	s.data = updated
	return liked, len(likes), nil
}

func (s *Storage) ToggleCommentLike(_ context.Context, commentID, userID string) (bool, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data.Comments[commentID]; !ok {
		return false, 0, ErrNotFound
	}

	updated := cloneDataset(s.data)
	likes := updated.CommentLikes[commentID]
	if likes == nil {
		likes = make(map[string]time.Time)
		updated.CommentLikes[commentID] = likes
	}
	liked := false
	if _, ok := likes[userID]; ok {
		delete(likes, userID)
	} else {
		likes[userID] = time.Now().UTC()
		liked = true
	}
	if err := s.persistDataset(updated); err != nil {
		return false, 0, err
	}
	s.data = updated
	return liked, len(likes), nil
}

func (s *Storage) ListLikedVideos(_ context.Context, userID string) ([]models.Video, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	videos := make([]models.Video, 0)
	for videoID, likes := range s.data.VideoLikes {
		if _, ok := likes[userID]; !ok {
			continue
		}
		if video, exists := s.data.Videos[videoID]; exists {
			videos = append(videos, video)
		}
	}
	sort.Slice(videos, func(i, j int) bool {
		return videos[i].CreatedAt.After(videos[j].CreatedAt)
	})
	return videos, nil
}

// Subscriptions

func (s *Storage) ToggleSubscription(_ context.Context, subscriberID, channelID string) (bool, error) {
	if subscriberID == channelID {
		return false, ErrSelfSubscription
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data.Users[channelID]; !ok {
		return false, ErrNotFound
	}
	if _, ok := s.data.Users[subscriberID]; !ok {
		return false, ErrNotFound
	}

	updated := cloneDataset(s.data)
	subs := updated.Subscriptions[channelID]
	if subs == nil {
		subs = make(map[string]time.Time)
		updated.Subscriptions[channelID] = subs
	}
	subscribed := false
	if _, ok := subs[subscriberID]; ok {
		delete(subs, subscriberID)
	} else {
		subs[subscriberID] = time.Now().UTC()
		subscribed = true
	}
	if err := s.persistDataset(updated); err != nil {
		return false, err
	}
	s.data = updated
	return subscribed, nil
}

func (s *Storage) CountSubscribers(_ context.Context, channelID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data.Subscriptions[channelID]), nil
}

func (s *Storage) ListSubscribers(_ context.Context, channelID string) ([]models.PublicUser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.data.Users[channelID]; !ok {
		return nil, ErrNotFound
	}
	users := make([]models.PublicUser, 0, len(s.data.Subscriptions[channelID]))
	for subscriberID := range s.data.Subscriptions[channelID] {
		if user, ok := s.data.Users[subscriberID]; ok {
			users = append(users, user.Public())
		}
	}
	sortPublicUsers(users)
	return users, nil
}

func (s *Storage) ListSubscribedChannels(_ context.Context, subscriberID string) ([]models.PublicUser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]models.PublicUser, 0)
	for channelID, subs := range s.data.Subscriptions {
		if _, ok := subs[subscriberID]; !ok {
			continue
		}
		if user, exists := s.data.Users[channelID]; exists {
			users = append(users, user.Public())
		}
	}
	sortPublicUsers(users)
	return users, nil
}

func sortPublicUsers(users []models.PublicUser) {
	sort.Slice(users, func(i, j int) bool {
		return users[i].Username < users[j].Username
	})
}

var _ Repository = (*Storage)(nil)
