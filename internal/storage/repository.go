package storage

import (
	"context"
	"errors"
	"time"

	"cliptube/internal/models"
)

var (
	// ErrNotFound is returned when the referenced record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when a unique field (username, email) is taken.
	ErrDuplicate = errors.New("username or email already in use")
	// ErrSelfSubscription rejects a user subscribing to their own channel.
	ErrSelfSubscription = errors.New("cannot subscribe to own channel")
)

// CreateUserParams carries the fields required to register an account.
// Username and Email are stored case-normalized; Password is hashed before it
// ever reaches the dataset.
type CreateUserParams struct {
	Username      string
	Email         string
	FullName      string
	Password      string
	AvatarURL     string
	CoverImageURL string
}

// UserUpdate applies partial changes to the mutable profile fields.
type UserUpdate struct {
	FullName      *string
	AvatarURL     *string
	CoverImageURL *string
}

// CreateVideoParams carries the fields required to publish a video.
type CreateVideoParams struct {
	OwnerID      string
	Title        string
	Description  string
	VideoURL     string
	ThumbnailURL string
	Duration     float64
}

// VideoUpdate applies partial changes to video metadata.
type VideoUpdate struct {
	Title        *string
	Description  *string
	ThumbnailURL *string
}

// VideoListParams controls pagination, filtering, and ordering of video
// listings. Page is 1-based; Limit is clamped to [1, MaxPageSize].
type VideoListParams struct {
	OwnerID            string
	Query              string
	Page               int
	Limit              int
	SortBy             string
	SortAsc            bool
	IncludeUnpublished bool
}

// MaxPageSize caps the page size accepted by paginated listings.
const MaxPageSize = 100

// DefaultPageSize applies when a listing request omits the limit.
const DefaultPageSize = 10

// Repository exposes the datastore operations required by the API handlers
// and the session manager. It satisfies auth.CredentialStore.
type Repository interface {
	Ping(ctx context.Context) error
	Close(ctx context.Context) error

	// Credential store contract.
	FindUserByLogin(ctx context.Context, login string) (models.User, bool, error)
	FindUserByID(ctx context.Context, id string) (models.User, bool, error)
	SetRefreshToken(ctx context.Context, userID, token string, expiresAt time.Time) error
	RotateRefreshToken(ctx context.Context, userID, previous, next string, expiresAt time.Time) (bool, error)
	ClearRefreshToken(ctx context.Context, userID string) error

	CreateUser(ctx context.Context, params CreateUserParams) (models.User, error)
	UpdateUser(ctx context.Context, id string, update UserUpdate) (models.User, error)
	SetUserPassword(ctx context.Context, id, passwordHash string) error
	PurgeExpiredRefreshTokens(ctx context.Context, now time.Time) (int, error)

	CreateVideo(ctx context.Context, params CreateVideoParams) (models.Video, error)
	GetVideo(ctx context.Context, id string) (models.Video, bool, error)
	ListVideos(ctx context.Context, params VideoListParams) ([]models.Video, int, error)
	UpdateVideo(ctx context.Context, id string, update VideoUpdate) (models.Video, error)
	DeleteVideo(ctx context.Context, id string) error
	SetVideoPublished(ctx context.Context, id string, published bool) (models.Video, error)
	RecordView(ctx context.Context, videoID, userID string) (models.Video, error)
	ListWatchHistory(ctx context.Context, userID string, limit int) ([]models.WatchEntry, error)

	AddComment(ctx context.Context, videoID, authorID, content string) (models.Comment, error)
	GetComment(ctx context.Context, id string) (models.Comment, bool, error)
	UpdateComment(ctx context.Context, id, content string) (models.Comment, error)
	DeleteComment(ctx context.Context, id string) error
	ListComments(ctx context.Context, videoID string, page, limit int) ([]models.Comment, int, error)

	ToggleVideoLike(ctx context.Context, videoID, userID string) (liked bool, count int, err error)
	ToggleCommentLike(ctx context.Context, commentID, userID string) (liked bool, count int, err error)
	ListLikedVideos(ctx context.Context, userID string) ([]models.Video, error)

	ToggleSubscription(ctx context.Context, subscriberID, channelID string) (subscribed bool, err error)
	CountSubscribers(ctx context.Context, channelID string) (int, error)
	ListSubscribers(ctx context.Context, channelID string) ([]models.PublicUser, error)
	ListSubscribedChannels(ctx context.Context, subscriberID string) ([]models.PublicUser, error)
}

func clampPage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	return page, limit
}
