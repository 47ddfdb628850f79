package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"cliptube/internal/auth"
	"cliptube/internal/models"
)

type postgresRepository struct {
	pool *pgxpool.Pool
	cfg  PostgresConfig
}

// NewPostgresRepository opens a Postgres-backed repository and applies the
// schema migration.
func NewPostgresRepository(ctx context.Context, dsn string, opts ...PostgresOption) (Repository, error) {
	cfg := newPostgresConfig(dsn, opts...)
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("postgres dsn required")
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	if cfg.MaxConnections > 0 {
		poolCfg.MaxConns = cfg.MaxConnections
	}
	if cfg.MinConnections > 0 {
		poolCfg.MinConns = cfg.MinConnections
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	if cfg.HealthCheckInterval > 0 {
		poolCfg.HealthCheckPeriod = cfg.HealthCheckInterval
	}
	if cfg.ConnectTimeout > 0 {
		poolCfg.ConnConfig.ConnectTimeout = cfg.ConnectTimeout
	}
	if cfg.ApplicationName != "" {
		if poolCfg.ConnConfig.RuntimeParams == nil {
			poolCfg.ConnConfig.RuntimeParams = make(map[string]string)
		}
		poolCfg.ConnConfig.RuntimeParams["application_name"] = cfg.ApplicationName
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	if err := migratePostgres(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &postgresRepository{pool: pool, cfg: cfg}, nil
}

func (r *postgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func (r *postgresRepository) Close(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.pool.Close()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

const userColumns = `id, username, email, full_name, avatar_url, cover_image_url,
password_hash, refresh_token, COALESCE(refresh_token_expires_at, 'epoch'::timestamptz),
created_at, updated_at`

func scanUser(row pgx.Row) (models.User, error) {
	var user models.User
	err := row.Scan(
		&user.ID, &user.Username, &user.Email, &user.FullName,
		&user.AvatarURL, &user.CoverImageURL, &user.PasswordHash,
		&user.RefreshToken, &user.RefreshTokenExpiresAt,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return models.User{}, err
	}
	if user.RefreshTokenExpiresAt.Unix() == 0 {
		user.RefreshTokenExpiresAt = time.Time{}
	}
	return user, nil
}

// Users

func (r *postgresRepository) CreateUser(ctx context.Context, params CreateUserParams) (models.User, error) {
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

	now := time.Now().UTC()
	_, err = r.pool.Exec(ctx, `
INSERT INTO users (id, username, email, full_name, avatar_url, cover_image_url, password_hash, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
`, id, username, email, strings.TrimSpace(params.FullName), params.AvatarURL, params.CoverImageURL, hashed, now)
	if err != nil {
		if isUniqueViolation(err) {
			return models.User{}, ErrDuplicate
		}
		return models.User{}, fmt.Errorf("insert user: %w", err)
	}
	return models.User{
		ID:            id,
		Username:      username,
		Email:         email,
		FullName:      strings.TrimSpace(params.FullName),
		AvatarURL:     params.AvatarURL,
		CoverImageURL: params.CoverImageURL,
		PasswordHash:  hashed,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

func (r *postgresRepository) FindUserByLogin(ctx context.Context, login string) (models.User, bool, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1 OR email = $1`, login)
	user, err := scanUser(row)
	if err != nil {
		if isNoRows(err) {
			return models.User{}, false, nil
		}
		return models.User{}, false, fmt.Errorf("find user by login: %w", err)
	}
	return user, true, nil
}

func (r *postgresRepository) FindUserByID(ctx context.Context, id string) (models.User, bool, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	user, err := scanUser(row)
	if err != nil {
		if isNoRows(err) {
			return models.User{}, false, nil
		}
		return models.User{}, false, fmt.Errorf("find user by id: %w", err)
	}
	return user, true, nil
}

func (r *postgresRepository) UpdateUser(ctx context.Context, id string, update UserUpdate) (models.User, error) {
	sets := []string{"updated_at = $2"}
	args := []any{id, time.Now().UTC()}
	if update.FullName != nil {
		trimmed := strings.TrimSpace(*update.FullName)
		if trimmed == "" {
			return models.User{}, fmt.Errorf("full name cannot be empty")
		}
		args = append(args, trimmed)
		sets = append(sets, fmt.Sprintf("full_name = $%d", len(args)))
	}
	if update.AvatarURL != nil {
		args = append(args, *update.AvatarURL)
		sets = append(sets, fmt.Sprintf("avatar_url = $%d", len(args)))
	}
	if update.CoverImageURL != nil {
		args = append(args, *update.CoverImageURL)
		sets = append(sets, fmt.Sprintf("cover_image_url = $%d", len(args)))
	}

	row := r.pool.QueryRow(ctx, `
UPDATE users SET `+strings.Join(sets, ", ")+`
WHERE id = $1
RETURNING `+userColumns, args...)
	user, err := scanUser(row)
	if err != nil {
		if isNoRows(err) {
			return models.User{}, ErrNotFound
		}
		return models.User{}, fmt.Errorf("update user: %w", err)
	}
	return user, nil
}

func (r *postgresRepository) SetUserPassword(ctx context.Context, id, passwordHash string) error {
	tag, err := r.pool.Exec(ctx, `
UPDATE users SET password_hash = $2, updated_at = $3 WHERE id = $1
`, id, passwordHash, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *postgresRepository) SetRefreshToken(ctx context.Context, userID, token string, expiresAt time.Time) error {
	tag, err := r.pool.Exec(ctx, `
UPDATE users SET refresh_token = $2, refresh_token_expires_at = $3, updated_at = $4 WHERE id = $1
`, userID, token, expiresAt.UTC(), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set refresh token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// RotateRefreshToken relies on a conditional UPDATE for atomicity: the row
// only changes when the stored token still equals the presented one, so of
// two concurrent refreshes exactly one observes RowsAffected == 1.
func (r *postgresRepository) RotateRefreshToken(ctx context.Context, userID, previous, next string, expiresAt time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
UPDATE users SET refresh_token = $3, refresh_token_expires_at = $4, updated_at = $5
WHERE id = $1 AND refresh_token = $2 AND refresh_token <> ''
`, userID, previous, next, expiresAt.UTC(), time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("rotate refresh token: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *postgresRepository) ClearRefreshToken(ctx context.Context, userID string) error {
	_, err := r.pool.Exec(ctx, `
UPDATE users SET refresh_token = '', refresh_token_expires_at = NULL, updated_at = $2 WHERE id = $1
`, userID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("clear refresh token: %w", err)
	}
	return nil
}

func (r *postgresRepository) PurgeExpiredRefreshTokens(ctx context.Context, now time.Time) (int, error) {
	tag, err := r.pool.Exec(ctx, `
UPDATE users SET refresh_token = '', refresh_token_expires_at = NULL
WHERE refresh_token <> '' AND refresh_token_expires_at IS NOT NULL AND refresh_token_expires_at < $1
`, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("purge refresh tokens: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// Videos

const videoColumns = `id, owner_id, title, description, video_url, thumbnail_url, duration, views, published, created_at, updated_at`

func scanVideo(row pgx.Row) (models.Video, error) {
	var video models.Video
	err := row.Scan(
		&video.ID, &video.OwnerID, &video.Title, &video.Description,
		&video.VideoURL, &video.ThumbnailURL, &video.Duration, &video.Views,
		&video.Published, &video.CreatedAt, &video.UpdatedAt,
	)
	return video, err
}

func (r *postgresRepository) CreateVideo(ctx context.Context, params CreateVideoParams) (models.Video, error) {
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
	_, err = r.pool.Exec(ctx, `
INSERT INTO videos (id, owner_id, title, description, video_url, thumbnail_url, duration, published, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE, $8, $8)
`, video.ID, video.OwnerID, video.Title, video.Description, video.VideoURL, video.ThumbnailURL, video.Duration, now)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return models.Video{}, ErrNotFound
		}
		return models.Video{}, fmt.Errorf("insert video: %w", err)
	}
	return video, nil
}

func (r *postgresRepository) GetVideo(ctx context.Context, id string) (models.Video, bool, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+videoColumns+` FROM videos WHERE id = $1`, id)
	video, err := scanVideo(row)
	if err != nil {
		if isNoRows(err) {
			return models.Video{}, false, nil
		}
		return models.Video{}, false, fmt.Errorf("get video: %w", err)
	}
	return video, true, nil
}

var videoSortColumns = map[string]string{
	"":         "created_at",
	"createdAt": "created_at",
	"views":    "views",
	"duration": "duration",
	"title":    "title",
}

func (r *postgresRepository) ListVideos(ctx context.Context, params VideoListParams) ([]models.Video, int, error) {
	where := []string{"TRUE"}
	args := []any{}
	if params.OwnerID != "" {
		args = append(args, params.OwnerID)
		where = append(where, fmt.Sprintf("owner_id = $%d", len(args)))
	}
	if !params.IncludeUnpublished {
		where = append(where, "published")
	}
	if query := strings.TrimSpace(params.Query); query != "" {
		args = append(args, "%"+query+"%")
		where = append(where, fmt.Sprintf("(title ILIKE $%d OR description ILIKE $%d)", len(args), len(args)))
	}
	condition := strings.Join(where, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM videos WHERE `+condition, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count videos: %w", err)
	}

	sortColumn, ok := videoSortColumns[params.SortBy]
	if !ok {
		sortColumn = "created_at"
	}
	direction := "DESC"
	if params.SortAsc {
		direction = "ASC"
	}
	page, limit := clampPage(params.Page, params.Limit)
	args = append(args, limit, (page-1)*limit)

	rows, err := r.pool.Query(ctx, fmt.Sprintf(
		`SELECT %s FROM videos WHERE %s ORDER BY %s %s, id %s LIMIT $%d OFFSET $%d`,
		videoColumns, condition, sortColumn, direction, direction, len(args)-1, len(args),
	), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list videos: %w", err)
	}
	defer rows.Close()

	videos := make([]models.Video, 0, limit)
	for rows.Next() {
		video, err := scanVideo(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan video: %w", err)
		}
		videos = append(videos, video)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list videos: %w", err)
	}
	return videos, total, nil
}

func (r *postgresRepository) UpdateVideo(ctx context.Context, id string, update VideoUpdate) (models.Video, error) {
	sets := []string{"updated_at = $2"}
	args := []any{id, time.Now().UTC()}
	if update.Title != nil {
		trimmed := strings.TrimSpace(*update.Title)
		if trimmed == "" {
			return models.Video{}, fmt.Errorf("title cannot be empty")
		}
		args = append(args, trimmed)
		sets = append(sets, fmt.Sprintf("title = $%d", len(args)))
	}
	if update.Description != nil {
		args = append(args, *update.Description)
		sets = append(sets, fmt.Sprintf("description = $%d", len(args)))
	}
	if update.ThumbnailURL != nil {
		args = append(args, *update.ThumbnailURL)
		sets = append(sets, fmt.Sprintf("thumbnail_url = $%d", len(args)))
	}

	row := r.pool.QueryRow(ctx, `
UPDATE videos SET `+strings.Join(sets, ", ")+`
WHERE id = $1
RETURNING `+videoColumns, args...)
	video, err := scanVideo(row)
	if err != nil {
		if isNoRows(err) {
			return models.Video{}, ErrNotFound
		}
		return models.Video{}, fmt.Errorf("update video: %w", err)
	}
	return video, nil
}

func (r *postgresRepository) DeleteVideo(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM videos WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete video: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *postgresRepository) SetVideoPublished(ctx context.Context, id string, published bool) (models.Video, error) {
	row := r.pool.QueryRow(ctx, `
UPDATE videos SET published = $2, updated_at = $3 WHERE id = $1
RETURNING `+videoColumns, id, published, time.Now().UTC())
	video, err := scanVideo(row)
	if err != nil {
		if isNoRows(err) {
			return models.Video{}, ErrNotFound
		}
		return models.Video{}, fmt.Errorf("set video published: %w", err)
	}
	return video, nil
}

func (r *postgresRepository) RecordView(ctx context.Context, videoID, userID string) (models.Video, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return models.Video{}, fmt.Errorf("begin record view: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
UPDATE videos SET views = views + 1 WHERE id = $1
RETURNING `+videoColumns, videoID)
	video, err := scanVideo(row)
	if err != nil {
		if isNoRows(err) {
			return models.Video{}, ErrNotFound
		}
		return models.Video{}, fmt.Errorf("record view: %w", err)
	}
	if userID != "" {
		_, err = tx.Exec(ctx, `
INSERT INTO watch_history (user_id, video_id, watched_at)
VALUES ($1, $2, $3)
ON CONFLICT (user_id, video_id) DO UPDATE SET watched_at = EXCLUDED.watched_at
`, userID, videoID, time.Now().UTC())
		if err != nil {
			return models.Video{}, fmt.Errorf("record watch history: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return models.Video{}, fmt.Errorf("commit record view: %w", err)
	}
	return video, nil
}

func (r *postgresRepository) ListWatchHistory(ctx context.Context, userID string, limit int) ([]models.WatchEntry, error) {
	if limit <= 0 || limit > watchHistoryLimit {
		limit = watchHistoryLimit
	}
	rows, err := r.pool.Query(ctx, `
SELECT video_id, watched_at FROM watch_history
WHERE user_id = $1
ORDER BY watched_at DESC
LIMIT $2
`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list watch history: %w", err)
	}
	defer rows.Close()

	entries := make([]models.WatchEntry, 0, limit)
	for rows.Next() {
		var entry models.WatchEntry
		if err := rows.Scan(&entry.VideoID, &entry.WatchedAt); err != nil {
			return nil, fmt.Errorf("scan watch entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Comments

const commentColumns = `id, video_id, author_id, content, created_at, updated_at`

func scanComment(row pgx.Row) (models.Comment, error) {
	var comment models.Comment
	err := row.Scan(&comment.ID, &comment.VideoID, &comment.AuthorID, &comment.Content, &comment.CreatedAt, &comment.UpdatedAt)
	return comment, err
}

func (r *postgresRepository) AddComment(ctx context.Context, videoID, authorID, content string) (models.Comment, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return models.Comment{}, fmt.Errorf("comment content is required")
	}
	id, err := newID()
	if err != nil {
		return models.Comment{}, err
	}

	now := time.Now().UTC()
	_, err = r.pool.Exec(ctx, `
INSERT INTO comments (id, video_id, author_id, content, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $5)
`, id, videoID, authorID, content, now)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return models.Comment{}, ErrNotFound
		}
		return models.Comment{}, fmt.Errorf("insert comment: %w", err)
	}
	return models.Comment{ID: id, VideoID: videoID, AuthorID: authorID, Content: content, CreatedAt: now, UpdatedAt: now}, nil
}

func (r *postgresRepository) GetComment(ctx context.Context, id string) (models.Comment, bool, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+commentColumns+` FROM comments WHERE id = $1`, id)
	comment, err := scanComment(row)
	if err != nil {
		if isNoRows(err) {
			return models.Comment{}, false, nil
		}
		return models.Comment{}, false, fmt.Errorf("get comment: %w", err)
	}
	return comment, true, nil
}

func (r *postgresRepository) UpdateComment(ctx context.Context, id, content string) (models.Comment, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return models.Comment{}, fmt.Errorf("comment content is required")
	}
	row := r.pool.QueryRow(ctx, `
UPDATE comments SET content = $2, updated_at = $3 WHERE id = $1
RETURNING `+commentColumns, id, content, time.Now().UTC())
	comment, err := scanComment(row)
	if err != nil {
		if isNoRows(err) {
			return models.Comment{}, ErrNotFound
		}
		return models.Comment{}, fmt.Errorf("update comment: %w", err)
	}
	return comment, nil
}

func (r *postgresRepository) DeleteComment(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM comments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete comment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *postgresRepository) ListComments(ctx context.Context, videoID string, page, limit int) ([]models.Comment, int, error) {
	if _, ok, err := r.GetVideo(ctx, videoID); err != nil {
		return nil, 0, err
	} else if !ok {
		return nil, 0, ErrNotFound
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM comments WHERE video_id = $1`, videoID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count comments: %w", err)
	}

	page, limit = clampPage(page, limit)
	rows, err := r.pool.Query(ctx, `
SELECT `+commentColumns+` FROM comments
WHERE video_id = $1
ORDER BY created_at DESC, id DESC
LIMIT $2 OFFSET $3
`, videoID, limit, (page-1)*limit)
	if err != nil {
		return nil, 0, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()

	comments := make([]models.Comment, 0, limit)
	for rows.Next() {
		comment, err := scanComment(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan comment: %w", err)
		}
		comments = append(comments, comment)
	}
	return comments, total, rows.Err()
}

// Likes

func (r *postgresRepository) ToggleVideoLike(ctx context.Context, videoID, userID string) (bool, int, error) {
	return r.toggleLike(ctx, "video_likes", "video_id", videoID, userID)
}

func (r *postgresRepository) ToggleCommentLike(ctx context.Context, commentID, userID string) (bool, int, error) {
	return r.toggleLike(ctx, "comment_likes", "comment_id", commentID, userID)
}

func (r *postgresRepository) toggleLike(ctx context.Context, table, column, targetID, userID string) (bool, int, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, 0, fmt.Errorf("begin toggle like: %w", err)
	}
	defer tx.Rollback(ctx)

	liked := false
	tag, err := tx.Exec(ctx, fmt.Sprintf(
		`DELETE FROM %s WHERE %s = $1 AND user_id = $2`, table, column,
	), targetID, userID)
	if err != nil {
		return false, 0, fmt.Errorf("toggle like: %w", err)
	}
	if tag.RowsAffected() == 0 {
		_, err = tx.Exec(ctx, fmt.Sprintf(
			`INSERT INTO %s (%s, user_id, created_at) VALUES ($1, $2, $3)`, table, column,
		), targetID, userID, time.Now().UTC())
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23503" {
				return false, 0, ErrNotFound
			}
			return false, 0, fmt.Errorf("toggle like: %w", err)
		}
		liked = true
	}

	var count int
	if err := tx.QueryRow(ctx, fmt.Sprintf(
		`SELECT count(*) FROM %s WHERE %s = $1`, table, column,
	), targetID).Scan(&count); err != nil {
		return false, 0, fmt.Errorf("count likes: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return false, 0, fmt.Errorf("commit toggle like: %w", err)
	}
	return liked, count, nil
}

func (r *postgresRepository) ListLikedVideos(ctx context.Context, userID string) ([]models.Video, error) {
	rows, err := r.pool.Query(ctx, `
SELECT `+videoColumns+` FROM videos v
JOIN video_likes l ON l.video_id = v.id
WHERE l.user_id = $1
ORDER BY v.created_at DESC
`, userID)
	if err != nil {
		return nil, fmt.Errorf("list liked videos: %w", err)
	}
	defer rows.Close()

	videos := make([]models.Video, 0)
	for rows.Next() {
		video, err := scanVideo(rows)
		if err != nil {
			return nil, fmt.Errorf("scan liked video: %w", err)
		}
		videos = append(videos, video)
	}
	return videos, rows.Err()
}

// Subscriptions

func (r *postgresRepository) ToggleSubscription(ctx context.Context, subscriberID, channelID string) (bool, error) {
	if subscriberID == channelID {
		return false, ErrSelfSubscription
	}
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin toggle subscription: %w", err)
	}
	defer tx.Rollback(ctx)

	subscribed := false
	tag, err := tx.Exec(ctx, `
DELETE FROM subscriptions WHERE channel_id = $1 AND subscriber_id = $2
`, channelID, subscriberID)
	if err != nil {
		return false, fmt.Errorf("toggle subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		_, err = tx.Exec(ctx, `
INSERT INTO subscriptions (channel_id, subscriber_id, created_at) VALUES ($1, $2, $3)
`, channelID, subscriberID, time.Now().UTC())
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23503" {
				return false, ErrNotFound
			}
			return false, fmt.Errorf("toggle subscription: %w", err)
		}
		subscribed = true
	}
	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit toggle subscription: %w", err)
	}
	return subscribed, nil
}

func (r *postgresRepository) CountSubscribers(ctx context.Context, channelID string) (int, error) {
	var count int
	if err := r.pool.QueryRow(ctx, `
SELECT count(*) FROM subscriptions WHERE channel_id = $1
`, channelID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count subscribers: %w", err)
	}
	return count, nil
}

const publicUserColumns = `u.id, u.username, u.email, u.full_name, u.avatar_url, u.cover_image_url, u.created_at`

func scanPublicUser(row pgx.Row) (models.PublicUser, error) {
	var user models.PublicUser
	err := row.Scan(&user.ID, &user.Username, &user.Email, &user.FullName, &user.AvatarURL, &user.CoverImageURL, &user.CreatedAt)
	return user, err
}

func (r *postgresRepository) ListSubscribers(ctx context.Context, channelID string) ([]models.PublicUser, error) {
	if _, ok, err := r.FindUserByID(ctx, channelID); err != nil {
		return nil, err
	} else if !ok {
		return nil, ErrNotFound
	}
	return r.queryPublicUsers(ctx, `
SELECT `+publicUserColumns+` FROM users u
JOIN subscriptions s ON s.subscriber_id = u.id
WHERE s.channel_id = $1
ORDER BY u.username
`, channelID)
}

func (r *postgresRepository) ListSubscribedChannels(ctx context.Context, subscriberID string) ([]models.PublicUser, error) {
	return r.queryPublicUsers(ctx, `
SELECT `+publicUserColumns+` FROM users u
JOIN subscriptions s ON s.channel_id = u.id
WHERE s.subscriber_id = $1
ORDER BY u.username
`, subscriberID)
}

func (r *postgresRepository) queryPublicUsers(ctx context.Context, query string, args ...any) ([]models.PublicUser, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := make([]models.PublicUser, 0)
	for rows.Next() {
		user, err := scanPublicUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

var _ Repository = (*postgresRepository)(nil)
