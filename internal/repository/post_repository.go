package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/socialqueue/socialqueue/internal/models"
)

type PostFilter struct {
	Status   string
	Platform string
	Limit    int
	Offset   int
}

type PostRepository interface {
	GetByID(ctx context.Context, id int64) (*models.Post, error)
	List(ctx context.Context, filter PostFilter) ([]*models.Post, error)
	ListScheduled(ctx context.Context, start, end time.Time) ([]*models.Post, error)
	UpdateStatus(ctx context.Context, tx *sql.Tx, postID int64, status string) error
	SetScheduled(ctx context.Context, tx *sql.Tx, postID int64, scheduledTime time.Time) error
	SetScheduledTime(ctx context.Context, tx *sql.Tx, postID int64, scheduledTime time.Time) error
	ClearSchedule(ctx context.Context, tx *sql.Tx, postID int64) error
	MarkPublished(ctx context.Context, postID int64, externalID, externalURL string, publishedTime time.Time, meta models.Metadata) error
	MarkFailed(ctx context.Context, postID int64, meta models.Metadata) error
}

type postRepository struct {
	db *sql.DB
}

func NewPostRepository(db *sql.DB) PostRepository {
	return &postRepository{db: db}
}

const postColumns = `id, content_item_id, text_content, image_path, platform, status, scheduled_time, published_time, external_id, external_url, meta_data, created_at, updated_at`

func scanPost(row interface{ Scan(...interface{}) error }) (*models.Post, error) {
	var post models.Post
	var contentItemID sql.NullInt64
	var imagePath, externalID, externalURL sql.NullString
	var scheduledTime, publishedTime sql.NullTime

	err := row.Scan(&post.ID, &contentItemID, &post.TextContent, &imagePath,
		&post.Platform, &post.Status, &scheduledTime, &publishedTime,
		&externalID, &externalURL, &post.Metadata, &post.CreatedAt, &post.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if contentItemID.Valid {
		post.ContentItemID = &contentItemID.Int64
	}
	post.ImagePath = imagePath.String
	post.ExternalID = externalID.String
	post.ExternalURL = externalURL.String
	if scheduledTime.Valid {
		t := scheduledTime.Time
		post.ScheduledTime = &t
	}
	if publishedTime.Valid {
		t := publishedTime.Time
		post.PublishedTime = &t
	}
	return &post, nil
}

func (r *postRepository) GetByID(ctx context.Context, id int64) (*models.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts WHERE id = $1`
	post, err := scanPost(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return post, nil
}

func (r *postRepository) List(ctx context.Context, filter PostFilter) ([]*models.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts WHERE ($1 = '' OR status = $1) AND ($2 = '' OR platform = $2) ORDER BY id LIMIT $3 OFFSET $4`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.QueryContext(ctx, query, filter.Status, filter.Platform, limit, filter.Offset)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var posts []*models.Post
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		posts = append(posts, post)
	}
	return posts, rows.Err()
}

func (r *postRepository) ListScheduled(ctx context.Context, start, end time.Time) ([]*models.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts WHERE status = $1 AND scheduled_time >= $2 AND scheduled_time <= $3 ORDER BY scheduled_time`

	rows, err := r.db.QueryContext(ctx, query, models.PostStatusScheduled, start, end)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var posts []*models.Post
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		posts = append(posts, post)
	}
	return posts, rows.Err()
}

func (r *postRepository) UpdateStatus(ctx context.Context, tx *sql.Tx, postID int64, status string) error {
	query := `UPDATE posts SET status = $1, updated_at = $2 WHERE id = $3`

	var err error
	if tx != nil {
		_, err = tx.ExecContext(ctx, query, status, time.Now(), postID)
	} else {
		_, err = r.db.ExecContext(ctx, query, status, time.Now(), postID)
	}
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *postRepository) SetScheduled(ctx context.Context, tx *sql.Tx, postID int64, scheduledTime time.Time) error {
	query := `UPDATE posts SET status = $1, scheduled_time = $2, updated_at = $3 WHERE id = $4`

	var err error
	if tx != nil {
		_, err = tx.ExecContext(ctx, query, models.PostStatusScheduled, scheduledTime, time.Now(), postID)
	} else {
		_, err = r.db.ExecContext(ctx, query, models.PostStatusScheduled, scheduledTime, time.Now(), postID)
	}
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *postRepository) SetScheduledTime(ctx context.Context, tx *sql.Tx, postID int64, scheduledTime time.Time) error {
	query := `UPDATE posts SET scheduled_time = $1, updated_at = $2 WHERE id = $3`

	var err error
	if tx != nil {
		_, err = tx.ExecContext(ctx, query, scheduledTime, time.Now(), postID)
	} else {
		_, err = r.db.ExecContext(ctx, query, scheduledTime, time.Now(), postID)
	}
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *postRepository) ClearSchedule(ctx context.Context, tx *sql.Tx, postID int64) error {
	query := `UPDATE posts SET status = $1, scheduled_time = NULL, updated_at = $2 WHERE id = $3`

	var err error
	if tx != nil {
		_, err = tx.ExecContext(ctx, query, models.PostStatusDraft, time.Now(), postID)
	} else {
		_, err = r.db.ExecContext(ctx, query, models.PostStatusDraft, time.Now(), postID)
	}
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *postRepository) MarkPublished(ctx context.Context, postID int64, externalID, externalURL string, publishedTime time.Time, meta models.Metadata) error {
	query := `
		UPDATE posts
		SET status = $1,
			scheduled_time = NULL,
			published_time = $2,
			external_id = $3,
			external_url = $4,
			meta_data = COALESCE(meta_data, '{}'::jsonb) || $5,
			updated_at = $6
		WHERE id = $7
	`
	_, err := r.db.ExecContext(ctx, query, models.PostStatusPublished, publishedTime, externalID, externalURL, meta, time.Now(), postID)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *postRepository) MarkFailed(ctx context.Context, postID int64, meta models.Metadata) error {
	query := `
		UPDATE posts
		SET status = $1,
			scheduled_time = NULL,
			meta_data = COALESCE(meta_data, '{}'::jsonb) || $2,
			updated_at = $3
		WHERE id = $4
	`
	_, err := r.db.ExecContext(ctx, query, models.PostStatusFailed, meta, time.Now(), postID)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}
