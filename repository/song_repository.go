package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"musinotes/model"
)

// SongRepository defines owner-scoped song operations. Every statement filters by
// user_id; a song owned by someone else is indistinguishable from a missing one.
type SongRepository interface {
	CreateSong(ctx context.Context, song *model.Song) (int64, error)
	GetSongByID(ctx context.Context, userID, songID int64) (*model.Song, error)
	ListSongs(ctx context.Context, userID int64, q model.SongQuery) ([]*model.Song, error)
	UpdateSong(ctx context.Context, userID, songID int64, fields []model.SongField) (bool, error)
	DeleteSong(ctx context.Context, userID, songID int64) (bool, error)
}

const songColumns = "id, user_id, title, artist, album, genre, lyrics, chords, created_at, updated_at"

const defaultSongOrder = "created_at DESC, id DESC"

// sortColumns is the allow-list for ORDER BY. Nothing else reaches the SQL text.
var sortColumns = map[string]string{
	"title":      "title",
	"artist":     "artist",
	"album":      "album",
	"genre":      "genre",
	"created_at": "created_at",
}

// updatableColumns is the allow-list for partial updates.
var updatableColumns = map[string]bool{
	"title":  true,
	"artist": true,
	"album":  true,
	"genre":  true,
	"lyrics": true,
	"chords": true,
}

type sqlSongRepository struct {
	db *sql.DB
}

// NewSongRepository creates a SongRepository over db.
func NewSongRepository(db *sql.DB) SongRepository {
	return &sqlSongRepository{db: db}
}

func scanSong(row interface{ Scan(...any) error }) (*model.Song, error) {
	song := &model.Song{}
	err := row.Scan(&song.ID, &song.UserID, &song.Title, &song.Artist, &song.Album, &song.Genre,
		&song.Lyrics, &song.Chords, &song.CreatedAt, &song.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return song, nil
}

// orderClause resolves sort/order against the allow-list. Missing order means DESC;
// any unknown field or direction falls back to newest first.
func orderClause(sort, order string) string {
	if sort == "" {
		sort = "created_at"
	}
	if order == "" {
		order = "DESC"
	}
	column, ok := sortColumns[sort]
	dir := strings.ToUpper(order)
	if !ok || (dir != "ASC" && dir != "DESC") {
		return defaultSongOrder
	}
	return column + " " + dir + ", id " + dir
}

func (r *sqlSongRepository) CreateSong(ctx context.Context, song *model.Song) (int64, error) {
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO songs (user_id, title, artist, album, genre, lyrics, chords, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		song.UserID, song.Title, song.Artist, song.Album, song.Genre, song.Lyrics, song.Chords, now, now)
	if err != nil {
		return 0, fmt.Errorf("failed to execute CreateSong: %w", translateError(err))
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for CreateSong: %w", err)
	}
	song.ID = id
	song.CreatedAt = now
	song.UpdatedAt = now
	return id, nil
}

func (r *sqlSongRepository) GetSongByID(ctx context.Context, userID, songID int64) (*model.Song, error) {
	query := "SELECT " + songColumns + " FROM songs WHERE id = ? AND user_id = ?"
	song, err := scanSong(r.db.QueryRowContext(ctx, query, songID, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan song %d for user %d: %w", songID, userID, err)
	}
	return song, nil
}

func (r *sqlSongRepository) ListSongs(ctx context.Context, userID int64, q model.SongQuery) ([]*model.Song, error) {
	var sb strings.Builder
	sb.WriteString("SELECT " + songColumns + " FROM songs WHERE user_id = ?")
	args := []any{userID}

	if search := strings.TrimSpace(q.Search); search != "" {
		pattern := "%" + escapeLike(strings.ToLower(search)) + "%"
		sb.WriteString(" AND (LOWER(title) LIKE ? ESCAPE '!' OR LOWER(artist) LIKE ? ESCAPE '!'" +
			" OR LOWER(album) LIKE ? ESCAPE '!' OR LOWER(lyrics) LIKE ? ESCAPE '!')")
		args = append(args, pattern, pattern, pattern, pattern)
	}

	if genre := strings.TrimSpace(q.Genre); genre != "" {
		sb.WriteString(" AND LOWER(genre) LIKE ? ESCAPE '!'")
		args = append(args, "%"+escapeLike(strings.ToLower(genre))+"%")
	}

	sb.WriteString(" ORDER BY " + orderClause(q.Sort, q.Order))

	rows, err := r.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query songs for user ID %d: %w", userID, err)
	}
	defer rows.Close()

	songs := make([]*model.Song, 0)
	for rows.Next() {
		song, err := scanSong(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan song in ListSongs: %w", err)
		}
		songs = append(songs, song)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration in ListSongs: %w", err)
	}
	return songs, nil
}

// UpdateSong applies fields in a single UPDATE and reports whether the song exists
// for this owner. updated_at is always touched.
func (r *sqlSongRepository) UpdateSong(ctx context.Context, userID, songID int64, fields []model.SongField) (bool, error) {
	sets := make([]string, 0, len(fields)+1)
	args := make([]any, 0, len(fields)+3)
	for _, f := range fields {
		if !updatableColumns[f.Column] {
			return false, fmt.Errorf("column %q is not updatable", f.Column)
		}
		sets = append(sets, f.Column+" = ?")
		args = append(args, f.Value)
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, time.Now().UTC(), songID, userID)

	query := "UPDATE songs SET " + strings.Join(sets, ", ") + " WHERE id = ? AND user_id = ?"
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to execute UpdateSong for song %d: %w", songID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n > 0, nil
}

func (r *sqlSongRepository) DeleteSong(ctx context.Context, userID, songID int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, "DELETE FROM songs WHERE id = ? AND user_id = ?", songID, userID)
	if err != nil {
		return false, fmt.Errorf("failed to delete song %d: %w", songID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n > 0, nil
}
