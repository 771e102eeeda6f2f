package service

import (
	"bytes"
	"context"
	"errors"
	"strings"

	"musinotes/core/export"
	"musinotes/core/lyrics"
	"musinotes/logger"
	"musinotes/model"
	"musinotes/repository"
	"musinotes/storage"
)

// SongService implements the owner-scoped song use cases.
type SongService struct {
	songs   repository.SongRepository
	archive storage.ExportArchive // nil when no object store is configured
}

// NewSongService creates a SongService. archive may be nil.
func NewSongService(songs repository.SongRepository, archive storage.ExportArchive) *SongService {
	return &SongService{songs: songs, archive: archive}
}

// List returns the user's songs filtered and ordered by q.
func (s *SongService) List(ctx context.Context, userID int64, q model.SongQuery) ([]*model.Song, error) {
	return s.songs.ListSongs(ctx, userID, q)
}

// Get returns one of the user's songs.
func (s *SongService) Get(ctx context.Context, userID, songID int64) (*model.Song, error) {
	song, err := s.songs.GetSongByID(ctx, userID, songID)
	if err != nil {
		return nil, err
	}
	if song == nil {
		return nil, ErrSongNotFound
	}
	return song, nil
}

// songFields validates in and returns the columns it sets. With partial set,
// nil fields are skipped; otherwise title and artist must be present.
func songFields(in model.SongInput, partial bool) ([]model.SongField, error) {
	v := &validator{}
	var fields []model.SongField

	requiredText := func(column string, value *string, label string) {
		if value == nil && partial {
			return
		}
		var text string
		if value != nil {
			text = strings.TrimSpace(*value)
		}
		if text == "" || len([]rune(text)) > maxShortText {
			v.add(column, label+" must be between 1 and 255 characters")
			return
		}
		fields = append(fields, model.SongField{Column: column, Value: &text})
	}

	optional := func(column string, value *string, trim bool, max int, message string) {
		if value == nil {
			if !partial {
				fields = append(fields, model.SongField{Column: column})
			}
			return
		}
		text := *value
		if trim {
			text = strings.TrimSpace(text)
		}
		v.maxLen(column, text, max, message)
		if strings.TrimSpace(text) == "" {
			fields = append(fields, model.SongField{Column: column})
			return
		}
		fields = append(fields, model.SongField{Column: column, Value: &text})
	}

	requiredText("title", in.Title, "Title")
	requiredText("artist", in.Artist, "Artist")
	optional("album", in.Album, true, maxShortText, "Album must be less than 255 characters")
	optional("genre", in.Genre, true, maxShortText, "Genre must be less than 255 characters")
	// Leading spaces position chords in paired notation, so lyrics and chords are kept verbatim.
	optional("lyrics", in.Lyrics, false, maxLongText, "Lyrics must be less than 10,000 characters")
	optional("chords", in.Chords, false, maxLongText, "Chords must be less than 10,000 characters")

	if err := v.err(); err != nil {
		return nil, err
	}
	return fields, nil
}

// Create stores a new song for userID.
func (s *SongService) Create(ctx context.Context, userID int64, in model.SongInput) (*model.Song, error) {
	fields, err := songFields(in, false)
	if err != nil {
		return nil, err
	}

	song := &model.Song{UserID: userID}
	for _, f := range fields {
		switch f.Column {
		case "title":
			song.Title = *f.Value
		case "artist":
			song.Artist = *f.Value
		case "album":
			song.Album = f.Value
		case "genre":
			song.Genre = f.Value
		case "lyrics":
			song.Lyrics = f.Value
		case "chords":
			song.Chords = f.Value
		}
	}

	if _, err := s.songs.CreateSong(ctx, song); err != nil {
		if errors.Is(err, repository.ErrForeignKey) {
			return nil, ErrAccountGone
		}
		return nil, err
	}
	logger.Info("Song created", logger.Int64("songID", song.ID), logger.Int64("userID", userID))
	return song, nil
}

// Update changes only the supplied fields and returns the stored song.
func (s *SongService) Update(ctx context.Context, userID, songID int64, in model.SongInput) (*model.Song, error) {
	fields, err := songFields(in, true)
	if err != nil {
		return nil, err
	}

	found, err := s.songs.UpdateSong(ctx, userID, songID, fields)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrSongNotFound
	}
	logger.Info("Song updated", logger.Int64("songID", songID), logger.Int64("userID", userID))
	return s.Get(ctx, userID, songID)
}

// Delete removes one of the user's songs.
func (s *SongService) Delete(ctx context.Context, userID, songID int64) error {
	found, err := s.songs.DeleteSong(ctx, userID, songID)
	if err != nil {
		return err
	}
	if !found {
		return ErrSongNotFound
	}
	logger.Info("Song deleted", logger.Int64("songID", songID), logger.Int64("userID", userID))
	return nil
}

// Sheet returns the chord/lyric overlay of a song's lyrics.
func (s *SongService) Sheet(ctx context.Context, userID, songID int64) (lyrics.Notation, []lyrics.Line, error) {
	song, err := s.Get(ctx, userID, songID)
	if err != nil {
		return "", nil, err
	}
	text := ""
	if song.Lyrics != nil {
		text = *song.Lyrics
	}
	return lyrics.Detect(text), lyrics.Parse(text), nil
}

// Export is a rendered download.
type Export struct {
	Filename    string
	ContentType string
	Data        []byte
}

// ExportPDF renders the song as PDF, reusing an archived copy of identical content.
// Archive failures never fail the export.
func (s *SongService) ExportPDF(ctx context.Context, userID, songID int64) (*Export, error) {
	song, err := s.Get(ctx, userID, songID)
	if err != nil {
		return nil, err
	}
	doc := export.FromSong(song)
	out := &Export{Filename: export.Filename(song.Title, "pdf"), ContentType: "application/pdf"}

	contentKey := export.ContentKey(doc)
	if s.archive != nil {
		data, found, err := s.archive.Load(ctx, userID, contentKey)
		if err != nil {
			logger.Warn("Export archive unavailable", logger.ErrorField(err))
		} else if found {
			out.Data = data
			return out, nil
		}
	}

	out.Data, err = export.RenderPDF(doc)
	if err != nil {
		return nil, err
	}

	if s.archive != nil {
		if err := s.archive.Save(ctx, userID, contentKey, out.Data); err != nil {
			logger.Warn("Failed to archive export", logger.Int64("songID", songID), logger.ErrorField(err))
		}
	}
	logger.Info("PDF generated", logger.Int64("songID", songID), logger.Int64("userID", userID))
	return out, nil
}

// ExportText renders the song as plain text.
func (s *SongService) ExportText(ctx context.Context, userID, songID int64) (*Export, error) {
	song, err := s.Get(ctx, userID, songID)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := export.WriteText(&buf, export.FromSong(song)); err != nil {
		return nil, err
	}
	return &Export{
		Filename:    export.Filename(song.Title, "txt"),
		ContentType: "text/plain; charset=utf-8",
		Data:        buf.Bytes(),
	}, nil
}
