package model

import "time"

// Song is a record owned by exactly one user.
type Song struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    int64     `gorm:"not null;index" json:"userId"`
	User      *User     `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	Title     string    `gorm:"size:255;not null" json:"title"`
	Artist    string    `gorm:"size:255;not null" json:"artist"`
	Album     *string   `gorm:"size:255" json:"album"`
	Genre     *string   `gorm:"size:255" json:"genre"`
	Lyrics    *string   `gorm:"type:text" json:"lyrics"`
	Chords    *string   `gorm:"type:text" json:"chords"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// SongInput carries the writable song fields. A nil field was not supplied by the
// client; on create that is the same as empty, on update it means "leave unchanged".
type SongInput struct {
	Title  *string `json:"title"`
	Artist *string `json:"artist"`
	Album  *string `json:"album"`
	Genre  *string `json:"genre"`
	Lyrics *string `json:"lyrics"`
	Chords *string `json:"chords"`
}

// SongQuery holds the list filters accepted by GET /api/songs.
type SongQuery struct {
	Search string
	Genre  string
	Sort   string
	Order  string
}

// SongField is one column a partial update may change.
type SongField struct {
	Column string
	Value  *string
}
