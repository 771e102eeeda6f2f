// Package export renders songs as downloadable PDF and plain-text sheets.
package export

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"regexp"
	"strings"

	"musinotes/model"
)

// Document is the printable content of a song.
type Document struct {
	Title  string
	Artist string
	Album  string
	Genre  string
	Lyrics string
	Chords string
}

// FromSong copies the printable fields of s, treating NULL columns as empty.
func FromSong(s *model.Song) Document {
	return Document{
		Title:  s.Title,
		Artist: s.Artist,
		Album:  deref(s.Album),
		Genre:  deref(s.Genre),
		Lyrics: deref(s.Lyrics),
		Chords: deref(s.Chords),
	}
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

var nonAlphaNumeric = regexp.MustCompile(`[^a-zA-Z0-9]`)

// Filename derives a download name from title: every character outside
// [A-Za-z0-9] becomes '_' and the result is lower-cased.
func Filename(title, ext string) string {
	base := strings.ToLower(nonAlphaNumeric.ReplaceAllString(title, "_"))
	return base + "." + ext
}

// layoutVersion changes whenever the rendered layout does, so archived
// exports keyed by ContentKey are never served stale.
const layoutVersion = "v2"

// ContentKey is a stable digest of everything that affects the rendered output.
func ContentKey(doc Document) string {
	h := sha256.New()
	for _, field := range []string{layoutVersion, doc.Title, doc.Artist, doc.Album, doc.Genre, doc.Lyrics, doc.Chords} {
		io.WriteString(h, field)
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
