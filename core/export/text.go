package export

import (
	"bufio"
	"io"
	"strings"

	"musinotes/core/lyrics"
)

// WriteText renders doc as plain text with chord lines above their lyrics.
// Rows without chords print only the lyric.
func WriteText(w io.Writer, doc Document) error {
	bw := bufio.NewWriter(w)

	bw.WriteString(doc.Title + "\n")
	bw.WriteString("By " + doc.Artist + "\n")
	if doc.Album != "" {
		bw.WriteString("Album: " + doc.Album + "\n")
	}
	if doc.Genre != "" {
		bw.WriteString("Genre: " + doc.Genre + "\n")
	}

	if doc.Lyrics != "" {
		bw.WriteString("\nLyrics:\n")
		for _, line := range lyrics.Parse(doc.Lyrics) {
			if strings.TrimSpace(line.Chords) != "" {
				bw.WriteString(strings.TrimRight(line.Chords, " ") + "\n")
			}
			bw.WriteString(line.Lyrics + "\n")
		}
	}

	if doc.Chords != "" {
		bw.WriteString("\nChords:\n")
		bw.WriteString(strings.TrimRight(doc.Chords, "\n") + "\n")
	}
	return bw.Flush()
}
