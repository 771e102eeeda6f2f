// Package lyrics aligns chord names over lyric text.
//
// Two notations are understood. Inline notation writes chords in brackets inside
// the lyric ("[Am]Hello [G]world"). Paired notation alternates a chord line and
// the lyric line it belongs to. The notation is chosen once for the whole text:
// a single '[' anywhere selects inline notation for every line.
package lyrics

import "strings"

// Notation identifies how chords are written in a lyrics text.
type Notation string

const (
	NotationInline Notation = "inline"
	NotationPaired Notation = "paired"
)

// Line is one rendered row: a chord line and the lyric line under it.
type Line struct {
	Chords string `json:"chords"`
	Lyrics string `json:"lyrics"`
}

// Detect reports which notation Parse will apply to text.
func Detect(text string) Notation {
	if strings.Contains(text, "[") {
		return NotationInline
	}
	return NotationPaired
}

// Parse splits text into aligned chord/lyric rows. Empty text yields no rows.
func Parse(text string) []Line {
	if text == "" {
		return []Line{}
	}

	rows := splitLines(text)
	if Detect(text) == NotationInline {
		out := make([]Line, 0, len(rows))
		for _, row := range rows {
			out = append(out, parseInline(row))
		}
		return out
	}

	out := make([]Line, 0, (len(rows)+1)/2)
	for i := 0; i < len(rows); i += 2 {
		line := Line{Chords: rows[i]}
		if i+1 < len(rows) {
			line.Lyrics = rows[i+1]
		}
		out = append(out, line)
	}
	return out
}

func splitLines(text string) []string {
	rows := strings.Split(text, "\n")
	for i, row := range rows {
		rows[i] = strings.TrimSuffix(row, "\r")
	}
	return rows
}

type placedChord struct {
	name []rune
	pos  int
}

// parseInline strips bracketed chords from row and places each one over the
// position of the character that followed it. A '[' without a later ']' is text.
// Chords running past the end of the lyric are cut off there.
func parseInline(row string) Line {
	src := []rune(row)
	clean := make([]rune, 0, len(src))
	var chords []placedChord

	for i := 0; i < len(src); {
		if src[i] == '[' {
			if end := indexRune(src, ']', i+1); end >= 0 {
				chords = append(chords, placedChord{name: src[i+1 : end], pos: len(clean)})
				i = end + 1
				continue
			}
		}
		clean = append(clean, src[i])
		i++
	}

	chordLine := make([]rune, len(clean))
	for i := range chordLine {
		chordLine[i] = ' '
	}
	for _, c := range chords {
		for j, r := range c.name {
			if c.pos+j >= len(chordLine) {
				break
			}
			chordLine[c.pos+j] = r
		}
	}
	return Line{Chords: string(chordLine), Lyrics: string(clean)}
}

func indexRune(s []rune, r rune, from int) int {
	for i := from; i < len(s); i++ {
		if s[i] == r {
			return i
		}
	}
	return -1
}
