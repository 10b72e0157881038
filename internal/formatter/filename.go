package formatter

import (
	"path"
	"strings"
	"time"

	"github.com/desertthunder/phx/internal/models"
	"github.com/mattn/go-runewidth"
)

const ellipsis = "..."

// FilenameWithSize returns the destination filename for a rendition.
//
// Originals keep their name byte for byte. Other renditions drop non-ASCII bytes and
// get "-<size>" inserted before the extension, so "foo.jpg" becomes "foo-medium.jpg".
func FilenameWithSize(filename string, size models.Rendition) string {
	if size == models.Original {
		return filename
	}

	ascii := make([]byte, 0, len(filename))
	for i := 0; i < len(filename); i++ {
		if filename[i] < 0x80 {
			ascii = append(ascii, filename[i])
		}
	}
	name := string(ascii)

	ext := path.Ext(name)
	return strings.TrimSuffix(name, ext) + "-" + string(size) + ext
}

// DatePath is the album path for an item created at t: YYYY/MM/DD in UTC.
func DatePath(t time.Time) string {
	return t.UTC().Format("2006/01/02")
}

// TruncateMiddle shortens s to fit a display width of n by keeping a prefix and a shorter
// suffix joined with "...". The suffix never shrinks below one cell.
func TruncateMiddle(s string, n int) string {
	if runewidth.StringWidth(s) <= n {
		return s
	}

	tail := n/2 - 2
	head := n - tail - 4
	if tail < 1 {
		tail = 1
	}
	if head < 0 {
		head = 0
	}

	return runewidth.Truncate(s, head, "") + ellipsis + suffixWidth(s, tail)
}

// suffixWidth returns the longest suffix of s whose display width is at most w.
func suffixWidth(s string, w int) string {
	runes := []rune(s)
	width := 0
	i := len(runes)
	for i > 0 {
		rw := runewidth.RuneWidth(runes[i-1])
		if width+rw > w {
			break
		}
		width += rw
		i--
	}
	return string(runes[i:])
}
