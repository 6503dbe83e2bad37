// Package naming derives recording file names from call identity, direction
// and start time. Downstream tooling relies on the format, so it must not
// change: <identity>_<yyyyMMdd_HHmmss>_<incoming|outgoing><extension>.
package naming

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/alnah/go-callrec/internal/call"
)

// UnknownIdentity is used when neither a display name nor a number is known.
const UnknownIdentity = "Unknown"

// timestampLayout renders yyyyMMdd_HHmmss.
const timestampLayout = "20060102_150405"

// maxSuffix bounds the collision search in Unique.
const maxSuffix = 1000

// Identity picks the name component: display name, then number, then UnknownIdentity.
// Path separators are replaced so the identity stays a single path element.
func Identity(displayName, number string) string {
	id := strings.TrimSpace(displayName)
	if id == "" {
		id = strings.TrimSpace(number)
	}
	if id == "" {
		return UnknownIdentity
	}
	return sanitize(id)
}

// sanitize replaces characters that cannot appear in a file name.
func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', 0:
			return '_'
		}
		return r
	}, s)
}

// directionTag maps Incoming to "incoming" and everything else to "outgoing".
func directionTag(d call.Direction) string {
	if d == call.Incoming {
		return "incoming"
	}
	return "outgoing"
}

// Basename returns the file name without extension.
func Basename(identity string, d call.Direction, t time.Time) string {
	return identity + "_" + t.Format(timestampLayout) + "_" + directionTag(d)
}

// Path joins root and the basename plus extension.
func Path(root string, c call.Context, t time.Time, ext string) string {
	return filepath.Join(root, Basename(Identity(c.DisplayName, c.Number), c.Direction, t)+ext)
}

// Unique returns path unchanged if exists reports false for it. Otherwise it
// inserts _2, _3, ... before the extension until a free name is found, so a
// capture started within the same second never overwrites a prior artifact.
// A nil exists uses the filesystem.
func Unique(path string, exists func(string) bool) string {
	if exists == nil {
		exists = fileExists
	}
	if !exists(path) {
		return path
	}

	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(path, ext)
	for i := 2; i <= maxSuffix; i++ {
		candidate := fmt.Sprintf("%s_%d%s", stem, i, ext)
		if !exists(candidate) {
			return candidate
		}
	}
	// Exhausted: fall back to nanosecond resolution.
	return fmt.Sprintf("%s_%d%s", stem, time.Now().UnixNano(), ext)
}

// fileExists reports whether path exists on disk.
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
