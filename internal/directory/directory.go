// Package directory resolves phone numbers to contact names from a TOML
// contacts file:
//
//	[[contact]]
//	name = "Alice"
//	numbers = ["+1 202-555-0123", "202 555 0199"]
//
// Numbers match on their digits only, so formatting differences do not matter.
package directory

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
)

// minSuffixMatch is the number of trailing digits that identify a number
// when one side carries a country or trunk prefix and the other does not.
const minSuffixMatch = 7

// Contact is one directory entry.
type Contact struct {
	Name    string   `toml:"name"`
	Numbers []string `toml:"numbers"`
}

type file struct {
	Contacts []Contact `toml:"contact"`
}

// Directory is an in-memory contacts directory. It is safe for concurrent use.
type Directory struct {
	mu       sync.RWMutex
	path     string
	byDigits map[string]string
	entries  []entry // File order, one per distinct number.
}

type entry struct {
	digits string
	name   string
}

// New builds a directory from contacts. Later entries win on duplicate numbers.
func New(contacts []Contact) *Directory {
	d := &Directory{}
	d.set(contacts)
	return d
}

// Load reads a contacts file. A missing file yields an empty directory.
func Load(path string) (*Directory, error) {
	d := &Directory{path: path}
	if err := d.Reload(); err != nil {
		return nil, err
	}
	return d, nil
}

// Reload rereads the file the directory was loaded from.
func (d *Directory) Reload() error {
	if d.path == "" {
		return nil
	}
	var f file
	if _, err := toml.DecodeFile(d.path, &f); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			d.set(nil)
			return nil
		}
		return fmt.Errorf("read contacts %s: %w", d.path, err)
	}
	d.set(f.Contacts)
	return nil
}

func (d *Directory) set(contacts []Contact) {
	m := make(map[string]string)
	var entries []entry
	for _, c := range contacts {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			continue
		}
		for _, n := range c.Numbers {
			digits := Digits(n)
			if digits == "" {
				continue
			}
			if _, dup := m[digits]; !dup {
				entries = append(entries, entry{digits: digits})
			}
			m[digits] = name
		}
	}
	for i := range entries {
		entries[i].name = m[entries[i].digits]
	}
	d.mu.Lock()
	d.byDigits = m
	d.entries = entries
	d.mu.Unlock()
}

// Len returns the number of known numbers.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.byDigits)
}

// Lookup returns the contact name for number, or "" when unknown.
func (d *Directory) Lookup(number string) string {
	digits := Digits(number)
	if digits == "" {
		return ""
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if name, ok := d.byDigits[digits]; ok {
		return name
	}
	if len(digits) < minSuffixMatch {
		return ""
	}
	// "+1 202 555 0123" dialed as "2025550123", or the reverse. The longest
	// shared ending wins; ties go to the number listed first.
	best, bestLen := "", 0
	for _, e := range d.entries {
		if len(e.digits) < minSuffixMatch {
			continue
		}
		if !strings.HasSuffix(e.digits, digits) && !strings.HasSuffix(digits, e.digits) {
			continue
		}
		if n := min(len(e.digits), len(digits)); n > bestLen {
			best, bestLen = e.name, n
		}
	}
	return best
}

// ResolveDisplayName implements the session's directory lookup. An unknown
// number is not an error; it yields "".
func (d *Directory) ResolveDisplayName(ctx context.Context, number string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return d.Lookup(number), nil
}

// Digits strips everything but ASCII digits.
func Digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// FormatNumber renders a number for display: ten digits as XXX-XXX-XXXX,
// longer numbers as +C-XXX-XXX-XXXX. Anything else is returned unchanged.
func FormatNumber(number string) string {
	if number == "" {
		return ""
	}
	d := Digits(number)
	switch n := len(d); {
	case n == 10:
		return d[:3] + "-" + d[3:6] + "-" + d[6:]
	case n > 10:
		return "+" + d[:n-10] + "-" + d[n-10:n-7] + "-" + d[n-7:n-4] + "-" + d[n-4:]
	default:
		return number
	}
}
