package store

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/zeebo/blake3"
)

// digestSize is the length in bytes of a breach list digest.
const digestSize = 32

// Digest returns the hex BLAKE3 digest under which a password appears in a
// breach list.
func Digest(password string) string {
	sum := blake3.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}

// BreachList is a set of password digests known from data breaches.
// It is read-only after loading and safe for concurrent use.
type BreachList struct {
	digests map[string]struct{}
}

// NewBreachList builds a BreachList from plaintext passwords.
func NewBreachList(passwords ...string) *BreachList {
	l := &BreachList{digests: make(map[string]struct{}, len(passwords))}
	for _, p := range passwords {
		l.digests[Digest(p)] = struct{}{}
	}
	return l
}

// LoadBreachList reads one hex digest per line from path. Blank lines and
// lines starting with '#' are skipped.
func LoadBreachList(path string) (*BreachList, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not open breach list %s: %w", path, err)
	}
	defer f.Close()
	return ReadBreachList(f)
}

// ReadBreachList parses the LoadBreachList format from r.
func ReadBreachList(r io.Reader) (*BreachList, error) {
	l := &BreachList{digests: make(map[string]struct{})}

	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		raw, err := hex.DecodeString(text)
		if err != nil || len(raw) != digestSize {
			return nil, fmt.Errorf("breach list line %d: invalid digest %q", line, text)
		}
		l.digests[strings.ToLower(text)] = struct{}{}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("could not read breach list: %w", err)
	}
	return l, nil
}

// Len returns the number of digests in the list.
func (l *BreachList) Len() int {
	if l == nil {
		return 0
	}
	return len(l.digests)
}

// Contains reports whether password appears in the list.
func (l *BreachList) Contains(password string) bool {
	if l == nil {
		return false
	}
	_, ok := l.digests[Digest(password)]
	return ok
}

// Audit returns how many credentials there are and how many of them use a
// breached password.
func Audit(creds []Credential, list *BreachList) (total, breached int) {
	for _, c := range creds {
		if list.Contains(c.Password) {
			breached++
		}
	}
	return len(creds), breached
}
