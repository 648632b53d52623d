// Package transcript holds the output model of an extraction run and its
// text and JSON renderings.
package transcript

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Role is the speaker of a turn. The empty Role means "none yet".
type Role string

const (
	User  Role = "User"
	Model Role = "Model"
)

// Opposite returns the other speaker. The opposite of no role is User, so an
// alternation that starts from nothing begins with the user.
func (r Role) Opposite() Role {
	if r == User {
		return Model
	}
	return User
}

// Valid reports whether r is User or Model.
func (r Role) Valid() bool {
	return r == User || r == Model
}

// ParseRole maps "user"/"model" (any case) to a Role.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "user":
		return User, nil
	case "model":
		return Model, nil
	default:
		return "", fmt.Errorf("unknown role %q (want User or Model)", s)
	}
}

// Turn is one classified, normalized message.
type Turn struct {
	Role Role `json:"role"`
	Text string `json:"text"`
	// Position is the container index in document order.
	Position int `json:"-"`
}

// Transcript is an ordered list of turns with strictly increasing positions.
type Transcript struct {
	Turns []Turn
}

// Len returns the number of turns.
func (t *Transcript) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Turns)
}

// RoleCounts returns the number of turns per role.
func (t *Transcript) RoleCounts() map[Role]int {
	out := map[Role]int{}
	if t == nil {
		return out
	}
	for _, turn := range t.Turns {
		out[turn.Role]++
	}
	return out
}

// WriteText renders "User: <text>" / "Model: <text>" blocks separated by blank lines.
func WriteText(w io.Writer, t *Transcript) error {
	if t == nil {
		return nil
	}
	for i, turn := range t.Turns {
		if i > 0 {
			if _, err := io.WriteString(w, "\n"); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintf(w, "%s: %s\n", turn.Role, turn.Text); err != nil {
			return err
		}
	}
	return nil
}

// WriteJSON renders an indented array of {role, text} records in document order.
func WriteJSON(w io.Writer, t *Transcript) error {
	turns := []Turn{}
	if t != nil && t.Turns != nil {
		turns = t.Turns
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(turns); err != nil {
		return fmt.Errorf("encode transcript: %w", err)
	}
	return nil
}

// Fingerprint returns a stable SHA-256 (lowercase hex) over the ordered
// role/text pairs. Identical transcripts always share a fingerprint.
//
// Each component is length-prefixed so that no choice of text can make two
// different transcripts serialize to the same canonical bytes.
func Fingerprint(t *Transcript) string {
	h := sha256.New()
	var buf []byte
	if t != nil {
		for _, turn := range t.Turns {
			buf = buf[:0]
			buf = appendField(buf, string(turn.Role))
			buf = appendField(buf, turn.Text)
			_, _ = h.Write(buf)
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

func appendField(dst []byte, s string) []byte {
	dst = strconv.AppendInt(dst, int64(len(s)), 10)
	dst = append(dst, ':')
	dst = append(dst, s...)
	return append(dst, '\x1f')
}
