package ledger

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/amirasaad/ledger/pkg/domain"
	"github.com/google/uuid"
)

// Cursor is a keyset position in an account's journal, ordered by (entry_date, id).
type Cursor struct {
	EntryDate time.Time `json:"d"`
	ID        uuid.UUID `json:"i"`
}

// Encode returns the opaque, URL-safe form of the cursor.
func (c Cursor) Encode() string {
	b, _ := json.Marshal(c) //nolint:errchkjson
	return base64.RawURLEncoding.EncodeToString(b)
}

// DecodeCursor parses an opaque cursor. The empty string means "from the start".
func DecodeCursor(s string) (*Cursor, error) {
	if s == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed cursor", domain.ErrValidation)
	}
	var c Cursor
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("%w: malformed cursor", domain.ErrValidation)
	}
	return &c, nil
}

// EntryFilter selects a page of entries for one account.
type EntryFilter struct {
	AccountID uuid.UUID
	Limit     int
	After     *Cursor
	From      *time.Time
	To        *time.Time
}

// EntryPage is one page of entries plus the cursor to resume from.
// NextCursor is empty on the last page.
type EntryPage struct {
	Entries    []Entry `json:"entries"`
	NextCursor string  `json:"next_cursor,omitempty"`
}
