package pagination

import (
	"encoding/base64"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lumora-ai/lumora-backend/pkg/errors"
)

const (
	// DefaultLimit is the page size when the caller does not supply one.
	DefaultLimit = 50
	// MaxLimit caps how many rows a single cursor query can request.
	MaxLimit = 200

	cursorSeparator = "|"
)

// Params holds cursor pagination inputs from controllers.
type Params struct {
	Limit  int
	Cursor string
}

// Cursor pins a position in a (created_at DESC, id DESC) ordering.
type Cursor struct {
	CreatedAt time.Time
	ID        uuid.UUID
}

// NormalizeLimit enforces the default and maximum page sizes.
func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

// LimitWithBuffer returns the normalized limit plus one row used to detect
// whether a next page exists.
func LimitWithBuffer(limit int) int {
	return NormalizeLimit(limit) + 1
}

// EncodeCursor serializes a cursor into an opaque base64 token.
func EncodeCursor(cursor Cursor) string {
	payload := cursor.CreatedAt.UTC().Format(time.RFC3339Nano) + cursorSeparator + cursor.ID.String()
	return base64.URLEncoding.EncodeToString([]byte(payload))
}

// ParseCursor decodes a cursor token. An empty token means "from the top" and
// returns a nil cursor without error.
func ParseCursor(value string) (*Cursor, error) {
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}

	decoded, err := base64.URLEncoding.DecodeString(value)
	if err != nil {
		return nil, errors.Wrap(errors.CodeValidation, err, "malformed cursor")
	}
	parts := strings.SplitN(string(decoded), cursorSeparator, 2)
	if len(parts) != 2 {
		return nil, errors.New(errors.CodeValidation, "malformed cursor")
	}

	t, err := time.Parse(time.RFC3339Nano, parts[0])
	if err != nil {
		return nil, errors.Wrap(errors.CodeValidation, err, "malformed cursor timestamp")
	}
	id, err := uuid.Parse(parts[1])
	if err != nil {
		return nil, errors.Wrap(errors.CodeValidation, err, "malformed cursor id")
	}
	return &Cursor{CreatedAt: t, ID: id}, nil
}
