package object

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"assessment-backend/internal/shared/util"
)

// ErrNotFound is returned by Open when no object exists at the key.
var ErrNotFound = errors.New("object not found")

// Object describes a stored blob.
type Object struct {
	Key      string
	Size     int64
	MimeType string
}

// Store saves, opens and deletes binary objects addressed by relative keys.
type Store interface {
	// Save stores an upload under the owner's namespace and sniffs its content type.
	Save(ctx context.Context, ownerID, fileName string, r io.Reader) (Object, error)
	// SaveWithKey writes r at exactly key, replacing anything already there.
	SaveWithKey(ctx context.Context, key, contentType string, r io.Reader) (int64, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// NewKey builds owner/<segments...>/<random>_<sanitized name>. The owner id is
// hashed so customer identifiers never appear in storage paths.
func NewKey(ownerID, fileName string, segments ...string) (string, error) {
	name, err := util.SanitizeFileName(fileName)
	if err != nil {
		return "", fmt.Errorf("sanitize file name: %w", err)
	}
	parts := make([]string, 0, len(segments)+2)
	parts = append(parts, util.OwnerKey(ownerID))
	for _, s := range segments {
		if s = strings.Trim(strings.TrimSpace(s), "/"); s != "" {
			parts = append(parts, s)
		}
	}
	parts = append(parts, randomID()+"_"+name)
	return path.Join(parts...), nil
}

// ValidKey rejects absolute keys and keys that escape the store root.
func ValidKey(key string) (string, error) {
	clean := path.Clean(strings.ReplaceAll(key, "\\", "/"))
	if clean == "." || strings.HasPrefix(clean, "../") || clean == ".." || strings.HasPrefix(clean, "/") {
		return "", fmt.Errorf("invalid storage key %q", key)
	}
	return clean, nil
}

func randomID() string {
	var b [12]byte
	if _, err := rand.Read(b[:]); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b[:])
}
