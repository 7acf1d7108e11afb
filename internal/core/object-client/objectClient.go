package objectclient

import (
	"context"
	"path"
	"strings"
	"unicode"

	"github.com/google/uuid"

	"github.com/markdave123-py/Kaleem/internal/config"
	"github.com/markdave123-py/Kaleem/internal/core"
)

// NewObjectClient builds the blob store selected by BLOB_BACKEND.
func NewObjectClient(ctx context.Context, cfg *config.Config) (core.ObjectClient, error) {
	if cfg.BlobBackend == config.MemoryBackend {
		return NewMemoryClient(cfg.BucketName), nil
	}
	return NewS3Client(ctx, cfg)
}

// ObjectKey returns "{company}/{uuid}_{filename}". The random segment keeps
// two uploads of the same filename from overwriting each other.
func ObjectKey(companyUID, filename string) string {
	return companyUID + "/" + uuid.NewString() + "_" + sanitizeFilename(filename)
}

func sanitizeFilename(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" || name == ".." {
		name = ""
	}
	name = strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '.', r == '-', r == '_':
			return r
		case unicode.IsSpace(r):
			return '_'
		}
		return -1
	}, name)
	if name == "" {
		return "file"
	}
	return name
}
