package transfer

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/45Drives/studio-share-sub000/internal/models"
)

// Validate checks req and resolves its source once. The returned
// SourceInfo is used for the rest of the session.
func Validate(req models.TransferRequest) (models.SourceInfo, error) {
	var src models.SourceInfo

	switch {
	case req.Source == "":
		return src, &ValidationError{Field: "source", Reason: "is required"}
	case !filepath.IsAbs(req.Source):
		return src, &ValidationError{Field: "source", Reason: "must be an absolute path"}
	}
	if err := checkRemoteWord("destination host", req.DestinationHost); err != nil {
		return src, err
	}
	if err := checkRemoteWord("destination user", req.DestinationUser); err != nil {
		return src, err
	}
	if strings.TrimSpace(req.DestinationDir) == "" {
		return src, &ValidationError{Field: "destination dir", Reason: "is required"}
	}
	if req.Port < 0 || req.Port > 65535 {
		return src, &ValidationError{Field: "port", Reason: "must be between 1 and 65535"}
	}
	if req.BandwidthLimitKbps < 0 {
		return src, &ValidationError{Field: "bandwidth limit", Reason: "must not be negative"}
	}

	info, err := os.Stat(req.Source)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return src, &ValidationError{Field: "source", Reason: req.Source + " does not exist"}
		}
		return src, &ValidationError{Field: "source", Reason: err.Error()}
	}
	if !info.IsDir() && !info.Mode().IsRegular() {
		return src, &ValidationError{Field: "source", Reason: "must be a regular file or a directory"}
	}

	return models.SourceInfo{
		Path:    req.Source,
		IsDir:   info.IsDir(),
		Size:    info.Size(),
		Mode:    info.Mode(),
		ModTime: info.ModTime(),
	}, nil
}

// checkRemoteWord rejects values that ssh would read as an option or
// that would split into several arguments.
func checkRemoteWord(field, v string) error {
	switch {
	case v == "":
		return &ValidationError{Field: field, Reason: "is required"}
	case strings.HasPrefix(v, "-"):
		return &ValidationError{Field: field, Reason: "must not start with '-'"}
	case strings.ContainsAny(v, " \t\r\n@:"):
		return &ValidationError{Field: field, Reason: "contains invalid characters"}
	}
	return nil
}
