package publish

import (
	"fmt"
	"log/slog"

	"github.com/starford/nbpublish/internal/checksum"
	"github.com/starford/nbpublish/internal/storage"
)

// AssetResult is the outcome of publishing one media file.
type AssetResult struct {
	Filename string `json:"filename"`
	Found    bool   `json:"found"`
	Copied   bool   `json:"copied"`
}

// AssetPublisher copies referenced media files from the authored media
// directory into the build images directory.
type AssetPublisher struct {
	media  storage.Provider
	images storage.Provider
	logger *slog.Logger
}

// NewAssetPublisher creates an AssetPublisher. A nil media provider means the
// media directory does not exist, so every asset is reported missing.
func NewAssetPublisher(media, images storage.Provider, logger *slog.Logger) *AssetPublisher {
	return &AssetPublisher{media: media, images: images, logger: logger}
}

// Publish copies filename into the images directory, overwriting a different
// file of the same name. A missing source file is not an error: the result
// has Found=false and the caller decides how to report it.
func (a *AssetPublisher) Publish(filename string) (AssetResult, error) {
	res := AssetResult{Filename: filename}
	if a.media == nil {
		return res, nil
	}
	ok, err := a.media.Exists(filename)
	if err != nil {
		return res, fmt.Errorf("publish: asset %s: %w", filename, err)
	}
	if !ok {
		return res, nil
	}
	res.Found = true

	data, err := a.media.Read(filename)
	if err != nil {
		return res, fmt.Errorf("publish: asset %s: %w", filename, err)
	}
	if existing, err := a.images.Read(filename); err == nil && checksum.Sum(existing) == checksum.Sum(data) {
		return res, nil
	}
	if err := a.images.Write(filename, data); err != nil {
		return res, fmt.Errorf("publish: copy asset %s: %w", filename, err)
	}
	res.Copied = true
	a.logger.Debug("publish: copied asset", slog.String("file", filename))
	return res, nil
}

// MediaRoot returns the absolute media directory, or "" if there is none.
func (a *AssetPublisher) MediaRoot() string {
	if a.media == nil {
		return ""
	}
	return a.media.Root()
}
