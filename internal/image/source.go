// Package image sources local images for posts and uploads them to a public
// host, since the platform only accepts publicly reachable image URLs.
package image

import (
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"strings"

	"github.com/plumekit/plume/internal/setup/config"
	"go.uber.org/zap"
)

var ErrNoImages = errors.New("no images available in the configured folder")

// Source picks images from a local folder, preferring ones that have not been
// posted recently.
type Source struct {
	folder     string
	extensions map[string]struct{}
	rng        *rand.Rand
	logger     *zap.Logger
}

// NewSource creates an image source from configuration.
func NewSource(cfg *config.Images, rng *rand.Rand, logger *zap.Logger) *Source {
	extensions := make(map[string]struct{}, len(cfg.Extensions))
	for _, ext := range cfg.Extensions {
		extensions[strings.ToLower(ext)] = struct{}{}
	}

	return &Source{
		folder:     cfg.Folder,
		extensions: extensions,
		rng:        rng,
		logger:     logger.Named("image_source"),
	}
}

// Pick returns the path of a random image not in the used list. When every
// image has been used, the used list is ignored rather than failing, so a
// small folder keeps cycling.
func (s *Source) Pick(used func(string) bool) (string, error) {
	all, err := s.list()
	if err != nil {
		return "", err
	}

	if len(all) == 0 {
		return "", ErrNoImages
	}

	fresh := make([]string, 0, len(all))

	for _, path := range all {
		if !used(path) {
			fresh = append(fresh, path)
		}
	}

	if len(fresh) == 0 {
		s.logger.Info("All images used recently, recycling the full set")

		fresh = all
	}

	return fresh[s.rng.Intn(len(fresh))], nil
}

// list scans the folder for files with an accepted extension.
func (s *Source) list() ([]string, error) {
	entries, err := os.ReadDir(s.folder)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, err
	}

	var paths []string

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if _, ok := s.extensions[ext]; ok {
			paths = append(paths, filepath.Join(s.folder, entry.Name()))
		}
	}

	return paths, nil
}
