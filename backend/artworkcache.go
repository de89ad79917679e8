package backend

import (
	"bytes"
	"fmt"
	"io/fs"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/20after4/configdir"
	"github.com/boxes-ltd/imaging"
	"github.com/dweymouth/localsonic/backend/mediaprovider"
	"github.com/dweymouth/localsonic/backend/mediaprovider/local"
)

const (
	coverArtThumbnailSize = 300

	defaultArtworkCacheSizeMB = 50
)

// The ArtworkCache extracts the embedded cover art of audio files
// and keeps thumbnails of it in an on-disk cache, for the media session to link to.
type ArtworkCache struct {
	baseCacheDir string

	mu                      sync.Mutex
	maxOnDiskCacheSizeBytes int64
}

func NewArtworkCache(baseCacheDir string, maxSizeMB int) *ArtworkCache {
	if err := configdir.MakePath(baseCacheDir); err != nil {
		log.Println("failed to create artwork cache dir")
		baseCacheDir = ""
	}
	if maxSizeMB <= 0 {
		maxSizeMB = defaultArtworkCacheSizeMB
	}
	return &ArtworkCache{
		baseCacheDir:            baseCacheDir,
		maxOnDiskCacheSizeBytes: int64(maxSizeMB) * 1_048_576,
	}
}

// URLForFile returns a file:// URL of the cover thumbnail for the audio file at path,
// extracting and caching it first if needed.
// Returns local.ErrNoArtwork if the file has no embedded cover.
func (a *ArtworkCache) URLForFile(path string) (string, error) {
	thumbPath, err := a.ThumbnailPath(path)
	if err != nil {
		return "", err
	}
	return fileURL(thumbPath), nil
}

// ThumbnailPath returns the path of the cached cover thumbnail for the audio file at path.
func (a *ArtworkCache) ThumbnailPath(path string) (string, error) {
	if a.baseCacheDir == "" {
		return "", fmt.Errorf("no artwork cache dir")
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	thumbPath := a.filePathForCover(mediaprovider.TrackIDForPath(path))
	if cached, err := os.Stat(thumbPath); err == nil {
		// re-extract if the audio file changed since it was cached
		if src, err := os.Stat(path); err != nil || !src.ModTime().After(cached.ModTime()) {
			return thumbPath, nil
		}
	}

	pic, err := local.ReadArtwork(path)
	if err != nil {
		return "", err
	}
	img, err := imaging.Decode(bytes.NewReader(pic.Data))
	if err != nil {
		return "", fmt.Errorf("failed to decode cover art: %w", err)
	}
	thumb := imaging.Fit(img, coverArtThumbnailSize, coverArtThumbnailSize, imaging.Lanczos)
	if err := imaging.Save(thumb, thumbPath, imaging.JPEGQuality(90)); err != nil {
		log.Printf("failed to cache image: %s", err.Error())
		return "", err
	}
	a.pruneOnDiskCache(thumbPath)
	return thumbPath, nil
}

func (a *ArtworkCache) filePathForCover(id string) string {
	return filepath.Join(a.baseCacheDir, fmt.Sprintf("%s.jpg", id))
}

// pruneOnDiskCache deletes the least recently written thumbnails other than keep
// until the cache is under its size limit.
func (a *ArtworkCache) pruneOnDiskCache(keep string) {
	type fileInfo struct {
		path    string
		size    int64
		modTime int64
	}
	var allCovers []fileInfo
	var totalSize int64
	filepath.WalkDir(a.baseCacheDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(path, "jpg") {
			return nil
		}
		if info, err := d.Info(); err == nil {
			s := info.Size()
			allCovers = append(allCovers,
				fileInfo{path: path, size: s, modTime: info.ModTime().UnixMilli()})
			totalSize += s
		}
		return nil
	})

	if totalSize <= a.maxOnDiskCacheSizeBytes {
		return
	}
	sort.Slice(allCovers, func(i, j int) bool {
		return allCovers[i].modTime < allCovers[j].modTime
	})
	for i := 0; i < len(allCovers) && totalSize > a.maxOnDiskCacheSizeBytes; i++ {
		if allCovers[i].path == keep {
			continue
		}
		if err := os.Remove(allCovers[i].path); err == nil {
			totalSize -= allCovers[i].size
		}
	}
}

func fileURL(path string) string {
	p := filepath.ToSlash(path)
	if !strings.HasPrefix(p, "/") {
		p = "/" + p // Windows drive letter
	}
	return (&url.URL{Scheme: "file", Path: p}).String()
}
