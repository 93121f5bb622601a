package prefetch

import (
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/imgsrv/imgcache/internal/imaging"
	"github.com/imgsrv/imgcache/internal/optimizer"
)

// decodable lists the file extensions the transform pipeline can decode.
var decodable = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".webp": true,
}

// ScanAssets walks the site root and returns the relative slash-separated
// paths of every decodable image file, sorted. Dot-directories and the cache
// root (skipDirs, relative to root) are skipped so already-cached artifacts
// are not re-enumerated as sources.
func ScanAssets(root string, skipDirs ...string) ([]string, error) {
	skip := make(map[string]bool, len(skipDirs))
	for _, d := range skipDirs {
		skip[filepath.ToSlash(filepath.Clean(d))] = true
	}

	var sources []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if d.IsDir() {
			if rel == "." {
				return nil
			}
			if strings.HasPrefix(d.Name(), ".") || skip[rel] {
				return fs.SkipDir
			}
			return nil
		}
		if decodable[strings.ToLower(filepath.Ext(path))] {
			sources = append(sources, rel)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(sources)
	return sources, nil
}

// DefaultRequests builds one default-quality warm-up request per source,
// constrained to the given width. Applications with richer parameter sets
// (multiple sizes per image) should build their own []optimizer.Request and
// call Warm directly.
func DefaultRequests(sources []string, width int) []optimizer.Request {
	reqs := make([]optimizer.Request, 0, len(sources))
	for _, src := range sources {
		reqs = append(reqs, optimizer.Request{
			Source:  src,
			Width:   width,
			Quality: imaging.DefaultQuality,
		})
	}
	return reqs
}
