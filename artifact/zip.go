package artifact

import (
	"archive/zip"
	"fmt"
	"io"
	"path"
	"strings"
	"time"
)

// WriteZip packs rendered certificates into one archive. Colliding file
// names get a " (n)" suffix.
func WriteZip(w io.Writer, arts []Artifact) error {
	zw := zip.NewWriter(w)
	used := make(map[string]bool, len(arts))
	now := time.Now()
	for _, a := range arts {
		fw, err := zw.CreateHeader(&zip.FileHeader{
			Name:     uniqueName(a.Filename, used),
			Method:   zip.Deflate,
			Modified: now,
		})
		if err != nil {
			return fmt.Errorf("add %s to archive: %w", a.Filename, err)
		}
		if _, err := fw.Write(a.Data); err != nil {
			return fmt.Errorf("write %s to archive: %w", a.Filename, err)
		}
	}
	return zw.Close()
}

// uniqueName returns name, or name with the lowest free " (n)" suffix.
// used holds every name already placed in the archive.
func uniqueName(name string, used map[string]bool) string {
	candidate := name
	ext := path.Ext(name)
	base := strings.TrimSuffix(name, ext)
	for n := 2; used[candidate]; n++ {
		candidate = fmt.Sprintf("%s (%d)%s", base, n, ext)
	}
	used[candidate] = true
	return candidate
}
