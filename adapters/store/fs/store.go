package storefs

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/goliatone/go-docmerge/merge"
)

const metaSuffix = ".meta.json"

// Store writes merge outputs to a directory. Writes go through a temp file
// and a rename, so readers never observe partial documents. Each output has a
// JSON metadata sidecar.
type Store struct {
	Root     string
	FileMode os.FileMode
	Now      func() time.Time
}

var _ merge.ArtifactStore = (*Store)(nil)

// NewStore creates a filesystem-backed output store.
func NewStore(root string) *Store {
	return &Store{Root: root, FileMode: 0o644, Now: time.Now}
}

// Put stores an output on disk, replacing any previous output under key.
func (s *Store) Put(ctx context.Context, key string, r io.Reader, meta merge.ArtifactMeta) (merge.ArtifactRef, error) {
	if err := s.validate(key); err != nil {
		return merge.ArtifactRef{}, err
	}
	if err := ctx.Err(); err != nil {
		return merge.ArtifactRef{}, err
	}
	pathOnDisk, err := s.resolvePath(key)
	if err != nil {
		return merge.ArtifactRef{}, err
	}

	dir := filepath.Dir(pathOnDisk)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return merge.ArtifactRef{}, err
	}

	size, err := writeAtomic(dir, pathOnDisk, ".docmerge-*", s.fileMode(), func(w io.Writer) (int64, error) {
		return io.Copy(w, r)
	})
	if err != nil {
		return merge.ArtifactRef{}, err
	}

	meta.Size = size
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = s.now()
	}
	if meta.ContentType == "" {
		meta.ContentType = contentType(pathOnDisk)
	}
	if meta.Filename == "" {
		meta.Filename = filepath.Base(pathOnDisk)
	}

	if err := s.writeMeta(pathOnDisk, meta); err != nil {
		return merge.ArtifactRef{}, err
	}
	return merge.ArtifactRef{Key: key, Meta: meta}, nil
}

// Open reads an output from disk.
func (s *Store) Open(ctx context.Context, key string) (io.ReadCloser, merge.ArtifactMeta, error) {
	_ = ctx
	if err := s.validate(key); err != nil {
		return nil, merge.ArtifactMeta{}, err
	}
	pathOnDisk, err := s.resolvePath(key)
	if err != nil {
		return nil, merge.ArtifactMeta{}, err
	}

	file, err := os.Open(pathOnDisk)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, merge.ArtifactMeta{}, merge.NewError(merge.KindNotFound, fmt.Sprintf("output %q not found", key), err)
		}
		return nil, merge.ArtifactMeta{}, err
	}

	meta := s.readMeta(pathOnDisk)
	if meta.ContentType == "" {
		meta.ContentType = contentType(pathOnDisk)
	}
	if meta.Size == 0 {
		if info, err := file.Stat(); err == nil {
			meta.Size = info.Size()
			if meta.CreatedAt.IsZero() {
				meta.CreatedAt = info.ModTime()
			}
		}
	}
	return file, meta, nil
}

// Delete removes an output and its sidecar. Missing files are ignored.
func (s *Store) Delete(ctx context.Context, key string) error {
	_ = ctx
	if err := s.validate(key); err != nil {
		return err
	}
	pathOnDisk, err := s.resolvePath(key)
	if err != nil {
		return err
	}
	_ = os.Remove(pathOnDisk)
	_ = os.Remove(metaPath(pathOnDisk))
	return nil
}

// Keys lists stored output keys in sorted order.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	if err := s.validate("-"); err != nil {
		return nil, err
	}
	root, err := filepath.Abs(s.Root)
	if err != nil {
		return nil, err
	}
	var keys []string
	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && p == root {
				return filepath.SkipDir
			}
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() || strings.HasSuffix(name, metaSuffix) || strings.HasPrefix(name, ".docmerge-") || strings.HasPrefix(name, ".meta-") {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		keys = append(keys, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *Store) validate(key string) error {
	if s == nil {
		return merge.NewError(merge.KindInternal, "store is nil", nil)
	}
	if s.Root == "" {
		return merge.NewError(merge.KindValidation, "store root is required", nil)
	}
	if key == "" {
		return merge.NewError(merge.KindValidation, "output key is required", nil)
	}
	return nil
}

func (s *Store) resolvePath(key string) (string, error) {
	clean := path.Clean("/" + key)
	rel := strings.TrimPrefix(clean, "/")
	if rel == "" || rel == "." {
		return "", merge.NewError(merge.KindValidation, "invalid output key", nil)
	}

	root, err := filepath.Abs(s.Root)
	if err != nil {
		return "", err
	}
	target := filepath.Join(root, filepath.FromSlash(rel))
	if !strings.HasPrefix(target, root+string(os.PathSeparator)) && target != root {
		return "", merge.NewError(merge.KindValidation, "output key escapes root", nil)
	}
	return target, nil
}

func (s *Store) writeMeta(pathOnDisk string, meta merge.ArtifactMeta) error {
	payload, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}
	_, err = writeAtomic(filepath.Dir(pathOnDisk), metaPath(pathOnDisk), ".meta-*", s.fileMode(), func(w io.Writer) (int64, error) {
		n, err := w.Write(payload)
		return int64(n), err
	})
	return err
}

func (s *Store) readMeta(pathOnDisk string) merge.ArtifactMeta {
	data, err := os.ReadFile(metaPath(pathOnDisk))
	if err != nil {
		return merge.ArtifactMeta{}
	}
	var meta merge.ArtifactMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return merge.ArtifactMeta{}
	}
	return meta
}

func (s *Store) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

func (s *Store) fileMode() os.FileMode {
	if s.FileMode == 0 {
		return 0o644
	}
	return s.FileMode
}

func writeAtomic(dir, target, pattern string, mode os.FileMode, write func(io.Writer) (int64, error)) (int64, error) {
	tmp, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return 0, err
	}
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}()

	size, err := write(tmp)
	if err != nil {
		return 0, err
	}
	if err := tmp.Sync(); err != nil {
		return 0, err
	}
	if err := tmp.Close(); err != nil {
		return 0, err
	}
	if err := os.Chmod(tmp.Name(), mode); err != nil {
		return 0, err
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return 0, err
	}
	return size, nil
}

func contentType(pathOnDisk string) string {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(pathOnDisk)), ".")
	switch merge.Format(ext) {
	case merge.FormatDOCX, merge.FormatPDF:
		return merge.ContentType(merge.Format(ext))
	}
	return mime.TypeByExtension(filepath.Ext(pathOnDisk))
}

func metaPath(pathOnDisk string) string {
	return pathOnDisk + metaSuffix
}
