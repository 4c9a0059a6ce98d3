// Package archive inspects and extracts zip-format mod packages.
package archive

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
)

// Info summarises the contents of a zip archive.
type Info struct {
	// Files lists regular entries in archive order as slash-separated paths
	// relative to the archive root.
	Files []string `json:"files"`
	// TopLevel holds the distinct first path components across all entries.
	TopLevel map[string]struct{} `json:"-"`
	// Extensions counts files by lowercased extension without the leading dot.
	Extensions map[string]int `json:"extensions"`
	// TotalEntries is the raw entry count, directories included.
	TotalEntries int `json:"total_entries"`
}

func newInfo() Info {
	return Info{
		TopLevel:   map[string]struct{}{},
		Extensions: map[string]int{},
	}
}

// SingleTopLevelDir returns the only top-level component when the archive has
// exactly one.
func (i Info) SingleTopLevelDir() (string, bool) {
	if len(i.TopLevel) != 1 {
		return "", false
	}
	for name := range i.TopLevel {
		return name, true
	}
	return "", false
}

// TopLevelDirs returns the top-level components sorted by name.
func (i Info) TopLevelDirs() []string {
	out := make([]string, 0, len(i.TopLevel))
	for name := range i.TopLevel {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// CountExt returns the number of files with the given extension. The match is
// case-insensitive and the leading dot is optional.
func (i Info) CountExt(ext string) int {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	return i.Extensions[ext]
}

func (i *Info) record(name string, isDir bool) {
	if first, _, _ := strings.Cut(name, "/"); first != "" {
		i.TopLevel[first] = struct{}{}
	}
	if isDir {
		return
	}
	i.Files = append(i.Files, name)
	if ext := path.Ext(name); len(ext) > 1 {
		i.Extensions[strings.ToLower(ext[1:])]++
	}
}

// Inspect reads the archive's central directory without extracting payload
// bytes.
func Inspect(archivePath string) (Info, error) {
	reader, err := openZip(archivePath)
	if err != nil {
		return Info{}, err
	}
	defer reader.Close()

	info := newInfo()
	info.TotalEntries = len(reader.File)
	for _, file := range reader.File {
		name, skip, err := entryName(file)
		if err != nil {
			return Info{}, err
		}
		if skip {
			continue
		}
		info.record(name, file.FileInfo().IsDir())
	}
	return info, nil
}

// Extract materialises every archive entry under dest and returns the same
// summary Inspect would. A failure leaves dest partially populated.
func Extract(archivePath, dest string) (Info, error) {
	return ExtractContext(context.Background(), archivePath, dest)
}

// ExtractContext is Extract with cancellation checked between entries.
func ExtractContext(ctx context.Context, archivePath, dest string) (Info, error) {
	reader, err := openZip(archivePath)
	if err != nil {
		return Info{}, err
	}
	defer reader.Close()

	if err := os.MkdirAll(dest, 0o755); err != nil {
		return Info{}, fmt.Errorf("%w: create destination %s: %v", ErrIO, dest, err)
	}

	info := newInfo()
	info.TotalEntries = len(reader.File)
	for _, file := range reader.File {
		if err := ctx.Err(); err != nil {
			return Info{}, err
		}
		name, skip, err := entryName(file)
		if err != nil {
			return Info{}, err
		}
		if skip {
			continue
		}
		target := filepath.Join(dest, filepath.FromSlash(name))
		isDir := file.FileInfo().IsDir()
		if isDir {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return Info{}, entryError(ErrIO, file.Name, err)
			}
		} else if err := extractFile(file, target); err != nil {
			return Info{}, err
		}
		info.record(name, isDir)
	}
	return info, nil
}

// RootDir resolves the directory that holds a package's content: the single
// top-level directory under extractionRoot when one exists there, otherwise
// extractionRoot itself.
func RootDir(info Info, extractionRoot string) string {
	if dir, ok := info.SingleTopLevelDir(); ok {
		candidate := filepath.Join(extractionRoot, filepath.FromSlash(dir))
		if st, err := os.Stat(candidate); err == nil && st.IsDir() {
			return candidate
		}
	}
	return extractionRoot
}

func openZip(archivePath string) (*zip.ReadCloser, error) {
	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		// Insecure names are rejected per entry so the error names the offender.
		if errors.Is(err, zip.ErrInsecurePath) && reader != nil {
			return reader, nil
		}
		if reader != nil {
			reader.Close()
		}
		var pathErr *os.PathError
		if errors.As(err, &pathErr) {
			return nil, fmt.Errorf("%w: open %s: %v", ErrIO, archivePath, err)
		}
		return nil, fmt.Errorf("%w: read %s: %v", ErrCorrupt, archivePath, err)
	}
	return reader, nil
}

func extractFile(file *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return entryError(ErrIO, file.Name, err)
	}
	rc, err := file.Open()
	if err != nil {
		return entryError(ErrCorrupt, file.Name, err)
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return entryError(ErrIO, file.Name, err)
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		// Checksum and decompression failures surface from the reader side.
		if errors.Is(err, zip.ErrChecksum) || errors.Is(err, zip.ErrFormat) || errors.Is(err, io.ErrUnexpectedEOF) {
			return entryError(ErrCorrupt, file.Name, err)
		}
		return entryError(ErrIO, file.Name, err)
	}
	if err := out.Close(); err != nil {
		return entryError(ErrIO, file.Name, err)
	}

	if runtime.GOOS != "windows" {
		if perm := file.Mode().Perm(); perm != 0 {
			if err := os.Chmod(target, perm); err != nil {
				return entryError(ErrIO, file.Name, err)
			}
		}
	}
	return nil
}

// entryName validates a stored entry name and returns its cleaned,
// slash-separated form. Directory entries that resolve to the archive root
// are reported as skip.
func entryName(file *zip.File) (string, bool, error) {
	raw := file.Name
	if raw == "" || strings.ContainsRune(raw, 0) {
		return "", false, entryError(ErrInvalidEntryName, raw, nil)
	}
	name := strings.ReplaceAll(raw, `\`, "/")
	if strings.HasPrefix(name, "/") || hasVolume(name) {
		return "", false, entryError(ErrInvalidEntryName, raw, errors.New("absolute path"))
	}
	clean := path.Clean(name)
	if clean == "." {
		if file.FileInfo().IsDir() {
			return "", true, nil
		}
		return "", false, entryError(ErrInvalidEntryName, raw, nil)
	}
	if clean == ".." || strings.HasPrefix(clean, "../") || !filepath.IsLocal(filepath.FromSlash(clean)) {
		return "", false, entryError(ErrInvalidEntryName, raw, errors.New("escapes extraction root"))
	}
	return clean, false, nil
}

func hasVolume(name string) bool {
	return len(name) >= 2 && name[1] == ':' &&
		((name[0] >= 'a' && name[0] <= 'z') || (name[0] >= 'A' && name[0] <= 'Z'))
}
