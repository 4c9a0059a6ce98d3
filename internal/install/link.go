package install

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// symlink is swapped in tests to simulate platforms without symlink support.
var symlink = os.Symlink

// CopyMarker is written into every copied activation so later installs can
// tell it apart from a directory the user put there.
const CopyMarker = ".voidmod-copy"

// activate exposes content at link, returning how it was done.
func (in *Installer) activate(content, link string) (Activation, error) {
	if in.activation != ActivationCopy {
		err := symlink(content, link)
		if err == nil {
			return ActivationSymlink, nil
		}
		if in.activation == ActivationSymlink {
			return "", fmt.Errorf("symlink %s: %w", link, err)
		}
		in.logger.Printf("symlink %s failed, copying instead: %v", link, err)
		_ = os.RemoveAll(link)
	}
	if err := copyTree(content, link); err != nil {
		_ = os.RemoveAll(link)
		return "", fmt.Errorf("copy %s: %w", link, err)
	}
	if err := os.WriteFile(filepath.Join(link, CopyMarker), nil, 0o644); err != nil {
		_ = os.RemoveAll(link)
		return "", fmt.Errorf("mark copy %s: %w", link, err)
	}
	return ActivationCopy, nil
}

// managed reports whether path is an activation this installer created: a
// symlink into the extracted tree or a directory carrying CopyMarker.
func (in *Installer) managed(path string) (bool, error) {
	st, err := os.Lstat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("stat %s: %w", path, err)
	}
	switch {
	case st.Mode()&fs.ModeSymlink != 0:
		target, err := os.Readlink(path)
		if err != nil {
			return false, fmt.Errorf("read link %s: %w", path, err)
		}
		if !filepath.IsAbs(target) {
			target = filepath.Join(filepath.Dir(path), target)
		}
		return within(in.extractedDir, target), nil
	case st.IsDir():
		_, err := os.Lstat(filepath.Join(path, CopyMarker))
		return err == nil, nil
	default:
		return false, nil
	}
}

func within(root, path string) bool {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return false
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(absRoot, absPath)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// removeManaged deletes path only when it is one of our activations.
func (in *Installer) removeManaged(path string) (bool, error) {
	ok, err := in.managed(path)
	if err != nil || !ok {
		return false, err
	}
	return true, removeLink(path)
}

// removeLink deletes whatever occupies path: a symlink, a copied directory or
// a stray file. Symlink targets are left alone.
func removeLink(path string) error {
	if _, err := os.Lstat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	return nil
}

func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		info, err := d.Info()
		if err != nil {
			return err
		}
		switch {
		case d.IsDir():
			return os.MkdirAll(target, info.Mode().Perm()|0o700)
		case info.Mode().IsRegular():
			return copyFile(path, target, info.Mode().Perm())
		default:
			// Extraction never produces links or devices.
			return nil
		}
	})
}

func copyFile(src, dst string, mode fs.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
