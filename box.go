// box.go — the red-box filesystem sandbox.
//
// Every filesystem-touching packet resolves its path here. The box root is
// the nearest ancestor of the entry script's directory that contains a file
// named red.tgsk; without one, filesystem access is refused outright. Paths
// resolve in three modes: "/x" anchors at the root, relative paths anchor at
// the runtime cwd, and absolute OS paths are admitted only when they
// canonicalize to a descendant of the root.
package tagspeak

import (
	"os"
	"path/filepath"
	"strings"
)

// Sentinel is the file name that marks a box root.
const Sentinel = "red.tgsk"

// FindRoot walks upward from start looking for the sentinel. The search runs
// once per process, from the entry script's directory.
func FindRoot(start string) (string, bool) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return "", false
	}
	for {
		info, err := os.Stat(filepath.Join(dir, Sentinel))
		if err == nil && info.Mode().IsRegular() {
			return dir, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}

// Box holds the resolved root and the runtime's working directory, which is
// kept root-relative so it can never point outside.
type Box struct {
	Root string // absolute root, "" when no sentinel was found
	Cwd  string // root-relative, "" means the root itself
}

// NewBox locates the root for a script at entry (a file path) and seeds the
// cwd with the script's directory.
func NewBox(entry string) Box {
	start := filepath.Dir(entry)
	root, ok := FindRoot(start)
	if !ok {
		return Box{}
	}
	abs, err := filepath.Abs(start)
	if err != nil {
		return Box{Root: root}
	}
	rel, err := filepath.Rel(root, abs)
	if err != nil || strings.HasPrefix(rel, "..") {
		rel = "."
	}
	if rel == "." {
		rel = ""
	}
	return Box{Root: root, Cwd: rel}
}

// Resolve maps a script-visible path to an absolute path inside the box.
func (b *Box) Resolve(raw string) (string, error) {
	if b.Root == "" {
		return "", scriptErr(EBoxRequired, "no %s root found; run `tagspeak init` in your project root", Sentinel)
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", scriptErr(EBoxViolation, "empty path")
	}
	if strings.Contains(raw, "://") {
		// URL-shaped strings (schemes, userinfo) never name box files
		return "", scriptErr(EBoxViolation, "%q is not a plain file path", raw)
	}

	var candidate string
	switch {
	case filepath.IsAbs(raw) && b.contains(filepath.Clean(raw)):
		// absolute OS path that already lies inside the root
		candidate = filepath.Clean(raw)
	case strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, "\\"):
		// root-anchored
		candidate = filepath.Join(b.Root, filepath.FromSlash(raw[1:]))
	case filepath.IsAbs(raw):
		candidate = filepath.Clean(raw)
	default:
		candidate = filepath.Join(b.Root, b.Cwd, filepath.FromSlash(raw))
	}

	resolved := filepath.Clean(candidate)
	if !b.contains(resolved) {
		return "", scriptErr(EBoxViolation, "%q resolves outside the box root", raw)
	}

	// A symlink inside the tree must not smuggle the target outside. Resolve
	// the deepest existing ancestor and re-check.
	if real, err := resolveExisting(resolved); err == nil && !b.contains(real) {
		return "", scriptErr(EBoxViolation, "%q escapes the box root through a symlink", raw)
	}
	return resolved, nil
}

// CD updates the working directory to a resolved directory path.
func (b *Box) CD(raw string) error {
	resolved, err := b.Resolve(raw)
	if err != nil {
		return err
	}
	info, err := os.Stat(resolved)
	if err != nil || !info.IsDir() {
		return scriptErr(EBoxViolation, "%q is not a directory inside the box", raw)
	}
	rel, err := filepath.Rel(b.Root, resolved)
	if err != nil || strings.HasPrefix(rel, "..") {
		return scriptErr(EBoxViolation, "%q resolves outside the box root", raw)
	}
	if rel == "." {
		rel = ""
	}
	b.Cwd = rel
	return nil
}

// WorkDir is the absolute current working directory.
func (b *Box) WorkDir() string {
	if b.Root == "" {
		return ""
	}
	return filepath.Join(b.Root, b.Cwd)
}

// RootRelative renders an absolute path as the /-anchored form scripts use.
func (b *Box) RootRelative(abs string) string {
	rel, err := filepath.Rel(b.Root, abs)
	if err != nil || strings.HasPrefix(rel, "..") {
		return abs
	}
	if rel == "." {
		return "/"
	}
	return "/" + filepath.ToSlash(rel)
}

func (b *Box) contains(abs string) bool {
	rootReal := b.Root
	if r, err := filepath.EvalSymlinks(b.Root); err == nil {
		rootReal = r
	}
	for _, root := range []string{b.Root, rootReal} {
		rel, err := filepath.Rel(root, abs)
		if err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// resolveExisting canonicalizes the deepest existing prefix of path and
// rejoins the missing suffix, so not-yet-created files still get checked.
func resolveExisting(path string) (string, error) {
	var suffix []string
	cur := path
	for {
		real, err := filepath.EvalSymlinks(cur)
		if err == nil {
			for i := len(suffix) - 1; i >= 0; i-- {
				real = filepath.Join(real, suffix[i])
			}
			return real, nil
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return path, nil
		}
		suffix = append(suffix, filepath.Base(cur))
		cur = parent
	}
}
