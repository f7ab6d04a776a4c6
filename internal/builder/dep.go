package builder

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v6"
	"github.com/go-git/go-git/v6/plumbing"
	"github.com/qobs-build/qobs/internal/msg"
)

var depShortcuts = []struct{ prefix, url string }{
	{"gh:", "https://github.com/"},
	{"gl:", "https://gitlab.com/"},
	{"bb:", "https://bitbucket.org/"},
	{"sr:", "https://sr.ht/"},
	{"cb:", "https://codeberg.org/"},
}

const gitPrefix = "git:"

var (
	errIllegalDep         = errors.New("empty or illegal dependency string")
	errArchiveUnsupported = errors.New("archive dependencies are not supported, use a git or path dependency")
)

type depKind int

const (
	depPath depKind = iota
	depGit
	depArchive
)

// depSource is a parsed [dependencies] value
type depSource struct {
	kind depKind
	// path for depPath, URL otherwise
	location    string
	branch      string
	commitOrTag string
}

// parseDepSource understands
//
//	gh:someone/something@master#0.1.0
//	git:https://example.com/something.git#12345abc
//	https://example.com/something.zip
//	../relative/path
func parseDepSource(dep string) (depSource, error) {
	dep = strings.TrimSpace(dep)
	if dep == "" {
		return depSource{}, errIllegalDep
	}

	if rest, ok := strings.CutPrefix(dep, gitPrefix); ok {
		if rest == "" {
			return depSource{}, errIllegalDep
		}
		return parseGitSource(rest), nil
	}

	for _, sc := range depShortcuts {
		if rest, ok := strings.CutPrefix(dep, sc.prefix); ok {
			if rest == "" {
				return depSource{}, errIllegalDep
			}
			return parseGitSource(sc.url + rest), nil
		}
	}

	if isURL(dep) {
		return depSource{kind: depArchive, location: dep}, nil
	}

	return depSource{kind: depPath, location: dep}, nil
}

func isURL(maybeURL string) bool {
	u, err := url.Parse(maybeURL)
	return err == nil && u.Scheme != "" && u.Host != ""
}

func parseGitSource(rawURL string) depSource {
	src := depSource{kind: depGit}

	base, rev, _ := strings.Cut(rawURL, "#")
	src.commitOrTag = rev

	// only look for @branch after the host so user@host URLs survive
	schemeEnd := strings.Index(base, "://") + 1
	if at := strings.LastIndex(base, "@"); at > schemeEnd && !strings.Contains(base[at:], "/") {
		src.branch = base[at+1:]
		base = base[:at]
	}

	if !strings.HasSuffix(base, ".git") {
		base += ".git"
	}
	src.location = base
	return src
}

// fetch makes the dependency available in dir and returns the directory its
// Qobs.toml lives in. Path dependencies are resolved relative to parentDir.
func (src depSource) fetch(dir, parentDir string) (string, error) {
	switch src.kind {
	case depGit:
		if err := src.clone(dir); err != nil {
			return "", err
		}
		return dir, nil
	case depArchive:
		return "", errArchiveUnsupported
	default:
		if filepath.IsAbs(src.location) {
			return src.location, nil
		}
		return filepath.Join(parentDir, src.location), nil
	}
}

func (src depSource) clone(dir string) error {
	msg.Status("Fetching", "%s", src.location)

	opts := &git.CloneOptions{
		URL:               src.location,
		Progress:          &msg.IndentWriter{Indent: "    ", W: os.Stdout},
		RecurseSubmodules: git.DefaultSubmoduleRecursionDepth,
	}
	if src.commitOrTag == "" {
		opts.Depth = 1 // only the tip is needed
	}
	if src.branch != "" {
		opts.ReferenceName = plumbing.NewBranchReferenceName(src.branch)
		opts.SingleBranch = true
	}

	repo, err := git.PlainClone(dir, opts)
	if err != nil {
		return err
	}
	if src.commitOrTag == "" {
		return nil
	}

	w, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("could not get worktree: %w", err)
	}
	hash, err := repo.ResolveRevision(plumbing.Revision(src.commitOrTag))
	if err != nil {
		return fmt.Errorf("could not resolve revision `%s`: %w", src.commitOrTag, err)
	}
	if err := w.Checkout(&git.CheckoutOptions{Hash: *hash, Force: true}); err != nil {
		return fmt.Errorf("failed to checkout `%s`: %w", src.commitOrTag, err)
	}
	return nil
}
