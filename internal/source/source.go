// Package source opens and decodes the row files behind catalog datasets.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/yungbote/studygraph-ingest/internal/domain"
)

// ErrSourceNotFound reports a dataset whose source object does not exist.
var ErrSourceNotFound = errors.New("source not found")

// Opener streams a named source object. Implementations: DirOpener,
// gcp.BucketReader, s3store.Reader.
type Opener interface {
	Open(ctx context.Context, name string) (io.ReadCloser, error)
}

// Lister is implemented by openers that can enumerate their objects.
type Lister interface {
	List(ctx context.Context) ([]string, error)
}

// DirOpener reads sources from a local directory.
type DirOpener struct {
	Root string
}

func NewDirOpener(root string) *DirOpener {
	if strings.TrimSpace(root) == "" {
		root = "."
	}
	return &DirOpener{Root: root}
}

func (o *DirOpener) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p := filepath.Join(o.Root, filepath.FromSlash(name))
	f, err := os.Open(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", p, ErrSourceNotFound)
	}
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (o *DirOpener) List(ctx context.Context) ([]string, error) {
	var out []string
	err := filepath.WalkDir(o.Root, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(o.Root, p)
		if err != nil {
			return err
		}
		out = append(out, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", o.Root, err)
	}
	sort.Strings(out)
	return out, nil
}

// Preflight checks that every dataset's source is present before any graph
// write starts. Openers that cannot list are skipped.
func Preflight(ctx context.Context, opener Opener, datasets []domain.Dataset) error {
	lister, ok := opener.(Lister)
	if !ok {
		return nil
	}
	names, err := lister.List(ctx)
	if err != nil {
		return err
	}
	have := make(map[string]bool, len(names))
	for _, n := range names {
		have[n] = true
	}
	var missing []string
	for _, d := range datasets {
		if !have[d.Source] {
			missing = append(missing, d.Name+" ("+d.Source+")")
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrSourceNotFound, strings.Join(missing, ", "))
	}
	return nil
}
