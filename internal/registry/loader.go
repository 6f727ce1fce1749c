package registry

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/flexinfer/mentatlab/services/workbench-go/internal/metrics"
	"github.com/flexinfer/mentatlab/services/workbench-go/pkg/types"
)

// CatalogValidator checks a catalog document (as JSON) before it is loaded.
type CatalogValidator interface {
	ValidateCatalog(data []byte) error
}

// Loader bootstraps a Registry from catalog documents.
type Loader struct {
	reg       Registry
	validator CatalogValidator
	logger    *slog.Logger

	// debounce groups bursts of file events into a single reload.
	debounce time.Duration
}

// NewLoader creates a loader. validator may be nil.
func NewLoader(reg Registry, validator CatalogValidator, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		reg:       reg,
		validator: validator,
		logger:    logger,
		debounce:  250 * time.Millisecond,
	}
}

// LoadBytes validates a catalog document and registers its entries
// alongside those already present. It returns the number of entries loaded.
func (l *Loader) LoadBytes(ctx context.Context, data []byte) (int, error) {
	metas, err := l.decode(data)
	if err != nil {
		return 0, err
	}
	if err := l.reg.RegisterMany(ctx, metas); err != nil {
		return 0, err
	}
	return len(metas), nil
}

// ReplaceBytes validates a catalog document and makes its entries the whole
// registry: entries missing from the document are removed.
func (l *Loader) ReplaceBytes(ctx context.Context, data []byte) (int, error) {
	metas, err := l.decode(data)
	if err != nil {
		return 0, err
	}
	if err := l.reg.Replace(ctx, metas); err != nil {
		return 0, err
	}
	return len(metas), nil
}

func (l *Loader) decode(data []byte) ([]*types.NodeMetadata, error) {
	normalized, err := NormalizeCatalog(data)
	if err != nil {
		return nil, err
	}
	if l.validator != nil {
		if err := l.validator.ValidateCatalog(normalized); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidMetadata, err)
		}
	}
	return DecodeCatalog(normalized)
}

// LoadFile loads a catalog document from disk. The file is the source of
// truth: entries it no longer lists are removed.
func (l *Loader) LoadFile(ctx context.Context, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read catalog: %w", err)
	}
	n, err := l.ReplaceBytes(ctx, data)
	if err != nil {
		return 0, fmt.Errorf("load catalog %s: %w", path, err)
	}
	l.logger.Info("catalog loaded", slog.String("path", path), slog.Int("entries", n))
	return n, nil
}

// Watch reloads path whenever it changes, until ctx is cancelled. The
// containing directory is watched so that editors replacing the file by
// rename are picked up.
func (l *Loader) Watch(ctx context.Context, path string) error {
	path = filepath.Clean(path)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watch %s: %w", path, err)
	}

	var (
		timer  *time.Timer
		reload = make(chan struct{}, 1)
	)
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != path {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(l.debounce, func() {
				select {
				case reload <- struct{}{}:
				default:
				}
			})

		case <-reload:
			if _, err := l.LoadFile(ctx, path); err != nil {
				metrics.CatalogReloads.WithLabelValues("error").Inc()
				l.logger.Warn("catalog reload failed", slog.String("path", path), slog.String("error", err.Error()))
				continue
			}
			metrics.CatalogReloads.WithLabelValues("ok").Inc()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			l.logger.Warn("catalog watcher error", slog.String("error", err.Error()))
		}
	}
}
