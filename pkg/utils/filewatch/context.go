// Package filewatch cancels contexts on file changes.
//
// vitraind stops itself when its config file is changed, to be restarted by its supervisor:
//
//	ctx, stop, err := filewatch.UntilModifyContext(ctx, configPath)
//	if err != nil {
//		return err
//	}
//	defer stop()
//	// ... serve until ctx is done.
//	if errors.Is(context.Cause(ctx), filewatch.ErrModified) {
//		log.Println("config is changed. restarting.")
//	}
package filewatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/fsnotify/fsnotify"
)

// cause of contexts canceled by file changes.
var ErrModified = errors.New("file is modified")

type option struct {
	ignore fsnotify.Op
}

type Option func(*option)

// Ignoring makes changes only with the given ops not to cancel contexts.
func Ignoring(op fsnotify.Op) Option {
	return func(o *option) {
		o.ignore |= op
	}
}

// UntilModifyContext returns a context that is canceled
// when one of the targets is modified (written, created, removed, renamed or chmod-ed).
//
// Targets can be files or directories. For a directory, changes of its entries count.
//
// The cause of cancel wraps ErrModified.
// If error is returned, both of the context and the stop function are nil.
func UntilModifyContext(ctx context.Context, targets []string, options ...Option) (context.Context, func(), error) {
	opt := &option{}
	for _, o := range options {
		o(opt)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, nil, err
	}
	for _, f := range targets {
		if err := w.Add(f); err != nil {
			w.Close()
			return nil, nil, fmt.Errorf("watching %s: %w", f, err)
		}
	}

	cctx, cancel := context.WithCancelCause(ctx)
	go func() {
		defer w.Close()
		for {
			select {
			case <-cctx.Done():
				return
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				cancel(err)
				return
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				if event.Op&^opt.ignore == 0 {
					continue
				}
				cancel(fmt.Errorf("%w: %s (%s)", ErrModified, event.Name, event.Op))
				return
			}
		}
	}()

	return cctx, func() { cancel(nil) }, nil
}
