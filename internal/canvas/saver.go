package canvas

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"

	"screenspec/internal/state"
	"screenspec/internal/storage"
	"screenspec/internal/surface"
)

var (
	// ErrSaveQueueFull is returned when too many saves are already waiting.
	ErrSaveQueueFull = errors.New("canvas: too many saves pending")
	// ErrClosed is returned by saves requested after Close.
	ErrClosed = errors.New("canvas: closed")
)

const saveQueueSize = 8

type saveJob struct {
	ctx         context.Context
	pixels      *image.RGBA
	annotations []state.Annotation
	meta        storage.Metadata
	gen         uint64
	done        chan error
}

// saver runs saves one at a time in the order they were requested.
type saver struct {
	c     *Canvas
	jobs  chan saveJob
	quit  chan struct{}
	start sync.Once
	wg    sync.WaitGroup

	closed bool // guarded by c.mu
}

func newSaver(c *Canvas) *saver {
	return &saver{
		c:    c,
		jobs: make(chan saveJob, saveQueueSize),
		quit: make(chan struct{}),
	}
}

func (s *saver) run() {
	defer s.wg.Done()
	for {
		select {
		case job := <-s.jobs:
			s.save(job)
		case <-s.quit:
			for {
				select {
				case job := <-s.jobs:
					s.save(job)
				default:
					return
				}
			}
		}
	}
}

func (s *saver) save(job saveJob) {
	c := s.c
	err := job.ctx.Err()
	if err == nil {
		var png []byte
		png, err = surface.EncodePNG(job.pixels)
		if err == nil {
			err = c.gateway.Save(job.ctx, c.screenID, storage.Update{
				ImageData:   png,
				Annotations: job.annotations,
				Metadata:    job.meta,
			})
		}
	}
	if err != nil {
		err = fmt.Errorf("save screen %s: %w", c.screenID, err)
		c.logger.Error("canvas: save failed", "screen", c.screenID, "error", err)
	} else {
		c.mu.Lock()
		if job.gen > c.savedGen {
			c.savedGen = job.gen
		}
		c.mu.Unlock()
		c.logger.Info("canvas: saved", "screen", c.screenID, "annotations", len(job.annotations))
	}
	c.metrics.RecordSave(err)
	if c.onSaved != nil {
		c.onSaved(err)
	}
	job.done <- err
	close(job.done)
}

func (s *saver) close() {
	s.c.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.quit)
	}
	s.c.mu.Unlock()
	s.wg.Wait()
}

func failed(err error) <-chan error {
	ch := make(chan error, 1)
	ch <- err
	close(ch)
	return ch
}

// SaveAsync captures the rendered image, annotations and metadata as they are
// now and queues them for writing. Saves never overlap and complete in request
// order. The returned channel yields the result once.
func (c *Canvas) SaveAsync(ctx context.Context) <-chan error {
	if c.gateway == nil {
		return failed(ErrNoGateway)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.saver.closed {
		return failed(ErrClosed)
	}
	if err := ctx.Err(); err != nil {
		return failed(err)
	}
	if !c.readyLocked() {
		return failed(ErrNotReady)
	}
	job := saveJob{
		ctx:         ctx,
		pixels:      cloneRGBA(c.committedLocked()),
		annotations: c.store.ToArray(),
		meta:        c.meta,
		gen:         c.gen,
		done:        make(chan error, 1),
	}
	select {
	case c.saver.jobs <- job:
	default:
		return failed(ErrSaveQueueFull)
	}
	c.saver.start.Do(func() {
		c.saver.wg.Add(1)
		go c.saver.run()
	})
	return job.done
}

// Save writes the current state and waits for it, and for every save queued
// before it, to finish.
func (c *Canvas) Save(ctx context.Context) error {
	select {
	case err := <-c.SaveAsync(ctx):
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
