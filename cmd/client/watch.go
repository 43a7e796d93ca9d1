package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/atomic"
)

// WatchStats counts transfers started from watch mode.
type WatchStats struct {
	Sent   atomic.Int64
	Failed atomic.Int64
}

// Watch sends every regular file created or written in dir, one transfer at
// a time, until ctx is done. A file is sent once it has been quiet for the
// settle delay; a later write queues it again.
func (c *Client) Watch(ctx context.Context, dir string, stats *WatchStats) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	c.log.WithField("dir", dir).Info("Monitoring directory")

	queue := make(chan string, 64)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.sendQueued(ctx, queue, stats)
	}()
	defer func() {
		close(queue)
		wg.Wait()
	}()

	pending := make(map[string]time.Time)
	ticker := time.NewTicker(c.settle / 4)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if strings.HasPrefix(filepath.Base(event.Name), ".") {
				continue
			}
			pending[event.Name] = time.Now()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			c.log.WithError(err).Warn("Watcher error")

		case now := <-ticker.C:
			for path, last := range pending {
				if now.Sub(last) < c.settle {
					continue
				}
				info, err := os.Stat(path)
				if err != nil || !info.Mode().IsRegular() {
					delete(pending, path)
					continue
				}
				select {
				case queue <- path:
					delete(pending, path)
					c.log.WithField("file", path).Debug("Enqueued file from event")
				default:
				}
			}
		}
	}
}

// sendQueued sends each queued path in turn. Once ctx is done the rest of
// the queue is discarded unsent.
func (c *Client) sendQueued(ctx context.Context, queue <-chan string, stats *WatchStats) {
	for path := range queue {
		if ctx.Err() != nil {
			continue
		}
		c.log.WithField("file", path).Info("Starting transfer")
		if _, err := c.SendFile(ctx, path); err != nil {
			stats.Failed.Inc()
			c.log.WithField("file", path).WithError(err).Error("Transfer failed")
			continue
		}
		stats.Sent.Inc()
	}
}
