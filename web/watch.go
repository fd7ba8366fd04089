package web

import (
	"errors"
	"time"

	"github.com/portending/ScriptFlow/internal/channel"
	"github.com/portending/ScriptFlow/internal/storage"
)

// watch polls the files served over the connection and pushes their changes,
// until done is closed. A file is watched from the first poll after it was served,
// a missing file is reported when it gets created.
func (s *Handler) watch(sc *channel.ServerConn, done <-chan struct{}) {
	ticker := time.NewTicker(s.config.WatchInterval)
	defer ticker.Stop()

	mtimes := map[string]int64{}
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
		}
		for _, path := range sc.Served() {
			var mtime int64
			stat, err := s.storage.Stat(path)
			if err != nil {
				if !errors.Is(err, storage.ErrNotFound) && !errors.Is(err, storage.ErrInvalidKey) {
					if s.config.Logger != nil {
						s.config.Logger.Warnf("watch %s: %v", path, err)
					}
					continue
				}
			} else {
				mtime = stat.ModTime().UnixNano()
			}
			prev, seen := mtimes[path]
			mtimes[path] = mtime
			if !seen || prev == mtime {
				continue
			}
			change := channel.Change{Path: path, Removed: mtime == 0}
			if err := sc.Notify(change); err != nil {
				return
			}
		}
	}
}
