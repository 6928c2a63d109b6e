// Package reload applies configuration changes to a running registry. A
// Poller notices edits to the config file and a Handler re-reads it and
// pushes the hot-reloadable sections (permissions and group switches).
package reload

import (
	"context"
	"os"
	"time"
)

const defaultPollInterval = 5 * time.Second

// Poller reports modifications of one file by polling its size and
// modification time. Editors that replace the file are handled because
// only the path is tracked.
type Poller struct {
	path     string
	interval time.Duration
}

// NewPoller creates a poller. An interval of zero or less uses five
// seconds.
func NewPoller(path string, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	return &Poller{path: path, interval: interval}
}

type fileStamp struct {
	mod  time.Time
	size int64
}

func (p *Poller) stamp() (fileStamp, bool) {
	info, err := os.Stat(p.path)
	if err != nil {
		return fileStamp{}, false
	}
	return fileStamp{mod: info.ModTime(), size: info.Size()}, true
}

// Run calls onChange each time the file changes, until ctx ends. A file
// that disappears is ignored until it comes back.
func (p *Poller) Run(ctx context.Context, onChange func()) {
	last, _ := p.stamp()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cur, ok := p.stamp()
			if !ok || cur == last {
				continue
			}
			last = cur
			onChange()
		}
	}
}
