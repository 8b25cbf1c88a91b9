package preflight

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/dustin/go-humanize"

	"github.com/Aman-CERP/searchsync/internal/lock"
)

// MinDiskSpaceBytes is the minimum free space required under the index path (100MB).
const MinDiskSpaceBytes = 100 * 1024 * 1024

// existingAncestor returns path or its nearest existing parent.
func existingAncestor(path string) string {
	for {
		if _, err := os.Stat(path); err == nil {
			return path
		}
		parent := filepath.Dir(path)
		if parent == path {
			return path
		}
		path = parent
	}
}

// CheckDiskSpace checks free space on the filesystem holding path.
func (c *Checker) CheckDiskSpace(path string) CheckResult {
	result := CheckResult{Name: "disk_space", Required: true}
	if path == "" {
		result.Status = StatusPass
		result.Message = "index kept in memory"
		return result
	}

	var stat syscall.Statfs_t
	if err := syscall.Statfs(existingAncestor(path), &stat); err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("failed to check disk space: %v", err)
		return result
	}

	available := stat.Bavail * uint64(stat.Bsize)
	result.Message = fmt.Sprintf("%s free (minimum: %s)", humanize.IBytes(available), humanize.IBytes(MinDiskSpaceBytes))
	if available < MinDiskSpaceBytes {
		result.Status = StatusFail
		return result
	}
	result.Status = StatusPass
	return result
}

// CheckIndexPath checks that the index directory can be created and written.
func (c *Checker) CheckIndexPath() CheckResult {
	result := CheckResult{Name: "index_path", Required: true}
	dir := c.cfg.Index.Path
	if dir == "" {
		result.Status = StatusPass
		result.Message = "index kept in memory"
		return result
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("cannot create %s: %v", dir, err)
		return result
	}
	f, err := os.CreateTemp(dir, ".preflight-*")
	if err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("%s is not writable: %v", dir, err)
		return result
	}
	_ = f.Close()
	_ = os.Remove(f.Name())

	result.Status = StatusPass
	result.Message = fmt.Sprintf("%s writable (%s backend)", dir, c.cfg.Index.Backend)
	return result
}

// CheckIndexLock reports whether a poller already holds the index lock.
func (c *Checker) CheckIndexLock() CheckResult {
	result := CheckResult{Name: "index_lock"}
	if c.cfg.Index.Path == "" {
		result.Status = StatusPass
		result.Message = "not used for in-memory indexes"
		return result
	}
	l := lock.New(c.cfg.Index.Path)
	ok, err := l.TryLock()
	if err != nil {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("cannot probe lock: %v", err)
		return result
	}
	if !ok {
		result.Status = StatusWarn
		result.Message = "held by a running poller"
		if pid, found := l.Owner(); found {
			result.Message += " (pid " + strconv.Itoa(pid) + ")"
		}
		return result
	}
	_ = l.Unlock()
	result.Status = StatusPass
	result.Message = "free"
	return result
}
