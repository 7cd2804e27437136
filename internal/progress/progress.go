package progress

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Reporter receives extraction progress. Implementations must not block the caller.
type Reporter interface {
	// SetTotal sets the number of archives that will be processed
	SetTotal(archives int)
	// StartArchive begins processing one archive
	StartArchive(archive, modID string)
	// Entry reports one processed document entry of the current archive
	Entry(entry string)
	// CompleteArchive marks the current archive as done
	CompleteArchive()
	// Error reports a per-archive failure; processing continues with the next archive
	Error(err error)
}

// Callback is a function that receives progress updates
type Callback func(update Update)

// Update represents a progress update
type Update struct {
	Type              UpdateType
	Archive           string
	ModID             string
	Entry             string
	EntriesProcessed  int
	ArchivesCompleted int
	ArchivesTotal     int
	Error             error
}

// Label returns "<modId> - <entry>" for entry updates, the archive path otherwise
func (u Update) Label() string {
	if u.Type == UpdateEntry {
		return u.ModID + " - " + u.Entry
	}
	return u.Archive
}

// UpdateType indicates the type of progress update
type UpdateType int

const (
	UpdateArchiveStart UpdateType = iota
	UpdateEntry
	UpdateArchiveDone
	UpdateArchiveError
)

// String returns a short name for logs
func (t UpdateType) String() string {
	switch t {
	case UpdateArchiveStart:
		return "archive-start"
	case UpdateEntry:
		return "entry"
	case UpdateArchiveDone:
		return "archive-done"
	case UpdateArchiveError:
		return "archive-error"
	default:
		return "unknown"
	}
}

// CallbackReporter implements Reporter with a callback function
type CallbackReporter struct {
	callback          Callback
	mu                sync.Mutex
	archive           string
	modID             string
	entries           int
	archivesTotal     int
	archivesCompleted int
}

// NewCallbackReporter creates a new CallbackReporter
func NewCallbackReporter(callback Callback) *CallbackReporter {
	return &CallbackReporter{callback: callback}
}

// SetTotal sets the total number of archives
func (r *CallbackReporter) SetTotal(archives int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.archivesTotal = archives
}

// StartArchive begins tracking a new archive
func (r *CallbackReporter) StartArchive(archive, modID string) {
	r.mu.Lock()
	r.archive = archive
	r.modID = modID
	r.entries = 0
	update := r.snapshot(UpdateArchiveStart)
	r.mu.Unlock()

	r.emit(update)
}

// Entry reports one processed entry
func (r *CallbackReporter) Entry(entry string) {
	r.mu.Lock()
	r.entries++
	update := r.snapshot(UpdateEntry)
	update.Entry = entry
	r.mu.Unlock()

	r.emit(update)
}

// CompleteArchive marks the current archive as complete
func (r *CallbackReporter) CompleteArchive() {
	r.mu.Lock()
	r.archivesCompleted++
	update := r.snapshot(UpdateArchiveDone)
	r.mu.Unlock()

	r.emit(update)
}

// Error reports a failure on the current archive. The archive still counts as completed.
func (r *CallbackReporter) Error(err error) {
	r.mu.Lock()
	r.archivesCompleted++
	update := r.snapshot(UpdateArchiveError)
	update.Error = err
	r.mu.Unlock()

	r.emit(update)
}

// snapshot must be called with r.mu held
func (r *CallbackReporter) snapshot(t UpdateType) Update {
	return Update{
		Type:              t,
		Archive:           r.archive,
		ModID:             r.modID,
		EntriesProcessed:  r.entries,
		ArchivesCompleted: r.archivesCompleted,
		ArchivesTotal:     r.archivesTotal,
	}
}

// emit calls the callback outside the lock to prevent deadlock
func (r *CallbackReporter) emit(update Update) {
	if r.callback != nil {
		r.callback(update)
	}
}

// ChannelReporter publishes updates on a buffered channel.
// When the buffer is full the update is dropped so extraction never waits on a slow consumer.
type ChannelReporter struct {
	*CallbackReporter
	ch      chan Update
	dropped atomic.Int64
	once    sync.Once
	closed  atomic.Bool
}

// DefaultBufferSize is the channel capacity used when size <= 0
const DefaultBufferSize = 64

// NewChannelReporter creates a ChannelReporter with the given buffer size
func NewChannelReporter(size int) *ChannelReporter {
	if size <= 0 {
		size = DefaultBufferSize
	}
	cr := &ChannelReporter{ch: make(chan Update, size)}
	cr.CallbackReporter = NewCallbackReporter(cr.publish)
	return cr
}

func (c *ChannelReporter) publish(update Update) {
	if c.closed.Load() {
		return
	}
	select {
	case c.ch <- update:
	default:
		c.dropped.Add(1)
	}
}

// Updates returns the receive side of the channel
func (c *ChannelReporter) Updates() <-chan Update {
	return c.ch
}

// Dropped returns how many updates were discarded because the buffer was full
func (c *ChannelReporter) Dropped() int64 {
	return c.dropped.Load()
}

// Close closes the channel. Publishing after Close is a no-op.
// Close must not race with in-flight reporting; call it after extraction returns.
func (c *ChannelReporter) Close() {
	c.once.Do(func() {
		c.closed.Store(true)
		close(c.ch)
	})
}

// Multi fans out to several reporters
type Multi []Reporter

func (m Multi) SetTotal(archives int) {
	for _, r := range m {
		r.SetTotal(archives)
	}
}

func (m Multi) StartArchive(archive, modID string) {
	for _, r := range m {
		r.StartArchive(archive, modID)
	}
}

func (m Multi) Entry(entry string) {
	for _, r := range m {
		r.Entry(entry)
	}
}

func (m Multi) CompleteArchive() {
	for _, r := range m {
		r.CompleteArchive()
	}
}

func (m Multi) Error(err error) {
	for _, r := range m {
		r.Error(err)
	}
}

// NullReporter is a no-op reporter
type NullReporter struct{}

func (NullReporter) SetTotal(archives int)              {}
func (NullReporter) StartArchive(archive, modID string) {}
func (NullReporter) Entry(entry string)                 {}
func (NullReporter) CompleteArchive()                   {}
func (NullReporter) Error(err error)                    {}

// FormatBytes formats bytes into human-readable string
func FormatBytes(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/GB)
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/MB)
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/KB)
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
