package domain

// EntryKind tells directories, archives and links apart while walking a mods root
type EntryKind uint8

const (
	KindFile EntryKind = iota
	KindDir
	KindSymlink
)

// DirEntry is one child of a listed directory
type DirEntry struct {
	// Path is slash-separated and relative to the mods root
	Path string
	Name string
	Kind EntryKind
	Size int64
}

func (e DirEntry) IsDir() bool  { return e.Kind == KindDir }
func (e DirEntry) IsFile() bool { return e.Kind == KindFile }
