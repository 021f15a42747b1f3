package domain

// ChangeKind identifies what happened to a watched path.
type ChangeKind uint8

const (
	// ChangeAdded indicates a file was created.
	ChangeAdded ChangeKind = iota
	// ChangeChanged indicates a file was modified.
	ChangeChanged
	// ChangeRemoved indicates a file was removed.
	ChangeRemoved
	// ChangeDirAdded indicates a directory was created.
	ChangeDirAdded
	// ChangeDirRemoved indicates a directory was removed.
	ChangeDirRemoved
)

// String returns the short name of the change kind.
func (k ChangeKind) String() string {
	switch k {
	case ChangeAdded:
		return "added"
	case ChangeChanged:
		return "changed"
	case ChangeRemoved:
		return "removed"
	case ChangeDirAdded:
		return "dirAdded"
	case ChangeDirRemoved:
		return "dirRemoved"
	default:
		return "unknown"
	}
}

// Describe returns the human readable status line for a change of this kind.
func (k ChangeKind) Describe(relPath string) string {
	switch k {
	case ChangeAdded:
		return "File has been added: " + relPath
	case ChangeRemoved:
		return "File has been removed: " + relPath
	case ChangeDirAdded:
		return "Directory has been added: " + relPath
	case ChangeDirRemoved:
		return "Directory has been removed: " + relPath
	default:
		return "File has been changed: " + relPath
	}
}

// ChangeEvent is a single mutation reported by the watcher.
type ChangeEvent struct {
	// Path is the absolute path of the file or directory that changed.
	Path string
	// Root is the watched directory the path was found under.
	Root string
	// Kind is the type of change that occurred.
	Kind ChangeKind
	// IsDirectory reports whether the path denotes a directory.
	IsDirectory bool
}
