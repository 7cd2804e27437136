package domain

import "errors"

// Filesystem errors - 檔案系統層錯誤
var (
	// ErrNotFound indicates the requested path does not exist
	ErrNotFound = errors.New("resource not found")

	// ErrAlreadyExists indicates the resource already exists
	ErrAlreadyExists = errors.New("resource already exists")

	// ErrPermissionDenied indicates insufficient permissions or a path escaping the root
	ErrPermissionDenied = errors.New("permission denied")

	// ErrNotDirectory indicates expected a directory but got a file
	ErrNotDirectory = errors.New("not a directory")

	// ErrNotFile indicates expected a file but got a directory
	ErrNotFile = errors.New("not a file")
)

// Extraction errors - 封存檔讀取錯誤
var (
	// ErrArchiveTimeout indicates an archive took longer than the per-archive budget
	ErrArchiveTimeout = errors.New("archive processing timed out")

	// ErrTooManyEntries indicates an archive exceeds the entry-count ceiling
	ErrTooManyEntries = errors.New("archive has too many entries")

	// ErrEntryTooLarge indicates a matching entry exceeds the per-entry byte ceiling
	ErrEntryTooLarge = errors.New("archive entry too large")

	// ErrInvalidDocument indicates an inventory document could not be parsed
	ErrInvalidDocument = errors.New("invalid inventory document")
)

// Merge errors - 合併流程錯誤
var (
	// ErrNoArchives indicates no package archives were found under the roots
	ErrNoArchives = errors.New("no PAK files were found in the specified paths")

	// ErrNoDocuments indicates no relevant inventory documents were extracted
	ErrNoDocuments = errors.New("no relevant XML files were found in the PAKs")

	// ErrInvalidStrategy indicates an unknown resolution method
	ErrInvalidStrategy = errors.New("invalid resolution method")

	// ErrUnknownMod indicates a manual order references a mod id that was not scanned
	ErrUnknownMod = errors.New("unknown mod id")

	// ErrMergeInProgress indicates another merge holds the output lock
	ErrMergeInProgress = errors.New("merge already in progress")

	// ErrPendingState indicates a pending run file is missing or malformed
	ErrPendingState = errors.New("invalid pending run state")
)

// Config errors - 設定檔錯誤
var (
	// ErrConfigNotFound indicates config file not found
	ErrConfigNotFound = errors.New("config file not found")

	// ErrConfigInvalid indicates config file is malformed
	ErrConfigInvalid = errors.New("invalid config")
)
