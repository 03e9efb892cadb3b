// Package fs provides filesystem abstractions for testability and fault injection.
//
// The package defines two interfaces:
//
//   - [File]: an open file with positional read/write, truncate and sync
//   - [FileSystem]: the directory operations the store performs
//
// # Implementations
//
//   - [LocalFS]: production implementation on top of the os package
//   - [FaultyFS]: test utility that injects write, sync and truncate failures
//
// Production code uses fs.Default:
//
//	f, err := fs.Default.OpenFile(path, os.O_RDWR|os.O_CREATE, 0600)
//
// Tests inject [FaultyFS] to simulate a crash in the middle of a WAL append:
//
//	ffs := fs.NewFaultyFS(nil)
//	ffs.AddRule("WAL", fs.Fault{FailAfterBytes: 100, Torn: true})
//
// Operations take no context.Context. Local file operations are not
// interruptible at the syscall level.
package fs
