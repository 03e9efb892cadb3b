// Command pagectl inspects and maintains a pagestore directory offline.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"text/tabwriter"

	"github.com/alecthomas/kong"

	"github.com/hupe1980/pagestore"
	"github.com/hupe1980/pagestore/core"
	"github.com/hupe1980/pagestore/txn"
	"github.com/hupe1980/pagestore/wal"
)

// Globals holds flags shared by every command.
type Globals struct {
	LogLevel  string `name:"log-level" default:"info" enum:"debug,info,warn,error" help:"Minimum log level"`
	LogFormat string `name:"log-format" default:"text" enum:"text,json" help:"Log output format"`

	Out io.Writer `kong:"-"`
	Err io.Writer `kong:"-"`
}

// CLI defines the command-line interface for pagectl.
type CLI struct {
	Globals

	Recover    RecoverCmd    `cmd:"" help:"Run crash recovery and print what was replayed"`
	Checkpoint CheckpointCmd `cmd:"" help:"Recover, then checkpoint until the WAL is empty"`
	Dump       DumpCmd       `cmd:"" help:"Print every decodable WAL record"`
	Stat       StatCmd       `cmd:"" help:"List data files and the WAL size"`
}

func (g *Globals) logger() *pagestore.Logger {
	var level slog.Level
	_ = level.UnmarshalText([]byte(g.LogLevel))
	opts := &slog.HandlerOptions{Level: level}
	if g.LogFormat == "json" {
		return pagestore.NewLogger(slog.NewJSONHandler(g.Err, opts))
	}
	return pagestore.NewLogger(slog.NewTextHandler(g.Err, opts))
}

func (g *Globals) open(dir string) (*pagestore.Store, error) {
	return pagestore.Open(dir, pagestore.WithLogger(g.logger()))
}

// RecoverCmd runs crash recovery.
type RecoverCmd struct {
	Dir string `arg:"" help:"Store directory" type:"existingdir"`
}

// Run executes the recover command.
func (c *RecoverCmd) Run(g *Globals) error {
	st, err := g.open(c.Dir)
	if err != nil {
		return err
	}
	defer st.Close()

	r := st.LastRecovery()
	fmt.Fprintf(g.Out, "scanned=%d replayed=%d discarded=%d committed=%d torn_tail=%t\n",
		r.Scanned, r.Replayed, r.Discarded, r.Committed, r.TornTail)
	return nil
}

// CheckpointCmd recovers and drains the WAL.
type CheckpointCmd struct {
	Dir string `arg:"" help:"Store directory" type:"existingdir"`
}

// Run executes the checkpoint command.
func (c *CheckpointCmd) Run(g *Globals) error {
	st, err := g.open(c.Dir)
	if err != nil {
		return err
	}
	defer st.Close()

	steps, err := st.Checkpoint(context.Background())
	if err != nil {
		return err
	}
	s := st.Stats()
	fmt.Fprintf(g.Out, "steps=%d pending=%d wal_bytes=%d\n", steps, s.PendingRecords, s.WALSize)
	return nil
}

// DumpCmd prints the WAL.
type DumpCmd struct {
	Dir string `arg:"" help:"Store directory" type:"existingdir"`
}

// Run executes the dump command.
func (c *DumpCmd) Run(g *Globals) error {
	path := filepath.Join(c.Dir, txn.WALFileName)
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("no WAL in %s: %w", c.Dir, err)
	}
	w, err := wal.Open(nil, path, wal.DefaultOptions())
	if err != nil {
		return err
	}
	defer w.Close()

	tw := tabwriter.NewWriter(g.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "OFFSET\tKIND\tTXN\tFILE\tPAGE\tDELTA\tEXTENT")
	res, err := w.Replay(func(off core.WalOffset, e *wal.Event) error {
		switch {
		case e.Kind == wal.KindModifyPage:
			fmt.Fprintf(tw, "%d\t%s\t%d\t%d\t%d\t-\t-\n", off, e.Kind, e.Txn, e.File, e.Page)
		case e.Kind == wal.KindExtendFile:
			fmt.Fprintf(tw, "%d\t%s\t%d\t%d\t-\t%d\t%d\n", off, e.Kind, e.Txn, e.File, e.Delta, e.Extent)
		case e.Kind.IsFileEvent():
			fmt.Fprintf(tw, "%d\t%s\t%d\t%d\t-\t-\t-\n", off, e.Kind, e.Txn, e.File)
		default:
			fmt.Fprintf(tw, "%d\t%s\t%d\t-\t-\t-\t-\n", off, e.Kind, e.Txn)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(g.Out, "records=%d valid_bytes=%d torn_tail=%t\n", res.Records, res.ValidSize, res.TornTail)
	return nil
}

// StatCmd lists the store directory.
type StatCmd struct {
	Dir string `arg:"" help:"Store directory" type:"existingdir"`
}

// Run executes the stat command.
func (c *StatCmd) Run(g *Globals) error {
	entries, err := os.ReadDir(c.Dir)
	if err != nil {
		return err
	}

	type dataFile struct {
		id    uint64
		bytes int64
	}
	var (
		files    []dataFile
		walBytes int64
	)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return err
		}
		if e.Name() == txn.WALFileName {
			walBytes = info.Size()
			continue
		}
		id, err := strconv.ParseUint(e.Name(), 10, 64)
		if err != nil {
			continue
		}
		files = append(files, dataFile{id: id, bytes: info.Size()})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].id < files[j].id })

	tw := tabwriter.NewWriter(g.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FILE\tPAGES\tBYTES")
	for _, f := range files {
		fmt.Fprintf(tw, "%d\t%d\t%d\n", f.id, f.bytes/pagestore.PageSize, f.bytes)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(g.Out, "wal_bytes=%d\n", walBytes)
	return nil
}

func newParser(cli *CLI) (*kong.Kong, error) {
	return kong.New(cli,
		kong.Name("pagectl"),
		kong.Description("Inspect and maintain a pagestore directory"),
		kong.UsageOnError(),
	)
}

func run(args []string, stdout, stderr io.Writer) error {
	cli := CLI{}
	parser, err := newParser(&cli)
	if err != nil {
		return err
	}
	ctx, err := parser.Parse(args)
	if err != nil {
		return err
	}
	cli.Out, cli.Err = stdout, stderr
	return ctx.Run(&cli.Globals)
}

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "pagectl:", err)
		os.Exit(1)
	}
}
