package pagestore_test

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/hupe1980/pagestore"
	"github.com/hupe1980/pagestore/wal"
)

// Example demonstrates a committed page write surviving a restart.
func Example() {
	dir, err := os.MkdirTemp("", "pagestore-example-*")
	if err != nil {
		log.Fatal(err)
	}
	defer os.RemoveAll(dir)

	st, err := pagestore.Open(dir, pagestore.WithCompression(wal.CompressionLZ4))
	if err != nil {
		log.Fatal(err)
	}

	tx, _ := st.Begin()
	file, _ := st.CreateFile(tx)
	_, _ = st.ExtendFile(tx, file, 1)

	var page pagestore.Page
	copy(page[:], "hello")
	if err := st.WritePage(tx, file, 0, &page); err != nil {
		log.Fatal(err)
	}
	if err := st.Commit(tx); err != nil {
		log.Fatal(err)
	}
	_ = st.Close()

	// Reopening replays the committed write from the WAL.
	st, err = pagestore.Open(dir)
	if err != nil {
		log.Fatal(err)
	}
	defer st.Close()

	fmt.Println("replayed:", st.LastRecovery().Replayed)

	tx, _ = st.Begin()
	got, _ := st.ReadPage(tx, file, 0)
	fmt.Println(string(got[:5]))
	// Output:
	// replayed: 3
	// hello
}

// Example_stage demonstrates byte-addressed writes that cross a page boundary.
func Example_stage() {
	dir, err := os.MkdirTemp("", "pagestore-example-*")
	if err != nil {
		log.Fatal(err)
	}
	defer os.RemoveAll(dir)

	st, err := pagestore.Open(dir)
	if err != nil {
		log.Fatal(err)
	}
	defer st.Close()

	tx, _ := st.Begin()
	file, _ := st.CreateFile(tx)
	_, _ = st.ExtendFile(tx, file, 2)

	p := st.Stage(tx, file)
	if err := p.Write(pagestore.PageSize-3, []byte("boundary")); err != nil {
		log.Fatal(err)
	}
	fmt.Println("dirty pages:", p.Dirty())
	if err := p.Flush(); err != nil {
		log.Fatal(err)
	}
	_ = st.Commit(tx)

	steps, _ := st.Checkpoint(context.Background())
	fmt.Println("checkpoint steps:", steps)
	// Output:
	// dirty pages: [0 1]
	// checkpoint steps: 5
}
