// Package pagestore provides an embedded, page-oriented transactional store.
//
// A store is a directory holding a write-ahead log and a set of numbered data
// files made of 4096-byte pages. Transactions read and write whole pages;
// every write is durable in the WAL before the call returns and becomes
// visible to transactions that begin after its transaction commits.
//
// # Quick Start
//
//	st, _ := pagestore.Open("./data")
//	defer st.Close()
//
//	tx, _ := st.Begin()
//	file, _ := st.CreateFile(tx)
//	st.ExtendFile(tx, file, 1)
//	st.WritePage(tx, file, 0, &page)
//	st.Commit(tx)
//
// # Byte Access
//
// Stage returns a proxy that maps byte addresses onto pages, caches them for
// the transaction and writes each modified page once on Flush:
//
//	p := st.Stage(tx, file)
//	p.Write(4090, []byte("crosses a page boundary"))
//	p.Flush()
//
// # Durability Model
//
// Open runs crash recovery: the redo of every committed transaction found in
// the WAL is applied to the data files and the WAL is emptied. Checkpointing
// moves committed pages into the data files while the store runs, either by
// calling Checkpoint or in the background with WithCheckpointInterval.
package pagestore
