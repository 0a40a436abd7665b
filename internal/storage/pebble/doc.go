// Package pebblestore wraps Pebble for the audit journal: it applies the
// configured sync policy to commits, reports timings to an optional hook and
// can run entirely in memory.
//
//	db, err := pebblestore.Open(pebblestore.Options{InMemory: true})
//	if err != nil { /* handle */ }
//	defer db.Close()
//
//	b, _ := db.NewBatch()
//	_ = b.Set([]byte("k"), []byte("v"), nil)
//	_ = db.CommitBatch(b)
//	b.Close()
package pebblestore
