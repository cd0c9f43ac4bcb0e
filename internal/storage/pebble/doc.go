// Package pebblestore wraps Pebble with an fsync policy, prefix scans and a
// small metrics hook. flolog keeps its consumer cursors here; message data
// never goes through Pebble.
//
//	db, err := pebblestore.Open(pebblestore.Options{
//	    DataDir: filepath.Join(dataDir, "cursors"),
//	    Fsync:   pebblestore.FsyncModeAlways,
//	})
//	if err != nil { /* handle */ }
//	defer db.Close()
//
//	_ = db.Set([]byte("k"), []byte("v"))
//	_ = db.ScanPrefix([]byte("k"), func(k, v []byte) error { return nil })
package pebblestore
