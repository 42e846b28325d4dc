// Package simplefs implements a flat, FAT-style file system on a fixed-size
// block device.
//
// A device holds [disk.NumBlocks] blocks of [BlockSize] bytes, laid out as:
//
//	block 0        layout (magic, version, geometry, volume ID, CRC32-C)
//	blocks 1..8    allocation table, one int32 entry per data block
//	block 9        directory, 64 records of 32 bytes
//	block 10       CRC32-C of each metadata and parity block
//	blocks 11..12  Reed-Solomon parity over blocks 1..9
//	blocks 13..    data region
//
// Each file is a chain of data blocks linked through the allocation table.
// Allocation always takes the lowest free blocks.
//
// # Lifecycle
//
// [FS.Format] writes an empty file system. [FS.Mount] loads all metadata into
// memory, repairing up to two damaged metadata blocks from parity.
// File operations then touch only memory and data blocks; metadata is written
// back by [FS.Unmount]. Nothing is durable until Unmount returns.
//
//	fsys, err := simplefs.New(simplefs.Options{Driver: disk.NewMemDriver()})
//	if err != nil {
//	    return err
//	}
//	if err := fsys.Format("dev"); err != nil {
//	    return err
//	}
//	if err := fsys.Mount("dev"); err != nil {
//	    return err
//	}
//	defer fsys.Unmount("dev")
//
//	_ = fsys.Create("a.txt")
//	h, _ := fsys.Open("a.txt")
//	n, err := fsys.Write(h, []byte("hello"))
//
// # Handles
//
// Up to [MaxOpenFiles] handles may be open. Opening a file twice gives two
// handles with independent cursors; a file counts as open until its last
// handle is closed, and open files cannot be deleted. Persisted open flags
// are ignored at mount.
//
// # Errors
//
// Errors wrap the sentinels in errors.go; use [errors.Is]. Writes under space
// pressure place what fits and return the short count without an error.
package simplefs
