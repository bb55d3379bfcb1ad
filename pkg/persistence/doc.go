// Package persistence stores host-side state that must survive restarts.
//
// KV is an opaque key-value store with a JSON file implementation (FileKV)
// and an in-memory one (MemoryKV). PairingStore keeps one PairedDevice
// record per peripheral on top of a KV. The simulator uses the same KV to
// hold its flash image.
package persistence
