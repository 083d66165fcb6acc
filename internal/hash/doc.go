// Package hash provides the CRC32-Castagnoli checksums that guard persisted
// segment files.
//
// One-shot:
//
//	sum := hash.CRC32C(data)
//	ok := hash.Verify(data, sum)
//
// Streaming, while writing a column file:
//
//	cw := hash.NewWriter(f)
//	w := bufio.NewWriter(cw)
//	// ... write, then w.Flush()
//	sum := cw.Sum32()
package hash
