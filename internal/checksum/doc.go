// Package checksum fingerprints source files while they stream.
//
// The importer never holds a whole file in memory, so the digest is computed
// incrementally by wrapping the source reader. The resulting SHA-256 lands in
// the run report, which makes it possible to tell whether two runs read the
// same bytes.
package checksum
