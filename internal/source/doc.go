// Package source opens price files and splits them into rows.
//
// Files come from the exchange's SFTP drop (SFTPOpener) or the local disk
// (LocalOpener). CSVReader turns the byte stream into stockimport.Row values,
// skipping the header line and optionally decoding legacy Japanese encodings.
package source
