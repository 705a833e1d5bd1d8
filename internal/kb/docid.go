package kb

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
)

// WebDocID returns the document ID of a scraped page: "web_" plus the first
// 8 hex digits of the URL's MD5.
func WebDocID(url string) string {
	sum := md5.Sum([]byte(url))
	return "web_" + hex.EncodeToString(sum[:])[:8]
}

// FileDocID returns a stable document ID for a watched file. The path is
// cleaned first so equivalent spellings share an ID.
func FileDocID(path string) string {
	sum := sha256.Sum256([]byte(filepath.Clean(path)))
	return "file_" + hex.EncodeToString(sum[:])
}

// UploadDocID returns the document ID of a user upload with the given unique suffix.
func UploadDocID(suffix string) string {
	return "user_" + suffix
}
