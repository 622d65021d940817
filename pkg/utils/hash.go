package utils

import (
	"crypto/md5"
	"encoding/hex"
	"io"
	"os"
)

// stableNameLength is the number of hex characters kept for slot-derived names.
const stableNameLength = 12

// ContentHash returns the hex MD5 digest of data. It identifies byte-identical
// images regardless of their source URL.
func ContentHash(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

// CalculateFileMD5 computes the MD5 digest of a file's content.
func CalculateFileMD5(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hash := md5.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}

// StableName derives a fixed-length hex name from an arbitrary key.
func StableName(key string) string {
	sum := md5.Sum([]byte(key))
	return hex.EncodeToString(sum[:])[:stableNameLength]
}
