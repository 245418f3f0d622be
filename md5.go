package main

import (
	"crypto/md5"
	"encoding/hex"
	"io"
	"os"
)

// fileMD5 streams the file through MD5 and returns the lowercase hex
// digest. Synapse reports the same digest on its file handles, which is
// what makes this usable for change detection.
func fileMD5(localPath string) (string, error) {
	fd, openErr := os.Open(localPath)
	if openErr != nil {
		return "", openErr
	}
	defer fd.Close()

	hash := md5.New()
	buffer := make([]byte, 1024*1024)
	if _, copyErr := io.CopyBuffer(hash, fd, buffer); copyErr != nil {
		return "", copyErr
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}
