package images

import (
	"crypto/md5"
	"fmt"

	"gocv.io/x/gocv"
)

// MatChecksum generates a deterministic checksum of a Mat's pixels, used to
// verify that a stage left its inputs untouched.
//
// Arguments:
//   - mat: The Mat to compute the checksum for.
//
// Returns:
//   - string: A hex-encoded MD5 checksum, or "empty" for an empty Mat.
func MatChecksum(mat gocv.Mat) string {
	if mat.Empty() {
		return "empty"
	}

	hash := md5.New()
	hash.Write(mat.ToBytes())
	return fmt.Sprintf("%x", hash.Sum(nil))
}
