package crypto

// MaxTargetLen is the number of leading bytes compared against a target.
const MaxTargetLen = 8

// MeetsTarget reports whether digest satisfies target.
//
// The first min(len(target), MaxTargetLen) bytes are compared as unsigned
// bytes, most significant first. A digest shorter than the compared prefix is
// zero-extended. The digest meets the target when it is less than or equal to
// it over that prefix, so an empty target accepts every digest.
func MeetsTarget(digest, target []byte) bool {
	n := len(target)
	if n > MaxTargetLen {
		n = MaxTargetLen
	}
	for i := 0; i < n; i++ {
		var d byte
		if i < len(digest) {
			d = digest[i]
		}
		switch {
		case d < target[i]:
			return true
		case d > target[i]:
			return false
		}
	}
	return true
}
