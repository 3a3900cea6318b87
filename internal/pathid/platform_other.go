//go:build !windows

package pathid

// caseInsensitiveFS is true on platforms whose default filesystem folds
// case (Windows). Everywhere else paths compare case-sensitively once
// lexically normalized.
const caseInsensitiveFS = false
