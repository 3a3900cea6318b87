//go:build windows

package pathid

const caseInsensitiveFS = true
