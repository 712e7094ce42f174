package normalizer

import "bytes"

// bytesReader adapts a raw payload to io.Reader without pulling in a named
// import alias collision with the bytes package used elsewhere in callers.
func bytesReader(b []byte) *bytes.Reader {
	return bytes.NewReader(b)
}
