package utils

import "io"

type readSeekNopCloser struct {
	io.ReadSeeker
}

func (readSeekNopCloser) Close() error {
	return nil
}

// ReadSeekNopCloser 包装ReadSeeker为ReadCloser且保留Seek能力,
// GET侧据此走http.ServeContent以支持Range
func ReadSeekNopCloser(r io.ReadSeeker) io.ReadCloser {
	return readSeekNopCloser{r}
}
