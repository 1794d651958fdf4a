package kiln

// Copy performs a synchronous byte copy between host memory and
// buffers of the default context, direction selected by mode.
func Copy(dst, src any, nbytes int, mode CopyMode) error {
	c, err := Default()
	if err != nil {
		return err
	}
	return c.Copy(dst, src, nbytes, mode)
}
