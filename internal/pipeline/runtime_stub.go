//go:build !govips || !cgo

package pipeline

func Startup() error {
	return nil
}

func Shutdown() {}

func newTransformer(workers int) (Transformer, error) {
	return stdlibTransformer{workers: workers}, nil
}
