package local

import "github.com/gobeaver/filewarden"

func init() {
	filewarden.RegisterDriver("local", func(cfg *filewarden.Config) (filewarden.FileSystem, error) {
		return New(cfg.BasePath)
	})
}
