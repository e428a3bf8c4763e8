package memory

import "github.com/gobeaver/filewarden"

func init() {
	filewarden.RegisterDriver("memory", func(cfg *filewarden.Config) (filewarden.FileSystem, error) {
		return New(), nil
	})
}
