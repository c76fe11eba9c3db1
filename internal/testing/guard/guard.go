package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("VERIS_TEST_MODE") == "" {
			_ = os.Setenv("VERIS_TEST_MODE", "1")
		}
	})
}
