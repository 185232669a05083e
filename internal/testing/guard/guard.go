// Package guard flips the binaries into test mode. Test files import it for
// its side effect so main() returns before dialing Postgres or Redis.
package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("INVENTORY_TEST_MODE") == "" {
			_ = os.Setenv("INVENTORY_TEST_MODE", "1")
		}
	})
}
