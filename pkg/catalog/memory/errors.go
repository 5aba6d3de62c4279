package memory

import (
	"fmt"

	"github.com/marmos91/blobgc/pkg/loop"
)

// errForeignKey mimics a foreign key violation, which the Postgres catalog
// reports as transient.
func errForeignKey(constraint string, id int64) error {
	return loop.Transient(fmt.Errorf("foreign key violation on %s for id %d", constraint, id))
}
