package catalog

import (
	"encoding/hex"
	"encoding/json"

	"github.com/zeebo/blake3"
)

// Fingerprint returns a BLAKE3 digest of every record in ID order. It changes
// whenever any record or the featured cap changes and is stable otherwise, so
// presentation clients can use it as a cache validator.
func (c *Catalog) Fingerprint() string {
	h := blake3.New()
	enc := json.NewEncoder(h)
	_ = enc.Encode(c.featuredLimit)
	for _, app := range c.All() {
		// App only holds strings and bools; encoding cannot fail.
		_ = enc.Encode(app)
	}
	sum := h.Sum(nil)
	return hex.EncodeToString(sum[:16])
}
