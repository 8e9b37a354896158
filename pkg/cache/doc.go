// Package cache is the on-disk response cache for the vendor API.
//
// Each entry is one file named after the SHA-256 of its key and holds the
// raw JSON body exactly as received. Entries never expire; they stay until
// removed with Delete or Clear. Writes go to a temp file in the same
// directory, are synced, then renamed over the target.
//
//	c, err := cache.New(dir, cache.WithMemory(256))
//	key, _ := cache.KeyFor(requestURL)
//	if doc, ok, err := c.Get(key); err == nil && ok {
//		return doc, nil
//	}
package cache
