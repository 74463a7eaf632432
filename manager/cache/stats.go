package cache

import "time"

type CacheStats struct {
	Hits      int
	Misses    int
	Evictions int

	Created time.Time
}
