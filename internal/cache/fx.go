package cache

import "go.uber.org/fx"

// Module wires the Redis-backed read caches.
var Module = fx.Module("cache",
	fx.Provide(NewPopularCache),
)
