package registry

import (
	"go.uber.org/fx"
)

var Module = fx.Module("registry",
	fx.Provide(
		NewRedisRegistry,
		func(r *RedisRegistry) Registrar { return r },
	),
)
