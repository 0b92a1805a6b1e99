package repo

import "go.uber.org/fx"

// Module wires the in-memory repository implementations. A deployment
// backed by a real store swaps these providers for ones returning a
// database-backed UserRepo/DeviceRepo/TimeSeriesRepo without touching any
// consumer, since every consumer depends on the interface only.
var Module = fx.Module("repo",
	fx.Provide(
		func() UserRepo { return NewInMemoryUserRepo() },
		func() DeviceRepo { return NewInMemoryDeviceRepo() },
		func() TimeSeriesRepo { return NewInMemoryTimeSeriesRepo() },
	),
)
