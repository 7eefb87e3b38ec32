// Package location provides the environment and room hierarchy.
//
// Users are members of Environments, which contain Rooms. Sensors and devices
// are assigned to rooms in the device package. The fan-curve engine resolves
// a room's environment to find whom to notify.
//
// # Thread Safety
//
// SQLiteRepository is safe for concurrent use when bound to the pool. When
// bound to a *sql.Conn it shares that connection's single-goroutine rules.
package location
