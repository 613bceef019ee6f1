// Package dynamo provides the shared primitives of the simulation engine.
//
// It defines the value types exchanged between the episode controller,
// the integration step and the adaptive solvers:
//
//   - [State]: continuous-state vector read from and written to a model
//   - [Derivative]: right-hand side dX/dt = f(t, X) of an ODE
//   - [SimulationError]: error carrying step and time context
//
// Sentinel errors are declared in errors.go and are matched with
// [errors.Is] by callers.
package dynamo
