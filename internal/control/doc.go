// Package control provides inverter controllers and simple agents that
// drive an environment.
//
//   - [PI]: PI controller with output limits and back-calculation
//     anti-windup
//   - [Droop]: first-order droop characteristic
//   - [Zero], [Constant]: open-loop agents
//   - [CurrentPI]: dq current control for every inverter of a grid
//   - [VoltageDroop]: grid-forming P-V and Q droop for every inverter
//
// # Usage
//
//	agent := control.NewCurrentPI(params.NewPI(0.05, 10, -600, 600), 1e-4, refs)
//	agent.Reset(env.Columns())
//	obs, _ := e.Reset()
//	for {
//		obs, _, done, _, _ = e.Step(agent.Act(obs))
//		if done {
//			break
//		}
//	}
//
// [CurrentPI] and [VoltageDroop] implement [Tunable], so their gains can be
// changed between steps.
package control
