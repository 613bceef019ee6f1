// Package fmu defines the contract of the black-box model driven by the
// stepping engine and guards it with an explicit lifecycle.
//
// A [Model] exposes continuous states, derivatives and directional
// derivatives, plus named real-valued variables addressed by [Ref].
// [Instance] enforces the call order a model expects:
//
//	CREATED -> INITIALIZING -> EVENT_SETTLING -> CONTINUOUS
//
// Any error reported by the model moves the instance to FAILED; only
// Reset leaves FAILED. [Synchronizer] resolves variable names once and
// moves input and output vectors across the boundary.
package fmu
