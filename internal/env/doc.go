// Package env implements the episode controller: a reinforcement
// learning style environment around a continuous-time model.
//
// An [Env] owns a model instance and advances it one fixed time slice per
// [Env.Step]. Each step pushes the action and scheduled parameters into
// the model, integrates the continuous state over the current interval,
// records the observation and evaluates the reward. An episode ends when
// the step limit is reached or the reward signals a failure (NaN, -Inf or
// undefined). Integration failures end the episode the same way instead
// of surfacing as errors.
//
// Lifecycle:
//
//	New -> Reset -> Step ... Step (done) -> Reset -> ...
//
// Step after done is tolerated: it logs a warning and returns the last
// observation with reward -Inf.
package env
