/*
Package charmarkov implements a fixed-order character-level Markov model.

A model is built in one pass over a training corpus: every window of
`order` characters is mapped to a frequency count of the characters that
follow it, and the counts are then normalized into probability
distributions. Text is generated by repeatedly sampling from the
distribution keyed by the trailing window and sliding the window forward.

The model is deliberately simple: no smoothing, no back-off across orders,
and no fallback for histories that never occurred in training. A built
model is immutable and safe for concurrent generation, since generation
never mutates it.
*/
package charmarkov
