// Package fancurve turns sensor values into fan speeds.
//
// A Curve is a set of (value, fan speed) points owned by one room and one
// parameter. Evaluation sorts the points by value, clamps below the first and
// above the last point, and interpolates linearly in between, rounding half
// away from zero. Curves with fewer than two points produce no speed.
//
// The Engine runs one evaluation per accepted reading and performs its side
// effects in order: append the speed to the room's actuation log, publish it
// on room/{id}, and, when the reading reaches the curve's critical value,
// notify the members of the room's environment. Side effects are best effort;
// a later one still runs when an earlier one fails.
//
// The Service is the read/update surface used by the admin API. Reading a
// missing curve provisions DefaultCurve through an insert that is a no-op on
// conflict, so concurrent first reads converge on a single stored row. The
// evaluation path never provisions curves.
package fancurve
