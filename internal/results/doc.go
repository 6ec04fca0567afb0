// Package results accumulates per-frame detections for a job and renders them
// in the line-oriented output format consumed next to the daemon:
//
//	<frameIndex>,<name1>,<count1>,<name2>,<count2>[,<left>,<top>,<right>,<bottom>]...
//
// Counts appear for every stage in declaration order, followed by the
// corners of every box of every stage in the same order.
package results
