// Package panel locates narrative frames on a scanned page and orders them for
// narration. Segmentation works on a binarized intensity mask: only the outer
// boundary of each ink region counts, so artwork nested inside a bordered frame
// never produces a panel of its own. Panels are ordered top band first and
// right-to-left within a band (manga convention).
package panel
