// Package coldb writes and reads layer files: immutable columnar files for
// the nested-relational store, streamed out block by block.
//
// A layer file is organised in four levels.
//
// A layer is the file. It opens with an eight byte magic number and ends with
// the layer meta, which lists where each block ends and carries the column
// catalogue: a label, a logical type and an optional role per column.
//
// A block holds up to 65535 rows of every column, one track per column, and
// ends with the block meta: the smallest and largest value, row count and end
// offset of each track. For int and bit tracks the ranges let a scan skip
// whole blocks. Flo ranges are the IEEE-754 bits of the smallest and largest
// value and bin ranges are eight byte prefixes read as signed integers, so
// they do not order across signs and lo may be greater than hi.
//
// A track holds one column of one block. Int tracks that are arithmetic
// sequences (row*n) or stepped sequences (row/n) are implicit and store only
// a base and a factor. Bit tracks store one 256-bit bitmap per chunk. All
// other tracks are dictionary encoded: a sorted dictionary of the distinct
// values, then one code per row, then a heap holding bins longer than eight
// bytes. Dictionaries are local to their track, so a dictionary comparison
// never needs to load another block.
//
// A chunk holds 256 rows (or 256 dictionary entries). Dictionary entries are
// frame-of-reference encoded against the chunk minimum in 1, 2, 4 or 8 byte
// words. Codes are stored in a low byte lane and, when any code needs it, a
// high byte lane, and are run-end encoded when that is smaller.
//
// Every level ends with a footer whose last eight bytes give its length, so
// each level is found by reading backwards from the end of its parent.
//
// Write a layer with a LayerWriter, beginning one block at a time and writing
// its tracks in column order. Read it back with OpenLayer over any
// io.ReaderAt; column reads decode the blocks concurrently.
package coldb
