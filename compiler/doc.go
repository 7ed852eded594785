/*
Package compiler drives the backend.

Process of compilation

Tree IR (ir) ->
	canonicalize ->
Canonical IR, no side effects inside expressions ->
	arrange jumps ->
Traces of basic blocks, false targets following ->
	select (maximal munch) ->
Instructions on virtual registers (asm) ->
	flow graph, liveness, coloring, spill and retry (df, regalloc) ->
Instructions with a register map ->
	finish frame ->
Listing
*/
package compiler
