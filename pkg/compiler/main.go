// Package compiler lowers an AST (package ast) to RISC-V assembly text for
// a machine with six argument registers a0..a5, a frame pointer, and two
// fixed expression registers t0 (result) and t1 (left operand).
//
// Pipeline: AST → Validate → Generate → assembly text (→ asm.Assemble)
package compiler
