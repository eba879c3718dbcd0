// Package backend implements the two-pass stack-machine code generator of
// spec §4.3: a tree walker that emits textual assembly with a local-variable
// slot allocator and push/pop scope discipline around R_RBX.
package backend

import "fmt"

// Register names the four general registers of the target machine (spec §3
// "Backend context"): RAX carries a function's return value, RBX is the
// allocator high-water mark, RCX is scratch for address computation, and
// RDX holds the current frame's base.
type Register string

const (
	RAX Register = "RAX"
	RBX Register = "RBX"
	RCX Register = "RCX"
	RDX Register = "RDX"
)

// buffer accumulates emitted assembly text, one instruction per line.
type buffer struct {
	lines []string
}

func (b *buffer) raw(line string) { b.lines = append(b.lines, line) }

func (b *buffer) label(name string) { b.raw(":" + name) }

func (b *buffer) push(n float64) { b.raw(fmt.Sprintf("PUSH %s", formatOperand(n))) }

func (b *buffer) pushr(r Register) { b.raw(fmt.Sprintf("PUSHR %s", r)) }
func (b *buffer) popr(r Register)  { b.raw(fmt.Sprintf("POPR %s", r)) }

func (b *buffer) pushm(r Register) { b.raw(fmt.Sprintf("PUSHM [%s]", r)) }
func (b *buffer) popm(r Register)  { b.raw(fmt.Sprintf("POPM [%s]", r)) }

func (b *buffer) add()  { b.raw("ADD") }
func (b *buffer) sub()  { b.raw("SUB") }
func (b *buffer) mult() { b.raw("MULT") }
func (b *buffer) del()  { b.raw("DEL") }
func (b *buffer) pow()  { b.raw("POW") }

func (b *buffer) out() { b.raw("OUT") }
func (b *buffer) in()  { b.raw("IN") }

func (b *buffer) jump(label string) { b.raw(fmt.Sprintf("JUMP :%s", label)) }
func (b *buffer) je(label string)   { b.raw(fmt.Sprintf("JE :%s", label)) }
func (b *buffer) ja(label string)   { b.raw(fmt.Sprintf("JA :%s", label)) }
func (b *buffer) jb(label string)   { b.raw(fmt.Sprintf("JB :%s", label)) }

func (b *buffer) call(label string) { b.raw(fmt.Sprintf("CALL :%s", label)) }
func (b *buffer) ret()              { b.raw("RET") }
func (b *buffer) pop()              { b.raw("POP") }
func (b *buffer) hlt()              { b.raw("HLT") }

func (b *buffer) String() string {
	var out string
	for _, l := range b.lines {
		out += l + "\n"
	}
	return out
}

func formatOperand(n float64) string {
	if n == float64(int64(n)) {
		return fmt.Sprintf("%d", int64(n))
	}
	return fmt.Sprintf("%g", n)
}
