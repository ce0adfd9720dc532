package toolchain

import (
	"path/filepath"
)

// Command is a generated compile invocation.
type Command struct {
	Unit   Unit
	Object string
	Rsp    string
	Line   string
}

// Generator builds command lines and accumulates the objects to link.
type Generator struct {
	tc      Toolchain
	objDir  string
	objects []string
}

// NewGenerator writes objects into objDir.
func NewGenerator(tc Toolchain, objDir string) *Generator {
	return &Generator{tc: tc, objDir: objDir}
}

// Compile returns the command compiling u with flags from rsp, and records
// its object for the link step.
func (g *Generator) Compile(u Unit, rsp string) Command {
	obj := filepath.Join(g.objDir, u.Stem+".obj")
	g.objects = append(g.objects, obj)
	line := Quote(g.tc.GCC()) +
		" @" + Quote(rsp) +
		" -MD -MT " + Quote(obj) +
		" -MF " + Quote(obj+".d") +
		" -o " + Quote(obj) +
		" -c " + Quote(u.Source)
	return Command{Unit: u, Object: obj, Rsp: rsp, Line: line}
}

// Objects returns the objects of every Compile call so far, in order.
func (g *Generator) Objects() []string {
	return append([]string(nil), g.objects...)
}

// LinkCommand links with the objects and flags listed in rsp.
func (g *Generator) LinkCommand(rsp, elf string) string {
	return Quote(g.tc.GCC()) + " @" + Quote(rsp) + " -o " + Quote(elf)
}

// BinCommand extracts a raw binary image.
func (g *Generator) BinCommand(elf, bin string) string {
	return Quote(g.tc.Objcopy()) + " -Obinary " + Quote(elf) + " " + Quote(bin)
}

// HexCommand extracts an Intel HEX image.
func (g *Generator) HexCommand(elf, hex string) string {
	return Quote(g.tc.Objcopy()) + " -Oihex " + Quote(elf) + " " + Quote(hex)
}
