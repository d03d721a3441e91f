package main

import (
	"bytes"
	"fmt"
	"image/color"
	"log"
	"os"
	"strings"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"github.com/hajimehoshi/ebiten/v2/text/v2"
	"golang.org/x/image/font/basicfont"

	"rvgen/pkg/asm"
	"rvgen/pkg/ast"
	"rvgen/pkg/compiler"
	"rvgen/pkg/cpu"
	"rvgen/pkg/grid"
	"rvgen/pkg/utils"
)

const (
	screenWidth  = 512
	screenHeight = 390
	charWidth    = 7
	charHeight   = 13
	cols         = screenWidth / charWidth
	rows         = screenHeight/charHeight - 1 // last row is the status line

	stepsPerFrame = 10000
)

var (
	textColor   = color.RGBA{0xD0, 0xD0, 0xD0, 0xFF}
	statusColor = color.RGBA{0x60, 0xC0, 0xFF, 0xFF}
	errorColor  = color.RGBA{0xFF, 0x60, 0x60, 0xFF}
)

// Game runs one assembled program and shows its console.
type Game struct {
	prog *asm.Program
	vm   *cpu.CPU
	face text.Face

	console bytes.Buffer
	input   bytes.Buffer
	pending []rune
	// queued counts complete input lines not yet consumed by readInt.
	queued int

	snapshot []byte
	err      error
}

func newGame(prog *asm.Program) (*Game, error) {
	g := &Game{
		prog: prog,
		face: text.NewGoXFace(basicfont.Face7x13),
	}
	if err := g.restart(); err != nil {
		return nil, err
	}
	return g, nil
}

// restart reloads the program into a fresh machine and clears the console.
func (g *Game) restart() error {
	g.console.Reset()
	g.input.Reset()
	g.pending = g.pending[:0]
	g.queued = 0
	g.err = nil

	vm := cpu.NewCPU(0)
	vm.Output = &g.console
	vm.Input = &g.input
	if err := g.prog.Load(vm); err != nil {
		return err
	}
	g.vm = vm
	return nil
}

// submitLine hands the typed line to the program's next readInt.
func (g *Game) submitLine() {
	line := string(g.pending)
	g.pending = g.pending[:0]
	g.input.WriteString(line + "\n")
	g.console.WriteString(line + "\n")
	g.queued++
}

// waitingForInput reports whether the next instruction is a readInt call
// with no line typed yet.
func (g *Game) waitingForInput() bool {
	instr, err := g.vm.Read32(g.vm.PC)
	if err != nil || instr != cpu.InstrECALL || g.vm.Regs[cpu.RegA7] != cpu.SysReadInt {
		return false
	}
	return g.queued == 0
}

// runFrame executes up to budget instructions, stopping early when the
// program exits, faults, or waits for input.
func (g *Game) runFrame(budget int) {
	for i := 0; i < budget; i++ {
		if g.vm.Halted || g.err != nil || g.waitingForInput() {
			return
		}
		readsInput := g.vm.Regs[cpu.RegA7] == cpu.SysReadInt
		instr, _ := g.vm.Read32(g.vm.PC)
		if err := g.vm.Step(); err != nil {
			g.err = err
			return
		}
		if readsInput && instr == cpu.InstrECALL {
			g.queued--
		}
	}
}

func (g *Game) Update() error {
	switch {
	case g.vm.Halted || g.err != nil:
		if inpututil.IsKeyJustPressed(ebiten.KeyEnter) {
			if err := g.restart(); err != nil {
				return err
			}
		}
	case g.waitingForInput():
		for _, r := range ebiten.AppendInputChars(nil) {
			if r == '-' || (r >= '0' && r <= '9') {
				g.pending = append(g.pending, r)
			}
		}
		if inpututil.IsKeyJustPressed(ebiten.KeyBackspace) && len(g.pending) > 0 {
			g.pending = g.pending[:len(g.pending)-1]
		}
		if inpututil.IsKeyJustPressed(ebiten.KeyEnter) {
			g.submitLine()
		}
	}

	if inpututil.IsKeyJustPressed(ebiten.KeyF5) {
		data, err := g.vm.HibernateToBytes()
		if err != nil {
			return err
		}
		g.snapshot = data
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyF9) && g.snapshot != nil {
		if err := g.vm.RestoreFromBytes(g.snapshot); err != nil {
			return err
		}
	}

	g.runFrame(stepsPerFrame)
	return nil
}

// status is the text of the bottom line.
func (g *Game) status() (string, color.Color) {
	switch {
	case g.err != nil:
		return "fault: " + g.err.Error() + " (Enter restarts)", errorColor
	case g.vm.Halted:
		return fmt.Sprintf("exited with code %d after %d steps (Enter restarts)", g.vm.ExitCode, g.vm.Steps), statusColor
	case g.waitingForInput():
		return "readInt> " + string(g.pending) + "_", statusColor
	}
	return fmt.Sprintf("running, %d steps", g.vm.Steps), statusColor
}

func (g *Game) drawText(screen *ebiten.Image, s string, index int, clr color.Color) {
	x, y := grid.GetGridCoords(index, cols)
	op := &text.DrawOptions{}
	op.GeoM.Translate(float64(x*charWidth), float64(y*charHeight))
	op.ColorScale.ScaleWithColor(clr)
	text.Draw(screen, s, g.face, op)
}

func (g *Game) Draw(screen *ebiten.Image) {
	lines := grid.Wrap(g.console.String(), cols)
	if len(lines) > rows {
		lines = lines[len(lines)-rows:]
	}
	for row, line := range lines {
		g.drawText(screen, line, row*cols, textColor)
	}

	msg, clr := g.status()
	if len(msg) > cols {
		msg = msg[:cols]
	}
	g.drawText(screen, msg, rows*cols, clr)
}

func (g *Game) Layout(outsideWidth, outsideHeight int) (int, int) {
	return screenWidth, screenHeight
}

func loadProgram(path string) (*asm.Program, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", err
	}
	defer f.Close()

	if strings.HasSuffix(path, ".s") {
		var src bytes.Buffer
		if _, err := src.ReadFrom(f); err != nil {
			return nil, "", err
		}
		prog, err := asm.Assemble(src.String())
		return prog, src.String(), err
	}

	root, err := ast.Decode(f)
	if err != nil {
		return nil, "", err
	}
	res, err := compiler.Compile(root, compiler.WithAssemble())
	if err != nil {
		if res != nil {
			return nil, res.Assembly, err
		}
		return nil, "", err
	}
	return res.Program, res.Assembly, nil
}

func main() {
	log.SetFlags(0)
	log.SetPrefix("desktop: ")

	if len(os.Args) < 2 {
		log.Fatalf("usage: %s <program.json|program.s> [--show-asm]", os.Args[0])
	}
	showAsm := false
	for _, arg := range os.Args[2:] {
		showAsm = showAsm || arg == "--show-asm"
	}

	fullPath, _, err := utils.GetPathInfo(os.Args[1])
	if err != nil {
		log.Fatalf("Bad path: %v", err)
	}
	prog, assembly, err := loadProgram(fullPath)
	if showAsm && assembly != "" {
		fmt.Print("Generated Assembly:\n", assembly, "\n")
	}
	if err != nil {
		log.Fatalf("Compilation failed: %v", err)
	}

	game, err := newGame(prog)
	if err != nil {
		log.Fatalf("Load failed: %v", err)
	}

	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	ebiten.SetWindowSize(screenWidth*2, screenHeight*2)
	ebiten.SetWindowTitle("rvgen " + fullPath)
	if err := ebiten.RunGame(game); err != nil {
		log.Fatal(err)
	}
}
