//go:build !js

package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"rvgen/pkg/asm"
	"rvgen/pkg/ast"
	"rvgen/pkg/compiler"
	"rvgen/pkg/cpu"
	"rvgen/pkg/utils"
)

type runOptions struct {
	stdinPath string
	maxSteps  uint64
	dumpState bool
	stdout    io.Writer
}

func main() {
	log.SetFlags(0)
	log.SetPrefix("rvgen: ")

	inPath := flag.String("in", "", "input AST file (JSON), or an assembly file ending in .s to run directly")
	outPath := flag.String("out", "", "output assembly file path (default: input with .s extension)")
	printTree := flag.Bool("tree", false, "print the AST before generating code")
	runProgram := flag.Bool("run", false, "assemble the generated code and run it on the simulator")
	stdinPath := flag.String("stdin", "", "file supplying readInt input for -run (default: standard input)")
	maxSteps := flag.Uint64("max-steps", 10_000_000, "instruction budget for -run, 0 for no limit")
	dumpState := flag.Bool("state", false, "print the final CPU state as JSON after -run")
	flag.Parse()

	if *inPath == "" {
		fmt.Fprintln(os.Stderr, "nothing to do: provide -in <ast.json> to generate code, add -run to execute it")
		flag.Usage()
		os.Exit(2)
	}
	ro := runOptions{stdinPath: *stdinPath, maxSteps: *maxSteps, dumpState: *dumpState, stdout: os.Stdout}

	if strings.HasSuffix(*inPath, ".s") {
		prog, err := assembleFile(*inPath)
		if err != nil {
			log.Fatal(err)
		}
		os.Exit(run(prog, ro))
	}

	var tree io.Writer
	if *printTree {
		tree = os.Stdout
	}
	res, output, err := compileFile(*inPath, *outPath, *runProgram, tree)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Fprintf(os.Stderr, "generated %d nodes, %d labels -> %s\n", res.Visited, len(res.Labels), output)

	if *runProgram {
		os.Exit(run(res.Program, ro))
	}
}

// assembleFile reads an assembly source file and assembles it.
func assembleFile(path string) (*asm.Program, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read input file %q: %w", path, err)
	}
	prog, err := asm.Assemble(string(source))
	if err != nil {
		return nil, fmt.Errorf("assembly failed: %w", err)
	}
	return prog, nil
}

// compileFile generates assembly for the AST in inPath and writes it to
// outPath, or next to the input when outPath is empty. Nothing is written
// when compilation reports an error. tree, if set, receives the printed AST.
func compileFile(inPath, outPath string, assemble bool, tree io.Writer) (*compiler.Result, string, error) {
	root, err := loadTree(inPath)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read AST %q: %w", inPath, err)
	}
	if tree != nil {
		if err := ast.Fprint(tree, root); err != nil {
			return nil, "", fmt.Errorf("print tree: %w", err)
		}
	}

	var opts []compiler.Option
	if assemble {
		opts = append(opts, compiler.WithAssemble())
	}
	res, err := compiler.Compile(root, opts...)
	if err != nil {
		return nil, "", fmt.Errorf("compilation failed: %w", err)
	}

	output := outPath
	if output == "" {
		output = utils.OutputPath(inPath, ".s")
	}
	fullPath, _, err := utils.GetPathInfo(output)
	if err != nil {
		return nil, "", fmt.Errorf("bad output path %q: %w", output, err)
	}
	if err := os.WriteFile(fullPath, []byte(res.Assembly), 0o644); err != nil {
		return nil, "", fmt.Errorf("failed to write assembly file %q: %w", fullPath, err)
	}
	return res, output, nil
}

func loadTree(path string) (ast.Node, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ast.Decode(f)
}

// run executes prog and returns the process exit status: the program's
// own exit code, or 1 if the simulator failed.
func run(prog *asm.Program, ro runOptions) int {
	vm := cpu.NewCPU(0)
	vm.Output = ro.stdout
	if ro.stdinPath != "" {
		f, err := os.Open(ro.stdinPath)
		if err != nil {
			log.Printf("failed to open -stdin file: %v", err)
			return 1
		}
		defer f.Close()
		vm.Input = f
	}
	if err := prog.Load(vm); err != nil {
		log.Printf("load failed: %v", err)
		return 1
	}

	var status int
	err := vm.Run(ro.maxSteps)
	switch {
	case errors.Is(err, cpu.ErrStepLimit):
		log.Printf("stopped after %d steps at pc=0x%08X", vm.Steps, vm.PC)
		status = 1
	case err != nil:
		log.Printf("run failed: %v", err)
		status = 1
	default:
		status = int(vm.ExitCode)
	}

	fmt.Fprintf(os.Stderr, "\nrun complete: exit=%d steps=%d pc=0x%08X\n", vm.ExitCode, vm.Steps, vm.PC)
	if ro.dumpState {
		if err := vm.DumpState(ro.stdout); err != nil {
			log.Printf("dump state: %v", err)
			return 1
		}
	}
	return status
}
