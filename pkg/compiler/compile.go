package compiler

import (
	"fmt"
	"strings"

	"rvgen/pkg/asm"
	"rvgen/pkg/ast"
)

type config struct {
	data      DataSection
	labelBase int
	assemble  bool
}

// Option configures NewGenerator and Compile.
type Option func(*config)

// WithStrings sets the data-section collaborator that writes the string
// constants. Compile builds one from the tree when none is given.
func WithStrings(d DataSection) Option {
	return func(c *config) { c.data = d }
}

// WithLabelBase sets the first code label id.
func WithLabelBase(base int) Option {
	return func(c *config) { c.labelBase = base }
}

// WithAssemble makes Compile assemble the generated text as well.
func WithAssemble() Option {
	return func(c *config) { c.assemble = true }
}

func newConfig(opts []Option) config {
	cfg := config{labelBase: DefaultLabelBase}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// Result is the output of Compile.
type Result struct {
	Assembly string
	// Program is set when WithAssemble was given and assembly succeeded.
	Program *asm.Program
	// Labels are the code label ids issued, in order.
	Labels []int
	// Visited is the number of nodes the generator rendered.
	Visited int
}

// Compile validates root, generates its assembly and optionally
// assembles it.
//
// A tree that fails validation yields no result at all. Diagnostics found
// while generating are returned together with the (marked) assembly text,
// so callers can inspect both; such output should not be shipped.
func Compile(root ast.Node, opts ...Option) (*Result, error) {
	cfg := newConfig(opts)
	if err := ast.Validate(root); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidTree, err)
	}
	if cfg.data == nil {
		strs, err := StringsFromTree(root)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidTree, err)
		}
		cfg.data = strs
	}

	var out strings.Builder
	g := newGenerator(&out, cfg)
	g.Generate(root, Context{})

	res := &Result{
		Assembly: out.String(),
		Labels:   g.labels.Issued(),
		Visited:  g.Visited(),
	}
	if err := g.Err(); err != nil {
		return res, err
	}
	if cfg.assemble {
		prog, err := asm.Assemble(res.Assembly)
		if err != nil {
			return res, fmt.Errorf("assemble: %w", err)
		}
		res.Program = prog
	}
	return res, nil
}
