package asm

import (
	"fmt"
	"strings"
	"testing"
)

// largeProgram repeats a generated-code shaped block n times.
func largeProgram(n int) string {
	var sb strings.Builder
	sb.WriteString("\t.data\ncounter:\t.word\t0\n\t.text\nprogram:\n")
	for i := 0; i < n; i++ {
		fmt.Fprintf(&sb, "\tb\t.LL%d\n.LL%d:\n", 2*i+1, 2*i)
		sb.WriteString("\tli\tt0, 1\n\taddi\tsp, sp, -4\n\tsw\tt0, 0(sp)\n\tlw\tt0, counter\n")
		sb.WriteString("\tlw\tt1, 0(sp)\n\taddi\tsp, sp, 4\n\tadd\tt0, t1, t0\n\tsw\tt0, counter, t1\n")
		fmt.Fprintf(&sb, ".LL%d:\n\tlw\tt0, counter\n\tli\tt1, 0\n\tblt\tt1, t0, .LL%d\n", 2*i+1, 2*i+2)
	}
	fmt.Fprintf(&sb, ".LL%d:\n\tli\ta7, 93\n\tecall\n", 2*n)
	return sb.String()
}

func BenchmarkAssemble(b *testing.B) {
	for _, n := range []int{10, 100, 1000} {
		code := largeProgram(n)
		b.Run(fmt.Sprintf("blocks=%d", n), func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				if _, err := Assemble(code); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
