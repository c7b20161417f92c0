// Command depgraph renders `go mod graph` as Graphviz DOT, optionally
// restricted to edges originating at this module, so the domain-library
// wiring (x/sys, x/arch, x/text, pprof) pulled in by internal/hammer,
// internal/diag and internal/report stays visible as the dependency set
// grows.
package main

import (
	"bufio"
	"bytes"
	"flag"
	"os"
	"os/exec"
)

func main() {
	direct := flag.Bool("direct", false, "show only edges originating at this module")
	flag.Parse()

	cmd := exec.Command("go", "mod", "graph")
	output, err := cmd.Output()
	if err != nil {
		panic(err)
	}

	writer := bufio.NewWriter(os.Stdout)
	defer writer.Flush()
	writer.WriteString("digraph deps {\n")
	for _, line := range bytes.Split(bytes.TrimSpace(output), []byte{'\n'}) {
		fields := bytes.Fields(line)
		if len(fields) != 2 {
			continue
		}
		from, to := string(fields[0]), string(fields[1])
		if *direct && !bytes.HasPrefix(fields[0], []byte("ramble@")) && string(fields[0]) != "ramble" {
			continue
		}
		writer.WriteString("    \"" + from + "\" -> \"" + to + "\";\n")
	}
	writer.WriteString("}\n")
}
