// Command unsafeaudit loads a package tree and reports every package that
// imports "unsafe", failing if one lies outside the small set of packages
// allowed to do raw pointer arithmetic (see DESIGN.md's unsafe-pointer
// containment rule). When the tree contains a real main package, it also
// runs a go/pointer points-to analysis seeded at every unsafe.Pointer value
// an allowed package's exported functions return, catching a pointer that
// escapes into a disallowed package through an interface or closure —
// something the import-list check alone cannot see.
package main

import (
	"fmt"
	"go/types"
	"os"
	"sort"
	"strings"

	"golang.org/x/tools/go/packages"
	"golang.org/x/tools/go/pointer"
	"golang.org/x/tools/go/ssa"
	"golang.org/x/tools/go/ssa/ssautil"
)

// allowedSuffixes names the only package paths permitted to import
// "unsafe": the buffer owner, the hammer engine and its asm shim, the
// hugepage/buddy-drain procurer, the pagemap/profile diagnostics reader, and
// the exploit pass that drives Hammer directly. Every other package
// (arch, dram, template, flipstats, report, config) sees checked byte
// access and DRAM coordinates only, never a raw pointer.
var allowedSuffixes = []string{
	"internal/memmap",
	"internal/memproc",
	"internal/diag",
	"internal/hammer",
	"internal/hammer/asm",
	"internal/exploit",
}

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintln(os.Stderr, "usage: unsafeaudit <pattern-dir>")
		os.Exit(2)
	}

	violations, scanned, err := audit(os.Args[1])
	if err != nil {
		fmt.Fprintf(os.Stderr, "unsafeaudit: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("scanned %d packages under %s\n", scanned, os.Args[1])
	if len(violations) == 0 {
		fmt.Println("unsafe confined to:", strings.Join(allowedSuffixes, ", "))
		return
	}
	sort.Strings(violations)
	for _, v := range violations {
		fmt.Printf("%s: imports \"unsafe\" outside an allowed package\n", v)
	}
	os.Exit(1)
}

// audit loads every package under dir and returns the import paths of
// those that import "unsafe" without being in allowedSuffixes, plus any
// escape violations escapeViolations can establish.
func audit(dir string) ([]string, int, error) {
	cfg := &packages.Config{
		Mode: packages.NeedName | packages.NeedFiles | packages.NeedImports |
			packages.NeedCompiledGoFiles | packages.NeedTypes |
			packages.NeedTypesInfo | packages.NeedSyntax | packages.NeedDeps |
			packages.NeedTypesSizes,
		Dir: dir,
	}
	pkgs, err := packages.Load(cfg, "./...")
	if err != nil {
		return nil, 0, err
	}

	seen := map[string]bool{}
	var violations []string
	for _, pkg := range pkgs {
		if len(pkg.Errors) > 0 {
			return nil, 0, fmt.Errorf("load %s: %v", pkg.PkgPath, pkg.Errors[0])
		}
		if _, ok := pkg.Imports["unsafe"]; !ok {
			continue
		}
		if !allowed(pkg.PkgPath) && !seen[pkg.PkgPath] {
			seen[pkg.PkgPath] = true
			violations = append(violations, pkg.PkgPath)
		}
	}

	escapes, err := escapeViolations(pkgs)
	if err != nil {
		return nil, 0, fmt.Errorf("points-to analysis: %w", err)
	}
	for _, v := range escapes {
		if !seen[v] {
			seen[v] = true
			violations = append(violations, v)
		}
	}

	return violations, len(pkgs), nil
}

func allowed(pkgPath string) bool {
	for _, suffix := range allowedSuffixes {
		if strings.HasSuffix(pkgPath, suffix) {
			return true
		}
	}
	return false
}

// escapeViolations runs a whole-program go/pointer analysis when pkgs
// contains a real main package, tracking every unsafe.Pointer value
// returned by an exported function of an allowed package. A points-to set
// that reaches a label owned by a package outside the allowlist is reported
// as a violation, distinct from (and additional to) the plain import
// check. go/pointer requires at least one main package to build a call
// graph from; a tree of library packages alone (as in this command's own
// unit test fixtures) has none, so this returns no violations and no error
// in that case rather than failing the whole audit.
func escapeViolations(pkgs []*packages.Package) ([]string, error) {
	prog, ssaPkgs := ssautil.AllPackages(pkgs, ssa.SanityCheckFunctions)
	prog.Build()

	var mains []*ssa.Package
	for _, sp := range ssaPkgs {
		if sp != nil && sp.Pkg.Name() == "main" {
			mains = append(mains, sp)
		}
	}
	if len(mains) == 0 {
		return nil, nil
	}

	queries := map[ssa.Value]struct{}{}
	origin := map[ssa.Value]string{}
	for fn := range ssautil.AllFunctions(prog) {
		if fn.Pkg == nil || !allowed(fn.Pkg.Pkg.Path()) {
			continue
		}
		obj := fn.Object()
		if obj == nil || !obj.Exported() {
			continue
		}
		for _, b := range fn.Blocks {
			for _, instr := range b.Instrs {
				ret, ok := instr.(*ssa.Return)
				if !ok {
					continue
				}
				for _, v := range ret.Results {
					if !isUnsafePointer(v.Type()) {
						continue
					}
					queries[v] = struct{}{}
					origin[v] = fn.Pkg.Pkg.Path()
				}
			}
		}
	}
	if len(queries) == 0 {
		return nil, nil
	}

	result, err := pointer.Analyze(&pointer.Config{
		Mains:   mains,
		Queries: queries,
	})
	if err != nil {
		return nil, err
	}

	seen := map[string]bool{}
	var violations []string
	for v, ptr := range result.Queries {
		for _, label := range ptr.PointsTo().Labels() {
			pkgPath, ok := labelPackage(label)
			if !ok || allowed(pkgPath) {
				continue
			}
			from := origin[v]
			if !seen[from] {
				seen[from] = true
				violations = append(violations, from)
			}
		}
	}
	return violations, nil
}

// isUnsafePointer reports whether t is exactly unsafe.Pointer, not merely
// some other Go pointer type.
func isUnsafePointer(t types.Type) bool {
	return types.Identical(t, types.Typ[types.UnsafePointer])
}

// labelPackage recovers the import path of the package that owns label's
// underlying memory location, whether that location is a package-level
// global or a value allocated inside a function body.
func labelPackage(l *pointer.Label) (string, bool) {
	switch v := l.Value().(type) {
	case *ssa.Global:
		if v.Pkg != nil {
			return v.Pkg.Pkg.Path(), true
		}
	case ssa.Instruction:
		if fn := v.Parent(); fn != nil && fn.Pkg != nil {
			return fn.Pkg.Pkg.Path(), true
		}
	}
	return "", false
}
