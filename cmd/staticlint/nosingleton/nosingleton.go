// Package nosingleton reports package-level variables holding a session
// manager. The manager is built once in the composition root and passed to
// the components that need it.
package nosingleton

import (
	"go/ast"
	"go/token"
	"go/types"
	"strings"

	"golang.org/x/tools/go/analysis"
)

const (
	sessionPackageSuffix = "internal/session"
	managerTypeName      = "Manager"
)

var Analyzer = &analysis.Analyzer{
	Name: "nosingleton",
	Doc:  "prohibits package-level variables of type session.Manager or *session.Manager",
	Run:  run,
}

func isSessionManager(t types.Type) bool {
	if ptr, ok := t.(*types.Pointer); ok {
		t = ptr.Elem()
	}

	named, ok := t.(*types.Named)
	if !ok {
		return false
	}
	obj := named.Obj()
	if obj.Pkg() == nil || obj.Name() != managerTypeName {
		return false
	}

	path := obj.Pkg().Path()
	return path == sessionPackageSuffix || strings.HasSuffix(path, "/"+sessionPackageSuffix)
}

func run(pass *analysis.Pass) (interface{}, error) {
	for _, file := range pass.Files {
		for _, decl := range file.Decls {
			gen, ok := decl.(*ast.GenDecl)
			if !ok || gen.Tok != token.VAR {
				continue
			}

			for _, spec := range gen.Specs {
				for _, name := range spec.(*ast.ValueSpec).Names {
					obj := pass.TypesInfo.Defs[name]
					if obj == nil || name.Name == "_" {
						continue
					}
					if isSessionManager(obj.Type()) {
						pass.Reportf(name.Pos(), "package-level session manager %s: build it in the composition root and inject it", name.Name)
					}
				}
			}
		}
	}
	return nil, nil
}
