// Command staticlint bundles the Go toolchain analyzers, ineffassign, nilerr,
// the project analyzers and a configurable set of staticcheck checks into one
// multichecker binary.
//
// The staticcheck checks to enable are read from config.json next to the
// binary; a missing file enables the default set.
package main

import (
	// Standard analyzers from the Go toolchain.
	"golang.org/x/tools/go/analysis/passes/atomic"
	"golang.org/x/tools/go/analysis/passes/copylock"
	"golang.org/x/tools/go/analysis/passes/errorsas"
	"golang.org/x/tools/go/analysis/passes/httpresponse"
	"golang.org/x/tools/go/analysis/passes/loopclosure"
	"golang.org/x/tools/go/analysis/passes/lostcancel"
	"golang.org/x/tools/go/analysis/passes/printf"
	"golang.org/x/tools/go/analysis/passes/structtag"
	"golang.org/x/tools/go/analysis/passes/unmarshal"
	"golang.org/x/tools/go/analysis/passes/unreachable"

	// Third-party analyzers.
	"github.com/gordonklaus/ineffassign/pkg/ineffassign"
	"github.com/gostaticanalysis/nilerr"

	// Project analyzers.
	"github.com/patric-chuzhbe/sanasto/cmd/staticlint/noosexit"
	"github.com/patric-chuzhbe/sanasto/cmd/staticlint/nosingleton"

	"golang.org/x/tools/go/analysis"
	"golang.org/x/tools/go/analysis/multichecker"
	"honnef.co/go/tools/staticcheck"

	"github.com/thoas/go-funk"

	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Config is the name of the JSON file listing the enabled staticcheck analyzers.
const Config = `config.json`

// ConfigData is the shape of Config, e.g. {"Staticcheck": ["SA1000", "SA4010"]}.
type ConfigData struct {
	Staticcheck []string
}

func loadConfig() (*ConfigData, error) {
	appfile, err := os.Executable()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filepath.Join(filepath.Dir(appfile), Config))
	if errors.Is(err, fs.ErrNotExist) {
		return &ConfigData{}, nil
	}
	if err != nil {
		return nil, err
	}

	var cfg ConfigData
	if err = json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// staticcheckAnalyzers picks the named checks, or every SA check when none are named.
func staticcheckAnalyzers(names []string) []*analysis.Analyzer {
	var selected []*analysis.Analyzer
	for _, v := range staticcheck.Analyzers {
		if (len(names) == 0 && strings.HasPrefix(v.Analyzer.Name, "SA")) || funk.ContainsString(names, v.Analyzer.Name) {
			selected = append(selected, v.Analyzer)
		}
	}
	return selected
}

func main() {
	cfg, err := loadConfig()
	if err != nil {
		panic(err)
	}

	myChecks := []*analysis.Analyzer{
		atomic.Analyzer,
		copylock.Analyzer,
		errorsas.Analyzer,
		httpresponse.Analyzer,
		loopclosure.Analyzer,
		lostcancel.Analyzer,
		printf.Analyzer,
		structtag.Analyzer,
		unmarshal.Analyzer,
		unreachable.Analyzer,

		ineffassign.Analyzer,
		nilerr.Analyzer,

		noosexit.Analyzer,
		nosingleton.Analyzer,
	}
	myChecks = append(myChecks, staticcheckAnalyzers(cfg.Staticcheck)...)

	multichecker.Main(myChecks...)
}
