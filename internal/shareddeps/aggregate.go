// SPDX-License-Identifier: AGPL-3.0-or-later

// Package shareddeps unions per-tool dependency manifests into one
// normalized prerequisite set and emits the shared installer script that
// multi-tool images run before any individual tool installer.
package shareddeps

import (
	"sort"
	"strings"

	"github.com/bartekus/toolforge/internal/model"
)

// aliasMap resolves conceptual or generic names to concrete Debian/Ubuntu
// package identifiers. Applied once, deterministically.
var aliasMap = map[string][]string{
	"gdal":          {"gdal-bin", "libgdal-dev"},
	"cartopy":       {"python3-cartopy"},
	"geopandas":     {"python3-geopandas"},
	"h5py":          {"python3-h5py"},
	"libboost":      {"libboost-all-dev"},
	"libcurl":       {"libcurl4", "libcurl4-openssl-dev"},
	"libffi":        {"libffi-dev"},
	"libfontconfig": {"libfontconfig1-dev"},
	"libfreetype":   {"libfreetype6-dev"},
	"libfribidi":    {"libfribidi-dev"},
	"libharfbuzz":   {"libharfbuzz-dev"},
	"libjpeg":       {"libjpeg-dev"},
	"libkrb5":       {"libkrb5-dev"},
	"libpng":        {"libpng-dev"},
	"libpq":         {"libpq-dev"},
	"libsasl2":      {"libsasl2-dev"},
	"libssl":        {"libssl-dev"},
	"libtiff":       {"libtiff5-dev"},
	"libxml2":       {"libxml2-dev"},
	"libxslt":       {"libxslt1-dev"},
	"zlib":          {"zlib1g-dev"},
	"netcdf4":       {"libnetcdf-dev"},
}

// pythonOnly names install only through pip/conda; they must never reach
// the apt set.
var pythonOnly = map[string]bool{
	"cartopy":   true,
	"geopandas": true,
	"h5py":      true,
}

// replacements rewrites known problematic generic names to their
// headers-providing variant, applied after alias resolution.
var replacements = map[string]string{
	"libsasl2": "libsasl2-dev",
	"libssl":   "libssl-dev",
	"libpng":   "libpng-dev",
	"libtiff":  "libtiff5-dev",
	"libxml2":  "libxml2-dev",
	"libxslt":  "libxslt1-dev",
}

// runtimeAptMap provides conservative apt packages for declared runtimes.
var runtimeAptMap = map[string][]string{
	"python": {"python3", "python3-pip", "python3-venv"},
	"node":   {"nodejs", "npm"},
	"go":     {"golang"},
	"java":   {"openjdk-11-jre-headless"},
	"rust":   {"rustc", "cargo"},
	"dotnet": {"dotnet-sdk-6.0"},
}

type stringSet map[string]struct{}

func (s stringSet) add(items ...string) {
	for _, it := range items {
		it = strings.TrimSpace(it)
		if it != "" {
			s[it] = struct{}{}
		}
	}
}

func (s stringSet) sorted() []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Aggregate unions all manifests and normalizes the result. The union has
// set semantics: manifest order never changes the output, and every emitted
// list is sorted and duplicate-free for reproducible builds.
func Aggregate(manifests []model.DependencyManifest) model.AggregatedManifest {
	apt := stringSet{}
	runtimes := stringSet{}
	libs := stringSet{}
	services := stringSet{}
	pathEntries := stringSet{}

	for _, m := range manifests {
		apt.add(m.Prerequisites.Apt...)
		runtimes.add(m.Prerequisites.Runtimes...)
		libs.add(m.Prerequisites.Libs...)
		services.add(m.Prerequisites.Services...)
		pathEntries.add(m.EnvExports.Path...)
	}

	aptNorm, python, unknown := normalize(apt, libs)

	return model.AggregatedManifest{
		Apt:      aptNorm.sorted(),
		Runtimes: runtimes.sorted(),
		Libs:     libs.sorted(), // raw names kept for reference
		Python:   python.sorted(),
		Unknown:  unknown.sorted(),
		Services: services.sorted(),
		Env:      model.EnvExports{Path: pathEntries.sorted()},
	}
}

// normalize resolves aliases, routes python-only names away from the apt
// set, and buckets unrecognizable names as unknown so they surface for
// manual handling instead of being silently dropped or installed.
func normalize(apt, libs stringSet) (aptPkgs, python, unknown stringSet) {
	aptPkgs = stringSet{}
	python = stringSet{}
	unknown = stringSet{}

	for name := range apt {
		lower := strings.ToLower(name)
		switch {
		case pythonOnly[lower]:
			python.add(name)
		case len(aliasMap[lower]) > 0:
			mapped := aliasMap[lower]
			if allPython(mapped) {
				python.add(name)
			} else {
				aptPkgs.add(mapped...)
			}
		default:
			aptPkgs.add(name)
		}
	}

	for name := range libs {
		lower := strings.ToLower(name)
		switch {
		case pythonOnly[lower]:
			python.add(name)
		case len(aliasMap[lower]) > 0:
			for _, pkg := range aliasMap[lower] {
				if !strings.HasPrefix(pkg, "python3-") {
					aptPkgs.add(pkg)
				}
			}
		case strings.HasPrefix(lower, "lib") || strings.HasSuffix(lower, "-dev"):
			// Looks like a system library name; pass through.
			aptPkgs.add(name)
		default:
			unknown.add(name)
		}
	}

	for bad, good := range replacements {
		if _, ok := aptPkgs[bad]; ok {
			delete(aptPkgs, bad)
			aptPkgs.add(good)
		}
	}
	return aptPkgs, python, unknown
}

func allPython(pkgs []string) bool {
	for _, p := range pkgs {
		if !strings.HasPrefix(p, "python3-") {
			return false
		}
	}
	return len(pkgs) > 0
}

// RuntimePackages expands declared runtimes into their apt providers.
func RuntimePackages(runtimes []string) []string {
	out := stringSet{}
	for _, rt := range runtimes {
		out.add(runtimeAptMap[strings.ToLower(rt)]...)
	}
	return out.sorted()
}
