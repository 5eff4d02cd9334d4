// SPDX-License-Identifier: AGPL-3.0-or-later

package model

// Prerequisites lists the system-level requirements a tool declares.
type Prerequisites struct {
	Apt      []string `json:"apt,omitempty" yaml:"apt,omitempty"`
	Runtimes []string `json:"runtimes,omitempty" yaml:"runtimes,omitempty"`
	Libs     []string `json:"libs,omitempty" yaml:"libs,omitempty"`
	Services []string `json:"services,omitempty" yaml:"services,omitempty"`
}

// EnvExports holds environment additions a tool's installer needs at runtime.
// Only PATH is aggregated today.
type EnvExports struct {
	Path []string `json:"PATH,omitempty" yaml:"PATH,omitempty"`
}

// DependencyManifest is the per-tool declaration written by the authoring
// agent alongside the script (tool_manifest.json). The aggregator is its
// only reader in the pipeline.
type DependencyManifest struct {
	Prerequisites       Prerequisites `json:"prerequisites" yaml:"prerequisites"`
	EnvExports          EnvExports    `json:"env_exports" yaml:"env_exports"`
	ValidateCmd         string        `json:"validate_cmd,omitempty" yaml:"validate_cmd,omitempty"`
	RequiresCompilation bool          `json:"requires_compilation,omitempty" yaml:"requires_compilation,omitempty"`
}

// AggregatedManifest is the normalized union of every tool manifest in a run.
//
// Invariant: Apt holds concrete installable package identifiers only; alias
// and generic names are resolved before anything lands here. Names that can
// only be installed through a language package manager go to Python, and
// unrecognizable names go to Unknown for manual handling.
type AggregatedManifest struct {
	Apt      []string   `json:"apt"`
	Runtimes []string   `json:"runtimes"`
	Libs     []string   `json:"libs"`
	Python   []string   `json:"python"`
	Unknown  []string   `json:"unknown"`
	Services []string   `json:"services"`
	Env      EnvExports `json:"env"`
}
