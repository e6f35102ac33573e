// Package condalock provides the data model for a conda-lock-style lockfile
// document: the resolved package set and provenance metadata that a package
// resolver might produce after consuming repodata fetched by pkg/repodata.
//
// This is a peripheral data-model utility, not part of the fetch-and-cache
// engine. Nothing in pkg/repodata depends on it, and it depends on nothing
// in pkg/repodata; it is included because a complete lockfile-producing
// toolchain around this engine would need a type like it somewhere, and the
// original source this engine is modeled on defines one.
package condalock

import (
	"time"

	"gopkg.in/yaml.v3"
)

// defaultVersion is the lockfile format version written when one isn't
// otherwise specified.
const defaultVersion = 1

// Document is the root of a lockfile: metadata about how it was produced,
// plus the flat list of locked packages it resolved to.
type Document struct {
	Metadata Metadata           `yaml:"metadata"`
	Package  []LockedDependency `yaml:"package"`
	Version  int                `yaml:"version"`
}

// NewDocument constructs a Document with the default format version.
func NewDocument(metadata Metadata, packages []LockedDependency) Document {
	return Document{
		Metadata: metadata,
		Package:  packages,
		Version:  defaultVersion,
	}
}

// Metadata describes how a lockfile was produced: which channels and
// platforms it resolved against, and its provenance.
type Metadata struct {
	// ContentHash maps each target platform to a hash of the inputs that
	// produced this lockfile for that platform.
	ContentHash map[string]string `yaml:"content_hash"`
	Channels    []Channel         `yaml:"channels"`
	Platforms   []string          `yaml:"platforms"`
	// Sources are paths to the input files, relative to the lockfile's
	// parent directory.
	Sources      []string          `yaml:"sources"`
	Time         *TimeMetadata     `yaml:"time_metadata,omitempty"`
	Git          *GitMetadata      `yaml:"git_metadata,omitempty"`
	InputsHashes map[string]Hashes `yaml:"inputs_metadata,omitempty"`
	Custom       map[string]string `yaml:"custom_metadata,omitempty"`
}

// Channel is a package-repository channel a lockfile resolved against. URL
// may be either a full channel URL or a short name such as "conda-forge".
type Channel struct {
	URL         string   `yaml:"url"`
	UsedEnvVars []string `yaml:"used_env_vars"`
}

// TimeMetadata records when a lockfile was generated.
type TimeMetadata struct {
	CreatedAt time.Time `yaml:"created_at"`
}

// GitMetadata records the git identity and commit a lockfile was generated
// under, when applicable.
type GitMetadata struct {
	UserName  string `yaml:"git_user_name"`
	UserEmail string `yaml:"git_user_email"`
	SHA       string `yaml:"git_sha"`
}

// Manager identifies which tool resolved and installs a LockedDependency.
type Manager string

const (
	ManagerConda Manager = "conda"
	ManagerPip   Manager = "pip"
)

// Hashes holds the integrity hashes recorded for a package or input file.
// At least one of MD5 or SHA256 is expected to be set.
type Hashes struct {
	MD5    string `yaml:"md5,omitempty"`
	SHA256 string `yaml:"sha256,omitempty"`
}

// defaultCategory is the category recorded for a package when none is given,
// matching the upstream lockfile format's default for conda-managed entries.
const defaultCategory = "main"

// LockedDependency is a single resolved package entry in a lockfile.
type LockedDependency struct {
	Name         string            `yaml:"name"`
	Version      string            `yaml:"version"`
	Manager      Manager           `yaml:"manager"`
	Platform     string            `yaml:"platform"`
	Dependencies map[string]string `yaml:"dependencies"`
	URL          string            `yaml:"url"`
	Hash         Hashes            `yaml:"hash"`
	Optional     bool              `yaml:"optional"`
	Category     string            `yaml:"category"`
	Source       string            `yaml:"source,omitempty"`
	Build        string            `yaml:"build,omitempty"`
}

// NewLockedDependency constructs a LockedDependency with Category defaulted
// to "main" when left empty.
func NewLockedDependency(name, version string, manager Manager, platform, url string, hash Hashes) LockedDependency {
	return LockedDependency{
		Name:     name,
		Version:  version,
		Manager:  manager,
		Platform: platform,
		URL:      url,
		Hash:     hash,
		Category: defaultCategory,
	}
}

// Marshal serializes a Document to its YAML lockfile representation.
func Marshal(doc Document) ([]byte, error) {
	return yaml.Marshal(doc)
}

// Unmarshal parses a YAML lockfile document.
func Unmarshal(data []byte) (Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Document{}, err
	}
	return doc, nil
}
