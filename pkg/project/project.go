// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

// Package project stores a configuration as a YAML document inside a
// project directory. The directory holds <name>.yaml, an autosave
// companion <name>.autosave, and the Purge and Gudrun output trees.
package project

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mesh-intelligence/gudrunctl/pkg/fsutil"
	"github.com/mesh-intelligence/gudrunctl/pkg/gudrunfile"
	"github.com/mesh-intelligence/gudrunctl/pkg/model"
)

// Output subdirectories of a project.
const (
	PurgeDirName  = "Purge"
	GudrunDirName = "Gudrun"
)

// ParseError reports a YAML document that does not match the
// configuration schema.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("parsing project YAML: %v", e.Err)
	}
	return fmt.Sprintf("parsing project YAML %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Marshal renders gf as a YAML project document. Enumerations are written
// by name.
func Marshal(gf *model.GudrunFile) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(gf); err != nil {
		return nil, fmt.Errorf("encoding project YAML: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encoding project YAML: %w", err)
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes a YAML project document. Unknown keys are rejected and
// weighted components are linked to the component library.
func Unmarshal(data []byte) (*model.GudrunFile, error) {
	return unmarshal(data, "")
}

func unmarshal(data []byte, path string) (*model.GudrunFile, error) {
	var gf model.GudrunFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&gf); err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	if err := validate(&gf); err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	if err := gf.LinkComponents(); err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	gf.Path = path
	return &gf, nil
}

func validate(gf *model.GudrunFile) error {
	if gf.Beam.SampleGeometry == model.SameAsBeam {
		return errors.New("Beam.sampleGeometry must be FLATPLATE or CYLINDRICAL")
	}
	if n := len(gf.Beam.BeamProfileValues); n > model.MaxBeamProfileValues {
		return fmt.Errorf("Beam.beamProfileValues has %d values, at most %d allowed", n, model.MaxBeamProfileValues)
	}
	return nil
}

// Load reads a configuration from path, choosing the codec by extension:
// .yaml, .yml and .autosave are YAML, anything else is the legacy format.
func Load(path string) (*model.GudrunFile, error) {
	if isYAML(path) {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		return unmarshal(data, path)
	}
	return gudrunfile.ParseFile(path)
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".autosave":
		return true
	}
	return false
}

// Project is a configuration bound to a project directory.
type Project struct {
	Dir  string
	Name string
	File *model.GudrunFile
}

// New binds gf to the project <dir>/<name>. Nothing is written.
func New(dir, name string, gf *model.GudrunFile) *Project {
	p := &Project{Dir: dir, Name: name, File: gf}
	p.bind()
	return p
}

// Open loads the configuration at path. The project directory is the
// file's directory and the project name its stem.
func Open(path string) (*Project, error) {
	gf, err := Load(path)
	if err != nil {
		return nil, err
	}
	base := filepath.Base(path)
	p := &Project{
		Dir:  filepath.Dir(path),
		Name: strings.TrimSuffix(base, filepath.Ext(base)),
		File: gf,
	}
	p.bind()
	return p, nil
}

func (p *Project) bind() {
	p.File.ProjectDir = p.Dir
	p.File.Path = p.Path()
}

// Path is the project's YAML document.
func (p *Project) Path() string { return filepath.Join(p.Dir, p.Name+".yaml") }

// AutosavePath is the autosave companion of the project document.
func (p *Project) AutosavePath() string { return filepath.Join(p.Dir, p.Name+".autosave") }

// PurgeDir holds purge engine outputs.
func (p *Project) PurgeDir() string { return filepath.Join(p.Dir, PurgeDirName) }

// GudrunDir holds reduction engine outputs.
func (p *Project) GudrunDir() string { return filepath.Join(p.Dir, GudrunDirName) }

// Save writes the project document and clears the modified flag.
func (p *Project) Save() error {
	if err := p.write(p.Path()); err != nil {
		return err
	}
	p.File.Modified = false
	return nil
}

// Autosave writes the autosave companion. The modified flag is kept.
func (p *Project) Autosave() error {
	return p.write(p.AutosavePath())
}

func (p *Project) write(path string) error {
	data, err := Marshal(p.File)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating project directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// SaveAs moves the project to <dir>/<name>: the Purge and Gudrun trees are
// copied from the current directory when present, then the document is
// saved at its new location.
func (p *Project) SaveAs(dir, name string) error {
	if fsutil.Exists(filepath.Join(dir, name+".yaml")) {
		return fmt.Errorf("project %s already exists in %s", name, dir)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating project directory: %w", err)
	}
	for _, sub := range []string{PurgeDirName, GudrunDirName} {
		src := filepath.Join(p.Dir, sub)
		if !fsutil.Exists(src) {
			continue
		}
		if err := fsutil.CopyDir(src, filepath.Join(dir, sub)); err != nil {
			return fmt.Errorf("copying %s: %w", sub, err)
		}
	}
	p.Dir, p.Name = dir, name
	p.bind()
	return p.Save()
}
