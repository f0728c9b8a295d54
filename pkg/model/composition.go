// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

package model

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Element is one line of a composition: an isotope (or natural element when
// MassNo is 0) and its relative abundance.
type Element struct {
	Symbol    string  `yaml:"atomicSymbol"`
	MassNo    int     `yaml:"massNo"`
	Abundance float64 `yaml:"abundance"`
}

// Component is a named, reusable list of elements, e.g. a molecule.
type Component struct {
	Name     string    `yaml:"name"`
	Elements []Element `yaml:"elements"`
}

// Clone returns a deep copy of c.
func (c Component) Clone() Component {
	c.Elements = append([]Element(nil), c.Elements...)
	return c
}

// WeightedComponent is a component with a mixing ratio inside a composition.
type WeightedComponent struct {
	Component Component
	Ratio     float64
}

type weightedComponentDoc struct {
	Component string  `yaml:"component"`
	Ratio     float64 `yaml:"ratio"`
}

// MarshalYAML writes the component by reference; the elements live in the
// project's component library.
func (w WeightedComponent) MarshalYAML() (any, error) {
	return weightedComponentDoc{Component: w.Component.Name, Ratio: w.Ratio}, nil
}

// UnmarshalYAML reads the reference. LinkComponents fills in the elements.
func (w *WeightedComponent) UnmarshalYAML(n *yaml.Node) error {
	var doc weightedComponentDoc
	if err := n.Decode(&doc); err != nil {
		return err
	}
	w.Component = Component{Name: doc.Component}
	w.Ratio = doc.Ratio
	return nil
}

// Composition is the ordered element list of an entity, optionally
// specified through weighted components.
type Composition struct {
	Elements           []Element           `yaml:"elements"`
	WeightedComponents []WeightedComponent `yaml:"weightedComponents,omitempty"`
}

// Clone returns a deep copy of c.
func (c Composition) Clone() Composition {
	out := Composition{Elements: append([]Element(nil), c.Elements...)}
	if c.WeightedComponents != nil {
		out.WeightedComponents = make([]WeightedComponent, len(c.WeightedComponents))
		for i, wc := range c.WeightedComponents {
			out.WeightedComponents[i] = WeightedComponent{Component: wc.Component.Clone(), Ratio: wc.Ratio}
		}
	}
	return out
}

// Translate expands the weighted components into concrete elements,
// replacing Elements. Elements with the same symbol and mass number have
// their abundances summed; any other element is appended in order of first
// appearance. A composition without weighted components is left untouched.
func (c *Composition) Translate() {
	if len(c.WeightedComponents) == 0 {
		return
	}
	var out []Element
	for _, wc := range c.WeightedComponents {
		for _, e := range wc.Component.Elements {
			out = mergeElement(out, Element{Symbol: e.Symbol, MassNo: e.MassNo, Abundance: e.Abundance * wc.Ratio})
		}
	}
	c.Elements = out
}

func mergeElement(list []Element, e Element) []Element {
	for i := range list {
		if list[i].Symbol == e.Symbol && list[i].MassNo == e.MassNo {
			list[i].Abundance += e.Abundance
			return list
		}
	}
	return append(list, e)
}

// WeightedComponent returns the weighted component named name, or nil.
func (c *Composition) WeightedComponent(name string) *WeightedComponent {
	for i := range c.WeightedComponents {
		if c.WeightedComponents[i].Component.Name == name {
			return &c.WeightedComponents[i]
		}
	}
	return nil
}

// LinkComponents replaces each weighted component's reference with the
// library entry of the same name.
func (c *Composition) LinkComponents(library []Component) error {
	for i := range c.WeightedComponents {
		name := c.WeightedComponents[i].Component.Name
		found := false
		for _, lc := range library {
			if lc.Name == name {
				c.WeightedComponents[i].Component = lc.Clone()
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("weighted component %q not found in component library", name)
		}
	}
	return nil
}
