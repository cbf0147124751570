// Package descriptor parses YAML-declared component descriptors: factory
// blueprints and standalone instance requests dropped into a watched
// directory (spec.md §4.H "Instantiation Waiting List").
//
// Grounded on pelix's own support for YAML/JSON component descriptors
// (original_source's ipopo/decorators and config-admin handling) and on
// SPEC_FULL.md's AMBIENT STACK choice of gopkg.in/yaml.v3, the library the
// teacher already uses for its own configuration files.
package descriptor

import "gopkg.in/yaml.v3"

// RequirementSpec declares one dependency of a factory-produced component.
type RequirementSpec struct {
	ID              string `yaml:"id"`
	Specification   string `yaml:"specification"`
	Aggregate       bool   `yaml:"aggregate"`
	Optional        bool   `yaml:"optional"`
	ImmediateRebind bool   `yaml:"immediate_rebind"`
	Filter          string `yaml:"filter"`
}

// FactoryDescriptor declares a component factory's shape: its
// requirements and default properties. The factory's actual behavior
// (its user object constructor) is supplied in code; the descriptor only
// carries the declarative part.
type FactoryDescriptor struct {
	Name         string            `yaml:"name"`
	Requirements []RequirementSpec `yaml:"requirements"`
	Properties   map[string]any    `yaml:"properties"`
}

// InstanceDescriptor requests one component instantiation
// (spec.md §4.H "(factory_name, instance_name, properties)").
type InstanceDescriptor struct {
	Factory    string         `yaml:"factory"`
	Name       string         `yaml:"name"`
	Properties map[string]any `yaml:"properties"`
}

// ParseFactory decodes a single FactoryDescriptor from YAML.
func ParseFactory(data []byte) (FactoryDescriptor, error) {
	var fd FactoryDescriptor
	err := yaml.Unmarshal(data, &fd)
	return fd, err
}

// ParseInstance decodes a single InstanceDescriptor from YAML, as dropped
// into the waiting list's watched directory.
func ParseInstance(data []byte) (InstanceDescriptor, error) {
	var id InstanceDescriptor
	err := yaml.Unmarshal(data, &id)
	return id, err
}

// ParseInstances decodes a YAML document holding a list of instance
// requests, for boot-time bulk instantiation files.
func ParseInstances(data []byte) ([]InstanceDescriptor, error) {
	var ids []InstanceDescriptor
	err := yaml.Unmarshal(data, &ids)
	return ids, err
}
