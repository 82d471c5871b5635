/*
Copyright © 2025 3 Leaps <info@3leaps.net>
*/

// Package ops classifies CLI commands for grouped help output.
package ops

import (
	"fmt"
	"sort"
	"sync"

	"github.com/spf13/cobra"
)

// CommandGroup represents the operational classification of commands
type CommandGroup string

const (
	GroupRepair  CommandGroup = "repair"  // repair, diagnose
	GroupSupport CommandGroup = "support" // config, version
)

// Groups lists command groups in help order.
func Groups() []CommandGroup {
	return []CommandGroup{GroupRepair, GroupSupport}
}

// Title is the help heading for a group.
func (g CommandGroup) Title() string {
	switch g {
	case GroupRepair:
		return "Bundle Commands"
	case GroupSupport:
		return "Support Commands"
	default:
		return string(g)
	}
}

// CommandRegistration represents a registered command with its classification
type CommandRegistration struct {
	Name        string
	Group       CommandGroup
	Command     *cobra.Command
	Description string
}

// Registry manages command classifications and registrations
type Registry struct {
	mu         sync.RWMutex
	commands   map[string]*CommandRegistration
	groupIndex map[CommandGroup][]*CommandRegistration
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		commands:   make(map[string]*CommandRegistration),
		groupIndex: make(map[CommandGroup][]*CommandRegistration),
	}
}

// Register adds a command to the registry, taking the description from the
// command's Short text.
func (r *Registry) Register(group CommandGroup, cmd *cobra.Command) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := cmd.Name()
	if _, exists := r.commands[name]; exists {
		return fmt.Errorf("command %s already registered", name)
	}
	reg := &CommandRegistration{Name: name, Group: group, Command: cmd, Description: cmd.Short}
	r.commands[name] = reg
	r.groupIndex[group] = append(r.groupIndex[group], reg)
	return nil
}

// GetCommand returns a registered command by name
func (r *Registry) GetCommand(name string) (*CommandRegistration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cmd, exists := r.commands[name]
	return cmd, exists
}

// GetCommandsByGroup returns the commands in a group sorted by name
func (r *Registry) GetCommandsByGroup(group CommandGroup) []*CommandRegistration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := append([]*CommandRegistration(nil), r.groupIndex[group]...)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
