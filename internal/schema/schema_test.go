package schema

import (
	"testing"

	"github.com/spf13/cobra"
)

func newTree() *cobra.Command {
	root := &cobra.Command{Use: "kda"}
	root.PersistentFlags().String("network", "", "Kadena network")
	child := &cobra.Command{Use: "actions", Short: "saga records"}
	leaf := &cobra.Command{Use: "list", Short: "list recorded sagas", Aliases: []string{"ls"}}
	leaf.Flags().Int("limit", 20, "maximum actions to return")
	leaf.Flags().String("status", "", "filter by status")
	_ = leaf.MarkFlagRequired("status")
	child.AddCommand(leaf)
	root.AddCommand(child)
	return root
}

func TestBuildSchema(t *testing.T) {
	s, err := Build(newTree(), "actions list")
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if s.Path != "kda actions list" {
		t.Fatalf("unexpected path: %s", s.Path)
	}
	if len(s.Flags) != 2 || s.Flags[0].Name != "limit" || s.Flags[0].Required {
		t.Fatalf("unexpected flags: %+v", s.Flags)
	}
	if s.Flags[1].Name != "status" || !s.Flags[1].Required {
		t.Fatalf("expected status to be required: %+v", s.Flags[1])
	}
	if len(s.Inherited) != 1 || s.Inherited[0].Name != "network" {
		t.Fatalf("unexpected inherited flags: %+v", s.Inherited)
	}
}

func TestBuildSchemaAliasesAndMissing(t *testing.T) {
	root := newTree()
	s, err := Build(root, "actions ls")
	if err != nil {
		t.Fatalf("Build by alias failed: %v", err)
	}
	if s.Use != "list" {
		t.Fatalf("unexpected command: %s", s.Use)
	}
	if _, err := Build(root, "actions purge"); err == nil {
		t.Fatal("expected missing command error")
	}

	full, err := Build(root, "")
	if err != nil {
		t.Fatalf("Build root failed: %v", err)
	}
	if len(full.Subcommands) != 1 || len(full.Subcommands[0].Subcommands) != 1 {
		t.Fatalf("unexpected tree: %+v", full)
	}
	if len(full.Inherited) != 0 {
		t.Fatalf("root should not list inherited flags: %+v", full.Inherited)
	}
}
