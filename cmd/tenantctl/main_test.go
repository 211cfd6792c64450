package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_Subcommands(t *testing.T) {
	root := newRootCommand()

	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"populate", "seed-plans", "create-schema", "link-billing"}, names)
}

func TestPopulate_MissingFile(t *testing.T) {
	root := newRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"populate", "--file", "does-not-exist.json"})

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "provision: open")
}

func TestCreateSchema_RequiresName(t *testing.T) {
	root := newRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"create-schema"})

	assert.Error(t, root.Execute())
}

func TestLinkBilling_RequiresSchemaAndCustomer(t *testing.T) {
	root := newRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"link-billing", "acme"})

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 2 arg(s)")
}
