package main

import (
	"bytes"
	"io/ioutil"
	"testing"
)

// execute runs a fresh command tree with args, returning what it
// wrote to stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out := new(bytes.Buffer)
	cmd := newRoot().Command()
	cmd.SetOut(out)
	cmd.SetErr(ioutil.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeFile(path, contents string) error {
	return ioutil.WriteFile(path, []byte(contents), 0600)
}
