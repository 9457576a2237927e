package fetcher

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func Test_Repack_Idempotent(t *testing.T) {
	tb, _ := upstreamFixture(t)
	dir := t.TempDir()

	fetched := filepath.Join(dir, "fetched.tgz")
	require.NoError(t, os.WriteFile(fetched, tb, 0644))

	first := filepath.Join(dir, "first.tgz")
	hash1, err := Repack(fetched, first)
	require.NoError(t, err)

	// Repacking the already-normalized artifact must not corrupt it.
	second := filepath.Join(dir, "second.tgz")
	hash2, err := Repack(first, second)
	require.NoError(t, err)
	require.Equal(t, hash1, hash2)

	firstBytes, err := os.ReadFile(first)
	require.NoError(t, err)
	secondBytes, err := os.ReadFile(second)
	require.NoError(t, err)
	require.Equal(t, firstBytes, secondBytes)
}

func Test_Repack_FlatTarball(t *testing.T) {
	// Some publishers skip the top-level directory entirely.
	tb := buildTarball(t, []tarEntry{
		{name: "package.json", mode: 0644, body: `{"name":"flat","version":"1.0.0"}`},
		{name: "index.js", mode: 0644, body: "x\n"},
	})
	dir := t.TempDir()
	src := filepath.Join(dir, "flat.tgz")
	require.NoError(t, os.WriteFile(src, tb, 0644))

	dst := filepath.Join(dir, "out.tgz")
	_, err := Repack(src, dst)
	require.NoError(t, err)
	require.FileExists(t, dst)
}

func Test_Repack_NoScripts(t *testing.T) {
	tb := buildTarball(t, []tarEntry{
		{name: "package/package.json", mode: 0644, body: `{"name":"plain","version":"1.0.0"}`},
	})
	dir := t.TempDir()
	src := filepath.Join(dir, "plain.tgz")
	require.NoError(t, os.WriteFile(src, tb, 0644))

	dst := filepath.Join(dir, "out.tgz")
	_, err := Repack(src, dst)
	require.NoError(t, err)
}

func Test_patchShebangLine(t *testing.T) {
	type testcase struct {
		input   string
		want    string
		changed bool
	}

	testcases := map[string]testcase{
		"absolute interpreter": {
			input:   "#!/usr/local/bin/node\nbody",
			want:    "#!/usr/bin/env node\nbody",
			changed: true,
		},
		"interpreter with args": {
			input:   "#!/nix/store/abc/bin/python3 -u\nbody",
			want:    "#!/usr/bin/env python3 -u\nbody",
			changed: true,
		},
		"already env": {
			input:   "#!/usr/bin/env node\nbody",
			changed: false,
		},
		"no shebang": {
			input:   "plain text\n",
			changed: false,
		},
		"shebang without newline": {
			input:   "#!/bin/sh",
			want:    "#!/usr/bin/env sh",
			changed: true,
		},
	}

	for tcName, tc := range testcases {
		t.Run(tcName, func(t *testing.T) {
			got, changed := patchShebangLine([]byte(tc.input))
			require.Equal(t, tc.changed, changed)
			if tc.changed {
				require.Equal(t, tc.want, string(got))
			} else {
				require.Equal(t, tc.input, string(got))
			}
		})
	}
}
