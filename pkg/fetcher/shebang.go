package fetcher

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
)

const envInterpreter = "/usr/bin/env"

// patchShebangs rewrites interpreter lines of scripts under dir so they no
// longer reference absolute paths from the environment the package was
// published in. "#!/usr/local/bin/node" becomes "#!/usr/bin/env node".
// Lines already using /usr/bin/env are untouched, which keeps the rewrite
// idempotent.
func patchShebangs(dir string) error {
	return filepath.WalkDir(dir, func(fsPath string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return fmt.Errorf("get file info: %w", err)
		}
		// Only regular files can carry a shebang worth patching; the
		// executable bit is not required, npm marks bin entries on install.
		if !info.Mode().IsRegular() {
			return nil
		}

		raw, err := os.ReadFile(fsPath)
		if err != nil {
			return fmt.Errorf("read %s: %w", fsPath, err)
		}

		patched, changed := patchShebangLine(raw)
		if !changed {
			return nil
		}

		if err := os.WriteFile(fsPath, patched, info.Mode().Perm()); err != nil {
			return fmt.Errorf("write %s: %w", fsPath, err)
		}
		return nil
	})
}

func patchShebangLine(raw []byte) ([]byte, bool) {
	if !bytes.HasPrefix(raw, []byte("#!")) {
		return raw, false
	}

	end := bytes.IndexByte(raw, '\n')
	if end < 0 {
		end = len(raw)
	}
	line := string(raw[2:end])

	fields := splitShebang(line)
	if len(fields) == 0 {
		return raw, false
	}

	interpreter := fields[0]
	if interpreter == envInterpreter {
		return raw, false
	}

	rewritten := "#!" + envInterpreter + " " + path.Base(interpreter)
	for _, arg := range fields[1:] {
		rewritten += " " + arg
	}

	out := append([]byte(rewritten), raw[end:]...)
	return out, true
}

func splitShebang(line string) []string {
	var fields []string
	field := ""
	for _, r := range line {
		if r == ' ' || r == '\t' || r == '\r' {
			if field != "" {
				fields = append(fields, field)
				field = ""
			}
			continue
		}
		field += string(r)
	}
	if field != "" {
		fields = append(fields, field)
	}
	return fields
}
