// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package packager

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Activation script names, relative to the install root.
const (
	ShellScript      = "activate.sh"
	PowerShellScript = "activate.ps1"
)

// Both scripts check for the entry before adding it, so running them
// any number of times leaves exactly one PATH entry in the session and
// one line in the persistent profile.

const shellTemplate = `# Generated by shipyard. Source this file to put the installed tools on PATH:
#   . %[1]s
shipyard_bin=%[2]s
case ":${PATH}:" in
  *":${shipyard_bin}:"*) ;;
  *) PATH="${shipyard_bin}:${PATH}"; export PATH ;;
esac
shipyard_profile="%[3]s"
shipyard_line=%[4]s
if ! grep -qsF "${shipyard_line}" "${shipyard_profile}"; then
  printf '%%s\n' "${shipyard_line}" >> "${shipyard_profile}"
fi
unset shipyard_bin shipyard_profile shipyard_line
`

const powerShellTemplate = `# Generated by shipyard. Run this script to put the installed tools on PATH.
$shipyardBin = Join-Path $PSScriptRoot '%[1]s'
if (-not (($env:Path -split ';') -contains $shipyardBin)) {
    $env:Path = "$shipyardBin;$env:Path"
}
$userPath = [Environment]::GetEnvironmentVariable('Path', 'User')
if (-not (($userPath -split ';') -contains $shipyardBin)) {
    $entries = @($userPath, $shipyardBin) | Where-Object { $_ }
    [Environment]::SetEnvironmentVariable('Path', ($entries -join ';'), 'User')
}
`

// ShellActivation renders activate.sh for the given bin directory.
// profileFile may start with "~/", which the script resolves against
// $HOME when it runs.
func ShellActivation(install, bin, profileFile string) string {
	if profileFile == "" {
		profileFile = "~/.profile"
	}
	if rest, ok := strings.CutPrefix(profileFile, "~/"); ok {
		profileFile = "${HOME}/" + rest
	}
	profileLine := "export PATH=" + shellQuote(bin) + `:"$PATH"`
	return fmt.Sprintf(shellTemplate,
		filepath.Join(install, ShellScript),
		shellQuote(bin),
		profileFile,
		shellQuote(profileLine),
	)
}

// PowerShellActivation renders activate.ps1. The bin path is relative
// to the script so the install root can be moved.
func PowerShellActivation(install, bin string) string {
	relative, err := filepath.Rel(install, bin)
	if err != nil {
		relative = bin
	}
	relative = strings.ReplaceAll(filepath.ToSlash(relative), "'", "''")
	return fmt.Sprintf(powerShellTemplate, relative)
}

func writeActivationScripts(install, bin, profileFile string) ([]string, error) {
	scripts := []struct {
		name    string
		content string
	}{
		{ShellScript, ShellActivation(install, bin, profileFile)},
		{PowerShellScript, PowerShellActivation(install, bin)},
	}
	var written []string
	for _, script := range scripts {
		path := filepath.Join(install, script.name)
		if err := writeFileIfChanged(path, []byte(script.content), 0o755); err != nil {
			return written, err
		}
		written = append(written, path)
	}
	return written, nil
}

// shellQuote wraps s in single quotes for POSIX sh.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
