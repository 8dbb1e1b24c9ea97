package cli

const rootLong = `goextract - structural refactorings for Go workspaces

Every refactoring is computed in memory first. Diagnostics are grouped by
severity: a FATAL entry stops the refactoring before anything is computed,
ERROR entries block the write unless --force is given, WARN and INFO entries
are reported only.

Field selections use Name or Name:NewName, separated by commas.`

const rootExample = `  goextract extract-struct ./shapes Rectangle --fields Width,Height --class Dimensions
  goextract extract-struct shapes Rectangle --fields Width:W --accessors --top-level --dry-run
  goextract extract-interface ./store Memory --methods Get,Put --name Store --assert
  goextract replay extract.yaml
  goextract references ./shapes Rectangle Width
  goextract hierarchy ./store Memory --json`
