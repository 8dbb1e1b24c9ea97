package types

import "path/filepath"

// ResolvePackagePath resolves a user-provided package reference to a workspace
// package directory. It accepts an import path, an absolute or root-relative
// directory, "." or a unique package name.
func ResolvePackagePath(workspace *Workspace, userPath string) (string, bool) {
	if dir, ok := workspace.ImportToPath[userPath]; ok {
		return dir, true
	}

	if _, exists := workspace.Packages[userPath]; exists {
		return userPath, true
	}

	absPath := filepath.Join(workspace.RootPath, userPath)
	if _, exists := workspace.Packages[absPath]; exists {
		return absPath, true
	}

	// Unique package name
	var matchedPath string
	matchCount := 0
	for pkgPath, pkg := range workspace.Packages {
		if pkg.Name == userPath {
			matchedPath = pkgPath
			matchCount++
		}
	}
	if matchCount == 1 {
		return matchedPath, true
	}
	return "", false
}
