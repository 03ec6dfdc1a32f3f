package csharp

import (
	"encoding/xml"
	"os"
	"path/filepath"
	"strings"
)

// csprojFile is the subset of the MSBuild project format the workspace
// needs: enough to recover the assembly name.
type csprojFile struct {
	XMLName        xml.Name `xml:"Project"`
	PropertyGroups []struct {
		AssemblyName  string `xml:"AssemblyName"`
		RootNamespace string `xml:"RootNamespace"`
	} `xml:"PropertyGroup"`
}

// assemblyNameFromProject reads the assembly name out of a .csproj file,
// falling back to RootNamespace and finally to the project file stem. A
// malformed project file is not fatal; the stem is always available.
func assemblyNameFromProject(path string) string {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	data, err := os.ReadFile(path)
	if err != nil {
		return stem
	}

	var proj csprojFile
	if err := xml.Unmarshal(data, &proj); err != nil {
		return stem
	}

	for _, pg := range proj.PropertyGroups {
		if name := strings.TrimSpace(pg.AssemblyName); name != "" {
			return name
		}
	}
	for _, pg := range proj.PropertyGroups {
		if ns := strings.TrimSpace(pg.RootNamespace); ns != "" {
			return ns
		}
	}
	return stem
}
