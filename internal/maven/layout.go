// Package maven knows the Maven repository layout, how the settings file is
// chosen, and how mvn is invoked.
package maven

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Coordinates identify a project artifact.
type Coordinates struct {
	GroupID    string
	ArtifactID string
	Version    string
}

func (c Coordinates) String() string {
	return c.GroupID + ":" + c.ArtifactID + ":" + c.Version
}

// Validate checks that every coordinate is present and safe to use as a
// path component.
func (c Coordinates) Validate() error {
	if err := ValidateGroupID(c.GroupID); err != nil {
		return err
	}
	for field, v := range map[string]string{"artifactId": c.ArtifactID, "version": c.Version} {
		if v == "" {
			return fmt.Errorf("%s is empty", field)
		}
		if strings.ContainsAny(v, `/\`) || v == "." || v == ".." {
			return fmt.Errorf("%s %q is not a valid path component", field, v)
		}
	}
	return nil
}

// ValidateGroupID rejects group ids that do not map onto a directory below
// the repository root.
func ValidateGroupID(groupID string) error {
	if groupID == "" {
		return fmt.Errorf("groupId is empty")
	}
	if strings.ContainsAny(groupID, `/\ `) {
		return fmt.Errorf("groupId %q contains invalid characters", groupID)
	}
	for _, seg := range strings.Split(groupID, ".") {
		if seg == "" {
			return fmt.Errorf("groupId %q has an empty segment", groupID)
		}
	}
	return nil
}

// GroupIDRepositoryPath returns the directory holding every artifact of the
// group: the repository root joined with the groupId's dots turned into path
// separators.
func GroupIDRepositoryPath(root, groupID string) (string, error) {
	if err := ValidateGroupID(groupID); err != nil {
		return "", err
	}
	return filepath.Join(root, filepath.FromSlash(strings.ReplaceAll(groupID, ".", "/"))), nil
}

// ArtifactDir returns root/group/path/artifactId/version.
func ArtifactDir(root string, c Coordinates) (string, error) {
	if err := c.Validate(); err != nil {
		return "", err
	}
	group, err := GroupIDRepositoryPath(root, c.GroupID)
	if err != nil {
		return "", err
	}
	return filepath.Join(group, c.ArtifactID, c.Version), nil
}

// ArtifactFile returns the path of the artifact file with the given
// extension, e.g. "jar" or "pom".
func ArtifactFile(root string, c Coordinates, ext string) (string, error) {
	dir, err := ArtifactDir(root, c)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, c.ArtifactID+"-"+c.Version+"."+ext), nil
}
