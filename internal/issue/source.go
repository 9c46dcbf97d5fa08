package issue

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// RepoName is the <owner>/<name> pair identifying the source repository.
type RepoName struct {
	Owner string
	Name  string
}

// ParseRepoName parses "owner/name".
func ParseRepoName(s string) (RepoName, error) {
	parts := strings.Split(s, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return RepoName{}, fmt.Errorf("repository name must be <owner>/<name>, got %q", s)
	}
	return RepoName{Owner: parts[0], Name: parts[1]}, nil
}

func (r RepoName) String() string {
	return r.Owner + "/" + r.Name
}

// LoadDir reads every *.json file in dir as one Issue, sorted by filename so
// a batch is processed in a stable order. Unparseable files surface as
// errors; validation happens later, per item, in the builder.
func LoadDir(dir string) ([]*Issue, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read issue dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	issues := make([]*Issue, 0, len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("read issue file %s: %w", name, err)
		}
		var iss Issue
		if err := json.Unmarshal(data, &iss); err != nil {
			return nil, fmt.Errorf("parse issue file %s: %w", name, err)
		}
		issues = append(issues, &iss)
	}
	return issues, nil
}
