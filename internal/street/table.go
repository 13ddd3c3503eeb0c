package street

import (
	_ "embed"
	"os"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

//go:embed synonyms.yaml
var embeddedTable []byte

// Table is the static reference data behind the normalizer. It is never
// mutated after parsing and may be shared between goroutines.
type Table struct {
	Suffixes  [][]string        `yaml:"suffixes"`
	Patronyms [][]string        `yaml:"patronyms"`
	Words     [][]string        `yaml:"words"`
	Renames   map[string]string `yaml:"renames"`
}

var defaultTable = sync.OnceValues(func() (*Table, error) {
	return ParseTable(embeddedTable)
})

// DefaultTable returns the embedded table, parsed once.
func DefaultTable() (*Table, error) {
	return defaultTable()
}

// LoadTable reads a table from a YAML file.
func LoadTable(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "street: read table %s", path)
	}
	return ParseTable(data)
}

// ParseTable parses YAML table data and lower-cases every entry.
func ParseTable(data []byte) (*Table, error) {
	var t Table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, eris.Wrap(err, "street: parse table")
	}

	for name, groups := range map[string][][]string{
		"suffixes":  t.Suffixes,
		"patronyms": t.Patronyms,
		"words":     t.Words,
	} {
		for i, g := range groups {
			if len(g) < 2 {
				return nil, eris.Errorf("street: %s group %d needs at least two forms", name, i)
			}
			for j := range g {
				g[j] = strings.ToLower(strings.TrimSpace(g[j]))
			}
		}
	}

	renames := make(map[string]string, len(t.Renames))
	for from, to := range t.Renames {
		renames[strings.ToLower(strings.TrimSpace(from))] = strings.TrimSpace(to)
	}
	t.Renames = renames

	return &t, nil
}
