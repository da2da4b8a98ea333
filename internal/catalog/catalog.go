// Package catalog describes the server flavors this host can run. The list
// is embedded so the binary and its API always agree on what is offered.
package catalog

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed flavors.yaml
var flavorsYAML []byte

// Flavor is one supported server distribution. ImageType is the TYPE value
// the container image expects for it.
type Flavor struct {
	ID          string `yaml:"id" json:"id"`
	DisplayName string `yaml:"display_name" json:"display_name"`
	ImageType   string `yaml:"image_type" json:"image_type"`
}

var (
	flavors []Flavor
	byID    map[string]Flavor
)

func init() {
	var doc struct {
		Flavors []Flavor `yaml:"flavors"`
	}
	if err := yaml.Unmarshal(flavorsYAML, &doc); err != nil {
		panic(fmt.Sprintf("catalog: parse flavors.yaml: %v", err))
	}
	flavors = doc.Flavors
	byID = make(map[string]Flavor, len(flavors))
	for _, f := range flavors {
		byID[f.ID] = f
	}
}

// List returns all flavors in catalog order.
func List() []Flavor {
	out := make([]Flavor, len(flavors))
	copy(out, flavors)
	return out
}

// Lookup returns the flavor with the given id.
func Lookup(id string) (Flavor, bool) {
	f, ok := byID[id]
	return f, ok
}

// IsValid reports whether id names a supported flavor.
func IsValid(id string) bool {
	_, ok := byID[id]
	return ok
}
