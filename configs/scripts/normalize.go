// Post-processing script: runs once per incident after derivation. Keys
// written into the incident map become incident attributes.
package main

import "strings"

func Process(incident map[string]any) error {
	if v, ok := incident["Category"].(string); ok {
		incident["Category"] = strings.ToUpper(strings.TrimSpace(v))
	}
	return nil
}

func main() {}
