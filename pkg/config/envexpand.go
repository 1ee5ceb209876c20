package config

import (
	"bytes"
	"os"
	"text/template"
)

// ExpandEnv expands environment variables in manifest YAML using Go template
// syntax ({{.VAR_NAME}}). Plain $ is left untouched so Gremlin/KQL snippets
// and primary keys embedded in manifests survive expansion.
//
// Missing variables expand to empty string; validation catches required
// fields that end up empty.
func ExpandEnv(data []byte) []byte {
	tmpl, err := template.New("manifest").Option("missingkey=zero").Parse(string(data))
	if err != nil {
		// No template syntax (or malformed) — pass the YAML through as-is.
		return data
	}

	envMap := make(map[string]string)
	for _, env := range os.Environ() {
		if idx := bytes.IndexByte([]byte(env), '='); idx > 0 {
			envMap[env[:idx]] = env[idx+1:]
		}
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, envMap); err != nil {
		return data
	}
	return buf.Bytes()
}
