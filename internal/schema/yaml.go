package schema

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadYAML reads and validates a YAML schema file.
func LoadYAML(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema file: %w", err)
	}
	doc, err := ParseYAML(data)
	if err != nil {
		return nil, fmt.Errorf("schema %s: %w", path, err)
	}
	return doc, nil
}

// ParseYAML decodes a YAML schema. Unknown keys are rejected.
func ParseYAML(data []byte) (*Document, error) {
	var doc Document
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateDocument(&doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// validateDocument checks the fields the decoders cannot enforce.
func validateDocument(doc *Document) error {
	if len(doc.Records) == 0 {
		return errors.New("at least one record is required")
	}
	for i, ed := range doc.Enums {
		if ed.Name == "" {
			return fmt.Errorf("enums[%d]: name is required", i)
		}
	}
	for i, rd := range doc.Records {
		if rd.Name == "" {
			return fmt.Errorf("records[%d]: name is required", i)
		}
		if rd.Table == "" {
			return fmt.Errorf("record %s: table is required", rd.Name)
		}
		for j, fd := range rd.Fields {
			if fd.Name == "" {
				return fmt.Errorf("record %s: fields[%d]: name is required", rd.Name, j)
			}
			if len(fd.Types) == 0 {
				return fmt.Errorf("record %s: field %s: at least one type is required", rd.Name, fd.Name)
			}
		}
	}
	return nil
}
