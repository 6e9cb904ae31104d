package provenance

import (
	"bufio"
	"bytes"
	"fmt"
	"strings"
)

// LogicalName is the key of a mapping table entry: the id of the step output
// that produced a file. It is never empty and never contains ':'.
type LogicalName string

// ParseLogicalName validates and normalizes a mapping key.
func ParseLogicalName(value string) (LogicalName, error) {
	name := NormalizeName(value)
	if name == "" {
		return "", fmt.Errorf("%w: empty name", ErrMalformedMapping)
	}

	return LogicalName(name), nil
}

// MappingEntry pairs a logical name with the name of the file it produced.
type MappingEntry struct {
	Key        LogicalName
	EntityName string
}

// MappingTable is the parsed output of the mapping step. Keys and entity names
// are both unique.
type MappingTable struct {
	entries []MappingEntry
	byKey   map[LogicalName]string
	byName  map[string]LogicalName
}

// NewMappingTable builds a table from entries, rejecting duplicate keys or names.
func NewMappingTable(entries ...MappingEntry) (*MappingTable, error) {
	table := &MappingTable{
		byKey:  make(map[LogicalName]string, len(entries)),
		byName: make(map[string]LogicalName, len(entries)),
	}

	for _, entry := range entries {
		err := table.add(entry)
		if err != nil {
			return nil, err
		}
	}

	return table, nil
}

// ParseMappingTable parses "<name>,<entity>" lines. Blank lines are ignored.
func ParseMappingTable(content []byte) (*MappingTable, error) {
	table, _ := NewMappingTable()
	scanner := bufio.NewScanner(bytes.NewReader(content))
	lineNumber := 0

	for scanner.Scan() {
		lineNumber++

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		key, value, found := strings.Cut(line, ",")
		if !found {
			return nil, fmt.Errorf("%w: line %d: %q", ErrMalformedMapping, lineNumber, line)
		}

		name, err := ParseLogicalName(key)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNumber, err)
		}

		entityName := baseName(value)
		if strings.TrimSpace(value) == "" || entityName == "." {
			return nil, fmt.Errorf("%w: line %d: empty entity name", ErrMalformedMapping, lineNumber)
		}

		err = table.add(MappingEntry{Key: name, EntityName: entityName})
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNumber, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read mapping table: %w", err)
	}

	return table, nil
}

func (t *MappingTable) add(entry MappingEntry) error {
	if _, exists := t.byKey[entry.Key]; exists {
		return fmt.Errorf("%w: key %s appears twice", ErrMappingCollision, entry.Key)
	}

	if previous, exists := t.byName[entry.EntityName]; exists {
		return fmt.Errorf("%w: %s produced by both %s and %s", ErrMappingCollision, entry.EntityName, previous, entry.Key)
	}

	t.byKey[entry.Key] = entry.EntityName
	t.byName[entry.EntityName] = entry.Key
	t.entries = append(t.entries, entry)

	return nil
}

// EntityName returns the file name recorded for a key.
func (t *MappingTable) EntityName(key LogicalName) (string, bool) {
	name, ok := t.byKey[key]

	return name, ok
}

// KeyFor returns the key whose output produced the named file.
func (t *MappingTable) KeyFor(entityName string) (LogicalName, bool) {
	key, ok := t.byName[entityName]

	return key, ok
}

// Entries returns the entries in file order.
func (t *MappingTable) Entries() []MappingEntry {
	return append([]MappingEntry(nil), t.entries...)
}

func (t *MappingTable) Len() int {
	return len(t.entries)
}
