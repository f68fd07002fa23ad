package store

import (
	"fmt"
	"strings"
)

const (
	// LocationDelimiter separates the table name from the partition.
	LocationDelimiter = "/"

	// DefaultPartition is used when a location names no partition.
	DefaultPartition = "!"
)

// ParseLocation splits "table/partition" into its parts. Everything after
// the first delimiter belongs to the partition.
func ParseLocation(location string) (table, partition string, err error) {
	table, partition, _ = strings.Cut(location, LocationDelimiter)
	if table == "" {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidLocation, location)
	}
	if partition == "" {
		partition = DefaultPartition
	}
	return table, partition, nil
}
