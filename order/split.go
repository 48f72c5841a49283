package order

import (
	"fmt"
	"os"

	"github.com/airbusgeo/reserve-monitor/common"
	"github.com/airbusgeo/reserve-monitor/service"
)

// MaxItemsPerOrder is the maximum number of items the provider accepts in one order
const MaxItemsPerOrder = 500

// Split splits the ids in ceil(len(ids)/size) chunks, preserving the order
func Split(ids []string, size int) [][]string {
	if size <= 0 {
		size = MaxItemsPerOrder
	}
	chunks := make([][]string, 0, (len(ids)+size-1)/size)
	for start := 0; start < len(ids); start += size {
		end := min(start+size, len(ids))
		chunks = append(chunks, ids[start:end])
	}
	return chunks
}

// FilterExisting removes the ids of the scenes that already have a file in dir.
// A file belongs to a scene if its first two "_"-separated fields equal the date+time key of the scene id.
// A missing directory is considered empty.
func FilterExisting(ids []string, dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return ids, nil
		}
		return nil, fmt.Errorf("FilterExisting.ReadDir: %w", err)
	}
	existing := service.NewStringSet()
	for _, e := range entries {
		if !e.IsDir() {
			existing.Push(common.FileDateTimeKey(e.Name()))
		}
	}
	filtered := make([]string, 0, len(ids))
	for _, id := range ids {
		if !existing.Exists(common.DateTimeKey(id)) {
			filtered = append(filtered, id)
		}
	}
	return filtered, nil
}
