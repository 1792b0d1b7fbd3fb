package normalize

import (
	"fmt"
	"strconv"

	"github.com/openvectors/vecimport/internal/jobs"
)

func normalizeImages(src *ImageSource) (*Result, error) {
	items := make([]jobs.QueueItem, 0, len(src.Vectors))
	for i, vec := range src.Vectors {
		if len(vec) == 0 {
			return nil, fmt.Errorf("image %d has an empty vector", i)
		}
		fields := map[string]string{
			"image": fmt.Sprintf("image-%d", i),
			"index": strconv.Itoa(i),
		}
		for _, col := range src.AttributeColumns {
			if _, exists := fields[col]; !exists {
				fields[col] = ""
			}
		}
		items = append(items, jobs.QueueItem{Index: i, Fields: fields, Vector: vec})
	}

	columns := append([]string{"image", "index"}, src.AttributeColumns...)
	return &Result{Items: items, Columns: columns}, nil
}
