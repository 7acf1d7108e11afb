package vectorindex

import (
	"strconv"

	"github.com/google/uuid"
)

var pointIDNamespace = uuid.MustParse("6b3f8f0e-4a8e-5c52-9d1e-7f2a61c0b9d4")

// CollectionName returns the per-tenant collection, e.g. "company_<uid>".
func CollectionName(prefix, companyUID string) string {
	return prefix + companyUID
}

// PointID derives a stable point id from the source and chunk position, so
// re-indexing a source overwrites its points instead of duplicating them.
func PointID(sourceUID string, chunkIndex int) string {
	return uuid.NewSHA1(pointIDNamespace, []byte(sourceUID+":"+strconv.Itoa(chunkIndex))).String()
}
