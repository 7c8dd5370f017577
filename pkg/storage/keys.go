package storage

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Sternrassler/catalog-harvester/pkg/harvest"
)

const parquetExt = ".parquet"

// PartitionDir is the directory holding every artifact of p, e.g.
// US_movie_data_1999.
func PartitionDir(p harvest.Partition) string {
	return fmt.Sprintf("%s_movie_data_%d", p.Region, p.Year)
}

// PageKey is the object key of one page artifact.
func PageKey(p harvest.Partition, page int) string {
	dir := PartitionDir(p)
	return fmt.Sprintf("%s/%s-%d%s", dir, dir, page, parquetExt)
}

// MergedKey is the object key of the merged artifact.
func MergedKey(p harvest.Partition) string {
	dir := PartitionDir(p)
	return fmt.Sprintf("%s/%s-merged%s", dir, dir, parquetExt)
}

// MirrorKey is the object key used by the mirror, grouped by region only.
func MirrorKey(prefix string, p harvest.Partition) string {
	return fmt.Sprintf("%s%s_movie_data/%s_movie_data_%d-merged%s", prefix, p.Region, p.Region, p.Year, parquetExt)
}

// pageFromKey extracts the page number from a page key of p. Merged and
// foreign keys report false.
func pageFromKey(p harvest.Partition, key string) (int, bool) {
	dir := PartitionDir(p)
	rest, ok := strings.CutPrefix(key, dir+"/"+dir+"-")
	if !ok {
		return 0, false
	}
	rest, ok = strings.CutSuffix(rest, parquetExt)
	if !ok {
		return 0, false
	}
	page, err := strconv.Atoi(rest)
	if err != nil || page <= 0 {
		return 0, false
	}
	return page, true
}
